/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package appserver

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/yiiyama/ddm/3rdparty/glog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Response is the fixed shape of every reply: {"status": OK|failed,
// "message": <payload-or-text>}.
type Response struct {
	Status  string      `json:"status"`
	Message interface{} `json:"message"`
}

// Conn wraps one accepted connection with the "<decimal-length>
// <json-payload>" framing used by both the application-server command
// protocol and, reused, the interactive console's stdin.
type Conn struct {
	conn   net.Conn
	reader *bufio.Reader
	Host   string
	Port   int
}

func NewConn(c net.Conn) *Conn {
	host, portStr, err := net.SplitHostPort(c.RemoteAddr().String())
	port := 0
	if err == nil {
		port, _ = strconv.Atoi(portStr)
	}
	return &Conn{conn: c, reader: bufio.NewReader(c), Host: host, Port: port}
}

// Send writes {"status": status, "message": message} framed as
// "<len> <json>". Non-OK statuses are logged.
func (c *Conn) Send(status string, message interface{}) error {
	if status != "OK" {
		glog.FastV(2, glog.SmoduleAppServer).Warningf("response to %s:%d: %v", c.Host, c.Port, message)
	}

	body, err := json.Marshal(Response{Status: status, Message: message})
	if err != nil {
		return err
	}
	frame := fmt.Sprintf("%d %s", len(body), body)
	_, err = c.conn.Write([]byte(frame))
	return err
}

// Recv reads one framed message and unmarshals its JSON payload into out.
func (c *Conn) Recv(out interface{}) error {
	lengthToken, err := c.reader.ReadString(' ')
	if err != nil {
		return err
	}
	length, err := strconv.Atoi(strings.TrimSpace(lengthToken))
	if err != nil {
		return fmt.Errorf("ill-formatted length prefix %q", lengthToken)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(c.reader, buf); err != nil {
		return err
	}

	if err := json.Unmarshal(buf, out); err != nil {
		return fmt.Errorf("ill-formatted data: %w", err)
	}
	return nil
}

func (c *Conn) Close() error {
	return c.conn.Close()
}
