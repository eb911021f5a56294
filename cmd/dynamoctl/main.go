// dynamoctl is a thin client for the application server (C9): it speaks
// the same "<len> <json>" wire protocol used internally, wrapped in an
// urfave/cli command surface the way cli/commands does for the AIS
// cluster API, with an mpb progress indicator while a synchronous
// submission's output is being tailed.
/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package main

import (
	"bufio"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v4"
	"github.com/vbauerster/mpb/v4/decor"

	"github.com/yiiyama/ddm/appserver"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const progressBarWidth = 64

func main() {
	app := cli.NewApp()
	app.Name = "dynamoctl"
	app.Usage = "submit, poll, kill, or interactively run applications against a dynamod application server"

	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "server", Value: "localhost:8443", Usage: "host:port of the application server"},
		cli.StringFlag{Name: "cert", Usage: "client certificate file"},
		cli.StringFlag{Name: "key", Usage: "client private key file"},
		cli.StringFlag{Name: "ca", Usage: "CA certificate file for server verification"},
	}

	app.Commands = []cli.Command{
		{
			Name:  "submit",
			Usage: "submit an application",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "title", Required: true},
				cli.StringFlag{Name: "args"},
				cli.StringFlag{Name: "exec-path", Usage: "path to a local executable to copy into the work area"},
				cli.StringFlag{Name: "exec", Usage: "inline executable source"},
				cli.StringFlag{Name: "path", Usage: "explicit work area path"},
				cli.StringFlag{Name: "service", Value: "dynamo"},
				cli.BoolFlag{Name: "synch", Usage: "wait for completion, tailing stdout/stderr"},
				cli.BoolFlag{Name: "write-request"},
			},
			Action: actionSubmit,
		},
		{
			Name:      "poll",
			Usage:     "poll an application's status",
			ArgsUsage: "<appid>",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "service", Value: "dynamo"},
			},
			Action: actionPoll,
		},
		{
			Name:      "kill",
			Usage:     "kill a running application",
			ArgsUsage: "<appid>",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "service", Value: "dynamo"},
			},
			Action: actionKill,
		},
		{
			Name:  "interact",
			Usage: "open an interactive console in a new work area",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "path"},
				cli.StringFlag{Name: "service", Value: "dynamo"},
			},
			Action: actionInteract,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func dialServer(c *cli.Context) (*tls.Conn, error) {
	cert, err := tls.LoadX509KeyPair(c.GlobalString("cert"), c.GlobalString("key"))
	if err != nil {
		return nil, fmt.Errorf("loading client certificate: %w", err)
	}

	tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}}
	if ca := c.GlobalString("ca"); ca != "" {
		pool, err := loadCAPool(ca)
		if err != nil {
			return nil, err
		}
		tlsCfg.RootCAs = pool
	}

	return tls.Dial("tcp", c.GlobalString("server"), tlsCfg)
}

// sendFrame writes "<len> <json>" for an arbitrary request payload; the
// server side reads it with the same framing appserver.Conn.Recv uses,
// but responses are wrapped as {status, message} while requests are not,
// so this is a thin peer of appserver.Conn rather than a reuse of it.
func sendFrame(w io.Writer, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%d %s", len(body), body)
	return err
}

func actionSubmit(c *cli.Context) error {
	conn, err := dialServer(c)
	if err != nil {
		return err
	}
	defer conn.Close()

	exec := c.String("exec")
	execPath := c.String("exec-path")
	if exec == "" && execPath == "" {
		return cli.NewExitError("one of --exec or --exec-path is required", 1)
	}

	mode := "asynch"
	if c.Bool("synch") {
		mode = "synch"
	}

	req := map[string]interface{}{
		"command":       "submit",
		"service":       c.String("service"),
		"title":         c.String("title"),
		"args":          c.String("args"),
		"write_request": c.Bool("write-request"),
		"mode":          mode,
	}
	if c.String("path") != "" {
		req["path"] = c.String("path")
	}
	if execPath != "" {
		req["exec_path"] = execPath
	} else {
		req["exec"] = exec
	}
	if err := sendFrame(conn, req); err != nil {
		return err
	}

	wire := appserver.NewConn(conn)
	var resp appserver.Response
	if err := wire.Recv(&resp); err != nil {
		return err
	}
	if resp.Status != "OK" {
		return cli.NewExitError(fmt.Sprintf("submit failed: %v", resp.Message), 1)
	}
	fmt.Printf("submitted: %v\n", resp.Message)

	if mode != "synch" {
		return nil
	}

	return followSynchApp(conn, wire)
}

// followSynchApp opens a local listener for the server's stdout/stderr
// tail connections, reports its address, then streams both to the
// client's own stdout/stderr until the server reports a terminal status.
func followSynchApp(conn net.Conn, wire *appserver.Conn) error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	defer listener.Close()

	host, port, err := listenerAddr(listener)
	if err != nil {
		return err
	}
	if err := sendFrame(conn, map[string]interface{}{"host": host, "port": port}); err != nil {
		return err
	}

	p := mpb.New(mpb.WithWidth(progressBarWidth))
	bar := p.AddBar(0,
		mpb.PrependDecorators(decor.Name("running")),
		mpb.AppendDecorators(decor.Elapsed(decor.ET_STYLE_GO)),
	)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-time.After(200 * time.Millisecond):
				bar.Increment()
			}
		}
	}()

	var wg sync.WaitGroup
	for _, w := range []io.Writer{os.Stdout, os.Stderr} {
		c, err := listener.Accept()
		if err != nil {
			close(stop)
			return err
		}
		wg.Add(1)
		go func(c net.Conn, w io.Writer) {
			defer wg.Done()
			defer c.Close()
			io.Copy(w, c)
		}(c, w)
	}
	wg.Wait()
	close(stop)
	p.Wait()

	var result appserver.Response
	if err := wire.Recv(&result); err != nil {
		return err
	}
	fmt.Printf("final status: %v\n", result.Message)
	return nil
}

func actionPoll(c *cli.Context) error {
	return sendSimpleCommand(c, "poll")
}

func actionKill(c *cli.Context) error {
	return sendSimpleCommand(c, "kill")
}

func sendSimpleCommand(c *cli.Context, command string) error {
	if c.NArg() != 1 {
		return cli.NewExitError("expected exactly one <appid> argument", 1)
	}
	appID, err := strconv.ParseInt(c.Args().First(), 10, 64)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("invalid appid %q", c.Args().First()), 1)
	}

	conn, err := dialServer(c)
	if err != nil {
		return err
	}
	defer conn.Close()

	req := map[string]interface{}{
		"command": command,
		"service": c.String("service"),
		"appid":   appID,
	}
	if err := sendFrame(conn, req); err != nil {
		return err
	}

	wire := appserver.NewConn(conn)
	var resp appserver.Response
	if err := wire.Recv(&resp); err != nil {
		return err
	}
	if resp.Status != "OK" {
		return cli.NewExitError(fmt.Sprintf("%s failed: %v", command, resp.Message), 1)
	}
	fmt.Printf("%v\n", resp.Message)
	return nil
}

func actionInteract(c *cli.Context) error {
	conn, err := dialServer(c)
	if err != nil {
		return err
	}
	defer conn.Close()

	req := map[string]interface{}{"command": "interact", "service": c.String("service")}
	if c.String("path") != "" {
		req["path"] = c.String("path")
	}
	if err := sendFrame(conn, req); err != nil {
		return err
	}

	wire := appserver.NewConn(conn)
	var resp appserver.Response
	if err := wire.Recv(&resp); err != nil {
		return err
	}
	if resp.Status != "OK" {
		return cli.NewExitError(fmt.Sprintf("interact failed: %v", resp.Message), 1)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	defer listener.Close()

	host, port, err := listenerAddr(listener)
	if err != nil {
		return err
	}
	if err := sendFrame(conn, map[string]interface{}{"host": host, "port": port}); err != nil {
		return err
	}

	duplex, err := listener.Accept()
	if err != nil {
		return err
	}
	defer duplex.Close()
	errConn, err := listener.Accept()
	if err != nil {
		return err
	}
	defer errConn.Close()

	go io.Copy(os.Stderr, errConn)
	go io.Copy(os.Stdout, duplex)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if _, err := fmt.Fprintf(duplex, "%d %s", len(line), line); err != nil {
			break
		}
	}
	fmt.Fprint(duplex, "0 ")
	return nil
}

func listenerAddr(listener net.Listener) (string, int, error) {
	addr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		return "", 0, fmt.Errorf("unexpected listener address type %T", listener.Addr())
	}
	return "127.0.0.1", addr.Port, nil
}

func loadCAPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(pem)
	return pool, nil
}
