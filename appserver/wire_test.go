/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package appserver

import (
	"net"
	"testing"
)

func TestFramingRoundTrip(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()
	defer clientSide.Close()

	sendErr := make(chan error, 1)
	go func() {
		sc := NewConn(serverSide)
		sendErr <- sc.Send("OK", map[string]interface{}{"hello": "world"})
	}()

	cc := NewConn(clientSide)
	var resp Response
	if err := cc.Recv(&resp); err != nil {
		t.Fatalf("recv: %v", err)
	}
	if err := <-sendErr; err != nil {
		t.Fatalf("send: %v", err)
	}

	if resp.Status != "OK" {
		t.Fatalf("expected status OK, got %s", resp.Status)
	}
	msg, ok := resp.Message.(map[string]interface{})
	if !ok || msg["hello"] != "world" {
		t.Fatalf("unexpected message: %+v", resp.Message)
	}
}

func TestRecvRejectsIllFormattedData(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()
	defer clientSide.Close()

	go func() {
		clientSide.Write([]byte("3 xyz"))
	}()

	sc := NewConn(serverSide)
	var out map[string]interface{}
	if err := sc.Recv(&out); err == nil {
		t.Fatalf("expected an error unmarshaling non-JSON payload")
	}
}
