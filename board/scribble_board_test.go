/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package board

import (
	"os"
	"testing"
)

func newTestBoard(t *testing.T) *ScribbleBoard {
	t.Helper()
	dir, err := os.MkdirTemp("", "board-test-")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	b, err := NewScribbleBoard(dir)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestWriteAndGetUpdatesPreservesOrder(t *testing.T) {
	b := newTestBoard(t)

	if err := b.Lock(); err != nil {
		t.Fatalf("lock: %v", err)
	}
	err := b.WriteUpdates([]Command{
		{Op: OpUpdate, Object: `{"name":"a"}`},
		{Op: OpDelete, Object: `{"name":"b"}`},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := b.Unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	if err := b.Lock(); err != nil {
		t.Fatalf("second lock: %v", err)
	}
	err = b.WriteUpdates([]Command{{Op: OpUpdate, Object: `{"name":"c"}`}})
	if err != nil {
		t.Fatalf("write 2: %v", err)
	}
	b.Unlock()

	commands, err := b.GetUpdates()
	if err != nil {
		t.Fatalf("get updates: %v", err)
	}
	if len(commands) != 3 {
		t.Fatalf("expected 3 commands, got %d", len(commands))
	}
	if commands[0].Object != `{"name":"a"}` || commands[1].Object != `{"name":"b"}` || commands[2].Object != `{"name":"c"}` {
		t.Fatalf("expected insertion order preserved, got %+v", commands)
	}
	if commands[1].Op != OpDelete {
		t.Fatalf("expected second command to be a delete")
	}
}

func TestFlushResetsSequence(t *testing.T) {
	b := newTestBoard(t)

	b.Lock()
	b.WriteUpdates([]Command{{Op: OpUpdate, Object: `{"name":"a"}`}})
	b.Unlock()

	if err := b.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	commands, err := b.GetUpdates()
	if err != nil {
		t.Fatalf("get updates after flush: %v", err)
	}
	if len(commands) != 0 {
		t.Fatalf("expected no commands after flush, got %d", len(commands))
	}

	b.Lock()
	b.WriteUpdates([]Command{{Op: OpUpdate, Object: `{"name":"fresh"}`}})
	b.Unlock()

	commands, err = b.GetUpdates()
	if err != nil {
		t.Fatalf("get updates: %v", err)
	}
	if len(commands) != 1 || commands[0].Object != `{"name":"fresh"}` {
		t.Fatalf("expected a single fresh command, got %+v", commands)
	}
}

func TestLockIsExclusive(t *testing.T) {
	b := newTestBoard(t)

	if err := b.Lock(); err != nil {
		t.Fatalf("first lock: %v", err)
	}
	defer b.Unlock()

	b2, err := NewScribbleBoard(b.confdir)
	if err != nil {
		t.Fatal(err)
	}
	if err := b2.Lock(); err == nil {
		t.Fatalf("expected a second board sharing the same confdir to fail to lock")
	}
}
