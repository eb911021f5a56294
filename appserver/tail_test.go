/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package appserver

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTailFollowStreamsAppendedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "_stdout")

	var buf bytes.Buffer
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		tailFollow(path, &buf, stop)
		close(done)
	}()

	// tailFollow must wait for the file to appear
	time.Sleep(50 * time.Millisecond)

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("line one\n")
	f.Sync()

	time.Sleep(700 * time.Millisecond)

	f.WriteString("line two\n")
	f.Sync()
	f.Close()

	time.Sleep(700 * time.Millisecond)
	close(stop)
	<-done

	got := buf.String()
	if got != "line one\nline two\n" {
		t.Fatalf("unexpected tailed content: %q", got)
	}
}
