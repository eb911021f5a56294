/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package appserver

import (
	"bufio"
	"io"
	"os"
	"time"
)

// tailFollow is a "tail -f" emulation: wait for sourcePath to appear,
// then stream appended lines to w until stop fires. Polling cadence is
// 500ms, matching the spec's suspension-point list.
func tailFollow(sourcePath string, w io.Writer, stop <-chan struct{}) {
	for {
		if _, err := os.Stat(sourcePath); err == nil {
			break
		}
		select {
		case <-stop:
			return
		case <-time.After(500 * time.Millisecond):
		}
	}

	f, err := os.Open(sourcePath)
	if err != nil {
		return
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	for {
		select {
		case <-stop:
			return
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			// no full line yet: rewind to before the partial read and
			// retry after the poll interval.
			if line != "" {
				if _, serr := f.Seek(int64(-len(line)), io.SeekCurrent); serr == nil {
					reader.Reset(f)
				}
			}
			select {
			case <-stop:
				return
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}

		if _, err := io.WriteString(w, line); err != nil {
			return
		}
	}
}
