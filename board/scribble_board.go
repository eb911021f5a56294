/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package board

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/sdomino/scribble"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	collUpdates = "updates"
	collMeta    = "meta"
	metaKeySeq  = "seq"
	lockFile    = "board.lock"
)

// ScribbleBoard is a Board backed by scribble, mirroring the lock/unlock/
// get_updates/flush/write_updates contract with a JSON-flat-file store
// instead of a MySQL table: a process-local mutex serializes writers
// within this process, and an exclusive lock file serializes writers
// across processes sharing the same confdir.
type ScribbleBoard struct {
	mu       sync.Mutex
	driver   *scribble.Driver
	confdir  string
	lockFile *os.File
}

func NewScribbleBoard(confdir string) (*ScribbleBoard, error) {
	driver, err := scribble.New(confdir, nil)
	if err != nil {
		return nil, err
	}
	return &ScribbleBoard{driver: driver, confdir: confdir}, nil
}

type commandRecord struct {
	Id     uint64 `json:"id"`
	Op     string `json:"op"`
	Object string `json:"object"`
}

type seqRecord struct {
	Next uint64 `json:"next"`
}

func sequenceKey(id uint64) string {
	return fmt.Sprintf("%020d", id)
}

// Lock acquires the process-local mutex, then an exclusive lock file
// under confdir, held for the duration of a write transaction.
func (b *ScribbleBoard) Lock() error {
	b.mu.Lock()

	path := filepath.Join(b.confdir, lockFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		b.mu.Unlock()
		return fmt.Errorf("update board already locked: %w", err)
	}
	b.lockFile = f
	return nil
}

func (b *ScribbleBoard) Unlock() error {
	defer b.mu.Unlock()

	if b.lockFile == nil {
		return nil
	}
	path := b.lockFile.Name()
	b.lockFile.Close()
	b.lockFile = nil
	return os.Remove(path)
}

// GetUpdates returns the queued commands in insertion (id) order. scribble's
// ReadAll hands back each record's serialized JSON content, not its file
// name, so insertion order must be recovered from the record's own Id field
// rather than from sorting the raw JSON text (which would order commands by
// their serialized content, not by the order they were written).
func (b *ScribbleBoard) GetUpdates() ([]Command, error) {
	raw, err := b.driver.ReadAll(collUpdates)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	recs := make([]commandRecord, 0, len(raw))
	for _, r := range raw {
		var rec commandRecord
		if err := json.Unmarshal([]byte(r), &rec); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].Id < recs[j].Id })

	commands := make([]Command, 0, len(recs))
	for _, rec := range recs {
		op := OpUpdate
		if rec.Op == "delete" {
			op = OpDelete
		}
		commands = append(commands, Command{Op: op, Object: rec.Object})
	}
	return commands, nil
}

// Flush removes all queued commands and resets the id sequence.
func (b *ScribbleBoard) Flush() error {
	if err := b.driver.Delete(collUpdates, ""); err != nil && !os.IsNotExist(err) {
		return err
	}
	return b.driver.Write(collMeta, metaKeySeq, seqRecord{Next: 0})
}

// WriteUpdates appends a batch of commands, assigning each the next
// sequence id so GetUpdates can replay them in insertion order.
func (b *ScribbleBoard) WriteUpdates(commands []Command) error {
	var seq seqRecord
	if err := b.driver.Read(collMeta, metaKeySeq, &seq); err != nil && !os.IsNotExist(err) {
		return err
	}

	for _, cmd := range commands {
		rec := commandRecord{Id: seq.Next, Op: cmd.Op.String(), Object: cmd.Object}
		if err := b.driver.Write(collUpdates, sequenceKey(seq.Next), rec); err != nil {
			return err
		}
		seq.Next++
	}

	return b.driver.Write(collMeta, metaKeySeq, seq)
}

func (b *ScribbleBoard) Disconnect() error {
	return nil
}
