// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package filestable implements the one specific record file every
// database file system keeps: a directory mapping names to the head
// block of another record file, so a caller can reopen files by name
// instead of remembering block numbers.
package filestable

import (
	"encoding/binary"

	"github.com/go-blockdb/blockdb/bitmap"
	"github.com/go-blockdb/blockdb/buffer"
	"github.com/go-blockdb/blockdb/recfile"
)

// Table is a name -> head-block directory backed by a record file.
type Table struct {
	file *recfile.File
}

// Init creates a fresh, empty files table.
func Init(fsm *bitmap.Manager, bufMgr *buffer.Manager) (*Table, uint32, error) {
	f, head, err := recfile.Init(fsm, bufMgr)
	if err != nil {
		return nil, 0, err
	}
	return &Table{file: f}, head, nil
}

// Open binds to an existing files table by its record file's head block.
func Open(fsm *bitmap.Manager, bufMgr *buffer.Manager, headBlock uint32) *Table {
	return &Table{file: recfile.Open(fsm, bufMgr, headBlock)}
}

// HeadBlock reports the table's own record file's head block, so a
// caller (typically a catalog root object) can reopen this table later.
func (t *Table) HeadBlock() uint32 { return t.file.HeadBlock() }

// Add records name as pointing to headBlock. It does not check for an
// existing entry with the same name; callers that need uniqueness should
// call Lookup first.
func (t *Table) Add(name string, headBlock uint32) error {
	buf := make([]byte, len(name)+4)
	copy(buf, name)
	binary.BigEndian.PutUint32(buf[len(name):], headBlock)
	return t.file.Insert(recfile.NewCell(buf))
}

// Lookup returns the head block recorded for name, or ok==false if no
// live (non-deleted) entry matches.
func (t *Table) Lookup(name string) (headBlock uint32, ok bool, err error) {
	cur, err := t.file.Cursor()
	if err != nil {
		return 0, false, err
	}
	for {
		cell, more, err := cur.Next()
		if err != nil {
			return 0, false, err
		}
		if !more {
			return 0, false, nil
		}
		if cell.Deleted() {
			continue
		}
		payload := cell.Payload()
		if len(payload) < 4 {
			continue
		}
		nameBytes := payload[:len(payload)-4]
		if string(nameBytes) == name {
			return binary.BigEndian.Uint32(payload[len(payload)-4:]), true, nil
		}
	}
}

// Save persists the table's record file.
func (t *Table) Save() error { return t.file.Save() }
