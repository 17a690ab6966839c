// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package recfile

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/go-blockdb/blockdb/bitmap"
	"github.com/go-blockdb/blockdb/buffer"
	"github.com/go-blockdb/blockdb/disk"
)

func newFile(t *testing.T, blockSize, capacity, memCapacity uint32) (*bitmap.Manager, *buffer.Manager, *File, uint32) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	dev, err := disk.Create(path, blockSize, capacity)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { dev.Close() })

	fsm := bitmap.Init(dev)
	bufMgr := buffer.Init(dev, memCapacity)
	f, head, err := Init(fsm, bufMgr)
	if err != nil {
		t.Fatal(err)
	}
	return fsm, bufMgr, f, head
}

func payload(b byte, n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = b
	}
	return p
}

// TestRecordFileSpill inserts a payload that fits wholly in the tail
// block followed by one that must spill its tail into a freshly
// allocated block, then checks the cursor reconstructs both unchanged.
func TestRecordFileSpill(t *testing.T) {
	_, _, f, _ := newFile(t, 512, 32768, 8192)

	first := payload(0xAA, 400)
	second := payload(0xBB, 200)

	if err := f.Insert(NewCell(first)); err != nil {
		t.Fatal(err)
	}
	if err := f.Insert(NewCell(second)); err != nil {
		t.Fatal(err)
	}

	cc, err := f.CellCount()
	if err != nil {
		t.Fatal(err)
	}
	if cc != 2 {
		t.Fatalf("cell count = %d, want 2", cc)
	}

	cur, err := f.Cursor()
	if err != nil {
		t.Fatal(err)
	}

	cell, ok, err := cur.Next()
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected first cell")
	}
	if !bytes.Equal(cell.Payload(), first) {
		t.Fatalf("first payload mismatch: got %d bytes", len(cell.Payload()))
	}

	cell, ok, err = cur.Next()
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected second cell")
	}
	if !bytes.Equal(cell.Payload(), second) {
		t.Fatalf("second payload mismatch: got %d bytes", len(cell.Payload()))
	}

	_, ok, err = cur.Next()
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected end of stream")
	}
}

func TestRepeatedSpillInsertsRoundTrip(t *testing.T) {
	_, _, f, _ := newFile(t, 512, 65536, 16384)

	for i := 0; i < 5; i++ {
		p := payload(byte(i), 500)
		if err := f.Insert(NewCell(p)); err != nil {
			t.Fatal(err)
		}
	}

	cur, err := f.Cursor()
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		cell, ok, err := cur.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("expected cell %d", i)
		}
		want := payload(byte(i), 500)
		if !bytes.Equal(cell.Payload(), want) {
			t.Fatalf("cell %d payload mismatch", i)
		}
	}
	if _, ok, _ := cur.Next(); ok {
		t.Fatal("expected end of stream")
	}
}

func TestCursorDeleteFlipsFlagAndDecrementsCount(t *testing.T) {
	_, _, f, _ := newFile(t, 512, 32768, 8192)

	if err := f.Insert(NewCell(payload(1, 50))); err != nil {
		t.Fatal(err)
	}
	if err := f.Insert(NewCell(payload(2, 50))); err != nil {
		t.Fatal(err)
	}

	cur, err := f.Cursor()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok, err := cur.Next(); err != nil || !ok {
		t.Fatal("expected first cell")
	}
	if err := cur.Delete(); err != nil {
		t.Fatal(err)
	}

	cc, err := f.CellCount()
	if err != nil {
		t.Fatal(err)
	}
	if cc != 1 {
		t.Fatalf("cell count after delete = %d, want 1", cc)
	}

	cur2, err := f.Cursor()
	if err != nil {
		t.Fatal(err)
	}
	cell, ok, err := cur2.Next()
	if err != nil || !ok {
		t.Fatal("expected the (still physically present) first cell")
	}
	if !cell.Deleted() {
		t.Fatal("expected first cell's delete flag to be set")
	}
}

// TestSaveReopenRoundTrip inserts three payloads, saves, reopens the
// device fresh, and reads them back unchanged (the files-table lookup
// that would locate this file by name is exercised separately in
// package filestable).
func TestSaveReopenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	dev, err := disk.Create(path, 512, 32768)
	if err != nil {
		t.Fatal(err)
	}

	fsm := bitmap.Init(dev)
	bufMgr := buffer.Init(dev, 8192)
	f, head, err := Init(fsm, bufMgr)
	if err != nil {
		t.Fatal(err)
	}

	payloads := [][]byte{
		payload(0x11, 100),
		payload(0x22, 300),
		payload(0x33, 50),
	}
	for _, p := range payloads {
		if err := f.Insert(NewCell(p)); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.Save(); err != nil {
		t.Fatal(err)
	}
	if err := fsm.Close(); err != nil {
		t.Fatal(err)
	}
	if err := dev.Close(); err != nil {
		t.Fatal(err)
	}

	dev2, err := disk.Open(path, 512, 32768)
	if err != nil {
		t.Fatal(err)
	}
	defer dev2.Close()
	fsm2, err := bitmap.Open(dev2)
	if err != nil {
		t.Fatal(err)
	}
	bufMgr2 := buffer.Init(dev2, 8192)
	f2 := Open(fsm2, bufMgr2, head)

	cur, err := f2.Cursor()
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range payloads {
		cell, ok, err := cur.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("expected payload %d after reopen", i)
		}
		if !bytes.Equal(cell.Payload(), want) {
			t.Fatalf("payload %d mismatch after reopen", i)
		}
	}
	if _, ok, _ := cur.Next(); ok {
		t.Fatal("expected end of stream after reopen")
	}
}
