// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package recfile implements the engine's record file: an append-ordered
// sequence of variable-length cells stored in a singly linked list of
// blocks, supporting forward iteration and logical deletion. It is
// payload-agnostic; whatever sits above it (a row codec, a files table)
// decides what the cell bytes mean.
package recfile

import (
	"github.com/cznic/mathutil"

	"github.com/go-blockdb/blockdb/bitmap"
	"github.com/go-blockdb/blockdb/buffer"
)

// File is one append-ordered record file, identified by its head block.
type File struct {
	fsm    *bitmap.Manager
	bufMgr *buffer.Manager
	head   uint32
}

// Init allocates a fresh head block and returns a File bound to it, along
// with the head's block number (needed by a caller that wants to remember
// how to Open this file again later, e.g. a files table).
func Init(fsm *bitmap.Manager, bufMgr *buffer.Manager) (*File, uint32, error) {
	block, err := fsm.Allocate()
	if err != nil {
		return nil, 0, err
	}
	page, err := bufMgr.GetPage(block)
	if err != nil {
		return nil, 0, err
	}
	buf := page.MutableBytes()
	fileHeader{cellCount: 0, head: block, tail: block}.writeTo(buf)
	pageHeader{freeSpaceStart: uint32(fileHeaderSize + pageHeaderSize)}.writeTo(buf, true)
	page.Release()
	return &File{fsm: fsm, bufMgr: bufMgr, head: block}, block, nil
}

// Open binds to an existing record file by its head block number.
func Open(fsm *bitmap.Manager, bufMgr *buffer.Manager, headBlock uint32) *File {
	return &File{fsm: fsm, bufMgr: bufMgr, head: headBlock}
}

// HeadBlock reports the file's head block number.
func (f *File) HeadBlock() uint32 { return f.head }

// CellCount reads the live cell count from the head block.
func (f *File) CellCount() (uint64, error) {
	page, err := f.bufMgr.GetPage(f.head)
	if err != nil {
		return 0, err
	}
	defer page.Release()
	return readFileHeader(page.Bytes()).cellCount, nil
}

// Insert appends cell to the file, walking directly to the tail block
// rather than the whole chain. It handles three outcomes:
// the cell fits entirely in the tail (Normal), the tail has room for the
// header and a prefix of the payload (Spill), or the tail has no room even
// for the header (OutOfSpace).
func (f *File) Insert(cell Cell) error {
	headPage, err := f.bufMgr.GetPage(f.head)
	if err != nil {
		return err
	}
	headBuf := headPage.MutableBytes()
	fh := readFileHeader(headBuf)
	firstBlock := fh.tail == f.head

	tailBuf := headBuf
	var tailPage *buffer.Page
	if !firstBlock {
		tailPage, err = f.bufMgr.GetPage(fh.tail)
		if err != nil {
			headPage.Release()
			return err
		}
		tailBuf = tailPage.MutableBytes()
	}
	blockSize := len(tailBuf)
	ph := readPageHeader(tailBuf, firstBlock)
	total := cell.size()
	freeBytes := blockSize - int(ph.freeSpaceStart)

	switch {
	case freeBytes >= total:
		writeCellHeader(tailBuf, int(ph.freeSpaceStart), total, cell.deleted)
		copy(tailBuf[int(ph.freeSpaceStart)+cellHeaderSize:], cell.payload)
		ph.freeSpaceStart += uint32(total)
		ph.writeTo(tailBuf, firstBlock)
		fh.cellCount++
		fh.writeTo(headBuf)

	case freeBytes >= cellHeaderSize:
		kept := mathutil.Min(freeBytes-cellHeaderSize, len(cell.payload))
		writeCellHeader(tailBuf, int(ph.freeSpaceStart), total, cell.deleted)
		copy(tailBuf[int(ph.freeSpaceStart)+cellHeaderSize:], cell.payload[:kept])
		firstNew, lastNew, err := f.writeChain(blockSize, cell.payload[kept:])
		if err != nil {
			if tailPage != nil {
				tailPage.Release()
			}
			headPage.Release()
			return err
		}
		ph.freeSpaceStart = uint32(blockSize)
		ph.next = firstNew
		ph.writeTo(tailBuf, firstBlock)
		fh.tail = lastNew
		fh.cellCount++
		fh.writeTo(headBuf)

	default:
		whole := make([]byte, total)
		writeCellHeader(whole, 0, total, cell.deleted)
		copy(whole[cellHeaderSize:], cell.payload)
		firstNew, lastNew, err := f.writeChain(blockSize, whole)
		if err != nil {
			if tailPage != nil {
				tailPage.Release()
			}
			headPage.Release()
			return err
		}
		ph.next = firstNew
		ph.writeTo(tailBuf, firstBlock)
		fh.tail = lastNew
		fh.cellCount++
		fh.writeTo(headBuf)
	}

	if tailPage != nil {
		tailPage.Release()
	}
	headPage.Release()
	return nil
}

// writeChain allocates as many fresh blocks as needed to hold data, links
// them via each block's "next" field, and returns the first and last
// block numbers in the new chain.
func (f *File) writeChain(blockSize int, data []byte) (first, last uint32, err error) {
	cap := blockSize - pageHeaderSize
	n := (len(data) + cap - 1) / cap
	if n == 0 {
		n = 1
	}
	blocks := make([]uint32, n)
	for i := range blocks {
		blocks[i], err = f.fsm.Allocate()
		if err != nil {
			return 0, 0, err
		}
	}
	for i, blk := range blocks {
		start := i * cap
		end := mathutil.Min(start+cap, len(data))
		chunk := data[start:end]
		page, perr := f.bufMgr.GetPage(blk)
		if perr != nil {
			return 0, 0, perr
		}
		buf := page.MutableBytes()
		copy(buf[pageHeaderSize:], chunk)
		var next uint32
		if i+1 < len(blocks) {
			next = blocks[i+1]
		}
		pageHeader{freeSpaceStart: uint32(pageHeaderSize + len(chunk)), next: next}.writeTo(buf, false)
		page.Release()
	}
	return blocks[0], blocks[len(blocks)-1], nil
}

// Save persists every block reachable from the head, in chain order.
func (f *File) Save() error {
	if err := f.bufMgr.SavePage(f.head); err != nil {
		return err
	}
	page, err := f.bufMgr.GetPage(f.head)
	if err != nil {
		return err
	}
	next := readPageHeader(page.Bytes(), true).next
	page.Release()

	for next != 0 {
		if err := f.bufMgr.SavePage(next); err != nil {
			return err
		}
		p, err := f.bufMgr.GetPage(next)
		if err != nil {
			return err
		}
		next = readPageHeader(p.Bytes(), false).next
		p.Release()
	}
	return nil
}
