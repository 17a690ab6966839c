// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package btree

import (
	"bytes"
	"encoding/binary"
)

type insertKind int

const (
	insertNormal insertKind = iota
	insertOverflow
	insertSplit
)

// freeSize is the distance between the end of the cell-pointer array and
// the start of live cell content.
func freeSize(buf []byte) int {
	hdr := readNodeHeader(buf)
	return int(hdr.cellContentStart) - (nodeHeaderSize + int(hdr.numCells)*pointerEntrySize)
}

// decideInsert classifies how a cell of the given key length should be
// added to a node with free bytes of room, given fixedSize (the cell's
// fixed-field width, including the pointer-array entry it will also
// consume). Overflow is preferred over Split whenever the node has room
// for the fixed fields, even with zero kept key bytes.
func decideInsert(free, fixedSize, keySize int) (kind insertKind, kept int) {
	if free >= fixedSize+keySize {
		return insertNormal, keySize
	}
	if free >= fixedSize {
		return insertOverflow, free - fixedSize
	}
	return insertSplit, 0
}

func cellBytesAt(buf []byte, i int) []byte {
	off, size := readPointer(buf, i)
	return buf[off : off+size]
}

// cellKeyBytes returns the full key stored in cell i, following the
// overflow chain if the in-node prefix doesn't hold the whole thing.
func (t *BTree) cellKeyBytes(buf []byte, i int, isLeaf bool) ([]byte, error) {
	cell := cellBytesAt(buf, i)
	var keySize uint32
	var kept []byte
	var overflowHead uint32
	if isLeaf {
		keySize, kept, _, overflowHead = decodeLeafCell(cell)
	} else {
		keySize, kept, _, overflowHead = decodeInteriorCell(cell)
	}
	if overflowHead == 0 {
		return kept, nil
	}
	tail, err := t.readOverflowChain(overflowHead, int(keySize)-len(kept))
	if err != nil {
		return nil, err
	}
	full := make([]byte, 0, keySize)
	full = append(full, kept...)
	full = append(full, tail...)
	return full, nil
}

// search performs a binary search of buf's cell-pointer array for key,
// returning the matching index (found=true) or the insertion point
// (found=false) such that every cell before idx sorts strictly less than
// key and every cell from idx onward sorts >= key.
func (t *BTree) search(buf []byte, key []byte, isLeaf bool) (idx int, found bool, err error) {
	hdr := readNodeHeader(buf)
	lo, hi := 0, int(hdr.numCells)
	for lo < hi {
		mid := (lo + hi) / 2
		k, err := t.cellKeyBytes(buf, mid, isLeaf)
		if err != nil {
			return 0, false, err
		}
		switch bytes.Compare(key, k) {
		case 0:
			return mid, true, nil
		case -1:
			hi = mid
		default:
			lo = mid + 1
		}
	}
	return lo, false, nil
}

// insertCellAt writes cell into buf's content region and inserts a new
// pointer-array entry at idx, shifting later entries right. The caller
// must have already confirmed enough free space.
func insertCellAt(buf []byte, idx int, cell []byte) {
	hdr := readNodeHeader(buf)
	newOffset := hdr.cellContentStart - uint32(len(cell))
	copy(buf[newOffset:int(newOffset)+len(cell)], cell)

	for i := int(hdr.numCells); i > idx; i-- {
		off, size := readPointer(buf, i-1)
		writePointer(buf, i, off, size)
	}
	writePointer(buf, idx, uint16(newOffset), uint16(len(cell)))

	hdr.numCells++
	hdr.cellContentStart = newOffset
	hdr.writeTo(buf)
}

// setInteriorChildAt overwrites only the child-pointer field of the
// interior cell at idx, leaving its key and overflow head untouched.
func setInteriorChildAt(buf []byte, idx int, child uint32) {
	off, size := readPointer(buf, idx)
	cell := buf[off : off+size]
	keptLen := len(cell) - interiorFixedSize
	cpOff := int(off) + 4 + keptLen
	binary.BigEndian.PutUint32(buf[cpOff:cpOff+4], child)
}

// compact repacks live cell content toward the end of the block in
// pointer-array order, eliminating any holes left by prior splits, and
// recomputes cell_content_start.
func compact(buf []byte) {
	hdr := readNodeHeader(buf)
	n := int(hdr.numCells)
	saved := make([][]byte, n)
	for i := 0; i < n; i++ {
		saved[i] = append([]byte(nil), cellBytesAt(buf, i)...)
	}
	cursor := uint32(len(buf))
	for i := 0; i < n; i++ {
		cursor -= uint32(len(saved[i]))
		copy(buf[cursor:int(cursor)+len(saved[i])], saved[i])
		writePointer(buf, i, uint16(cursor), uint16(len(saved[i])))
	}
	hdr.cellContentStart = cursor
	hdr.writeTo(buf)
}

// truncateTo shrinks buf's live cell count to n, recomputing
// cell_content_start as the minimum occupied offset among the surviving
// cells.
func truncateTo(buf []byte, n int) {
	hdr := readNodeHeader(buf)
	minOff := uint32(len(buf))
	for i := 0; i < n; i++ {
		off, _ := readPointer(buf, i)
		if off < minOff {
			minOff = off
		}
	}
	hdr.numCells = uint32(n)
	hdr.cellContentStart = minOff
	hdr.writeTo(buf)
}
