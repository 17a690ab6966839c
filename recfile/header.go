// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package recfile

import "encoding/binary"

// fileHeaderSize is cell_count:u64 + head_block:u32 + tail_block:u32,
// present only at offset 0 of the head block.
const fileHeaderSize = 16

// pageHeaderSize is free_space_start:u32 + next:u32, present in every
// block (after the fileHeader in the head block, at offset 0 elsewhere).
const pageHeaderSize = 8

func pageHeaderOffset(isHead bool) int {
	if isHead {
		return fileHeaderSize
	}
	return 0
}

type fileHeader struct {
	cellCount uint64
	head      uint32
	tail      uint32
}

func readFileHeader(buf []byte) fileHeader {
	return fileHeader{
		cellCount: binary.BigEndian.Uint64(buf[0:8]),
		head:      binary.BigEndian.Uint32(buf[8:12]),
		tail:      binary.BigEndian.Uint32(buf[12:16]),
	}
}

func (h fileHeader) writeTo(buf []byte) {
	binary.BigEndian.PutUint64(buf[0:8], h.cellCount)
	binary.BigEndian.PutUint32(buf[8:12], h.head)
	binary.BigEndian.PutUint32(buf[12:16], h.tail)
}

type pageHeader struct {
	freeSpaceStart uint32
	next           uint32
}

func readPageHeader(buf []byte, isHead bool) pageHeader {
	off := pageHeaderOffset(isHead)
	return pageHeader{
		freeSpaceStart: binary.BigEndian.Uint32(buf[off : off+4]),
		next:           binary.BigEndian.Uint32(buf[off+4 : off+8]),
	}
}

func (h pageHeader) writeTo(buf []byte, isHead bool) {
	off := pageHeaderOffset(isHead)
	binary.BigEndian.PutUint32(buf[off:off+4], h.freeSpaceStart)
	binary.BigEndian.PutUint32(buf[off+4:off+8], h.next)
}

func writeCellHeader(buf []byte, offset, cellSize int, deleted bool) {
	binary.BigEndian.PutUint32(buf[offset:offset+4], uint32(cellSize))
	if deleted {
		buf[offset+4] = 1
	} else {
		buf[offset+4] = 0
	}
}

func readCellHeader(buf []byte, offset int) (cellSize int, deleted bool) {
	cellSize = int(binary.BigEndian.Uint32(buf[offset : offset+4]))
	deleted = buf[offset+4] != 0
	return
}
