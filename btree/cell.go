// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package btree

import "encoding/binary"

// RowAddress identifies a record file cell: its head block and the byte
// offset of the cell within the file's block chain.
type RowAddress struct {
	Page uint32
	Off  uint32
}

// Fixed cell sizes, excluding the variable-length in-node key prefix:
// leaf cells carry key_size + row_address + overflow_head, interior
// cells carry key_size + child_pointer + overflow_head.
const (
	leafFixedSize     = 4 + 8 + 4
	interiorFixedSize = 4 + 4 + 4
)

func encodeLeafCell(fullKeySize uint32, kept []byte, addr RowAddress, overflowHead uint32) []byte {
	buf := make([]byte, leafFixedSize+len(kept))
	binary.BigEndian.PutUint32(buf[0:4], fullKeySize)
	copy(buf[4:4+len(kept)], kept)
	off := 4 + len(kept)
	binary.BigEndian.PutUint32(buf[off:off+4], addr.Page)
	binary.BigEndian.PutUint32(buf[off+4:off+8], addr.Off)
	binary.BigEndian.PutUint32(buf[off+8:off+12], overflowHead)
	return buf
}

func decodeLeafCell(cell []byte) (fullKeySize uint32, kept []byte, addr RowAddress, overflowHead uint32) {
	fullKeySize = binary.BigEndian.Uint32(cell[0:4])
	keptLen := len(cell) - leafFixedSize
	kept = cell[4 : 4+keptLen]
	off := 4 + keptLen
	addr = RowAddress{
		Page: binary.BigEndian.Uint32(cell[off : off+4]),
		Off:  binary.BigEndian.Uint32(cell[off+4 : off+8]),
	}
	overflowHead = binary.BigEndian.Uint32(cell[off+8 : off+12])
	return
}

func encodeInteriorCell(fullKeySize uint32, kept []byte, child uint32, overflowHead uint32) []byte {
	buf := make([]byte, interiorFixedSize+len(kept))
	binary.BigEndian.PutUint32(buf[0:4], fullKeySize)
	copy(buf[4:4+len(kept)], kept)
	off := 4 + len(kept)
	binary.BigEndian.PutUint32(buf[off:off+4], child)
	binary.BigEndian.PutUint32(buf[off+4:off+8], overflowHead)
	return buf
}

func decodeInteriorCell(cell []byte) (fullKeySize uint32, kept []byte, child uint32, overflowHead uint32) {
	fullKeySize = binary.BigEndian.Uint32(cell[0:4])
	keptLen := len(cell) - interiorFixedSize
	kept = cell[4 : 4+keptLen]
	off := 4 + keptLen
	child = binary.BigEndian.Uint32(cell[off : off+4])
	overflowHead = binary.BigEndian.Uint32(cell[off+4 : off+8])
	return
}

// overflowHeaderSize is the u32 "next" pointer at the start of every
// overflow block; the remainder of the block holds key-chunk bytes.
const overflowHeaderSize = 4

// writeOverflowChain allocates as many overflow blocks as needed to hold
// data and links them via each block's leading "next" pointer, returning
// the head block number.
func (t *BTree) writeOverflowChain(data []byte) (head uint32, err error) {
	blockSize := int(t.bufMgr.BlockSize())
	cap := blockSize - overflowHeaderSize
	n := (len(data) + cap - 1) / cap
	if n == 0 {
		return 0, nil
	}
	blocks := make([]uint32, n)
	for i := range blocks {
		blocks[i], err = t.fsm.Allocate()
		if err != nil {
			return 0, err
		}
	}
	for i, blk := range blocks {
		start := i * cap
		end := start + cap
		if end > len(data) {
			end = len(data)
		}
		page, perr := t.bufMgr.GetPage(blk)
		if perr != nil {
			return 0, perr
		}
		buf := page.MutableBytes()
		var next uint32
		if i+1 < len(blocks) {
			next = blocks[i+1]
		}
		binary.BigEndian.PutUint32(buf[0:4], next)
		copy(buf[overflowHeaderSize:], data[start:end])
		page.Release()
	}
	return blocks[0], nil
}

// readOverflowChain reads totalLen bytes starting at the head of an
// overflow chain.
func (t *BTree) readOverflowChain(head uint32, totalLen int) ([]byte, error) {
	out := make([]byte, 0, totalLen)
	block := head
	for len(out) < totalLen && block != 0 {
		page, err := t.bufMgr.GetPage(block)
		if err != nil {
			return nil, err
		}
		buf := page.Bytes()
		next := binary.BigEndian.Uint32(buf[0:4])
		remaining := totalLen - len(out)
		chunkCap := len(buf) - overflowHeaderSize
		take := remaining
		if take > chunkCap {
			take = chunkCap
		}
		out = append(out, buf[overflowHeaderSize:overflowHeaderSize+take]...)
		page.Release()
		block = next
	}
	return out, nil
}
