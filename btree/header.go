// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package btree

import "encoding/binary"

const (
	nodeTypeInterior byte = 0x2
	nodeTypeLeaf     byte = 0x5
)

// nodeHeaderSize is node_type:u8 + num_cells:u32 + cell_content_start:u32 +
// right_most_child:u32, present at offset 0 of every node block.
const nodeHeaderSize = 1 + 4 + 4 + 4

// pointerEntrySize is offset:u16 + size:u16.
const pointerEntrySize = 4

type nodeHeader struct {
	nodeType         byte
	numCells         uint32
	cellContentStart uint32
	rightMostChild   uint32
}

func (h nodeHeader) isLeaf() bool { return h.nodeType == nodeTypeLeaf }

func readNodeHeader(buf []byte) nodeHeader {
	return nodeHeader{
		nodeType:         buf[0],
		numCells:         binary.BigEndian.Uint32(buf[1:5]),
		cellContentStart: binary.BigEndian.Uint32(buf[5:9]),
		rightMostChild:   binary.BigEndian.Uint32(buf[9:13]),
	}
}

func (h nodeHeader) writeTo(buf []byte) {
	buf[0] = h.nodeType
	binary.BigEndian.PutUint32(buf[1:5], h.numCells)
	binary.BigEndian.PutUint32(buf[5:9], h.cellContentStart)
	binary.BigEndian.PutUint32(buf[9:13], h.rightMostChild)
}

func pointerOffset(i int) int { return nodeHeaderSize + i*pointerEntrySize }

func readPointer(buf []byte, i int) (offset, size uint16) {
	off := pointerOffset(i)
	return binary.BigEndian.Uint16(buf[off : off+2]), binary.BigEndian.Uint16(buf[off+2 : off+4])
}

func writePointer(buf []byte, i int, offset, size uint16) {
	off := pointerOffset(i)
	binary.BigEndian.PutUint16(buf[off:off+2], offset)
	binary.BigEndian.PutUint16(buf[off+2:off+4], size)
}

// formatEmptyLeaf initializes buf as a fresh, empty leaf node.
func formatEmptyLeaf(buf []byte) {
	nodeHeader{nodeType: nodeTypeLeaf, numCells: 0, cellContentStart: uint32(len(buf))}.writeTo(buf)
}
