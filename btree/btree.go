// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package btree implements the engine's secondary index: a disk-resident
// B-tree mapping variable-length byte keys to row addresses, one node per
// block, with overflow chains for keys too large to fit in a node.
package btree

import (
	"bytes"
	"errors"

	"github.com/go-blockdb/blockdb/bitmap"
	"github.com/go-blockdb/blockdb/buffer"
)

// ErrKeyExists is returned by Insert when the key is already present.
var ErrKeyExists = errors.New("btree: key exists")

// BTree is a B-tree index rooted at a single block.
type BTree struct {
	fsm    *bitmap.Manager
	bufMgr *buffer.Manager
	root   uint32
}

// Init allocates a fresh root block, formats it as an empty leaf, and
// returns a BTree bound to it along with the root's block number (a
// caller that wants to reopen this tree later, e.g. a schema catalog,
// must remember this).
func Init(fsm *bitmap.Manager, bufMgr *buffer.Manager) (*BTree, uint32, error) {
	block, err := fsm.Allocate()
	if err != nil {
		return nil, 0, err
	}
	page, err := bufMgr.GetPage(block)
	if err != nil {
		return nil, 0, err
	}
	formatEmptyLeaf(page.MutableBytes())
	page.Release()
	return &BTree{fsm: fsm, bufMgr: bufMgr, root: block}, block, nil
}

// Open binds to an existing B-tree by its root block number.
func Open(fsm *bitmap.Manager, bufMgr *buffer.Manager, root uint32) *BTree {
	return &BTree{fsm: fsm, bufMgr: bufMgr, root: root}
}

// Root reports the tree's current root block number.
func (t *BTree) Root() uint32 { return t.root }

// Find returns the row address stored for key, or ok==false if absent.
func (t *BTree) Find(key []byte) (addr RowAddress, ok bool, err error) {
	block := t.root
	for {
		page, err := t.bufMgr.GetPage(block)
		if err != nil {
			return RowAddress{}, false, err
		}
		buf := page.Bytes()
		hdr := readNodeHeader(buf)

		if hdr.isLeaf() {
			idx, found, err := t.search(buf, key, true)
			if err != nil {
				page.Release()
				return RowAddress{}, false, err
			}
			if !found {
				page.Release()
				return RowAddress{}, false, nil
			}
			_, _, addr, _ := decodeLeafCell(cellBytesAt(buf, idx))
			page.Release()
			return addr, true, nil
		}

		idx, found, err := t.search(buf, key, false)
		if err != nil {
			page.Release()
			return RowAddress{}, false, err
		}
		if found {
			idx++
		}
		var next uint32
		if idx >= int(hdr.numCells) {
			next = hdr.rightMostChild
		} else {
			_, _, next, _ = decodeInteriorCell(cellBytesAt(buf, idx))
		}
		page.Release()
		block = next
	}
}

// Insert adds key -> addr to the tree, returning ErrKeyExists if key is
// already present.
func (t *BTree) Insert(key []byte, addr RowAddress) error {
	sepKey, rightBlock, err := t.insertInto(t.root, key, addr)
	if err != nil {
		return err
	}
	if rightBlock == 0 {
		return nil
	}

	newRoot, err := t.fsm.Allocate()
	if err != nil {
		return err
	}
	page, err := t.bufMgr.GetPage(newRoot)
	if err != nil {
		return err
	}
	buf := page.MutableBytes()
	nodeHeader{nodeType: nodeTypeInterior, numCells: 0, cellContentStart: uint32(len(buf)), rightMostChild: rightBlock}.writeTo(buf)
	cell := encodeInteriorCell(uint32(len(sepKey)), sepKey, t.root, 0)
	insertCellAt(buf, 0, cell)
	page.Release()

	t.root = newRoot
	return nil
}

// insertInto recursively descends to the leaf owning key, inserts, and
// propagates a split back up as (separatorKey, newRightSiblingBlock).
// rightBlock == 0 means no split occurred and there is nothing to
// propagate; block itself was mutated in place when it is the split's
// left half.
func (t *BTree) insertInto(block uint32, key []byte, addr RowAddress) (sepKey []byte, rightBlock uint32, err error) {
	page, err := t.bufMgr.GetPage(block)
	if err != nil {
		return nil, 0, err
	}
	buf := page.MutableBytes()
	hdr := readNodeHeader(buf)

	if hdr.isLeaf() {
		defer page.Release()
		return t.leafInsert(buf, block, key, addr)
	}

	idx, found, err := t.search(buf, key, false)
	if err != nil {
		page.Release()
		return nil, 0, err
	}
	if found {
		idx++
	}
	isRightMost := idx >= int(hdr.numCells)
	var childBlock uint32
	if isRightMost {
		childBlock = hdr.rightMostChild
	} else {
		_, _, childBlock, _ = decodeInteriorCell(cellBytesAt(buf, idx))
	}
	page.Release()

	childSep, childRight, err := t.insertInto(childBlock, key, addr)
	if err != nil {
		return nil, 0, err
	}
	if childRight == 0 {
		return nil, 0, nil
	}

	page, err = t.bufMgr.GetPage(block)
	if err != nil {
		return nil, 0, err
	}
	defer page.Release()
	buf = page.MutableBytes()

	if isRightMost {
		hdr2 := readNodeHeader(buf)
		hdr2.rightMostChild = childRight
		hdr2.writeTo(buf)
	} else {
		setInteriorChildAt(buf, idx, childRight)
	}

	return t.interiorInsert(buf, block, idx, childSep, childBlock)
}

// leafInsert inserts (key, addr) into the leaf at block (already
// pinned/mutable via buf), splitting if necessary.
func (t *BTree) leafInsert(buf []byte, block uint32, key []byte, addr RowAddress) (sepKey []byte, rightBlock uint32, err error) {
	idx, found, err := t.search(buf, key, true)
	if err != nil {
		return nil, 0, err
	}
	if found {
		return nil, 0, ErrKeyExists
	}

	fixedSize := pointerEntrySize + leafFixedSize
	kind, kept := decideInsert(freeSize(buf), fixedSize, len(key))
	if kind == insertSplit {
		compact(buf)
		kind, kept = decideInsert(freeSize(buf), fixedSize, len(key))
	}

	switch kind {
	case insertNormal:
		insertCellAt(buf, idx, encodeLeafCell(uint32(len(key)), key, addr, 0))
		return nil, 0, nil
	case insertOverflow:
		head, err := t.writeOverflowChain(key[kept:])
		if err != nil {
			return nil, 0, err
		}
		insertCellAt(buf, idx, encodeLeafCell(uint32(len(key)), key[:kept], addr, head))
		return nil, 0, nil
	default:
		return t.splitLeaf(buf, block, key, addr)
	}
}

// splitLeaf splits an overfull leaf, moving cells [mid, numCells) into a
// freshly allocated right sibling, then inserts (key, addr) into whichever
// half it belongs in.
func (t *BTree) splitLeaf(buf []byte, block uint32, key []byte, addr RowAddress) (sepKey []byte, rightBlock uint32, err error) {
	hdr := readNodeHeader(buf)
	n := int(hdr.numCells)
	mid := n / 2

	sep, err := t.cellKeyBytes(buf, mid, true)
	if err != nil {
		return nil, 0, err
	}
	sep = append([]byte(nil), sep...)

	rightBlockNum, err := t.fsm.Allocate()
	if err != nil {
		return nil, 0, err
	}
	rightPage, err := t.bufMgr.GetPage(rightBlockNum)
	if err != nil {
		return nil, 0, err
	}
	rbuf := rightPage.MutableBytes()
	formatEmptyLeaf(rbuf)
	for i := mid; i < n; i++ {
		insertCellAt(rbuf, i-mid, append([]byte(nil), cellBytesAt(buf, i)...))
	}
	rightPage.Release()

	truncateTo(buf, mid)

	if bytes.Compare(key, sep) >= 0 {
		if err := t.insertLeafHalf(rightBlockNum, key, addr); err != nil {
			return nil, 0, err
		}
	} else if err := t.insertIntoLeafBuf(buf, key, addr); err != nil {
		return nil, 0, err
	}

	return sep, rightBlockNum, nil
}

// insertIntoLeafBuf inserts (key, addr) into an already-pinned, already
// split-checked leaf buffer; a freshly split half always has room for at
// least an overflow cell.
func (t *BTree) insertIntoLeafBuf(buf []byte, key []byte, addr RowAddress) error {
	idx, found, err := t.search(buf, key, true)
	if err != nil {
		return err
	}
	if found {
		return ErrKeyExists
	}
	fixedSize := pointerEntrySize + leafFixedSize
	kind, kept := decideInsert(freeSize(buf), fixedSize, len(key))
	switch kind {
	case insertNormal:
		insertCellAt(buf, idx, encodeLeafCell(uint32(len(key)), key, addr, 0))
	default:
		head, err := t.writeOverflowChain(key[kept:])
		if err != nil {
			return err
		}
		insertCellAt(buf, idx, encodeLeafCell(uint32(len(key)), key[:kept], addr, head))
	}
	return nil
}

// insertLeafHalf inserts (key, addr) into a leaf immediately after a
// split; a freshly split half always has room for at least an overflow
// cell since it holds at most half of what fit in the pre-split node.
func (t *BTree) insertLeafHalf(block uint32, key []byte, addr RowAddress) error {
	page, err := t.bufMgr.GetPage(block)
	if err != nil {
		return err
	}
	defer page.Release()
	buf := page.MutableBytes()

	idx, found, err := t.search(buf, key, true)
	if err != nil {
		return err
	}
	if found {
		return ErrKeyExists
	}
	fixedSize := pointerEntrySize + leafFixedSize
	kind, kept := decideInsert(freeSize(buf), fixedSize, len(key))
	switch kind {
	case insertNormal:
		insertCellAt(buf, idx, encodeLeafCell(uint32(len(key)), key, addr, 0))
	default:
		head, err := t.writeOverflowChain(key[kept:])
		if err != nil {
			return err
		}
		insertCellAt(buf, idx, encodeLeafCell(uint32(len(key)), key[:kept], addr, head))
	}
	return nil
}

// interiorInsert inserts a new (childSep, child=leftChild) cell at idx
// into the interior node at block, splitting if necessary.
func (t *BTree) interiorInsert(buf []byte, block uint32, idx int, childSep []byte, leftChild uint32) (sepKey []byte, rightBlock uint32, err error) {
	fixedSize := pointerEntrySize + interiorFixedSize
	kind, kept := decideInsert(freeSize(buf), fixedSize, len(childSep))
	if kind == insertSplit {
		compact(buf)
		kind, kept = decideInsert(freeSize(buf), fixedSize, len(childSep))
	}

	switch kind {
	case insertNormal:
		insertCellAt(buf, idx, encodeInteriorCell(uint32(len(childSep)), childSep, leftChild, 0))
		return nil, 0, nil
	case insertOverflow:
		head, err := t.writeOverflowChain(childSep[kept:])
		if err != nil {
			return nil, 0, err
		}
		insertCellAt(buf, idx, encodeInteriorCell(uint32(len(childSep)), childSep[:kept], leftChild, head))
		return nil, 0, nil
	default:
		return t.splitInterior(buf, block, idx, childSep, leftChild)
	}
}

// splitInterior splits an overfull interior node. The cell at mid is not
// copied to either side: its child becomes the left node's new
// right_most_child (it already owns exactly the key range the left side
// must retain), the right node gets cells [mid+1, numCells) plus the
// original's right_most_child, and mid's key is promoted as the
// separator.
func (t *BTree) splitInterior(buf []byte, block uint32, idx int, childSep []byte, leftChild uint32) (sepKey []byte, rightBlock uint32, err error) {
	hdr := readNodeHeader(buf)
	n := int(hdr.numCells)
	mid := n / 2

	sep, err := t.cellKeyBytes(buf, mid, false)
	if err != nil {
		return nil, 0, err
	}
	sep = append([]byte(nil), sep...)
	_, _, midChild, _ := decodeInteriorCell(cellBytesAt(buf, mid))
	oldRightMost := hdr.rightMostChild

	rightBlockNum, err := t.fsm.Allocate()
	if err != nil {
		return nil, 0, err
	}
	rightPage, err := t.bufMgr.GetPage(rightBlockNum)
	if err != nil {
		return nil, 0, err
	}
	rbuf := rightPage.MutableBytes()
	nodeHeader{nodeType: nodeTypeInterior, numCells: 0, cellContentStart: uint32(len(rbuf)), rightMostChild: oldRightMost}.writeTo(rbuf)
	for i := mid + 1; i < n; i++ {
		insertCellAt(rbuf, i-(mid+1), append([]byte(nil), cellBytesAt(buf, i)...))
	}
	rightPage.Release()

	truncateTo(buf, mid)
	hdr2 := readNodeHeader(buf)
	hdr2.rightMostChild = midChild
	hdr2.writeTo(buf)

	target := block
	targetIdx := idx
	if bytes.Compare(childSep, sep) >= 0 {
		target = rightBlockNum
		targetIdx = idx - (mid + 1)
	}

	if target == block {
		fixedSize := pointerEntrySize + interiorFixedSize
		kind, kept := decideInsert(freeSize(buf), fixedSize, len(childSep))
		switch kind {
		case insertNormal:
			insertCellAt(buf, targetIdx, encodeInteriorCell(uint32(len(childSep)), childSep, leftChild, 0))
		default:
			head, herr := t.writeOverflowChain(childSep[kept:])
			if herr != nil {
				return nil, 0, herr
			}
			insertCellAt(buf, targetIdx, encodeInteriorCell(uint32(len(childSep)), childSep[:kept], leftChild, head))
		}
	} else {
		if err := t.insertInteriorHalf(target, targetIdx, childSep, leftChild); err != nil {
			return nil, 0, err
		}
	}

	return sep, rightBlockNum, nil
}

func (t *BTree) insertInteriorHalf(block uint32, idx int, key []byte, child uint32) error {
	page, err := t.bufMgr.GetPage(block)
	if err != nil {
		return err
	}
	defer page.Release()
	buf := page.MutableBytes()
	fixedSize := pointerEntrySize + interiorFixedSize
	kind, kept := decideInsert(freeSize(buf), fixedSize, len(key))
	switch kind {
	case insertNormal:
		insertCellAt(buf, idx, encodeInteriorCell(uint32(len(key)), key, child, 0))
	default:
		head, err := t.writeOverflowChain(key[kept:])
		if err != nil {
			return err
		}
		insertCellAt(buf, idx, encodeInteriorCell(uint32(len(key)), key[:kept], child, head))
	}
	return nil
}

// All returns every key in the tree in ascending order, by in-order
// traversal. It is meant for tests and diagnostics, not production
// lookups (it pages in the whole tree).
func (t *BTree) All() ([][]byte, error) {
	var out [][]byte
	if err := t.collect(t.root, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *BTree) collect(block uint32, out *[][]byte) error {
	page, err := t.bufMgr.GetPage(block)
	if err != nil {
		return err
	}
	buf := append([]byte(nil), page.Bytes()...)
	page.Release()
	hdr := readNodeHeader(buf)

	if hdr.isLeaf() {
		for i := 0; i < int(hdr.numCells); i++ {
			k, err := t.cellKeyBytes(buf, i, true)
			if err != nil {
				return err
			}
			*out = append(*out, append([]byte(nil), k...))
		}
		return nil
	}

	for i := 0; i < int(hdr.numCells); i++ {
		_, _, child, _ := decodeInteriorCell(cellBytesAt(buf, i))
		if err := t.collect(child, out); err != nil {
			return err
		}
	}
	return t.collect(hdr.rightMostChild, out)
}
