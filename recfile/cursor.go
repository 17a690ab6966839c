// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package recfile

// Cursor yields a File's cells in insertion order. It does not skip
// deleted cells automatically; a caller that cares must check Deleted()
// itself.
type Cursor struct {
	f         *File
	cellCount uint64
	read      uint64

	block  uint32
	offset int
	isHead bool

	// position of the most recently yielded cell, for Delete.
	curBlock  uint32
	curOffset int
	curIsHead bool
	hasCur    bool
}

// Cursor returns a fresh iterator over f's cells, in insertion order.
func (f *File) Cursor() (*Cursor, error) {
	cc, err := f.CellCount()
	if err != nil {
		return nil, err
	}
	return &Cursor{
		f:         f,
		cellCount: cc,
		block:     f.head,
		offset:    fileHeaderSize + pageHeaderSize,
		isHead:    true,
	}, nil
}

// Next returns the next cell, or ok==false at end of stream.
func (c *Cursor) Next() (cell Cell, ok bool, err error) {
	if c.read >= c.cellCount {
		return Cell{}, false, nil
	}
	c.curBlock, c.curOffset, c.curIsHead = c.block, c.offset, c.isHead
	c.hasCur = true

	cell, nextBlock, nextOffset, nextIsHead, err := c.readCellAt(c.block, c.offset, c.isHead)
	if err != nil {
		return Cell{}, false, err
	}
	c.read++
	c.block, c.offset, c.isHead = nextBlock, nextOffset, nextIsHead
	return cell, true, nil
}

// Delete flips the delete flag of the most recently yielded cell and
// decrements the file's cell count. The cell stays on disk; callers that
// don't want to see it again must filter with Deleted().
func (c *Cursor) Delete() error {
	if !c.hasCur {
		return nil
	}
	page, err := c.f.bufMgr.GetPage(c.curBlock)
	if err != nil {
		return err
	}
	buf := page.MutableBytes()
	size, _ := readCellHeader(buf, c.curOffset)
	writeCellHeader(buf, c.curOffset, size, true)
	page.Release()

	headPage, err := c.f.bufMgr.GetPage(c.f.head)
	if err != nil {
		return err
	}
	headBuf := headPage.MutableBytes()
	fh := readFileHeader(headBuf)
	if fh.cellCount > 0 {
		fh.cellCount--
	}
	fh.writeTo(headBuf)
	headPage.Release()
	return nil
}

// readCellAt reads the cell starting at (block, offset), following the
// block chain if the payload spills past the block boundary, and returns
// the position immediately following it.
func (c *Cursor) readCellAt(block uint32, offset int, isHead bool) (Cell, uint32, int, bool, error) {
	page, err := c.f.bufMgr.GetPage(block)
	if err != nil {
		return Cell{}, 0, 0, false, err
	}
	buf := page.Bytes()
	blockSize := len(buf)
	cellSize, deleted := readCellHeader(buf, offset)
	payloadLen := cellSize - cellHeaderSize
	avail := blockSize - (offset + cellHeaderSize)
	ph := readPageHeader(buf, isHead)

	if avail >= payloadLen {
		payload := append([]byte(nil), buf[offset+cellHeaderSize:offset+cellHeaderSize+payloadLen]...)
		page.Release()
		endOffset := offset + cellHeaderSize + payloadLen
		nb, no, nh := advancePosition(block, endOffset, isHead, ph)
		return Cell{payload: payload, deleted: deleted}, nb, no, nh, nil
	}

	payload := make([]byte, 0, payloadLen)
	payload = append(payload, buf[offset+cellHeaderSize:blockSize]...)
	remaining := payloadLen - avail
	next := ph.next
	page.Release()

	var endBlock uint32
	var endOffset int
	var endHeader pageHeader
	curBlock := next
	for remaining > 0 {
		p, err := c.f.bufMgr.GetPage(curBlock)
		if err != nil {
			return Cell{}, 0, 0, false, err
		}
		b := p.Bytes()
		chunkCap := len(b) - pageHeaderSize
		take := remaining
		if take > chunkCap {
			take = chunkCap
		}
		payload = append(payload, b[pageHeaderSize:pageHeaderSize+take]...)
		remaining -= take
		ph2 := readPageHeader(b, false)
		if remaining == 0 {
			endBlock = curBlock
			endOffset = pageHeaderSize + take
			endHeader = ph2
		}
		nextBlock := ph2.next
		p.Release()
		curBlock = nextBlock
	}

	nb, no, nh := advancePosition(endBlock, endOffset, false, endHeader)
	return Cell{payload: payload, deleted: deleted}, nb, no, nh, nil
}

// advancePosition decides whether the next cell starts right after offset
// in the same block, or at the head of ph.next because the block's live
// region (free_space_start) has been exhausted.
func advancePosition(block uint32, offset int, isHead bool, ph pageHeader) (uint32, int, bool) {
	if uint32(offset) >= ph.freeSpaceStart {
		return ph.next, pageHeaderSize, false
	}
	return block, offset, isHead
}
