// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package recfile

// cellHeaderSize is cell_size:u32 + delete_flag:u8.
const cellHeaderSize = 5

// Cell is one variable-length record stored in a File.
type Cell struct {
	payload []byte
	deleted bool
}

// NewCell wraps payload as a fresh, non-deleted cell. The payload is not
// copied; callers must not mutate it afterward.
func NewCell(payload []byte) Cell {
	return Cell{payload: payload}
}

// Payload returns the cell's record bytes.
func (c Cell) Payload() []byte { return c.payload }

// Deleted reports whether the cell's delete flag is set.
func (c Cell) Deleted() bool { return c.deleted }

func (c Cell) size() int { return cellHeaderSize + len(c.payload) }
