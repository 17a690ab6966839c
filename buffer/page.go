// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package buffer

// Page is a scoped handle onto one resident block's frame. It pins the
// block on creation (see Manager.GetPage) and must be released exactly
// once via Release. A Page is not safe for concurrent use and must not
// outlive its Manager.
type Page struct {
	mgr   *Manager
	block uint32

	released bool
}

// Block reports the page's block number.
func (p *Page) Block() uint32 { return p.block }

// Bytes returns a read-only view of the page's BlockSize bytes.
func (p *Page) Bytes() []byte {
	return p.mgr.bytesFor(p.block)
}

// MutableBytes returns a read/write view of the page's BlockSize bytes and
// marks the page dirty. Callers must not retain the returned slice past
// Release.
func (p *Page) MutableBytes() []byte {
	p.mgr.markDirty(p.block)
	return p.mgr.bytesFor(p.block)
}

// Release unpins the page. It is safe to call more than once; only the
// first call has effect.
func (p *Page) Release() {
	if p.released {
		return
	}
	p.released = true
	p.mgr.unpin(p.block)
}
