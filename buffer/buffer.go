// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package buffer implements the engine's buffer manager: a fixed set of
// in-memory frames caching recently used disk blocks, with pinning, dirty
// tracking, and LRU-by-timestamp eviction.
package buffer

import (
	"errors"
	"sync"

	"github.com/cznic/mathutil"

	"github.com/go-blockdb/blockdb/disk"
)

// ErrAllPinned is returned by GetPage when every frame is pinned and no
// victim can be evicted. The caller must release a handle and retry.
var ErrAllPinned = errors.New("buffer: all frames pinned")

// entry is a page-table row: where a resident block lives, its pin/dirty
// state, and its last-access order. This deliberately avoids a
// self-referential linked list of pages; a plain indexed struct has no
// pointers and no cycles to manage.
type entry struct {
	frame     uint32
	pinCount  int
	dirty     bool
	lastAccess uint64
}

// Manager is the fixed-size frame pool plus its page table. It may be
// shared across callers; one mutex serializes the page table and frame
// allocator.
type Manager struct {
	mu sync.Mutex

	dev       *disk.Device
	blockSize uint32
	numFrames uint32

	memory []byte // numFrames * blockSize contiguous bytes

	pageTable  map[uint32]*entry // block number -> entry
	freeFrames []uint32          // stack of free frame numbers
	clock      uint64            // monotonic access counter, avoids float LRU timestamps
}

// Init allocates memoryCapacity bytes of frame storage (memoryCapacity must
// be a multiple of dev.BlockSize()) and binds the manager to dev.
func Init(dev *disk.Device, memoryCapacity uint32) *Manager {
	blockSize := dev.BlockSize()
	numFrames := uint32(mathutil.Max(1, int(memoryCapacity/blockSize)))
	m := &Manager{
		dev:       dev,
		blockSize: blockSize,
		numFrames: numFrames,
		memory:    make([]byte, uint64(numFrames)*uint64(blockSize)),
		pageTable: make(map[uint32]*entry, numFrames),
	}
	for i := uint32(0); i < numFrames; i++ {
		m.freeFrames = append(m.freeFrames, i)
	}
	return m
}

// NumFrames reports the configured frame count.
func (m *Manager) NumFrames() uint32 { return m.numFrames }

// BlockSize reports the size in bytes of every frame/block this manager
// serves, as configured on the underlying device.
func (m *Manager) BlockSize() uint32 { return m.blockSize }

func (m *Manager) frameBytes(frame uint32) []byte {
	lo := uint64(frame) * uint64(m.blockSize)
	hi := lo + uint64(m.blockSize)
	return m.memory[lo:hi]
}

// allocateFrame returns a free frame, or the least-recently-used unpinned
// resident block's frame after writing it back if dirty. Returns
// ErrAllPinned if nothing can be evicted. Caller must hold mu.
func (m *Manager) allocateFrame() (uint32, error) {
	if n := len(m.freeFrames); n > 0 {
		f := m.freeFrames[n-1]
		m.freeFrames = m.freeFrames[:n-1]
		return f, nil
	}

	var victimBlock uint32
	var victim *entry
	var oldest uint64 = ^uint64(0)
	found := false
	for block, e := range m.pageTable {
		if e.pinCount > 0 {
			continue
		}
		if e.lastAccess < oldest {
			oldest = e.lastAccess
			victimBlock = block
			victim = e
			found = true
		}
	}
	if !found {
		return 0, ErrAllPinned
	}

	if victim.dirty {
		if err := m.dev.WriteBlock(victimBlock, m.frameBytes(victim.frame)); err != nil {
			return 0, err
		}
	}
	frame := victim.frame
	delete(m.pageTable, victimBlock)
	return frame, nil
}

// GetPage pins block and returns a handle to its frame, loading it from
// disk on a cache miss.
func (m *Manager) GetPage(block uint32) (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clock++
	if e, ok := m.pageTable[block]; ok {
		e.pinCount++
		e.lastAccess = m.clock
		return &Page{mgr: m, block: block}, nil
	}

	frame, err := m.allocateFrame()
	if err != nil {
		return nil, err
	}
	buf, err := m.dev.ReadBlock(block)
	if err != nil {
		m.freeFrames = append(m.freeFrames, frame)
		return nil, err
	}
	copy(m.frameBytes(frame), buf)
	m.pageTable[block] = &entry{frame: frame, pinCount: 1, lastAccess: m.clock}
	return &Page{mgr: m, block: block}, nil
}

// SavePage writes block back to disk if resident and dirty, clearing its
// dirty bit. A no-op for absent or clean blocks.
func (m *Manager) SavePage(block uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.savePageLocked(block)
}

func (m *Manager) savePageLocked(block uint32) error {
	e, ok := m.pageTable[block]
	if !ok || !e.dirty {
		return nil
	}
	if err := m.dev.WriteBlock(block, m.frameBytes(e.frame)); err != nil {
		return err
	}
	e.dirty = false
	return nil
}

// SaveAll runs SavePage over every resident block. This, or SavePage, is
// the engine's persistence barrier.
func (m *Manager) SaveAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for block := range m.pageTable {
		if err := m.savePageLocked(block); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) unpin(block uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.pageTable[block]
	if !ok {
		return
	}
	e.pinCount--
}

func (m *Manager) markDirty(block uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.pageTable[block]; ok {
		e.dirty = true
	}
}

func (m *Manager) bytesFor(block uint32) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.pageTable[block]
	return m.frameBytes(e.frame)
}
