// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bitmap implements the engine's free-space manager: a single bit
// per device block, itself persisted at the front of the device.
package bitmap

import (
	"errors"
	"sync"

	"github.com/cznic/fileutil"

	"github.com/go-blockdb/blockdb/disk"
)

// ErrDiskFull is returned by Allocate when every block is taken.
var ErrDiskFull = errors.New("bitmap: disk full")

// Manager owns the free/used bit for every block on a Device, including the
// leading blocks the bitmap itself occupies (which are permanently 1).
type Manager struct {
	mu       sync.Mutex
	dev      *disk.Device
	bits     []byte // one bit per block, bit k of byte i is block 8*i+k
	reserved uint32  // number of leading blocks occupied by the bitmap itself
}

func numBytes(numBlocks uint32) uint32 {
	return (numBlocks + 7) / 8
}

func blocksForBitmap(bitmapBytes, blockSize uint32) uint32 {
	return (bitmapBytes + blockSize - 1) / blockSize
}

// Init formats a fresh bitmap on dev: every bit starts clear except the
// leading blocks the bitmap itself occupies, which are marked permanently
// allocated.
func Init(dev *disk.Device) *Manager {
	nb := numBytes(dev.NumBlocks())
	m := &Manager{
		dev:  dev,
		bits: make([]byte, nb),
	}
	m.reserved = blocksForBitmap(nb, dev.BlockSize())
	for b := uint32(0); b < m.reserved; b++ {
		m.setBit(b)
	}
	return m
}

// Open loads a previously persisted bitmap from the front of dev.
func Open(dev *disk.Device) (*Manager, error) {
	nb := numBytes(dev.NumBlocks())
	m := &Manager{
		dev:  dev,
		bits: make([]byte, nb),
	}
	m.reserved = blocksForBitmap(nb, dev.BlockSize())
	blockSize := dev.BlockSize()
	full := nb / blockSize
	for i := uint32(0); i < full; i++ {
		block, err := dev.ReadBlock(i)
		if err != nil {
			return nil, err
		}
		copy(m.bits[i*blockSize:(i+1)*blockSize], block)
	}
	if rem := nb % blockSize; rem != 0 {
		block, err := dev.ReadBlock(full)
		if err != nil {
			return nil, err
		}
		copy(m.bits[full*blockSize:nb], block[:rem])
	}
	return m, nil
}

func (m *Manager) bitSet(block uint32) bool {
	return m.bits[block/8]&(1<<(block%8)) != 0
}

func (m *Manager) setBit(block uint32) {
	m.bits[block/8] |= 1 << (block % 8)
}

func (m *Manager) clearBit(block uint32) {
	m.bits[block/8] &^= 1 << (block % 8)
}

// Allocate returns the lowest-indexed free block and marks it used.
func (m *Manager) Allocate() (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, b := range m.bits {
		if b == 0xFF {
			continue
		}
		for j := 0; j < 8; j++ {
			if b&(1<<uint(j)) == 0 {
				block := uint32(i*8 + j)
				if block >= m.dev.NumBlocks() {
					return 0, ErrDiskFull
				}
				m.setBit(block)
				return block, nil
			}
		}
	}
	return 0, ErrDiskFull
}

// Deallocate clears block's bit, without verifying the caller actually
// owned it, and advisory-punches a hole at the block's on-disk location.
// PunchHole is a best-effort hint; failures are ignored.
func (m *Manager) Deallocate(block uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearBit(block)

	blockSize := int64(m.dev.BlockSize())
	off := int64(headerOffset) + int64(block)*blockSize
	_ = fileutil.PunchHole(m.dev.File(), off, blockSize)
}

// headerOffset mirrors disk's own (unexported) header size of two u32s;
// it is a duplicated literal and must be kept equal to it by hand.
const headerOffset = 8

// Close writes the bitmap back to the front of the device. There is no
// partial flush: this single write is the bitmap's persistence barrier.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	blockSize := m.dev.BlockSize()
	full := uint32(len(m.bits)) / blockSize
	for i := uint32(0); i < full; i++ {
		if err := m.dev.WriteBlock(i, m.bits[i*blockSize:(i+1)*blockSize]); err != nil {
			return err
		}
	}
	if rem := uint32(len(m.bits)) % blockSize; rem != 0 {
		block := make([]byte, blockSize)
		copy(block, m.bits[full*blockSize:])
		if err := m.dev.WriteBlock(full, block); err != nil {
			return err
		}
	}
	return nil
}

// Stats summarizes a Verify pass.
type Stats struct {
	TotalBlocks uint32
	UsedBlocks  uint32
	FreeBlocks  uint32
	Reserved    uint32
}

// Verify recomputes used/free counts by scanning the live bitmap and
// returns them. It never mutates state and compares the counts against
// nothing itself; it exists purely as a diagnostic.
func (m *Manager) Verify() *Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := m.dev.NumBlocks()
	used := uint32(0)
	for b := uint32(0); b < total; b++ {
		if m.bitSet(b) {
			used++
		}
	}
	return &Stats{
		TotalBlocks: total,
		UsedBlocks:  used,
		FreeBlocks:  total - used,
		Reserved:    m.reserved,
	}
}
