// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bitmap

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/cznic/sortutil"

	"github.com/go-blockdb/blockdb/disk"
)

func newDevice(t *testing.T, blockSize, capacity uint32) *disk.Device {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := disk.Create(path, blockSize, capacity)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestReservedBlocksPermanentlyAllocated(t *testing.T) {
	dev := newDevice(t, 512, 32768)
	m := Init(dev)
	stats := m.Verify()
	if stats.UsedBlocks != stats.Reserved {
		t.Fatalf("expected only reserved blocks used, got used=%d reserved=%d", stats.UsedBlocks, stats.Reserved)
	}
	for b := uint32(0); b < stats.Reserved; b++ {
		if !m.bitSet(b) {
			t.Fatalf("block %d should be permanently allocated", b)
		}
	}
}

func TestAllocateNeverReturnsReservedOrDuplicate(t *testing.T) {
	dev := newDevice(t, 512, 32768)
	m := Init(dev)

	seen := map[uint32]bool{}
	var allocated sortutil.UintSlice
	for i := 0; i < 10; i++ {
		b, err := m.Allocate()
		if err != nil {
			t.Fatal(err)
		}
		if b < m.reserved {
			t.Fatalf("allocate returned reserved block %d", b)
		}
		if seen[uint32(b)] {
			t.Fatalf("allocate returned duplicate block %d", b)
		}
		seen[uint32(b)] = true
		allocated = append(allocated, uint(b))
	}
	sort.Sort(allocated)
	for i := 1; i < len(allocated); i++ {
		if allocated[i] <= allocated[i-1] {
			t.Fatalf("allocated blocks not distinct: %v", allocated)
		}
	}
}

// TestBitmapPersistence exercises allocate/deallocate/close/reopen: a
// reopened free-space manager must return the lowest deallocated block.
func TestBitmapPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	dev, err := disk.Create(path, 512, 32768)
	if err != nil {
		t.Fatal(err)
	}

	m := Init(dev)
	a, err := m.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	c, err := m.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	m.Deallocate(b)
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	dev.Close()

	dev2, err := disk.Open(path, 512, 32768)
	if err != nil {
		t.Fatal(err)
	}
	defer dev2.Close()
	m2, err := Open(dev2)
	if err != nil {
		t.Fatal(err)
	}
	got, err := m2.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	if got != b {
		t.Fatalf("got %d, want lowest free block %d (a=%d c=%d)", got, b, a, c)
	}
}

func TestDiskFull(t *testing.T) {
	dev := newDevice(t, 512, 512*8)
	m := Init(dev)
	for {
		if _, err := m.Allocate(); err != nil {
			if err != ErrDiskFull {
				t.Fatalf("got %v, want ErrDiskFull", err)
			}
			break
		}
	}
}
