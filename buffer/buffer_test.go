// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package buffer

import (
	"path/filepath"
	"testing"

	"github.com/go-blockdb/blockdb/disk"
)

func newManager(t *testing.T, blockSize, capacity, memCapacity uint32) (*disk.Device, *Manager) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	dev, err := disk.Create(path, blockSize, capacity)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { dev.Close() })
	return dev, Init(dev, memCapacity)
}

func TestGetPageCacheMissAndHit(t *testing.T) {
	_, m := newManager(t, 512, 4096, 512*4)

	p, err := m.GetPage(0)
	if err != nil {
		t.Fatal(err)
	}
	buf := p.MutableBytes()
	buf[0] = 42
	p.Release()

	p2, err := m.GetPage(0)
	if err != nil {
		t.Fatal(err)
	}
	if got := p2.Bytes()[0]; got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
	p2.Release()
}

func TestAllPinnedWhenFramesExhausted(t *testing.T) {
	_, m := newManager(t, 512, 512*8, 512*2)

	p0, err := m.GetPage(0)
	if err != nil {
		t.Fatal(err)
	}
	p1, err := m.GetPage(1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetPage(2); err != ErrAllPinned {
		t.Fatalf("got %v, want ErrAllPinned", err)
	}
	p0.Release()
	p2, err := m.GetPage(2)
	if err != nil {
		t.Fatalf("expected success after release, got %v", err)
	}
	p1.Release()
	p2.Release()
}

func TestLRUEviction(t *testing.T) {
	_, m := newManager(t, 512, 512*8, 512*2)

	p0, err := m.GetPage(0)
	if err != nil {
		t.Fatal(err)
	}
	p0.MutableBytes()[0] = 0xAA
	p0.Release()

	p1, err := m.GetPage(1)
	if err != nil {
		t.Fatal(err)
	}
	p1.Release()

	// block 0 is now the LRU unpinned resident entry; loading block 2
	// must evict it (and flush the dirty write) rather than block 1.
	p2, err := m.GetPage(2)
	if err != nil {
		t.Fatal(err)
	}
	p2.Release()

	if _, ok := m.pageTable[0]; ok {
		t.Fatal("block 0 should have been evicted")
	}
	if _, ok := m.pageTable[1]; !ok {
		t.Fatal("block 1 should still be resident")
	}

	p0Again, err := m.GetPage(0)
	if err != nil {
		t.Fatal(err)
	}
	if got := p0Again.Bytes()[0]; got != 0xAA {
		t.Fatalf("evicted dirty page lost its write: got %d, want 0xAA", got)
	}
	p0Again.Release()
}

func TestResidentCountNeverExceedsFrameCount(t *testing.T) {
	_, m := newManager(t, 512, 512*16, 512*3)
	for i := uint32(0); i < 10; i++ {
		p, err := m.GetPage(i)
		if err != nil {
			t.Fatal(err)
		}
		p.Release()
		if len(m.pageTable) > int(m.NumFrames()) {
			t.Fatalf("resident count %d exceeds frame count %d", len(m.pageTable), m.NumFrames())
		}
	}
}
