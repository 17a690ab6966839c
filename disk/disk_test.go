// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package disk

import (
	"os"
	"path/filepath"
	"testing"
)

func tempPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "disk.img")
}

func TestCreateConnect(t *testing.T) {
	path := tempPath(t)
	d, err := Create(path, 512, 1024)
	if err != nil {
		t.Fatal(err)
	}
	d.Close()

	d2, err := Open(path, 512, 1024)
	if err != nil {
		t.Fatal(err)
	}
	defer d2.Close()
}

func TestRoundTrip(t *testing.T) {
	path := tempPath(t)
	d, err := Create(path, 512, 1024)
	if err != nil {
		t.Fatal(err)
	}

	b0 := make([]byte, 512)
	b0[0] = 1
	if err := d.WriteBlock(0, b0); err != nil {
		t.Fatal(err)
	}
	b1 := make([]byte, 512)
	b1[0] = 2
	if err := d.WriteBlock(1, b1); err != nil {
		t.Fatal(err)
	}
	d.Close()

	d2, err := Open(path, 512, 1024)
	if err != nil {
		t.Fatal(err)
	}
	defer d2.Close()

	got, err := d2.ReadBlock(0)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 1 {
		t.Fatalf("block 0: got %d, want 1", got[0])
	}

	got, err = d2.ReadBlock(1)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 2 {
		t.Fatalf("block 1: got %d, want 2", got[0])
	}

	if _, err := d2.ReadBlock(2); err != ErrOverCapacity {
		t.Fatalf("got %v, want ErrOverCapacity", err)
	}
}

func TestWrongBlockSize(t *testing.T) {
	path := tempPath(t)
	d, err := Create(path, 512, 1024)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if err := d.WriteBlock(0, make([]byte, 256)); err != ErrIncorrectBlockSize {
		t.Fatalf("got %v, want ErrIncorrectBlockSize", err)
	}
	if err := d.WriteBlock(0, make([]byte, 1024)); err != ErrIncorrectBlockSize {
		t.Fatalf("got %v, want ErrIncorrectBlockSize", err)
	}
}

func TestCorruptHeader(t *testing.T) {
	path := tempPath(t)
	d, err := Create(path, 512, 1024)
	if err != nil {
		t.Fatal(err)
	}
	d.Close()

	if _, err := Open(path, 256, 1024); err == nil {
		t.Fatal("expected error on mismatched block size")
	} else if _, ok := err.(*CorruptHeaderError); !ok {
		t.Fatalf("got %T, want *CorruptHeaderError", err)
	}
}

func TestCreateRejectsCapacityNotMultipleOfBlockSize(t *testing.T) {
	path := tempPath(t)
	if _, err := Create(path, 500, 1024); err == nil {
		t.Fatal("expected error: capacity not a multiple of block size")
	}
	os.Remove(path)
}
