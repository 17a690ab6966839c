// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package disk implements a fixed-size block device backed by a single OS
// file. It is the leaf-most layer of the storage engine: everything above
// it only ever moves whole blocks in and out, never partial ones.
package disk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
)

// headerSize is two big-endian uint32s: block size and capacity.
const headerSize = 8

// Sentinel errors returned by ReadBlock/WriteBlock. Fatal to the caller: a
// correct caller never triggers them in normal operation.
var (
	ErrOverCapacity        = errors.New("disk: block number out of range")
	ErrIncorrectBlockSize  = errors.New("disk: write buffer does not match block size")
)

// CorruptHeaderError is returned by Open when the persisted header disagrees
// with the geometry the caller asked to connect with.
type CorruptHeaderError struct {
	WantBlockSize, GotBlockSize uint32
	WantCapacity, GotCapacity   uint32
}

func (e *CorruptHeaderError) Error() string {
	return fmt.Sprintf(
		"disk: corrupt header: want (block=%d, capacity=%d), got (block=%d, capacity=%d)",
		e.WantBlockSize, e.WantCapacity, e.GotBlockSize, e.GotCapacity,
	)
}

// Device is a fixed-size, fixed-geometry collection of equal-size blocks
// persisted in a single file. A Device is safe for concurrent use: one
// mutex serializes all file access, matching the engine's single-writer
// model.
type Device struct {
	mu         sync.Mutex
	file       *os.File
	blockSize  uint32
	capacity   uint32
}

// Create makes a brand new device file at path, writes the header, and
// zero-fills it to Capacity bytes of block data.
func Create(path string, blockSize, capacity uint32) (*Device, error) {
	if capacity%blockSize != 0 {
		return nil, fmt.Errorf("disk: capacity %d is not a multiple of block size %d", capacity, blockSize)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(headerSize) + int64(capacity)); err != nil {
		f.Close()
		return nil, err
	}
	d := &Device{file: f, blockSize: blockSize, capacity: capacity}
	if err := d.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return d, nil
}

// Open connects to an existing device file and verifies its persisted
// header matches the requested geometry. A mismatch is fatal
// (*CorruptHeaderError).
func Open(path string, blockSize, capacity uint32) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	gotBlockSize, gotCapacity, err := readHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if gotBlockSize != blockSize || gotCapacity != capacity {
		f.Close()
		return nil, &CorruptHeaderError{
			WantBlockSize: blockSize, WantCapacity: capacity,
			GotBlockSize: gotBlockSize, GotCapacity: gotCapacity,
		}
	}
	return &Device{file: f, blockSize: blockSize, capacity: capacity}, nil
}

func readHeader(f *os.File) (blockSize, capacity uint32, err error) {
	var buf [headerSize]byte
	if _, err = f.ReadAt(buf[:], 0); err != nil {
		return 0, 0, err
	}
	return binary.BigEndian.Uint32(buf[0:4]), binary.BigEndian.Uint32(buf[4:8]), nil
}

func (d *Device) writeHeader() error {
	var buf [headerSize]byte
	binary.BigEndian.PutUint32(buf[0:4], d.blockSize)
	binary.BigEndian.PutUint32(buf[4:8], d.capacity)
	_, err := d.file.WriteAt(buf[:], 0)
	return err
}

// File exposes the underlying OS file handle for collaborators that need
// OS-level operations outside the block-addressed API (e.g. hole punching).
// Callers must not seek or truncate it; reads/writes still go through
// ReadBlock/WriteBlock.
func (d *Device) File() *os.File { return d.file }

// BlockSize reports the configured block size in bytes.
func (d *Device) BlockSize() uint32 { return d.blockSize }

// Capacity reports the total capacity in bytes.
func (d *Device) Capacity() uint32 { return d.capacity }

// NumBlocks reports the total addressable block count.
func (d *Device) NumBlocks() uint32 { return d.capacity / d.blockSize }

func (d *Device) offset(blockNumber uint32) int64 {
	return int64(headerSize) + int64(blockNumber)*int64(d.blockSize)
}

// ReadBlock returns a freshly allocated copy of block n's bytes.
func (d *Device) ReadBlock(n uint32) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n >= d.NumBlocks() {
		return nil, ErrOverCapacity
	}
	buf := make([]byte, d.blockSize)
	if _, err := d.file.ReadAt(buf, d.offset(n)); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteBlock persists buf as block n. len(buf) must equal BlockSize.
func (d *Device) WriteBlock(n uint32, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if uint32(len(buf)) != d.blockSize {
		return ErrIncorrectBlockSize
	}
	if n >= d.NumBlocks() {
		return ErrOverCapacity
	}
	_, err := d.file.WriteAt(buf, d.offset(n))
	return err
}

// Close releases the underlying file descriptor. It does not flush any
// higher-level caches; callers must save() those first.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.file.Close()
}
