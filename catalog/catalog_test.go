// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package catalog

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/go-blockdb/blockdb/bitmap"
	"github.com/go-blockdb/blockdb/buffer"
	"github.com/go-blockdb/blockdb/disk"
)

func newCatalog(t *testing.T) *Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	dev, err := disk.Create(path, 512, 8192)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { dev.Close() })
	fsm := bitmap.Init(dev)
	bufMgr := buffer.Init(dev, 4096)
	c, _, err := Init(fsm, bufMgr)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestCreateGet(t *testing.T) {
	c := newCatalog(t)
	schema := []byte(`{"columns":["id","name"]}`)
	if err := c.Create("users", schema); err != nil {
		t.Fatal(err)
	}
	got, err := c.Get("users")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, schema) {
		t.Fatalf("got %q, want %q", got, schema)
	}
}

func TestCreateDuplicateFails(t *testing.T) {
	c := newCatalog(t)
	if err := c.Create("users", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := c.Create("users", []byte("v2")); err != ErrSchemaExists {
		t.Fatalf("got %v, want ErrSchemaExists", err)
	}
}

func TestGetMissingFails(t *testing.T) {
	c := newCatalog(t)
	if _, err := c.Get("nope"); err != ErrSchemaNotFound {
		t.Fatalf("got %v, want ErrSchemaNotFound", err)
	}
}
