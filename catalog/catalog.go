// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package catalog is a thin client of the record file and files table:
// it stores opaque schema blobs under a name and hands them back
// unchanged. It has no notion of tables, columns, or types; whatever
// layer sits above (a row codec, a query planner) owns that meaning.
package catalog

import (
	"errors"

	"github.com/go-blockdb/blockdb/bitmap"
	"github.com/go-blockdb/blockdb/buffer"
	"github.com/go-blockdb/blockdb/filestable"
	"github.com/go-blockdb/blockdb/recfile"
)

// ErrSchemaExists is returned by Create when name is already registered.
var ErrSchemaExists = errors.New("catalog: schema exists")

// ErrSchemaNotFound is returned by Get when name has no registered schema.
var ErrSchemaNotFound = errors.New("catalog: schema not found")

// Catalog stores named schema blobs, each as the single cell of its own
// record file, with the record file's head block registered in a files
// table keyed by name.
type Catalog struct {
	fsm    *bitmap.Manager
	bufMgr *buffer.Manager
	names  *filestable.Table
}

// Init creates a fresh, empty catalog.
func Init(fsm *bitmap.Manager, bufMgr *buffer.Manager) (*Catalog, uint32, error) {
	names, head, err := filestable.Init(fsm, bufMgr)
	if err != nil {
		return nil, 0, err
	}
	return &Catalog{fsm: fsm, bufMgr: bufMgr, names: names}, head, nil
}

// Open binds to an existing catalog by its files table's head block.
func Open(fsm *bitmap.Manager, bufMgr *buffer.Manager, namesHead uint32) *Catalog {
	return &Catalog{fsm: fsm, bufMgr: bufMgr, names: filestable.Open(fsm, bufMgr, namesHead)}
}

// Create registers a new schema blob under name.
func (c *Catalog) Create(name string, schema []byte) error {
	if _, ok, err := c.names.Lookup(name); err != nil {
		return err
	} else if ok {
		return ErrSchemaExists
	}

	f, head, err := recfile.Init(c.fsm, c.bufMgr)
	if err != nil {
		return err
	}
	if err := f.Insert(recfile.NewCell(schema)); err != nil {
		return err
	}
	return c.names.Add(name, head)
}

// Get returns the schema blob registered under name.
func (c *Catalog) Get(name string) ([]byte, error) {
	head, ok, err := c.names.Lookup(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSchemaNotFound
	}

	f := recfile.Open(c.fsm, c.bufMgr, head)
	cur, err := f.Cursor()
	if err != nil {
		return nil, err
	}
	cell, more, err := cur.Next()
	if err != nil {
		return nil, err
	}
	if !more {
		return nil, ErrSchemaNotFound
	}
	return cell.Payload(), nil
}

// Save persists the catalog's own directory; schema record files created
// via Create are saved independently.
func (c *Catalog) Save() error { return c.names.Save() }
