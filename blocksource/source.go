// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package blocksource implements the read abstraction described in
// SPEC_FULL.md §2 item 3: random access over a byte range with an
// effective "size" and block-sized reads. Implementations may be backed by
// an in-memory buffer, a file, or a memory-mapped file.
package blocksource

import (
	rerrors "github.com/reftable-go/reftable/errors"
)

// Source is a random-access byte range. Implementations must be safe for
// concurrent ReadAt calls (SPEC_FULL.md §5): distinct cursors may read
// concurrently provided the source permits it.
type Source interface {
	// Size returns the total addressable length of the source.
	Size() int64
	// ReadAt reads len(buf) bytes starting at off. Short reads are errors,
	// matching io.ReaderAt's contract.
	ReadAt(buf []byte, off int64) error
	// Close releases any resources. Readers do not call Close on their
	// own (SPEC_FULL.md §5); callers that own the source do.
	Close() error
}

// Memory is an in-memory Source backed by a byte slice, the canonical
// block source used by tests and by compaction of small tables.
type Memory struct {
	data []byte
}

// NewMemory wraps data (not copied) as a Source.
func NewMemory(data []byte) *Memory { return &Memory{data: data} }

func (m *Memory) Size() int64 { return int64(len(m.data)) }

func (m *Memory) ReadAt(buf []byte, off int64) error {
	if off < 0 || off+int64(len(buf)) > int64(len(m.data)) {
		return rerrors.IO(nil, "reftable: short read at offset %d (len %d) from %d-byte memory source", off, len(buf), len(m.data))
	}
	copy(buf, m.data[off:off+int64(len(buf))])
	return nil
}

func (m *Memory) Close() error { return nil }

// Bytes returns the underlying buffer (used by tests asserting bit-exact
// output; not part of the Source interface).
func (m *Memory) Bytes() []byte { return m.data }
