// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package table implements the reftable Writer, Reader, and Cursor
// (SPEC_FULL.md §4.2-§4.3): a sealed, immutable file format with a header,
// pyramidal indexes per section, and a footer carrying file-wide metadata
// and a CRC.
package table

import (
	"github.com/reftable-go/reftable/block"
)

// DefaultBlockSize is the target block size used when WriterOptions leaves
// BlockSize unset.
const DefaultBlockSize = 4096

// MinBlockSize is a sanity floor: below this, essentially no record plus
// framing overhead can fit.
const MinBlockSize = 64

// WriterOptions configures a Writer (SPEC_FULL.md §4.2).
type WriterOptions struct {
	// BlockSize is the target block size; 0 means DefaultBlockSize.
	BlockSize int
	// MaxIndexLevels bounds index pyramid promotion; 0 means unlimited.
	MaxIndexLevels int
	// AlignBlocks pads every non-terminal block to BlockSize.
	AlignBlocks bool
	// CompressLogs enables zlib-compatible deflate of log block payloads.
	// Defaults to true.
	CompressLogs *bool
	// IndexObjects enables the object->refs back index. Defaults to true.
	IndexObjects *bool
	// RestartInterval is R; 0 means block.DefaultRestartInterval.
	RestartInterval int
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func (o WriterOptions) blockSize() int {
	if o.BlockSize == 0 {
		return DefaultBlockSize
	}
	return o.BlockSize
}

func (o WriterOptions) restartInterval() int {
	if o.RestartInterval == 0 {
		return block.DefaultRestartInterval
	}
	return o.RestartInterval
}

func (o WriterOptions) compressLogs() bool { return boolOr(o.CompressLogs, true) }
func (o WriterOptions) indexObjects() bool { return boolOr(o.IndexObjects, true) }

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	// Cache is an optional shared block cache (SPEC_FULL.md §9). Nil
	// disables caching; correctness never depends on it.
	Cache *Cache
}

// Bool is a convenience constructor for the *bool option fields.
func Bool(b bool) *bool { return &b }
