// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package table

import (
	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/reftable-go/reftable/block"
)

// blockSizeHistogram tracks the on-disk size of every block a Writer emits,
// surfaced through WriterStats so callers can tune BlockSize (SPEC_FULL.md
// §5 "Writer/Reader statistics").
type blockSizeHistogram struct {
	h *hdrhistogram.Histogram
}

func newBlockSizeHistogram() *blockSizeHistogram {
	return &blockSizeHistogram{h: hdrhistogram.New(1, block.MaxBlockSize, 3)}
}

func (b *blockSizeHistogram) record(size int) {
	_ = b.h.RecordValue(int64(size))
}

// Mean returns the mean recorded block size, or 0 if none were recorded.
func (b *blockSizeHistogram) Mean() float64 { return b.h.Mean() }

// Max returns the largest recorded block size, or 0 if none were recorded.
func (b *blockSizeHistogram) Max() int64 { return b.h.Max() }

// ValueAtQuantile returns the block size at the given percentile (0-100).
func (b *blockSizeHistogram) ValueAtQuantile(q float64) int64 { return b.h.ValueAtQuantile(q) }

// ReaderStats is published by a Reader's cursors (SPEC_FULL.md §5): counts
// of blocks and records visited, useful for diagnosing seek behavior.
type ReaderStats struct {
	BlocksRead   int64
	RecordsSeen  int64
	CacheHits    int64
	CacheMisses  int64
	SeekDuration *hdrhistogram.Histogram
	// BlockSizes records the on-disk size of every block fetched from the
	// underlying source (cache hits excluded, since those don't touch
	// storage), in fetch order. Used by diagnostic tools to chart the
	// distribution of a table's block sizes.
	BlockSizes []int64
}

// NewReaderStats returns a zero-valued ReaderStats with its latency
// histogram initialized.
func NewReaderStats() *ReaderStats {
	return &ReaderStats{SeekDuration: hdrhistogram.New(1, 1_000_000_000, 3)}
}
