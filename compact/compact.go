// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package compact implements the k-way merge Compactor described in
// SPEC_FULL.md §4.5: it folds an ordered stack of tables into one, in two
// passes (refs, then logs), optionally dropping tombstones when compacting
// all the way to the bottom of the stack.
package compact

import (
	"context"
	"io"

	"github.com/cockroachdb/tokenbucket"
	"golang.org/x/sync/errgroup"

	rerrors "github.com/reftable-go/reftable/errors"
	"github.com/reftable-go/reftable/merged"
	"github.com/reftable-go/reftable/table"
)

// Options configures a compaction run.
type Options struct {
	// DropTombstones discards tombstone records instead of carrying them
	// forward. Only safe when readers span the entire stack down to its
	// oldest table (SPEC_FULL.md §4.5): dropping a tombstone that still
	// masks an older, untouched table would resurrect a deleted name.
	DropTombstones bool
	// BytesPerSecond paces writer output; 0 disables pacing.
	BytesPerSecond float64
	Writer         table.WriterOptions
}

// Stats reports record counts observed during a compaction.
type Stats struct {
	InputRefs, OutputRefs int64
	InputLogs, OutputLogs int64
}

// pacedWriter rate-limits Write calls through a token bucket sized in
// bytes, so a long compaction doesn't saturate disk or network I/O
// (SPEC_FULL.md §4 "compactor I/O pacing").
type pacedWriter struct {
	ctx context.Context
	out io.Writer
	tb  *tokenbucket.TokenBucket
}

func newPacedWriter(ctx context.Context, out io.Writer, bytesPerSecond float64) *pacedWriter {
	if bytesPerSecond <= 0 {
		return &pacedWriter{ctx: ctx, out: out}
	}
	tb := &tokenbucket.TokenBucket{}
	tb.Init(tokenbucket.TokensPerSecond(bytesPerSecond), tokenbucket.Tokens(bytesPerSecond))
	return &pacedWriter{ctx: ctx, out: out, tb: tb}
}

func (p *pacedWriter) Write(b []byte) (int, error) {
	if p.tb != nil {
		if _, err := p.tb.WaitCtx(p.ctx, tokenbucket.Tokens(len(b))); err != nil {
			return 0, rerrors.IO(err, "reftable: compaction pacing wait")
		}
	}
	return p.out.Write(b)
}

// primeReaders concurrently collects each reader's update-index range (read
// from the footer already loaded by NewReader) and returns the overall
// [min, max] for the output table (SPEC_FULL.md §4 "compactor reader
// priming concurrency").
func primeReaders(ctx context.Context, readers []*table.Reader) (minUpdateIndex, maxUpdateIndex uint64, err error) {
	mins := make([]uint64, len(readers))
	maxs := make([]uint64, len(readers))
	g, _ := errgroup.WithContext(ctx)
	for i, r := range readers {
		i, r := i, r
		g.Go(func() error {
			mins[i] = r.MinUpdateIndex()
			maxs[i] = r.MaxUpdateIndex()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}
	for i := range readers {
		if i == 0 || mins[i] < minUpdateIndex {
			minUpdateIndex = mins[i]
		}
		if i == 0 || maxs[i] > maxUpdateIndex {
			maxUpdateIndex = maxs[i]
		}
	}
	return minUpdateIndex, maxUpdateIndex, nil
}

// Compact merges readers (oldest first) into one new sealed table written
// to out, in ref-then-log order, and returns the record counts observed.
func Compact(ctx context.Context, out io.Writer, readers []*table.Reader, opts Options) (Stats, error) {
	var stats Stats
	if len(readers) == 0 {
		return stats, rerrors.Contract("reftable: compaction requires at least one reader")
	}

	minUpdateIndex, maxUpdateIndex, err := primeReaders(ctx, readers)
	if err != nil {
		return stats, err
	}

	pw := newPacedWriter(ctx, out, opts.BytesPerSecond)
	w := table.NewWriter(pw, opts.Writer)
	if err := w.Begin(minUpdateIndex, maxUpdateIndex); err != nil {
		return stats, err
	}

	stack := merged.New(readers)
	stack.SetIncludeDeletes(true) // see tombstones; we decide whether to drop them below

	refCur, err := stack.AllRefs()
	if err != nil {
		return stats, err
	}
	for {
		ref, ok, err := refCur.Next()
		if err != nil {
			return stats, err
		}
		if !ok {
			break
		}
		stats.InputRefs++
		if ref.IsTombstone() && opts.DropTombstones {
			continue
		}
		if err := w.WriteRef(ref); err != nil {
			return stats, err
		}
		stats.OutputRefs++
	}

	logCur, err := stack.AllLogs()
	if err != nil {
		return stats, err
	}
	for {
		entry, ok, err := logCur.Next()
		if err != nil {
			return stats, err
		}
		if !ok {
			break
		}
		stats.InputLogs++
		if entry.IsTombstone() && opts.DropTombstones {
			continue
		}
		if err := w.WriteLog(entry); err != nil {
			return stats, err
		}
		stats.OutputLogs++
	}

	if _, err := w.Finish(); err != nil {
		return stats, err
	}
	return stats, nil
}
