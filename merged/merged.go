// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package merged implements the virtual merged view over an ordered stack
// of tables [oldest,...,newest] described in SPEC_FULL.md §4.4: ref and
// log conflicts are resolved without materializing a combined table, and
// symbolic refs are resolved across the whole stack.
package merged

import (
	"bytes"

	"github.com/reftable-go/reftable/record"
	"github.com/reftable-go/reftable/table"
)

// maxSymbolicHops bounds symbolic-ref resolution (SPEC_FULL.md §4.4).
const maxSymbolicHops = 5

// Stack is an ordered [oldest,...,newest] sequence of table Readers,
// typically one base table plus zero or more compacted overlays.
type Stack struct {
	readers        []*table.Reader
	includeDeletes bool
}

// New wraps readers (oldest first) as a merged view.
func New(readers []*table.Reader) *Stack {
	return &Stack{readers: readers}
}

// SetIncludeDeletes configures whether tombstones are surfaced by cursors
// and Resolve (default false, matching table.Cursor's default).
func (s *Stack) SetIncludeDeletes(v bool) { s.includeDeletes = v }

// refFront tracks one reader's current ref cursor position.
type refFront struct {
	readerIdx int
	cur       *table.Cursor
	ref       record.Ref
	valid     bool
}

func (f *refFront) advance() error {
	ref, ok, err := f.cur.NextRef()
	if err != nil {
		return err
	}
	f.ref, f.valid = ref, ok
	return nil
}

// RefCursor walks the merged ref view in name order, resolving conflicts
// by highest update-index, ties broken by the newest (highest-indexed)
// reader (SPEC_FULL.md §4.4).
type RefCursor struct {
	fronts         []*refFront
	includeDeletes bool
}

func newRefFronts(readers []*table.Reader, seed func(r *table.Reader) (*table.Cursor, error)) ([]*refFront, error) {
	fronts := make([]*refFront, 0, len(readers))
	for i, r := range readers {
		cur, err := seed(r)
		if err != nil {
			return nil, err
		}
		f := &refFront{readerIdx: i, cur: cur}
		if err := f.advance(); err != nil {
			return nil, err
		}
		fronts = append(fronts, f)
	}
	return fronts, nil
}

// AllRefs returns a RefCursor over every live name across the stack.
func (s *Stack) AllRefs() (*RefCursor, error) {
	fronts, err := newRefFronts(s.readers, func(r *table.Reader) (*table.Cursor, error) { return r.AllRefs() })
	if err != nil {
		return nil, err
	}
	for _, f := range fronts {
		f.cur.SetIncludeDeletes(true) // merge must see tombstones to mask older entries
	}
	return &RefCursor{fronts: fronts, includeDeletes: s.includeDeletes}, nil
}

// SeekRef returns a RefCursor positioned at the first live name >= name.
func (s *Stack) SeekRef(name []byte) (*RefCursor, error) {
	fronts, err := newRefFronts(s.readers, func(r *table.Reader) (*table.Cursor, error) { return r.SeekRef(name) })
	if err != nil {
		return nil, err
	}
	for _, f := range fronts {
		f.cur.SetIncludeDeletes(true)
	}
	return &RefCursor{fronts: fronts, includeDeletes: s.includeDeletes}, nil
}

// Next advances the merged cursor, returning the winning ref for the next
// distinct name. Tombstones are surfaced only if includeDeletes is set.
func (c *RefCursor) Next() (record.Ref, bool, error) {
	for {
		ref, ok, err := c.nextRaw()
		if err != nil || !ok {
			return record.Ref{}, ok, err
		}
		if ref.IsTombstone() && !c.includeDeletes {
			continue
		}
		return ref, true, nil
	}
}

// nextRaw returns the next distinct name's winning record, tombstones
// included, so callers that need masking (ExactRef, symbolic resolution)
// can see them.
func (c *RefCursor) nextRaw() (record.Ref, bool, error) {
	var minName []byte
	for _, f := range c.fronts {
		if !f.valid {
			continue
		}
		if minName == nil || bytes.Compare(f.ref.Name, minName) < 0 {
			minName = f.ref.Name
		}
	}
	if minName == nil {
		return record.Ref{}, false, nil
	}

	var winner *refFront
	for _, f := range c.fronts {
		if !f.valid || !bytes.Equal(f.ref.Name, minName) {
			continue
		}
		if winner == nil ||
			f.ref.UpdateIndex > winner.ref.UpdateIndex ||
			(f.ref.UpdateIndex == winner.ref.UpdateIndex && f.readerIdx > winner.readerIdx) {
			winner = f
		}
	}
	result := winner.ref

	for _, f := range c.fronts {
		if f.valid && bytes.Equal(f.ref.Name, minName) {
			if err := f.advance(); err != nil {
				return record.Ref{}, false, err
			}
		}
	}
	return result, true, nil
}

// ExactRef looks up the merged value of one name, masking tombstones from
// the caller's view unless includeDeletes is set.
func (s *Stack) ExactRef(name []byte) (record.Ref, bool, error) {
	c, err := s.SeekRef(name)
	if err != nil {
		return record.Ref{}, false, err
	}
	ref, ok, err := c.nextRaw()
	if err != nil || !ok || !bytes.Equal(ref.Name, name) {
		return record.Ref{}, false, err
	}
	if ref.IsTombstone() && !s.includeDeletes {
		return record.Ref{}, false, nil
	}
	return ref, true, nil
}

// Resolve follows a ref's symbolic chain to its final non-symbolic value,
// bounded to maxSymbolicHops (SPEC_FULL.md §4.4). A chain exceeding the
// budget yields an absent value rather than cycling or erroring (testable
// property 6).
func (s *Stack) Resolve(r record.Ref) (record.Ref, error) {
	for hop := 0; r.Kind == record.RefSymbolic; hop++ {
		if hop >= maxSymbolicHops {
			return record.Ref{}, nil
		}
		next, ok, err := s.ExactRef(r.Target)
		if err != nil {
			return record.Ref{}, err
		}
		if !ok {
			return record.Ref{}, nil
		}
		r = next
	}
	return r, nil
}

// logFront tracks one reader's current log cursor position.
type logFront struct {
	readerIdx int
	cur       *table.Cursor
	entry     record.LogEntry
	valid     bool
}

func (f *logFront) advance() error {
	e, ok, err := f.cur.NextLog()
	if err != nil {
		return err
	}
	f.entry, f.valid = e, ok
	return nil
}

// LogCursor walks the merged reflog view ordered by (name asc, update-index
// desc), masking older tables' entries for the same (name, update-index)
// (SPEC_FULL.md §4.4).
type LogCursor struct {
	fronts         []*logFront
	includeDeletes bool
}

// AllLogs returns a LogCursor over the full merged reflog.
func (s *Stack) AllLogs() (*LogCursor, error) {
	fronts := make([]*logFront, 0, len(s.readers))
	for i, r := range s.readers {
		cur, err := r.AllLogs()
		if err != nil {
			return nil, err
		}
		cur.SetIncludeDeletes(true)
		f := &logFront{readerIdx: i, cur: cur}
		if err := f.advance(); err != nil {
			return nil, err
		}
		fronts = append(fronts, f)
	}
	return &LogCursor{fronts: fronts, includeDeletes: s.includeDeletes}, nil
}

// SeekLog returns a LogCursor positioned at or after (name, maxUpdateIndex).
func (s *Stack) SeekLog(name []byte, maxUpdateIndex uint64) (*LogCursor, error) {
	fronts := make([]*logFront, 0, len(s.readers))
	for i, r := range s.readers {
		cur, err := r.SeekLog(name, maxUpdateIndex)
		if err != nil {
			return nil, err
		}
		cur.SetIncludeDeletes(true)
		f := &logFront{readerIdx: i, cur: cur}
		if err := f.advance(); err != nil {
			return nil, err
		}
		fronts = append(fronts, f)
	}
	return &LogCursor{fronts: fronts, includeDeletes: s.includeDeletes}, nil
}

// Next advances the merged log cursor.
func (c *LogCursor) Next() (record.LogEntry, bool, error) {
	for {
		e, ok, err := c.nextRaw()
		if err != nil || !ok {
			return record.LogEntry{}, ok, err
		}
		if e.IsTombstone() && !c.includeDeletes {
			continue
		}
		return e, true, nil
	}
}

func (c *LogCursor) nextRaw() (record.LogEntry, bool, error) {
	var minKey []byte
	for _, f := range c.fronts {
		if !f.valid {
			continue
		}
		k := f.entry.FullKey()
		if minKey == nil || bytes.Compare(k, minKey) < 0 {
			minKey = k
		}
	}
	if minKey == nil {
		return record.LogEntry{}, false, nil
	}

	var winner *logFront
	for _, f := range c.fronts {
		if !f.valid || !bytes.Equal(f.entry.FullKey(), minKey) {
			continue
		}
		if winner == nil || f.readerIdx > winner.readerIdx {
			winner = f
		}
	}
	result := winner.entry

	for _, f := range c.fronts {
		if f.valid && bytes.Equal(f.entry.FullKey(), minKey) {
			if err := f.advance(); err != nil {
				return record.LogEntry{}, false, err
			}
		}
	}
	return result, true, nil
}
