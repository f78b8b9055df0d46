// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package table

import (
	"bytes"

	"github.com/reftable-go/reftable/block"
	rerrors "github.com/reftable-go/reftable/errors"
	"github.com/reftable-go/reftable/record"
)

// CursorState is a Cursor's position in the state machine of SPEC_FULL.md
// §4.6: Fresh -> Positioned -> Exhausted.
type CursorState int

const (
	CursorFresh CursorState = iota
	CursorPositioned
	CursorExhausted
)

// Cursor sequentially walks one section (ref or log) of a table, starting
// from a block located by the Reader's index descent. It advances across
// leaf block boundaries transparently and stops at the first block whose
// type no longer matches the section (the section's natural end).
type Cursor struct {
	r         *Reader
	blockType record.BlockType
	prefix    []byte
	seekTarget []byte
	includeDeletes bool

	nextBlockOffset int64 // offset of the block not yet loaded; -1 when none remain
	it              *block.Iter
	state           CursorState
}

func newCursor(r *Reader, blockType record.BlockType, offset int64, hasBlock bool, prefix []byte, includeDeletes bool) *Cursor {
	c := &Cursor{
		r:              r,
		blockType:      blockType,
		prefix:         prefix,
		includeDeletes: includeDeletes,
		state:          CursorFresh,
	}
	if hasBlock {
		c.nextBlockOffset = offset
	} else {
		c.nextBlockOffset = -1
	}
	return c
}

// SetIncludeDeletes configures whether tombstone records are surfaced
// (SPEC_FULL.md §4.3); default is false.
func (c *Cursor) SetIncludeDeletes(v bool) { c.includeDeletes = v }

// State reports the cursor's current state.
func (c *Cursor) State() CursorState { return c.state }

// seekWithinBlocks loads the candidate leaf block located by the Reader's
// index descent and positions the iterator at the restart point at or
// before target, deferring exact positioning to the first NextRaw call.
func (c *Cursor) seekWithinBlocks(target []byte) error {
	if c.nextBlockOffset < 0 {
		return nil
	}
	offset := c.nextBlockOffset
	br, err := c.r.readBlock(offset)
	if err != nil {
		return err
	}
	if br.Type() != c.blockType {
		c.nextBlockOffset = -1
		return nil
	}
	restartIdx, err := br.SeekRestart(target)
	if err != nil {
		return err
	}
	if restartIdx < 0 {
		restartIdx = 0
	}
	it, err := br.IterAtRestart(restartIdx)
	if err != nil {
		return err
	}
	c.it = it
	c.nextBlockOffset = offset + int64(br.Size())
	c.seekTarget = append([]byte(nil), target...)
	return nil
}

// advanceBlock loads the next pending block, if any, and starts a fresh
// iterator over it from its first record.
func (c *Cursor) advanceBlock() (bool, error) {
	if c.nextBlockOffset < 0 {
		return false, nil
	}
	br, err := c.r.readBlock(c.nextBlockOffset)
	if err != nil {
		return false, err
	}
	if br.Type() != c.blockType {
		c.nextBlockOffset = -1
		return false, nil
	}
	c.it = br.Iter(0, nil)
	c.nextBlockOffset += int64(br.Size())
	return true, nil
}

// prefixCmp reports whether key sorts before (-1), within (0), or after
// (+1) the range of keys sharing prefix.
func prefixCmp(key, prefix []byte) int {
	n := len(prefix)
	if n > len(key) {
		n = len(key)
	}
	if c := bytes.Compare(key[:n], prefix); c != 0 {
		return c
	}
	if len(key) < len(prefix) {
		return -1
	}
	return 0
}

// NextRaw advances to the next record satisfying the cursor's seek target
// and prefix bound, if any.
func (c *Cursor) NextRaw() (block.RawRecord, bool, error) {
	for {
		if c.it == nil {
			ok, err := c.advanceBlock()
			if err != nil {
				c.state = CursorExhausted
				return block.RawRecord{}, false, err
			}
			if !ok {
				c.state = CursorExhausted
				return block.RawRecord{}, false, nil
			}
		}

		rec, found, err := c.it.Next()
		if err != nil {
			c.state = CursorExhausted
			return block.RawRecord{}, false, err
		}
		if !found {
			c.it = nil
			continue
		}
		c.r.stats.RecordsSeen++

		if c.seekTarget != nil {
			if block.CompareKeys(rec.Key, c.seekTarget) < 0 {
				continue
			}
			c.seekTarget = nil
		}

		if c.prefix != nil {
			switch prefixCmp(rec.Key, c.prefix) {
			case -1:
				continue
			case 1:
				c.state = CursorExhausted
				c.it = nil
				c.nextBlockOffset = -1
				return block.RawRecord{}, false, nil
			}
		}

		c.state = CursorPositioned
		return rec, true, nil
	}
}

// NextRef decodes the next ref record, skipping tombstones unless
// includeDeletes is set.
func (c *Cursor) NextRef() (record.Ref, bool, error) {
	if c.blockType != record.BlockTypeRef {
		return record.Ref{}, false, rerrors.Unsupported("NextRef on a non-ref cursor")
	}
	for {
		raw, ok, err := c.NextRaw()
		if err != nil || !ok {
			return record.Ref{}, ok, err
		}
		ref, err := record.DecodeRefValue(raw.Key, raw.KindBits, raw.Value, c.r.foot.minUpdateIndex)
		if err != nil {
			return record.Ref{}, false, err
		}
		if ref.IsTombstone() && !c.includeDeletes {
			continue
		}
		return ref, true, nil
	}
}

// NextLog decodes the next log record, skipping tombstones unless
// includeDeletes is set.
func (c *Cursor) NextLog() (record.LogEntry, bool, error) {
	if c.blockType != record.BlockTypeLog {
		return record.LogEntry{}, false, rerrors.Unsupported("NextLog on a non-log cursor")
	}
	for {
		raw, ok, err := c.NextRaw()
		if err != nil || !ok {
			return record.LogEntry{}, ok, err
		}
		name, updateIndex, err := record.SplitLogKey(raw.Key)
		if err != nil {
			return record.LogEntry{}, false, err
		}
		e, err := record.DecodeLogValue(name, updateIndex, raw.Value)
		if err != nil {
			return record.LogEntry{}, false, err
		}
		if e.IsTombstone() && !c.includeDeletes {
			continue
		}
		return e, true, nil
	}
}

// SeekPastPrefix repositions the cursor to the first record whose key is
// strictly greater than every key sharing prefix — the lexicographic next
// sibling of prefix (SPEC_FULL.md §4.3, testable property 3, scenario S5).
// It works regardless of how the cursor was obtained (a plain seek or a
// prior SeekRefsWithPrefix); a prefix bound set by SeekRefsWithPrefix stays
// in force, so the cursor still stops at the first key outside it.
// Unsupported on obj-backed
// lookups, which never produce a Cursor (ByObjectID returns a materialized
// slice rather than one).
func (c *Cursor) SeekPastPrefix(prefix []byte) error {
	if c.blockType == record.BlockTypeObj {
		return rerrors.Unsupported("SeekPastPrefix on an obj cursor")
	}

	c.seekTarget = nil
	c.it = nil

	target := nextSibling(prefix)
	if target == nil {
		// prefix is empty or all 0xFF: no key is strictly greater.
		c.nextBlockOffset = -1
		c.state = CursorExhausted
		return nil
	}

	offset, ok, err := c.r.seekToCandidate(c.r.indexOffsetFor(c.blockType), c.blockType, target)
	if err != nil {
		return err
	}
	if !ok {
		c.nextBlockOffset = -1
		c.state = CursorExhausted
		return nil
	}
	c.nextBlockOffset = offset
	c.state = CursorFresh
	return c.seekWithinBlocks(target)
}

// nextSibling returns the lexicographically smallest byte string greater
// than every string sharing prefix, or nil if none exists (prefix is empty
// or consists entirely of 0xFF bytes).
func nextSibling(prefix []byte) []byte {
	next := append([]byte(nil), prefix...)
	for i := len(next) - 1; i >= 0; i-- {
		if next[i] != 0xFF {
			next[i]++
			return next[:i+1]
		}
	}
	return nil
}

// Close marks the cursor exhausted, releasing its block reference.
func (c *Cursor) Close() {
	c.it = nil
	c.nextBlockOffset = -1
	c.state = CursorExhausted
}
