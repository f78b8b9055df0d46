// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package table

import (
	"bytes"

	"github.com/reftable-go/reftable/block"
	"github.com/reftable-go/reftable/blocksource"
	rerrors "github.com/reftable-go/reftable/errors"
	"github.com/reftable-go/reftable/record"
)

// Reader opens a sealed table for random access (SPEC_FULL.md §4.3). A
// Reader is immutable and safe for concurrent use by multiple Cursors.
type Reader struct {
	src     blocksource.Source
	cache   *Cache
	tableID uint64
	foot    footer
	stats   *ReaderStats
}

// NewReader validates the file header and footer and returns a Reader ready
// to be queried. It does not read any section's leaf blocks eagerly.
func NewReader(src blocksource.Source, opts ReaderOptions) (*Reader, error) {
	size := src.Size()
	if size < int64(HeaderSize+FooterSize) {
		return nil, rerrors.Format("reftable: table of %d bytes too short for header+footer", size)
	}
	hbuf := make([]byte, HeaderSize)
	if err := src.ReadAt(hbuf, 0); err != nil {
		return nil, err
	}
	if _, err := decodeHeader(hbuf); err != nil {
		return nil, err
	}

	fbuf := make([]byte, FooterSize)
	if err := src.ReadAt(fbuf, size-int64(FooterSize)); err != nil {
		return nil, err
	}
	foot, err := decodeFooter(fbuf)
	if err != nil {
		return nil, err
	}

	return &Reader{
		src:     src,
		cache:   opts.Cache,
		tableID: TableIdentity(foot.crc, size),
		foot:    foot,
		stats:   NewReaderStats(),
	}, nil
}

// Stats returns the reader's running statistics.
func (r *Reader) Stats() *ReaderStats { return r.stats }

// MinUpdateIndex and MaxUpdateIndex report the table's update-index range.
func (r *Reader) MinUpdateIndex() uint64 { return r.foot.minUpdateIndex }
func (r *Reader) MaxUpdateIndex() uint64 { return r.foot.maxUpdateIndex }

// HasObjectMap reports whether this table carries an object->refs back
// index (SPEC_FULL.md §4.3).
func (r *Reader) HasObjectMap() bool { return r.foot.objIndexOffset != 0 }

// readBlock loads the block at the given absolute offset, consulting and
// populating the shared cache if configured.
func (r *Reader) readBlock(offset int64) (*block.Reader, error) {
	if r.cache != nil {
		if cached, ok := r.cache.Get(r.tableID, offset); ok {
			r.stats.CacheHits++
			return block.Parse(cached, offset)
		}
		r.stats.CacheMisses++
	}

	hbuf := make([]byte, block.HeaderSize)
	if err := r.src.ReadAt(hbuf, offset); err != nil {
		return nil, err
	}
	total := getUint24Block(hbuf[1:4])
	buf := make([]byte, total)
	if err := r.src.ReadAt(buf, offset); err != nil {
		return nil, err
	}
	r.stats.BlocksRead++
	r.stats.BlockSizes = append(r.stats.BlockSizes, int64(total))
	if r.cache != nil {
		r.cache.Put(r.tableID, offset, buf)
	}
	return block.Parse(buf, offset)
}

func getUint24Block(buf []byte) int {
	return int(buf[0])<<16 | int(buf[1])<<8 | int(buf[2])
}

// descendToLeftmost follows index entry 0 from indexOffset down to the
// first leaf block of the given type. Returns ok=false if indexOffset is 0
// (the section is empty).
func (r *Reader) descendToLeftmost(indexOffset uint64, leafType record.BlockType) (offset int64, ok bool, err error) {
	if indexOffset == 0 {
		return 0, false, nil
	}
	off := int64(indexOffset)
	for {
		br, err := r.readBlock(off)
		if err != nil {
			return 0, false, err
		}
		if br.Type() == leafType {
			return off, true, nil
		}
		if br.Type() != record.BlockTypeIndex {
			return 0, false, rerrors.Format("reftable: expected index or %s block at offset %d, found %s", leafType, off, br.Type())
		}
		it, err := br.IterAtRestart(0)
		if err != nil {
			return 0, false, err
		}
		rec, found, err := it.Next()
		if err != nil {
			return 0, false, err
		}
		if !found {
			return 0, false, rerrors.Format("reftable: empty index block at offset %d", off)
		}
		entry, err := record.DecodeIndexValue(rec.Key, rec.Value)
		if err != nil {
			return 0, false, err
		}
		off = int64(entry.Offset)
	}
}

// seekToCandidate descends the index looking for the first subtree whose
// last key is >= target, falling back to the rightmost subtree if target
// exceeds every key in the section. Returns ok=false if indexOffset is 0.
func (r *Reader) seekToCandidate(indexOffset uint64, leafType record.BlockType, target []byte) (offset int64, ok bool, err error) {
	if indexOffset == 0 {
		return 0, false, nil
	}
	off := int64(indexOffset)
	for {
		br, err := r.readBlock(off)
		if err != nil {
			return 0, false, err
		}
		if br.Type() == leafType {
			return off, true, nil
		}
		if br.Type() != record.BlockTypeIndex {
			return 0, false, rerrors.Format("reftable: expected index or %s block at offset %d, found %s", leafType, off, br.Type())
		}

		restartIdx, err := br.SeekRestart(target)
		if err != nil {
			return 0, false, err
		}
		if restartIdx < 0 {
			restartIdx = 0
		}
		it, err := br.IterAtRestart(restartIdx)
		if err != nil {
			return 0, false, err
		}
		var chosen *record.IndexEntry
		for {
			rec, found, err := it.Next()
			if err != nil {
				return 0, false, err
			}
			if !found {
				break
			}
			entry, err := record.DecodeIndexValue(rec.Key, rec.Value)
			if err != nil {
				return 0, false, err
			}
			e := entry
			chosen = &e
			if block.CompareKeys(rec.Key, target) >= 0 {
				break
			}
		}
		if chosen == nil {
			return 0, false, rerrors.Format("reftable: empty index subtree at offset %d", off)
		}
		off = int64(chosen.Offset)
	}
}

// indexOffsetFor returns the section index root offset for a leaf block
// type, so Cursor can reseek within its own section without the Reader
// exposing its footer fields directly.
func (r *Reader) indexOffsetFor(leafType record.BlockType) uint64 {
	switch leafType {
	case record.BlockTypeRef:
		return r.foot.refIndexOffset
	case record.BlockTypeLog:
		return r.foot.logIndexOffset
	case record.BlockTypeObj:
		return r.foot.objIndexOffset
	default:
		return 0
	}
}

// AllRefs returns a Cursor over every ref record in name order.
func (r *Reader) AllRefs() (*Cursor, error) {
	off, ok, err := r.descendToLeftmost(r.foot.refIndexOffset, record.BlockTypeRef)
	if err != nil {
		return nil, err
	}
	return newCursor(r, record.BlockTypeRef, off, ok, nil, false), nil
}

// SeekRef positions a Cursor at the first ref whose name is >= name.
func (r *Reader) SeekRef(name []byte) (*Cursor, error) {
	off, ok, err := r.seekToCandidate(r.foot.refIndexOffset, record.BlockTypeRef, name)
	if err != nil {
		return nil, err
	}
	c := newCursor(r, record.BlockTypeRef, off, ok, nil, false)
	if err := c.seekWithinBlocks(name); err != nil {
		return nil, err
	}
	return c, nil
}

// SeekRefsWithPrefix positions a Cursor bounded to names sharing prefix.
func (r *Reader) SeekRefsWithPrefix(prefix []byte) (*Cursor, error) {
	c, err := r.SeekRef(prefix)
	if err != nil {
		return nil, err
	}
	c.prefix = append([]byte(nil), prefix...)
	return c, nil
}

// ExactRef looks up a single ref by exact name.
func (r *Reader) ExactRef(name []byte) (record.Ref, bool, error) {
	c, err := r.SeekRef(name)
	if err != nil {
		return record.Ref{}, false, err
	}
	ref, ok, err := c.NextRef()
	if err != nil || !ok {
		return record.Ref{}, false, err
	}
	if !bytes.Equal(ref.Name, name) {
		return record.Ref{}, false, nil
	}
	return ref, true, nil
}

// AllLogs returns a Cursor over every log record, ordered by name ascending
// then update-index descending.
func (r *Reader) AllLogs() (*Cursor, error) {
	off, ok, err := r.descendToLeftmost(r.foot.logIndexOffset, record.BlockTypeLog)
	if err != nil {
		return nil, err
	}
	return newCursor(r, record.BlockTypeLog, off, ok, nil, false), nil
}

// SeekLog positions a Cursor at the first log entry for name at or before
// maxUpdateIndex (i.e. the first entry whose composite key is >= the key
// for (name, maxUpdateIndex)).
func (r *Reader) SeekLog(name []byte, maxUpdateIndex uint64) (*Cursor, error) {
	target := record.Key(name, maxUpdateIndex)
	off, ok, err := r.seekToCandidate(r.foot.logIndexOffset, record.BlockTypeLog, target)
	if err != nil {
		return nil, err
	}
	c := newCursor(r, record.BlockTypeLog, off, ok, nil, false)
	if err := c.seekWithinBlocks(target); err != nil {
		return nil, err
	}
	return c, nil
}

// ByObjectID returns every ref whose target or peeled id equals id, using
// the obj back-index if present. It returns (nil, nil) if the table has no
// object map; callers should fall back to a linear AllRefs scan.
func (r *Reader) ByObjectID(id record.ObjectID) ([]record.Ref, error) {
	if !r.HasObjectMap() {
		return nil, nil
	}
	objIDLen := int(r.foot.objIDLen)
	prefix := id[:objIDLen]

	off, ok, err := r.seekToCandidate(r.foot.objIndexOffset, record.BlockTypeObj, prefix)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var positions []uint64
	for {
		br, err := r.readBlock(off)
		if err != nil {
			return nil, err
		}
		restartIdx, err := br.SeekRestart(prefix)
		if err != nil {
			return nil, err
		}
		if restartIdx < 0 {
			restartIdx = 0
		}
		it, err := br.IterAtRestart(restartIdx)
		if err != nil {
			return nil, err
		}
		for {
			rec, found, err := it.Next()
			if err != nil {
				return nil, err
			}
			if !found {
				break
			}
			if bytes.Equal(rec.Key, prefix) {
				entry, err := record.DecodeObjValue(rec.Key, rec.Value)
				if err != nil {
					return nil, err
				}
				positions = entry.Positions
				break
			}
		}
		break
	}

	var refs []record.Ref
	for _, pos := range positions {
		br, err := r.readBlock(int64(pos))
		if err != nil {
			return nil, err
		}
		it := br.Iter(0, nil)
		for {
			rec, found, err := it.Next()
			if err != nil {
				return nil, err
			}
			if !found {
				break
			}
			ref, err := record.DecodeRefValue(rec.Key, rec.KindBits, rec.Value, r.foot.minUpdateIndex)
			if err != nil {
				return nil, err
			}
			if (ref.Kind == record.RefPacked || ref.Kind == record.RefPeeledTag) && ref.Value == id {
				refs = append(refs, ref)
				continue
			}
			if ref.Kind == record.RefPeeledTag && ref.Peeled == id {
				refs = append(refs, ref)
			}
		}
	}
	return refs, nil
}

// Close releases the underlying block source.
func (r *Reader) Close() error { return r.src.Close() }
