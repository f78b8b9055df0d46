// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package block

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"sort"

	"github.com/klauspost/compress/zlib"

	rerrors "github.com/reftable-go/reftable/errors"
	"github.com/reftable-go/reftable/record"
)

// Reader decodes one previously-written block.
type Reader struct {
	blockType  record.BlockType
	baseOffset int64
	totalLen   int
	records    []byte   // decompressed record bytes, restart table stripped
	restarts   []uint64 // absolute file offsets, ascending
}

// Size returns the block's total on-disk length (header through trailing
// CRC), letting callers find where the next block begins.
func (r *Reader) Size() int { return r.totalLen }

// Parse validates and decodes raw, which must be exactly one block's bytes
// (header through trailing CRC). baseOffset is the block's absolute file
// position, used to translate restart offsets back into byte positions
// within records.
func Parse(raw []byte, baseOffset int64) (*Reader, error) {
	if len(raw) < HeaderSize+TrailerSize {
		return nil, rerrors.Formatf(errShortBlock, "reftable: block at offset %d", baseOffset)
	}
	blockType := record.BlockType(raw[0])
	switch blockType {
	case record.BlockTypeRef, record.BlockTypeObj, record.BlockTypeLog, record.BlockTypeIndex:
	default:
		return nil, rerrors.Format("reftable: block at offset %d has unknown type %q", baseOffset, raw[0])
	}
	total := getUint24(raw[1:4])
	if total < HeaderSize+TrailerSize || total > uint(len(raw)) {
		return nil, rerrors.Format("reftable: block at offset %d has malformed size %d", baseOffset, total)
	}
	raw = raw[:total]

	computed := crc32.ChecksumIEEE(raw[:len(raw)-TrailerSize])
	stored := binary.BigEndian.Uint32(raw[len(raw)-TrailerSize:])
	if computed != stored {
		return nil, rerrors.IntegrityAt(baseOffset, "reftable: block CRC mismatch (want %08x, got %08x)", stored, computed)
	}

	payload := raw[HeaderSize : len(raw)-TrailerSize]
	if blockType == record.BlockTypeLog {
		zr, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, rerrors.Formatf(err, "reftable: opening log block deflate stream at offset %d", baseOffset)
		}
		inflated, err := io.ReadAll(zr)
		if err != nil {
			return nil, rerrors.Formatf(err, "reftable: inflating log block at offset %d", baseOffset)
		}
		payload = inflated
	}

	recordsLen, restartCount, err := findRestartTable(blockType, payload)
	if err != nil {
		return nil, rerrors.Formatf(err, "reftable: block at offset %d", baseOffset)
	}

	restartBytes := payload[recordsLen+RestartCountSize : recordsLen+RestartCountSize+restartCount*RestartOffsetSize]
	restarts := make([]uint64, restartCount)
	for i := 0; i < restartCount; i++ {
		restarts[i] = uint64(getUint24(restartBytes[i*RestartOffsetSize:]))
	}

	return &Reader{
		blockType:  blockType,
		baseOffset: baseOffset,
		totalLen:   int(total),
		records:    payload[:recordsLen],
		restarts:   restarts,
	}, nil
}

// findRestartTable locates the boundary between the record stream and the
// trailing restart table (spec.md: "(uint16 restart_count) (restart_count
// x uint24 absolute_file_offset)", stored count-first, immediately before
// the block's CRC). Since the table's own length depends on the count it
// carries, its start can't be read directly off the end of payload; instead
// records are decoded forward from the start until the remaining bytes are
// exactly accounted for by a restart count read from their first two bytes.
func findRestartTable(blockType record.BlockType, payload []byte) (recordsLen, restartCount int, err error) {
	var prevKey []byte
	pos := 0
	for {
		remaining := len(payload) - pos
		if remaining >= RestartCountSize {
			count := int(binary.BigEndian.Uint16(payload[pos : pos+RestartCountSize]))
			if RestartCountSize+count*RestartOffsetSize == remaining {
				return pos, count, nil
			}
		}
		if remaining == 0 {
			return 0, 0, rerrors.Format("missing restart table")
		}
		rec, n, err := decodeRecordAt(blockType, payload, pos, prevKey)
		if err != nil {
			return 0, 0, rerrors.Formatf(err, "locating restart table")
		}
		pos += n
		prevKey = rec.Key
	}
}

// Type returns the block's type tag.
func (r *Reader) Type() record.BlockType { return r.blockType }

// NumRestarts reports how many restart points this block has.
func (r *Reader) NumRestarts() int { return len(r.restarts) }

// relOffset translates an absolute restart offset into an offset within
// r.records.
func (r *Reader) relOffset(idx int) (int, error) {
	abs := r.restarts[idx]
	rel := int64(abs) - r.baseOffset - HeaderSize
	if rel < 0 || rel > int64(len(r.records)) {
		return 0, rerrors.Format("reftable: restart %d offset %d out of range for block at %d", idx, abs, r.baseOffset)
	}
	return int(rel), nil
}

// RestartKey decodes and returns the full key stored at restart point idx.
// Restart-point records always carry shared_prefix_len == 0, so the suffix
// bytes are the whole key.
func (r *Reader) RestartKey(idx int) ([]byte, error) {
	off, err := r.relOffset(idx)
	if err != nil {
		return nil, err
	}
	rec, _, err := decodeRecordAt(r.blockType, r.records, off, nil)
	if err != nil {
		return nil, err
	}
	return rec.Key, nil
}

// SeekRestart returns the index of the greatest restart point whose key is
// <= key, or -1 if key is smaller than every restart key.
func (r *Reader) SeekRestart(key []byte) (int, error) {
	var decodeErr error
	idx := sort.Search(len(r.restarts), func(i int) bool {
		if decodeErr != nil {
			return true
		}
		rk, err := r.RestartKey(i)
		if err != nil {
			decodeErr = err
			return true
		}
		return CompareKeys(rk, key) > 0
	})
	if decodeErr != nil {
		return 0, decodeErr
	}
	return idx - 1, nil
}

// Iter returns an iterator starting at the record found at byte offset
// startOffset within r.records (0 to start from the beginning of the
// block), with prevKey priming the shared-prefix reconstruction (nil if
// startOffset is 0 or a restart point).
func (r *Reader) Iter(startOffset int, prevKey []byte) *Iter {
	return &Iter{r: r, offset: startOffset, prevKey: append([]byte(nil), prevKey...)}
}

// IterAtRestart returns an iterator positioned exactly at restart point idx.
func (r *Reader) IterAtRestart(idx int) (*Iter, error) {
	off, err := r.relOffset(idx)
	if err != nil {
		return nil, err
	}
	return r.Iter(off, nil), nil
}

// Iter walks records within a block, reconstructing full keys from the
// shared-prefix chain.
type Iter struct {
	r       *Reader
	offset  int
	prevKey []byte
	done    bool
}

// Next advances to the next record, returning false once the block is
// exhausted. A false return is sticky: further calls keep returning false.
func (it *Iter) Next() (RawRecord, bool, error) {
	if it.done || it.offset >= len(it.r.records) {
		it.done = true
		return RawRecord{}, false, nil
	}
	rec, n, err := decodeRecordAt(it.r.blockType, it.r.records, it.offset, it.prevKey)
	if err != nil {
		it.done = true
		return RawRecord{}, false, err
	}
	it.offset += n
	it.prevKey = append(it.prevKey[:0], rec.Key...)
	return rec, true, nil
}

// decodeRecordAt decodes one record starting at byte offset off within
// records, using prevKey (nil for a restart point) to expand the shared
// prefix. It returns the decoded record and the number of bytes consumed.
//
// Record values carry no explicit length of their own (SPEC_FULL.md §6),
// so the generic codec asks package record how many bytes a value of this
// blockType occupies before it can find the next record's boundary.
func decodeRecordAt(blockType record.BlockType, records []byte, off int, prevKey []byte) (RawRecord, int, error) {
	start := off
	shared, n, err := record.Uvarint(records[off:])
	if err != nil {
		return RawRecord{}, 0, rerrors.Format("reftable: truncated record at offset %d", start)
	}
	off += n

	suffixHeader, n, err := record.Uvarint(records[off:])
	if err != nil {
		return RawRecord{}, 0, rerrors.Format("reftable: truncated record at offset %d", start)
	}
	off += n
	kindBits := byte(suffixHeader & 0x7)
	suffixLen := int(suffixHeader >> 3)

	if off+suffixLen > len(records) {
		return RawRecord{}, 0, rerrors.Format("reftable: record at offset %d has truncated suffix", start)
	}
	suffix := records[off : off+suffixLen]
	off += suffixLen

	if int(shared) > len(prevKey) {
		return RawRecord{}, 0, rerrors.Format("reftable: record at offset %d has shared-prefix-length %d exceeding previous key", start, shared)
	}
	key := make([]byte, int(shared)+suffixLen)
	copy(key, prevKey[:shared])
	copy(key[shared:], suffix)

	var valueLen int
	switch blockType {
	case record.BlockTypeRef:
		valueLen, err = record.RefValueLen(kindBits, records[off:])
	case record.BlockTypeLog:
		valueLen, err = record.LogValueLen(records[off:])
	case record.BlockTypeObj:
		valueLen, err = record.ObjValueLen(records[off:])
	case record.BlockTypeIndex:
		valueLen, err = record.IndexValueLen(records[off:])
	default:
		err = rerrors.Format("reftable: unknown block type %q", byte(blockType))
	}
	if err != nil {
		return RawRecord{}, 0, rerrors.Formatf(err, "reftable: record at offset %d", start)
	}
	if off+valueLen > len(records) {
		return RawRecord{}, 0, rerrors.Format("reftable: record at offset %d has truncated value", start)
	}
	value := records[off : off+valueLen]
	off += valueLen

	return RawRecord{Key: key, KindBits: kindBits, Value: value}, off - start, nil
}
