// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package block

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/klauspost/compress/zlib"

	rerrors "github.com/reftable-go/reftable/errors"
	"github.com/reftable-go/reftable/record"
)

// Writer accumulates records into a single block. It is not safe for
// concurrent use; the table writer owns exactly one at a time per section.
type Writer struct {
	blockType       record.BlockType
	baseOffset      int64
	targetSize      int
	restartInterval int
	compress        bool

	body     bytes.Buffer
	restarts []uint64
	prevKey  []byte
	count    int
}

// NewWriter starts a new, empty block of the given type at baseOffset (the
// block's absolute position in the file once written).
func NewWriter(blockType record.BlockType, baseOffset int64, targetSize, restartInterval int, compress bool) *Writer {
	if restartInterval <= 0 {
		restartInterval = DefaultRestartInterval
	}
	return &Writer{
		blockType:       blockType,
		baseOffset:      baseOffset,
		targetSize:      targetSize,
		restartInterval: restartInterval,
		compress:        compress && blockType == record.BlockTypeLog,
	}
}

// Empty reports whether no record has been added yet.
func (w *Writer) Empty() bool { return w.count == 0 }

// projectedSize estimates the final on-disk size if recordLen more bytes
// were appended to the body right now (ignoring compression, which can
// only shrink log blocks further — a conservative but safe bound).
func (w *Writer) projectedSize(recordLen int, extraRestart bool) int {
	restarts := len(w.restarts)
	if extraRestart {
		restarts++
	}
	restartTableLen := RestartCountSize + restarts*RestartOffsetSize
	return HeaderSize + w.body.Len() + recordLen + restartTableLen + TrailerSize
}

// Add appends one record. It returns ok=false (without modifying state)
// when doing so would exceed targetSize, so the caller can Finish this
// block and start a fresh one. If the block is still empty and the record
// alone cannot fit, it returns a BlockSizeTooSmall error carrying the
// minimum size that would work (SPEC_FULL.md §4.2, §8 property 11).
func (w *Writer) Add(key []byte, kindBits byte, value []byte) (ok bool, err error) {
	isRestart := w.count%w.restartInterval == 0
	shared := 0
	if !isRestart {
		shared = sharedPrefixLen(w.prevKey, key)
	}
	suffix := key[shared:]
	suffixHeader := uint64(len(suffix))<<3 | uint64(kindBits&0x7)

	var rec bytes.Buffer
	rec.Write(record.PutUvarint(nil, uint64(shared)))
	rec.Write(record.PutUvarint(nil, suffixHeader))
	rec.Write(suffix)
	rec.Write(value)

	projected := w.projectedSize(rec.Len(), isRestart)
	if projected > w.targetSize {
		if w.Empty() {
			return false, rerrors.BlockSizeTooSmall(w.targetSize, projected)
		}
		return false, nil
	}

	if isRestart {
		w.restarts = append(w.restarts, uint64(w.baseOffset)+HeaderSize+uint64(w.body.Len()))
	}
	w.body.Write(rec.Bytes())
	w.prevKey = append(w.prevKey[:0], key...)
	w.count++
	return true, nil
}

// Finish serializes the restart table, optionally compresses the log
// payload, and returns the complete block bytes (header, payload, CRC).
func (w *Writer) Finish() ([]byte, error) {
	var restartTable bytes.Buffer
	var countBuf [RestartCountSize]byte
	binary.BigEndian.PutUint16(countBuf[:], uint16(len(w.restarts)))
	restartTable.Write(countBuf[:])
	for _, off := range w.restarts {
		var o [RestartOffsetSize]byte
		putUint24(o[:], uint(off))
		restartTable.Write(o[:])
	}

	payload := append(append([]byte(nil), w.body.Bytes()...), restartTable.Bytes()...)

	if w.compress {
		var compressed bytes.Buffer
		zw := zlib.NewWriter(&compressed)
		if _, err := zw.Write(payload); err != nil {
			return nil, rerrors.IO(err, "reftable: compressing log block")
		}
		if err := zw.Close(); err != nil {
			return nil, rerrors.IO(err, "reftable: flushing log block compressor")
		}
		payload = compressed.Bytes()
	}

	total := HeaderSize + len(payload) + TrailerSize
	if total > MaxBlockSize {
		return nil, rerrors.Format("reftable: block of %d bytes exceeds maximum block size", total)
	}

	out := make([]byte, total)
	out[0] = byte(w.blockType)
	putUint24(out[1:4], uint(total))
	copy(out[HeaderSize:], payload)

	crc := crc32.ChecksumIEEE(out[:total-TrailerSize])
	binary.BigEndian.PutUint32(out[total-TrailerSize:], crc)
	return out, nil
}

// NumRecords reports how many records have been added to this block.
func (w *Writer) NumRecords() int { return w.count }
