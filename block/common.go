// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package block implements the single-block codec described in
// SPEC_FULL.md §4.1: a typed, length-prefixed, CRC-validated container of
// prefix-compressed records followed by a restart-offset trailer. It knows
// nothing about sections, indexes, or files (see package table); it only
// encodes/decodes one block's bytes.
package block

import (
	"bytes"

	rerrors "github.com/reftable-go/reftable/errors"
)

// HeaderSize is the fixed 4-byte block header: 1-byte type tag, 3-byte
// big-endian block length (SPEC_FULL.md §6).
const HeaderSize = 4

// TrailerSize is the trailing CRC32.
const TrailerSize = 4

// RestartCountSize is the 2-byte restart-point count at the start of the
// restart table, followed by the offsets themselves (SPEC_FULL.md §6).
const RestartCountSize = 2

// RestartOffsetSize is the width of each restart table entry: a big-endian
// uint24 absolute file offset.
const RestartOffsetSize = 3

// DefaultRestartInterval is R in SPEC_FULL.md §4.1: every 16th record is a
// restart point.
const DefaultRestartInterval = 16

// MaxBlockSize is the largest block length representable in the 24-bit
// length field.
const MaxBlockSize = 1<<24 - 1

// RawRecord is the generic (key, kindBits, value) triple the codec frames.
// Domain interpretation of kindBits/value is left to package record.
type RawRecord struct {
	Key      []byte
	KindBits byte
	Value    []byte
}

func putUint24(buf []byte, v uint) {
	buf[0] = byte(v >> 16)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v)
}

func getUint24(buf []byte) uint {
	return uint(buf[0])<<16 | uint(buf[1])<<8 | uint(buf[2])
}

// sharedPrefixLen returns the length of the common prefix of a and b.
func sharedPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// CompareKeys is the byte-lexicographic record key ordering used
// throughout the format (SPEC_FULL.md §4.1).
func CompareKeys(a, b []byte) int { return bytes.Compare(a, b) }

var errShortBlock = rerrors.Format("reftable: block shorter than header")
