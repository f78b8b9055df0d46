// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package record

import (
	"encoding/binary"

	rerrors "github.com/reftable-go/reftable/errors"
)

// PutUvarint appends the little-endian base-128 varint encoding of v to buf,
// per SPEC_FULL.md §6: the high bit of each byte marks continuation.
func PutUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

// Uvarint decodes a varint from the start of buf. It returns the decoded
// value and the number of bytes consumed, or a FormatError if buf ends
// before the varint does.
func Uvarint(buf []byte) (uint64, int, error) {
	v, n := binary.Uvarint(buf)
	if n <= 0 {
		return 0, 0, rerrors.Format("reftable: truncated varint")
	}
	return v, n, nil
}

// VarintLen returns the number of bytes PutUvarint would use to encode v.
func VarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}
