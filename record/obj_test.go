// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package record

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObjEntryEncodeDecodeRoundTrip(t *testing.T) {
	e := ObjEntry{Prefix: []byte{0xab, 0xcd}, Positions: []uint64{24, 4096, 8192}}
	value := e.EncodeValue()

	n, err := ObjValueLen(value)
	require.NoError(t, err)
	require.Equal(t, len(value), n)

	got, err := DecodeObjValue(e.Prefix, value)
	require.NoError(t, err)
	require.Equal(t, e.Prefix, got.Prefix)
	require.Equal(t, e.Positions, got.Positions)
}

func TestObjEntryEmptyPositions(t *testing.T) {
	e := ObjEntry{Prefix: []byte{0x01, 0x02}}
	value := e.EncodeValue()
	got, err := DecodeObjValue(e.Prefix, value)
	require.NoError(t, err)
	require.Empty(t, got.Positions)
}

func TestIndexEntryEncodeDecodeRoundTrip(t *testing.T) {
	e := IndexEntry{LastKey: []byte("refs/heads/zzz"), Offset: 123456}
	value := e.EncodeValue()

	n, err := IndexValueLen(value)
	require.NoError(t, err)
	require.Equal(t, len(value), n)

	got, err := DecodeIndexValue(e.LastKey, value)
	require.NoError(t, err)
	require.Equal(t, e.LastKey, got.LastKey)
	require.Equal(t, e.Offset, got.Offset)
}
