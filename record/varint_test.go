// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package record

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVarintRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 300, 1 << 20, 1<<63 - 1}
	for _, v := range cases {
		buf := PutUvarint(nil, v)
		got, n, err := Uvarint(buf)
		require.NoError(t, err)
		require.Equal(t, len(buf), n)
		require.Equal(t, v, got)
	}
}

func TestVarintLen(t *testing.T) {
	require.Equal(t, 1, VarintLen(0))
	require.Equal(t, 1, VarintLen(127))
	require.Equal(t, 2, VarintLen(128))
}

func TestUvarintTruncated(t *testing.T) {
	_, _, err := Uvarint(nil)
	require.Error(t, err)
}
