// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package record

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRefEncodeDecodeRoundTrip(t *testing.T) {
	const minUpdateIndex = 100

	cases := []Ref{
		{Name: []byte("refs/heads/main"), Kind: RefPacked, Value: ObjectID{1, 2, 3}, UpdateIndex: 105},
		{Name: []byte("refs/tags/v1"), Kind: RefPeeledTag, Value: ObjectID{9}, Peeled: ObjectID{8}, UpdateIndex: 100},
		{Name: []byte("HEAD"), Kind: RefSymbolic, Target: []byte("refs/heads/main"), UpdateIndex: 103},
		{Name: []byte("refs/heads/gone"), Kind: RefAbsent, UpdateIndex: 104},
	}

	for _, want := range cases {
		kindBits, value := want.EncodeValue(minUpdateIndex)
		require.Equal(t, byte(want.Kind), kindBits)

		n, err := RefValueLen(kindBits, value)
		require.NoError(t, err)
		require.Equal(t, len(value), n)

		got, err := DecodeRefValue(want.Name, kindBits, value, minUpdateIndex)
		require.NoError(t, err)
		require.Equal(t, want.Name, got.Name)
		require.Equal(t, want.Kind, got.Kind)
		require.Equal(t, want.UpdateIndex, got.UpdateIndex)
		require.Equal(t, want.Value, got.Value)
		require.Equal(t, want.Peeled, got.Peeled)
		require.Equal(t, want.Target, got.Target)
	}
}

func TestRefValidatePeeledRequired(t *testing.T) {
	r := Ref{Name: []byte("refs/tags/v1"), Kind: RefPeeledTag}
	err := r.Validate()
	require.Error(t, err)
}

func TestRefValidateName(t *testing.T) {
	require.NoError(t, ValidateName([]byte("refs/heads/main")))
	require.Error(t, ValidateName(nil))
	require.Error(t, ValidateName([]byte("refs/heads/")))
	require.Error(t, ValidateName([]byte("ref\x00s")))
}

func TestRefCompareOrdersByName(t *testing.T) {
	a := Ref{Name: []byte("a")}
	b := Ref{Name: []byte("b")}
	require.Negative(t, a.Compare(&b))
	require.Positive(t, b.Compare(&a))
}
