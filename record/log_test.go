// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package record

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogKeyOrdersUpdateIndexDescending(t *testing.T) {
	k1 := Key([]byte("refs/heads/main"), 5)
	k2 := Key([]byte("refs/heads/main"), 10)
	// Same name, higher update-index sorts first (ascending byte order).
	require.Negative(t, CompareLogKeys(k2, k1))
}

func TestLogKeyOrdersNameAscending(t *testing.T) {
	k1 := Key([]byte("refs/heads/aaa"), 5)
	k2 := Key([]byte("refs/heads/bbb"), 5)
	require.Negative(t, CompareLogKeys(k1, k2))
}

func TestSplitLogKeyRoundTrip(t *testing.T) {
	name := []byte("refs/heads/main")
	key := Key(name, 42)
	gotName, gotIdx, err := SplitLogKey(key)
	require.NoError(t, err)
	require.Equal(t, name, gotName)
	require.Equal(t, uint64(42), gotIdx)
}

func TestLogEntryEncodeDecodeRoundTrip(t *testing.T) {
	e := LogEntry{
		Name:        []byte("refs/heads/main"),
		UpdateIndex: 7,
		Old:         ObjectID{1},
		New:         ObjectID{2},
		Who:         Identity{Name: "A U Thor", Email: "author@example.com", Seconds: 1700000000, TZ: -420},
		Message:     "commit: something",
	}
	value := e.EncodeValue()

	n, err := LogValueLen(value)
	require.NoError(t, err)
	require.Equal(t, len(value), n)

	got, err := DecodeLogValue(e.Name, e.UpdateIndex, value)
	require.NoError(t, err)
	require.Equal(t, e, got)
}

func TestLogEntryIsTombstone(t *testing.T) {
	tombstone := LogEntry{Name: []byte("x")}
	require.True(t, tombstone.IsTombstone())

	live := LogEntry{Name: []byte("x"), New: ObjectID{1}}
	require.False(t, live.IsTombstone())
}
