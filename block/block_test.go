// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package block

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	rerrors "github.com/reftable-go/reftable/errors"
	"github.com/reftable-go/reftable/record"
)

func buildRefBlock(t *testing.T, names []string, restartInterval int, compress bool) []byte {
	t.Helper()
	w := NewWriter(record.BlockTypeRef, 0, 4096, restartInterval, compress)
	for i, name := range names {
		r := record.Ref{Name: []byte(name), Kind: record.RefPacked, Value: record.ObjectID{byte(i)}, UpdateIndex: uint64(i)}
		kindBits, value := r.EncodeValue(0)
		ok, err := w.Add(r.Name, kindBits, value)
		require.NoError(t, err)
		require.True(t, ok)
	}
	buf, err := w.Finish()
	require.NoError(t, err)
	return buf
}

func TestWriterReaderRoundTrip(t *testing.T) {
	names := []string{"refs/heads/a", "refs/heads/b", "refs/heads/c", "refs/heads/d", "refs/tags/v1"}
	buf := buildRefBlock(t, names, DefaultRestartInterval, false)

	r, err := Parse(buf, 0)
	require.NoError(t, err)
	require.Equal(t, record.BlockTypeRef, r.Type())
	require.Equal(t, len(buf), r.Size())

	it := r.Iter(0, nil)
	var got []string
	for {
		rec, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, string(rec.Key))
	}
	require.Equal(t, names, got)
}

func TestRestartPointsAreSeekable(t *testing.T) {
	var names []string
	for i := 0; i < 40; i++ {
		names = append(names, fmt.Sprintf("refs/heads/%03d", i))
	}
	buf := buildRefBlock(t, names, 4, false)

	r, err := Parse(buf, 0)
	require.NoError(t, err)
	require.GreaterOrEqual(t, r.NumRestarts(), 40/4)

	idx, err := r.SeekRestart([]byte("refs/heads/020"))
	require.NoError(t, err)
	require.GreaterOrEqual(t, idx, 0)

	key, err := r.RestartKey(idx)
	require.NoError(t, err)
	require.LessOrEqual(t, CompareKeys(key, []byte("refs/heads/020")), 0)
}

func TestLogBlockCompressed(t *testing.T) {
	w := NewWriter(record.BlockTypeLog, 0, 65536, DefaultRestartInterval, true)
	for i := 0; i < 20; i++ {
		e := record.LogEntry{
			Name:        []byte(fmt.Sprintf("refs/heads/%02d", i)),
			UpdateIndex: uint64(i),
			Who:         record.Identity{Name: "A", Email: "a@b.c", Seconds: 1, TZ: 0},
			Message:     "a fairly repetitive commit message to compress well",
		}
		key := record.Key(e.Name, e.UpdateIndex)
		value := e.EncodeValue()
		ok, err := w.Add(key, 0, value)
		require.NoError(t, err)
		require.True(t, ok)
	}
	buf, err := w.Finish()
	require.NoError(t, err)

	r, err := Parse(buf, 0)
	require.NoError(t, err)
	require.Equal(t, record.BlockTypeLog, r.Type())

	count := 0
	it := r.Iter(0, nil)
	for {
		_, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		count++
	}
	require.Equal(t, 20, count)
}

func TestParseRejectsCorruptCRC(t *testing.T) {
	buf := buildRefBlock(t, []string{"refs/heads/a", "refs/heads/b"}, DefaultRestartInterval, false)
	buf[len(buf)-1] ^= 0xff

	_, err := Parse(buf, 0)
	require.Error(t, err)
	require.True(t, rerrors.Is(err, rerrors.KindIntegrity))
}

func TestAddReturnsBlockSizeTooSmallWhenEmptyRecordDoesNotFit(t *testing.T) {
	w := NewWriter(record.BlockTypeRef, 0, HeaderSize+TrailerSize+4, DefaultRestartInterval, false)
	r := record.Ref{Name: []byte("refs/heads/a-very-long-name-that-will-not-fit"), Kind: record.RefPacked, Value: record.ObjectID{1}}
	kindBits, value := r.EncodeValue(0)

	_, err := w.Add(r.Name, kindBits, value)
	require.Error(t, err)
	_, ok := rerrors.MinimumBlockSize(err)
	require.True(t, ok)
}

func TestAddReturnsFalseWhenBlockFull(t *testing.T) {
	w := NewWriter(record.BlockTypeRef, 0, 64, DefaultRestartInterval, false)
	i := 0
	for {
		r := record.Ref{Name: []byte(fmt.Sprintf("refs/heads/%04d", i)), Kind: record.RefPacked, Value: record.ObjectID{byte(i)}}
		kindBits, value := r.EncodeValue(0)
		ok, err := w.Add(r.Name, kindBits, value)
		require.NoError(t, err)
		if !ok {
			break
		}
		i++
		require.Less(t, i, 1000, "block never reported full")
	}
	require.Greater(t, w.NumRecords(), 0)
}
