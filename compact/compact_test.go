// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compact

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reftable-go/reftable/blocksource"
	"github.com/reftable-go/reftable/record"
	"github.com/reftable-go/reftable/table"
)

func buildTable(t *testing.T, minIdx, maxIdx uint64, refs []record.Ref) *table.Reader {
	t.Helper()
	var buf bytes.Buffer
	w := table.NewWriter(&buf, table.WriterOptions{BlockSize: 256})
	require.NoError(t, w.Begin(minIdx, maxIdx))
	require.NoError(t, w.SortAndWriteRefs(refs))
	_, err := w.Finish()
	require.NoError(t, err)

	r, err := table.NewReader(blocksource.NewMemory(buf.Bytes()), table.ReaderOptions{})
	require.NoError(t, err)
	return r
}

func TestCompactMergesAndResolvesConflicts(t *testing.T) {
	base := buildTable(t, 1, 1, []record.Ref{
		{Name: []byte("refs/heads/main"), Kind: record.RefPacked, Value: record.ObjectID{1}, UpdateIndex: 1},
		{Name: []byte("refs/heads/old"), Kind: record.RefPacked, Value: record.ObjectID{2}, UpdateIndex: 1},
	})
	overlay := buildTable(t, 2, 2, []record.Ref{
		{Name: []byte("refs/heads/main"), Kind: record.RefPacked, Value: record.ObjectID{9}, UpdateIndex: 2},
		{Name: []byte("refs/heads/old"), Kind: record.RefAbsent, UpdateIndex: 2},
	})

	var out bytes.Buffer
	stats, err := Compact(context.Background(), &out, []*table.Reader{base, overlay}, Options{
		DropTombstones: true,
		Writer:         table.WriterOptions{BlockSize: 256},
	})
	require.NoError(t, err)
	// The merge view yields one winning record per distinct name (main,
	// old), already masking the older table's entries.
	require.Equal(t, int64(2), stats.InputRefs)
	require.Equal(t, int64(1), stats.OutputRefs) // old's tombstone is dropped

	r, err := table.NewReader(blocksource.NewMemory(out.Bytes()), table.ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()

	main, ok, err := r.ExactRef([]byte("refs/heads/main"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record.ObjectID{9}, main.Value)

	_, ok, err = r.ExactRef([]byte("refs/heads/old"))
	require.NoError(t, err)
	require.False(t, ok, "tombstoned ref must be dropped when compacting to the bottom")
}

func TestCompactKeepsTombstonesWhenNotAtBottom(t *testing.T) {
	base := buildTable(t, 1, 1, []record.Ref{
		{Name: []byte("refs/heads/main"), Kind: record.RefPacked, Value: record.ObjectID{1}, UpdateIndex: 1},
	})
	overlay := buildTable(t, 2, 2, []record.Ref{
		{Name: []byte("refs/heads/main"), Kind: record.RefAbsent, UpdateIndex: 2},
	})

	var out bytes.Buffer
	_, err := Compact(context.Background(), &out, []*table.Reader{base, overlay}, Options{
		DropTombstones: false,
		Writer:         table.WriterOptions{BlockSize: 256},
	})
	require.NoError(t, err)

	r, err := table.NewReader(blocksource.NewMemory(out.Bytes()), table.ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()

	cur, err := r.AllRefs()
	require.NoError(t, err)
	cur.SetIncludeDeletes(true)
	ref, ok, err := cur.NextRef()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, ref.IsTombstone())
}
