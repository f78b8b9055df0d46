// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package merged

import (
	"bytes"
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

func TestMergedNewestWins(t *testing.T) {
	base := buildTable(t, 1, 1, []record.Ref{
		{Name: []byte("refs/heads/main"), Kind: record.RefPacked, Value: record.ObjectID{1}, UpdateIndex: 1},
		{Name: []byte("refs/heads/other"), Kind: record.RefPacked, Value: record.ObjectID{2}, UpdateIndex: 1},
	})
	overlay := buildTable(t, 2, 2, []record.Ref{
		{Name: []byte("refs/heads/main"), Kind: record.RefPacked, Value: record.ObjectID{9}, UpdateIndex: 2},
	})

	stack := New([]*table.Reader{base, overlay})
	cur, err := stack.AllRefs()
	require.NoError(t, err)

	var got []record.Ref
	for {
		ref, ok, err := cur.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, ref)
	}
	require.Len(t, got, 2)
	require.Equal(t, "refs/heads/main", string(got[0].Name))
	require.Equal(t, record.ObjectID{9}, got[0].Value)
	require.Equal(t, "refs/heads/other", string(got[1].Name))
}

func TestMergedTombstoneMasksOlder(t *testing.T) {
	base := buildTable(t, 1, 1, []record.Ref{
		{Name: []byte("refs/heads/main"), Kind: record.RefPacked, Value: record.ObjectID{1}, UpdateIndex: 1},
	})
	overlay := buildTable(t, 2, 2, []record.Ref{
		{Name: []byte("refs/heads/main"), Kind: record.RefAbsent, UpdateIndex: 2},
	})

	stack := New([]*table.Reader{base, overlay})
	_, ok, err := stack.ExactRef([]byte("refs/heads/main"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestResolveSymbolic(t *testing.T) {
	base := buildTable(t, 1, 1, []record.Ref{
		{Name: []byte("HEAD"), Kind: record.RefSymbolic, Target: []byte("refs/heads/main"), UpdateIndex: 1},
		{Name: []byte("refs/heads/main"), Kind: record.RefPacked, Value: record.ObjectID{1}, UpdateIndex: 1},
	})
	stack := New([]*table.Reader{base})

	head, ok, err := stack.ExactRef([]byte("HEAD"))
	require.NoError(t, err)
	require.True(t, ok)

	resolved, err := stack.Resolve(head)
	require.NoError(t, err)
	require.Equal(t, record.RefPacked, resolved.Kind)
	require.Equal(t, record.ObjectID{1}, resolved.Value)
}

// TestResolveSymbolicCycleExceedsHopBudget exercises testable property 6: a
// symbolic chain that never terminates (here, a cycle) must come back as an
// absent value, not an error.
func TestResolveSymbolicCycleExceedsHopBudget(t *testing.T) {
	base := buildTable(t, 1, 1, []record.Ref{
		{Name: []byte("refs/sym/a"), Kind: record.RefSymbolic, Target: []byte("refs/sym/b"), UpdateIndex: 1},
		{Name: []byte("refs/sym/b"), Kind: record.RefSymbolic, Target: []byte("refs/sym/c"), UpdateIndex: 1},
		{Name: []byte("refs/sym/c"), Kind: record.RefSymbolic, Target: []byte("refs/sym/d"), UpdateIndex: 1},
		{Name: []byte("refs/sym/d"), Kind: record.RefSymbolic, Target: []byte("refs/sym/e"), UpdateIndex: 1},
		{Name: []byte("refs/sym/e"), Kind: record.RefSymbolic, Target: []byte("refs/sym/f"), UpdateIndex: 1},
		{Name: []byte("refs/sym/f"), Kind: record.RefSymbolic, Target: []byte("refs/sym/a"), UpdateIndex: 1},
	})
	stack := New([]*table.Reader{base})

	start, ok, err := stack.ExactRef([]byte("refs/sym/a"))
	require.NoError(t, err)
	require.True(t, ok)

	resolved, err := stack.Resolve(start)
	require.NoError(t, err)
	require.Equal(t, record.Ref{}, resolved)
}
