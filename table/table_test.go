// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package table

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reftable-go/reftable/blocksource"
	"github.com/reftable-go/reftable/record"
)

// TestEmptyTableSize verifies scenario S1: a table with no refs, objs, or
// logs is exactly header+footer bytes, with every index offset absent.
func TestEmptyTableSize(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, WriterOptions{})
	require.NoError(t, w.Begin(1, 1))
	stats, err := w.Finish()
	require.NoError(t, err)

	require.Equal(t, HeaderSize+FooterSize, buf.Len())
	require.Equal(t, int64(HeaderSize+FooterSize), stats.TotalBytes)
	require.Zero(t, stats.RefCount)
	require.Zero(t, stats.ObjCount)
	require.Zero(t, stats.LogCount)
}

func writeTestTable(t *testing.T, opts WriterOptions, refs []record.Ref, logs []record.LogEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf, opts)
	require.NoError(t, w.Begin(1, 1000))
	require.NoError(t, w.SortAndWriteRefs(refs))
	for _, e := range logs {
		require.NoError(t, w.WriteLog(e))
	}
	_, err := w.Finish()
	require.NoError(t, err)
	return buf.Bytes()
}

func sampleRefs() []record.Ref {
	return []record.Ref{
		{Name: []byte("HEAD"), Kind: record.RefSymbolic, Target: []byte("refs/heads/main"), UpdateIndex: 5},
		{Name: []byte("refs/heads/feature"), Kind: record.RefPacked, Value: record.ObjectID{2}, UpdateIndex: 7},
		{Name: []byte("refs/heads/main"), Kind: record.RefPacked, Value: record.ObjectID{1}, UpdateIndex: 10},
		{Name: []byte("refs/tags/v1"), Kind: record.RefPeeledTag, Value: record.ObjectID{9}, Peeled: record.ObjectID{1}, UpdateIndex: 6},
	}
}

func TestWriterReaderRoundTripRefs(t *testing.T) {
	refs := sampleRefs()
	data := writeTestTable(t, WriterOptions{BlockSize: 256}, refs, nil)

	r, err := NewReader(blocksource.NewMemory(data), ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()

	cur, err := r.AllRefs()
	require.NoError(t, err)
	var got []record.Ref
	for {
		ref, ok, err := cur.NextRef()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, ref)
	}
	require.Len(t, got, len(refs))
	for i, ref := range got {
		require.Equal(t, refs[i].Name, ref.Name)
		require.Equal(t, refs[i].UpdateIndex, ref.UpdateIndex)
	}
}

func TestExactRef(t *testing.T) {
	refs := sampleRefs()
	data := writeTestTable(t, WriterOptions{BlockSize: 256}, refs, nil)
	r, err := NewReader(blocksource.NewMemory(data), ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()

	ref, ok, err := r.ExactRef([]byte("refs/heads/main"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record.ObjectID{1}, ref.Value)

	_, ok, err = r.ExactRef([]byte("refs/heads/nonexistent"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSeekRefsWithPrefix(t *testing.T) {
	refs := sampleRefs()
	data := writeTestTable(t, WriterOptions{BlockSize: 256}, refs, nil)
	r, err := NewReader(blocksource.NewMemory(data), ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()

	cur, err := r.SeekRefsWithPrefix([]byte("refs/heads/"))
	require.NoError(t, err)
	var names []string
	for {
		ref, ok, err := cur.NextRef()
		require.NoError(t, err)
		if !ok {
			break
		}
		names = append(names, string(ref.Name))
	}
	require.Equal(t, []string{"refs/heads/feature", "refs/heads/main"}, names)
}

// TestSeekPastPrefix exercises scenario S5: after SeekRefsWithPrefix then
// SeekPastPrefix over a narrower sub-prefix, the cursor should resume just
// past that sub-prefix's family without crossing into an unrelated section.
func TestSeekPastPrefix(t *testing.T) {
	refs := []record.Ref{
		{Name: []byte("refs/heads/master"), Kind: record.RefPacked, Value: record.ObjectID{1}, UpdateIndex: 1},
		{Name: []byte("refs/heads/next"), Kind: record.RefPacked, Value: record.ObjectID{2}, UpdateIndex: 1},
		{Name: []byte("refs/heads/nextnext"), Kind: record.RefPacked, Value: record.ObjectID{3}, UpdateIndex: 1},
		{Name: []byte("refs/heads/nextnextnext"), Kind: record.RefPacked, Value: record.ObjectID{4}, UpdateIndex: 1},
		{Name: []byte("refs/zzz/zzz"), Kind: record.RefPacked, Value: record.ObjectID{5}, UpdateIndex: 1},
	}
	data := writeTestTable(t, WriterOptions{BlockSize: 256}, refs, nil)
	r, err := NewReader(blocksource.NewMemory(data), ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()

	cur, err := r.SeekRefsWithPrefix([]byte("refs/heads/"))
	require.NoError(t, err)
	require.NoError(t, cur.SeekPastPrefix([]byte("refs/heads/next/")))

	var names []string
	for {
		ref, ok, err := cur.NextRef()
		require.NoError(t, err)
		if !ok {
			break
		}
		names = append(names, string(ref.Name))
	}
	require.Equal(t, []string{"refs/heads/nextnext", "refs/heads/nextnextnext"}, names)
}

func TestByObjectID(t *testing.T) {
	refs := sampleRefs()
	data := writeTestTable(t, WriterOptions{BlockSize: 256}, refs, nil)
	r, err := NewReader(blocksource.NewMemory(data), ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()

	require.True(t, r.HasObjectMap())
	matches, err := r.ByObjectID(record.ObjectID{1})
	require.NoError(t, err)
	require.Len(t, matches, 2) // refs/heads/main (direct) and refs/tags/v1 (peeled)
}

func TestWriterRejectsOutOfOrderRefs(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, WriterOptions{})
	require.NoError(t, w.Begin(1, 10))
	require.NoError(t, w.WriteRef(record.Ref{Name: []byte("refs/heads/b"), Kind: record.RefPacked, Value: record.ObjectID{1}, UpdateIndex: 1}))
	err := w.WriteRef(record.Ref{Name: []byte("refs/heads/a"), Kind: record.RefPacked, Value: record.ObjectID{2}, UpdateIndex: 1})
	require.Error(t, err)
}

func TestWriterLogsAndReaderSeekLog(t *testing.T) {
	logs := []record.LogEntry{
		{Name: []byte("refs/heads/main"), UpdateIndex: 10, New: record.ObjectID{1}, Who: record.Identity{Name: "A", Email: "a@b.c"}, Message: "m1"},
		{Name: []byte("refs/heads/main"), UpdateIndex: 5, New: record.ObjectID{2}, Who: record.Identity{Name: "A", Email: "a@b.c"}, Message: "m0"},
	}
	data := writeTestTable(t, WriterOptions{BlockSize: 256}, nil, logs)

	r, err := NewReader(blocksource.NewMemory(data), ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()

	cur, err := r.SeekLog([]byte("refs/heads/main"), 1000)
	require.NoError(t, err)
	e, ok, err := cur.NextLog()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(10), e.UpdateIndex)

	e, ok, err = cur.NextLog()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(5), e.UpdateIndex)
}

// TestManyRefsSpanMultipleBlocksAndIndexLevels exercises index pyramid
// construction across many leaf blocks with a small block size.
func TestManyRefsSpanMultipleBlocksAndIndexLevels(t *testing.T) {
	var refs []record.Ref
	for i := 0; i < 500; i++ {
		name := make([]byte, 0, 20)
		name = append(name, []byte("refs/heads/")...)
		name = append(name, byte('a'+i/26), byte('a'+i%26))
		refs = append(refs, record.Ref{Name: name, Kind: record.RefPacked, Value: record.ObjectID{byte(i), byte(i >> 8)}, UpdateIndex: 1})
	}
	// The generated names already increase with i; sorting keeps the input
	// valid for SortAndWriteRefs even if the construction changes.
	sortRefsByName(refs)

	data := writeTestTable(t, WriterOptions{BlockSize: 256}, refs, nil)
	r, err := NewReader(blocksource.NewMemory(data), ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()

	cur, err := r.AllRefs()
	require.NoError(t, err)
	count := 0
	for {
		_, ok, err := cur.NextRef()
		require.NoError(t, err)
		if !ok {
			break
		}
		count++
	}
	require.Equal(t, len(refs), count)
}

func sortRefsByName(refs []record.Ref) {
	for i := 1; i < len(refs); i++ {
		for j := i; j > 0 && bytes.Compare(refs[j-1].Name, refs[j].Name) > 0; j-- {
			refs[j-1], refs[j] = refs[j], refs[j-1]
		}
	}
}
