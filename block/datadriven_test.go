// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package block

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/stretchr/testify/require"

	"github.com/reftable-go/reftable/record"
)

// TestIndexBlockRoundTrip drives index-block encode/decode from testdata
// scripts: each "build" command takes "key offset" lines, writes them as a
// single index block, reparses it, and prints back what it iterated.
func TestIndexBlockRoundTrip(t *testing.T) {
	datadriven.RunTest(t, "testdata/index_roundtrip", func(t *testing.T, d *datadriven.TestData) string {
		switch d.Cmd {
		case "build":
			w := NewWriter(record.BlockTypeIndex, 0, 4096, DefaultRestartInterval, false)
			for _, line := range strings.Split(strings.TrimSpace(d.Input), "\n") {
				fields := strings.Fields(line)
				require.Len(t, fields, 2)
				offset, err := strconv.ParseUint(fields[1], 10, 64)
				require.NoError(t, err)
				entry := record.IndexEntry{LastKey: []byte(fields[0]), Offset: offset}
				ok, err := w.Add(entry.Key(), 0, entry.EncodeValue())
				require.NoError(t, err)
				require.True(t, ok)
			}
			buf, err := w.Finish()
			require.NoError(t, err)

			r, err := Parse(buf, 0)
			require.NoError(t, err)
			require.Equal(t, record.BlockTypeIndex, r.Type())

			var sb strings.Builder
			it := r.Iter(0, nil)
			for {
				rec, ok, err := it.Next()
				require.NoError(t, err)
				if !ok {
					break
				}
				n, err := record.IndexValueLen(rec.Value)
				require.NoError(t, err)
				require.Equal(t, len(rec.Value), n)
				entry, err := record.DecodeIndexValue(rec.Key, rec.Value)
				require.NoError(t, err)
				fmt.Fprintf(&sb, "%s %d\n", entry.LastKey, entry.Offset)
			}
			return sb.String()
		default:
			t.Fatalf("unknown command %q", d.Cmd)
			return ""
		}
	})
}
