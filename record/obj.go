// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package record

import (
	rerrors "github.com/reftable-go/reftable/errors"
)

// ObjEntry is one object->refs back-index record (SPEC_FULL.md §3). Key is
// a table-wide-fixed-length prefix of an object id; Positions lists the
// (ascending) file offsets of ref blocks that reference that object.
type ObjEntry struct {
	Prefix    []byte
	Positions []uint64
}

// Key returns the record's comparison key: the object-id prefix.
func (o *ObjEntry) Key() []byte { return o.Prefix }

// EncodeValue serializes the sorted, delta-encoded block-position list.
func (o *ObjEntry) EncodeValue() []byte {
	var buf []byte
	buf = PutUvarint(buf, uint64(len(o.Positions)))
	var prev uint64
	for _, pos := range o.Positions {
		buf = PutUvarint(buf, pos-prev)
		prev = pos
	}
	return buf
}

// ObjValueLen returns the number of bytes EncodeValue's output occupies,
// for the same reason documented on RefValueLen.
func ObjValueLen(buf []byte) (int, error) {
	count, n, err := Uvarint(buf)
	if err != nil {
		return 0, rerrors.Format("reftable: truncated obj position count")
	}
	off := n
	for i := uint64(0); i < count; i++ {
		_, n, err := Uvarint(buf[off:])
		if err != nil {
			return 0, rerrors.Format("reftable: truncated obj position %d", i)
		}
		off += n
	}
	if off > len(buf) {
		return 0, rerrors.Format("reftable: obj value truncated")
	}
	return off, nil
}

// DecodeObjValue parses the payload written by EncodeValue for the obj
// entry keyed by prefix.
func DecodeObjValue(prefix []byte, value []byte) (ObjEntry, error) {
	o := ObjEntry{Prefix: append([]byte(nil), prefix...)}
	count, n, err := Uvarint(value)
	if err != nil {
		return ObjEntry{}, rerrors.Formatf(err, "reftable: obj entry %x: decoding position count", prefix)
	}
	value = value[n:]
	o.Positions = make([]uint64, 0, count)
	var prev uint64
	for i := uint64(0); i < count; i++ {
		delta, n, err := Uvarint(value)
		if err != nil {
			return ObjEntry{}, rerrors.Formatf(err, "reftable: obj entry %x: decoding position %d", prefix, i)
		}
		value = value[n:]
		prev += delta
		o.Positions = append(o.Positions, prev)
	}
	return o, nil
}

// MinObjectPrefixLen is the shortest prefix this implementation will ever
// choose for the object index (SPEC_FULL.md §9 Open Question: the format
// permits either a globally fixed length or one chosen per-table; we choose
// per-table, recorded in the footer — see table.Writer.chooseObjectIDLen).
const MinObjectPrefixLen = 2
