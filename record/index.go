// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package record

// IndexEntry is one index-pointer record (SPEC_FULL.md §3): the key is the
// last record key contained in the pointed-to subtree, and the value is
// the absolute file offset of that block.
type IndexEntry struct {
	LastKey []byte
	Offset  uint64
}

// Key returns the record's comparison key.
func (e *IndexEntry) Key() []byte { return e.LastKey }

// EncodeValue serializes the block offset.
func (e *IndexEntry) EncodeValue() []byte {
	return PutUvarint(nil, e.Offset)
}

// IndexValueLen returns the number of bytes EncodeValue's output occupies.
func IndexValueLen(buf []byte) (int, error) {
	_, n, err := Uvarint(buf)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// DecodeIndexValue parses the payload written by EncodeValue.
func DecodeIndexValue(lastKey []byte, value []byte) (IndexEntry, error) {
	offset, _, err := Uvarint(value)
	if err != nil {
		return IndexEntry{}, err
	}
	return IndexEntry{LastKey: append([]byte(nil), lastKey...), Offset: offset}, nil
}
