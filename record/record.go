// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package record implements the four reftable record kinds (ref, obj, log,
// index) described in SPEC_FULL.md §3: their canonical byte layouts and
// comparison keys. It knows nothing about block framing (see package block)
// or file layout (see package table); it only turns domain values into the
// (key, kindBits, value) triples the block codec frames, and back.
package record

import (
	"bytes"

	rerrors "github.com/reftable-go/reftable/errors"
)

// ObjectIDLen is the width in bytes of a full object identifier, per
// SPEC_FULL.md §3 ("fixed-width opaque 20-byte id").
const ObjectIDLen = 20

// ObjectID is a fixed-width opaque object identifier.
type ObjectID [ObjectIDLen]byte

// IsZero reports whether id is the all-zero id (used as a tombstone marker
// in log records and as "absent" in ref records).
func (id ObjectID) IsZero() bool {
	return id == ObjectID{}
}

// Compare implements byte-lexicographic ordering for ObjectID.
func (id ObjectID) Compare(other ObjectID) int {
	return bytes.Compare(id[:], other[:])
}

// BlockType is the one-byte tag at the head of every block (SPEC_FULL.md §6).
type BlockType byte

const (
	BlockTypeRef   BlockType = 'r'
	BlockTypeObj   BlockType = 'o'
	BlockTypeLog   BlockType = 'g'
	BlockTypeIndex BlockType = 'i'
)

func (t BlockType) String() string {
	switch t {
	case BlockTypeRef:
		return "ref"
	case BlockTypeObj:
		return "obj"
	case BlockTypeLog:
		return "log"
	case BlockTypeIndex:
		return "index"
	default:
		return "unknown"
	}
}

// ValidateName enforces the reference-name constraints at the API boundary
// (SPEC_FULL.md §6): non-empty, no embedded NUL, must not end with '/'.
func ValidateName(name []byte) error {
	if len(name) == 0 {
		return rerrors.Contract("reftable: reference name must not be empty")
	}
	if bytes.IndexByte(name, 0) >= 0 {
		return rerrors.Contract("reftable: reference name %q contains a NUL byte", name)
	}
	if name[len(name)-1] == '/' {
		return rerrors.Contract("reftable: reference name %q must not end with '/'", name)
	}
	return nil
}

// Identity is a reflog committer identity: name, email, and the time of the
// update expressed as epoch seconds plus a timezone offset in minutes.
type Identity struct {
	Name    string
	Email   string
	Seconds uint64
	TZ      int16
}
