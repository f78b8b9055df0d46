// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package record

import (
	"bytes"

	rerrors "github.com/reftable-go/reftable/errors"
)

// RefKind tags the storage kind of a Ref, per SPEC_FULL.md §3: exactly one
// of {object id, symbolic target, absent} is set according to kind.
type RefKind uint8

const (
	// RefAbsent is a tombstone: no target, no peeled id, no symbolic target.
	RefAbsent RefKind = 0
	// RefPacked is a regular (non-tag) reference pointing at an object id.
	RefPacked RefKind = 1
	// RefPeeledTag is an annotated tag, carrying both the tag object id and
	// the peeled (dereferenced) id it ultimately points to.
	RefPeeledTag RefKind = 2
	// RefSymbolic points at another reference by name.
	RefSymbolic RefKind = 3
)

// Ref is one reference record (SPEC_FULL.md §3).
type Ref struct {
	Name        []byte
	Kind        RefKind
	Value       ObjectID // target id; zero for Absent/Symbolic
	Peeled      ObjectID // only meaningful when Kind == RefPeeledTag
	Target      []byte   // symbolic target name; only when Kind == RefSymbolic
	UpdateIndex uint64
}

// IsTombstone reports whether r is a deletion marker.
func (r *Ref) IsTombstone() bool { return r.Kind == RefAbsent }

// Key returns the record's comparison key: the reference name.
func (r *Ref) Key() []byte { return r.Name }

// Compare orders two refs by name, matching SPEC_FULL.md §3's invariant
// that name ordering is byte-lexicographic.
func (r *Ref) Compare(other *Ref) int {
	return bytes.Compare(r.Name, other.Name)
}

// Validate enforces the writer-side contract: annotated tags must carry a
// peeled id (SPEC_FULL.md §4.2, PeeledRefRequired).
func (r *Ref) Validate() error {
	if err := ValidateName(r.Name); err != nil {
		return err
	}
	if r.Kind == RefPeeledTag && r.Peeled.IsZero() {
		return rerrors.PeeledRefRequired(rerrors.SafeName(r.Name))
	}
	return nil
}

// EncodeValue serializes the ref's value payload (everything after the
// suffix bytes): an update-index delta from minUpdateIndex, a one-byte
// kind selector folded into kindBits, and the kind-specific payload.
//
// Returns the low-3-bits "kindBits" to be packed into the suffix-length
// varint by the block codec (SPEC_FULL.md §6: "low 3 bits of the second
// varint carry record-kind sub-tags"), and the value bytes to follow.
func (r *Ref) EncodeValue(minUpdateIndex uint64) (kindBits byte, value []byte) {
	var buf []byte
	buf = PutUvarint(buf, r.UpdateIndex-minUpdateIndex)
	switch r.Kind {
	case RefAbsent:
		// no payload
	case RefPacked:
		buf = append(buf, r.Value[:]...)
	case RefPeeledTag:
		buf = append(buf, r.Value[:]...)
		buf = append(buf, r.Peeled[:]...)
	case RefSymbolic:
		buf = PutUvarint(buf, uint64(len(r.Target)))
		buf = append(buf, r.Target...)
	}
	return byte(r.Kind), buf
}

// RefValueLen returns the number of bytes EncodeValue's output occupies,
// given the raw bytes starting at the value (update-index delta onward).
// This lets the block codec find the record boundary without fully
// decoding the ref (SPEC_FULL.md §4.1: values carry no explicit length
// prefix of their own).
func RefValueLen(kindBits byte, buf []byte) (int, error) {
	_, n, err := Uvarint(buf)
	if err != nil {
		return 0, rerrors.Format("reftable: truncated ref update-index delta")
	}
	off := n
	switch RefKind(kindBits) {
	case RefAbsent:
	case RefPacked:
		off += ObjectIDLen
	case RefPeeledTag:
		off += 2 * ObjectIDLen
	case RefSymbolic:
		size, n, err := Uvarint(buf[off:])
		if err != nil {
			return 0, rerrors.Format("reftable: truncated ref symbolic target length")
		}
		off += n + int(size)
	default:
		return 0, rerrors.Format("reftable: ref has unknown kind %d", kindBits)
	}
	if off > len(buf) {
		return 0, rerrors.Format("reftable: ref value truncated")
	}
	return off, nil
}

// DecodeRefValue parses a ref's value payload written by EncodeValue.
func DecodeRefValue(name []byte, kindBits byte, value []byte, minUpdateIndex uint64) (Ref, error) {
	r := Ref{Name: append([]byte(nil), name...), Kind: RefKind(kindBits)}

	delta, n, err := Uvarint(value)
	if err != nil {
		return Ref{}, rerrors.Formatf(err, "reftable: decoding ref %q update-index delta", name)
	}
	r.UpdateIndex = minUpdateIndex + delta
	value = value[n:]

	switch r.Kind {
	case RefAbsent:
		if len(value) != 0 {
			return Ref{}, rerrors.Format("reftable: tombstone ref %q has trailing bytes", name)
		}
	case RefPacked:
		if len(value) != ObjectIDLen {
			return Ref{}, rerrors.Format("reftable: ref %q value has wrong length %d", name, len(value))
		}
		copy(r.Value[:], value)
	case RefPeeledTag:
		if len(value) != 2*ObjectIDLen {
			return Ref{}, rerrors.Format("reftable: peeled ref %q value has wrong length %d", name, len(value))
		}
		copy(r.Value[:], value[:ObjectIDLen])
		copy(r.Peeled[:], value[ObjectIDLen:])
	case RefSymbolic:
		size, n, err := Uvarint(value)
		if err != nil {
			return Ref{}, rerrors.Formatf(err, "reftable: decoding ref %q symbolic target length", name)
		}
		value = value[n:]
		if uint64(len(value)) < size {
			return Ref{}, rerrors.Format("reftable: ref %q symbolic target truncated", name)
		}
		r.Target = append([]byte(nil), value[:size]...)
	default:
		return Ref{}, rerrors.Format("reftable: ref %q has unknown kind %d", name, kindBits)
	}
	return r, nil
}
