// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package record

import (
	"bytes"
	"encoding/binary"
	"math"

	rerrors "github.com/reftable-go/reftable/errors"
)

// LogEntry is one reflog record (SPEC_FULL.md §3). Its key is the composite
// (ref name, bit-inverted update-index) so that, within a name, newer
// entries sort first.
type LogEntry struct {
	Name        []byte
	UpdateIndex uint64
	Old, New    ObjectID
	Who         Identity
	Message     string
}

// IsTombstone reports whether e marks deletion of history: old == new ==
// zero id with an empty message (SPEC_FULL.md §3).
func (e *LogEntry) IsTombstone() bool {
	return e.Old.IsZero() && e.New.IsZero() && e.Message == ""
}

// Key returns the composite (name, ~updateIndex) comparison key used to
// order log records: ascending by name, then descending by update-index.
func Key(name []byte, updateIndex uint64) []byte {
	key := make([]byte, len(name)+8)
	copy(key, name)
	binary.BigEndian.PutUint64(key[len(name):], math.MaxUint64-updateIndex)
	return key
}

// FullKey returns the entry's composite (name, ~updateIndex) comparison key.
func (e *LogEntry) FullKey() []byte { return Key(e.Name, e.UpdateIndex) }

// CompareLogKeys orders two composite log keys: by name ascending, then
// (because the update-index is bit-inverted) implicitly by update-index
// descending.
func CompareLogKeys(a, b []byte) int {
	return bytes.Compare(a, b)
}

// SplitLogKey recovers (name, updateIndex) from a composite log key.
func SplitLogKey(key []byte) (name []byte, updateIndex uint64, err error) {
	if len(key) < 8 {
		return nil, 0, rerrors.Format("reftable: log key %x too short", key)
	}
	name = key[:len(key)-8]
	inverted := binary.BigEndian.Uint64(key[len(key)-8:])
	return name, math.MaxUint64 - inverted, nil
}

// EncodeValue serializes the log entry's payload, per SPEC_FULL.md §6:
// old_id(20B) new_id(20B) name(varint+bytes) email(varint+bytes)
// epoch_seconds(varint) tz_minutes(int16) message(varint+bytes).
func (e *LogEntry) EncodeValue() []byte {
	var buf []byte
	buf = append(buf, e.Old[:]...)
	buf = append(buf, e.New[:]...)
	buf = PutUvarint(buf, uint64(len(e.Who.Name)))
	buf = append(buf, e.Who.Name...)
	buf = PutUvarint(buf, uint64(len(e.Who.Email)))
	buf = append(buf, e.Who.Email...)
	buf = PutUvarint(buf, e.Who.Seconds)
	var tz [2]byte
	binary.BigEndian.PutUint16(tz[:], uint16(e.Who.TZ))
	buf = append(buf, tz[:]...)
	buf = PutUvarint(buf, uint64(len(e.Message)))
	buf = append(buf, e.Message...)
	return buf
}

// LogValueLen returns the number of bytes EncodeValue's output occupies,
// for the same reason documented on RefValueLen.
func LogValueLen(buf []byte) (int, error) {
	if len(buf) < 2*ObjectIDLen {
		return 0, rerrors.Format("reftable: log value truncated")
	}
	off := 2 * ObjectIDLen
	for i := 0; i < 2; i++ { // committer name, then email
		size, n, err := Uvarint(buf[off:])
		if err != nil {
			return 0, rerrors.Format("reftable: truncated log string length")
		}
		off += n + int(size)
	}
	_, n, err := Uvarint(buf[off:])
	if err != nil {
		return 0, rerrors.Format("reftable: truncated log epoch seconds")
	}
	off += n + 2 // + tz_minutes
	if off > len(buf) {
		return 0, rerrors.Format("reftable: log value truncated before message")
	}
	size, n, err := Uvarint(buf[off:])
	if err != nil {
		return 0, rerrors.Format("reftable: truncated log message length")
	}
	off += n + int(size)
	if off > len(buf) {
		return 0, rerrors.Format("reftable: log value truncated")
	}
	return off, nil
}

// DecodeLogValue parses the payload written by EncodeValue for the log
// entry keyed by (name, updateIndex).
func DecodeLogValue(name []byte, updateIndex uint64, value []byte) (LogEntry, error) {
	e := LogEntry{Name: append([]byte(nil), name...), UpdateIndex: updateIndex}
	if len(value) < 2*ObjectIDLen {
		return LogEntry{}, rerrors.Format("reftable: log entry %q value truncated", name)
	}
	copy(e.Old[:], value[:ObjectIDLen])
	copy(e.New[:], value[ObjectIDLen:2*ObjectIDLen])
	value = value[2*ObjectIDLen:]

	readString := func() (string, error) {
		size, n, err := Uvarint(value)
		if err != nil {
			return "", rerrors.Formatf(err, "reftable: log entry %q: decoding string length", name)
		}
		value = value[n:]
		if uint64(len(value)) < size {
			return "", rerrors.Format("reftable: log entry %q: string truncated", name)
		}
		s := string(value[:size])
		value = value[size:]
		return s, nil
	}

	var err error
	if e.Who.Name, err = readString(); err != nil {
		return LogEntry{}, err
	}
	if e.Who.Email, err = readString(); err != nil {
		return LogEntry{}, err
	}

	seconds, n, err := Uvarint(value)
	if err != nil {
		return LogEntry{}, rerrors.Formatf(err, "reftable: log entry %q: decoding epoch seconds", name)
	}
	e.Who.Seconds = seconds
	value = value[n:]

	if len(value) < 2 {
		return LogEntry{}, rerrors.Format("reftable: log entry %q: truncated timezone", name)
	}
	e.Who.TZ = int16(binary.BigEndian.Uint16(value[:2]))
	value = value[2:]

	if e.Message, err = readString(); err != nil {
		return LogEntry{}, err
	}
	return e, nil
}
