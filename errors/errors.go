// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package errors defines the error taxonomy shared by the reftable block
// codec, writer, reader, and compactor. Every fallible operation in this
// module returns one of the kinds below, wrapped with context via
// github.com/cockroachdb/errors so that errors.Is/errors.As keep working
// through the call stack.
package errors

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// Kind classifies a reftable error for programmatic handling. See
// SPEC_FULL.md §7 for the taxonomy and recovery semantics of each kind.
type Kind int

const (
	// KindFormat marks malformed block or record bytes.
	KindFormat Kind = iota
	// KindIntegrity marks a CRC or magic mismatch.
	KindIntegrity
	// KindIO marks a block-source failure.
	KindIO
	// KindContract marks a caller ordering/section/naming violation.
	KindContract
	// KindBlockSizeTooSmall marks a block size that cannot hold some record.
	KindBlockSizeTooSmall
	// KindPeeledRefRequired marks an annotated-tag ref missing its peeled id.
	KindPeeledRefRequired
	// KindUnsupported marks an operation meaningless for a given cursor.
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindFormat:
		return "FormatError"
	case KindIntegrity:
		return "IntegrityError"
	case KindIO:
		return "IOError"
	case KindContract:
		return "ContractError"
	case KindBlockSizeTooSmall:
		return "BlockSizeTooSmall"
	case KindPeeledRefRequired:
		return "PeeledRefRequired"
	case KindUnsupported:
		return "Unsupported"
	default:
		return "UnknownError"
	}
}

// taggedError carries a Kind alongside the wrapped cockroachdb/errors chain
// so that Is(err, KindIntegrity) works after arbitrary wrapping.
type taggedError struct {
	kind Kind
	err  error
}

func (e *taggedError) Error() string { return e.err.Error() }
func (e *taggedError) Cause() error  { return e.err }
func (e *taggedError) Unwrap() error { return e.err }

// kindMarker lets errors.Is match purely on Kind, independent of message.
type kindMarker Kind

func (m kindMarker) Error() string { return Kind(m).String() }

func newKind(kind Kind, err error) error {
	return &taggedError{kind: kind, err: errors.Mark(err, kindMarker(kind))}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	return errors.Is(err, kindMarker(kind))
}

// KindOf extracts the Kind from an error produced by this package, if any.
func KindOf(err error) (Kind, bool) {
	var te *taggedError
	if errors.As(err, &te) {
		return te.kind, true
	}
	return 0, false
}

// Format reports a malformed block or record.
func Format(format string, args ...interface{}) error {
	return newKind(KindFormat, errors.Newf(format, args...))
}

// Formatf wraps an existing error as a FormatError, adding context.
func Formatf(err error, format string, args ...interface{}) error {
	return newKind(KindFormat, errors.Wrapf(err, format, args...))
}

// Integrity reports a CRC or magic mismatch. Its arguments are formatted
// with errors.Newf and are not marked safe; IntegrityAt is the variant that
// marks the offset with errors.Safe for redacted logs.
func Integrity(format string, args ...interface{}) error {
	return newKind(KindIntegrity, errors.Newf(format, args...))
}

// IntegrityAt reports an integrity failure at a known file offset, safe
// for redacted reporting.
func IntegrityAt(offset int64, format string, args ...interface{}) error {
	msg := errors.Newf(format, args...)
	return newKind(KindIntegrity, errors.Wrapf(msg, "at offset %s", errors.Safe(offset)))
}

// IO wraps a block-source failure.
func IO(err error, format string, args ...interface{}) error {
	if err == nil {
		return newKind(KindIO, errors.Newf(format, args...))
	}
	return newKind(KindIO, errors.Wrapf(err, format, args...))
}

// Contract reports a caller ordering/section/naming violation.
func Contract(format string, args ...interface{}) error {
	return newKind(KindContract, errors.Newf(format, args...))
}

// BlockSizeTooSmall reports that configured size cannot hold some record,
// carrying the minimum size that would have worked.
type BlockSizeTooSmallError struct {
	Minimum int
	inner   error
}

func (e *BlockSizeTooSmallError) Error() string { return e.inner.Error() }
func (e *BlockSizeTooSmallError) Unwrap() error { return e.inner }

// BlockSizeTooSmall constructs the error carrying the minimum required size.
func BlockSizeTooSmall(configured, minimum int) error {
	inner := errors.Newf("reftable: block size %d too small, need at least %d", configured, minimum)
	return newKind(KindBlockSizeTooSmall, &BlockSizeTooSmallError{Minimum: minimum, inner: inner})
}

// MinimumBlockSize extracts the minimum acceptable size from a
// BlockSizeTooSmall error, if present.
func MinimumBlockSize(err error) (int, bool) {
	var bs *BlockSizeTooSmallError
	if errors.As(err, &bs) {
		return bs.Minimum, true
	}
	return 0, false
}

// PeeledRefRequired reports that an annotated-tag ref is missing its peeled id.
func PeeledRefRequired(name redact.RedactableString) error {
	return newKind(KindPeeledRefRequired, errors.Newf("reftable: annotated tag %s requires a peeled id", name))
}

// Unsupported reports that an operation is meaningless for a cursor kind.
func Unsupported(op string) error {
	return newKind(KindUnsupported, errors.Newf("reftable: %s is unsupported on this cursor", op))
}

// SafeName wraps a reference/record name for inclusion in error messages,
// marking it safe for redacted crash reporting the way teacher marks
// diagnostic-only identifiers with errors.Safe.
func SafeName(name []byte) redact.RedactableString {
	return redact.Sprintf("%s", redact.SafeString(string(name)))
}
