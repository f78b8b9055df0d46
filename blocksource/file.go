// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blocksource

import (
	"io"
	"os"

	rerrors "github.com/reftable-go/reftable/errors"
)

// File is an *os.File-backed Source. os.File.ReadAt is safe for concurrent
// use by multiple goroutines, satisfying the concurrency model of
// SPEC_FULL.md §5.
type File struct {
	f    *os.File
	size int64
}

// NewFile opens path for reading and wraps it as a Source.
func NewFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, rerrors.IO(err, "reftable: opening table file %q", path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, rerrors.IO(err, "reftable: stat table file %q", path)
	}
	return &File{f: f, size: info.Size()}, nil
}

func (s *File) Size() int64 { return s.size }

func (s *File) ReadAt(buf []byte, off int64) error {
	n, err := s.f.ReadAt(buf, off)
	if err != nil && !(err == io.EOF && n == len(buf)) {
		return rerrors.IO(err, "reftable: reading %d bytes at offset %d", len(buf), off)
	}
	return nil
}

func (s *File) Close() error {
	if err := s.f.Close(); err != nil {
		return rerrors.IO(err, "reftable: closing table file")
	}
	return nil
}
