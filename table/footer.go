// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package table

import (
	"encoding/binary"
	"hash/crc32"

	rerrors "github.com/reftable-go/reftable/errors"
)

// HeaderSize is the fixed file header length (SPEC_FULL.md §6).
const HeaderSize = 24

// FooterSize is the fixed file footer length (SPEC_FULL.md §6).
const FooterSize = 68

// FileVersion is the only version this implementation writes or reads.
const FileVersion = 1

var fileMagic = [4]byte{'R', 'E', 'F', 'T'}

func putUint24(buf []byte, v uint32) {
	buf[0] = byte(v >> 16)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v)
}

func getUint24(buf []byte) uint32 {
	return uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2])
}

// header is the parsed 24-byte file header.
type header struct {
	blockSize      uint32
	minUpdateIndex uint64
	maxUpdateIndex uint64
}

func encodeHeader(buf []byte, h header) {
	copy(buf[0:4], fileMagic[:])
	buf[4] = FileVersion
	putUint24(buf[5:8], h.blockSize)
	binary.BigEndian.PutUint64(buf[8:16], h.minUpdateIndex)
	binary.BigEndian.PutUint64(buf[16:24], h.maxUpdateIndex)
}

func decodeHeader(buf []byte) (header, error) {
	if len(buf) < HeaderSize {
		return header{}, rerrors.Format("reftable: file shorter than header")
	}
	if [4]byte(buf[0:4]) != fileMagic {
		return header{}, rerrors.Integrity("reftable: bad header magic %x", buf[0:4])
	}
	if buf[4] != FileVersion {
		return header{}, rerrors.Format("reftable: unsupported version %d", buf[4])
	}
	return header{
		blockSize:      getUint24(buf[5:8]),
		minUpdateIndex: binary.BigEndian.Uint64(buf[8:16]),
		maxUpdateIndex: binary.BigEndian.Uint64(buf[16:24]),
	}, nil
}

// footer is the parsed 68-byte file footer (SPEC_FULL.md §6).
type footer struct {
	header
	refIndexOffset uint64
	objIndexOffset uint64
	objIDLen       uint8
	logIndexOffset uint64
	crc            uint32
}

// packObjField combines the obj index root offset and the chosen obj-id
// prefix length into one 8-byte footer field (SPEC_FULL.md §9 Open
// Question: we choose the prefix length per-table and record it here).
func packObjField(offset uint64, objIDLen uint8) uint64 {
	return offset<<8 | uint64(objIDLen)
}

func unpackObjField(v uint64) (offset uint64, objIDLen uint8) {
	return v >> 8, uint8(v)
}

func encodeFooter(f footer) []byte {
	buf := make([]byte, FooterSize)
	copy(buf[0:4], fileMagic[:])
	buf[4] = FileVersion
	putUint24(buf[5:8], f.blockSize)
	binary.BigEndian.PutUint64(buf[8:16], f.minUpdateIndex)
	binary.BigEndian.PutUint64(buf[16:24], f.maxUpdateIndex)
	binary.BigEndian.PutUint64(buf[24:32], f.refIndexOffset)
	binary.BigEndian.PutUint64(buf[32:40], packObjField(f.objIndexOffset, f.objIDLen))
	binary.BigEndian.PutUint64(buf[40:48], f.logIndexOffset)
	// bytes 48:64 reserved, left zero.
	crc := crc32.ChecksumIEEE(buf[:FooterSize-4])
	binary.BigEndian.PutUint32(buf[FooterSize-4:], crc)
	return buf
}

func decodeFooter(buf []byte) (footer, error) {
	if len(buf) != FooterSize {
		return footer{}, rerrors.Format("reftable: footer has wrong length %d", len(buf))
	}
	h, err := decodeHeader(buf[:HeaderSize])
	if err != nil {
		return footer{}, err
	}
	var f footer
	f.header = h
	f.refIndexOffset = binary.BigEndian.Uint64(buf[24:32])
	f.objIndexOffset, f.objIDLen = unpackObjField(binary.BigEndian.Uint64(buf[32:40]))
	f.logIndexOffset = binary.BigEndian.Uint64(buf[40:48])
	f.crc = binary.BigEndian.Uint32(buf[FooterSize-4:])

	computed := crc32.ChecksumIEEE(buf[:FooterSize-4])
	if computed != f.crc {
		return footer{}, rerrors.Integrity("reftable: footer CRC mismatch (want %08x, got %08x)", f.crc, computed)
	}
	return f, nil
}
