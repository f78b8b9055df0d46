// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package table

import (
	"bytes"
	"io"
	"sort"

	"github.com/reftable-go/reftable/block"
	rerrors "github.com/reftable-go/reftable/errors"
	"github.com/reftable-go/reftable/record"
)

// State is the writer's position in the state machine of SPEC_FULL.md §4.6:
// Init -> Began -> (WritingRefs?) -> (WritingObjs?) -> (WritingLog?) -> Finished.
type State int

const (
	StateInit State = iota
	StateBegan
	StateWritingRefs
	StateWritingObjs
	StateWritingLog
	StateFinished
)

// WriterStats is published after Finish (SPEC_FULL.md §4.2).
type WriterStats struct {
	RefBytes, ObjBytes, LogBytes     int64
	RefCount, ObjCount, LogCount     int64
	RefBlocks, ObjBlocks, LogBlocks  int64
	RefIndexLevels, ObjIndexLevels   int
	LogIndexLevels                   int
	TotalBytes                       int64
	BlockSizeHistogram               *blockSizeHistogram
}

// Writer serializes a strictly increasing stream of records into one
// sealed table (SPEC_FULL.md §4.2).
type Writer struct {
	opts  WriterOptions
	out   io.Writer
	state State

	offset int64

	minUpdateIndex, maxUpdateIndex uint64

	refSection section
	logSection section

	objIDs map[record.ObjectID]map[uint64]struct{} // full id -> set of ref-block offsets

	refIndexRoot, objIndexRoot, logIndexRoot uint64
	objIDLen                                 uint8
	refsAndObjsClosed                        bool

	stats WriterStats
	hist  *blockSizeHistogram
}

// section tracks one of the ref/log leaf-block streams as it is written.
type section struct {
	blockType   record.BlockType
	blockWriter *block.Writer
	blockStart  int64
	lastKey     []byte
	started     bool
	level0      []record.IndexEntry
	blockCount  int64
	recordCount int64
	byteCount   int64
}

// NewWriter creates a Writer in state Init.
func NewWriter(out io.Writer, opts WriterOptions) *Writer {
	return &Writer{
		opts:   opts,
		out:    out,
		state:  StateInit,
		objIDs: make(map[record.ObjectID]map[uint64]struct{}),
		hist:   newBlockSizeHistogram(),
	}
}

// Begin transitions Init -> Began, recording the table's update-index range
// and emitting the file header.
func (w *Writer) Begin(minUpdateIndex, maxUpdateIndex uint64) error {
	if w.state != StateInit {
		return rerrors.Contract("reftable: Begin called out of order (state %d)", w.state)
	}
	if minUpdateIndex > maxUpdateIndex {
		return rerrors.Contract("reftable: min update-index %d exceeds max %d", minUpdateIndex, maxUpdateIndex)
	}
	bs := w.opts.blockSize()
	if bs < MinBlockSize {
		return rerrors.BlockSizeTooSmall(bs, MinBlockSize)
	}

	w.minUpdateIndex, w.maxUpdateIndex = minUpdateIndex, maxUpdateIndex

	buf := make([]byte, HeaderSize)
	encodeHeader(buf, header{blockSize: uint32(bs), minUpdateIndex: minUpdateIndex, maxUpdateIndex: maxUpdateIndex})
	if err := w.write(buf); err != nil {
		return err
	}
	w.state = StateBegan
	w.refSection = section{blockType: record.BlockTypeRef}
	w.logSection = section{blockType: record.BlockTypeLog}
	return nil
}

func (w *Writer) write(p []byte) error {
	if _, err := w.out.Write(p); err != nil {
		return rerrors.IO(err, "reftable: writing %d bytes at offset %d", len(p), w.offset)
	}
	w.offset += int64(len(p))
	return nil
}

// WriteRef encodes one reference into the ref section. Names must be
// strictly increasing across calls (SPEC_FULL.md §4.2).
func (w *Writer) WriteRef(r record.Ref) error {
	switch w.state {
	case StateBegan:
		w.state = StateWritingRefs
	case StateWritingRefs:
	default:
		return rerrors.Contract("reftable: WriteRef called after refs section closed (state %d)", w.state)
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if r.UpdateIndex < w.minUpdateIndex || r.UpdateIndex > w.maxUpdateIndex {
		return rerrors.Contract("reftable: ref %q update-index %d outside table range [%d,%d]", r.Name, r.UpdateIndex, w.minUpdateIndex, w.maxUpdateIndex)
	}
	if w.refSection.lastKey != nil && bytes.Compare(w.refSection.lastKey, r.Name) >= 0 {
		return rerrors.Contract("reftable: ref %q does not strictly increase after %q", r.Name, w.refSection.lastKey)
	}

	kindBits, value := r.EncodeValue(w.minUpdateIndex)
	if err := w.addToSection(&w.refSection, r.Name, kindBits, value); err != nil {
		return err
	}
	w.refSection.lastKey = append(w.refSection.lastKey[:0], r.Name...)

	if w.opts.indexObjects() {
		blockOffset := uint64(w.refSection.blockStart)
		if r.Kind == record.RefPacked || r.Kind == record.RefPeeledTag {
			w.recordObjectRef(r.Value, blockOffset)
		}
		if r.Kind == record.RefPeeledTag {
			w.recordObjectRef(r.Peeled, blockOffset)
		}
	}
	return nil
}

func (w *Writer) recordObjectRef(id record.ObjectID, blockOffset uint64) {
	set, ok := w.objIDs[id]
	if !ok {
		set = make(map[uint64]struct{})
		w.objIDs[id] = set
	}
	set[blockOffset] = struct{}{}
}

// SortAndWriteRefs writes refs, verifying the collection is already
// strictly increasing by name.
func (w *Writer) SortAndWriteRefs(refs []record.Ref) error {
	for i := 1; i < len(refs); i++ {
		if refs[i-1].Compare(&refs[i]) >= 0 {
			return rerrors.Contract("reftable: ref collection not strictly increasing at index %d (%q >= %q)", i, refs[i-1].Name, refs[i].Name)
		}
	}
	for _, r := range refs {
		if err := w.WriteRef(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteLog encodes one reflog entry. Composite keys (name, updateIndex)
// must be strictly increasing across calls, and updateIndex must lie
// inside the table's [min,max] range (SPEC_FULL.md §4.2).
func (w *Writer) WriteLog(e record.LogEntry) error {
	switch w.state {
	case StateBegan, StateWritingRefs:
		if err := w.closeRefsAndObjs(); err != nil {
			return err
		}
		w.state = StateWritingLog
	case StateWritingLog:
	default:
		return rerrors.Contract("reftable: WriteLog called out of order (state %d)", w.state)
	}
	if err := record.ValidateName(e.Name); err != nil {
		return err
	}
	if e.UpdateIndex < w.minUpdateIndex || e.UpdateIndex > w.maxUpdateIndex {
		return rerrors.Contract("reftable: log entry %q update-index %d outside table range [%d,%d]", e.Name, e.UpdateIndex, w.minUpdateIndex, w.maxUpdateIndex)
	}
	key := e.FullKey()
	if w.logSection.lastKey != nil && record.CompareLogKeys(w.logSection.lastKey, key) >= 0 {
		return rerrors.Contract("reftable: log key for %q does not strictly increase", e.Name)
	}
	value := e.EncodeValue()
	if err := w.addToSection(&w.logSection, key, 0, value); err != nil {
		return err
	}
	w.logSection.lastKey = append(w.logSection.lastKey[:0], key...)
	return nil
}

// addToSection appends one record to the section's current block, rolling
// over to a new block when full.
func (w *Writer) addToSection(s *section, key []byte, kindBits byte, value []byte) error {
	if !s.started {
		s.blockStart = w.offset
		compress := s.blockType == record.BlockTypeLog && w.opts.compressLogs()
		s.blockWriter = block.NewWriter(s.blockType, s.blockStart, w.opts.blockSize(), w.opts.restartInterval(), compress)
		s.started = true
	}

	ok, err := s.blockWriter.Add(key, kindBits, value)
	if err != nil {
		return err
	}
	if !ok {
		if err := w.closeSectionBlock(s, false); err != nil {
			return err
		}
		s.blockStart = w.offset
		compress := s.blockType == record.BlockTypeLog && w.opts.compressLogs()
		s.blockWriter = block.NewWriter(s.blockType, s.blockStart, w.opts.blockSize(), w.opts.restartInterval(), compress)
		ok, err = s.blockWriter.Add(key, kindBits, value)
		if err != nil {
			return err
		}
		if !ok {
			return rerrors.Format("reftable: record for %q does not fit in an empty block", key)
		}
	}
	s.recordCount++
	return nil
}

// closeSectionBlock finalizes the section's current block and records its
// level-0 index entry. If align-blocks is configured and last is false, the
// block is padded to the configured block size.
func (w *Writer) closeSectionBlock(s *section, last bool) error {
	if !s.started || s.blockWriter.Empty() {
		return nil
	}
	buf, err := s.blockWriter.Finish()
	if err != nil {
		return err
	}
	if w.opts.AlignBlocks && !last {
		if pad := w.opts.blockSize() - len(buf); pad > 0 {
			buf = append(buf, make([]byte, pad)...)
		}
	}
	w.hist.record(len(buf))
	if err := w.write(buf); err != nil {
		return err
	}
	s.level0 = append(s.level0, record.IndexEntry{
		LastKey: append([]byte(nil), s.lastKey...),
		Offset:  uint64(s.blockStart),
	})
	s.blockCount++
	s.byteCount += int64(len(buf))
	s.started = false
	s.blockWriter = nil
	return nil
}

// chooseObjectIDLen picks the shortest prefix length (starting at
// record.MinObjectPrefixLen) such that no two distinct indexed object ids
// share a prefix (SPEC_FULL.md §9 Open Question).
func chooseObjectIDLen(ids []record.ObjectID) uint8 {
	for length := record.MinObjectPrefixLen; length <= record.ObjectIDLen; length++ {
		seen := make(map[string]bool, len(ids))
		collision := false
		for _, id := range ids {
			p := string(id[:length])
			if seen[p] {
				collision = true
				break
			}
			seen[p] = true
		}
		if !collision {
			return uint8(length)
		}
	}
	return record.ObjectIDLen
}

// closeRefsAndObjs finalizes the ref section's trailing block, builds its
// index pyramid, and (if configured) writes the obj section, all before any
// log bytes are written. This must happen before the first log block is
// appended: otherwise the ref section's still-open trailing block would be
// flushed to the file only at Finish time, long after log (and obj) bytes
// had already advanced the write offset past where that block's offset was
// recorded. Idempotent.
func (w *Writer) closeRefsAndObjs() error {
	if w.refsAndObjsClosed {
		return nil
	}
	if err := w.closeSectionBlock(&w.refSection, true); err != nil {
		return err
	}
	w.stats.RefCount = w.refSection.recordCount
	w.stats.RefBlocks = w.refSection.blockCount
	w.stats.RefBytes = w.refSection.byteCount

	refRoot, refLevels, err := w.buildIndexPyramid(w.refSection.level0)
	if err != nil {
		return err
	}
	w.refIndexRoot = refRoot
	w.stats.RefIndexLevels = refLevels

	if w.opts.indexObjects() {
		w.state = StateWritingObjs
		if err := w.writeObjSection(); err != nil {
			return err
		}
	}
	w.refsAndObjsClosed = true
	return nil
}

// writeObjSection flushes the accumulated object->refs back index, if any,
// choosing the table's object-id prefix length and building its level-0
// index entries.
func (w *Writer) writeObjSection() error {
	if len(w.objIDs) == 0 {
		return nil
	}
	ids := make([]record.ObjectID, 0, len(w.objIDs))
	for id := range w.objIDs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	w.objIDLen = chooseObjectIDLen(ids)

	entries := make([]record.ObjEntry, 0, len(ids))
	for _, id := range ids {
		positions := make([]uint64, 0, len(w.objIDs[id]))
		for pos := range w.objIDs[id] {
			positions = append(positions, pos)
		}
		sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })
		entries = append(entries, record.ObjEntry{Prefix: append([]byte(nil), id[:w.objIDLen]...), Positions: positions})
	}
	sort.Slice(entries, func(i, j int) bool { return bytes.Compare(entries[i].Prefix, entries[j].Prefix) < 0 })

	objSection := section{blockType: record.BlockTypeObj}
	for _, e := range entries {
		if err := w.addToSection(&objSection, e.Key(), 0, e.EncodeValue()); err != nil {
			return err
		}
		objSection.lastKey = append(objSection.lastKey[:0], e.Key()...)
	}
	if err := w.closeSectionBlock(&objSection, true); err != nil {
		return err
	}
	w.stats.ObjCount = objSection.recordCount
	w.stats.ObjBlocks = objSection.blockCount
	w.stats.ObjBytes = objSection.byteCount

	root, levels, err := w.buildIndexPyramid(objSection.level0)
	if err != nil {
		return err
	}
	w.objIndexRoot = root
	w.stats.ObjIndexLevels = levels
	return nil
}

// buildIndexPyramid chunks level-0 index entries into index blocks,
// recursively promoting to higher levels until one block remains, per
// SPEC_FULL.md §4.2. If MaxIndexLevels is exceeded before convergence, the
// remaining entries are written into one oversized flat block instead
// (readers tolerate this; SPEC_FULL.md §4.2).
func (w *Writer) buildIndexPyramid(level []record.IndexEntry) (root uint64, levels int, err error) {
	if len(level) == 0 {
		return 0, 0, nil
	}
	for {
		levels++
		if w.opts.MaxIndexLevels > 0 && levels > w.opts.MaxIndexLevels {
			off, err := w.writeFlatIndexBlock(level)
			if err != nil {
				return 0, 0, err
			}
			return off, levels, nil
		}

		var next []record.IndexEntry
		i := 0
		for i < len(level) {
			blockStart := w.offset
			bw := block.NewWriter(record.BlockTypeIndex, blockStart, w.opts.blockSize(), w.opts.restartInterval(), false)
			j := i
			for j < len(level) {
				e := level[j]
				ok, addErr := bw.Add(e.Key(), 0, e.EncodeValue())
				if addErr != nil {
					if j == i {
						return 0, 0, addErr
					}
					return 0, 0, addErr
				}
				if !ok {
					break
				}
				j++
			}
			if j == i {
				// A single entry doesn't fit a fresh block: this can only
				// happen with a pathologically small block size.
				return 0, 0, rerrors.Format("reftable: index entry for %q does not fit in an empty block", level[i].Key())
			}
			buf, ferr := bw.Finish()
			if ferr != nil {
				return 0, 0, ferr
			}
			w.hist.record(len(buf))
			if werr := w.write(buf); werr != nil {
				return 0, 0, werr
			}
			next = append(next, record.IndexEntry{LastKey: append([]byte(nil), level[j-1].Key()...), Offset: uint64(blockStart)})
			i = j
		}
		if len(next) == 1 {
			return next[0].Offset, levels, nil
		}
		level = next
	}
}

// writeFlatIndexBlock writes every remaining entry into a single block,
// bypassing the normal target-size cap (SPEC_FULL.md §4.2 "oversized flat
// index").
func (w *Writer) writeFlatIndexBlock(level []record.IndexEntry) (uint64, error) {
	blockStart := w.offset
	bw := block.NewWriter(record.BlockTypeIndex, blockStart, block.MaxBlockSize, w.opts.restartInterval(), false)
	for _, e := range level {
		if _, err := bw.Add(e.Key(), 0, e.EncodeValue()); err != nil {
			return 0, err
		}
	}
	buf, err := bw.Finish()
	if err != nil {
		return 0, err
	}
	w.hist.record(len(buf))
	if err := w.write(buf); err != nil {
		return 0, err
	}
	return uint64(blockStart), nil
}

// Finish closes any open section, writes indexes and the footer, and
// transitions to Finished. Finish is idempotent once Finished.
func (w *Writer) Finish() (WriterStats, error) {
	if w.state == StateFinished {
		return w.stats, nil
	}
	if w.state == StateInit {
		return WriterStats{}, rerrors.Contract("reftable: Finish called before Begin")
	}

	if err := w.closeRefsAndObjs(); err != nil {
		return WriterStats{}, err
	}

	if err := w.closeSectionBlock(&w.logSection, true); err != nil {
		return WriterStats{}, err
	}
	w.stats.LogCount = w.logSection.recordCount
	w.stats.LogBlocks = w.logSection.blockCount
	w.stats.LogBytes = w.logSection.byteCount

	logRoot, logLevels, err := w.buildIndexPyramid(w.logSection.level0)
	if err != nil {
		return WriterStats{}, err
	}
	w.logIndexRoot = logRoot
	w.stats.LogIndexLevels = logLevels

	foot := footer{
		header: header{
			blockSize:      uint32(w.opts.blockSize()),
			minUpdateIndex: w.minUpdateIndex,
			maxUpdateIndex: w.maxUpdateIndex,
		},
		refIndexOffset: w.refIndexRoot,
		objIndexOffset: w.objIndexRoot,
		objIDLen:       w.objIDLen,
		logIndexOffset: w.logIndexRoot,
	}
	if err := w.write(encodeFooter(foot)); err != nil {
		return WriterStats{}, err
	}

	w.stats.TotalBytes = w.offset
	w.stats.BlockSizeHistogram = w.hist
	w.state = StateFinished
	return w.stats, nil
}
