package cloud

import (
	"errors"
	"io"
)

// MemorySource is an in-memory Source for tests and tooling, mirroring how
// the format drivers behave: ordered scans, restartable iterators, and
// injectable per-record errors.
type MemorySource struct {
	scans  []*MemoryScan
	closed bool
}

// NewMemorySource builds a source over the given scans. Scan indices follow
// the argument order, matching the index a container would assign.
func NewMemorySource(scans ...*MemoryScan) *MemorySource {
	for i, s := range scans {
		s.ScanIndex = i
	}
	return &MemorySource{scans: scans}
}

// Scans returns the scan entries in order.
func (s *MemorySource) Scans() []Scan {
	out := make([]Scan, len(s.scans))
	for i, sc := range s.scans {
		out[i] = sc
	}
	return out
}

// Close marks the source closed. Further Close calls error, matching the
// single-owner lifetime of a real file handle.
func (s *MemorySource) Close() error {
	if s.closed {
		return errors.New("source already closed")
	}
	s.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (s *MemorySource) Closed() bool {
	return s.closed
}

// MemoryScan is a Scan backed by a record slice.
type MemoryScan struct {
	ScanIndex int
	ScanName  string
	Cartesian bool
	ScanPose  *Transform
	Records   []Record

	// RecordErrs maps record positions to injected decode errors. The
	// iterator returns the error in place of the record at that position.
	RecordErrs map[int]error

	// IterErr, when set, makes Points fail outright.
	IterErr error
}

// Index returns the scan's zero-based position.
func (s *MemoryScan) Index() int { return s.ScanIndex }

// Name returns the scan's name.
func (s *MemoryScan) Name() string { return s.ScanName }

// RecordCount returns the declared record count.
func (s *MemoryScan) RecordCount() int64 { return int64(len(s.Records)) }

// HasCartesian reports whether the scan carries Cartesian coordinates.
func (s *MemoryScan) HasCartesian() bool { return s.Cartesian }

// Pose returns the scan's transform, or nil.
func (s *MemoryScan) Pose() *Transform { return s.ScanPose }

// Points returns a fresh iterator over the records.
func (s *MemoryScan) Points() (PointIterator, error) {
	if s.IterErr != nil {
		return nil, s.IterErr
	}
	return &memoryIterator{scan: s}, nil
}

type memoryIterator struct {
	scan *MemoryScan
	pos  int
}

func (it *memoryIterator) Next() (Record, error) {
	if it.pos >= len(it.scan.Records) {
		return Record{}, io.EOF
	}
	i := it.pos
	it.pos++
	if err, ok := it.scan.RecordErrs[i]; ok {
		return Record{}, err
	}
	return it.scan.Records[i], nil
}
