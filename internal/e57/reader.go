// Package e57 reads and writes the ASTM E2807 point-cloud container: a
// paged, checksummed physical layout holding an XML index and per-scan
// CompressedVector binary sections of bit-packed point records.
//
// The reader covers Cartesian prototypes (Float, Integer and ScaledInteger
// fields, optional color and validity state) and decodes lazily, one record
// at a time. The writer produces the same layout and exists for fixtures
// and tooling; the two sides are exact mirrors.
package e57

import (
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/scanstream/internal/cloud"
)

// File is an opened container. It implements cloud.Source; every scan's
// iterator reads through its own paged view of the same underlying handle.
type File struct {
	ra     io.ReaderAt
	size   int64
	closer io.Closer
	header fileHeader
	guid   string
	scans  []cloud.Scan
}

// Open opens the container at path.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	file, err := OpenReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	file.closer = f
	return file, nil
}

// OpenReader opens a container over any ReaderAt of the given size.
func OpenReader(ra io.ReaderAt, size int64) (*File, error) {
	// The header is read raw: the page size inside it is needed before any
	// checksummed paged read can happen.
	raw := make([]byte, headerSize)
	if _, err := ra.ReadAt(raw, 0); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	h, err := parseHeader(raw)
	if err != nil {
		return nil, err
	}
	if int64(h.PhysicalLength) != size {
		return nil, fmt.Errorf("header claims %d physical bytes, file has %d", h.PhysicalLength, size)
	}

	pr, err := newPagedReader(ra, size, int64(h.PageSize))
	if err != nil {
		return nil, err
	}
	if err := pr.SeekPhysical(int64(h.XMLPhysicalOffset)); err != nil {
		return nil, fmt.Errorf("seek XML index: %w", err)
	}
	xmlBuf := make([]byte, h.XMLLogicalLength)
	if _, err := io.ReadFull(pr, xmlBuf); err != nil {
		return nil, fmt.Errorf("read XML index: %w", err)
	}
	root, err := parseXMLIndex(xmlBuf)
	if err != nil {
		return nil, err
	}

	file := &File{ra: ra, size: size, header: h, guid: root.GUID}
	for i, xs := range root.Data3D.Children {
		info, err := scanInfoFromXML(xs)
		if err != nil {
			return nil, fmt.Errorf("scan %d: %w", i, err)
		}
		file.scans = append(file.scans, &fileScan{file: file, index: i, info: info})
	}
	return file, nil
}

// Scans returns the scan entries in container order.
func (f *File) Scans() []cloud.Scan {
	return f.scans
}

// GUID returns the container's declared identifier.
func (f *File) GUID() string {
	return f.guid
}

// Version returns the container format version.
func (f *File) Version() (major, minor uint32) {
	return f.header.Major, f.header.Minor
}

// Close releases the underlying file handle, if Open provided one.
func (f *File) Close() error {
	if f.closer == nil {
		return nil
	}
	err := f.closer.Close()
	f.closer = nil
	return err
}

// fileScan implements cloud.Scan over one data3D entry.
type fileScan struct {
	file  *File
	index int
	info  scanInfo
}

func (s *fileScan) Index() int             { return s.index }
func (s *fileScan) Name() string           { return s.info.name }
func (s *fileScan) RecordCount() int64     { return s.info.recordCount }
func (s *fileScan) HasCartesian() bool     { return s.info.hasCartesian() }
func (s *fileScan) Pose() *cloud.Transform { return s.info.pose }

// Points returns a fresh iterator over the scan's records.
func (s *fileScan) Points() (cloud.PointIterator, error) {
	it, err := newCVIterator(s.file.ra, s.file.size, int64(s.file.header.PageSize), &s.info)
	if err != nil {
		return nil, fmt.Errorf("scan %d: %w", s.index, err)
	}
	return it, nil
}
