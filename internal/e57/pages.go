package e57

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// The container stores data in fixed-size physical pages. The last four
// bytes of every page hold a CRC-32C of the rest; the logical byte stream
// is the concatenation of the page payloads.
const (
	defaultPageSize = 1024
	crcBytes        = 4
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// pagedReader exposes the logical byte stream over the physical pages of a
// ReaderAt, verifying each page checksum on first touch. It implements
// io.Reader positioned by SeekPhysical; iterators hold their own instance
// so concurrent scans over one file do not share state.
type pagedReader struct {
	ra       io.ReaderAt
	size     int64 // physical size, whole pages
	pageSize int64
	payload  int64 // pageSize - crcBytes
	pos      int64 // logical read position

	page    []byte // cached payload of pageIdx
	pageIdx int64  // -1 when nothing cached
}

func newPagedReader(ra io.ReaderAt, size, pageSize int64) (*pagedReader, error) {
	if pageSize <= crcBytes {
		return nil, fmt.Errorf("page size %d too small", pageSize)
	}
	if size%pageSize != 0 {
		return nil, fmt.Errorf("physical size %d is not a whole number of %d byte pages", size, pageSize)
	}
	return &pagedReader{
		ra:       ra,
		size:     size,
		pageSize: pageSize,
		payload:  pageSize - crcBytes,
		pageIdx:  -1,
	}, nil
}

func (pr *pagedReader) logicalSize() int64 {
	return (pr.size / pr.pageSize) * pr.payload
}

// logicalFromPhysical maps a physical offset to its logical position.
func (pr *pagedReader) logicalFromPhysical(phys int64) (int64, error) {
	if phys < 0 || phys >= pr.size {
		return 0, fmt.Errorf("physical offset %d outside file of %d bytes", phys, pr.size)
	}
	if rem := phys % pr.pageSize; rem >= pr.payload {
		return 0, fmt.Errorf("physical offset %d points into a page checksum", phys)
	}
	return (phys/pr.pageSize)*pr.payload + phys%pr.pageSize, nil
}

// physicalFromLogical maps a logical position to its physical offset.
func physicalFromLogical(logi, pageSize int64) int64 {
	payload := pageSize - crcBytes
	return (logi/payload)*pageSize + logi%payload
}

// SeekPhysical positions the next Read at the given physical offset.
func (pr *pagedReader) SeekPhysical(phys int64) error {
	logi, err := pr.logicalFromPhysical(phys)
	if err != nil {
		return err
	}
	pr.pos = logi
	return nil
}

// SeekLogical positions the next Read at the given logical offset.
func (pr *pagedReader) SeekLogical(logi int64) {
	pr.pos = logi
}

// Pos returns the current logical position.
func (pr *pagedReader) Pos() int64 {
	return pr.pos
}

func (pr *pagedReader) loadPage(idx int64) error {
	if pr.pageIdx == idx {
		return nil
	}
	buf := make([]byte, pr.pageSize)
	if _, err := pr.ra.ReadAt(buf, idx*pr.pageSize); err != nil {
		return fmt.Errorf("read page %d: %w", idx, err)
	}
	want := binary.BigEndian.Uint32(buf[pr.payload:])
	if got := crc32.Checksum(buf[:pr.payload], castagnoli); got != want {
		return fmt.Errorf("page %d: checksum mismatch (got %08x, want %08x)", idx, got, want)
	}
	pr.page = buf[:pr.payload]
	pr.pageIdx = idx
	return nil
}

// Read fills p from the logical stream.
func (pr *pagedReader) Read(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		if pr.pos >= pr.logicalSize() {
			if total > 0 {
				return total, nil
			}
			return 0, io.EOF
		}
		idx := pr.pos / pr.payload
		off := pr.pos % pr.payload
		if err := pr.loadPage(idx); err != nil {
			return total, err
		}
		n := copy(p[total:], pr.page[off:])
		total += n
		pr.pos += int64(n)
	}
	return total, nil
}

// paginate converts a logical byte stream into physical pages: the stream is
// zero-padded to a whole number of payloads and each page gets its CRC-32C.
func paginate(logical []byte, pageSize int64) []byte {
	payload := pageSize - crcBytes
	pages := (int64(len(logical)) + payload - 1) / payload
	if pages == 0 {
		pages = 1
	}
	out := make([]byte, 0, pages*pageSize)
	for i := int64(0); i < pages; i++ {
		chunk := make([]byte, payload)
		start := i * payload
		if start < int64(len(logical)) {
			copy(chunk, logical[start:])
		}
		out = append(out, chunk...)
		out = binary.BigEndian.AppendUint32(out, crc32.Checksum(chunk, castagnoli))
	}
	return out
}
