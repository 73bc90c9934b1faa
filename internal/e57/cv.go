package e57

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/banshee-data/scanstream/internal/cloud"
	"github.com/banshee-data/scanstream/internal/units"
	"gonum.org/v1/gonum/spatial/r3"
)

// CompressedVector binary section layout.
const (
	sectionHeaderSize = 32
	sectionIDPoints   = 1

	packetTypeIndex = 0
	packetTypeData  = 1
	packetTypeEmpty = 2

	// Common packet prefix: type, flags, logical length minus one.
	packetPrefixSize = 4
	maxPacketSize    = 1 << 16
)

type sectionHeader struct {
	LogicalLength       int64 // whole section including this header
	DataPhysicalOffset  int64 // physical offset of the first packet
	IndexPhysicalOffset int64 // zero when the writer emits no index
}

func parseSectionHeader(buf []byte) (sectionHeader, error) {
	var sh sectionHeader
	if len(buf) < sectionHeaderSize {
		return sh, fmt.Errorf("section header: need %d bytes, have %d", sectionHeaderSize, len(buf))
	}
	if buf[0] != sectionIDPoints {
		return sh, fmt.Errorf("section header: unexpected section id %d", buf[0])
	}
	sh.LogicalLength = int64(binary.LittleEndian.Uint64(buf[8:16]))
	sh.DataPhysicalOffset = int64(binary.LittleEndian.Uint64(buf[16:24]))
	sh.IndexPhysicalOffset = int64(binary.LittleEndian.Uint64(buf[24:32]))
	return sh, nil
}

func (sh sectionHeader) encode() []byte {
	buf := make([]byte, sectionHeaderSize)
	buf[0] = sectionIDPoints
	binary.LittleEndian.PutUint64(buf[8:16], uint64(sh.LogicalLength))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(sh.DataPhysicalOffset))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(sh.IndexPhysicalOffset))
	return buf
}

// cvIterator decodes a scan's CompressedVector section packet by packet.
//
// Each data packet carries a whole number of records, bit-packed per field
// into byte-padded bytestreams. A malformed packet costs one record error
// and decoding resumes at the next packet, so corruption stays local.
type cvIterator struct {
	pr        *pagedReader
	proto     []protoField
	remaining int64

	xi, yi, zi int // prototype indices, -1 when absent
	ri, gi, bi int
	vi         int
	hasXYZ     bool
	hasColor   bool

	streams []*bitReader
	avail   int64     // records decodable from the current packet
	vals    []float64 // per-field scratch
	raws    []int64   // per-field scratch for integer kinds
}

func newCVIterator(ra io.ReaderAt, size, pageSize int64, info *scanInfo) (*cvIterator, error) {
	pr, err := newPagedReader(ra, size, pageSize)
	if err != nil {
		return nil, err
	}
	if err := pr.SeekPhysical(info.fileOffset); err != nil {
		return nil, fmt.Errorf("seek section: %w", err)
	}
	buf := make([]byte, sectionHeaderSize)
	if _, err := io.ReadFull(pr, buf); err != nil {
		return nil, fmt.Errorf("read section header: %w", err)
	}
	sh, err := parseSectionHeader(buf)
	if err != nil {
		return nil, err
	}
	if info.recordCount > 0 {
		if err := pr.SeekPhysical(sh.DataPhysicalOffset); err != nil {
			return nil, fmt.Errorf("seek packets: %w", err)
		}
	}

	it := &cvIterator{
		pr:        pr,
		proto:     info.proto,
		remaining: info.recordCount,
		vals:      make([]float64, len(info.proto)),
		raws:      make([]int64, len(info.proto)),
	}
	it.resolveFields()
	return it, nil
}

func (it *cvIterator) resolveFields() {
	it.xi, it.yi, it.zi = -1, -1, -1
	it.ri, it.gi, it.bi = -1, -1, -1
	it.vi = -1
	for i := range it.proto {
		switch it.proto[i].name {
		case elemCartesianX:
			it.xi = i
		case elemCartesianY:
			it.yi = i
		case elemCartesianZ:
			it.zi = i
		case elemColorRed:
			it.ri = i
		case elemColorGreen:
			it.gi = i
		case elemColorBlue:
			it.bi = i
		case elemInvalidState:
			it.vi = i
		}
	}
	it.hasXYZ = it.xi >= 0 && it.yi >= 0 && it.zi >= 0
	it.hasColor = it.ri >= 0 && it.gi >= 0 && it.bi >= 0
}

// Next decodes the next record. io.EOF after the declared record count; any
// other error costs exactly one record and iteration can continue.
func (it *cvIterator) Next() (cloud.Record, error) {
	if it.remaining <= 0 {
		return cloud.Record{}, io.EOF
	}
	if it.avail == 0 {
		if err := it.loadPacket(); err != nil {
			it.remaining--
			return cloud.Record{}, err
		}
	}
	rec, err := it.decodeRecord()
	it.remaining--
	if err != nil {
		// Drop the rest of this packet and resync at the next.
		it.streams = nil
		it.avail = 0
		return cloud.Record{}, err
	}
	it.avail--
	if it.avail == 0 {
		it.streams = nil
	}
	return rec, nil
}

// loadPacket advances to the next data packet, skipping index and empty
// packets.
func (it *cvIterator) loadPacket() error {
	for {
		var prefix [packetPrefixSize]byte
		if _, err := io.ReadFull(it.pr, prefix[:]); err != nil {
			return fmt.Errorf("read packet: %w", err)
		}
		length := int(binary.LittleEndian.Uint16(prefix[2:4])) + 1
		if length < packetPrefixSize {
			return fmt.Errorf("packet length %d shorter than its prefix", length)
		}
		body := make([]byte, length-packetPrefixSize)
		if _, err := io.ReadFull(it.pr, body); err != nil {
			return fmt.Errorf("read packet body: %w", err)
		}
		switch prefix[0] {
		case packetTypeData:
			return it.parseDataPacket(body)
		case packetTypeIndex, packetTypeEmpty:
			continue
		default:
			return fmt.Errorf("unexpected packet type %d", prefix[0])
		}
	}
}

func (it *cvIterator) parseDataPacket(body []byte) error {
	if len(body) < 2 {
		return fmt.Errorf("data packet truncated before bytestream count")
	}
	n := int(binary.LittleEndian.Uint16(body[0:2]))
	if n != len(it.proto) {
		return fmt.Errorf("data packet has %d bytestreams, prototype has %d fields", n, len(it.proto))
	}
	off := 2
	counts := make([]int, n)
	for i := range counts {
		if off+2 > len(body) {
			return fmt.Errorf("data packet truncated in byte counts")
		}
		counts[i] = int(binary.LittleEndian.Uint16(body[off : off+2]))
		off += 2
	}
	streams := make([]*bitReader, n)
	for i, c := range counts {
		if off+c > len(body) {
			return fmt.Errorf("data packet truncated in bytestream %d", i)
		}
		streams[i] = newBitReader(body[off : off+c])
		off += c
	}

	// Whole records per packet: the tightest field bounds how many.
	avail := int64(math.MaxInt64)
	constrained := false
	for i := range it.proto {
		w := it.proto[i].width()
		if w == 0 {
			continue
		}
		constrained = true
		if c := int64(streams[i].remaining() / w); c < avail {
			avail = c
		}
	}
	if !constrained {
		avail = it.remaining
	}
	if avail <= 0 {
		return fmt.Errorf("data packet holds no decodable records")
	}
	it.streams = streams
	it.avail = avail
	return nil
}

func (it *cvIterator) decodeRecord() (cloud.Record, error) {
	for i := range it.proto {
		f := &it.proto[i]
		switch f.kind {
		case fieldFloat:
			if f.single {
				raw, err := it.streams[i].readBits(32)
				if err != nil {
					return cloud.Record{}, fmt.Errorf("field %s: %w", f.name, err)
				}
				it.vals[i] = float64(math.Float32frombits(uint32(raw)))
			} else {
				raw, err := it.streams[i].readBits(64)
				if err != nil {
					return cloud.Record{}, fmt.Errorf("field %s: %w", f.name, err)
				}
				it.vals[i] = math.Float64frombits(raw)
			}
			it.raws[i] = 0
		case fieldInteger, fieldScaledInteger:
			raw, err := it.streams[i].readBits(f.bitWidth)
			if err != nil {
				return cloud.Record{}, fmt.Errorf("field %s: %w", f.name, err)
			}
			v := f.min + int64(raw)
			if v > f.max {
				return cloud.Record{}, fmt.Errorf("field %s: value %d above maximum %d", f.name, v, f.max)
			}
			it.raws[i] = v
			if f.kind == fieldScaledInteger {
				it.vals[i] = float64(v)*f.scale + f.offset
			} else {
				it.vals[i] = float64(v)
			}
		}
	}

	rec := cloud.Record{Valid: true}
	if it.hasXYZ {
		rec.Pos = r3.Vec{X: it.vals[it.xi], Y: it.vals[it.yi], Z: it.vals[it.zi]}
	} else {
		rec.Valid = false
	}
	if it.vi >= 0 && it.raws[it.vi] != 0 {
		rec.Valid = false
	}
	if it.hasColor {
		rec.HasColor = true
		rec.Color = cloud.RGB{
			R: it.normalizedColor(it.ri),
			G: it.normalizedColor(it.gi),
			B: it.normalizedColor(it.bi),
		}
	}
	return rec, nil
}

// normalizedColor maps the stored color field to [0,1]. Integer kinds
// normalize over their declared bounds; Float fields are assumed already
// normalized and get clamped.
func (it *cvIterator) normalizedColor(i int) float64 {
	f := &it.proto[i]
	if f.kind == fieldFloat {
		return units.Clamp01(it.vals[i])
	}
	span := f.max - f.min
	if span <= 0 {
		return 0
	}
	return float64(it.raws[i]-f.min) / float64(span)
}
