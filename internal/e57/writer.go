package e57

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/banshee-data/scanstream/internal/cloud"
	"github.com/banshee-data/scanstream/internal/units"
	"github.com/google/uuid"
)

// ScanData describes one scan for the writer. Color and validity fields
// appear in the prototype only when some record carries them.
type ScanData struct {
	Name    string
	Pose    *cloud.Transform
	Records []cloud.Record

	// SinglePrecision packs coordinates as 32-bit floats.
	SinglePrecision bool

	// Scaled, when set, packs coordinates as ScaledIntegers instead of
	// floats. Every coordinate must quantize into [Min, Max].
	Scaled *ScaledCoords

	// OmitCartesian drops the coordinate fields entirely, producing a scan
	// without spatial data.
	OmitCartesian bool
}

// ScaledCoords parameterizes ScaledInteger coordinate packing:
// stored = (value - Offset) / Scale, held in [Min, Max].
type ScaledCoords struct {
	Scale  float64
	Offset float64
	Min    int64
	Max    int64
}

// scanMeta is the writer's per-scan bookkeeping fed into the XML index.
type scanMeta struct {
	guid        string
	name        string
	pose        *cloud.Transform
	fileOffset  int64 // physical
	recordCount int64
	proto       []protoField
}

// Writer assembles a container in memory and emits it paginated.
type Writer struct {
	fileGUID string
	scans    []ScanData
}

// NewWriter returns a Writer with a fresh file identifier.
func NewWriter() *Writer {
	return &Writer{fileGUID: uuid.NewString()}
}

// AddScan appends a scan; order here is the scan index order in the file.
func (w *Writer) AddScan(s ScanData) {
	w.scans = append(w.scans, s)
}

// WriteTo emits the whole container to out.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	phys, err := w.build()
	if err != nil {
		return 0, err
	}
	n, err := out.Write(phys)
	return int64(n), err
}

// WriteFile emits the container to a file at path.
func (w *Writer) WriteFile(path string) error {
	phys, err := w.build()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, phys, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// build lays out the logical stream (header, binary sections, XML index),
// then paginates it with per-page checksums.
func (w *Writer) build() ([]byte, error) {
	logical := make([]byte, headerSize)
	metas := make([]*scanMeta, 0, len(w.scans))

	for i, s := range w.scans {
		// Packets must start 4-byte aligned in the logical stream.
		for len(logical)%4 != 0 {
			logical = append(logical, 0)
		}
		proto := buildWriterPrototype(&s)
		packets, err := encodePackets(proto, &s)
		if err != nil {
			return nil, fmt.Errorf("scan %d: %w", i, err)
		}
		sectionStart := int64(len(logical))
		sh := sectionHeader{
			LogicalLength:      int64(sectionHeaderSize + len(packets)),
			DataPhysicalOffset: physicalFromLogical(sectionStart+sectionHeaderSize, defaultPageSize),
		}
		logical = append(logical, sh.encode()...)
		logical = append(logical, packets...)
		metas = append(metas, &scanMeta{
			guid:        uuid.NewString(),
			name:        s.Name,
			pose:        s.Pose,
			fileOffset:  physicalFromLogical(sectionStart, defaultPageSize),
			recordCount: int64(len(s.Records)),
			proto:       proto,
		})
	}

	xmlStart := int64(len(logical))
	xmlBytes := buildXMLIndex(w.fileGUID, metas)
	logical = append(logical, xmlBytes...)

	payload := int64(defaultPageSize - crcBytes)
	pages := (int64(len(logical)) + payload - 1) / payload
	if pages == 0 {
		pages = 1
	}
	h := fileHeader{
		Major:             1,
		Minor:             0,
		PhysicalLength:    uint64(pages * defaultPageSize),
		XMLPhysicalOffset: uint64(physicalFromLogical(xmlStart, defaultPageSize)),
		XMLLogicalLength:  uint64(len(xmlBytes)),
		PageSize:          defaultPageSize,
	}
	copy(logical[:headerSize], h.encode())

	return paginate(logical, defaultPageSize), nil
}

func buildWriterPrototype(s *ScanData) []protoField {
	var proto []protoField
	coordNames := []string{elemCartesianX, elemCartesianY, elemCartesianZ}
	if !s.OmitCartesian {
		if s.Scaled != nil {
			sc := s.Scaled
			for _, name := range coordNames {
				proto = append(proto, protoField{
					name:     name,
					kind:     fieldScaledInteger,
					min:      sc.Min,
					max:      sc.Max,
					scale:    sc.Scale,
					offset:   sc.Offset,
					bitWidth: bitsFor(uint64(sc.Max - sc.Min)),
				})
			}
		} else {
			for _, name := range coordNames {
				proto = append(proto, protoField{name: name, kind: fieldFloat, single: s.SinglePrecision, scale: 1})
			}
		}
	}
	if anyColor(s.Records) {
		for _, name := range []string{elemColorRed, elemColorGreen, elemColorBlue} {
			proto = append(proto, protoField{name: name, kind: fieldInteger, min: 0, max: 255, bitWidth: 8, scale: 1})
		}
	}
	if anyInvalid(s.Records) {
		proto = append(proto, protoField{name: elemInvalidState, kind: fieldInteger, min: 0, max: 2, bitWidth: 2, scale: 1})
	}
	return proto
}

func anyColor(records []cloud.Record) bool {
	for i := range records {
		if records[i].HasColor {
			return true
		}
	}
	return false
}

func anyInvalid(records []cloud.Record) bool {
	for i := range records {
		if !records[i].Valid {
			return true
		}
	}
	return false
}

// encodePackets splits the records into data packets, each holding a whole
// number of records within the packet size limit.
func encodePackets(proto []protoField, s *ScanData) ([]byte, error) {
	if len(s.Records) == 0 {
		return nil, nil
	}
	perPacket := maxRecordsPerPacket(proto)
	var out []byte
	for start := 0; start < len(s.Records); start += perPacket {
		end := start + perPacket
		if end > len(s.Records) {
			end = len(s.Records)
		}
		pkt, err := encodeDataPacket(proto, s.Records[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, pkt...)
	}
	return out, nil
}

func packetSize(proto []protoField, k int) int {
	size := packetPrefixSize + 2 + 2*len(proto)
	for i := range proto {
		bits := int(proto[i].width()) * k
		size += (bits + 7) / 8
	}
	return (size + 3) &^ 3
}

func maxRecordsPerPacket(proto []protoField) int {
	lo, hi := 1, maxPacketSize*8
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if packetSize(proto, mid) <= maxPacketSize {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

func encodeDataPacket(proto []protoField, records []cloud.Record) ([]byte, error) {
	writers := make([]*bitWriter, len(proto))
	for i := range writers {
		writers[i] = &bitWriter{}
	}
	for ri := range records {
		for i := range proto {
			if err := encodeValue(writers[i], &proto[i], &records[ri]); err != nil {
				return nil, err
			}
		}
	}

	total := 0
	segs := make([][]byte, len(proto))
	for i := range writers {
		segs[i] = writers[i].bytes()
		if len(segs[i]) > math.MaxUint16 {
			return nil, fmt.Errorf("bytestream %d overflows its byte count", i)
		}
		total += len(segs[i])
	}

	length := packetPrefixSize + 2 + 2*len(proto) + total
	padded := (length + 3) &^ 3
	if padded > maxPacketSize {
		return nil, fmt.Errorf("packet of %d bytes exceeds the %d limit", padded, maxPacketSize)
	}

	buf := make([]byte, 0, padded)
	buf = append(buf, packetTypeData, 0)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(padded-1))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(proto)))
	for i := range segs {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(segs[i])))
	}
	for i := range segs {
		buf = append(buf, segs[i]...)
	}
	for len(buf) < padded {
		buf = append(buf, 0)
	}
	return buf, nil
}

func encodeValue(bw *bitWriter, f *protoField, rec *cloud.Record) error {
	var v float64
	switch f.name {
	case elemCartesianX:
		v = rec.Pos.X
	case elemCartesianY:
		v = rec.Pos.Y
	case elemCartesianZ:
		v = rec.Pos.Z
	case elemColorRed:
		v = rec.Color.R
	case elemColorGreen:
		v = rec.Color.G
	case elemColorBlue:
		v = rec.Color.B
	case elemInvalidState:
		state := uint64(0)
		if !rec.Valid {
			state = 2
		}
		bw.writeBits(state, f.bitWidth)
		return nil
	default:
		return fmt.Errorf("no encoder for field %s", f.name)
	}

	switch f.kind {
	case fieldFloat:
		if f.single {
			bw.writeBits(uint64(math.Float32bits(float32(v))), 32)
		} else {
			bw.writeBits(math.Float64bits(v), 64)
		}
	case fieldInteger:
		// Colors arrive normalized; quantize over the declared bounds.
		raw := int64(math.Round(units.Clamp01(v) * float64(f.max-f.min)))
		bw.writeBits(uint64(raw), f.bitWidth)
	case fieldScaledInteger:
		raw := int64(math.Round((v-f.offset)/f.scale)) - f.min
		if raw < 0 || uint64(raw) > uint64(f.max-f.min) {
			return fmt.Errorf("field %s: value %g does not quantize into [%d, %d]", f.name, v, f.min, f.max)
		}
		bw.writeBits(uint64(raw), f.bitWidth)
	}
	return nil
}
