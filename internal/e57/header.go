package e57

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// The 48-byte file header sits at physical offset 0, inside the first
// page's payload. All fields are little-endian.
const headerSize = 48

var headerSignature = []byte("ASTM-E57")

type fileHeader struct {
	Major             uint32
	Minor             uint32
	PhysicalLength    uint64
	XMLPhysicalOffset uint64
	XMLLogicalLength  uint64
	PageSize          uint64
}

func parseHeader(buf []byte) (fileHeader, error) {
	var h fileHeader
	if len(buf) < headerSize {
		return h, fmt.Errorf("header: need %d bytes, have %d", headerSize, len(buf))
	}
	if !bytes.Equal(buf[:8], headerSignature) {
		return h, fmt.Errorf("header: bad signature %q", buf[:8])
	}
	h.Major = binary.LittleEndian.Uint32(buf[8:12])
	h.Minor = binary.LittleEndian.Uint32(buf[12:16])
	h.PhysicalLength = binary.LittleEndian.Uint64(buf[16:24])
	h.XMLPhysicalOffset = binary.LittleEndian.Uint64(buf[24:32])
	h.XMLLogicalLength = binary.LittleEndian.Uint64(buf[32:40])
	h.PageSize = binary.LittleEndian.Uint64(buf[40:48])
	if h.PageSize <= crcBytes {
		return h, fmt.Errorf("header: page size %d too small", h.PageSize)
	}
	return h, nil
}

func (h fileHeader) encode() []byte {
	buf := make([]byte, headerSize)
	copy(buf[:8], headerSignature)
	binary.LittleEndian.PutUint32(buf[8:12], h.Major)
	binary.LittleEndian.PutUint32(buf[12:16], h.Minor)
	binary.LittleEndian.PutUint64(buf[16:24], h.PhysicalLength)
	binary.LittleEndian.PutUint64(buf[24:32], h.XMLPhysicalOffset)
	binary.LittleEndian.PutUint64(buf[32:40], h.XMLLogicalLength)
	binary.LittleEndian.PutUint64(buf[40:48], h.PageSize)
	return buf
}
