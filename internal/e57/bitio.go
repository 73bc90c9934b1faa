package e57

import "errors"

// errShortStream reports a bytestream with too few bits left for the value
// being decoded. Surfaces as a per-record error, not a fatal one.
var errShortStream = errors.New("bytestream exhausted mid-record")

// bitReader consumes least-significant-bit-first packed values from a byte
// buffer, the packing order the container uses for all integer fields.
type bitReader struct {
	buf []byte
	pos uint // absolute bit position
}

func newBitReader(buf []byte) *bitReader {
	return &bitReader{buf: buf}
}

func (br *bitReader) remaining() uint {
	return uint(len(br.buf))*8 - br.pos
}

// readBits returns the next n bits (n <= 64) as an unsigned value.
func (br *bitReader) readBits(n uint) (uint64, error) {
	if n == 0 {
		return 0, nil
	}
	if br.remaining() < n {
		return 0, errShortStream
	}
	var v uint64
	for got := uint(0); got < n; {
		byteIdx := br.pos >> 3
		bitOff := br.pos & 7
		take := 8 - bitOff
		if left := n - got; take > left {
			take = left
		}
		chunk := uint64(br.buf[byteIdx]>>bitOff) & (1<<take - 1)
		v |= chunk << got
		br.pos += take
		got += take
	}
	return v, nil
}

// bitWriter is the mirror of bitReader, growing its buffer as bits arrive.
type bitWriter struct {
	buf []byte
	pos uint
}

func (bw *bitWriter) writeBits(v uint64, n uint) {
	for put := uint(0); put < n; {
		byteIdx := bw.pos >> 3
		for uint(len(bw.buf)) <= byteIdx {
			bw.buf = append(bw.buf, 0)
		}
		bitOff := bw.pos & 7
		take := 8 - bitOff
		if left := n - put; take > left {
			take = left
		}
		chunk := byte(v>>put) & (1<<take - 1)
		bw.buf[byteIdx] |= chunk << bitOff
		bw.pos += take
		put += take
	}
}

// bytes returns the packed buffer, padded to a whole byte.
func (bw *bitWriter) bytes() []byte {
	return bw.buf
}
