package viz

import (
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Entry is one decoded stream record after the header. Exactly one field
// is set.
type Entry struct {
	Time   *TimeMark
	Points *PointBatch
}

// Reader decodes a visualization stream.
type Reader struct {
	dec *msgpack.Decoder
	hdr Header
}

// NewReader opens a stream for reading and decodes its header record.
func NewReader(r io.Reader) (*Reader, error) {
	dec := msgpack.NewDecoder(r)
	var rec record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("read stream header: %w", err)
	}
	if rec.Kind != kindHeader || rec.Header == nil {
		return nil, errors.New("stream does not start with a header record")
	}
	return &Reader{dec: dec, hdr: *rec.Header}, nil
}

// Header returns the stream's header record.
func (r *Reader) Header() Header {
	return r.hdr
}

// Next returns the next entry, or io.EOF at the end of the stream.
func (r *Reader) Next() (Entry, error) {
	var rec record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Entry{}, io.EOF
		}
		return Entry{}, fmt.Errorf("read record: %w", err)
	}
	switch {
	case rec.Kind == kindTime && rec.Time != nil:
		return Entry{Time: rec.Time}, nil
	case rec.Kind == kindPoints && rec.Points != nil:
		return Entry{Points: rec.Points}, nil
	case rec.Kind == kindHeader:
		return Entry{}, errors.New("unexpected second header record")
	default:
		return Entry{}, fmt.Errorf("unknown record kind %d", rec.Kind)
	}
}
