package viz

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/banshee-data/scanstream/internal/timeutil"
	"github.com/banshee-data/scanstream/internal/version"
)

var errStreamClosed = errors.New("stream closed")

// Stream writes a visualization stream to an io.Writer. It buffers, so
// Close must run for the tail of the stream to reach the writer. Close
// does not close the underlying writer.
type Stream struct {
	w      *bufio.Writer
	enc    *msgpack.Encoder
	count  int
	closed bool
}

// NewStream starts a stream on w and writes its header record.
func NewStream(w io.Writer, app, recording string, clock timeutil.Clock) (*Stream, error) {
	bw := bufio.NewWriter(w)
	s := &Stream{w: bw, enc: msgpack.NewEncoder(bw)}
	hdr := &Header{
		App:       app,
		Recording: recording,
		CreatedNS: clock.Now().UnixNano(),
		Version:   version.Version,
	}
	if err := s.enc.Encode(&record{Kind: kindHeader, Header: hdr}); err != nil {
		return nil, fmt.Errorf("write stream header: %w", err)
	}
	return s, nil
}

// SetTimeSeconds pins everything logged after it to the given position on
// the named timeline.
func (s *Stream) SetTimeSeconds(timeline string, seconds float64) error {
	if s.closed {
		return errStreamClosed
	}
	err := s.enc.Encode(&record{Kind: kindTime, Time: &TimeMark{Timeline: timeline, Seconds: seconds}})
	if err != nil {
		return fmt.Errorf("write time mark: %w", err)
	}
	return nil
}

// LogPoints writes one point batch at the given entity path.
func (s *Stream) LogPoints(path string, batch PointBatch) error {
	if s.closed {
		return errStreamClosed
	}
	if err := batch.validate(); err != nil {
		return fmt.Errorf("batch at %s: %w", path, err)
	}
	batch.Path = path
	if err := s.enc.Encode(&record{Kind: kindPoints, Points: &batch}); err != nil {
		return fmt.Errorf("write batch at %s: %w", path, err)
	}
	s.count++
	return nil
}

// BatchCount returns the number of point batches written so far.
func (s *Stream) BatchCount() int {
	return s.count
}

// Close flushes buffered records. The stream accepts no writes after it.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush stream: %w", err)
	}
	return nil
}

func (b *PointBatch) validate() error {
	n := len(b.X)
	if len(b.Y) != n || len(b.Z) != n {
		return fmt.Errorf("coordinate lengths differ: x=%d y=%d z=%d", len(b.X), len(b.Y), len(b.Z))
	}
	if c := len(b.Colors); c != 0 && c != 1 && c != n {
		return fmt.Errorf("%d colors for %d points", c, n)
	}
	if r := len(b.Radii); r != 0 && r != 1 && r != n {
		return fmt.Errorf("%d radii for %d points", r, n)
	}
	if l := len(b.Labels); l != 0 && l != 1 && l != n {
		return fmt.Errorf("%d labels for %d points", l, n)
	}
	return nil
}
