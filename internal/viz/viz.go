// Package viz writes and reads visualization streams: a flat sequence of
// msgpack records carrying point batches for a viewer, addressed by entity
// path and pinned to timeline positions.
//
// The wire format is self-delimiting (each record is one msgpack value), so
// streams work over files, pipes and sockets alike. A stream starts with a
// header record and carries time marks and point batches after it.
package viz

// Record kinds on the wire.
const (
	kindHeader = 1
	kindTime   = 2
	kindPoints = 3
)

// record is the wire envelope. Exactly one payload field is set, selected
// by Kind.
type record struct {
	Kind   uint8       `msgpack:"k"`
	Header *Header     `msgpack:"h,omitempty"`
	Time   *TimeMark   `msgpack:"t,omitempty"`
	Points *PointBatch `msgpack:"p,omitempty"`
}

// Header identifies a stream: the application that wrote it, the recording
// it belongs to, and when writing started.
type Header struct {
	App       string `msgpack:"app"`
	Recording string `msgpack:"rec"`
	CreatedNS int64  `msgpack:"created"`
	Version   string `msgpack:"ver"`
}

// TimeMark pins every batch after it to a position on a named timeline.
type TimeMark struct {
	Timeline string  `msgpack:"tl"`
	Seconds  float64 `msgpack:"sec"`
}

// PointBatch is one set of points logged at an entity path. X, Y and Z run
// in parallel; Colors, Radii and Labels may be empty, hold one value for
// the whole batch, or run in parallel with the coordinates.
type PointBatch struct {
	Path   string    `msgpack:"path"`
	X      []float32 `msgpack:"x"`
	Y      []float32 `msgpack:"y"`
	Z      []float32 `msgpack:"z"`
	Colors []uint32  `msgpack:"colors,omitempty"`
	Radii  []float32 `msgpack:"radii,omitempty"`
	Labels []string  `msgpack:"labels,omitempty"`
}

// Len returns the number of points in the batch.
func (b *PointBatch) Len() int {
	return len(b.X)
}
