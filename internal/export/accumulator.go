package export

import (
	"fmt"

	"github.com/banshee-data/scanstream/internal/cloud"
	"github.com/banshee-data/scanstream/internal/units"
	"github.com/banshee-data/scanstream/internal/viz"
)

// accumulator collects one scan's valid points into parallel position and
// color buffers and flushes a chunk whenever the limit is reached. It is
// owned by a single scan's processing scope; chunk numbering starts at
// zero for every scan.
type accumulator struct {
	sink  Sink
	path  string // entity path of the scan, chunks hang under it
	limit int

	x, y, z []float32
	colors  []uint32
	chunk   int
	total   int
}

func newAccumulator(sink Sink, scanPath string, limit int) *accumulator {
	return &accumulator{sink: sink, path: scanPath, limit: limit}
}

// add appends one valid record to the buffers and flushes when the chunk
// is full. Records without color get opaque white.
func (a *accumulator) add(rec cloud.Record) error {
	a.x = append(a.x, float32(rec.Pos.X))
	a.y = append(a.y, float32(rec.Pos.Y))
	a.z = append(a.z, float32(rec.Pos.Z))

	color := viz.White
	if rec.HasColor {
		color = viz.PackRGBA(
			units.Channel8(rec.Color.R),
			units.Channel8(rec.Color.G),
			units.Channel8(rec.Color.B),
			0xFF,
		)
	}
	a.colors = append(a.colors, color)
	a.total++

	if len(a.x) >= a.limit {
		return a.flush()
	}
	return nil
}

// finish flushes whatever remains. Safe to call with empty buffers.
func (a *accumulator) finish() error {
	if len(a.x) == 0 {
		return nil
	}
	return a.flush()
}

func (a *accumulator) flush() error {
	batch := viz.PointBatch{X: a.x, Y: a.y, Z: a.z, Colors: a.colors}
	path := fmt.Sprintf("%s/chunk_%d", a.path, a.chunk)
	if err := a.sink.LogPoints(path, batch); err != nil {
		return fmt.Errorf("flush chunk %d: %w", a.chunk, err)
	}
	a.chunk++
	a.x = a.x[:0]
	a.y = a.y[:0]
	a.z = a.z[:0]
	a.colors = a.colors[:0]
	return nil
}
