package export

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/scanstream/internal/cloud"
	"github.com/banshee-data/scanstream/internal/config"
	"github.com/banshee-data/scanstream/internal/e57"
	"github.com/banshee-data/scanstream/internal/monitoring"
	"github.com/banshee-data/scanstream/internal/timeutil"
	"github.com/banshee-data/scanstream/internal/viz"
)

// captureSink records everything logged to it, deep-copying batches so the
// streamer's buffer reuse cannot alias captured data.
type captureSink struct {
	marks   []viz.TimeMark
	batches []viz.PointBatch
	failOn  string // fail LogPoints whose path contains this
}

func (c *captureSink) SetTimeSeconds(timeline string, seconds float64) error {
	c.marks = append(c.marks, viz.TimeMark{Timeline: timeline, Seconds: seconds})
	return nil
}

func (c *captureSink) LogPoints(path string, batch viz.PointBatch) error {
	if c.failOn != "" && strings.Contains(path, c.failOn) {
		return errors.New("sink write refused")
	}
	c.batches = append(c.batches, viz.PointBatch{
		Path:   path,
		X:      append([]float32(nil), batch.X...),
		Y:      append([]float32(nil), batch.Y...),
		Z:      append([]float32(nil), batch.Z...),
		Colors: append([]uint32(nil), batch.Colors...),
		Radii:  append([]float32(nil), batch.Radii...),
		Labels: append([]string(nil), batch.Labels...),
	})
	return nil
}

func (c *captureSink) paths() []string {
	out := make([]string, len(c.batches))
	for i, b := range c.batches {
		out[i] = b.Path
	}
	return out
}

func testConfig(chunk int, allow []int) *config.Config {
	return &config.Config{
		ApplicationID: "test",
		RecordingID:   "rec",
		Prefix:        "e57_pointcloud",
		ChunkSize:     chunk,
		DisplayScans:  allow,
	}
}

func validScan(name string, n int) *cloud.MemoryScan {
	recs := make([]cloud.Record, n)
	for i := range recs {
		recs[i] = cloud.Record{
			Pos:   r3.Vec{X: float64(i), Y: float64(i) * 2, Z: float64(i) * 3},
			Valid: true,
		}
	}
	return &cloud.MemoryScan{ScanName: name, Cartesian: true, Records: recs}
}

func captureLog(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	old := monitoring.Logf
	monitoring.Logf = func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	}
	t.Cleanup(func() { monitoring.Logf = old })
	return &lines
}

func TestSkipsIneligibleScans(t *testing.T) {
	logs := captureLog(t)
	src := cloud.NewMemorySource(
		&cloud.MemoryScan{ScanName: "flat", Records: []cloud.Record{{Valid: true}}},
		&cloud.MemoryScan{ScanName: "hollow", Cartesian: true},
		validScan("good", 3),
	)
	sink := &captureSink{}
	require.NoError(t, New(sink, testConfig(10, nil)).Run(src))

	assert.Equal(t, []string{"e57_pointcloud/scan_2/chunk_0"}, sink.paths())
	assert.Contains(t, *logs, "skipping scan 0: no cartesian coordinates")
	assert.Contains(t, *logs, "skipping scan 1: no records")
}

func TestAllowListRestricts(t *testing.T) {
	newSource := func() *cloud.MemorySource {
		return cloud.NewMemorySource(
			validScan("a", 2), validScan("b", 2), validScan("c", 2),
		)
	}

	t.Run("nil allows everything", func(t *testing.T) {
		sink := &captureSink{}
		require.NoError(t, New(sink, testConfig(10, nil)).Run(newSource()))
		assert.Equal(t, []string{
			"e57_pointcloud/scan_0/chunk_0",
			"e57_pointcloud/scan_1/chunk_0",
			"e57_pointcloud/scan_2/chunk_0",
		}, sink.paths())
	})

	t.Run("single index", func(t *testing.T) {
		logs := captureLog(t)
		sink := &captureSink{}
		require.NoError(t, New(sink, testConfig(10, []int{1})).Run(newSource()))
		assert.Equal(t, []string{"e57_pointcloud/scan_1/chunk_0"}, sink.paths())
		assert.Empty(t, *logs, "allow-list misses are silent")
	})

	t.Run("empty list excludes everything", func(t *testing.T) {
		sink := &captureSink{}
		require.NoError(t, New(sink, testConfig(10, []int{})).Run(newSource()))
		assert.Empty(t, sink.batches)
	})
}

func TestChunkingSplitsAndPreservesOrder(t *testing.T) {
	sink := &captureSink{}
	require.NoError(t, New(sink, testConfig(2, nil)).Run(
		cloud.NewMemorySource(validScan("s", 5)),
	))

	assert.Equal(t, []string{
		"e57_pointcloud/scan_0/chunk_0",
		"e57_pointcloud/scan_0/chunk_1",
		"e57_pointcloud/scan_0/chunk_2",
	}, sink.paths())
	assert.Equal(t, 2, sink.batches[0].Len())
	assert.Equal(t, 2, sink.batches[1].Len())
	assert.Equal(t, 1, sink.batches[2].Len())

	var xs []float32
	for _, b := range sink.batches {
		assert.Len(t, b.Colors, b.Len(), "buffers stay in lockstep")
		xs = append(xs, b.X...)
	}
	assert.Equal(t, []float32{0, 1, 2, 3, 4}, xs)
}

func TestExactMultipleEmitsNoEmptyChunk(t *testing.T) {
	sink := &captureSink{}
	require.NoError(t, New(sink, testConfig(2, nil)).Run(
		cloud.NewMemorySource(validScan("s", 4)),
	))
	assert.Equal(t, []string{
		"e57_pointcloud/scan_0/chunk_0",
		"e57_pointcloud/scan_0/chunk_1",
	}, sink.paths())
}

func TestLargeScanMatchesCeilDivision(t *testing.T) {
	sink := &captureSink{}
	require.NoError(t, New(sink, testConfig(1000, nil)).Run(
		cloud.NewMemorySource(validScan("s", 1500)),
	))
	require.Len(t, sink.batches, 2)
	assert.Equal(t, 1000, sink.batches[0].Len())
	assert.Equal(t, 500, sink.batches[1].Len())
}

func TestColorMapping(t *testing.T) {
	scan := &cloud.MemoryScan{
		ScanName:  "colored",
		Cartesian: true,
		Records: []cloud.Record{
			{Valid: true, HasColor: true, Color: cloud.RGB{R: 1, G: 1, B: 1}},
			{Valid: true, HasColor: true, Color: cloud.RGB{R: 0, G: 0, B: 0}},
			{Valid: true, HasColor: true, Color: cloud.RGB{R: 0.5, G: 0.5, B: 0.5}},
			{Valid: true}, // colorless records come out opaque white
		},
	}
	sink := &captureSink{}
	require.NoError(t, New(sink, testConfig(10, nil)).Run(cloud.NewMemorySource(scan)))

	require.Len(t, sink.batches, 1)
	assert.Equal(t, []uint32{
		0xFFFFFFFF,
		0x000000FF,
		0x808080FF,
		viz.White,
	}, sink.batches[0].Colors)
}

func TestInvalidRecordsTouchNeitherBuffer(t *testing.T) {
	scan := &cloud.MemoryScan{
		ScanName:  "gappy",
		Cartesian: true,
		Records: []cloud.Record{
			{Pos: r3.Vec{X: 0}, Valid: true},
			{Pos: r3.Vec{X: 1}, Valid: false, HasColor: true, Color: cloud.RGB{R: 1}},
			{Pos: r3.Vec{X: 2}, Valid: true},
			{Pos: r3.Vec{X: 3}, Valid: false},
			{Pos: r3.Vec{X: 4}, Valid: true},
		},
	}
	sink := &captureSink{}
	require.NoError(t, New(sink, testConfig(10, nil)).Run(cloud.NewMemorySource(scan)))

	require.Len(t, sink.batches, 1)
	b := sink.batches[0]
	assert.Equal(t, []float32{0, 2, 4}, b.X)
	assert.Len(t, b.Colors, 3)
}

func TestTransformMarkerComesFirst(t *testing.T) {
	posed := validScan("posed", 3)
	posed.ScanPose = &cloud.Transform{
		Translation: r3.Vec{X: 1.5, Y: -2, Z: 0.25},
		Rotation:    cloud.IdentityRotation(),
	}
	bare := validScan("bare", 2)

	sink := &captureSink{}
	require.NoError(t, New(sink, testConfig(10, nil)).Run(cloud.NewMemorySource(posed, bare)))

	require.Equal(t, []string{
		"e57_pointcloud/scan_0/point",
		"e57_pointcloud/scan_0/chunk_0",
		"e57_pointcloud/scan_1/chunk_0",
	}, sink.paths())

	marker := sink.batches[0]
	want := viz.PointBatch{
		Path:   "e57_pointcloud/scan_0/point",
		X:      []float32{1.5},
		Y:      []float32{-2},
		Z:      []float32{0.25},
		Colors: []uint32{0xFF0000FF},
		Radii:  []float32{0.15},
		Labels: []string{"Scan 0"},
	}
	if diff := cmp.Diff(want, marker); diff != "" {
		t.Errorf("marker batch differs (-want +got):\n%s", diff)
	}
}

func TestPerRecordErrorsAreSkipped(t *testing.T) {
	logs := captureLog(t)
	scan := validScan("glitchy", 4)
	scan.RecordErrs = map[int]error{1: errors.New("bad point")}

	sink := &captureSink{}
	require.NoError(t, New(sink, testConfig(10, nil)).Run(cloud.NewMemorySource(scan)))

	require.Len(t, sink.batches, 1)
	assert.Equal(t, []float32{0, 2, 3}, sink.batches[0].X)
	require.NotEmpty(t, *logs)
	assert.Contains(t, (*logs)[0], "skipping point")
}

func TestIterationFailureAbortsRun(t *testing.T) {
	scan := validScan("broken", 3)
	scan.IterErr = errors.New("decoder exploded")

	err := New(&captureSink{}, testConfig(10, nil)).Run(cloud.NewMemorySource(scan))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start point sequence")
}

func TestSinkFailureAbortsRun(t *testing.T) {
	src := func() *cloud.MemorySource {
		posed := validScan("posed", 3)
		posed.ScanPose = &cloud.Transform{Translation: r3.Vec{X: 1}}
		return cloud.NewMemorySource(posed)
	}

	err := New(&captureSink{failOn: "chunk_0"}, testConfig(10, nil)).Run(src())
	require.Error(t, err)

	err = New(&captureSink{failOn: "point"}, testConfig(10, nil)).Run(src())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transform marker")
}

func TestTimelineMarkedOnceUpFront(t *testing.T) {
	sink := &captureSink{}
	require.NoError(t, New(sink, testConfig(10, nil)).Run(cloud.NewMemorySource()))
	assert.Equal(t, []viz.TimeMark{{Timeline: "default", Seconds: 0}}, sink.marks)
	assert.Empty(t, sink.batches)
}

func TestEmptyEligibleScanLogsAndEmitsNothing(t *testing.T) {
	logs := captureLog(t)
	scan := &cloud.MemoryScan{
		ScanName:  "all invalid",
		Cartesian: true,
		Records:   []cloud.Record{{Valid: false}, {Valid: false}},
	}
	sink := &captureSink{}
	require.NoError(t, New(sink, testConfig(10, nil)).Run(cloud.NewMemorySource(scan)))
	assert.Empty(t, sink.batches)
	assert.Contains(t, *logs, "scan 0: no valid points")
}

// TestContainerToStream drives the whole pipeline: a written container is
// opened, exported, and read back from the visualization stream.
func TestContainerToStream(t *testing.T) {
	records := []cloud.Record{
		{Pos: r3.Vec{X: 1, Y: 2, Z: 3}, Valid: true, HasColor: true, Color: cloud.RGB{R: 1}},
		{Pos: r3.Vec{X: 4, Y: 5, Z: 6}, Valid: false},
		{Pos: r3.Vec{X: 7, Y: 8, Z: 9}, Valid: true, HasColor: true, Color: cloud.RGB{B: 1}},
	}
	w := e57.NewWriter()
	w.AddScan(e57.ScanData{
		Name:    "station",
		Pose:    &cloud.Transform{Translation: r3.Vec{X: 10, Y: 20, Z: 30}, Rotation: cloud.IdentityRotation()},
		Records: records,
	})
	var container bytes.Buffer
	_, err := w.WriteTo(&container)
	require.NoError(t, err)

	src, err := e57.OpenReader(bytes.NewReader(container.Bytes()), int64(container.Len()))
	require.NoError(t, err)

	var streamBuf bytes.Buffer
	stream, err := viz.NewStream(&streamBuf, "test", "rec", timeutil.RealClock{})
	require.NoError(t, err)
	require.NoError(t, New(stream, testConfig(1000, nil)).Run(src))
	require.NoError(t, stream.Close())

	r, err := viz.NewReader(&streamBuf)
	require.NoError(t, err)

	e, err := r.Next()
	require.NoError(t, err)
	require.NotNil(t, e.Time)

	e, err = r.Next()
	require.NoError(t, err)
	require.NotNil(t, e.Points)
	assert.Equal(t, "e57_pointcloud/scan_0/point", e.Points.Path)
	assert.Equal(t, []float32{10}, e.Points.X)
	assert.Equal(t, []string{"Scan 0"}, e.Points.Labels)

	e, err = r.Next()
	require.NoError(t, err)
	require.NotNil(t, e.Points)
	assert.Equal(t, "e57_pointcloud/scan_0/chunk_0", e.Points.Path)
	assert.Equal(t, []float32{1, 7}, e.Points.X)
	assert.Equal(t, []uint32{0xFF0000FF, 0x0000FFFF}, e.Points.Colors)
}
