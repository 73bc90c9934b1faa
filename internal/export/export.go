// Package export drives the scan-to-sink pipeline: select eligible scans,
// log each scan's transform marker, then stream its points in bounded
// chunks. The package is source-agnostic (anything implementing
// cloud.Source) and sink-agnostic (anything implementing Sink).
package export

import (
	"fmt"
	"io"

	"github.com/banshee-data/scanstream/internal/cloud"
	"github.com/banshee-data/scanstream/internal/config"
	"github.com/banshee-data/scanstream/internal/monitoring"
	"github.com/banshee-data/scanstream/internal/viz"
)

// Sink receives visualization records. LogPoints must not retain the
// batch's slices after it returns; the streamer reuses them.
type Sink interface {
	SetTimeSeconds(timeline string, seconds float64) error
	LogPoints(path string, batch viz.PointBatch) error
}

// Transform markers are drawn as a fixed-size red point labeled with the
// scan index.
const markerRadius = 0.15

var markerColor = viz.PackRGBA(255, 0, 0, 255)

// Exporter streams eligible scans from a source to a sink.
type Exporter struct {
	sink Sink
	sel  *Selector
	cfg  *config.Config
}

// New builds an Exporter for the given sink and configuration.
func New(sink Sink, cfg *config.Config) *Exporter {
	return &Exporter{sink: sink, sel: NewSelector(cfg.DisplayScans), cfg: cfg}
}

// Run streams every eligible scan in source order. Per-record decode
// errors are logged and skipped; a scan whose point sequence cannot start,
// or a sink write failure, aborts the run.
func (e *Exporter) Run(src cloud.Source) error {
	if err := e.sink.SetTimeSeconds(config.DefaultTimeline, 0); err != nil {
		return fmt.Errorf("set timeline: %w", err)
	}
	for _, scan := range e.sel.Select(src.Scans()) {
		if err := e.exportScan(scan); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) exportScan(scan cloud.Scan) error {
	idx := scan.Index()
	scanPath := fmt.Sprintf("%s/scan_%d", e.cfg.Prefix, idx)

	if pose := scan.Pose(); pose != nil {
		if err := e.logMarker(scanPath, idx, pose); err != nil {
			return err
		}
	}

	it, err := scan.Points()
	if err != nil {
		return fmt.Errorf("scan %d: start point sequence: %w", idx, err)
	}

	acc := newAccumulator(e.sink, scanPath, e.cfg.ChunkSize)
	for {
		rec, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			monitoring.Logf("scan %d: skipping point: %v", idx, err)
			continue
		}
		if !rec.Valid {
			continue
		}
		if err := acc.add(rec); err != nil {
			return fmt.Errorf("scan %d: %w", idx, err)
		}
	}
	if err := acc.finish(); err != nil {
		return fmt.Errorf("scan %d: %w", idx, err)
	}
	if acc.total == 0 {
		monitoring.Logf("scan %d: no valid points", idx)
	}
	return nil
}

// logMarker emits the scan's translation as a single labeled point, ahead
// of any bulk chunks. The rotation component is carried by the source but
// not applied to output.
func (e *Exporter) logMarker(scanPath string, idx int, pose *cloud.Transform) error {
	batch := viz.PointBatch{
		X:      []float32{float32(pose.Translation.X)},
		Y:      []float32{float32(pose.Translation.Y)},
		Z:      []float32{float32(pose.Translation.Z)},
		Colors: []uint32{markerColor},
		Radii:  []float32{markerRadius},
		Labels: []string{fmt.Sprintf("Scan %d", idx)},
	}
	if err := e.sink.LogPoints(scanPath+"/point", batch); err != nil {
		return fmt.Errorf("scan %d: log transform marker: %w", idx, err)
	}
	return nil
}
