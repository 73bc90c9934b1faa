// Package pcdcloud adapts PCD point-cloud files to the cloud.Source model.
// A PCD file holds a single unnamed cloud, so it maps to exactly one scan;
// points with NaN coordinates come back as invalid records, matching how
// the format marks missing returns.
package pcdcloud

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/seqsense/pcgol/pc"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/scanstream/internal/cloud"
)

// File is an opened PCD file. It implements cloud.Source with one scan.
type File struct {
	scan *pcdScan
}

// Open reads the whole PCD file at path into memory.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	pp, err := pc.Unmarshal(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &File{scan: &pcdScan{name: name, cloud: pp}}, nil
}

// Scans returns the file's single scan.
func (f *File) Scans() []cloud.Scan {
	return []cloud.Scan{f.scan}
}

// Close releases nothing; the cloud lives in memory once opened.
func (f *File) Close() error {
	return nil
}

type pcdScan struct {
	name  string
	cloud *pc.PointCloud
}

func (s *pcdScan) Index() int         { return 0 }
func (s *pcdScan) Name() string       { return s.name }
func (s *pcdScan) RecordCount() int64 { return int64(s.cloud.Points) }

// HasCartesian reports whether the field list carries all of x, y and z.
func (s *pcdScan) HasCartesian() bool {
	var x, y, z bool
	for _, f := range s.cloud.Fields {
		switch f {
		case "x":
			x = true
		case "y":
			y = true
		case "z":
			z = true
		}
	}
	return x && y && z
}

// Pose returns the file's viewpoint as a transform, or nil when it is the
// format's identity default. PCD viewpoints are tx ty tz qw qx qy qz.
func (s *pcdScan) Pose() *cloud.Transform {
	vp := s.cloud.Viewpoint
	if len(vp) < 7 {
		return nil
	}
	tr := cloud.Transform{
		Translation: r3.Vec{X: float64(vp[0]), Y: float64(vp[1]), Z: float64(vp[2])},
		Rotation: quat.Number{
			Real: float64(vp[3]),
			Imag: float64(vp[4]),
			Jmag: float64(vp[5]),
			Kmag: float64(vp[6]),
		},
	}
	if tr.Translation == (r3.Vec{}) && tr.Rotation == cloud.IdentityRotation() {
		return nil
	}
	return &tr
}

// Points returns a fresh iterator over the cloud's coordinates.
func (s *pcdScan) Points() (cloud.PointIterator, error) {
	it, err := s.cloud.Vec3Iterator()
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.name, err)
	}
	return &pointIterator{vec: it, n: s.cloud.Points}, nil
}

type pointIterator struct {
	vec pc.Vec3Iterator
	n   int
	pos int
}

func (it *pointIterator) Next() (cloud.Record, error) {
	if it.pos >= it.n || !it.vec.IsValid() {
		return cloud.Record{}, io.EOF
	}
	v := it.vec.Vec3()
	it.vec.Incr()
	it.pos++

	pos := r3.Vec{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])}
	valid := !(math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z))
	return cloud.Record{Pos: pos, Valid: valid}, nil
}
