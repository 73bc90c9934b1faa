// Package cloud defines the point-cloud source model shared by the loader
// binaries: a Source holds ordered scans, each scan yields point records
// through a forward-only iterator. Format drivers (E57, PCD) implement
// Source; the export pipeline consumes it without knowing the container.
package cloud

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Source is an opened multi-scan container. Scans are returned in the
// container's own order; that zero-based order is the scan index used for
// allow-list membership and output naming.
type Source interface {
	// Scans returns the scan entries in container order.
	Scans() []Scan

	// Close releases the underlying handle. The Source and any iterators
	// obtained from it must not be used afterwards.
	Close() error
}

// Scan is one capture entry inside a Source.
type Scan interface {
	// Index is the zero-based position of the scan in the container.
	Index() int

	// Name is the scan's declared name, or "" when the container has none.
	Name() string

	// RecordCount is the number of point records the scan declares.
	RecordCount() int64

	// HasCartesian reports whether the scan carries Cartesian coordinates.
	HasCartesian() bool

	// Pose returns the scan's rigid-body transform, or nil when the scan
	// declares none.
	Pose() *Transform

	// Points returns a fresh iterator over the scan's records. Calling
	// Points again restarts from the first record; a single iterator is
	// forward-only.
	Points() (PointIterator, error)
}

// PointIterator walks a scan's records in order.
//
// Next returns io.EOF after the last record. A non-EOF error invalidates
// only the record it was returned for; callers may keep calling Next.
type PointIterator interface {
	Next() (Record, error)
}

// Record is a single point: a coordinate tagged with the source's validity
// marker, plus an optional normalized color.
type Record struct {
	Pos      r3.Vec // meters, in the scan's own frame
	Valid    bool   // false when the source marks the coordinate invalid/missing
	HasColor bool
	Color    RGB // normalized components, meaningful only when HasColor
}

// RGB is a normalized color triple with components in [0,1].
type RGB struct {
	R, G, B float64
}

// Transform is a scan's rigid-body pose: a translation and a unit
// quaternion rotation. The rotation is carried through for inspection but
// is not applied to emitted geometry.
type Transform struct {
	Translation r3.Vec
	Rotation    quat.Number
}

// IdentityRotation returns the no-op unit quaternion.
func IdentityRotation() quat.Number {
	return quat.Number{Real: 1}
}
