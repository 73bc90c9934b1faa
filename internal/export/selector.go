package export

import (
	"github.com/banshee-data/scanstream/internal/cloud"
	"github.com/banshee-data/scanstream/internal/monitoring"
)

// Selector decides which scans are exported. The allow-list arrives as an
// explicit, already-parsed value; nil means unrestricted, an empty
// non-nil list excludes everything.
type Selector struct {
	allow      map[int]struct{}
	restricted bool
}

// NewSelector builds a Selector over an optional allow-list.
func NewSelector(allow []int) *Selector {
	s := &Selector{}
	if allow != nil {
		s.restricted = true
		s.allow = make(map[int]struct{}, len(allow))
		for _, idx := range allow {
			s.allow[idx] = struct{}{}
		}
	}
	return s
}

// Select returns the eligible scans in their original order. Scans without
// Cartesian coordinates or without records are reported and skipped;
// allow-list misses are skipped silently.
func (s *Selector) Select(scans []cloud.Scan) []cloud.Scan {
	out := make([]cloud.Scan, 0, len(scans))
	for _, scan := range scans {
		if s.eligible(scan) {
			out = append(out, scan)
		}
	}
	return out
}

func (s *Selector) eligible(scan cloud.Scan) bool {
	idx := scan.Index()
	if !scan.HasCartesian() {
		monitoring.Logf("skipping scan %d: no cartesian coordinates", idx)
		return false
	}
	if scan.RecordCount() < 1 {
		monitoring.Logf("skipping scan %d: no records", idx)
		return false
	}
	if s.restricted {
		if _, ok := s.allow[idx]; !ok {
			return false
		}
	}
	return true
}
