package pcdcloud

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/scanstream/internal/cloud"
)

// writePCD writes a minimal binary PCD file with x, y, z fields.
func writePCD(t *testing.T, dir, name, viewpoint string, pts [][3]float32) string {
	t.Helper()
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "VERSION 0.7\n")
	fmt.Fprintf(&buf, "FIELDS x y z\n")
	fmt.Fprintf(&buf, "SIZE 4 4 4\n")
	fmt.Fprintf(&buf, "TYPE F F F\n")
	fmt.Fprintf(&buf, "COUNT 1 1 1\n")
	fmt.Fprintf(&buf, "WIDTH %d\n", len(pts))
	fmt.Fprintf(&buf, "HEIGHT 1\n")
	fmt.Fprintf(&buf, "VIEWPOINT %s\n", viewpoint)
	fmt.Fprintf(&buf, "POINTS %d\n", len(pts))
	fmt.Fprintf(&buf, "DATA binary\n")
	for _, p := range pts {
		for _, c := range p {
			require.NoError(t, binary.Write(&buf, binary.LittleEndian, c))
		}
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func collect(t *testing.T, s cloud.Scan) []cloud.Record {
	t.Helper()
	it, err := s.Points()
	require.NoError(t, err)
	var recs []cloud.Record
	for {
		rec, err := it.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		recs = append(recs, rec)
	}
	return recs
}

func TestOpenAndIterate(t *testing.T) {
	nan := float32(math.NaN())
	path := writePCD(t, t.TempDir(), "sample.pcd", "1 2 3 1 0 0 0", [][3]float32{
		{0.5, 1, 1.5},
		{nan, nan, nan},
		{-4, 0, 4},
	})

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	scans := f.Scans()
	require.Len(t, scans, 1)
	s := scans[0]
	assert.Equal(t, 0, s.Index())
	assert.Equal(t, "sample", s.Name())
	assert.EqualValues(t, 3, s.RecordCount())
	assert.True(t, s.HasCartesian())

	pose := s.Pose()
	require.NotNil(t, pose)
	assert.Equal(t, r3.Vec{X: 1, Y: 2, Z: 3}, pose.Translation)
	assert.Equal(t, cloud.IdentityRotation(), pose.Rotation)

	want := []cloud.Record{
		{Pos: r3.Vec{X: 0.5, Y: 1, Z: 1.5}, Valid: true},
		{Pos: r3.Vec{X: math.NaN(), Y: math.NaN(), Z: math.NaN()}, Valid: false},
		{Pos: r3.Vec{X: -4, Y: 0, Z: 4}, Valid: true},
	}
	got := collect(t, s)
	if diff := cmp.Diff(want, got, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("records differ (-want +got):\n%s", diff)
	}
}

func TestIdentityViewpointHasNoPose(t *testing.T) {
	path := writePCD(t, t.TempDir(), "plain.pcd", "0 0 0 1 0 0 0", [][3]float32{{1, 2, 3}})
	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Nil(t, f.Scans()[0].Pose())
}

func TestIteratorRestarts(t *testing.T) {
	path := writePCD(t, t.TempDir(), "twice.pcd", "0 0 0 1 0 0 0", [][3]float32{
		{1, 1, 1}, {2, 2, 2},
	})
	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	first := collect(t, f.Scans()[0])
	second := collect(t, f.Scans()[0])
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second pass differs (-first +second):\n%s", diff)
	}
	assert.Len(t, first, 2)
}

func TestMissingCoordinateField(t *testing.T) {
	// A cloud with no z field: parseable, but not Cartesian.
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "VERSION 0.7\nFIELDS x y\nSIZE 4 4\nTYPE F F\nCOUNT 1 1\n")
	fmt.Fprintf(&buf, "WIDTH 1\nHEIGHT 1\nVIEWPOINT 0 0 0 1 0 0 0\nPOINTS 1\nDATA binary\n")
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, [2]float32{1, 2}))
	path := filepath.Join(t.TempDir(), "flat.pcd")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, f.Scans()[0].HasCartesian())
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.pcd"))
	require.Error(t, err)
}
