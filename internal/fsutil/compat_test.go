package fsutil

import (
	"errors"
	"testing"
)

func TestCheckLoadable(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if err := mfs.WriteFile("/data/bridge.e57", []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := mfs.WriteFile("/data/BRIDGE2.E57", []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := mfs.WriteFile("/data/notes.txt", []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := mfs.MkdirAll("/data/scans.e57", 0755); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name         string
		path         string
		ext          string
		incompatible bool
	}{
		{"matching extension", "/data/bridge.e57", ".e57", false},
		{"uppercase extension", "/data/BRIDGE2.E57", ".e57", false},
		{"wrong extension", "/data/notes.txt", ".e57", true},
		{"missing file", "/data/missing.e57", ".e57", true},
		{"directory with matching name", "/data/scans.e57", ".e57", true},
		{"pcd gate rejects e57", "/data/bridge.e57", ".pcd", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckLoadable(mfs, tc.path, tc.ext)
			if tc.incompatible {
				if !errors.Is(err, ErrIncompatible) {
					t.Errorf("CheckLoadable(%q, %q) = %v, want ErrIncompatible", tc.path, tc.ext, err)
				}
			} else if err != nil {
				t.Errorf("CheckLoadable(%q, %q) = %v, want nil", tc.path, tc.ext, err)
			}
		})
	}
}
