package fsutil

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrIncompatible marks input a loader does not handle: not a regular file,
// or not the extension the loader owns. Loader binaries translate it into
// ExitIncompatible so a dispatcher can hand the path to another loader.
// It is a routing signal, not a failure.
var ErrIncompatible = errors.New("incompatible input")

// ExitIncompatible is the process exit status loaders use for input they
// do not handle. Any other nonzero status means the loader owned the input
// but failed on it.
const ExitIncompatible = 66

// CheckLoadable reports whether path is input for a loader owning wantExt
// (".e57", ".pcd", ...). The extension comparison is case-insensitive.
// A nonexistent path, a directory, or a device counts as incompatible
// rather than an error.
func CheckLoadable(fsys FileSystem, path, wantExt string) error {
	info, err := fsys.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: cannot stat %s", ErrIncompatible, path)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrIncompatible, path)
	}
	if !strings.EqualFold(filepath.Ext(path), wantExt) {
		return fmt.Errorf("%w: %s does not have extension %s", ErrIncompatible, path, wantExt)
	}
	return nil
}
