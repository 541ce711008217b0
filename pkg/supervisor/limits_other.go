//go:build windows

package supervisor

import (
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/sidkik/dirmirror/pkg/errors"
)

func setOpenFilesLimit() error {
	return nil
}

// access checks whether `path` can be listed, and also written to if `write`
// is set, by creating a temporary file in it.
func access(path string, write bool) error {
	if _, err := afero.ReadDir(fs, path); err != nil {
		return err
	}

	if !write {
		return nil
	}

	f, err := afero.TempFile(fs, path, ".dirmirror-access-*")
	if err != nil {
		return err
	}
	closeErr := f.Close()
	if err := fs.Remove(filepath.Clean(f.Name())); err != nil {
		return errors.WithContext(err, "remove access check file")
	}
	return closeErr
}

func isWatchLimit(err error) bool {
	return strings.Contains(errors.RootCause(err).Error(), "too many open files")
}
