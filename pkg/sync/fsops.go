package sync

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/sidkik/dirmirror/pkg/errors"
)

const (
	// dirPerm is the mode used for destination directories that are created
	// implicitly as parents of a copied file.
	dirPerm os.FileMode = 0755

	// tempFilePattern names the staging files that copies are written to
	// before being renamed into place.
	tempFilePattern = ".dirmirror-*.tmp"
)

// errNotRegular is returned when asked to copy something that isn't a regular
// file, such as a socket or a named pipe. Opening a pipe would block forever.
var errNotRegular = errors.New("not a regular file")

// copyFile copies the file at `src` over `dst`. The contents are staged in a
// temporary file in dst's directory and renamed into place, so readers of the
// destination never see a partially written file. The mode and modification
// time of `src` are preserved. The parent directory of `dst` must exist.
func copyFile(fs afero.Fs, src, dst string) error {
	info, err := fs.Stat(src)
	if err != nil {
		return errors.WithContext(err, "stat source")
	}

	if !info.Mode().IsRegular() {
		return errNotRegular
	}

	in, err := fs.Open(src)
	if err != nil {
		return errors.WithContext(err, "open source")
	}
	defer in.Close()

	staged, err := afero.TempFile(fs, filepath.Dir(dst), tempFilePattern)
	if err != nil {
		return errors.WithContext(err, "create staging file")
	}
	stagedPath := staged.Name()

	// After a successful rename, this is a no-op.
	defer fs.Remove(stagedPath)

	if _, err := io.Copy(staged, in); err != nil {
		staged.Close()
		return errors.WithContext(err, "write")
	}

	if err := staged.Close(); err != nil {
		return errors.WithContext(err, "close staging file")
	}

	if err := fs.Chmod(stagedPath, info.Mode().Perm()); err != nil {
		return errors.WithContext(err, "set file mode")
	}

	if err := fs.Rename(stagedPath, dst); err != nil {
		return errors.WithContext(err, "rename into place")
	}

	// Change the modification time as the last step so that it doesn't get
	// reset by other file operations.
	if err := fs.Chtimes(dst, time.Now(), info.ModTime()); err != nil {
		return errors.WithContext(err, "set file modtime")
	}
	return nil
}
