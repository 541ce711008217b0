package sync

import (
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Reap removes `startDir` if it's empty, and then does the same for each of
// its ancestors, stopping at the first directory that isn't empty, doesn't
// exist, or can't be removed. `destRoot` itself is never removed, and
// directories outside of it are never touched. It returns the number of
// directories removed.
func Reap(fs afero.Fs, startDir, destRoot string, logger log.FieldLogger) (removed int) {
	root := filepath.Clean(destRoot)
	for dir := filepath.Clean(startDir); dir != root; dir = filepath.Dir(dir) {
		rel, err := relativeTo(root, dir)
		if err != nil || rel == "." {
			return removed
		}

		info, err := fs.Stat(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				logger.WithError(err).WithField("path", rel).Warn(
					"Failed to check whether directory is empty")
			}
			return removed
		}

		if !info.IsDir() {
			return removed
		}

		empty, err := afero.IsEmpty(fs, dir)
		if err != nil {
			logger.WithError(err).WithField("path", rel).Warn(
				"Failed to check whether directory is empty")
			return removed
		}

		if !empty {
			return removed
		}

		// Remove only deletes empty directories, so a file that was created
		// since the check makes this fail rather than deleting the file.
		if err := fs.Remove(dir); err != nil {
			logger.WithError(err).WithField("path", rel).Warn(
				"Failed to remove empty directory")
			return removed
		}

		logger.WithField("path", rel).Info("Removed empty directory")
		removed++
	}
	return removed
}
