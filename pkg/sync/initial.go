package sync

import (
	"context"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/dirmirror/pkg/errors"
)

// Summary counts what a tree copy did.
type Summary struct {
	Directories int
	Copied      int
	Skipped     int
	Failed      int
}

func (s Summary) fields() log.Fields {
	return log.Fields{
		"directories": s.Directories,
		"copied":      s.Copied,
		"skipped":     s.Skipped,
		"failed":      s.Failed,
	}
}

// InitialSync copies the entire source tree into the destination tree. It
// must finish before any events are translated, since both write to the same
// destination paths.
//
// Failures on individual entries are logged and skipped. Only a failure to
// read the source root, or cancellation of `ctx`, aborts the walk.
func InitialSync(ctx context.Context, fs afero.Fs, mapper Mapper, ignorer Ignorer,
	logger log.FieldLogger) (Summary, error) {

	summary, err := copyTree(ctx, fs, mapper, ignorer, logger, mapper.SourceRoot, false)
	if err != nil {
		return summary, errors.WithContext(err, "walk source")
	}

	logger.WithFields(summary.fields()).Info("Initial synchronization completed")
	return summary, nil
}

// copyTree mirrors the source subtree rooted at `root` into the destination.
// Existing destination directories are left as-is, and existing files are
// overwritten. If `changedOnly` is set, files whose destination copy already
// has the same size, mode and modification time are skipped.
func copyTree(ctx context.Context, fs afero.Fs, mapper Mapper, ignorer Ignorer,
	logger log.FieldLogger, root string, changedOnly bool) (summary Summary, err error) {

	err = afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, relErr := mapper.Rel(path)
		if relErr != nil {
			// This shouldn't happen because the walk only visits children of
			// the source root.
			return relErr
		}

		if err != nil {
			if path == root {
				return err
			}

			summary.Failed++
			logger.WithError(err).WithField("path", rel).Warn("Failed to read source entry")
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if ignorer.Ignored(rel) {
			summary.Skipped++
			logger.WithField("path", rel).Debug("Ignored")
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		dst := filepath.Join(mapper.DestRoot, rel)
		if info.IsDir() {
			if err := fs.MkdirAll(dst, info.Mode().Perm()); err != nil {
				summary.Failed++
				logger.WithError(err).WithField("path", rel).Warn(
					"Failed to create directory. Skipping its contents.")
				return filepath.SkipDir
			}
			summary.Directories++
			return nil
		}

		// Symlinks are followed, so they're copied if they point to a regular
		// file. Other special files are skipped.
		if !info.Mode().IsRegular() && info.Mode()&os.ModeSymlink == 0 {
			summary.Skipped++
			logger.WithField("path", rel).Debug("Skipping special file")
			return nil
		}

		if changedOnly && unchanged(fs, path, dst) {
			summary.Skipped++
			return nil
		}

		if err := copyFile(fs, path, dst); err != nil {
			if errors.RootCause(err) == errNotRegular {
				summary.Skipped++
				logger.WithField("path", rel).Debug("Skipping symlink to a non-regular file")
				return nil
			}

			summary.Failed++
			logger.WithError(err).WithField("path", rel).Warn("Failed to copy file")
			return nil
		}

		summary.Copied++
		logger.WithField("path", rel).Debug("Copied")
		return nil
	})
	return summary, err
}

// unchanged returns whether the destination copy at `dst` still matches the
// source file at `src`. Copies preserve the modification time, so a matching
// modification time means the file hasn't been written since it was copied.
func unchanged(fs afero.Fs, src, dst string) bool {
	srcInfo, err := fs.Stat(src)
	if err != nil {
		return false
	}

	dstInfo, err := fs.Stat(dst)
	if err != nil {
		return false
	}

	return dstInfo.Mode().IsRegular() &&
		srcInfo.Size() == dstInfo.Size() &&
		srcInfo.Mode().Perm() == dstInfo.Mode().Perm() &&
		srcInfo.ModTime().Equal(dstInfo.ModTime())
}
