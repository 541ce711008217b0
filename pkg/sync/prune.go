package sync

import (
	"context"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/dirmirror/pkg/errors"
)

// Prune removes destination entries that no longer have a counterpart in the
// source tree. Together with InitialSync, it converges the destination
// without relying on events, which is used when events can't be trusted,
// such as after the event queue overflows or when polling.
//
// Destination paths that match an exclude pattern are left alone. Prune
// doesn't reap directories that it empties, so that a directory that also
// exists in the source isn't removed.
func Prune(ctx context.Context, fs afero.Fs, mapper Mapper, ignorer Ignorer,
	logger log.FieldLogger) (removed int, err error) {

	err = afero.Walk(fs, mapper.DestRoot, func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			if path == mapper.DestRoot {
				return err
			}
			// The entry may have been removed along with its parent.
			return nil
		}

		rel, relErr := mapper.DestRel(path)
		if relErr != nil {
			return relErr
		}

		if rel == "." {
			return nil
		}

		if ignorer.Ignored(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		_, statErr := fs.Stat(filepath.Join(mapper.SourceRoot, rel))
		switch {
		case statErr == nil:
			return nil
		case !os.IsNotExist(statErr):
			logger.WithError(statErr).WithField("path", rel).Warn(
				"Failed to check source. Not pruning.")
			return nil
		}

		if err := fs.RemoveAll(path); err != nil {
			logger.WithError(err).WithField("path", rel).Warn("Failed to prune")
			return nil
		}

		removed++
		logger.WithField("path", rel).Info("Pruned")
		if info.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return removed, errors.WithContext(err, "walk destination")
	}
	return removed, nil
}
