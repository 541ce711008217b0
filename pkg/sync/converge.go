package sync

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/dirmirror/pkg/errors"
)

// Converge brings the destination back in line with the source without
// relying on events. Files that changed since they were last copied are
// recopied, and destination entries that are gone from the source are
// pruned.
func Converge(ctx context.Context, fs afero.Fs, mapper Mapper, ignorer Ignorer,
	logger log.FieldLogger) error {

	summary, err := copyTree(ctx, fs, mapper, ignorer, logger, mapper.SourceRoot, true)
	if err != nil {
		return errors.WithContext(err, "copy changes")
	}

	pruned, err := Prune(ctx, fs, mapper, ignorer, logger)
	if err != nil {
		return errors.WithContext(err, "prune")
	}

	fields := summary.fields()
	fields["pruned"] = pruned
	if summary.Copied == 0 && summary.Failed == 0 && pruned == 0 {
		logger.WithFields(fields).Debug("Destination already in sync")
	} else {
		logger.WithFields(fields).Info("Converged destination")
	}
	return nil
}
