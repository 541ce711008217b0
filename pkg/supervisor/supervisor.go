// Package supervisor runs the mirror: it validates the roots, performs the
// initial sync, and then mirrors changes until it's cancelled.
package supervisor

import (
	"context"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/sidkik/dirmirror/pkg/errors"
	"github.com/sidkik/dirmirror/pkg/fswatch"
	mirror "github.com/sidkik/dirmirror/pkg/sync"
)

// DefaultPollInterval is how often the source is scanned for changes when
// it's too large to watch.
const DefaultPollInterval = 15 * time.Second

// Config is the configuration of a mirror.
type Config struct {
	Source      string
	Destination string

	// Except contains patterns for source paths that aren't mirrored.
	Except []string

	// PollInterval is used instead of watching if the source contains more
	// directories than the OS allows watching.
	PollInterval time.Duration
}

// watcher is the interface of fswatch.Watcher used by the supervisor.
type watcher interface {
	Events() <-chan mirror.Event
	Errors() <-chan error
	Close() error
}

// Mocked out for unit testing.
var (
	fs    = afero.NewOsFs()
	clock = clockwork.NewRealClock()
	watch = func(root string, ignorer mirror.Ignorer, logger log.FieldLogger) (watcher, error) {
		return fswatch.Watch(root, ignorer, logger)
	}
	raiseOpenFilesLimit = setOpenFilesLimit
	checkAccess         = access
)

// Supervisor owns the lifecycle of a mirror.
type Supervisor struct {
	cfg Config
	log log.FieldLogger
}

// New creates a Supervisor for `cfg`.
func New(cfg Config, logger log.FieldLogger) *Supervisor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Supervisor{cfg: cfg, log: logger}
}

// Run mirrors the source to the destination until `ctx` is cancelled. Only
// problems with the configuration are returned as errors. Errors while
// mirroring individual files are logged.
func (s *Supervisor) Run(ctx context.Context) error {
	mapper, err := s.validate()
	if err != nil {
		return err
	}

	ignorer, err := mirror.NewIgnorer(s.cfg.Except)
	if err != nil {
		return errors.NewFriendlyError("Invalid exclude pattern: %s", err)
	}

	s.log.WithFields(log.Fields{
		"source":      mapper.SourceRoot,
		"destination": mapper.DestRoot,
	}).Info("Starting initial synchronization")
	if _, err := mirror.InitialSync(ctx, fs, mapper, ignorer, s.log); err != nil {
		if ctx.Err() != nil {
			s.log.Info("Sync stopped")
			return nil
		}
		return errors.WithContext(err, "initial sync")
	}

	// Each watched directory uses a file descriptor on some platforms.
	if err := raiseOpenFilesLimit(); err != nil {
		s.log.WithError(err).Debug("Failed to raise open files limit")
	}

	w, err := watch(mapper.SourceRoot, ignorer, s.log)
	switch {
	case err == nil:
		err = s.mirror(ctx, w, mapper, ignorer)
	case isWatchLimit(err):
		s.log.WithError(err).Warnf("Too many directories to watch for changes. "+
			"Polling for changes every %s instead.", s.cfg.PollInterval)
		err = s.poll(ctx, mapper, ignorer)
	default:
		return errors.WithContext(err, "watch source")
	}

	if err != nil {
		return err
	}
	s.log.Info("Sync stopped")
	return nil
}

// mirror translates events from `w` until `ctx` is cancelled. The event
// that's being translated when `ctx` is cancelled is allowed to finish.
func (s *Supervisor) mirror(ctx context.Context, w watcher, mapper mirror.Mapper,
	ignorer mirror.Ignorer) error {

	s.log.WithField("path", mapper.SourceRoot).Info("Started watching")
	s.log.WithField("path", mapper.DestRoot).Info("Syncing to")

	translator := mirror.NewTranslator(fs, mapper, ignorer, s.log)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		if err := w.Close(); err != nil {
			s.log.WithError(err).Warn("Failed to close file watcher")
		}
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case ev, ok := <-w.Events():
				if !ok {
					if ctx.Err() != nil {
						return nil
					}
					return errors.New("file watcher stopped unexpectedly")
				}

				// Don't start new work once stopped.
				if ctx.Err() != nil {
					return nil
				}
				translator.Handle(ev)
			case err := <-w.Errors():
				if !errors.Is(err, fsnotify.ErrEventOverflow) {
					s.log.WithError(err).Warn("File watcher error")
					continue
				}

				s.log.Warn("Missed some changes. Rescanning the source.")
				if err := mirror.Converge(ctx, fs, mapper, ignorer, s.log); err != nil &&
					ctx.Err() == nil {
					s.log.WithError(err).Error("Failed to rescan source")
				}
			case <-ctx.Done():
				return nil
			}
		}
	})
	return g.Wait()
}

// poll converges the destination every poll interval until `ctx` is
// cancelled.
func (s *Supervisor) poll(ctx context.Context, mapper mirror.Mapper, ignorer mirror.Ignorer) error {
	ticker := clock.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			if err := mirror.Converge(ctx, fs, mapper, ignorer, s.log); err != nil &&
				ctx.Err() == nil {
				s.log.WithError(err).Error("Failed to sync changes")
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// validate checks that both roots are usable before anything is copied.
func (s *Supervisor) validate() (mirror.Mapper, error) {
	mapper, err := mirror.NewMapper(s.cfg.Source, s.cfg.Destination)
	if err != nil {
		return mirror.Mapper{}, errors.WithContext(err, "resolve paths")
	}

	for _, root := range []struct {
		name  string
		path  string
		write bool
	}{
		{"Source", mapper.SourceRoot, false},
		{"Destination", mapper.DestRoot, true},
	} {
		info, err := fs.Stat(root.path)
		if err != nil {
			if os.IsNotExist(err) {
				return mirror.Mapper{}, errors.NewFriendlyError(
					"%s path does not exist: %s", root.name, root.path)
			}
			return mirror.Mapper{}, errors.WithContext(err, "stat "+root.path)
		}

		if !info.IsDir() {
			return mirror.Mapper{}, errors.NewFriendlyError(
				"%s path is not a directory: %s", root.name, root.path)
		}

		if err := checkAccess(root.path, root.write); err != nil {
			verb := "readable"
			if root.write {
				verb = "writable"
			}
			return mirror.Mapper{}, errors.NewFriendlyError(
				"%s path is not %s: %s\n\n%s", root.name, verb, root.path, err)
		}
	}

	if mirror.Contains(mapper.SourceRoot, mapper.DestRoot) ||
		mirror.Contains(mapper.DestRoot, mapper.SourceRoot) {
		return mirror.Mapper{}, errors.NewFriendlyError(
			"The source and destination must not contain each other.\n"+
				"Source: %s\nDestination: %s", mapper.SourceRoot, mapper.DestRoot)
	}
	return mapper, nil
}
