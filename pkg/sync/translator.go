package sync

import (
	"context"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/dirmirror/pkg/errors"
)

// Translator replicates source events onto the destination tree.
//
// Each event is translated independently, and the destination's current
// state is re-checked every time, so translating the same event twice has the
// same result as translating it once.
type Translator struct {
	fs      afero.Fs
	mapper  Mapper
	ignorer Ignorer
	log     log.FieldLogger
}

// NewTranslator creates a Translator that mirrors changes according to
// `mapper`.
func NewTranslator(fs afero.Fs, mapper Mapper, ignorer Ignorer, logger log.FieldLogger) *Translator {
	return &Translator{
		fs:      fs,
		mapper:  mapper,
		ignorer: ignorer,
		log:     logger,
	}
}

// Handle translates `ev` and logs any failure. Failures never propagate, so
// that one bad event doesn't stop the events after it from being mirrored.
func (t *Translator) Handle(ev Event) {
	if err := t.Translate(ev); err != nil {
		t.log.WithError(err).WithFields(t.eventFields(ev)).Errorf(
			"Failed to mirror %s event", ev.Op)
	}
}

// Translate applies the destination mutation for `ev`.
func (t *Translator) Translate(ev Event) error {
	switch ev.Op {
	case Created:
		return t.created(ev)
	case Modified:
		return t.modified(ev)
	case Deleted:
		return t.deleted(ev)
	case Moved:
		return t.moved(ev)
	default:
		return errors.Errorf("unknown event type: %s", ev.Op)
	}
}

func (t *Translator) created(ev Event) error {
	rel, dst, err := t.resolve(ev.Path)
	if err != nil {
		return err
	}

	if t.ignored(rel) {
		return nil
	}

	// Directories are created implicitly when their first file is copied.
	if ev.IsDir {
		return nil
	}

	if err := t.fs.MkdirAll(filepath.Dir(dst), dirPerm); err != nil {
		return errors.WithContext(err, "create parent directories")
	}

	if err := copyFile(t.fs, ev.Path, dst); err != nil {
		if errors.RootCause(err) == errNotRegular {
			t.log.WithField("path", rel).Debug("Skipping special file")
			return nil
		}
		return errors.WithContext(err, "copy")
	}

	t.log.WithField("path", rel).Info("Created")
	return nil
}

func (t *Translator) modified(ev Event) error {
	rel, dst, err := t.resolve(ev.Path)
	if err != nil {
		return err
	}

	// Metadata changes on directories aren't mirrored.
	if ev.IsDir || t.ignored(rel) {
		return nil
	}

	// Unlike creations, the parent directory must already exist. If it
	// doesn't, the destination has diverged and the copy fails.
	if err := copyFile(t.fs, ev.Path, dst); err != nil {
		if errors.RootCause(err) == errNotRegular {
			t.log.WithField("path", rel).Debug("Skipping special file")
			return nil
		}
		return errors.WithContext(err, "copy")
	}

	t.log.WithField("path", rel).Info("Modified")
	return nil
}

func (t *Translator) deleted(ev Event) error {
	rel, dst, err := t.resolve(ev.Path)
	if err != nil {
		return err
	}

	if t.ignored(rel) {
		return nil
	}

	info, err := t.fs.Stat(dst)
	switch {
	case os.IsNotExist(err):
		t.log.WithField("path", rel).Debug("Already deleted")
		return nil
	case err != nil:
		return errors.WithContext(err, "stat destination")
	}

	// Trust the destination over the event's directory flag. Removing a
	// directory with Remove would fail if it has children.
	if ev.IsDir || info.IsDir() {
		if err := t.fs.RemoveAll(dst); err != nil {
			return errors.WithContext(err, "remove directory")
		}
		t.log.WithField("path", rel).Info("Deleted directory")
	} else {
		if err := t.fs.Remove(dst); err != nil {
			return errors.WithContext(err, "remove file")
		}
		t.log.WithField("path", rel).Info("Deleted file")
	}

	Reap(t.fs, filepath.Dir(dst), t.mapper.DestRoot, t.log)
	return nil
}

func (t *Translator) moved(ev Event) error {
	fromRel, fromDst, err := t.resolve(ev.OldPath)
	if err != nil {
		return errors.WithContext(err, "resolve origin")
	}

	toRel, toDst, err := t.resolve(ev.Path)
	if err != nil {
		return errors.WithContext(err, "resolve target")
	}

	fromIgnored, toIgnored := t.ignored(fromRel), t.ignored(toRel)
	switch {
	case fromIgnored && toIgnored:
		return nil
	case toIgnored:
		// Moving something into an excluded path looks like a deletion from
		// the destination's point of view.
		return t.deleted(Event{Op: Deleted, Path: ev.OldPath, IsDir: ev.IsDir})
	case fromIgnored:
		// The origin was never mirrored, so there's nothing to rename. Copy
		// the new entry from the source instead.
		if ev.IsDir {
			return t.copyDir(toRel, ev.Path)
		}
		return t.created(Event{Op: Created, Path: ev.Path})
	}

	exists, err := afero.Exists(t.fs, fromDst)
	if err != nil {
		return errors.WithContext(err, "stat origin")
	}

	// If the origin was never mirrored, for example because it was created
	// and moved before its creation was translated, the move is skipped.
	if !exists {
		t.log.WithFields(log.Fields{"from": fromRel, "to": toRel}).Debug(
			"Nothing to move")
		return nil
	}

	if err := t.fs.MkdirAll(filepath.Dir(toDst), dirPerm); err != nil {
		return errors.WithContext(err, "create parent directories")
	}

	if err := t.fs.Rename(fromDst, toDst); err != nil {
		return errors.WithContext(err, "rename")
	}

	t.log.WithFields(log.Fields{"from": fromRel, "to": toRel}).Info("Moved")
	Reap(t.fs, filepath.Dir(fromDst), t.mapper.DestRoot, t.log)
	return nil
}

func (t *Translator) copyDir(rel, path string) error {
	summary, err := copyTree(context.Background(), t.fs, t.mapper, t.ignorer, t.log, path, false)
	if err != nil {
		return errors.WithContext(err, "copy directory")
	}

	t.log.WithFields(summary.fields()).WithField("path", rel).Info("Created")
	return nil
}

// resolve returns the path relative to the source root, and the mapped
// destination path. Events on the source root itself are rejected, since
// mirroring them would delete or move the destination root.
func (t *Translator) resolve(path string) (rel, dst string, err error) {
	rel, err = t.mapper.Rel(path)
	if err != nil {
		return "", "", err
	}

	if rel == "." {
		return "", "", errors.Errorf("refusing to mirror a change to the source root %q", path)
	}
	return rel, filepath.Join(t.mapper.DestRoot, rel), nil
}

func (t *Translator) ignored(rel string) bool {
	if t.ignorer.Ignored(rel) {
		t.log.WithField("path", rel).Debug("Ignored")
		return true
	}
	return false
}

// eventFields returns the log fields identifying the paths of `ev`. Paths
// are relative to the source root when possible.
func (t *Translator) eventFields(ev Event) log.Fields {
	display := func(path string) string {
		if rel, err := t.mapper.Rel(path); err == nil {
			return rel
		}
		return path
	}

	if ev.Op == Moved {
		return log.Fields{"from": display(ev.OldPath), "to": display(ev.Path)}
	}
	return log.Fields{"path": display(ev.Path)}
}
