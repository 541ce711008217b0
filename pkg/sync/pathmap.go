package sync

import (
	"path/filepath"
	"strings"

	"github.com/sidkik/dirmirror/pkg/errors"
)

// Mapper translates paths in the source tree into their counterparts in the
// destination tree. Both roots are absolute and cleaned.
type Mapper struct {
	SourceRoot string
	DestRoot   string
}

// NewMapper returns a Mapper for the given roots, converting them to absolute
// paths.
func NewMapper(sourceRoot, destRoot string) (Mapper, error) {
	src, err := filepath.Abs(sourceRoot)
	if err != nil {
		return Mapper{}, errors.WithContext(err, "resolve source root")
	}

	dst, err := filepath.Abs(destRoot)
	if err != nil {
		return Mapper{}, errors.WithContext(err, "resolve destination root")
	}
	return Mapper{SourceRoot: src, DestRoot: dst}, nil
}

// Rel returns `path` relative to the source root. The source root itself is
// ".". It fails with errors.InvalidPath if `path` is outside the source root.
func (m Mapper) Rel(path string) (string, error) {
	return relativeTo(m.SourceRoot, path)
}

// Map returns the destination path for the source path `path`.
func (m Mapper) Map(path string) (string, error) {
	rel, err := m.Rel(path)
	if err != nil {
		return "", err
	}
	return filepath.Join(m.DestRoot, rel), nil
}

// DestRel returns `path` relative to the destination root.
func (m Mapper) DestRel(path string) (string, error) {
	return relativeTo(m.DestRoot, path)
}

func relativeTo(root, path string) (string, error) {
	rel, err := filepath.Rel(root, filepath.Clean(path))
	if err != nil || !isLocal(rel) {
		return "", errors.InvalidPath{Path: path, Root: root}
	}
	return rel, nil
}

// isLocal returns whether the relative path `rel` stays within its root.
// Note that names such as "..foo" are valid children.
func isLocal(rel string) bool {
	if filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Contains returns whether `path` is `root` or one of its descendants.
func Contains(root, path string) bool {
	_, err := relativeTo(root, path)
	return err == nil
}
