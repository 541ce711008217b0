package sync

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/sidkik/dirmirror/pkg/errors"
)

// Ignorer decides which source paths are excluded from mirroring.
//
// A pattern excludes a path if it matches the path relative to the source
// root, or any of its ancestors, or the base name of any of them. For
// example, ".git" excludes ".git/config" and "src/.git/HEAD", and
// "build/out" excludes "build/out/app" but not "src/build/out". Patterns use
// glob syntax, where `*` doesn't cross directory boundaries and `**` does.
type Ignorer struct {
	patterns []glob.Glob
}

// NewIgnorer compiles the exclude patterns.
func NewIgnorer(patterns []string) (Ignorer, error) {
	var ignorer Ignorer
	for _, pattern := range patterns {
		pattern = strings.TrimSuffix(filepath.ToSlash(filepath.Clean(pattern)), "/")
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return Ignorer{}, errors.WithContext(err, "compile pattern "+pattern)
		}
		ignorer.patterns = append(ignorer.patterns, g)
	}
	return ignorer, nil
}

// Ignored returns whether the relative path `rel` is excluded.
func (ig Ignorer) Ignored(rel string) bool {
	if len(ig.patterns) == 0 || rel == "." || rel == "" {
		return false
	}

	components := strings.Split(filepath.ToSlash(rel), "/")
	for i := range components {
		prefix := path.Join(components[:i+1]...)
		for _, pattern := range ig.patterns {
			if pattern.Match(prefix) || pattern.Match(components[i]) {
				return true
			}
		}
	}
	return false
}
