package errors

import (
	"fmt"
)

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// InvalidPath represents a path that isn't contained by the root it's
// supposed to be resolved against. This happens when the watcher reports a
// path outside of the source tree.
type InvalidPath struct {
	Path string
	Root string
}

func (err InvalidPath) Error() string {
	return fmt.Sprintf("%q is not within %q", err.Path, err.Root)
}
