package sync

import (
	"fmt"
)

// Op is the kind of change described by an Event.
type Op int

const (
	// Created means a file or directory appeared at Event.Path.
	Created Op = iota + 1

	// Modified means the contents of the file at Event.Path changed.
	Modified

	// Deleted means the file or directory at Event.Path was removed.
	Deleted

	// Moved means the entry at Event.OldPath was renamed to Event.Path.
	Moved
)

func (op Op) String() string {
	switch op {
	case Created:
		return "Created"
	case Modified:
		return "Modified"
	case Deleted:
		return "Deleted"
	case Moved:
		return "Moved"
	default:
		return fmt.Sprintf("Op(%d)", int(op))
	}
}

// Event is a single change to the source tree. Paths are absolute paths on
// the source side.
type Event struct {
	Op   Op
	Path string

	// OldPath is only set for Moved events, and is the path the entry was
	// moved from.
	OldPath string

	IsDir bool
}

func (ev Event) String() string {
	if ev.Op == Moved {
		return fmt.Sprintf("%s %s -> %s", ev.Op, ev.OldPath, ev.Path)
	}
	return fmt.Sprintf("%s %s", ev.Op, ev.Path)
}
