//go:build !windows

package supervisor

import (
	"golang.org/x/sys/unix"

	"github.com/sidkik/dirmirror/pkg/errors"
)

// The max file limit on macOS is 10240, even though the max returned by
// Getrlimit is 1<<63-1. This is OPEN_MAX in sys/syslimits.h.
const osxMaxSoftOpenFilesLimit = 10240

func setOpenFilesLimit() error {
	var rLimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rLimit); err != nil {
		return errors.WithContext(err, "get current limit")
	}

	if !raiseSoftLimit(&rLimit) {
		return nil
	}
	return unix.Setrlimit(unix.RLIMIT_NOFILE, &rLimit)
}

// raiseSoftLimit raises the soft limit in `lim` as far as the hard limit and
// macOS allow. It returns false if the soft limit is already at least that
// high.
func raiseSoftLimit(lim *unix.Rlimit) bool {
	target := lim.Max
	if target > osxMaxSoftOpenFilesLimit {
		target = osxMaxSoftOpenFilesLimit
	}

	if lim.Cur >= target {
		return false
	}
	lim.Cur = target
	return true
}

// access checks whether the current user can read `path`, and also write to
// it if `write` is set.
func access(path string, write bool) error {
	mode := uint32(unix.R_OK | unix.X_OK)
	if write {
		mode |= unix.W_OK
	}
	return unix.Access(path, mode)
}

// isWatchLimit returns whether `err` means that the OS refused to watch any
// more directories. inotify returns ENOSPC once the max_user_watches limit is
// reached, and kqueue needs a file descriptor per directory.
func isWatchLimit(err error) bool {
	return errors.Is(err, unix.ENOSPC) || errors.Is(err, unix.EMFILE) ||
		errors.Is(err, unix.ENFILE)
}
