//go:build !windows

package supervisor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"

	"github.com/sidkik/dirmirror/pkg/errors"
	mirror "github.com/sidkik/dirmirror/pkg/sync"
)

func TestRunPollFallback(t *testing.T) {
	src, dst := setup(t, newFakeWatcher())
	fakeClock := clockwork.NewFakeClock()
	clock = fakeClock
	watch = func(string, mirror.Ignorer, log.FieldLogger) (watcher, error) {
		return nil, errors.WithContext(unix.ENOSPC, `watch "/src/a"`)
	}

	logger, logHook := logrusTest.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	errc := runAsync(ctx, Config{Source: src, Destination: dst, PollInterval: time.Minute}, logger)

	fakeClock.BlockUntil(1)
	writeFile(t, filepath.Join(src, "polled"), "polled")
	fakeClock.Advance(time.Minute)
	assertEventuallyContents(t, filepath.Join(dst, "polled"), "polled")

	cancel()
	assert.NoError(t, waitForRun(t, errc))
	assert.Contains(t, messages(logHook.AllEntries()),
		"Too many directories to watch for changes. Polling for changes every 1m0s instead.")
}

func TestIsWatchLimit(t *testing.T) {
	assert.True(t, isWatchLimit(errors.WithContext(unix.ENOSPC, "watch")))
	assert.True(t, isWatchLimit(unix.EMFILE))
	assert.False(t, isWatchLimit(errors.New("no such file or directory")))
}

func TestAccess(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, access(dir, true))
	assert.Error(t, access(filepath.Join(dir, "missing"), false))
}

func TestRaiseSoftLimit(t *testing.T) {
	tests := []struct {
		name       string
		limit      unix.Rlimit
		expChanged bool
		expCur     uint64
	}{
		{
			name:       "Raise to the macOS max",
			limit:      unix.Rlimit{Cur: 256, Max: 1 << 20},
			expChanged: true,
			expCur:     osxMaxSoftOpenFilesLimit,
		},
		{
			name:       "Raise to the hard limit",
			limit:      unix.Rlimit{Cur: 256, Max: 4096},
			expChanged: true,
			expCur:     4096,
		},
		{
			name:   "Already above the macOS max",
			limit:  unix.Rlimit{Cur: 65536, Max: 1 << 20},
			expCur: 65536,
		},
		{
			name:   "Already at the hard limit",
			limit:  unix.Rlimit{Cur: 4096, Max: 4096},
			expCur: 4096,
		},
	}

	for _, test := range tests {
		limit := test.limit
		assert.Equal(t, test.expChanged, raiseSoftLimit(&limit), test.name)
		assert.Equal(t, test.expCur, uint64(limit.Cur), test.name)
		assert.Equal(t, test.limit.Max, limit.Max, test.name)
	}
}
