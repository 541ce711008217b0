package util

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/dirmirror/pkg/errors"
)

// Mocked out for unit testing.
var (
	stderr io.Writer = os.Stderr
	exit             = os.Exit
)

// friendlyError is implemented by errors whose message can be shown to the
// user as-is.
type friendlyError interface {
	FriendlyMessage() string
}

// HandleFatalError prints `err` and exits. Errors that have a friendly
// message are printed without their debugging context. The full error is
// still logged at the Debug level.
func HandleFatalError(err error) {
	log.WithError(err).Debug("Fatal error")

	if friendly, ok := errors.RootCause(err).(friendlyError); ok {
		fmt.Fprintln(stderr, friendly.FriendlyMessage())
	} else {
		fmt.Fprintf(stderr, "Error: %s\n", err)
	}
	exit(1)
}

// HandlePanic logs the stack trace of a panic, and then continues panicking.
// It must be deferred directly.
func HandlePanic() {
	if r := recover(); r != nil {
		log.WithField("stack", string(debug.Stack())).Errorf("Unexpected panic: %v", r)
		panic(r)
	}
}
