package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	configCmd "github.com/sidkik/dirmirror/cmd/config"
	"github.com/sidkik/dirmirror/cmd/run"
	"github.com/sidkik/dirmirror/cmd/util"
	"github.com/sidkik/dirmirror/cmd/version"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "DIRMIRROR_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	if err := New().Execute(); err != nil {
		util.HandleFatalError(err)
	}
}

// New creates the root `dirmirror` command.
func New() *cobra.Command {
	var verbose bool
	rootCmd := &cobra.Command{
		Use:   "dirmirror",
		Short: "Keep a destination directory mirroring a source directory",
		Long: "dirmirror copies a source directory into a destination directory,\n" +
			"and then keeps the destination in sync as files change.",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if verbose || os.Getenv(verboseLogKey) == "true" {
				log.SetLevel(log.DebugLevel)
			}
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Log debug messages. Can also be enabled by setting "+verboseLogKey+"=true.")
	rootCmd.AddCommand(
		configCmd.New(),
		run.New(),
		version.New(),
	)
	return rootCmd
}
