package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/dirmirror/cmd/util"
	"github.com/sidkik/dirmirror/pkg/config"
	"github.com/sidkik/dirmirror/pkg/errors"
	"github.com/sidkik/dirmirror/pkg/supervisor"
)

// Mocked out for unit testing.
var (
	parseMirrorConfig = config.ParseMirror
	runSupervisor     = func(ctx context.Context, cfg supervisor.Config) error {
		return supervisor.New(cfg, log.StandardLogger()).Run(ctx)
	}
)

type options struct {
	configPath  string
	source      string
	destination string
	except      []string
	pollSeconds int
	logFile     string
}

// New creates a new `run` command.
func New() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "run [source] [destination]",
		Short: "Mirror a directory, and keep the mirror up to date",
		Long: `Copy everything in the source directory into the destination directory,
and then keep watching the source for changes until interrupted.

The source and destination can be passed as arguments or flags. Otherwise,
they're read from the config file written by "dirmirror config".`,
		Args: cobra.MaximumNArgs(2),
		Run: func(_ *cobra.Command, args []string) {
			if err := run(opts, args); err != nil {
				util.HandleFatalError(err)
			}
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "",
		"Path to the config file. Defaults to "+config.DefaultConfigPath+".")
	cmd.Flags().StringVar(&opts.source, "source", "", "The directory to mirror.")
	cmd.Flags().StringVar(&opts.destination, "destination", "",
		"The directory to mirror into.")
	cmd.Flags().StringSliceVar(&opts.except, "except", nil,
		"Patterns of paths to exclude from mirroring. Can be repeated.")
	cmd.Flags().IntVar(&opts.pollSeconds, "poll-seconds", 0,
		"How often to check for changes if the source is too large to watch.")
	cmd.Flags().StringVar(&opts.logFile, "log-file", "",
		"Append logs to this file rather than printing them.")
	return cmd
}

func run(opts options, args []string) error {
	cfg, err := getConfig(opts, args)
	if err != nil {
		return err
	}

	if opts.logFile != "" {
		log.SetFormatter(&log.TextFormatter{
			// Show the full timestamp rather than the time elapsed since
			// dirmirror started.
			FullTimestamp: true,

			// Disable colors since we'll be logging to a file.
			DisableColors: true,
		})

		logFile, err := os.OpenFile(opts.logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return errors.WithContext(err, "open log file")
		}
		defer logFile.Close()
		log.SetOutput(logFile)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	go func() {
		select {
		case sig := <-signals:
			log.WithField("signal", sig).Info("Received signal. Stopping.")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runSupervisor(ctx, cfg)
}

// getConfig merges the config file with the command line. Arguments take
// precedence over flags, which take precedence over the config file.
func getConfig(opts options, args []string) (supervisor.Config, error) {
	fileCfg, err := parseMirrorConfig(opts.configPath)
	if err != nil {
		// The config file is optional unless it was explicitly specified.
		notFound, ok := errors.RootCause(err).(errors.FileNotFound)
		switch {
		case ok && opts.configPath != "":
			return supervisor.Config{}, errors.NewFriendlyError(
				"Config file not found: %s", notFound.Path)
		case !ok:
			return supervisor.Config{}, errors.WithContext(err, "parse config")
		}
	}

	cfg := supervisor.Config{
		Source:       fileCfg.Source,
		Destination:  fileCfg.Destination,
		Except:       fileCfg.Except,
		PollInterval: time.Duration(fileCfg.PollSeconds) * time.Second,
	}

	for _, override := range []struct {
		field *string
		flag  string
		arg   int
	}{
		{&cfg.Source, opts.source, 0},
		{&cfg.Destination, opts.destination, 1},
	} {
		if override.flag != "" {
			*override.field = override.flag
		}
		if len(args) > override.arg {
			*override.field = args[override.arg]
		}
	}

	if len(opts.except) != 0 {
		cfg.Except = opts.except
	}

	if opts.pollSeconds < 0 {
		return supervisor.Config{}, errors.NewFriendlyError(
			"The poll interval must not be negative.")
	}

	if opts.pollSeconds != 0 {
		cfg.PollInterval = time.Duration(opts.pollSeconds) * time.Second
	}

	if cfg.Source == "" || cfg.Destination == "" {
		return supervisor.Config{}, errors.NewFriendlyError(
			"Both a source and a destination are required.\n" +
				"Pass them as arguments, or run `dirmirror config` to save them.")
	}
	return cfg, nil
}
