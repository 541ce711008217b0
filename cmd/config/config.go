package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/dirmirror/cmd/util"
	"github.com/sidkik/dirmirror/pkg/config"
	"github.com/sidkik/dirmirror/pkg/errors"
)

// Mocked for unit testing.
var (
	stdout              io.Writer = os.Stdout
	stdin               io.Reader = os.Stdin
	guessDefaults                 = guessDefaultsImpl
	parseMirrorConfig             = config.ParseMirror
	writeMirrorConfig             = config.WriteMirror
	stat                          = os.Stat
	getWorkingDirectory           = os.Getwd
)

// New creates a new `config` command.
func New() *cobra.Command {
	var cliOpts config.Mirror
	var configPath string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Save the directories to mirror",
		Long: "Save the source and destination directories, so that `dirmirror run`\n" +
			"can be started without any arguments.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := SetupConfig(configPath, cliOpts); err != nil {
				err = errors.NewFriendlyError("Failed to setup configuration:\n%s", err)
				util.HandleFatalError(err)
			}
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to the config file. Defaults to "+config.DefaultConfigPath+".")
	cmd.Flags().StringVar(&cliOpts.Source, "source", "",
		"Set the source directory in the config. "+
			"Optional: If not set, `dirmirror config` will interactively prompt.")
	cmd.Flags().StringVar(&cliOpts.Destination, "destination", "",
		"Set the destination directory in the config. "+
			"Optional: If not set, `dirmirror config` will interactively prompt.")
	cmd.Flags().StringSliceVar(&cliOpts.Except, "except", nil,
		"Set the patterns of paths to exclude. "+
			"Optional: If not set, the current patterns are kept.")

	// Setup the commands for querying the contents of the config.
	type getterSpec struct {
		use, short string
		fn         func(config.Mirror) string
	}

	getters := []getterSpec{
		{
			use:   "get-source",
			short: "Get the currently configured source directory",
			fn:    func(cfg config.Mirror) string { return cfg.Source },
		},
		{
			use:   "get-destination",
			short: "Get the currently configured destination directory",
			fn:    func(cfg config.Mirror) string { return cfg.Destination },
		},
	}
	for _, getter := range getters {
		getter := getter
		cmd.AddCommand(&cobra.Command{
			Use:   getter.use,
			Short: getter.short,
			Run: func(_ *cobra.Command, _ []string) {
				cfg, err := parseMirrorConfig(configPath)
				if err != nil {
					err = errors.WithContext(err, "read config")
					util.HandleFatalError(err)
				}

				fmt.Fprintln(stdout, getter.fn(cfg))
			},
		})
	}

	return cmd
}

// SetupConfig prompts for the fields not set in `cliOpts`, and writes the
// resulting config to `path`.
func SetupConfig(path string, cliOpts config.Mirror) error {
	cfg, err := generateConfig(path, cliOpts)
	if err != nil {
		return errors.WithContext(err, "generate config")
	}

	if err := writeMirrorConfig(path, cfg); err != nil {
		return errors.WithContext(err, "write config")
	}

	path, err = config.GetConfigPath(path)
	if err != nil {
		return errors.WithContext(err, "get config path")
	}

	fmt.Fprintf(stdout, "Wrote config to %s\n", path)
	return nil
}

func directoryValidationFn(path string) (string, bool) {
	if path == "" {
		return "A directory is required.", false
	}

	info, err := stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("%q does not exist. "+
				"Please create it first, or pick another directory.", path), false
		}
		return fmt.Sprintf("Failed to check %q: %s", path, err), false
	}

	if !info.IsDir() {
		return fmt.Sprintf("%q is not a directory. Please pick a directory.", path), false
	}
	return "", true
}

type prompt struct {
	helpString, prompt, defaultAnswer, currAnswer string
	field                                         *string
	validationFn                                  func(string) (string, bool)
}

// generateConfig interacts with the user to decide what the user's desired
// configuration is.
// It makes best guesses at reasonable defaults, and allows users to explicitly
// override them if desired.
func generateConfig(path string, cliOpts config.Mirror) (config.Mirror, error) {
	defaults := guessDefaults()
	currConfig, err := parseMirrorConfig(path)
	if err != nil {
		currConfig = config.Mirror{}
		log.WithError(err).Debug("Failed to read current config")
	}

	cfg := cliOpts
	if cfg.Except == nil {
		cfg.Except = currConfig.Except
	}
	cfg.PollSeconds = currConfig.PollSeconds

	var prompts []prompt
	if cliOpts.Source == "" {
		prompts = append(prompts, prompt{
			helpString: "Enter the directory to mirror.\n" +
				"It defaults to the current directory.",
			prompt:        "Source directory",
			defaultAnswer: defaults.Source,
			currAnswer:    currConfig.Source,
			field:         &cfg.Source,
			validationFn:  directoryValidationFn,
		})
	}

	if cliOpts.Destination == "" {
		prompts = append(prompts, prompt{
			helpString: "Enter the directory to mirror into.\n" +
				"Files in it that aren't in the source directory may be deleted.",
			prompt:        "Destination directory",
			defaultAnswer: defaults.Destination,
			currAnswer:    currConfig.Destination,
			field:         &cfg.Destination,
			validationFn:  directoryValidationFn,
		})
	}

	for _, prompt := range prompts {
		var resp string
		for {
			resp, err = promptUser(prompt.helpString, prompt.prompt,
				prompt.defaultAnswer, prompt.currAnswer)
			if err != nil {
				return config.Mirror{}, errors.WithContext(err, "read response")
			}

			if prompt.validationFn == nil {
				break
			}

			validationErr, ok := prompt.validationFn(resp)
			if ok {
				break
			}

			fmt.Fprintln(stdout, validationErr)
		}

		*prompt.field = resp
	}

	return cfg, nil
}

// guessDefaults tries to guess reasonable defaults for the fields in the
// config.
func guessDefaultsImpl() (cfg config.Mirror) {
	if wd, err := getWorkingDirectory(); err == nil {
		cfg.Source = wd
	} else {
		log.WithError(err).Info("Failed to guess source")
	}
	return cfg
}

func promptUser(helpString, prompt, defaultAnswer, currAnswer string) (string, error) {
	// Display a new line at the end to separate different fields to make it
	// look clearer.
	defer fmt.Fprintln(stdout)

	options := []string{}
	if defaultAnswer != "" {
		options = append(options, defaultAnswer)
	}
	if currAnswer != "" && currAnswer != defaultAnswer {
		options = append(options, currAnswer)
	}
	options = append(options, "(Enter manually)")

	fmt.Fprintln(stdout, helpString+"\n"+prompt+":")

	stdinReader := bufio.NewReader(stdin)

	if nOptions := len(options); nOptions > 1 {
		// defaultAnswer or currAnswer exists.
		fmt.Fprintln(stdout)
		for i, option := range options {
			if i == 0 {
				option = fmt.Sprintf("%s (recommended)", option)
			}
			fmt.Fprintf(stdout, "\t%d. %s\n", i+1, option)
		}
		fmt.Fprintln(stdout)

		for {
			fmt.Fprintf(stdout, "Please choose one [1-%d]: ", nOptions)
			choiceStr, err := stdinReader.ReadString('\n')
			if err != nil {
				return "", err
			}

			var choice int
			choiceStr = strings.TrimRight(choiceStr, "\n")

			// Default to the first choice if user doesn't enter anything.
			if choiceStr == "" {
				choice = 1
			} else {
				choice, err = strconv.Atoi(choiceStr)
				if err != nil || choice < 1 || choice > nOptions {
					// Try again if the input is invalid.
					continue
				}
			}

			if choice == nOptions {
				// Enter manually.
				break
			}

			return options[choice-1], nil
		}
	}

	fmt.Fprint(stdout, "Please enter manually: ")
	resp, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}

	return strings.TrimRight(resp, "\n"), nil
}
