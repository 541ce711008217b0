package config

import (
	"path/filepath"

	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/sidkik/dirmirror/pkg/errors"
)

const (
	// DefaultConfigPath is where the mirror config is read from if no path
	// is given.
	DefaultConfigPath = "~/.dirmirror.yaml"

	// InitialMirrorConfigVersion is the first version of the mirror config.
	// Config files that do not specify a version will default to this
	// version.
	InitialMirrorConfigVersion = "v1alpha1"

	// SupportedMirrorConfigVersion is the version of the mirror config
	// supported by this binary.
	SupportedMirrorConfigVersion = "v1alpha1"
)

// Mirror configures which directory is mirrored where.
type Mirror struct {
	Version     string   `json:"version,omitempty"`
	Source      string   `json:"source"`
	Destination string   `json:"destination"`
	Except      []string `json:"except,omitempty"`

	// PollSeconds is the interval for checking for changes if the source is
	// too large to watch. Zero means the default interval.
	PollSeconds int `json:"pollSeconds,omitempty"`
}

func (m Mirror) getVersion() string {
	return m.Version
}

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

// ParseMirror parses the mirror config at `path`, or at DefaultConfigPath if
// `path` is empty. Relative source and destination paths are resolved
// relative to the directory containing the config. If the file doesn't exist,
// an errors.FileNotFound is returned.
func ParseMirror(path string) (Mirror, error) {
	path, err := GetConfigPath(path)
	if err != nil {
		return Mirror{}, errors.WithContext(err, "expand config path")
	}

	config := Mirror{Version: InitialMirrorConfigVersion}
	if err := parseConfig(path, &config, SupportedMirrorConfigVersion); err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return Mirror{}, err
		}
		return Mirror{}, errors.WithContext(err, "parse")
	}

	if config.PollSeconds < 0 {
		return Mirror{}, errors.NewFriendlyError(
			"The poll interval in %q must not be negative.", path)
	}

	for _, field := range []*string{&config.Source, &config.Destination} {
		*field, err = resolvePath(filepath.Dir(path), *field)
		if err != nil {
			return Mirror{}, errors.WithContext(err, "resolve path")
		}
	}
	return config, nil
}

// WriteMirror writes the given mirror config to `path`, or to
// DefaultConfigPath if `path` is empty.
func WriteMirror(path string, cfg Mirror) error {
	cfg.Version = SupportedMirrorConfigVersion
	path, err := GetConfigPath(path)
	if err != nil {
		return errors.WithContext(err, "expand config path")
	}

	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := afero.WriteFile(fs, path, yamlBytes, 0644); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

// GetConfigPath returns the expanded path to the mirror config. This path
// can be directly passed to file operations.
func GetConfigPath(path string) (string, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	return homedirExpand(path)
}

func resolvePath(relativeTo, path string) (string, error) {
	if path == "" {
		return "", nil
	}

	path, err := homedirExpand(path)
	if err != nil {
		return "", err
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(relativeTo, path)
	}
	return filepath.Clean(path), nil
}
