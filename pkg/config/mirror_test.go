package config

import (
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"

	"github.com/sidkik/dirmirror/pkg/errors"
)

func mockHomedir() {
	homedirExpand = func(path string) (string, error) {
		if strings.HasPrefix(path, "~") {
			return "/home/user" + strings.TrimPrefix(path, "~"), nil
		}
		return path, nil
	}
}

func TestParseMirror(t *testing.T) {
	path := "/home/user/.dirmirror.yaml"

	tests := []struct {
		name      string
		input     string
		expConfig Mirror
		expError  error
	}{
		{
			name: "Empty version",
			input: `
source: /data/photos
destination: /backup/photos
`,
			expConfig: Mirror{
				Version:     InitialMirrorConfigVersion,
				Source:      "/data/photos",
				Destination: "/backup/photos",
			},
		},
		{
			name: "All fields",
			input: fmt.Sprintf(`
version: %s
source: ~/photos
destination: backup
except: [".git", "*.swp"]
pollSeconds: 30
`, SupportedMirrorConfigVersion),
			expConfig: Mirror{
				Version:     SupportedMirrorConfigVersion,
				Source:      "/home/user/photos",
				Destination: "/home/user/backup",
				Except:      []string{".git", "*.swp"},
				PollSeconds: 30,
			},
		},
		{
			name:  "Incorrect version",
			input: "version: v2\nsource: /src",
			expError: errors.WithContext(incompatibleVersionError{
				path:   path,
				exp:    SupportedMirrorConfigVersion,
				actual: "v2",
			}, "parse"),
		},
		{
			name: "Extra fields",
			input: fmt.Sprintf(
				"version: %s\nextra: fields", SupportedMirrorConfigVersion),
			expError: errors.WithContext(
				errors.NewFriendlyError(parseConfigErrTemplate, path,
					"error unmarshaling JSON: while decoding JSON: "+
						`json: unknown field "extra"`),
				"parse"),
		},
		{
			name:  "Negative poll interval",
			input: "pollSeconds: -1",
			expError: errors.NewFriendlyError(
				"The poll interval in %q must not be negative.", path),
		},
	}

	mockHomedir()
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fs = afero.NewMemMapFs()
			assert.NoError(t, afero.WriteFile(fs, path, []byte(test.input), 0644))

			config, err := ParseMirror("")
			assert.Equal(t, test.expConfig, config)
			assert.Equal(t, test.expError, err)
		})
	}
}

func TestParseMirrorNotFound(t *testing.T) {
	fs = afero.NewMemMapFs()
	mockHomedir()

	_, err := ParseMirror("/etc/dirmirror.yaml")
	assert.Equal(t, errors.FileNotFound{Path: "/etc/dirmirror.yaml"}, err)
}

func TestParseWrittenMirror(t *testing.T) {
	fs = afero.NewMemMapFs()
	mockHomedir()

	mirror := Mirror{
		Source:      "/data/photos",
		Destination: "/backup/photos",
		Except:      []string{".cache"},
	}

	// Write the config to disk, and assert that we get the same config when
	// we parse it.
	assert.NoError(t, WriteMirror("", mirror))

	parsed, err := ParseMirror("")
	assert.NoError(t, err)

	mirror.Version = SupportedMirrorConfigVersion
	assert.Equal(t, mirror, parsed)

	exists, err := afero.Exists(fs, "/home/user/.dirmirror.yaml")
	assert.NoError(t, err)
	assert.True(t, exists)
}
