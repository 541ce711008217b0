//go:build windows

package supervisor

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
)

func TestAccess(t *testing.T) {
	fs = afero.NewOsFs()
	dir := t.TempDir()
	assert.NoError(t, access(dir, true))

	// The check doesn't leave anything behind.
	entries, err := afero.ReadDir(fs, dir)
	assert.NoError(t, err)
	assert.Empty(t, entries)

	assert.Error(t, access(filepath.Join(dir, "missing"), false))
}
