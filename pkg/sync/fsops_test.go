package sync

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/sidkik/dirmirror/pkg/errors"
)

func TestCopyFile(t *testing.T) {
	tree := newTestTree(t)
	src, dst := tree.src("file"), tree.dst("file")

	tree.writeFile(src, "contents")
	require.NoError(t, tree.fs.Chmod(src, 0600))
	modTime := tree.setModTime(src)

	assert.NoError(t, copyFile(tree.fs, src, dst))
	tree.assertContents(dst, "contents")
	tree.assertModTime(dst, modTime)

	info, err := tree.fs.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// Overwriting replaces the contents.
	tree.writeFile(src, "new")
	assert.NoError(t, copyFile(tree.fs, src, dst))
	tree.assertContents(dst, "new")

	// No staging files are left behind.
	assert.Equal(t, []string{"file"}, listTree(t, tree.fs, tree.mapper.DestRoot))
}

func TestCopyFileMissingParent(t *testing.T) {
	tree := newTestTree(t)
	src, dst := tree.src("file"), tree.dst("missing/file")
	tree.writeFile(src, "contents")

	err := copyFile(tree.fs, src, dst)
	assert.Error(t, err)
	tree.assertNotExists(filepath.Dir(dst))
}

func TestCopyFileMissingSource(t *testing.T) {
	tree := newTestTree(t)
	err := copyFile(tree.fs, tree.src("missing"), tree.dst("missing"))
	assert.True(t, os.IsNotExist(errors.RootCause(err)))
	assert.Empty(t, listTree(t, tree.fs, tree.mapper.DestRoot))
}

func TestCopyFileNotRegular(t *testing.T) {
	tree := newTestTree(t)
	fifo := tree.src("fifo")
	require.NoError(t, unix.Mkfifo(fifo, 0644))

	err := copyFile(tree.fs, fifo, tree.dst("fifo"))
	assert.Equal(t, errNotRegular, errors.RootCause(err))
	tree.assertNotExists(tree.dst("fifo"))
}

func TestCopyFileLeavesNoStagingFileOnFailure(t *testing.T) {
	tree := newTestTree(t)
	src := tree.src("file")
	tree.writeFile(src, "contents")

	// Renaming a file over a non-empty directory fails.
	dst := tree.dst("dir")
	tree.writeFile(filepath.Join(dst, "child"), "child")

	assert.Error(t, copyFile(tree.fs, src, dst))
	for _, path := range listTree(t, tree.fs, tree.mapper.DestRoot) {
		assert.False(t, strings.HasSuffix(path, ".tmp"), path)
	}
}

func TestCopyFileMemMapFs(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/file", []byte("contents"), 0644))
	require.NoError(t, fs.MkdirAll("/dst", 0755))

	assert.NoError(t, copyFile(fs, "/src/file", "/dst/file"))
	contents, err := afero.ReadFile(fs, "/dst/file")
	assert.NoError(t, err)
	assert.Equal(t, "contents", string(contents))
}
