package sync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTree is a source and destination tree on the real filesystem.
type testTree struct {
	t      *testing.T
	fs     afero.Fs
	mapper Mapper
}

func newTestTree(t *testing.T) testTree {
	root := t.TempDir()
	tree := testTree{
		t:  t,
		fs: afero.NewOsFs(),
		mapper: Mapper{
			SourceRoot: filepath.Join(root, "src"),
			DestRoot:   filepath.Join(root, "dst"),
		},
	}
	require.NoError(t, tree.fs.Mkdir(tree.mapper.SourceRoot, 0755))
	require.NoError(t, tree.fs.Mkdir(tree.mapper.DestRoot, 0755))
	return tree
}

func (tree testTree) src(rel string) string {
	return filepath.Join(tree.mapper.SourceRoot, rel)
}

func (tree testTree) dst(rel string) string {
	return filepath.Join(tree.mapper.DestRoot, rel)
}

func (tree testTree) writeFile(path, contents string) {
	require.NoError(tree.t, tree.fs.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(tree.t, afero.WriteFile(tree.fs, path, []byte(contents), 0644))
}

func (tree testTree) mkdir(path string) {
	require.NoError(tree.t, tree.fs.MkdirAll(path, 0755))
}

func (tree testTree) assertContents(path, exp string) {
	contents, err := afero.ReadFile(tree.fs, path)
	if assert.NoError(tree.t, err, path) {
		assert.Equal(tree.t, exp, string(contents), path)
	}
}

func (tree testTree) assertExists(path string) {
	exists, err := afero.Exists(tree.fs, path)
	assert.NoError(tree.t, err)
	assert.True(tree.t, exists, "%s should exist", path)
}

func (tree testTree) assertNotExists(path string) {
	exists, err := afero.Exists(tree.fs, path)
	assert.NoError(tree.t, err)
	assert.False(tree.t, exists, "%s should not exist", path)
}

// setModTime sets the modification time of `path` to an arbitrary time in the
// past, and returns it.
func (tree testTree) setModTime(path string) time.Time {
	modTime := time.Date(2019, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(tree.t, tree.fs.Chtimes(path, modTime, modTime))
	return modTime
}

func (tree testTree) assertModTime(path string, exp time.Time) {
	info, err := tree.fs.Stat(path)
	if assert.NoError(tree.t, err, path) {
		assert.True(tree.t, exp.Equal(info.ModTime()),
			"expected modtime %s, got %s", exp, info.ModTime())
	}
}

// listTree returns the paths of all entries in the tree rooted at `root`,
// relative to it.
func listTree(t *testing.T, fs afero.Fs, root string) (paths []string) {
	err := afero.Walk(fs, root, func(path string, _ os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel != "." {
			paths = append(paths, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	return paths
}

func assertLogs(t *testing.T, expLogs, allEntries []*logrus.Entry, msg string) {
	if !assert.Len(t, allEntries, len(expLogs), msg) {
		return
	}
	for i, exp := range expLogs {
		assert.Equal(t, exp.Level, allEntries[i].Level, msg)
		assert.Equal(t, exp.Data, allEntries[i].Data, msg)
		assert.Equal(t, exp.Message, allEntries[i].Message, msg)
	}
}
