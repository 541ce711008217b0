package sync

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConverge(t *testing.T) {
	tree := newTestTree(t)
	tree.writeFile(tree.src("same"), "same")
	tree.writeFile(tree.src("changed"), "v1")

	logger, logHook := logrusTest.NewNullLogger()
	_, err := InitialSync(context.Background(), tree.fs, tree.mapper, Ignorer{}, logger)
	require.NoError(t, err)

	// Change the source behind the mirror's back.
	tree.writeFile(tree.src("changed"), "v2")
	tree.setModTime(tree.src("changed"))
	tree.writeFile(tree.src("new/file"), "new")
	require.NoError(t, tree.fs.Remove(tree.src("same")))
	tree.writeFile(tree.src("kept"), "kept")
	tree.writeFile(tree.dst("kept"), "kept")
	modTime := tree.setModTime(tree.src("kept"))
	require.NoError(t, tree.fs.Chtimes(tree.dst("kept"), modTime, modTime))

	logHook.Reset()
	assert.NoError(t, Converge(context.Background(), tree.fs, tree.mapper, Ignorer{}, logger))
	tree.assertContents(tree.dst("changed"), "v2")
	tree.assertContents(tree.dst("new/file"), "new")
	tree.assertNotExists(tree.dst("same"))
	assert.Equal(t, []string{"changed", "kept", "new", "new/file"},
		listTree(t, tree.fs, tree.mapper.DestRoot))

	assertLogs(t, []*logrus.Entry{
		infoLog("Pruned", logrus.Fields{"path": "same"}),
		infoLog("Converged destination", logrus.Fields{
			"directories": 2, "copied": 2, "skipped": 1, "failed": 0, "pruned": 1,
		}),
	}, logHook.AllEntries(), "")

	// A second pass has nothing to do.
	logHook.Reset()
	assert.NoError(t, Converge(context.Background(), tree.fs, tree.mapper, Ignorer{}, logger))
	assert.Empty(t, logHook.AllEntries())
}
