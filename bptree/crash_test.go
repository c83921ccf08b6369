package bptree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"fastfair/pm"
)

// TestCrashConsistencyKeepsFlushedInserts models spec.md §8 P6: every
// key whose insert has been explicitly flushed (via the node's insert
// path) must still be found after the pool is reopened, even if the
// process is torn down without a clean Close/Sync in between.
func TestCrashConsistencyKeepsFlushedInserts(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/crash.db"

	pool, err := pm.Open(path, 8<<20)
	require.NoError(t, err)

	tree, err := Open(pool, false)
	require.NoError(t, err)

	const n = 500
	for i := int64(0); i < n; i++ {
		tree.Insert(i, uint64(i)+1)
	}

	root := tree.rootHandle()
	rootChecksum := pm.PageChecksum(pool.Direct(root))
	require.NotZero(t, rootChecksum)

	// Simulate an unclean shutdown: unmap without a final Sync. Every
	// Persist call the tree made along the way already msync'd its
	// range, so this must not lose any acknowledged insert.
	require.NoError(t, pool.CloseDirty())

	reopened, err := pm.Open(path, 8<<20)
	require.NoError(t, err)
	defer reopened.Close()

	tree2, err := Open(reopened, false)
	require.NoError(t, err)

	for i := int64(0); i < n; i++ {
		v, ok := tree2.Search(i)
		require.True(t, ok, "key %d lost across simulated crash", i)
		require.Equal(t, uint64(i)+1, v)
	}
}
