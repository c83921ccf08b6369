package bptree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"fastfair/pm"
)

func newTestNode(t *testing.T) node {
	t.Helper()
	pool, err := pm.OpenAnon(2 * pm.PageSize)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	h, err := pool.AllocateZeroed()
	require.NoError(t, err)
	return initLeaf(pool, newMutexTable(), h, 0)
}

func TestCardinalityMatchesPageSize(t *testing.T) {
	require.Equal(t, 512, pm.PageSize)
	require.Equal(t, 28, cardinality)
	require.Equal(t, 64+cardinality*16, pm.PageSize)
}

func TestInsertKeyKeepsSortedOrder(t *testing.T) {
	n := newTestNode(t)

	keys := []Key{50, 10, 40, 20, 30}
	count := 0
	for _, k := range keys {
		count = n.insertKey(k, pm.Handle(k), count, true)
	}

	require.Equal(t, len(keys), n.count())
	for i, want := range []Key{10, 20, 30, 40, 50} {
		require.Equal(t, want, n.entryKey(i))
	}
}

func TestRemoveKeyShiftsRemaining(t *testing.T) {
	n := newTestNode(t)
	count := 0
	for _, k := range []Key{10, 20, 30, 40} {
		count = n.insertKey(k, pm.Handle(k), count, true)
	}

	require.True(t, n.removeKey(20))
	require.Equal(t, 3, n.count())
	require.Equal(t, Key(10), n.entryKey(0))
	require.Equal(t, Key(30), n.entryKey(1))
	require.Equal(t, Key(40), n.entryKey(2))

	require.False(t, n.removeKey(999))
}

func TestCrossesCacheLine(t *testing.T) {
	require.True(t, crossesCacheLine(0))
	require.True(t, crossesCacheLine(pm.CacheLineSize))
	require.False(t, crossesCacheLine(8))
}

func TestSwitchCounterParity(t *testing.T) {
	require.True(t, isForward(0))
	require.False(t, isForward(1))
	require.True(t, isForward(2))
}
