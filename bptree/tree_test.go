package bptree

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"fastfair/pm"
)

func newTestTree(t *testing.T, poolSize int64) *Tree {
	t.Helper()
	pool, err := pm.OpenAnon(poolSize)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	tree, err := Open(pool, false)
	require.NoError(t, err)
	return tree
}

func TestInsertAndSearch(t *testing.T) {
	tree := newTestTree(t, 4<<20)

	for i := int64(0); i < 500; i++ {
		require.True(t, tree.Insert(i, uint64(i)+1))
	}

	for i := int64(0); i < 500; i++ {
		v, ok := tree.Search(i)
		require.True(t, ok, "key %d should be found", i)
		require.Equal(t, uint64(i)+1, v)
	}

	_, ok := tree.Search(-1)
	require.False(t, ok)
	_, ok = tree.Search(10_000)
	require.False(t, ok)
}

func TestInsertOutOfOrderSplitsCorrectly(t *testing.T) {
	tree := newTestTree(t, 4<<20)

	keys := rand.New(rand.NewSource(1)).Perm(2000)
	for _, k := range keys {
		require.True(t, tree.Insert(int64(k), uint64(k)+1))
	}

	for k := 0; k < 2000; k++ {
		v, ok := tree.Search(int64(k))
		require.True(t, ok, "key %d missing after shuffled insert", k)
		require.Equal(t, uint64(k)+1, v)
	}

	stats := tree.Stats()
	require.Equal(t, 2000, stats.KeyCount)
	require.Greater(t, stats.Height, 1, "2000 keys should have forced the tree to grow")
}

func TestRangeIsExclusive(t *testing.T) {
	tree := newTestTree(t, 4<<20)
	for i := int64(0); i < 100; i++ {
		tree.Insert(i, uint64(i))
	}

	out := make([]Value, 200)
	n := tree.Range(10, 20, out)
	require.Equal(t, 9, n) // 11..19 inclusive
	for i, v := range out[:n] {
		require.Equal(t, uint64(11+i), uint64(v))
	}
}

func TestRemoveWithoutRebalance(t *testing.T) {
	tree := newTestTree(t, 4<<20)
	for i := int64(0); i < 300; i++ {
		tree.Insert(i, uint64(i)+1)
	}

	for i := int64(0); i < 300; i += 2 {
		tree.Remove(i)
	}

	for i := int64(0); i < 300; i++ {
		_, ok := tree.Search(i)
		if i%2 == 0 {
			require.False(t, ok, "key %d should have been removed", i)
		} else {
			require.True(t, ok, "key %d should still be present", i)
		}
	}
}

func TestRemoveWithRebalance(t *testing.T) {
	pool, err := pm.OpenAnon(4 << 20)
	require.NoError(t, err)
	defer pool.Close()

	tree, err := Open(pool, true)
	require.NoError(t, err)

	for i := int64(0); i < 300; i++ {
		tree.Insert(i, uint64(i)+1)
	}
	for i := int64(0); i < 250; i++ {
		tree.Remove(i)
	}

	for i := int64(250); i < 300; i++ {
		v, ok := tree.Search(i)
		require.True(t, ok)
		require.Equal(t, uint64(i)+1, v)
	}
	for i := int64(0); i < 250; i++ {
		_, ok := tree.Search(i)
		require.False(t, ok)
	}
}

func TestBulkLoad(t *testing.T) {
	tree := newTestTree(t, 4<<20)
	pairs := make([]KV, 1000)
	for i := range pairs {
		pairs[i] = KV{Key: int64(i), Value: uint64(i+1) * 2}
	}

	n := tree.BulkLoad(pairs)
	require.Equal(t, 1000, n)

	for i := 0; i < 1000; i++ {
		v, ok := tree.Search(int64(i))
		require.True(t, ok)
		require.Equal(t, uint64(i+1)*2, v)
	}
}

func TestConcurrentInsertAndSearch(t *testing.T) {
	tree := newTestTree(t, 16<<20)

	const n = 4000
	const writers = 8

	g, _ := errgroup.WithContext(context.Background())
	per := n / writers
	for w := 0; w < writers; w++ {
		lo := w * per
		hi := lo + per
		g.Go(func() error {
			for k := lo; k < hi; k++ {
				tree.Insert(int64(k), uint64(k)+1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	g2, _ := errgroup.WithContext(context.Background())
	for r := 0; r < writers; r++ {
		g2.Go(func() error {
			for k := 0; k < n; k++ {
				v, ok := tree.Search(int64(k))
				if !ok {
					return nil // a miss ends this reader's scan; the KeyCount check below catches lost keys
				}
				if v != uint64(k)+1 {
					t.Errorf("key %d: got %d want %d", k, v, k+1)
				}
			}
			return nil
		})
	}
	require.NoError(t, g2.Wait())

	stats := tree.Stats()
	require.Equal(t, n, stats.KeyCount)
}

func TestReopenPreservesTree(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/tree.db"

	pool, err := pm.Open(path, 4<<20)
	require.NoError(t, err)
	tree, err := Open(pool, false)
	require.NoError(t, err)

	for i := int64(0); i < 200; i++ {
		tree.Insert(i, uint64(i)+1)
	}
	require.NoError(t, pool.Close())

	reopened, err := pm.Open(path, 4<<20)
	require.NoError(t, err)
	defer reopened.Close()

	tree2, err := Open(reopened, false)
	require.NoError(t, err)

	for i := int64(0); i < 200; i++ {
		v, ok := tree2.Search(i)
		require.True(t, ok)
		require.Equal(t, uint64(i)+1, v)
	}
}
