package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// identityHash pins shard placement for tests: the hash is the key itself,
// so a key lands in shard key mod shardCount.
func identityHash(k int) uint64 {
	return uint64(k)
}

func TestShardingAlignment(t *testing.T) {
	_, err := NewShardingLruCache[int, int](5, 2, identityHash)
	assert.ErrorIs(t, err, ErrShardingNotAlign)

	c, err := NewShardingLruCache[int, int](4, 2, identityHash)
	require.NoError(t, err)
	assert.Len(t, c.shards, 2)
	assert.Equal(t, 2, c.shards[0].lru.cap)
	assert.Equal(t, 2, c.shards[1].lru.cap)
}

func TestShardingZeroShardCapacity(t *testing.T) {
	// capacity 0 aligns to any shard count but leaves zero per shard.
	_, err := NewShardingLruCache[int, int](0, 2, identityHash)
	assert.ErrorIs(t, err, ErrCacheSizeOverflow)
}

func TestShardingPlacement(t *testing.T) {
	c, err := NewShardingLruCache[int, int](4, 2, identityHash)
	require.NoError(t, err)

	// Evens land in shard 0, odds in shard 1.
	c.Put(0, 0)
	c.Put(2, 2)
	c.Put(1, 1)
	c.Put(3, 3)

	assert.Equal(t, 2, c.shards[0].lru.Len())
	assert.Equal(t, 2, c.shards[1].lru.Len())

	// A third even key evicts only within shard 0.
	c.Put(4, 4)
	assert.Equal(t, 2, c.shards[0].lru.Len())
	_, ok := c.Get(0)
	assert.False(t, ok)
	_, ok = c.Get(1)
	assert.True(t, ok)
	_, ok = c.Get(3)
	assert.True(t, ok)
}

func TestShardingBasicOps(t *testing.T) {
	c, err := NewShardingLruCache[int, int](4, 2, identityHash)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())

	_, had := c.Put(1, 10)
	assert.False(t, had)
	v, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, 10, v)
	assert.False(t, c.IsEmpty())

	v, err = c.GetOrInsert(9, func(int) (int, error) { return 9, nil })
	require.NoError(t, err)
	assert.Equal(t, 9, v)

	v, ok = c.Remove(1)
	require.True(t, ok)
	assert.Equal(t, 10, v)
	_, ok = c.Get(1)
	assert.False(t, ok)
}

func TestShardingGetOrInsertOnce(t *testing.T) {
	c, err := NewShardingLruCache[int, int](8, 2, identityHash)
	require.NoError(t, err)

	var calls int
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetOrInsert(7, func(k int) (int, error) {
				calls++ // safe: the shard lock is held across the factory
				return k, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, calls, "factory must run at most once per key under contention")
}

func TestShardingConcurrentDistinctShards(t *testing.T) {
	c, err := NewShardingLruCache[string, int](64, 4, StringHash)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("g%d-k%d", g, i%8)
				c.Put(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()
}

func TestHashHelpers(t *testing.T) {
	// Fresh state per call: equal inputs hash equal.
	assert.Equal(t, BytesHash([]byte("key")), BytesHash([]byte("key")))
	assert.Equal(t, BytesHash([]byte("key")), StringHash("key"))
	assert.Equal(t, GenHash(42), GenHash(42))
	assert.NotEqual(t, GenHash(42), GenHash(43))
}
