package cache

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
)

type lruShard[K comparable, V any] struct {
	mu  sync.Mutex
	lru *LruCache[K, V]
}

// ShardingLruCache partitions an LRU cache across shardCount independent
// shards, each guarded by its own mutex. Operations on distinct shards make
// progress independently; operations on one shard serialize. There is no
// global ordering across shards.
type ShardingLruCache[K comparable, V any] struct {
	shards []*lruShard[K, V]
	hash   func(K) uint64
}

// NewShardingLruCache creates a sharded cache of the given total capacity.
// capacity must divide evenly across shardCount. The hash function is
// caller-supplied so tests can seed shard placement deterministically; it
// is evaluated fresh on every lookup.
func NewShardingLruCache[K comparable, V any](capacity, shardCount int, hash func(K) uint64) (*ShardingLruCache[K, V], error) {
	if shardCount < 1 || capacity%shardCount != 0 {
		return nil, ErrShardingNotAlign
	}

	shards := make([]*lruShard[K, V], 0, shardCount)
	for i := 0; i < shardCount; i++ {
		lru, err := NewLruCache[K, V](capacity / shardCount)
		if err != nil {
			return nil, err
		}
		shards = append(shards, &lruShard[K, V]{lru: lru})
	}

	return &ShardingLruCache[K, V]{shards: shards, hash: hash}, nil
}

// shard selects the shard owning key: hash(key) mod shardCount.
func (c *ShardingLruCache[K, V]) shard(key K) *lruShard[K, V] {
	return c.shards[c.hash(key)%uint64(len(c.shards))]
}

func (c *ShardingLruCache[K, V]) Get(key K) (V, bool) {
	sh := c.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.lru.Get(key)
}

func (c *ShardingLruCache[K, V]) Put(key K, value V) (V, bool) {
	sh := c.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.lru.Put(key, value)
}

func (c *ShardingLruCache[K, V]) Remove(key K) (V, bool) {
	sh := c.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.lru.Remove(key)
}

// GetOrInsert holds the shard lock across fn, so a missed key is computed
// at most once under contention. fn must be quick, must not block on I/O,
// and must not reenter the cache.
func (c *ShardingLruCache[K, V]) GetOrInsert(key K, fn func(K) (V, error)) (V, error) {
	sh := c.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.lru.GetOrInsert(key, fn)
}

// IsEmpty locks and checks every shard; no global count is maintained.
func (c *ShardingLruCache[K, V]) IsEmpty() bool {
	for _, sh := range c.shards {
		sh.mu.Lock()
		empty := sh.lru.IsEmpty()
		sh.mu.Unlock()
		if !empty {
			return false
		}
	}
	return true
}

// BytesHash hashes a byte-slice key with a fresh xxhash state per call.
func BytesHash(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// StringHash hashes a string key with a fresh xxhash state per call.
func StringHash(key string) uint64 {
	return xxhash.Sum64String(key)
}

// GenHash hashes an SSTable generation number.
func GenHash(gen int64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(gen))
	return xxhash.Sum64(buf[:])
}
