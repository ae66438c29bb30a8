package memory

import (
	"hash/fnv"
	"sort"
	"sync"

	"github.com/tola-labs/cfusage/domain/usage"
	"github.com/tola-labs/cfusage/ports"
)

// rollupShard is a single shard of the rollup store.
type rollupShard[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
	locks   map[string]*keyLock
}

// keyLock serializes computation for one key. refs counts the callers holding
// or waiting on it; the lock leaves the shard when the count drops to zero.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

// RollupStore is a sharded in-memory cache of computed rollups.
// Reads take only the shard read lock. Computation for a key runs under that
// key's own mutex, so at most one compute per key is in flight and different
// keys never wait on each other.
type RollupStore[V any] struct {
	shards    []*rollupShard[V]
	numShards int
}

// RollupStoreConfig configures the rollup store.
type RollupStoreConfig struct {
	NumShards int // Number of shards (default: 32)
}

// NewRollupStore creates a new sharded rollup store.
func NewRollupStore[V any](cfg RollupStoreConfig) *RollupStore[V] {
	if cfg.NumShards <= 0 {
		cfg.NumShards = 32
	}

	s := &RollupStore[V]{
		shards:    make([]*rollupShard[V], cfg.NumShards),
		numShards: cfg.NumShards,
	}
	for i := range s.shards {
		s.shards[i] = &rollupShard[V]{
			entries: make(map[string]V),
			locks:   make(map[string]*keyLock),
		}
	}
	return s
}

// getShard returns the shard for a given key using consistent hashing.
func (s *RollupStore[V]) getShard(key string) *rollupShard[V] {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(s.numShards)]
}

// lockKey acquires the computation lock for key.
func (s *RollupStore[V]) lockKey(key string) {
	shard := s.getShard(key)

	shard.mu.Lock()
	l, ok := shard.locks[key]
	if !ok {
		l = &keyLock{}
		shard.locks[key] = l
	}
	l.refs++
	shard.mu.Unlock()

	l.mu.Lock()
}

// unlockKey releases the computation lock for key and drops it once unused.
func (s *RollupStore[V]) unlockKey(key string) {
	shard := s.getShard(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()
	l := shard.locks[key]
	l.mu.Unlock()
	if l.refs--; l.refs == 0 {
		delete(shard.locks, key)
	}
}

// Get returns the cached value for key.
func (s *RollupStore[V]) Get(key string) (V, bool) {
	shard := s.getShard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	v, ok := shard.entries[key]
	return v, ok
}

func (s *RollupStore[V]) put(key string, v V) {
	shard := s.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.entries[key] = v
}

// GetOrCompute returns the cached value, or computes and stores it.
// The first successful writer wins; an existing entry is never replaced here.
func (s *RollupStore[V]) GetOrCompute(key string, compute func() (V, error)) (V, bool, error) {
	if v, ok := s.Get(key); ok {
		return v, false, nil
	}

	s.lockKey(key)
	defer s.unlockKey(key)

	// Another caller may have filled the entry while we waited.
	if v, ok := s.Get(key); ok {
		return v, false, nil
	}

	v, err := compute()
	if err != nil {
		var zero V
		return zero, true, err
	}
	s.put(key, v)
	return v, true, nil
}

// Refresh computes under the key's mutex and replaces the entry on success.
// On failure the previous entry, if any, is kept.
func (s *RollupStore[V]) Refresh(key string, compute func() (V, error)) (V, error) {
	s.lockKey(key)
	defer s.unlockKey(key)

	v, err := compute()
	if err != nil {
		var zero V
		return zero, err
	}
	s.put(key, v)
	return v, nil
}

// Delete removes the entry for key.
func (s *RollupStore[V]) Delete(key string) {
	shard := s.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	delete(shard.entries, key)
}

// Len returns the number of cached entries.
func (s *RollupStore[V]) Len() int {
	n := 0
	for _, shard := range s.shards {
		shard.mu.RLock()
		n += len(shard.entries)
		shard.mu.RUnlock()
	}
	return n
}

// Keys returns all cached keys, sorted.
func (s *RollupStore[V]) Keys() []string {
	keys := make([]string, 0)
	for _, shard := range s.shards {
		shard.mu.RLock()
		for k := range shard.entries {
			keys = append(keys, k)
		}
		shard.mu.RUnlock()
	}
	sort.Strings(keys)
	return keys
}

// Ensure interface compliance.
var (
	_ ports.RollupCache[*usage.OrgUsage] = (*RollupStore[*usage.OrgUsage])(nil)
	_ ports.RollupCache[*usage.SIUsage]  = (*RollupStore[*usage.SIUsage])(nil)
)
