package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryBackend keeps entries in process. Only suitable for a single
// replica: invalidations from other replicas are not seen.
type MemoryBackend struct {
	mu       sync.Mutex
	entries  *expirable.LRU[string, []byte]
	versions *lru.Cache[string, uint64]
}

// NewMemoryBackend holds up to size entries, each expiring after ttl.
// The per-call ttl of SetIfVersion is ignored.
func NewMemoryBackend(size int, ttl time.Duration) (*MemoryBackend, error) {
	// Versions are kept for more keys than entries so that evicting a
	// version (and losing its count) is rare.
	versions, err := lru.New[string, uint64](size * 4)
	if err != nil {
		return nil, err
	}
	return &MemoryBackend{
		entries:  expirable.NewLRU[string, []byte](size, nil, ttl),
		versions: versions,
	}, nil
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.entries.Get(key)
	return v, ok, nil
}

func (m *MemoryBackend) Version(_ context.Context, key string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, _ := m.versions.Get(key)
	return v, nil
}

func (m *MemoryBackend) SetIfVersion(_ context.Context, key string, version uint64, value []byte, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, _ := m.versions.Get(key); v != version {
		return false, nil
	}
	m.entries.Add(key, value)
	return true, nil
}

func (m *MemoryBackend) Invalidate(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		v, _ := m.versions.Get(key)
		m.versions.Add(key, v+1)
		m.entries.Remove(key)
	}
	return nil
}

func (m *MemoryBackend) Ping(context.Context) error { return nil }
