// Package memory provides in-memory implementations of storage ports.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/artpar/apiward/domain/govern"
	"github.com/artpar/apiward/ports"
)

// CacheStore is an in-memory implementation of ports.CacheStore.
// Suitable for single-process use and tests; copies do not survive
// restarts (use the sqlite store for that).
type CacheStore struct {
	mu      sync.RWMutex
	entries map[string]govern.CachedResponse
}

// NewCacheStore creates a new in-memory cache store.
func NewCacheStore() *CacheStore {
	return &CacheStore{
		entries: make(map[string]govern.CachedResponse),
	}
}

// Get retrieves a usable stored copy, or nil.
func (s *CacheStore) Get(ctx context.Context, key string, now time.Time, maxStale time.Duration) (*govern.CachedResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok || !entry.Usable(now, maxStale) {
		return nil, nil
	}

	out := entry
	out.Headers = govern.CloneHeaders(entry.Headers)
	return &out, nil
}

// Put stores a response copy, replacing any previous one for the key.
func (s *CacheStore) Put(ctx context.Context, key string, resp govern.CachedResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp.Headers = govern.CloneHeaders(resp.Headers)
	s.entries[key] = resp
	return nil
}

// Purge removes copies whose freshness window ended before cutoff.
func (s *CacheStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key, entry := range s.entries {
		if entry.StoredAt.Add(entry.MaxAge).Before(cutoff) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored copies (for testing).
func (s *CacheStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Ensure interface compliance.
var _ ports.CacheStore = (*CacheStore)(nil)
