package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Store is a keyed sliding-window event counter. Hit records one event for
// the key and reports, for each requested window, how many events (including
// this one) fall inside it, plus the timestamp of the oldest event within the
// largest window. Implementations must be safe for concurrent callers on the
// same key without serializing unrelated keys.
type Store interface {
	Hit(ctx context.Context, key string, now time.Time, windows ...time.Duration) (counts []int, oldest time.Time, err error)
	Reset(ctx context.Context, key string) error
}

type memoryEntry struct {
	mu   sync.Mutex
	hits []time.Time
}

// MemoryStore keeps per-key timestamp rings in process memory. State is local
// to one instance; multi-instance deployments should use the Redis store.
type MemoryStore struct {
	entries sync.Map
	done    chan struct{}
}

func NewMemoryStore() *MemoryStore {
	store := &MemoryStore{
		done: make(chan struct{}),
	}

	go store.cleanup()

	return store
}

func (s *MemoryStore) Hit(_ context.Context, key string, now time.Time, windows ...time.Duration) ([]int, time.Time, error) {
	value, _ := s.entries.LoadOrStore(key, &memoryEntry{})
	entry := value.(*memoryEntry)

	maxWindow := maxDuration(windows)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.hits = append(entry.hits, now)

	cutoff := now.Add(-maxWindow)
	kept := entry.hits[:0]
	for _, hit := range entry.hits {
		if hit.After(cutoff) {
			kept = append(kept, hit)
		}
	}
	entry.hits = kept

	counts := make([]int, len(windows))
	for i, window := range windows {
		edge := now.Add(-window)
		for _, hit := range entry.hits {
			if hit.After(edge) {
				counts[i]++
			}
		}
	}

	var oldest time.Time
	if len(entry.hits) > 0 {
		oldest = entry.hits[0]
	}

	return counts, oldest, nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.entries.Delete(key)
	return nil
}

func (s *MemoryStore) Close() {
	close(s.done)
}

func (s *MemoryStore) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-5 * time.Minute)
			s.entries.Range(func(key, value any) bool {
				entry := value.(*memoryEntry)
				entry.mu.Lock()
				stale := len(entry.hits) == 0 || entry.hits[len(entry.hits)-1].Before(cutoff)
				entry.mu.Unlock()
				if stale {
					s.entries.Delete(key)
				}
				return true
			})
		}
	}
}

func maxDuration(windows []time.Duration) time.Duration {
	var max time.Duration
	for _, w := range windows {
		if w > max {
			max = w
		}
	}
	return max
}
