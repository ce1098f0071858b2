package state

import (
	"context"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps entries in a map guarded by a RWMutex. Expired entries
// are invisible at once and physically removed by Sweep. It can be saved to
// and restored from a snapshot file.
type MemoryStore struct {
	mu     sync.RWMutex
	items  map[string]*memoryItem
	closed bool
	now    func() time.Time
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

func (it *memoryItem) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && now.After(it.expiresAt)
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]*memoryItem),
		now:   time.Now,
	}
}

// view runs fn under the read lock unless the store is closed.
func (ms *MemoryStore) view(fn func(now time.Time) error) error {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if ms.closed {
		return ErrStoreClosed
	}
	return fn(ms.now())
}

// update runs fn under the write lock unless the store is closed.
func (ms *MemoryStore) update(fn func(now time.Time) error) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.closed {
		return ErrStoreClosed
	}
	return fn(ms.now())
}

func (ms *MemoryStore) live(key string, now time.Time) (*memoryItem, bool) {
	item, ok := ms.items[key]
	if !ok || item.expired(now) {
		return nil, false
	}
	return item, true
}

func (ms *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := ms.view(func(now time.Time) error {
		item, ok := ms.live(key, now)
		if !ok {
			return ErrKeyNotFound
		}
		out = slices.Clone(item.value)
		return nil
	})
	return out, err
}

// Set stores a copy of value. A ttl of zero or less never expires.
func (ms *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return ms.update(func(now time.Time) error {
		item := &memoryItem{value: slices.Clone(value)}
		if item.value == nil {
			item.value = []byte{}
		}
		if ttl > 0 {
			item.expiresAt = now.Add(ttl)
		}
		ms.items[key] = item
		return nil
	})
}

func (ms *MemoryStore) Delete(ctx context.Context, key string) error {
	return ms.update(func(time.Time) error {
		delete(ms.items, key)
		return nil
	})
}

func (ms *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	var found bool
	err := ms.view(func(now time.Time) error {
		_, found = ms.live(key, now)
		return nil
	})
	return found, err
}

// Keys matches with filepath.Match semantics. Results are sorted.
func (ms *MemoryStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	err := ms.view(func(now time.Time) error {
		for key, item := range ms.items {
			if item.expired(now) {
				continue
			}
			if ok, _ := filepath.Match(pattern, key); ok {
				keys = append(keys, key)
			}
		}
		return nil
	})
	slices.Sort(keys)
	return keys, err
}

// Ping fails only once the store is closed.
func (ms *MemoryStore) Ping(ctx context.Context) error {
	return ms.view(func(time.Time) error { return nil })
}

// Close marks the store closed. Entries stay readable by Snapshot.
func (ms *MemoryStore) Close() error {
	ms.mu.Lock()
	ms.closed = true
	ms.mu.Unlock()
	return nil
}

// Sweep deletes expired entries and returns how many went.
func (ms *MemoryStore) Sweep(ctx context.Context) (int, error) {
	removed := 0
	err := ms.update(func(now time.Time) error {
		for key, item := range ms.items {
			if item.expired(now) {
				delete(ms.items, key)
				removed++
			}
		}
		return nil
	})
	return removed, err
}

// Len counts entries, expired ones included.
func (ms *MemoryStore) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.items)
}
