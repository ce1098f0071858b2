package state

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

type snapshotEntry struct {
	Value     []byte `msgpack:"v"`
	ExpiresAt int64  `msgpack:"e,omitempty"`
}

type snapshotFile struct {
	Version int                      `msgpack:"ver"`
	SavedAt int64                    `msgpack:"at"`
	Items   map[string]snapshotEntry `msgpack:"items"`
}

const snapshotVersion = 1

// Snapshot encodes all live items, expiry included.
func (ms *MemoryStore) Snapshot() ([]byte, error) {
	ms.mu.RLock()
	now := ms.now()
	file := snapshotFile{
		Version: snapshotVersion,
		SavedAt: now.Unix(),
		Items:   make(map[string]snapshotEntry, len(ms.items)),
	}
	for key, item := range ms.items {
		if item.expired(now) {
			continue
		}
		entry := snapshotEntry{Value: item.value}
		if !item.expiresAt.IsZero() {
			entry.ExpiresAt = item.expiresAt.UnixNano()
		}
		file.Items[key] = entry
	}
	data, err := DefaultCodec().Encode(&file)
	ms.mu.RUnlock()
	return data, err
}

// Restore loads a snapshot produced by Snapshot, replacing existing keys of
// the same name. Entries that expired meanwhile are skipped.
func (ms *MemoryStore) Restore(data []byte) (int, error) {
	var file snapshotFile
	if err := DefaultCodec().Decode(data, &file); err != nil {
		return 0, fmt.Errorf("decode snapshot: %w", err)
	}
	if file.Version != snapshotVersion {
		return 0, fmt.Errorf("%w: snapshot version %d", ErrInvalidData, file.Version)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.closed {
		return 0, ErrStoreClosed
	}

	now := ms.now()
	restored := 0
	for key, entry := range file.Items {
		item := &memoryItem{value: entry.Value}
		if entry.ExpiresAt != 0 {
			item.expiresAt = time.Unix(0, entry.ExpiresAt)
		}
		if item.expired(now) {
			continue
		}
		ms.items[key] = item
		restored++
	}
	return restored, nil
}

// SaveFile writes a snapshot atomically to path.
func (ms *MemoryStore) SaveFile(path string) error {
	data, err := ms.Snapshot()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadFile restores a snapshot from path. A missing file is not an error.
func (ms *MemoryStore) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read snapshot: %w", err)
	}
	return ms.Restore(data)
}
