// Package state provides key-value storage backends for wizard sessions.
// It supports in-memory (default, optionally snapshotted to disk), SQLite
// and Redis stores behind one interface.
package state

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Common store errors.
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrStoreClosed = errors.New("store is closed")
	ErrInvalidData = errors.New("invalid data format")
)

// Store is the interface for state storage backends.
type Store interface {
	// Get retrieves a value by key. Missing or expired keys return ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value. A ttl of zero keeps the value until deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Keys returns all keys matching a glob pattern (* matches any sequence).
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close closes the store.
	Close() error
}

// Sweeper is implemented by stores that must drop expired entries themselves.
type Sweeper interface {
	// Sweep removes expired entries and returns how many were removed.
	Sweep(ctx context.Context) (int, error)
}

// Namespaced prefixes every key of an underlying store. Closing it does not
// close the parent store.
type Namespaced struct {
	store  Store
	prefix string
	ttl    time.Duration
}

// Namespace returns a view of store whose keys live under prefix.
// A non-zero ttl is applied to writes that do not carry their own.
func Namespace(store Store, prefix string, ttl time.Duration) *Namespaced {
	return &Namespaced{store: store, prefix: prefix, ttl: ttl}
}

// Prefix returns the key prefix.
func (n *Namespaced) Prefix() string {
	return n.prefix
}

func (n *Namespaced) Get(ctx context.Context, key string) ([]byte, error) {
	return n.store.Get(ctx, n.prefix+key)
}

func (n *Namespaced) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = n.ttl
	}
	return n.store.Set(ctx, n.prefix+key, value, ttl)
}

func (n *Namespaced) Delete(ctx context.Context, key string) error {
	return n.store.Delete(ctx, n.prefix+key)
}

func (n *Namespaced) Exists(ctx context.Context, key string) (bool, error) {
	return n.store.Exists(ctx, n.prefix+key)
}

func (n *Namespaced) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := n.store.Keys(ctx, n.prefix+pattern)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, n.prefix)
	}
	return keys, nil
}

func (n *Namespaced) Ping(ctx context.Context) error {
	return n.store.Ping(ctx)
}

// Close is a no-op; the parent store owns the connection.
func (n *Namespaced) Close() error {
	return nil
}
