package state

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock {
	return &clock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

// storeContract exercises behaviour every backend must share.
func storeContract(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, s.Set(ctx, "a:1", []byte("one"), 0))
	require.NoError(t, s.Set(ctx, "a:2", []byte("two"), 0))
	require.NoError(t, s.Set(ctx, "b:1", []byte("three"), 0))

	v, err := s.Get(ctx, "a:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), v)

	require.NoError(t, s.Set(ctx, "a:1", []byte("uno"), 0))
	v, err = s.Get(ctx, "a:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("uno"), v)

	ok, err := s.Exists(ctx, "a:2")
	require.NoError(t, err)
	assert.True(t, ok)

	keys, err := s.Keys(ctx, "a:*")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"a:1", "a:2"}, keys)

	require.NoError(t, s.Delete(ctx, "a:2"))
	require.NoError(t, s.Delete(ctx, "a:2"))
	ok, err = s.Exists(ctx, "a:2")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, s.Ping(ctx))
}

func TestMemoryStore_Contract(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	storeContract(t, s)
}

func TestSQLiteStore_Contract(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()
	storeContract(t, s)
}

func TestSQLiteStore_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "wizard.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}

func TestRedisStore_Contract(t *testing.T) {
	addr := os.Getenv("WIZARD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("WIZARD_TEST_REDIS_ADDR not set")
	}

	cfg := DefaultRedisConfig()
	cfg.Addr = addr
	s, err := NewRedisStore(context.Background(), cfg)
	require.NoError(t, err)
	defer s.Close()

	ns := Namespace(s, "wizard-test:"+time.Now().Format("150405.000")+":", 0)
	storeContract(t, ns)
}

func TestMemoryStore_Expiry(t *testing.T) {
	c := newClock()
	s := NewMemoryStore()
	s.now = c.now
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "short", []byte("x"), time.Minute))
	require.NoError(t, s.Set(ctx, "forever", []byte("y"), 0))

	c.advance(2 * time.Minute)

	_, err := s.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.Equal(t, 2, s.Len())

	removed, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, s.Len())
}

func TestSQLiteStore_Expiry(t *testing.T) {
	c := newClock()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()
	s.now = c.now
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "short", []byte("x"), time.Minute))
	require.NoError(t, s.Set(ctx, "forever", []byte("y"), 0))
	c.advance(2 * time.Minute)

	ok, err := s.Exists(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	keys, err := s.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Equal(t, []string{"forever"}, keys)
}

func TestMemoryStore_Closed(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())
	ctx := context.Background()

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, s.Set(ctx, "k", nil, 0), ErrStoreClosed)
	assert.ErrorIs(t, s.Ping(ctx), ErrStoreClosed)
}

func TestNamespace(t *testing.T) {
	parent := NewMemoryStore()
	ctx := context.Background()

	a := Namespace(parent, "session:a:", 0)
	b := Namespace(parent, "session:b:", 0)

	require.NoError(t, a.Set(ctx, "multistepFormStep", []byte("1"), 0))
	require.NoError(t, b.Set(ctx, "multistepFormStep", []byte("2"), 0))

	v, err := a.Get(ctx, "multistepFormStep")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	keys, err := b.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Equal(t, []string{"multistepFormStep"}, keys)

	_, err = parent.Get(ctx, "session:b:multistepFormStep")
	assert.NoError(t, err)

	require.NoError(t, a.Close())
	assert.NoError(t, parent.Ping(ctx), "closing a namespace must not close the parent")
}

func TestNamespace_DefaultTTL(t *testing.T) {
	c := newClock()
	parent := NewMemoryStore()
	parent.now = c.now
	ctx := context.Background()

	ns := Namespace(parent, "s:", time.Hour)
	require.NoError(t, ns.Set(ctx, "k", []byte("v"), 0))

	c.advance(2 * time.Hour)
	_, err := ns.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemoryStore_SnapshotRoundTrip(t *testing.T) {
	c := newClock()
	src := NewMemoryStore()
	src.now = c.now
	ctx := context.Background()

	require.NoError(t, src.Set(ctx, "keep", []byte("v1"), 0))
	require.NoError(t, src.Set(ctx, "ttl", []byte("v2"), time.Hour))
	require.NoError(t, src.Set(ctx, "gone", []byte("v3"), time.Second))
	c.advance(time.Minute)

	path := filepath.Join(t.TempDir(), "snap", "store.bin")
	require.NoError(t, src.SaveFile(path))

	dst := NewMemoryStore()
	dst.now = c.now
	n, err := dst.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	v, err := dst.Get(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)

	c.advance(2 * time.Hour)
	_, err = dst.Get(ctx, "ttl")
	assert.ErrorIs(t, err, ErrKeyNotFound, "expiry must survive the snapshot")
}

func TestMemoryStore_LoadMissingFile(t *testing.T) {
	s := NewMemoryStore()
	n, err := s.LoadFile(filepath.Join(t.TempDir(), "nope.bin"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCodec_Framing(t *testing.T) {
	in := map[string]string{"payload": strings.Repeat("a", 64)}

	small := Codec{GzipAbove: 1 << 20}
	raw, err := small.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, "WZS", string(raw[:3]))
	assert.Equal(t, frameRaw, raw[3])

	big := Codec{GzipAbove: 16}
	zipped, err := big.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, frameGzip, zipped[3])

	for _, data := range [][]byte{raw, zipped} {
		var out map[string]string
		require.NoError(t, DefaultCodec().Decode(data, &out))
		assert.Equal(t, in, out)
	}

	var out map[string]string
	assert.ErrorIs(t, DefaultCodec().Decode(nil, &out), ErrInvalidData)
	assert.ErrorIs(t, DefaultCodec().Decode([]byte("WZS"), &out), ErrInvalidData)
	assert.ErrorIs(t, DefaultCodec().Decode([]byte("XYZ\x00abc"), &out), ErrInvalidData)
	assert.ErrorIs(t, DefaultCodec().Decode([]byte("WZS\x09abc"), &out), ErrInvalidData)
	assert.ErrorIs(t, DefaultCodec().Decode([]byte("WZS\x01notgzip"), &out), ErrInvalidData)
}
