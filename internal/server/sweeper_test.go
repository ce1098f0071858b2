package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrielmiguelok/golivekit-wizard/pkg/limits"
	"github.com/gabrielmiguelok/golivekit-wizard/pkg/state"
)

func TestNewSweeper_BadSpec(t *testing.T) {
	r, _ := newTestRegistry(state.NewMemoryStore())
	_, err := NewSweeper("whenever", r, state.NewMemoryStore(), nil, time.Hour, nil)
	assert.Error(t, err)
}

func TestSweeper_Run(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	r, now := newTestRegistry(store)
	limiter := limits.NewTokenBucket(10, 10)

	sess, err := r.Get(ctx, NewSessionID())
	require.NoError(t, err)
	limiter.Allow(sess.ID)

	require.NoError(t, store.Set(ctx, "stale", []byte("x"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	require.Equal(t, 1, store.Len())

	*now = now.Add(2 * time.Hour)
	sw, err := NewSweeper("@every 1h", r, store, limiter, time.Hour, nil)
	require.NoError(t, err)
	sw.Run(ctx)

	assert.Zero(t, r.Len())
	assert.Zero(t, store.Len())
	assert.Equal(t, 1, limiter.Len(), "buckets are pruned on their own clock")
}

func TestSweeper_StartStop(t *testing.T) {
	r, _ := newTestRegistry(state.NewMemoryStore())
	sw, err := NewSweeper("@every 1h", r, state.NewMemoryStore(), nil, time.Hour, nil)
	require.NoError(t, err)

	sw.Start()
	sw.Stop()
}
