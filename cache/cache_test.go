package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend(10, time.Minute)

	_, ok, err := b.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Set(ctx, "k1", []byte("v1")))
	v, ok, err := b.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), v)

	require.NoError(t, b.Delete(ctx, "k1"))
	_, ok, err = b.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryBackendTTLExpiry(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend(10, 50*time.Millisecond)

	require.NoError(t, b.Set(ctx, "k1", []byte("v1")))
	time.Sleep(100 * time.Millisecond)

	_, ok, err := b.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok, "expected expired entry to be a miss")
}

func TestMemoryBackendEviction(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend(2, time.Minute)

	require.NoError(t, b.Set(ctx, "a", []byte("1")))
	require.NoError(t, b.Set(ctx, "b", []byte("2")))
	require.NoError(t, b.Set(ctx, "c", []byte("3")))

	_, ok, _ := b.Get(ctx, "a")
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok, _ = b.Get(ctx, "c")
	assert.True(t, ok)
}

func TestMemoryBackendsAreIndependent(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryBackend(10, time.Minute)
	b := NewMemoryBackend(10, time.Minute)

	require.NoError(t, a.Set(ctx, "k", []byte("v")))
	_, ok, _ := b.Get(ctx, "k")
	assert.False(t, ok, "separate in-memory backend instances must not share state")
}

func TestNullBackendAlwaysMisses(t *testing.T) {
	ctx := context.Background()
	b := NewNullBackend()

	require.NoError(t, b.Set(ctx, "k", []byte("v")))
	_, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, b.HealthCheck(ctx))
}

func TestMemoryBackendConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend(1000, time.Minute)

	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			key := string(rune('a' + i%26))
			_ = b.Set(ctx, key, []byte{byte(i)})
			_, _, _ = b.Get(ctx, key)
		}(i)
	}
	for i := 0; i < 20; i++ {
		<-done
	}
}
