package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Basic(t *testing.T) {
	rl := NewRateLimiter(100*time.Millisecond, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, rl.Wait(ctx))
	}

	// bucket is empty, the next token takes ~100ms
	start := time.Now()
	require.NoError(t, rl.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestRateLimiter_TryAcquire(t *testing.T) {
	rl := NewRateLimiter(100*time.Millisecond, 2)

	assert.True(t, rl.TryAcquire())
	assert.True(t, rl.TryAcquire())
	assert.False(t, rl.TryAcquire())

	_, capacity, every := rl.GetStats()
	assert.Equal(t, 2, capacity)
	assert.Equal(t, 100*time.Millisecond, every)
}

func TestRateLimiter_WaitHonoursContext(t *testing.T) {
	rl := NewRateLimiter(time.Hour, 1)
	require.True(t, rl.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(ctx))
}

func TestPooledRateLimiter_IndependentKeys(t *testing.T) {
	prl := NewPooledRateLimiter(100*time.Millisecond, 2)
	defer prl.Close()
	ctx := context.Background()

	require.NoError(t, prl.Wait(ctx, "wallet-a"))
	require.NoError(t, prl.Wait(ctx, "wallet-b"))

	assert.True(t, prl.TryAcquire("wallet-a"))
	assert.True(t, prl.TryAcquire("wallet-b"))

	assert.False(t, prl.TryAcquire("wallet-a"))
	assert.False(t, prl.TryAcquire("wallet-b"))
	assert.Equal(t, 2, prl.Len())
}

func TestPooledRateLimiter_Sweep(t *testing.T) {
	prl := NewPooledRateLimiter(time.Millisecond, 1)
	prl.TryAcquire("a")
	prl.TryAcquire("b")

	assert.Equal(t, 0, prl.Sweep(time.Now()))
	assert.Equal(t, 2, prl.Sweep(time.Now().Add(time.Hour)))
	assert.Equal(t, 0, prl.Len())
}
