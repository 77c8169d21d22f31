package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AcquireUntilEmpty(t *testing.T) {
	rl := NewRateLimiter(0.001, 3)
	assert.True(t, rl.Acquire(1))
	assert.True(t, rl.Acquire(2))
	assert.False(t, rl.Acquire(1))
}

func TestRateLimiter_WaitHonoursContext(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	require.True(t, rl.Acquire(1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rl.Wait(ctx, 1), context.DeadlineExceeded)
}

func TestBackoffManager_OnRateLimited(t *testing.T) {
	bm := NewBackoffManager()

	retry := 2.0
	wait := bm.OnRateLimited(429, &retry)
	assert.InDelta(t, 2.2, wait, 1e-9)
	assert.Greater(t, bm.Remaining(), time.Second)

	bm.ResetBackoff()
	assert.Equal(t, time.Duration(0), bm.Remaining())

	// 418无Retry-After时基数为60秒，封顶maxSec
	wait = bm.OnRateLimited(418, nil)
	assert.InDelta(t, 61.0, wait, 1e-9)
}

func TestBackoffManager_WaitBackoffCancelled(t *testing.T) {
	bm := NewBackoffManager()
	bm.SetBackoff(5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, bm.WaitBackoff(ctx), context.Canceled)
}

func TestParseRetryAfter(t *testing.T) {
	v := ParseRetryAfter("3")
	require.NotNil(t, v)
	assert.Equal(t, 3.0, *v)

	assert.Nil(t, ParseRetryAfter(""))
	assert.Nil(t, ParseRetryAfter("-1"))
	assert.Nil(t, ParseRetryAfter("garbage"))
}
