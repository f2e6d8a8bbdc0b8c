package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLimiter(limit int) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(limit, time.Minute)
	rl.now = clock.Now
	return rl, clock
}

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	rl, _ := newTestLimiter(3)

	assert.True(t, rl.Allow("u1"))
	assert.True(t, rl.Allow("u1"))
	assert.True(t, rl.Allow("u1"))
	assert.False(t, rl.Allow("u1"))
	assert.True(t, rl.Allow("u2"), "limits are per user")
}

func TestRateLimiter_WindowResets(t *testing.T) {
	rl, clock := newTestLimiter(1)

	assert.True(t, rl.Allow("u1"))
	assert.False(t, rl.Allow("u1"))

	clock.Advance(time.Minute)
	assert.True(t, rl.Allow("u1"))
}

func TestRateLimiter_DisabledWhenLimitZero(t *testing.T) {
	rl, _ := newTestLimiter(0)
	for i := 0; i < 1000; i++ {
		assert.True(t, rl.Allow("u1"))
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl, clock := newTestLimiter(5)
	rl.Allow("idle")
	clock.Advance(4 * time.Minute)
	rl.Allow("active")

	clock.Advance(2 * time.Minute)
	rl.Cleanup()
	assert.Equal(t, 1, rl.tracked())
}

func TestRateLimiter_RunStopsWithContext(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		rl.Run(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
