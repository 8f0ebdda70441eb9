package ratelimit

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestWindow(limit int) (*SlidingWindow, *fakeClock) {
	clk := &fakeClock{now: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)}
	return NewSlidingWindow(Config{MaxRequests: limit, Window: time.Minute}, WithClock(clk.Now)), clk
}

func TestSlidingWindow_RejectsAtMax(t *testing.T) {
	w, _ := newTestWindow(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := w.Allow(ctx, "client-a")
		require.NoError(t, err)
		assert.True(t, ok, "request %d should pass", i)
	}

	ok, err := w.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, ok, "fourth request in the window should be rejected")

	ok, _ = w.Allow(ctx, "client-b")
	assert.True(t, ok, "identifiers are independent")
}

func TestSlidingWindow_Slides(t *testing.T) {
	w, clk := newTestWindow(2)
	ctx := context.Background()

	w.Allow(ctx, "id")
	clk.Advance(30 * time.Second)
	w.Allow(ctx, "id")

	ok, _ := w.Allow(ctx, "id")
	assert.False(t, ok)

	clk.Advance(31 * time.Second)
	ok, _ = w.Allow(ctx, "id")
	assert.True(t, ok, "the first request has left the window")

	ok, _ = w.Allow(ctx, "id")
	assert.False(t, ok)
}

func TestSlidingWindow_RejectedRequestsAreNotRecorded(t *testing.T) {
	w, clk := newTestWindow(1)
	ctx := context.Background()

	w.Allow(ctx, "id")
	for i := 0; i < 5; i++ {
		clk.Advance(10 * time.Second)
		ok, _ := w.Allow(ctx, "id")
		assert.False(t, ok)
	}

	clk.Advance(11 * time.Second)
	ok, _ := w.Allow(ctx, "id")
	assert.True(t, ok)
}

func TestSlidingWindow_Cleanup(t *testing.T) {
	w, clk := newTestWindow(5)
	ctx := context.Background()

	w.Allow(ctx, "old")
	clk.Advance(45 * time.Second)
	w.Allow(ctx, "recent")
	clk.Advance(20 * time.Second)

	w.Cleanup()
	assert.Equal(t, 1, w.Len())
}

func TestSlidingWindow_Concurrent(t *testing.T) {
	w := NewSlidingWindow(Config{MaxRequests: 50, Window: time.Hour})
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := w.Allow(ctx, "shared"); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
}

func TestRedisSlidingWindow(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	client, err := Connect(ctx, addr, os.Getenv("REDIS_PASSWORD"), 1)
	require.NoError(t, err)
	defer client.Close()

	l := NewRedisSlidingWindow(client, Config{MaxRequests: 2, Window: time.Minute}, "test:ratelimit:")
	id := uuid.NewString()
	defer client.Del(ctx, "test:ratelimit:"+id)

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func BenchmarkSlidingWindow_Allow(b *testing.B) {
	w := NewSlidingWindow(Config{MaxRequests: 1 << 30, Window: time.Second})
	ctx := context.Background()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		w.Allow(ctx, "bench")
	}
}

func TestRegistry_SeparatesConfigs(t *testing.T) {
	r := NewRegistry(MemoryFactory())
	ctx := context.Background()
	strict := Config{MaxRequests: 1, Window: time.Minute}
	loose := Config{MaxRequests: 3, Window: time.Minute}

	ok, err := r.Allow(ctx, "a", strict)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = r.Allow(ctx, "a", strict)
	assert.False(t, ok)

	for i := 0; i < 3; i++ {
		ok, _ = r.Allow(ctx, "a", loose)
		assert.True(t, ok, "loose request %d", i)
	}

	assert.Same(t, r.For(strict), r.For(strict))
	r.Cleanup()
}
