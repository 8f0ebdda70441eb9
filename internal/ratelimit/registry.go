package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Factory builds a limiter for one window configuration.
type Factory func(Config) Limiter

// MemoryFactory builds in-process sliding windows.
func MemoryFactory(opts ...Option) Factory {
	return func(cfg Config) Limiter { return NewSlidingWindow(cfg, opts...) }
}

// RedisFactory builds Redis-backed windows. Each configuration gets its own
// key space so differently sized windows never share a log.
func RedisFactory(client *redis.Client, prefix string) Factory {
	return func(cfg Config) Limiter {
		p := fmt.Sprintf("%s%d:%d:", prefix, cfg.MaxRequests, cfg.Window.Milliseconds())
		return NewRedisSlidingWindow(client, cfg, p)
	}
}

// Registry hands out one shared limiter per distinct Config, so callers with
// different policies can be limited through a single entry point.
type Registry struct {
	factory Factory

	mu       sync.Mutex
	limiters map[Config]Limiter
}

// NewRegistry returns an empty registry.
func NewRegistry(f Factory) *Registry {
	return &Registry{factory: f, limiters: make(map[Config]Limiter)}
}

// Allow checks id against the limiter for cfg, creating it on first use.
func (r *Registry) Allow(ctx context.Context, id string, cfg Config) (bool, error) {
	return r.For(cfg).Allow(ctx, id)
}

// For returns the limiter for cfg.
func (r *Registry) For(cfg Config) Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[cfg]
	if !ok {
		l = r.factory(cfg)
		r.limiters[cfg] = l
	}
	return l
}

// Cleanup prunes every in-memory limiter.
func (r *Registry) Cleanup() {
	r.mu.Lock()
	ls := make([]Limiter, 0, len(r.limiters))
	for _, l := range r.limiters {
		ls = append(ls, l)
	}
	r.mu.Unlock()

	for _, l := range ls {
		if c, ok := l.(interface{ Cleanup() }); ok {
			c.Cleanup()
		}
	}
}

// Run calls Cleanup every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Cleanup()
		}
	}
}
