package rate

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryLimiter es la misma ventana fija que RedisLimiter pero en proceso.
// Sirve para una sola instancia; con varias réplicas usar Redis.
type MemoryLimiter struct {
	Max    int64
	Window time.Duration

	c   *gocache.Cache
	now func() time.Time
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		Max:    int64(max),
		Window: window,
		c:      gocache.New(window, 2*window),
		now:    time.Now,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	now := l.now().UTC()
	winStart := now.Truncate(l.Window)
	k := fmt.Sprintf("%s:%d", key, winStart.Unix())
	ttl := winStart.Add(l.Window).Sub(now)

	hits, err := l.incr(k, ttl)
	if err != nil {
		return Result{}, err
	}

	remaining := l.Max - hits
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		Allowed:     hits <= l.Max,
		Remaining:   remaining,
		CurrentHits: hits,
		WindowTTL:   ttl,
	}
	if !res.Allowed {
		res.RetryAfter = ttl
	}
	return res, nil
}

// incr: Add sólo gana en el primer hit; si la key expiró entre Add e
// Increment se reintenta una vez.
func (l *MemoryLimiter) incr(k string, ttl time.Duration) (int64, error) {
	for i := 0; i < 2; i++ {
		if err := l.c.Add(k, int64(1), ttl); err == nil {
			return 1, nil
		}
		if n, err := l.c.IncrementInt64(k, 1); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("rate: could not increment %q", k)
}
