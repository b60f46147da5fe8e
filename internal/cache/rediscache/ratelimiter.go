package rediscache

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter shared by every process using the
// same Redis.
type RateLimiter struct {
	c   *redis.Client
	now func() time.Time
}

func NewRateLimiter(addr string) *RateLimiter {
	return &RateLimiter{
		c:   redis.NewClient(&redis.Options{Addr: addr}),
		now: time.Now,
	}
}

func (rl *RateLimiter) Close() error {
	return rl.c.Close()
}

func (rl *RateLimiter) windowKey(key string, window time.Duration) (string, time.Time) {
	start := rl.now().Truncate(window)
	return fmt.Sprintf("%s:%d", key, start.Unix()), start.Add(window)
}

// Allow counts one hit in the current window.
// Returns (allowed, currentCount).
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	wk, _ := rl.windowKey(key, window)
	pipe := rl.c.TxPipeline()
	incr := pipe.Incr(ctx, wk)
	pipe.Expire(ctx, wk, window)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit")
	}
	n := incr.Val()
	return n <= limit, n, nil
}

// Wait blocks until a hit fits in a window or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, key string, limit int64, window time.Duration) error {
	for {
		ok, _, err := rl.Allow(ctx, key, limit, window)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		_, end := rl.windowKey(key, window)
		t := time.NewTimer(time.Until(end))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
