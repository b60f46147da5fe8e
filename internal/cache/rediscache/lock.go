package rediscache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out named leases. A lease expires after its ttl even if the
// holder never releases it.
type Locker struct {
	c *redis.Client
}

func NewLocker(addr string) *Locker {
	return &Locker{c: redis.NewClient(&redis.Options{Addr: addr})}
}

// Acquire returns ok=false when someone else holds the key. release only
// deletes the key while it still carries this holder's token.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error) {
	token := uuid.NewString()
	ok, err = l.c.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, errors.Wrap(err, "redis lock")
	}
	if !ok {
		return nil, false, nil
	}
	release = func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.c, []string{key}, token).Err(); err != nil {
			return errors.Wrap(err, "redis unlock")
		}
		return nil
	}
	return release, true, nil
}

func (l *Locker) Close() error {
	return l.c.Close()
}
