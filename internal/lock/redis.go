// Package lock provides the Redis primitives the settlement sweep and the
// webhook endpoint coordinate through.  A nil client turns every call into
// a no-op success, matching how the rest of the service degrades when
// Redis is down; the database row locks still hold.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// Redis implements per-key mutual exclusion and seen-once markers.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

func NewRedis(rdb *redis.Client, prefix string) *Redis {
	return &Redis{rdb: rdb, prefix: prefix}
}

// Acquire takes key for ttl.  ok is false when another holder has it.
// release must be called once the work is done.
func (l *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error) {
	if l == nil || l.rdb == nil {
		return func() {}, true, nil
	}
	full := l.prefix + key
	token := uuid.NewString()
	ok, err = l.rdb.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.rdb, []string{full}, token).Err()
	}, true, nil
}

// Seen reports whether key was remembered earlier.
func (l *Redis) Seen(ctx context.Context, key string) (bool, error) {
	if l == nil || l.rdb == nil {
		return false, nil
	}
	_, err := l.rdb.Get(ctx, l.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Remember marks key as seen for ttl.
func (l *Redis) Remember(ctx context.Context, key string, ttl time.Duration) error {
	if l == nil || l.rdb == nil {
		return nil
	}
	return l.rdb.Set(ctx, l.prefix+key, "1", ttl).Err()
}
