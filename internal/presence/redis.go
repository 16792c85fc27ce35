package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRegistry counts sessions in Redis so presence survives across server
// instances. Keys expire so a crashed instance cannot leave users online
// forever; the TTL is refreshed on every connect.
type RedisRegistry struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

var _ Registry = (*RedisRegistry)(nil)

func NewRedisRegistry(rdb redis.Cmdable, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{
		rdb:    rdb,
		ttl:    ttl,
		prefix: "presence:",
	}
}

func (r *RedisRegistry) key(userID int64) string {
	return r.prefix + strconv.FormatInt(userID, 10)
}

func (r *RedisRegistry) Connect(ctx context.Context, userID int64) (bool, error) {
	const op = "presence.redis.Connect"

	n, err := r.rdb.Incr(ctx, r.key(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if err := r.rdb.Expire(ctx, r.key(userID), r.ttl).Err(); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n == 1, nil
}

func (r *RedisRegistry) Disconnect(ctx context.Context, userID int64) (bool, error) {
	const op = "presence.redis.Disconnect"

	n, err := r.rdb.Decr(ctx, r.key(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if n <= 0 {
		if err := r.rdb.Del(ctx, r.key(userID)).Err(); err != nil {
			return false, fmt.Errorf("%s: %w", op, err)
		}
		return true, nil
	}
	return false, nil
}

func (r *RedisRegistry) IsOnline(ctx context.Context, userID int64) (bool, error) {
	const op = "presence.redis.IsOnline"

	n, err := r.rdb.Exists(ctx, r.key(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}
