package locker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix  = "velocity:lock:customer:"
	redisRetryDelay = 10 * time.Millisecond
	defaultRedisTTL = 5 * time.Second
)

// Снимаем блокировку, только если она все еще наша
var redisUnlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// redisLocker - блокировка клиента, общая для нескольких процессов
// с одним хранилищем. TTL ограничивает время жизни блокировки упавшего процесса.
type redisLocker struct {
	db  *redis.Client
	ttl time.Duration
}

func NewRedisLocker(addr string, ttl time.Duration) (Locker, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis locker: empty address")
	}
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}

	db := redis.NewClient(&redis.Options{Addr: addr})
	if err := db.Ping(context.Background()).Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("redis locker: ping %s: %w", addr, err)
	}

	return &redisLocker{db: db, ttl: ttl}, nil
}

func (l *redisLocker) Lock(ctx context.Context, customerID int64) (Unlock, error) {
	key := redisLockKey(customerID)
	token := uuid.NewString()

	ticker := time.NewTicker(redisRetryDelay)
	defer ticker.Stop()
	for {
		ok, err := l.db.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: customer %d: %w", ErrNotAcquired, customerID, err)
		}
		if ok {
			return func() error {
				// контекст запроса может быть уже отменен
				released, err := redisUnlockScript.Run(context.Background(), l.db, []string{key}, token).Int()
				if err != nil {
					return fmt.Errorf("redis locker: release customer %d: %w", customerID, err)
				}
				// ключ истек или уже принадлежит другому владельцу
				if released == 0 {
					return fmt.Errorf("%w: customer %d", ErrLockLost, customerID)
				}
				return nil
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: customer %d: %w", ErrNotAcquired, customerID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *redisLocker) Close() error {
	return l.db.Close()
}

func redisLockKey(customerID int64) string {
	return redisKeyPrefix + strconv.FormatInt(customerID, 10)
}
