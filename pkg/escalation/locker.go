package escalation

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker guards the periodic scan so that at most one scan runs at a time,
// including across multiple engine processes sharing one store.
type Locker interface {
	// Acquire returns false when the lock is already held elsewhere.
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}

const scanLockKey = "docuflow:escalation:scan-lock"

// RedisLocker serializes scans across processes with SET NX + TTL. The TTL
// bounds how long a crashed holder can block the next scan.
type RedisLocker struct {
	client redis.UniversalClient
	token  string
}

func NewRedisLocker(addr, password string, db int) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisLocker{
		client: client,
		token:  fmt.Sprintf("docuflow-%d", time.Now().UnixNano()),
	}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, scanLockKey, l.token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire scan lock: %w", err)
	}

	return ok, nil
}

// Release deletes the lock only when this locker still holds it, so an
// expired lock re-acquired by another process is left alone.
func (l *RedisLocker) Release(ctx context.Context) error {
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

	if err := l.client.Eval(ctx, script, []string{scanLockKey}, l.token).Err(); err != nil {
		return fmt.Errorf("failed to release scan lock: %w", err)
	}

	return nil
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}

// LocalLocker is the single-process fallback used with file persistence.
type LocalLocker struct {
	held atomic.Bool
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{}
}

func (l *LocalLocker) Acquire(_ context.Context, _ time.Duration) (bool, error) {
	return l.held.CompareAndSwap(false, true), nil
}

func (l *LocalLocker) Release(_ context.Context) error {
	l.held.Store(false)

	return nil
}
