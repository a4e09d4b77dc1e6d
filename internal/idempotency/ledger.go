// Package idempotency remembers the outcome of each submission key so a retried
// request can be answered without re-running it.
package idempotency

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ticket-workflow:submission:"

// Ledger stores one value per key. The first writer wins.
type Ledger interface {
	Recall(ctx context.Context, key string) ([]byte, bool, error)
	Remember(ctx context.Context, key string, value []byte) (bool, error)
}

// RedisLedger keeps entries in Redis with a TTL.
type RedisLedger struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLedger builds a ledger over client.
func NewRedisLedger(client *redis.Client, ttl time.Duration) *RedisLedger {
	return &RedisLedger{client: client, ttl: ttl}
}

func (l *RedisLedger) Recall(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := l.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (l *RedisLedger) Remember(ctx context.Context, key string, value []byte) (bool, error) {
	return l.client.SetNX(ctx, keyPrefix+key, value, l.ttl).Result()
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// MemoryLedger is a process-local ledger.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryLedger builds an empty ledger.
func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]memoryEntry), ttl: ttl, now: time.Now}
}

func (l *MemoryLedger) Recall(_ context.Context, key string) ([]byte, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok {
		return nil, false, nil
	}
	if l.ttl > 0 && l.now().After(entry.expires) {
		delete(l.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), entry.value...), true, nil
}

func (l *MemoryLedger) Remember(_ context.Context, key string, value []byte) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.entries[key]; ok && (l.ttl <= 0 || !l.now().After(entry.expires)) {
		return false, nil
	}
	l.entries[key] = memoryEntry{value: append([]byte(nil), value...), expires: l.now().Add(l.ttl)}
	return true, nil
}
