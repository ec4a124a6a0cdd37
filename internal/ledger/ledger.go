// Package ledger records which WhatsApp correlation ids were already
// delivered so a redelivered message is acknowledged without a second send.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "whatsapp:delivered:"

type Ledger interface {
	Delivered(ctx context.Context, correlationID string) (bool, error)
	MarkDelivered(ctx context.Context, correlationID string) error
	Size(ctx context.Context) (int, error)
}

// sizeRefresh bounds how often RedisLedger.Size walks the keyspace.
const sizeRefresh = 30 * time.Second

type RedisLedger struct {
	client *redis.Client
	ttl    time.Duration

	mu      sync.Mutex
	size    int
	sizedAt time.Time
	now     func() time.Time
}

// NewRedisLedger keeps entries for ttl; zero keeps them forever.
func NewRedisLedger(client *redis.Client, ttl time.Duration) *RedisLedger {
	return &RedisLedger{client: client, ttl: ttl, now: time.Now}
}

func (l *RedisLedger) Delivered(ctx context.Context, correlationID string) (bool, error) {
	n, err := l.client.Exists(ctx, keyPrefix+correlationID).Result()
	if err != nil {
		return false, fmt.Errorf("redis EXISTS failed: %w", err)
	}
	return n > 0, nil
}

func (l *RedisLedger) MarkDelivered(ctx context.Context, correlationID string) error {
	if _, err := l.client.SetNX(ctx, keyPrefix+correlationID, time.Now().UTC().Format(time.RFC3339), l.ttl).Result(); err != nil {
		return fmt.Errorf("redis SetNX failed: %w", err)
	}
	return nil
}

// Size counts ledger keys. The count is reused for sizeRefresh so frequent
// status polling does not rescan the keyspace.
func (l *RedisLedger) Size(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if !l.sizedAt.IsZero() && now.Sub(l.sizedAt) < sizeRefresh {
		return l.size, nil
	}

	iter := l.client.Scan(ctx, 0, keyPrefix+"*", 1000).Iterator()
	count := 0
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan failed: %w", err)
	}
	l.size, l.sizedAt = count, now
	return count, nil
}

// DefaultMaxEntries caps a MemoryLedger when no explicit limit is given.
const DefaultMaxEntries = 100_000

type memoryEntry struct {
	id      string
	expires time.Time
}

// MemoryLedger is used when no Redis address is configured. Entries expire
// after the ttl and the oldest are evicted once maxEntries is reached.
type MemoryLedger struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	ids        map[string]struct{}
	order      []memoryEntry
	now        func() time.Time
}

// NewMemoryLedger keeps entries for ttl (zero keeps them until evicted) and
// holds at most maxEntries (DefaultMaxEntries when not positive).
func NewMemoryLedger(ttl time.Duration, maxEntries int) *MemoryLedger {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryLedger{
		ttl:        ttl,
		maxEntries: maxEntries,
		ids:        make(map[string]struct{}),
		now:        time.Now,
	}
}

func (l *MemoryLedger) Delivered(_ context.Context, correlationID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	_, ok := l.ids[correlationID]
	return ok, nil
}

func (l *MemoryLedger) MarkDelivered(_ context.Context, correlationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)
	if _, ok := l.ids[correlationID]; ok {
		return nil
	}

	var expires time.Time
	if l.ttl > 0 {
		expires = now.Add(l.ttl)
	}
	l.ids[correlationID] = struct{}{}
	l.order = append(l.order, memoryEntry{id: correlationID, expires: expires})

	for len(l.order) > l.maxEntries {
		l.evictOldest()
	}
	return nil
}

func (l *MemoryLedger) Size(context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.ids), nil
}

// prune drops expired entries. Every entry shares the same ttl, so the
// insertion order is also the expiry order.
func (l *MemoryLedger) prune(now time.Time) {
	for len(l.order) > 0 {
		head := l.order[0]
		if head.expires.IsZero() || now.Before(head.expires) {
			return
		}
		l.evictOldest()
	}
}

func (l *MemoryLedger) evictOldest() {
	head := l.order[0]
	l.order[0] = memoryEntry{}
	l.order = l.order[1:]
	delete(l.ids, head.id)
}

var (
	_ Ledger = (*RedisLedger)(nil)
	_ Ledger = (*MemoryLedger)(nil)
)
