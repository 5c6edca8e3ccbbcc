package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper debounces repeated View events. ShouldRecord reports whether the
// keyed event falls outside the debounce window and refreshes the window when
// it does. Debounce is a best-effort noise reducer, not a security control: a
// benign double-record under a race is acceptable.
type Deduper interface {
	ShouldRecord(ctx context.Context, key string) bool
}

// DedupKey builds the debounce key for a view of one entity by one actor.
func DedupKey(actorID int64, kind EventKind, entityType string, targetID int64) string {
	return fmt.Sprintf("%d:%s:%s:%d", actorID, kind, entityType, targetID)
}

// MemoryDeduper is a process-local TTL map. Cleanup is lazy: once the map
// exceeds maxEntries, the next call sweeps out expired entries.
type MemoryDeduper struct {
	mu         sync.Mutex
	seen       map[string]time.Time
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewMemoryDeduper constructs a MemoryDeduper. now may be nil for wall time.
func NewMemoryDeduper(ttl time.Duration, maxEntries int, now func() time.Time) *MemoryDeduper {
	if now == nil {
		now = time.Now
	}
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	return &MemoryDeduper{
		seen:       make(map[string]time.Time),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        now,
	}
}

// ShouldRecord implements Deduper.
func (d *MemoryDeduper) ShouldRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if len(d.seen) > d.maxEntries {
		for k, at := range d.seen {
			if now.Sub(at) > d.ttl {
				delete(d.seen, k)
			}
		}
	}
	if at, ok := d.seen[key]; ok && now.Sub(at) <= d.ttl {
		return false
	}
	d.seen[key] = now
	return true
}

// Len reports the current entry count.
func (d *MemoryDeduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Sweep evicts expired entries regardless of size, so the lazy threshold is
// not the only bound on the map.
func (d *MemoryDeduper) Sweep() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	evicted := 0
	for k, at := range d.seen {
		if now.Sub(at) > d.ttl {
			delete(d.seen, k)
			evicted++
		}
	}
	return evicted
}

// RedisDeduper shares the debounce window across instances using SET NX with
// a millisecond expiry.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper constructs a RedisDeduper.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

// ShouldRecord implements Deduper. Errors count as "record": losing the
// debounce is preferable to losing the audit record.
func (d *RedisDeduper) ShouldRecord(ctx context.Context, key string) bool {
	ok, err := d.client.SetNX(ctx, "audit:dedup:"+key, 1, d.ttl).Result()
	if err != nil {
		return true
	}
	return ok
}
