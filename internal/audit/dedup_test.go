package audit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryDeduperWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	d := NewMemoryDeduper(60*time.Second, 0, clock)
	ctx := context.Background()
	key := DedupKey(1, KindView, "boxes", 9)

	if !d.ShouldRecord(ctx, key) {
		t.Fatalf("first view must record")
	}
	now = now.Add(30 * time.Second)
	if d.ShouldRecord(ctx, key) {
		t.Fatalf("repeat view inside the window must be suppressed")
	}
	now = now.Add(31 * time.Second)
	if !d.ShouldRecord(ctx, key) {
		t.Fatalf("view after the window must record")
	}
}

func TestMemoryDeduperKeysAreIndependent(t *testing.T) {
	d := NewMemoryDeduper(time.Minute, 0, nil)
	ctx := context.Background()
	if !d.ShouldRecord(ctx, DedupKey(1, KindView, "boxes", 9)) {
		t.Fatalf("first key must record")
	}
	if !d.ShouldRecord(ctx, DedupKey(2, KindView, "boxes", 9)) {
		t.Fatalf("different actor must record")
	}
	if !d.ShouldRecord(ctx, DedupKey(1, KindView, "boxes", 10)) {
		t.Fatalf("different target must record")
	}
}

func TestMemoryDeduperLazyEviction(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	d := NewMemoryDeduper(time.Minute, 4, clock)
	ctx := context.Background()
	for i := int64(0); i < 5; i++ {
		d.ShouldRecord(ctx, DedupKey(i, KindView, "boxes", i))
	}
	if d.Len() != 5 {
		t.Fatalf("expected 5 entries, got %d", d.Len())
	}
	// All five are now stale; the next call crosses maxEntries and sweeps.
	now = now.Add(2 * time.Minute)
	d.ShouldRecord(ctx, DedupKey(99, KindView, "boxes", 99))
	if d.Len() != 1 {
		t.Fatalf("expected sweep to leave 1 entry, got %d", d.Len())
	}
}

func TestMemoryDeduperSweep(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	d := NewMemoryDeduper(time.Minute, 0, clock)
	ctx := context.Background()
	d.ShouldRecord(ctx, DedupKey(1, KindView, "boxes", 1))
	d.ShouldRecord(ctx, DedupKey(2, KindView, "boxes", 2))

	if evicted := d.Sweep(); evicted != 0 {
		t.Fatalf("fresh entries must survive a sweep, evicted %d", evicted)
	}
	now = now.Add(2 * time.Minute)
	if evicted := d.Sweep(); evicted != 2 {
		t.Fatalf("expected 2 evictions, got %d", evicted)
	}
	if d.Len() != 0 {
		t.Fatalf("expected empty map after sweep, got %d", d.Len())
	}
}

func TestRedisDeduperWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	d := NewRedisDeduper(client, time.Minute)
	ctx := context.Background()
	key := DedupKey(1, KindView, "boxes", 9)

	if !d.ShouldRecord(ctx, key) {
		t.Fatalf("first view must record")
	}
	if d.ShouldRecord(ctx, key) {
		t.Fatalf("repeat view inside the window must be suppressed")
	}
	mr.FastForward(2 * time.Minute)
	if !d.ShouldRecord(ctx, key) {
		t.Fatalf("view after expiry must record")
	}
}
