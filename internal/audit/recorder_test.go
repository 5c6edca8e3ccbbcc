package audit

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func TestRecorderDrainsOnClose(t *testing.T) {
	sink := &captureInserter{}
	rec := NewRecorder(sink, slog.Default(), 8, time.Second)
	for i := int64(1); i <= 3; i++ {
		rec.Record(Event{Kind: KindCreate, EntityType: "boxes", TargetID: i})
	}
	rec.Close()
	events := sink.all()
	if len(events) != 3 {
		t.Fatalf("expected 3 events drained, got %d", len(events))
	}
	for i, ev := range events {
		if ev.TargetID != int64(i+1) {
			t.Fatalf("expected in-order drain, got %+v at %d", ev, i)
		}
	}
}

func TestRecorderCloseIsIdempotent(t *testing.T) {
	rec := NewRecorder(&captureInserter{}, slog.Default(), 8, time.Second)
	rec.Close()
	rec.Close()
}

type blockingInserter struct {
	release chan struct{}
	mu      sync.Mutex
	count   int
}

func (b *blockingInserter) Insert(context.Context, Event) error {
	<-b.release
	b.mu.Lock()
	b.count++
	b.mu.Unlock()
	return nil
}

func (b *blockingInserter) inserted() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func TestRecorderDropsWhenBufferFull(t *testing.T) {
	sink := &blockingInserter{release: make(chan struct{})}
	rec := NewRecorder(sink, slog.Default(), 1, time.Second)

	// The writer blocks on the first event it picks up and the buffer holds
	// one more. Everything past that must drop without blocking the caller.
	done := make(chan struct{})
	go func() {
		for i := int64(1); i <= 10; i++ {
			rec.Record(Event{TargetID: i})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Record blocked on a full buffer")
	}

	close(sink.release)
	rec.Close()
	if got := sink.inserted(); got > 2 {
		t.Fatalf("expected overflow events dropped, %d persisted", got)
	}
}
