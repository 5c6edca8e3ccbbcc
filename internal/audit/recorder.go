package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Inserter persists one audit event.
type Inserter interface {
	Insert(ctx context.Context, ev Event) error
}

// Recorder persists events off the request path. Record never blocks the
// caller; a single worker drains a bounded buffer and write failures are
// logged, never surfaced to the operation that triggered them.
type Recorder struct {
	repo    Inserter
	logger  *slog.Logger
	events  chan Event
	done    chan struct{}
	timeout time.Duration

	closeOnce sync.Once
}

// NewRecorder starts the writer goroutine. buffer bounds the number of
// pending events; writeTimeout caps each persistence attempt.
func NewRecorder(repo Inserter, logger *slog.Logger, buffer int, writeTimeout time.Duration) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	r := &Recorder{
		repo:    repo,
		logger:  logger,
		events:  make(chan Event, buffer),
		done:    make(chan struct{}),
		timeout: writeTimeout,
	}
	go r.run()
	return r
}

// Record enqueues the event without blocking. When the buffer is full the
// event is dropped with a warning; audit durability is best-effort by design.
func (r *Recorder) Record(ev Event) {
	select {
	case r.events <- ev:
	default:
		r.logger.Warn("audit buffer full, dropping event",
			slog.String("entity", ev.EntityType),
			slog.Int64("target_id", ev.TargetID),
			slog.String("kind", string(ev.Kind)))
	}
}

// Close stops intake and drains pending events. Safe to call more than once.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.events)
		<-r.done
	})
}

func (r *Recorder) run() {
	defer close(r.done)
	for ev := range r.events {
		r.write(ev)
	}
}

func (r *Recorder) write(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.repo.Insert(ctx, ev); err != nil {
		r.logger.Error("audit write failed",
			slog.Any("error", err),
			slog.String("entity", ev.EntityType),
			slog.Int64("target_id", ev.TargetID),
			slog.String("kind", string(ev.Kind)))
	}
}

// Pending reports the number of buffered events, used by tests and metrics.
func (r *Recorder) Pending() int {
	return len(r.events)
}
