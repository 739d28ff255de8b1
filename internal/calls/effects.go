package calls

import (
	"context"
	"log/slog"
	"time"
)

// EffectRunner executes post-commit side effects (pointer cleanup, push,
// archival). Effects run outside the session transaction and their failures
// feed logging only; they must never reach the client or undo a committed
// transition.
type EffectRunner interface {
	Go(name, roomID string, fn func(ctx context.Context) error)
}

// AsyncRunner dispatches effects on background goroutines with bounded
// concurrency, detached from the request context so a client disconnect
// cannot cancel archival mid-write.
type AsyncRunner struct {
	slots   chan struct{}
	timeout time.Duration
	log     *slog.Logger
}

func NewAsyncRunner(maxConcurrent int, timeout time.Duration, log *slog.Logger) *AsyncRunner {
	if maxConcurrent <= 0 {
		maxConcurrent = 16
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &AsyncRunner{
		slots:   make(chan struct{}, maxConcurrent),
		timeout: timeout,
		log:     log,
	}
}

func (r *AsyncRunner) Go(name, roomID string, fn func(ctx context.Context) error) {
	r.slots <- struct{}{}
	go func() {
		defer func() { <-r.slots }()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			r.log.Error("side effect failed", "effect", name, "room_id", roomID, "err", err)
		}
	}()
}

// SyncRunner executes effects inline. Used in tests so side effects are
// observable immediately after a handler returns.
type SyncRunner struct {
	log *slog.Logger
}

func NewSyncRunner(log *slog.Logger) *SyncRunner {
	if log == nil {
		log = slog.Default()
	}
	return &SyncRunner{log: log}
}

func (r *SyncRunner) Go(name, roomID string, fn func(ctx context.Context) error) {
	if err := fn(context.Background()); err != nil {
		r.log.Error("side effect failed", "effect", name, "room_id", roomID, "err", err)
	}
}
