package calls

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper forcibly transitions stale pending sessions to missed.
//
// It runs independently of the client-invoked handlers and coordinates with
// them only through the store's transactional re-check: a session resolved by
// a client between the candidate query and the per-row transaction is left
// untouched. One failing row never aborts the batch.
type Sweeper struct {
	sessions Store
	pointers PointerStore
	archiver *Archiver
	effects  EffectRunner

	interval time.Duration
	batch    int
	graceTTL time.Duration

	log   *slog.Logger
	clock func() time.Time
}

type SweeperConfig struct {
	Interval time.Duration
	Batch    int
	GraceTTL time.Duration
}

func NewSweeper(sessions Store, pointers PointerStore, archiver *Archiver, effects EffectRunner, cfg SweeperConfig, log *slog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	if cfg.GraceTTL <= 0 {
		cfg.GraceTTL = 15 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	if effects == nil {
		effects = NewAsyncRunner(0, 0, log)
	}
	return &Sweeper{
		sessions: sessions,
		pointers: pointers,
		archiver: archiver,
		effects:  effects,
		interval: cfg.Interval,
		batch:    cfg.Batch,
		graceTTL: cfg.GraceTTL,
		log:      log,
		clock:    time.Now,
	}
}

// Run loops until ctx is cancelled. Intended to be started as a goroutine
// from main, next to the HTTP server.
func (w *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := w.SweepOnce(ctx)
			if err != nil {
				w.log.Error("sweep failed", "err", err)
				continue
			}
			if n > 0 {
				w.log.Info("swept stale pending calls", "count", n)
			}
		}
	}
}

// SweepOnce processes one bounded batch and returns how many sessions it
// transitioned to missed.
func (w *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := w.clock().UTC()
	ids, err := w.sessions.ExpiredPending(ctx, now, w.batch)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, roomID := range ids {
		if err := w.sweepOne(ctx, roomID, now); err != nil {
			// Row isolation: log and move on.
			w.log.Error("sweep row failed", "room_id", roomID, "err", err)
			continue
		}
		swept++
	}
	return swept, nil
}

func (w *Sweeper) sweepOne(ctx context.Context, roomID string, now time.Time) error {
	missed := false
	session, err := w.sessions.Mutate(ctx, roomID, func(c *CallSession) (bool, error) {
		// Mandatory re-check: a client may have resolved this session
		// between the candidate query and this transaction. A more specific
		// terminal state must never be overwritten with missed.
		if c.Status != CallStatusPending {
			return false, nil
		}
		c.Status = CallStatusMissed
		c.TimeoutAt = &now
		c.extendExpiry(now.Add(w.graceTTL))
		missed = true
		return true, nil
	})
	if err != nil {
		return err
	}
	if !missed {
		return nil
	}

	w.effects.Go("pointer_delete", session.RoomID, func(ctx context.Context) error {
		return w.pointers.Delete(ctx, session.CalleeID, session.RoomID)
	})
	w.effects.Go("archive", session.RoomID, func(ctx context.Context) error {
		return w.archiver.Archive(ctx, session)
	})
	return nil
}
