package calls

import (
	"context"
	"time"
)

// MutateFunc is the unit of work executed inside a session transaction.
// It receives the current row and mutates it in place. Returning write=false
// commits nothing (used for idempotent no-op outcomes); returning an error
// aborts the transaction and propagates the error unchanged.
type MutateFunc func(s *CallSession) (write bool, err error)

// Store is the session persistence contract.
//
// Mutate is the single synchronization primitive of the whole lifecycle:
// one atomic read-then-conditional-write per invocation, never separate read
// and write steps. Concurrent Mutate calls on the same room are serialized by
// the implementation (row lock in Postgres, mutex in memory), so a MutateFunc
// that re-checks Status before writing is race-free by construction.
type Store interface {
	Create(ctx context.Context, s CallSession) error
	Get(ctx context.Context, roomID string) (CallSession, error)
	Mutate(ctx context.Context, roomID string, fn MutateFunc) (CallSession, error)

	// ExpiredPending returns room ids of sessions still pending past their
	// deadline, bounded by limit. Candidates only; the sweeper re-validates
	// each row inside its own Mutate.
	ExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// HistoryStore persists immutable per-participant call history.
// Append is atomic across entries: either both participants get their copy
// or neither does. No Update/Delete methods by design.
type HistoryStore interface {
	Append(ctx context.Context, entries []HistoryEntry) error
	ListByUser(ctx context.Context, userID string, limit int) ([]HistoryEntry, error)
}

// PointerStore is the derived per-callee incoming-call index.
// Set and Delete are idempotent; deleting an absent pointer is not an error.
// Delete only removes the pointer if it still references roomID, so resolving
// an old call never clobbers a newer call's pointer.
type PointerStore interface {
	Set(ctx context.Context, calleeID string, p IncomingCall) error
	Get(ctx context.Context, calleeID string) (IncomingCall, bool, error)
	Delete(ctx context.Context, calleeID, roomID string) error
}
