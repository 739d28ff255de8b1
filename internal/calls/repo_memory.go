package calls

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a mutex-serialized session store for tests and early
// development. Mutate holds the lock for the whole read-modify-write, which
// gives the same per-room serialization as the Postgres row lock.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]CallSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]CallSession{}}
}

func (st *MemoryStore) Create(ctx context.Context, s CallSession) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[s.RoomID]; ok {
		return fmt.Errorf("session %s already exists", s.RoomID)
	}
	st.sessions[s.RoomID] = s
	return nil
}

func (st *MemoryStore) Get(ctx context.Context, roomID string) (CallSession, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[roomID]
	if !ok {
		return CallSession{}, ErrNotFound
	}
	return s, nil
}

func (st *MemoryStore) Mutate(ctx context.Context, roomID string, fn MutateFunc) (CallSession, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[roomID]
	if !ok {
		return CallSession{}, ErrNotFound
	}

	write, err := fn(&s)
	if err != nil {
		return CallSession{}, err
	}
	if write {
		st.sessions[roomID] = s
	}
	return s, nil
}

func (st *MemoryStore) ExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	var ids []string
	for id, s := range st.sessions {
		if s.Status == CallStatusPending && s.ExpiresAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	// Deterministic order for tests.
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// MemoryHistory is an in-memory append-only history store.
type MemoryHistory struct {
	mu      sync.Mutex
	entries []HistoryEntry

	// Fail simulates an archive write failure.
	Fail bool
}

func NewMemoryHistory() *MemoryHistory { return &MemoryHistory{} }

func (h *MemoryHistory) Append(ctx context.Context, entries []HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Fail {
		return errors.New("history: injected write failure")
	}
	h.entries = append(h.entries, entries...)
	return nil
}

func (h *MemoryHistory) ListByUser(ctx context.Context, userID string, limit int) ([]HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []HistoryEntry
	for _, e := range h.entries {
		if e.OwnerID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (h *MemoryHistory) Entries() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// MemoryPointers is an in-memory incoming-call index.
type MemoryPointers struct {
	mu       sync.Mutex
	pointers map[string]IncomingCall
}

func NewMemoryPointers() *MemoryPointers {
	return &MemoryPointers{pointers: map[string]IncomingCall{}}
}

func (p *MemoryPointers) Set(ctx context.Context, calleeID string, in IncomingCall) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pointers[calleeID] = in
	return nil
}

func (p *MemoryPointers) Get(ctx context.Context, calleeID string) (IncomingCall, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	in, ok := p.pointers[calleeID]
	return in, ok, nil
}

func (p *MemoryPointers) Delete(ctx context.Context, calleeID, roomID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if in, ok := p.pointers[calleeID]; ok && in.RoomID == roomID {
		delete(p.pointers, calleeID)
	}
	return nil
}
