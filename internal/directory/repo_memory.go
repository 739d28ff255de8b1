package directory

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory profile lookup for tests and early development.
type MemoryRepo struct {
	mu       sync.Mutex
	profiles map[string]Profile
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{profiles: map[string]Profile{}}
}

func (r *MemoryRepo) Put(p Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.UserID] = p
}

func (r *MemoryRepo) Lookup(ctx context.Context, userID string) (Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}
