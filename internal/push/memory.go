package push

import (
	"context"
	"errors"
	"sync"
)

// MemoryDispatcher records invites for tests.
type MemoryDispatcher struct {
	mu      sync.Mutex
	invites []Invite

	// Fail makes SendInvite return an error, simulating a provider outage.
	Fail bool
}

func NewMemoryDispatcher() *MemoryDispatcher { return &MemoryDispatcher{} }

func (d *MemoryDispatcher) SendInvite(ctx context.Context, inv Invite) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Fail {
		return false, errors.New("push: injected dispatch failure")
	}
	d.invites = append(d.invites, inv)
	return true, nil
}

func (d *MemoryDispatcher) Invites() []Invite {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Invite, len(d.invites))
	copy(out, d.invites)
	return out
}
