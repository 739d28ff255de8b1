package conversation

import (
	"context"
	"errors"
	"sync"
)

var errFailInjected = errors.New("conversation: injected write failure")

// MemoryStore is an in-memory conversation store for tests.
type MemoryStore struct {
	mu       sync.Mutex
	messages map[string][]Message
	last     map[string]Message
	known    map[string]bool

	// FailWrites simulates a downstream outage for best-effort tests.
	FailWrites bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: map[string][]Message{},
		last:     map[string]Message{},
		known:    map[string]bool{},
	}
}

// Seed registers a conversation so Exists reports true.
func (s *MemoryStore) Seed(pairKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.known[pairKey] = true
}

func (s *MemoryStore) Exists(ctx context.Context, pairKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.known[pairKey], nil
}

func (s *MemoryStore) Append(ctx context.Context, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return errFailInjected
	}
	s.messages[m.PairKey] = append(s.messages[m.PairKey], m)
	return nil
}

func (s *MemoryStore) Last(ctx context.Context, pairKey string) (Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.last[pairKey]
	return m, ok, nil
}

func (s *MemoryStore) SetLast(ctx context.Context, pairKey string, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites {
		return errFailInjected
	}
	s.last[pairKey] = m
	return nil
}

func (s *MemoryStore) Messages(pairKey string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages[pairKey]))
	copy(out, s.messages[pairKey])
	return out
}
