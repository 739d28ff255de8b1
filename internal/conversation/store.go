package conversation

import (
	"context"
	"sort"
	"strings"
	"time"
)

// Message is one immutable entry in a pairwise conversation log.
// Call summaries land here alongside regular chat traffic; this core
// only ever appends, never edits.
type Message struct {
	ID       string    `json:"id" db:"id"`
	PairKey  string    `json:"pair_key" db:"pair_key"`
	SenderID string    `json:"sender_id" db:"sender_id"`
	Kind     string    `json:"kind" db:"kind"`
	Body     string    `json:"body" db:"body"`
	RoomID   string    `json:"room_id,omitempty" db:"room_id"`
	SentAt   time.Time `json:"sent_at" db:"sent_at"`
}

const KindCallLog = "call_log"

// Store is the conversation contract the archiver consumes. All methods are
// best-effort from the caller's point of view; the archiver checks Exists
// before appending because this core never creates conversations.
type Store interface {
	Exists(ctx context.Context, pairKey string) (bool, error)
	Append(ctx context.Context, m Message) error

	// Last returns the conversation's last-message pointer; ok is false when
	// the pointer has never been set.
	Last(ctx context.Context, pairKey string) (Message, bool, error)
	SetLast(ctx context.Context, pairKey string, m Message) error
}

// PairKey derives the canonical conversation key for two participants.
// Order-insensitive so both sides resolve the same conversation.
func PairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}
