package conversation

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresStore persists conversations and their message log.
//
// Assumed schema:
//   conversations (pair_key TEXT PRIMARY KEY,
//                  last_message_id TEXT, last_message_sender_id TEXT,
//                  last_message_body TEXT, last_message_at TIMESTAMPTZ,
//                  updated_at TIMESTAMPTZ NOT NULL)
//   conversation_messages (id TEXT PRIMARY KEY, pair_key TEXT NOT NULL,
//                  sender_id TEXT NOT NULL, kind TEXT NOT NULL,
//                  body TEXT NOT NULL, room_id TEXT,
//                  sent_at TIMESTAMPTZ NOT NULL)
//
// conversation_messages is append-only; no Update/Delete methods by design.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) Exists(ctx context.Context, pairKey string) (bool, error) {
	const q = `SELECT 1 FROM conversations WHERE pair_key = $1`
	var one int
	if err := s.db.QueryRowContext(ctx, q, pairKey).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *PostgresStore) Append(ctx context.Context, m Message) error {
	const q = `
INSERT INTO conversation_messages (id, pair_key, sender_id, kind, body, room_id, sent_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`
	_, err := s.db.ExecContext(ctx, q, m.ID, m.PairKey, m.SenderID, m.Kind, m.Body, nullString(m.RoomID), m.SentAt)
	return err
}

func (s *PostgresStore) Last(ctx context.Context, pairKey string) (Message, bool, error) {
	const q = `
SELECT last_message_id, last_message_sender_id, last_message_body, last_message_at
FROM conversations
WHERE pair_key = $1
`
	var (
		id     sql.NullString
		sender sql.NullString
		body   sql.NullString
		at     sql.NullTime
	)
	if err := s.db.QueryRowContext(ctx, q, pairKey).Scan(&id, &sender, &body, &at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Message{}, false, nil
		}
		return Message{}, false, err
	}
	if !id.Valid {
		return Message{}, false, nil
	}
	return Message{
		ID:       id.String,
		PairKey:  pairKey,
		SenderID: sender.String,
		Body:     body.String,
		SentAt:   at.Time,
	}, true, nil
}

func (s *PostgresStore) SetLast(ctx context.Context, pairKey string, m Message) error {
	const q = `
UPDATE conversations
SET last_message_id = $2,
    last_message_sender_id = $3,
    last_message_body = $4,
    last_message_at = $5,
    updated_at = NOW()
WHERE pair_key = $1
`
	_, err := s.db.ExecContext(ctx, q, pairKey, m.ID, m.SenderID, m.Body, m.SentAt)
	return err
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
