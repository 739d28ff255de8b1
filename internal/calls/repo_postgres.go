package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"call-platform/pkg/utils"
)

// PostgresStore persists call sessions.
//
// Assumed schema:
//   call_sessions (room_id TEXT PRIMARY KEY,
//                  caller_id TEXT NOT NULL, callee_id TEXT NOT NULL,
//                  caller_name TEXT NOT NULL, callee_name TEXT NOT NULL,
//                  is_video BOOLEAN NOT NULL,
//                  status TEXT NOT NULL,
//                  created_at TIMESTAMPTZ NOT NULL,
//                  expires_at TIMESTAMPTZ NOT NULL,
//                  answered_at TIMESTAMPTZ, ended_at TIMESTAMPTZ,
//                  rejected_at TIMESTAMPTZ, timeout_at TIMESTAMPTZ,
//                  duration_seconds INT NOT NULL DEFAULT 0,
//                  caller_audio_on BOOLEAN NOT NULL DEFAULT true,
//                  caller_video_on BOOLEAN NOT NULL DEFAULT false,
//                  callee_audio_on BOOLEAN NOT NULL DEFAULT true,
//                  callee_video_on BOOLEAN NOT NULL DEFAULT false)
// Recommended index: (status, expires_at) for the sweeper query.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

const sessionColumns = `
room_id, caller_id, callee_id, caller_name, callee_name, is_video, status,
created_at, expires_at, answered_at, ended_at, rejected_at, timeout_at,
duration_seconds, caller_audio_on, caller_video_on, callee_audio_on, callee_video_on`

func (st *PostgresStore) Create(ctx context.Context, s CallSession) error {
	const q = `
INSERT INTO call_sessions (` + sessionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
`
	_, err := st.db.ExecContext(ctx, q,
		s.RoomID, s.CallerID, s.CalleeID, s.CallerName, s.CalleeName, s.IsVideo, s.Status,
		s.CreatedAt, s.ExpiresAt, nullTime(s.AnsweredAt), nullTime(s.EndedAt),
		nullTime(s.RejectedAt), nullTime(s.TimeoutAt),
		s.DurationSeconds, s.CallerAudioOn, s.CallerVideoOn, s.CalleeAudioOn, s.CalleeVideoOn,
	)
	return err
}

func (st *PostgresStore) Get(ctx context.Context, roomID string) (CallSession, error) {
	const q = `SELECT ` + sessionColumns + ` FROM call_sessions WHERE room_id = $1`
	return scanSession(st.db.QueryRowContext(ctx, q, roomID))
}

func (st *PostgresStore) Mutate(ctx context.Context, roomID string, fn MutateFunc) (CallSession, error) {
	var out CallSession

	err := utils.WithTx(ctx, st.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Row lock serializes concurrent transitions per room.
		const sel = `SELECT ` + sessionColumns + ` FROM call_sessions WHERE room_id = $1 FOR UPDATE`
		s, err := scanSession(tx.QueryRowContext(ctx, sel, roomID))
		if err != nil {
			return err
		}

		write, err := fn(&s)
		if err != nil {
			return err
		}
		if write {
			const upd = `
UPDATE call_sessions
SET status = $2, expires_at = $3, answered_at = $4, ended_at = $5,
    rejected_at = $6, timeout_at = $7, duration_seconds = $8
WHERE room_id = $1
`
			if _, err := tx.ExecContext(ctx, upd, roomID,
				s.Status, s.ExpiresAt, nullTime(s.AnsweredAt), nullTime(s.EndedAt),
				nullTime(s.RejectedAt), nullTime(s.TimeoutAt), s.DurationSeconds,
			); err != nil {
				return err
			}
		}
		out = s
		return nil
	})
	if err != nil {
		return CallSession{}, err
	}
	return out, nil
}

func (st *PostgresStore) ExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	const q = `
SELECT room_id
FROM call_sessions
WHERE status = $1 AND expires_at < $2
ORDER BY expires_at
LIMIT $3
`
	rows, err := st.db.QueryContext(ctx, q, CallStatusPending, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (CallSession, error) {
	var (
		s                                          CallSession
		answeredAt, endedAt, rejectedAt, timeoutAt sql.NullTime
	)
	if err := row.Scan(
		&s.RoomID, &s.CallerID, &s.CalleeID, &s.CallerName, &s.CalleeName, &s.IsVideo, &s.Status,
		&s.CreatedAt, &s.ExpiresAt, &answeredAt, &endedAt, &rejectedAt, &timeoutAt,
		&s.DurationSeconds, &s.CallerAudioOn, &s.CallerVideoOn, &s.CalleeAudioOn, &s.CalleeVideoOn,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallSession{}, ErrNotFound
		}
		return CallSession{}, err
	}
	s.AnsweredAt = timePtr(answeredAt)
	s.EndedAt = timePtr(endedAt)
	s.RejectedAt = timePtr(rejectedAt)
	s.TimeoutAt = timePtr(timeoutAt)
	return s, nil
}

// PostgresHistory persists immutable per-participant history rows.
//
// Assumed schema:
//   call_history (id TEXT PRIMARY KEY, room_id TEXT NOT NULL,
//                 owner_id TEXT NOT NULL, peer_id TEXT NOT NULL,
//                 peer_name TEXT NOT NULL, direction TEXT NOT NULL,
//                 is_video BOOLEAN NOT NULL, status TEXT NOT NULL,
//                 duration_seconds INT NOT NULL,
//                 started_at TIMESTAMPTZ NOT NULL,
//                 archived_at TIMESTAMPTZ NOT NULL)
// INSERT-only; an UPDATE/DELETE-blocking trigger is recommended.
type PostgresHistory struct {
	db *sql.DB
}

func NewPostgresHistory(db *sql.DB) *PostgresHistory { return &PostgresHistory{db: db} }

func (h *PostgresHistory) Append(ctx context.Context, entries []HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return utils.WithTx(ctx, h.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
INSERT INTO call_history (id, room_id, owner_id, peer_id, peer_name, direction,
                          is_video, status, duration_seconds, started_at, archived_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`
		for _, e := range entries {
			if _, err := tx.ExecContext(ctx, q,
				e.ID, e.RoomID, e.OwnerID, e.PeerID, e.PeerName, e.Direction,
				e.IsVideo, e.Status, e.DurationSeconds, e.StartedAt, e.ArchivedAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (h *PostgresHistory) ListByUser(ctx context.Context, userID string, limit int) ([]HistoryEntry, error) {
	const q = `
SELECT id, room_id, owner_id, peer_id, peer_name, direction,
       is_video, status, duration_seconds, started_at, archived_at
FROM call_history
WHERE owner_id = $1
ORDER BY started_at DESC
LIMIT $2
`
	rows, err := h.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(
			&e.ID, &e.RoomID, &e.OwnerID, &e.PeerID, &e.PeerName, &e.Direction,
			&e.IsVideo, &e.Status, &e.DurationSeconds, &e.StartedAt, &e.ArchivedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
