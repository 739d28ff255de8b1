package directory

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepo reads user profiles from the users table.
//
// Assumed schema:
//   users (user_id TEXT PRIMARY KEY, display_name TEXT NOT NULL,
//          notifications_enabled BOOLEAN NOT NULL DEFAULT true)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Lookup(ctx context.Context, userID string) (Profile, error) {
	const q = `
SELECT user_id, display_name, notifications_enabled
FROM users
WHERE user_id = $1
`
	var p Profile
	if err := r.db.QueryRowContext(ctx, q, userID).Scan(
		&p.UserID,
		&p.DisplayName,
		&p.NotificationsEnabled,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, err
	}
	return p, nil
}
