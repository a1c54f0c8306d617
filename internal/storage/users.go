package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// GetOrCreateUser finds or creates a user by login name and role.
// Returns the user ID. Updates last_seen and display_name on each call.
func (db *DB) GetOrCreateUser(ctx context.Context, login, displayName, role string) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO users (id, login, display_name, role)
		VALUES (gen_random_uuid(), $1, $2, $3)
		ON CONFLICT (login) DO UPDATE
			SET last_seen = NOW(), display_name = COALESCE(NULLIF($2, ''), users.display_name)
		RETURNING id
	`, login, displayName, role).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upserting user %s: %w", login, err)
	}
	return id, nil
}

// UserExists reports whether a user row exists for the given ID.
func (db *DB) UserExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var n int
	err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE id = $1`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking user %s: %w", id, err)
	}
	return n > 0, nil
}
