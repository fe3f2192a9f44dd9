// Package repository provides a PostgreSQL backed identity provider: user
// rows with a private metadata document that supports partial reads and
// top-level merge updates.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/atinyakov/NoPass/internal/models"
)

// PostgresUserRepository reads and updates user identity records.
type PostgresUserRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresUserRepository creates a PostgresUserRepository over db.
func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{DB: db}
}

// GetUser loads a user and its private metadata. It returns
// models.ErrUserNotFound when no row matches.
func (r *PostgresUserRepository) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var (
		user     models.User
		username sql.NullString
		email    sql.NullString
		meta     []byte
	)
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, username, email, private_metadata FROM users WHERE id = $1
	`, userID).Scan(&user.ID, &username, &email, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetUser: %w", err)
	}

	user.Username = username.String
	user.Email = email.String
	user.PrivateMetadata = models.Metadata{}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &user.PrivateMetadata); err != nil {
			return nil, fmt.Errorf("GetUser: decode metadata: %w", err)
		}
	}
	return &user, nil
}

// UpdateUserMetadata merges patch into the top level of the user's private
// metadata. Keys absent from patch keep their stored value; keys present
// are replaced whole. There is no version check.
func (r *PostgresUserRepository) UpdateUserMetadata(ctx context.Context, userID string, patch models.Metadata) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("UpdateUserMetadata: encode patch: %w", err)
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE users SET private_metadata = COALESCE(private_metadata, '{}'::jsonb) || $2::jsonb WHERE id = $1
	`, userID, string(body))
	if err != nil {
		return fmt.Errorf("UpdateUserMetadata: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateUserMetadata: rows affected: %w", err)
	}
	if n == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

// EnsureUser inserts the user when it does not exist yet. Existing rows,
// including their metadata, are left as they are.
func (r *PostgresUserRepository) EnsureUser(ctx context.Context, user models.User) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO users (id, username, email) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING
	`, user.ID, nullString(user.Username), nullString(user.Email))
	if err != nil {
		return fmt.Errorf("EnsureUser: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
