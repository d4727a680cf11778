package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

type RefreshToken struct {
	ID        string
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	RevokedAt sql.NullTime
	CreatedAt time.Time
}

type AccountStore interface {
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	InsertRefreshToken(ctx context.Context, t *RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, hash string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) AccountStore {
	return &Store{db: db}
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	const q = `
SELECT id, name, email, password_hash, role, created_at
FROM users
WHERE email = ?
LIMIT 1
`
	var u User
	err := s.db.QueryRowContext(ctx, q, email).Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*User, error) {
	const q = `
SELECT id, name, email, password_hash, role, created_at
FROM users
WHERE id = ?
LIMIT 1
`
	var u User
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) InsertRefreshToken(ctx context.Context, t *RefreshToken) error {
	const q = `
INSERT INTO refresh_tokens (id, token_hash, user_id, expires_at, created_at)
VALUES (?, ?, ?, ?, NOW(6))
`
	_, err := s.db.ExecContext(ctx, q, t.ID, t.TokenHash, t.UserID, t.ExpiresAt)
	return err
}

func (s *Store) GetRefreshTokenByHash(ctx context.Context, hash string) (*RefreshToken, error) {
	const q = `
SELECT id, token_hash, user_id, expires_at, revoked_at, created_at
FROM refresh_tokens
WHERE token_hash = ?
LIMIT 1
`
	var t RefreshToken
	err := s.db.QueryRowContext(ctx, q, hash).Scan(
		&t.ID, &t.TokenHash, &t.UserID, &t.ExpiresAt, &t.RevokedAt, &t.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE refresh_tokens SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`
	_, err := s.db.ExecContext(ctx, q, at, id)
	return err
}

func (s *Store) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	const q = `
UPDATE refresh_tokens
SET revoked_at = ?
WHERE user_id = ? AND revoked_at IS NULL AND expires_at > ?
`
	res, err := s.db.ExecContext(ctx, q, at, userID, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
