package users

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

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Insert(ctx context.Context, u *User) error {
	const q = `
	INSERT INTO users (id, name, email, password_hash, role, created_at)
	VALUES (?, ?, ?, ?, ?, NOW(6))`
	_, err := s.db.ExecContext(ctx, q, u.ID, u.Name, u.Email, u.PasswordHash, u.Role)
	return err
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	const q = `
	SELECT id, name, email, password_hash, role, created_at
	FROM users WHERE email = ? LIMIT 1`
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

func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	const q = `
	SELECT id, name, email, password_hash, role, created_at
	FROM users WHERE id = ? LIMIT 1`
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

func (s *Store) List(ctx context.Context, limit, offset int) ([]User, int64, error) {
	const q = `
	SELECT id, name, email, password_hash, role, created_at
	FROM users
	ORDER BY created_at DESC
	LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) Delete(ctx context.Context, id string) (int64, error) {
	const q = `DELETE FROM users WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
