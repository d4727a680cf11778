package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"
)

const (
	RoleAdmin     = "ADMIN"
	RoleLibrarian = "LIBRARIAN"
	RoleMember    = "MEMBER"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("invalid credentials")
)

type Clock interface{ Now() time.Time }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type Service struct {
	store      AccountStore
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      Clock
}

func NewService(db *sql.DB, secret string, accessTTLMin, refreshTTLDays int) *Service {
	return &Service{
		store:      NewStore(db),
		secret:     []byte(secret),
		accessTTL:  time.Duration(accessTTLMin) * time.Minute,
		refreshTTL: time.Duration(refreshTTLDays) * 24 * time.Hour,
		clock:      realClock{},
	}
}

func (s *Service) Secret() []byte { return s.secret }

type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type LoginResult struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	User         UserSummary `json:"user"`
}

type RefreshResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotFound
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrUnauthorized
	}

	access, err := s.signAccessToken(u)
	if err != nil {
		return nil, err
	}
	refresh, err := s.issueRefreshToken(ctx, u.ID)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role},
	}, nil
}

// Refresh rotates the refresh token: the presented token is revoked and a
// fresh pair is issued. A revoked or expired token fails closed.
func (s *Service) Refresh(ctx context.Context, rawToken string) (*RefreshResult, error) {
	if rawToken == "" {
		return nil, ErrUnauthorized
	}
	stored, err := s.store.GetRefreshTokenByHash(ctx, hashToken(rawToken))
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if stored == nil || stored.RevokedAt.Valid || !stored.ExpiresAt.After(now) {
		return nil, ErrUnauthorized
	}

	u, err := s.store.GetUserByID(ctx, stored.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUnauthorized
	}

	if err := s.store.RevokeRefreshToken(ctx, stored.ID, now); err != nil {
		return nil, err
	}

	access, err := s.signAccessToken(u)
	if err != nil {
		return nil, err
	}
	refresh, err := s.issueRefreshToken(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return &RefreshResult{AccessToken: access, RefreshToken: refresh}, nil
}

// Logout revokes every live refresh token owned by the user.
func (s *Service) Logout(ctx context.Context, userID string) error {
	_, err := s.store.RevokeAllForUser(ctx, userID, s.clock.Now())
	return err
}

func (s *Service) signAccessToken(u *User) (string, error) {
	now := s.clock.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   u.ID,
		"name":  u.Name,
		"email": u.Email,
		"role":  u.Role,
		"iat":   now.Unix(),
		"exp":   now.Add(s.accessTTL).Unix(),
	})
	return token.SignedString(s.secret)
}

func (s *Service) issueRefreshToken(ctx context.Context, userID string) (string, error) {
	raw := ulid.MustNew(ulid.Timestamp(s.clock.Now()), rand.Reader).String()
	t := &RefreshToken{
		ID:        ulid.Make().String(),
		TokenHash: hashToken(raw),
		UserID:    userID,
		ExpiresAt: s.clock.Now().Add(s.refreshTTL),
	}
	if err := s.store.InsertRefreshToken(ctx, t); err != nil {
		return "", err
	}
	return raw, nil
}

// Only the hash hits the table, so a DB leak does not leak usable tokens.
func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
