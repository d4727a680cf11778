package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct{ t time.Time }

func (c fakeClock) Now() time.Time { return c.t }

type fakeStore struct {
	usersByEmail map[string]*User
	usersByID    map[string]*User
	tokens       map[string]*RefreshToken
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		usersByEmail: map[string]*User{},
		usersByID:    map[string]*User{},
		tokens:       map[string]*RefreshToken{},
	}
}

func (f *fakeStore) addUser(u *User) {
	f.usersByEmail[u.Email] = u
	f.usersByID[u.ID] = u
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*User, error) {
	return f.usersByEmail[email], nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*User, error) {
	return f.usersByID[id], nil
}

func (f *fakeStore) InsertRefreshToken(_ context.Context, t *RefreshToken) error {
	f.tokens[t.TokenHash] = t
	return nil
}

func (f *fakeStore) GetRefreshTokenByHash(_ context.Context, hash string) (*RefreshToken, error) {
	return f.tokens[hash], nil
}

func (f *fakeStore) RevokeRefreshToken(_ context.Context, id string, at time.Time) error {
	for _, t := range f.tokens {
		if t.ID == id && !t.RevokedAt.Valid {
			t.RevokedAt.Valid = true
			t.RevokedAt.Time = at
		}
	}
	return nil
}

func (f *fakeStore) RevokeAllForUser(_ context.Context, userID string, at time.Time) (int64, error) {
	var n int64
	for _, t := range f.tokens {
		if t.UserID == userID && !t.RevokedAt.Valid && t.ExpiresAt.After(at) {
			t.RevokedAt.Valid = true
			t.RevokedAt.Time = at
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) liveTokenCount(userID string) int {
	n := 0
	for _, t := range f.tokens {
		if t.UserID == userID && !t.RevokedAt.Valid {
			n++
		}
	}
	return n
}

var authTestNow = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	svc := &Service{
		store:      store,
		secret:     []byte("test-secret"),
		accessTTL:  15 * time.Minute,
		refreshTTL: 7 * 24 * time.Hour,
		clock:      fakeClock{t: authTestNow},
	}
	return svc, store
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestLogin_Success(t *testing.T) {
	svc, store := newTestService(t)
	store.addUser(&User{
		ID: "user-1", Name: "Alice", Email: "alice@example.com",
		PasswordHash: mustHash(t, "s3cret"), Role: RoleMember,
	})

	res, err := svc.Login(context.Background(), "alice@example.com", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "user-1", res.User.ID)
	assert.Equal(t, RoleMember, res.User.Role)
	assert.Equal(t, 1, store.liveTokenCount("user-1"))

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(res.AccessToken, claims, func(*jwt.Token) (any, error) {
		return []byte("test-secret"), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(func() time.Time { return authTestNow }))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims["sub"])
	assert.Equal(t, RoleMember, claims["role"])
	assert.Equal(t, float64(authTestNow.Add(15*time.Minute).Unix()), claims["exp"])
}

func TestLogin_UnknownEmail(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Login(context.Background(), "nobody@example.com", "s3cret")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, store := newTestService(t)
	store.addUser(&User{
		ID: "user-1", Email: "alice@example.com",
		PasswordHash: mustHash(t, "s3cret"), Role: RoleMember,
	})

	_, err := svc.Login(context.Background(), "alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 0, store.liveTokenCount("user-1"))
}

func TestRefresh_RotatesToken(t *testing.T) {
	svc, store := newTestService(t)
	store.addUser(&User{
		ID: "user-1", Email: "alice@example.com",
		PasswordHash: mustHash(t, "s3cret"), Role: RoleMember,
	})

	login, err := svc.Login(context.Background(), "alice@example.com", "s3cret")
	require.NoError(t, err)

	res, err := svc.Refresh(context.Background(), login.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEqual(t, login.RefreshToken, res.RefreshToken)

	// The presented token was revoked, so replaying it fails closed.
	_, err = svc.Refresh(context.Background(), login.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)

	assert.Equal(t, 1, store.liveTokenCount("user-1"))
}

func TestRefresh_ExpiredToken(t *testing.T) {
	svc, store := newTestService(t)
	store.addUser(&User{ID: "user-1", Email: "alice@example.com", Role: RoleMember})
	store.tokens[hashToken("old-token")] = &RefreshToken{
		ID:        "rt-1",
		TokenHash: hashToken("old-token"),
		UserID:    "user-1",
		ExpiresAt: authTestNow.Add(-time.Minute),
	}

	_, err := svc.Refresh(context.Background(), "old-token")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefresh_UnknownToken(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Refresh(context.Background(), "never-issued")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLogout_RevokesAllLiveTokens(t *testing.T) {
	svc, store := newTestService(t)
	store.addUser(&User{
		ID: "user-1", Email: "alice@example.com",
		PasswordHash: mustHash(t, "s3cret"), Role: RoleMember,
	})

	for i := 0; i < 3; i++ {
		_, err := svc.Login(context.Background(), "alice@example.com", "s3cret")
		require.NoError(t, err)
	}
	require.Equal(t, 3, store.liveTokenCount("user-1"))

	require.NoError(t, svc.Logout(context.Background(), "user-1"))
	assert.Equal(t, 0, store.liveTokenCount("user-1"))
}
