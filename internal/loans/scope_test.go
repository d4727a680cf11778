package loans

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"libris-backend/internal/platform/auth"
)

func TestScopeForRole(t *testing.T) {
	tests := []struct {
		name       string
		role       string
		wantClause string
		wantArgs   []any
	}{
		{
			name:       "admin sees everything",
			role:       auth.RoleAdmin,
			wantClause: "1=1",
			wantArgs:   nil,
		},
		{
			name:       "librarian sees own and member loans",
			role:       auth.RoleLibrarian,
			wantClause: "(l.user_id = ? OR u.role = ?)",
			wantArgs:   []any{"user-1", auth.RoleMember},
		},
		{
			name:       "member sees own loans only",
			role:       auth.RoleMember,
			wantClause: "l.user_id = ?",
			wantArgs:   []any{"user-1"},
		},
		{
			name:       "unknown role falls back to member visibility",
			role:       "SUPERVISOR",
			wantClause: "l.user_id = ?",
			wantArgs:   []any{"user-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scopeForRole(tt.role, "user-1")
			assert.Equal(t, tt.wantClause, got.Clause)
			assert.Equal(t, tt.wantArgs, got.Args)
		})
	}
}

func TestScopeForUser(t *testing.T) {
	got := scopeForUser("user-9")
	assert.Equal(t, "l.user_id = ?", got.Clause)
	assert.Equal(t, []any{"user-9"}, got.Args)
}
