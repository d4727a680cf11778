package loans

import "libris-backend/internal/platform/auth"

// historyScope is a WHERE fragment (over aliases l=loans, u=users) plus its
// arguments. Keeping the role branching in one pure function means the
// visibility rules are testable without touching a database.
type historyScope struct {
	Clause string
	Args   []any
}

// scopeForRole maps the caller's role to the loans they may see:
// members see their own, librarians additionally see every member's,
// admins see everything. Unknown roles get member visibility.
func scopeForRole(role, userID string) historyScope {
	switch role {
	case auth.RoleAdmin:
		return historyScope{Clause: "1=1"}
	case auth.RoleLibrarian:
		return historyScope{
			Clause: "(l.user_id = ? OR u.role = ?)",
			Args:   []any{userID, auth.RoleMember},
		}
	default:
		return historyScope{Clause: "l.user_id = ?", Args: []any{userID}}
	}
}

// scopeForUser restricts to the caller regardless of role.
func scopeForUser(userID string) historyScope {
	return historyScope{Clause: "l.user_id = ?", Args: []any{userID}}
}
