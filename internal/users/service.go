package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	ulid "github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	"libris-backend/internal/platform/auth"
)

// ===== Error model =====
type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code
	Message string
}

func (e *APIError) Error() string      { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func ErrInvalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrConflict(msg string) *APIError { return &APIError{Code: CodeConflict, Message: msg} }

func toHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return 400
		case CodeNotFound:
			return 404
		case CodeConflict:
			return 409
		default:
			return 500
		}
	}
	return 500
}

// ===== Service =====

type Service struct {
	db    *sql.DB
	store *Store
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, store: NewStore(db)}
}

var validRoles = map[string]struct{}{
	auth.RoleAdmin:     {},
	auth.RoleLibrarian: {},
	auth.RoleMember:    {},
}

// Create registers an account, enforcing the role ceiling: a librarian may
// only create members, and nobody mints a new admin through the API.
func (s *Service) Create(ctx context.Context, in CreateUserRequest, creatorRole string) (*UserResponse, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return nil, ErrInvalid("name, email, password are required")
	}
	if _, ok := validRoles[in.Role]; !ok {
		return nil, ErrInvalid("role must be ADMIN, LIBRARIAN or MEMBER")
	}
	if creatorRole == auth.RoleLibrarian && in.Role != auth.RoleMember {
		return nil, ErrInvalid("librarian can create member only")
	}
	if creatorRole == auth.RoleAdmin && in.Role == auth.RoleAdmin {
		return nil, ErrInvalid("admin cannot create admin")
	}

	existing, err := s.store.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrConflict("email already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := &User{
		ID:           ulid.Make().String(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         in.Role,
	}
	if err := s.store.Insert(ctx, u); err != nil {
		return nil, err
	}

	resp := buildUserResponse(u)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, page, pageSize int) (*UserListResponse, error) {
	page, pageSize = normalizePage(page, pageSize)

	items, total, err := s.store.List(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}

	resp := &UserListResponse{
		Items:    make([]UserResponse, 0, len(items)),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
	for i := range items {
		resp.Items = append(resp.Items, buildUserResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	aff, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if aff == 0 {
		return ErrNotFound("user not found")
	}
	return nil
}
