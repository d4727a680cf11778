package loans

import (
	"context"
	"crypto/rand"
	"database/sql"
	"time"

	"github.com/oklog/ulid/v2"

	"libris-backend/internal/platform/db"
)

// ===== Seams for tests =====

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface {
	New() (string, error)
}

type ulidGen struct{}

func (ulidGen) New() (string, error) {
	t := time.Now().UTC()
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ===== Service =====

type Service struct {
	db    *sql.DB
	store *Store
	clock Clock
	id    IDGen
}

func NewService(db *sql.DB) *Service {
	return &Service{
		db:    db,
		store: NewStore(db),
		clock: realClock{},
		id:    ulidGen{},
	}
}

// Borrow opens a loan for userID on bookID. dueDate is mandatory;
// borrowedAt may be backdated by the caller and defaults to now.
func (s *Service) Borrow(ctx context.Context, bookID, userID string, in BorrowRequest) (*LoanResponse, error) {
	if bookID == "" {
		return nil, ErrInvalid("bookId is required")
	}
	if in.DueDate == nil || *in.DueDate == "" {
		return nil, ErrInvalid("due date is required")
	}
	dueDate, err := parseWhen(*in.DueDate)
	if err != nil {
		return nil, ErrInvalid("invalid dueDate, expected RFC3339 or YYYY-MM-DD")
	}

	borrowedAt := s.clock.Now()
	if in.BorrowedAt != nil && *in.BorrowedAt != "" {
		t, err := parseWhen(*in.BorrowedAt)
		if err != nil {
			return nil, ErrInvalid("invalid borrowedAt, expected RFC3339 or YYYY-MM-DD")
		}
		borrowedAt = t
	}

	idStr, err := s.id.New()
	if err != nil {
		return nil, err
	}

	loan := &Loan{
		ID:         idStr,
		BookID:     bookID,
		UserID:     userID,
		BorrowedAt: borrowedAt,
		DueDate:    dueDate,
	}

	if err := s.store.ExecBorrow(ctx, loan); err != nil {
		return nil, err
	}

	resp := buildLoanResponse(loan)
	return &resp, nil
}

// ReturnByLoan closes the caller's active loan with the given id.
func (s *Service) ReturnByLoan(ctx context.Context, loanID, userID string, in ReturnRequest) (*LoanResponse, error) {
	if loanID == "" {
		return nil, ErrInvalid("loanId is required")
	}
	return s.doReturn(ctx, returnLookup{LoanID: loanID, UserID: userID}, in)
}

// ReturnByBook closes the caller's most recent active loan on the book.
func (s *Service) ReturnByBook(ctx context.Context, bookID, userID string, in ReturnRequest) (*LoanResponse, error) {
	if bookID == "" {
		return nil, ErrInvalid("bookId is required")
	}
	return s.doReturn(ctx, returnLookup{BookID: bookID, UserID: userID}, in)
}

// doReturn is the single return transition; the two public entry points
// only differ in the lookup predicate.
func (s *Service) doReturn(ctx context.Context, lk returnLookup, in ReturnRequest) (*LoanResponse, error) {
	returnedAt := s.clock.Now()
	if in.ReturnedAt != nil && *in.ReturnedAt != "" {
		t, err := parseWhen(*in.ReturnedAt)
		if err != nil {
			return nil, ErrInvalid("invalid returnedAt, expected RFC3339 or YYYY-MM-DD")
		}
		returnedAt = t
	}

	loan, err := s.store.ExecReturn(ctx, lk, returnedAt)
	if err != nil {
		return nil, err
	}

	resp := buildLoanResponse(loan)
	return &resp, nil
}

func (s *Service) ListMyActive(ctx context.Context, userID string) ([]LoanResponse, error) {
	items, err := s.store.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]LoanResponse, 0, len(items))
	for i := range items {
		out = append(out, buildLoanResponse(&items[i]))
	}
	return out, nil
}

func (s *Service) ListMyHistory(ctx context.Context, userID string, page, pageSize int) (*HistoryResponse, error) {
	return s.listHistory(ctx, scopeForUser(userID), page, pageSize)
}

func (s *Service) ListHistory(ctx context.Context, userID, role string, page, pageSize int) (*HistoryResponse, error) {
	return s.listHistory(ctx, scopeForRole(role, userID), page, pageSize)
}

func (s *Service) listHistory(ctx context.Context, scope historyScope, page, pageSize int) (*HistoryResponse, error) {
	page, pageSize = normalizePage(page, pageSize)

	var (
		rows  []historyRow
		total int64
	)
	err := db.ReadOnly(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		var err error
		rows, total, err = s.store.ListHistory(ctx, tx, scope, pageSize, (page-1)*pageSize)
		return err
	})
	if err != nil {
		return nil, err
	}

	resp := &HistoryResponse{
		Items:    make([]HistoryItem, 0, len(rows)),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
	for i := range rows {
		resp.Items = append(resp.Items, buildHistoryItem(&rows[i]))
	}
	return resp, nil
}
