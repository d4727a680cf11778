package loans

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"libris-backend/internal/platform/db"
)

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// ---- Transactional methods ----

// ExecBorrow opens a loan inside one transaction. The availability check
// and the decrement are a single conditional UPDATE: zero affected rows
// means a concurrent borrower took the last copy (or the book is gone),
// and the transaction aborts before any loan row exists. The database's
// row lock on the book serializes racing borrowers; no application lock
// is involved.
func (s *Store) ExecBorrow(ctx context.Context, m *Loan) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const decQ = `UPDATE books SET available_qty = available_qty - 1 WHERE id = ? AND available_qty > 0`
	res, execErr := tx.ExecContext(ctx, decQ, m.BookID)
	if execErr != nil {
		err = execErr
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		err = ErrInvalid("book not available")
		return err
	}

	const insQ = `
	INSERT INTO loans
	(id, book_id, user_id, borrowed_at, due_date, returned_at)
	VALUES (?, ?, ?, ?, ?, NULL)`
	if _, err = tx.ExecContext(ctx, insQ, m.ID, m.BookID, m.UserID, m.BorrowedAt, m.DueDate); err != nil {
		return err
	}

	return tx.Commit()
}

// returnLookup selects the active loan a return applies to: either by loan
// id, or by book id (the caller's most recent active loan on that book).
// Both paths share one transition below.
type returnLookup struct {
	LoanID string
	BookID string
	UserID string
}

// ExecReturn closes a loan and gives the copy back, both inside one
// transaction. "Never borrowed" and "already returned" intentionally
// collapse into the same error so the response does not reveal which.
func (s *Store) ExecReturn(ctx context.Context, lk returnLookup, returnedAt time.Time) (loan *Loan, err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	sb := strings.Builder{}
	sb.WriteString(`SELECT id, book_id, user_id, borrowed_at, due_date FROM loans WHERE user_id = ? AND returned_at IS NULL`)
	args := []any{lk.UserID}
	if lk.LoanID != "" {
		sb.WriteString(` AND id = ?`)
		args = append(args, lk.LoanID)
	} else {
		sb.WriteString(` AND book_id = ?`)
		args = append(args, lk.BookID)
	}
	sb.WriteString(` ORDER BY borrowed_at DESC LIMIT 1 FOR UPDATE`)

	var m Loan
	if err = tx.QueryRowContext(ctx, sb.String(), args...).Scan(
		&m.ID, &m.BookID, &m.UserID, &m.BorrowedAt, &m.DueDate,
	); err != nil {
		if err == sql.ErrNoRows {
			err = ErrInvalid("loan not found or already returned")
		}
		return nil, err
	}

	const closeQ = `UPDATE loans SET returned_at = ? WHERE id = ? AND returned_at IS NULL`
	res, execErr := tx.ExecContext(ctx, closeQ, returnedAt, m.ID)
	if execErr != nil {
		err = execErr
		return nil, err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		err = ErrInvalid("loan not found or already returned")
		return nil, err
	}

	const incQ = `UPDATE books SET available_qty = available_qty + 1 WHERE id = ?`
	res, execErr = tx.ExecContext(ctx, incQ, m.BookID)
	if execErr != nil {
		err = execErr
		return nil, err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		err = ErrInternal("failed to restore book availability")
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	m.ReturnedAt = sql.NullTime{Time: returnedAt, Valid: true}
	return &m, nil
}

// ---- Queries ----

func (s *Store) ListActiveByUser(ctx context.Context, userID string) ([]Loan, error) {
	const q = `
	SELECT id, book_id, user_id, borrowed_at, due_date, returned_at
	FROM loans
	WHERE user_id = ? AND returned_at IS NULL
	ORDER BY borrowed_at DESC`

	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Loan
	for rows.Next() {
		var m Loan
		if err := rows.Scan(&m.ID, &m.BookID, &m.UserID, &m.BorrowedAt, &m.DueDate, &m.ReturnedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListHistory returns a page of loans visible under scope, joined with
// borrower and book summaries, newest borrowed first. Runs on dbx so the
// caller can pin the page and the total to one snapshot.
func (s *Store) ListHistory(ctx context.Context, dbx db.DBTX, scope historyScope, limit, offset int) ([]historyRow, int64, error) {
	q := fmt.Sprintf(`
	SELECT
	l.id, l.book_id, l.user_id, l.borrowed_at, l.due_date, l.returned_at,
	u.name, u.email, u.role,
	b.title, b.author
	FROM loans l
	JOIN users u ON u.id = l.user_id
	JOIN books b ON b.id = l.book_id
	WHERE %s
	ORDER BY l.borrowed_at DESC
	LIMIT ? OFFSET ?`, scope.Clause)

	args := append(append([]any{}, scope.Args...), limit, offset)
	rows, err := dbx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []historyRow
	for rows.Next() {
		var r historyRow
		if err := rows.Scan(
			&r.Loan.ID, &r.Loan.BookID, &r.Loan.UserID, &r.Loan.BorrowedAt, &r.Loan.DueDate, &r.Loan.ReturnedAt,
			&r.UserName, &r.UserEmail, &r.UserRole,
			&r.BookTitle, &r.BookAuthor,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	cq := fmt.Sprintf(`
	SELECT COUNT(*)
	FROM loans l
	JOIN users u ON u.id = l.user_id
	JOIN books b ON b.id = l.book_id
	WHERE %s`, scope.Clause)

	var total int64
	if err := dbx.QueryRowContext(ctx, cq, scope.Args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return out, total, nil
}
