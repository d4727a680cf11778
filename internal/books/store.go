package books

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

const bookColumns = `id, title, author, isbn, publication_year, cover_url, total_qty, available_qty, created_at`

func scanBook(row interface{ Scan(...any) error }) (*Book, error) {
	var b Book
	if err := row.Scan(
		&b.ID, &b.Title, &b.Author, &b.ISBN, &b.PublicationYear,
		&b.CoverURL, &b.TotalQty, &b.AvailableQty, &b.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) Insert(ctx context.Context, b *Book) error {
	const q = `
	INSERT INTO books
	(id, title, author, isbn, publication_year, cover_url, total_qty, available_qty, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP(6))`
	_, err := s.db.ExecContext(ctx, q,
		b.ID, b.Title, b.Author, b.ISBN, b.PublicationYear, b.CoverURL, b.TotalQty, b.AvailableQty,
	)
	return err
}

func (s *Store) GetByID(ctx context.Context, id string) (*Book, error) {
	q := fmt.Sprintf(`SELECT %s FROM books WHERE id = ?`, bookColumns)
	return scanBook(s.db.QueryRowContext(ctx, q, id))
}

// UpdateBook applies the non-nil fields of in. When total_qty changes the
// caller passes the recomputed available_qty so both columns move together.
func (s *Store) UpdateBook(ctx context.Context, id string, in UpdateBookRequest, availableQty *int) (int64, error) {
	sets := []string{}
	args := []any{}
	if in.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *in.Title)
	}
	if in.Author != nil {
		sets = append(sets, "author = ?")
		args = append(args, *in.Author)
	}
	if in.ISBN != nil {
		sets = append(sets, "isbn = ?")
		args = append(args, *in.ISBN)
	}
	if in.PublicationYear != nil {
		sets = append(sets, "publication_year = ?")
		args = append(args, *in.PublicationYear)
	}
	if in.CoverURL != nil {
		sets = append(sets, "cover_url = ?")
		args = append(args, *in.CoverURL)
	}
	if in.TotalQty != nil {
		sets = append(sets, "total_qty = ?", "available_qty = ?")
		args = append(args, *in.TotalQty, *availableQty)
	}
	if len(sets) == 0 {
		// Nothing to change; treat as a no-op touch of an existing row.
		return 1, nil
	}
	args = append(args, id)
	q := fmt.Sprintf(`UPDATE books SET %s WHERE id = ?`, strings.Join(sets, ", "))

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) DeleteByID(ctx context.Context, id string) (int64, error) {
	const q = `DELETE FROM books WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ExecReduceQuantity retires quantity copies inside one transaction. The
// book row is locked first so the availability check and the write cannot
// interleave with a concurrent borrow. Returns whether the book row was
// deleted outright (last copy retired with no outstanding loans).
func (s *Store) ExecReduceQuantity(ctx context.Context, id string, quantity int) (deleted bool, err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const lockQ = `SELECT total_qty, available_qty FROM books WHERE id = ? FOR UPDATE`
	var totalQty, availableQty int
	if err = tx.QueryRowContext(ctx, lockQ, id).Scan(&totalQty, &availableQty); err != nil {
		if err == sql.ErrNoRows {
			err = ErrNotFound("book not found")
		}
		return false, err
	}

	if quantity > availableQty {
		err = ErrInvalid("cannot delete more than available quantity")
		return false, err
	}

	const activeQ = `SELECT COUNT(*) FROM loans WHERE book_id = ? AND returned_at IS NULL`
	var activeLoans int
	if err = tx.QueryRowContext(ctx, activeQ, id).Scan(&activeLoans); err != nil {
		return false, err
	}

	newTotal := totalQty - quantity
	newAvailable := availableQty - quantity

	if newTotal == 0 && activeLoans == 0 {
		if _, err = tx.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id); err != nil {
			return false, err
		}
		return true, tx.Commit()
	}

	const updQ = `UPDATE books SET total_qty = ?, available_qty = ? WHERE id = ?`
	res, execErr := tx.ExecContext(ctx, updQ, newTotal, newAvailable, id)
	if execErr != nil {
		err = execErr
		return false, err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		err = ErrInternal("failed to update books quantity")
		return false, err
	}
	return false, tx.Commit()
}

// List returns a page of books matching query (case-insensitive substring
// over title/author), newest first, plus the unpaged total.
func (s *Store) List(ctx context.Context, query string, limit, offset int) ([]Book, int64, error) {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf(`SELECT %s FROM books WHERE 1=1`, bookColumns))

	args := []any{}
	if query != "" {
		sb.WriteString(` AND (title LIKE ? OR author LIKE ?)`)
		pat := "%" + query + "%"
		args = append(args, pat, pat)
	}
	sb.WriteString(` ORDER BY created_at DESC LIMIT ? OFFSET ?`)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	cb := strings.Builder{}
	cb.WriteString(`SELECT COUNT(*) FROM books WHERE 1=1`)
	argsCnt := []any{}
	if query != "" {
		cb.WriteString(` AND (title LIKE ? OR author LIKE ?)`)
		pat := "%" + query + "%"
		argsCnt = append(argsCnt, pat, pat)
	}
	var total int64
	if err := s.db.QueryRowContext(ctx, cb.String(), argsCnt...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return out, total, nil
}

type mostBorrowedRow struct {
	Book
	BorrowCount int64
}

// MostBorrowed aggregates loan counts per book, descending. The INNER JOIN
// drops loans whose book has since been deleted.
func (s *Store) MostBorrowed(ctx context.Context, limit int) ([]mostBorrowedRow, error) {
	q := fmt.Sprintf(`
	SELECT b.id, b.title, b.author, b.isbn, b.publication_year, b.cover_url,
	       b.total_qty, b.available_qty, b.created_at,
	       COUNT(l.id) AS borrow_count
	FROM loans l
	JOIN books b ON b.id = l.book_id
	GROUP BY b.id
	ORDER BY borrow_count DESC
	LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []mostBorrowedRow
	for rows.Next() {
		var r mostBorrowedRow
		if err := rows.Scan(
			&r.ID, &r.Title, &r.Author, &r.ISBN, &r.PublicationYear,
			&r.CoverURL, &r.TotalQty, &r.AvailableQty, &r.CreatedAt,
			&r.BorrowCount,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
