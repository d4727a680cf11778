package books

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bookCols = []string{
	"id", "title", "author", "isbn", "publication_year", "cover_url",
	"total_qty", "available_qty", "created_at",
}

var testCreatedAt = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

func bookRow(id string, totalQty, availableQty int) *sqlmock.Rows {
	return sqlmock.NewRows(bookCols).
		AddRow(id, "The Go Programming Language", "Donovan", "978-0134190440",
			nil, nil, totalQty, availableQty, testCreatedAt)
}

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewService(conn, nil, 60, 120), mock
}

func intPtr(v int) *int { return &v }

func expectGetByID(mock sqlmock.Sqlmock, id string, rows *sqlmock.Rows) {
	mock.ExpectQuery("SELECT id, title, author, isbn, publication_year, cover_url, total_qty, available_qty, created_at FROM books WHERE id = ").
		WithArgs(id).
		WillReturnRows(rows)
}

func TestCreate_RejectsNegativeTotalQty(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), CreateBookRequest{
		Title: "t", Author: "a", ISBN: "i", TotalQty: -1,
	})
	require.Error(t, err)
	api, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidArgument, api.Code)
}

func TestUpdate_ShrinkingTotalClampsAvailableAtZero(t *testing.T) {
	svc, mock := newTestService(t)

	// total 5, available 4 (one on loan); shrinking total to 2 implies
	// available 4 + (2-5) = 1.
	expectGetByID(mock, "book-1", bookRow("book-1", 5, 4))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE books SET total_qty = ?, available_qty = ? WHERE id = ?`)).
		WithArgs(2, 1, "book-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectGetByID(mock, "book-1", bookRow("book-1", 2, 1))

	res, err := svc.Update(context.Background(), "book-1", UpdateBookRequest{TotalQty: intPtr(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalQty)
	assert.Equal(t, 1, res.AvailableQty)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_OverReductionFloorsAvailableAtZero(t *testing.T) {
	svc, mock := newTestService(t)

	// total 5, available 1 (four on loan); shrinking total to 2 would
	// imply available -2, which is silently floored at zero.
	expectGetByID(mock, "book-1", bookRow("book-1", 5, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE books SET total_qty = ?, available_qty = ? WHERE id = ?`)).
		WithArgs(2, 0, "book-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectGetByID(mock, "book-1", bookRow("book-1", 2, 0))

	res, err := svc.Update(context.Background(), "book-1", UpdateBookRequest{TotalQty: intPtr(2)})
	require.NoError(t, err)
	assert.Equal(t, 0, res.AvailableQty)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_GrowingTotalGrowsAvailable(t *testing.T) {
	svc, mock := newTestService(t)

	expectGetByID(mock, "book-1", bookRow("book-1", 3, 3))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE books SET total_qty = ?, available_qty = ? WHERE id = ?`)).
		WithArgs(5, 5, "book-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectGetByID(mock, "book-1", bookRow("book-1", 5, 5))

	res, err := svc.Update(context.Background(), "book-1", UpdateBookRequest{TotalQty: intPtr(5)})
	require.NoError(t, err)
	assert.Equal(t, 5, res.AvailableQty)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReduceQuantity_RejectsNonPositive(t *testing.T) {
	svc, _ := newTestService(t)

	for _, qty := range []int{0, -1} {
		_, err := svc.ReduceQuantity(context.Background(), "book-1", qty)
		require.Error(t, err)
		api, ok := err.(*APIError)
		require.True(t, ok)
		assert.Equal(t, CodeInvalidArgument, api.Code)
	}
}

func TestReduceQuantity_RejectsMoreThanAvailable(t *testing.T) {
	svc, mock := newTestService(t)

	// total 2, one copy on loan: retiring 2 would take copies that are
	// currently lent out.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT total_qty, available_qty FROM books WHERE id = .+ FOR UPDATE").
		WithArgs("book-1").
		WillReturnRows(sqlmock.NewRows([]string{"total_qty", "available_qty"}).AddRow(2, 1))
	mock.ExpectRollback()

	_, err := svc.ReduceQuantity(context.Background(), "book-1", 2)
	require.Error(t, err)
	api, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidArgument, api.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReduceQuantity_DeletesBookWhenLastCopyRetired(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT total_qty, available_qty FROM books WHERE id = .+ FOR UPDATE").
		WithArgs("book-1").
		WillReturnRows(sqlmock.NewRows([]string{"total_qty", "available_qty"}).AddRow(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM loans WHERE book_id = ? AND returned_at IS NULL`)).
		WithArgs("book-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM books WHERE id = ?`)).
		WithArgs("book-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	deleted, err := svc.ReduceQuantity(context.Background(), "book-1", 1)
	require.NoError(t, err)
	assert.True(t, deleted)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReduceQuantity_KeepsRowWhileLoansOutstanding(t *testing.T) {
	svc, mock := newTestService(t)

	// Retiring the last available copies while one is still on loan must
	// keep the record alive at total 1 / available 0.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT total_qty, available_qty FROM books WHERE id = .+ FOR UPDATE").
		WithArgs("book-1").
		WillReturnRows(sqlmock.NewRows([]string{"total_qty", "available_qty"}).AddRow(3, 2))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM loans WHERE book_id = ? AND returned_at IS NULL`)).
		WithArgs("book-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE books SET total_qty = ?, available_qty = ? WHERE id = ?`)).
		WithArgs(1, 0, "book-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	deleted, err := svc.ReduceQuantity(context.Background(), "book-1", 2)
	require.NoError(t, err)
	assert.False(t, deleted)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemove_NotFound(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM books WHERE id = ?`)).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := svc.Remove(context.Background(), "missing")
	require.Error(t, err)
	api, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, CodeNotFound, api.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMostBorrowed_ClampsLimitAndOrders(t *testing.T) {
	svc, mock := newTestService(t)

	rows := sqlmock.NewRows(append(append([]string{}, bookCols...), "borrow_count")).
		AddRow("book-1", "A", "a", "1", nil, nil, 3, 3, testCreatedAt, 7).
		AddRow("book-2", "B", "b", "2", nil, nil, 2, 2, testCreatedAt, 4)
	mock.ExpectQuery("ORDER BY borrow_count DESC\\s+LIMIT 20").
		WillReturnRows(rows)

	res, err := svc.MostBorrowed(context.Background(), 99)
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, int64(7), res.Items[0].BorrowCount)
	assert.Equal(t, "book-1", res.Items[0].Book.ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		page, pageSize         int
		wantPage, wantPageSize int
	}{
		{0, 0, 1, 20},
		{-3, 500, 1, 100},
		{2, 50, 2, 50},
		{1, 1, 1, 1},
	}
	for _, tt := range tests {
		p, s := normalizePage(tt.page, tt.pageSize)
		assert.Equal(t, tt.wantPage, p)
		assert.Equal(t, tt.wantPageSize, s)
	}
}
