package loans

import (
	"database/sql"
	"time"
)

// Loan is one row of the loans table. The loan is active while
// returned_at IS NULL; setting it is the single, terminal transition.
type Loan struct {
	ID         string
	BookID     string
	UserID     string
	BorrowedAt time.Time
	DueDate    time.Time
	ReturnedAt sql.NullTime
}

// historyRow is a loan joined with the borrower and book summaries the
// history listings denormalize for display.
type historyRow struct {
	Loan
	UserName   string
	UserEmail  string
	UserRole   string
	BookTitle  string
	BookAuthor string
}
