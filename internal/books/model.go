package books

import (
	"database/sql"
	"time"
)

// Book is one row of the books table. Invariant maintained by every write
// path: 0 <= available_qty <= total_qty, and total_qty - available_qty
// equals the number of active loans on the book.
type Book struct {
	ID              string
	Title           string
	Author          string
	ISBN            string
	PublicationYear sql.NullInt64
	CoverURL        sql.NullString
	TotalQty        int
	AvailableQty    int
	CreatedAt       time.Time
}
