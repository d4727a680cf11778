package loans

import "time"

type BorrowRequest struct {
	// RFC3339 or YYYY-MM-DD; defaults to now when absent.
	BorrowedAt *string `json:"borrowedAt,omitempty"`
	DueDate    *string `json:"dueDate"`
}

type ReturnRequest struct {
	ReturnedAt *string `json:"returnedAt,omitempty"`
}

type LoanResponse struct {
	ID         string     `json:"id"`
	BookID     string     `json:"bookId"`
	UserID     string     `json:"userId"`
	BorrowedAt time.Time  `json:"borrowedAt"`
	DueDate    time.Time  `json:"dueDate"`
	ReturnedAt *time.Time `json:"returnedAt,omitempty"`
}

type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type BookSummary struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

type HistoryItem struct {
	LoanResponse
	User UserSummary `json:"user"`
	Book BookSummary `json:"book"`
}

type HistoryResponse struct {
	Items    []HistoryItem `json:"items"`
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
}

func buildLoanResponse(l *Loan) LoanResponse {
	resp := LoanResponse{
		ID:         l.ID,
		BookID:     l.BookID,
		UserID:     l.UserID,
		BorrowedAt: l.BorrowedAt,
		DueDate:    l.DueDate,
	}
	if l.ReturnedAt.Valid {
		t := l.ReturnedAt.Time
		resp.ReturnedAt = &t
	}
	return resp
}

func buildHistoryItem(r *historyRow) HistoryItem {
	return HistoryItem{
		LoanResponse: buildLoanResponse(&r.Loan),
		User: UserSummary{
			ID:    r.UserID,
			Name:  r.UserName,
			Email: r.UserEmail,
			Role:  r.UserRole,
		},
		Book: BookSummary{
			ID:     r.BookID,
			Title:  r.BookTitle,
			Author: r.BookAuthor,
		},
	}
}

// normalizePage clamps page to >= 1 and pageSize to [1,100] (default 20).
func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

// parseWhen accepts RFC3339 timestamps or bare dates.
func parseWhen(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
