package books

import "time"

type CreateBookRequest struct {
	Title           string  `json:"title" binding:"required"`
	Author          string  `json:"author" binding:"required"`
	ISBN            string  `json:"isbn" binding:"required"`
	PublicationYear *int    `json:"publicationYear,omitempty"`
	CoverURL        *string `json:"coverUrl,omitempty"`
	TotalQty        int     `json:"totalQty"`
}

// UpdateBookRequest carries a partial update; nil fields stay untouched.
type UpdateBookRequest struct {
	Title           *string `json:"title,omitempty"`
	Author          *string `json:"author,omitempty"`
	ISBN            *string `json:"isbn,omitempty"`
	PublicationYear *int    `json:"publicationYear,omitempty"`
	CoverURL        *string `json:"coverUrl,omitempty"`
	TotalQty        *int    `json:"totalQty,omitempty"`
}

type ReduceQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type BookResponse struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	ISBN            string    `json:"isbn"`
	PublicationYear *int      `json:"publicationYear,omitempty"`
	CoverURL        *string   `json:"coverUrl,omitempty"`
	TotalQty        int       `json:"totalQty"`
	AvailableQty    int       `json:"availableQty"`
	CreatedAt       time.Time `json:"createdAt"`
}

type BookListResponse struct {
	Items    []BookResponse `json:"items"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}

type MostBorrowedItem struct {
	Book        BookResponse `json:"book"`
	BorrowCount int64        `json:"borrowCount"`
}

type MostBorrowedResponse struct {
	Items []MostBorrowedItem `json:"items"`
}

type UploadCoverResponse struct {
	URL string `json:"url"`
}

func buildBookResponse(b *Book) BookResponse {
	resp := BookResponse{
		ID:           b.ID,
		Title:        b.Title,
		Author:       b.Author,
		ISBN:         b.ISBN,
		TotalQty:     b.TotalQty,
		AvailableQty: b.AvailableQty,
		CreatedAt:    b.CreatedAt,
	}
	if b.PublicationYear.Valid {
		y := int(b.PublicationYear.Int64)
		resp.PublicationYear = &y
	}
	if b.CoverURL.Valid {
		u := b.CoverURL.String
		resp.CoverURL = &u
	}
	return resp
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
