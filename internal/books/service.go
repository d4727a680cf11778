package books

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"
	"golang.org/x/text/unicode/norm"

	"libris-backend/internal/platform/cache"
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
func ErrInternal(msg string) *APIError { return &APIError{Code: CodeInternal, Message: msg} }

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

const (
	cacheListPrefix    = "books:list:"
	cacheRankingPrefix = "books:most-borrowed"
)

type Service struct {
	db         *sql.DB
	store      *Store
	cache      *cache.Cache
	listTTL    time.Duration
	rankingTTL time.Duration
}

func NewService(db *sql.DB, cch *cache.Cache, listTTLSeconds, rankingTTLSeconds int) *Service {
	return &Service{
		db:         db,
		store:      NewStore(db),
		cache:      cch,
		listTTL:    time.Duration(listTTLSeconds) * time.Second,
		rankingTTL: time.Duration(rankingTTLSeconds) * time.Second,
	}
}

// invalidateCache drops list/aggregate entries after a successful write.
// Cache trouble never turns into a write failure.
func (s *Service) invalidateCache(ctx context.Context) {
	s.cache.DelByPrefix(ctx, cacheListPrefix)
	s.cache.DelByPrefix(ctx, cacheRankingPrefix)
}

func (s *Service) Create(ctx context.Context, in CreateBookRequest) (*BookResponse, error) {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Author) == "" || strings.TrimSpace(in.ISBN) == "" {
		return nil, ErrInvalid("title, author, isbn are required")
	}
	if in.TotalQty < 0 {
		return nil, ErrInvalid("totalQty must be >= 0")
	}

	b := &Book{
		ID:           ulid.Make().String(),
		Title:        in.Title,
		Author:       in.Author,
		ISBN:         in.ISBN,
		TotalQty:     in.TotalQty,
		AvailableQty: in.TotalQty,
	}
	if in.PublicationYear != nil {
		b.PublicationYear = sql.NullInt64{Int64: int64(*in.PublicationYear), Valid: true}
	}
	if in.CoverURL != nil && *in.CoverURL != "" {
		b.CoverURL = sql.NullString{String: *in.CoverURL, Valid: true}
	}

	if err := s.store.Insert(ctx, b); err != nil {
		return nil, err
	}
	s.invalidateCache(ctx)

	out, err := s.store.GetByID(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	resp := buildBookResponse(out)
	return &resp, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*BookResponse, error) {
	b, err := s.store.GetByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound("book not found")
		}
		return nil, err
	}
	resp := buildBookResponse(b)
	return &resp, nil
}

// Update applies a partial update. When totalQty changes, the delta is
// carried over to available_qty with a floor of zero: shrinking total below
// the number of copies on loan silently absorbs the difference instead of
// erroring. Callers observe this, so keep it.
func (s *Service) Update(ctx context.Context, id string, in UpdateBookRequest) (*BookResponse, error) {
	existing, err := s.store.GetByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound("book not found")
		}
		return nil, err
	}
	if in.TotalQty != nil && *in.TotalQty < 0 {
		return nil, ErrInvalid("totalQty must be >= 0")
	}

	var availableQty *int
	if in.TotalQty != nil {
		next := existing.AvailableQty + (*in.TotalQty - existing.TotalQty)
		if next < 0 {
			next = 0
		}
		availableQty = &next
	}

	aff, err := s.store.UpdateBook(ctx, id, in, availableQty)
	if err != nil {
		return nil, err
	}
	if aff == 0 {
		return nil, ErrNotFound("book not found")
	}
	s.invalidateCache(ctx)

	return s.GetByID(ctx, id)
}

// Remove hard-deletes the catalog entry. Active loans are the caller's
// problem here; ReduceQuantity is the loan-aware path.
func (s *Service) Remove(ctx context.Context, id string) error {
	aff, err := s.store.DeleteByID(ctx, id)
	if err != nil {
		return err
	}
	if aff == 0 {
		return ErrNotFound("book not found")
	}
	s.invalidateCache(ctx)
	return nil
}

// ReduceQuantity retires copies from the total. Retiring the last copy of a
// book with no outstanding loans deletes the record entirely.
func (s *Service) ReduceQuantity(ctx context.Context, id string, quantity int) (deleted bool, err error) {
	if quantity <= 0 {
		return false, ErrInvalid("quantity must be greater than 0")
	}

	deleted, err = s.store.ExecReduceQuantity(ctx, id, quantity)
	if err != nil {
		return false, err
	}
	s.invalidateCache(ctx)
	return deleted, nil
}

func (s *Service) List(ctx context.Context, query string, page, pageSize int) (*BookListResponse, error) {
	page, pageSize = normalizePage(page, pageSize)

	// NFKC folds fullwidth/compatibility forms so the LIKE match behaves
	// the same regardless of how the query was typed.
	q := norm.NFKC.String(strings.TrimSpace(query))

	cacheKey := fmt.Sprintf("%sq=%s:p=%d:s=%d", cacheListPrefix, url.QueryEscape(q), page, pageSize)
	if raw, ok := s.cache.Get(ctx, cacheKey); ok {
		var cached BookListResponse
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return &cached, nil
		}
		log.Printf("[WARN] discarding malformed cache entry %s", cacheKey)
	}

	items, total, err := s.store.List(ctx, q, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}

	resp := &BookListResponse{
		Items:    make([]BookResponse, 0, len(items)),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
	for i := range items {
		resp.Items = append(resp.Items, buildBookResponse(&items[i]))
	}

	if raw, err := json.Marshal(resp); err == nil {
		s.cache.Set(ctx, cacheKey, string(raw), s.listTTL)
	}
	return resp, nil
}

func (s *Service) MostBorrowed(ctx context.Context, limit int) (*MostBorrowedResponse, error) {
	if limit < 1 {
		limit = 5
	}
	if limit > 20 {
		limit = 20
	}

	cacheKey := fmt.Sprintf("%s:l=%d", cacheRankingPrefix, limit)
	if raw, ok := s.cache.Get(ctx, cacheKey); ok {
		var cached MostBorrowedResponse
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return &cached, nil
		}
	}

	rows, err := s.store.MostBorrowed(ctx, limit)
	if err != nil {
		return nil, err
	}

	resp := &MostBorrowedResponse{Items: make([]MostBorrowedItem, 0, len(rows))}
	for i := range rows {
		resp.Items = append(resp.Items, MostBorrowedItem{
			Book:        buildBookResponse(&rows[i].Book),
			BorrowCount: rows[i].BorrowCount,
		})
	}

	if raw, err := json.Marshal(resp); err == nil {
		s.cache.Set(ctx, cacheKey, string(raw), s.rankingTTL)
	}
	return resp, nil
}
