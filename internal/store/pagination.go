package store

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 50
)

type PageRequest struct {
	Page  int
	Limit int
}

// NewPageRequest clamps page to at least 1 and limit to [1, MaxPageLimit],
// using DefaultPageLimit when limit is unset.
func NewPageRequest(page, limit int) PageRequest {
	if page < 1 {
		page = 1
	}
	switch {
	case limit <= 0:
		limit = DefaultPageLimit
	case limit > MaxPageLimit:
		limit = MaxPageLimit
	}
	return PageRequest{Page: page, Limit: limit}
}

func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Limit
}

type Pagination struct {
	TotalItems  int64 `json:"totalItems"`
	CurrentPage int   `json:"currentPage"`
	TotalPages  int   `json:"totalPages"`
	Limit       int   `json:"limit"`
}

func newPagination(total int64, req PageRequest) Pagination {
	totalPages := int(total) / req.Limit
	if int(total)%req.Limit > 0 {
		totalPages++
	}
	return Pagination{
		TotalItems:  total,
		CurrentPage: req.Page,
		TotalPages:  totalPages,
		Limit:       req.Limit,
	}
}

type CursorPage[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
	HasMore    bool   `json:"hasMore"`
}

type OrderCursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        int64     `json:"id"`
}

func EncodeCursor(cursor OrderCursor) string {
	data, err := json.Marshal(cursor)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(data)
}

func DecodeCursor(encoded string) (OrderCursor, error) {
	var cursor OrderCursor
	if encoded == "" {
		return OrderCursor{
			CreatedAt: time.Now().Add(time.Hour),
			ID:        int64(1<<63 - 1),
		}, nil
	}

	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return cursor, err
	}

	err = json.Unmarshal(data, &cursor)
	return cursor, err
}
