package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// PaginationParams is a 1-based page window taken from ?page=&limit=.
type PaginationParams struct {
	Page  int
	Limit int
}

func (p PaginationParams) Skip() int64 {
	return int64((p.Page - 1) * p.Limit)
}

// PaginatedResponse is the envelope every list endpoint returns.
type PaginatedResponse[T any] struct {
	Data    []T   `json:"data"`
	Page    int   `json:"page"`
	Limit   int   `json:"limit"`
	Total   int64 `json:"total"`
	Count   int   `json:"count"`
	HasMore bool  `json:"has_more"`
}

// NewPage wraps one page of results. A nil slice is rendered as [].
func NewPage[T any](items []T, p PaginationParams, total int64) PaginatedResponse[T] {
	if items == nil {
		items = []T{}
	}
	return PaginatedResponse[T]{
		Data:    items,
		Page:    p.Page,
		Limit:   p.Limit,
		Total:   total,
		Count:   len(items),
		HasMore: p.Skip()+int64(len(items)) < total,
	}
}

// ParsePagination reads page and limit, clamping garbage to the defaults.
// page_size is accepted as an alias for limit.
func ParsePagination(c *gin.Context) PaginationParams {
	page := queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}

	limit := queryInt(c, "limit", 0)
	if limit == 0 {
		limit = queryInt(c, "page_size", defaultPageSize)
	}
	switch {
	case limit < 1:
		limit = defaultPageSize
	case limit > maxPageSize:
		limit = maxPageSize
	}

	return PaginationParams{Page: page, Limit: limit}
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
