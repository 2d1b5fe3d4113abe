package api

import (
	"net/http"
	"strconv"
)

const (
	defaultPerPage = 50
	maxPerPage     = 200
)

// PaginationParams is the parsed page/per_page pair for alarm listings
type PaginationParams struct {
	Page    int
	PerPage int
}

// ParsePagination reads page and per_page from the query string. Missing or
// invalid values fall back to page 1 and 50 per page; per_page is capped at
// 200 so a NOC dashboard cannot pull the whole alarm table in one request.
func ParsePagination(r *http.Request) PaginationParams {
	return PaginationParams{
		Page:    queryInt(r, "page", 1, 1<<30),
		PerPage: queryInt(r, "per_page", defaultPerPage, maxPerPage),
	}
}

func queryInt(r *http.Request, key string, fallback, ceiling int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	if n > ceiling {
		return ceiling
	}
	return n
}

// Offset returns the row offset of the current page
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// TotalPages returns how many pages the given row count spans
func (p PaginationParams) TotalPages(total int64) int {
	if p.PerPage <= 0 {
		return 0
	}
	pages := int(total) / p.PerPage
	if int(total)%p.PerPage > 0 {
		pages++
	}
	return pages
}
