package api

import (
	"net/http/httptest"
	"testing"
)

func TestParsePagination(t *testing.T) {
	cases := []struct {
		name        string
		query       string
		wantPage    int
		wantPerPage int
	}{
		{"defaults", "", 1, 50},
		{"explicit", "?page=3&per_page=25", 3, 25},
		{"per_page capped", "?per_page=1000", 1, 200},
		{"invalid values fall back", "?page=zero&per_page=-5", 1, 50},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/alarms"+tc.query, nil)
			p := ParsePagination(r)
			if p.Page != tc.wantPage || p.PerPage != tc.wantPerPage {
				t.Errorf("got page=%d per_page=%d, want page=%d per_page=%d",
					p.Page, p.PerPage, tc.wantPage, tc.wantPerPage)
			}
		})
	}
}

func TestPaginationOffset(t *testing.T) {
	p := PaginationParams{Page: 4, PerPage: 25}
	if got := p.Offset(); got != 75 {
		t.Errorf("Offset() = %d, want 75", got)
	}
}

func TestPaginationTotalPages(t *testing.T) {
	p := PaginationParams{Page: 1, PerPage: 50}
	cases := map[int64]int{0: 0, 1: 1, 50: 1, 51: 2, 250: 5}
	for total, want := range cases {
		if got := p.TotalPages(total); got != want {
			t.Errorf("TotalPages(%d) = %d, want %d", total, got, want)
		}
	}
}
