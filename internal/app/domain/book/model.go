package book

import "time"

// Book represents a catalog entry readers submit sessions against.
type Book struct {
	ID          string
	Title       string
	Author      string
	Description string
	Genre       string
	TotalPages  int
	ISBN        string
	CoverURL    string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Filter narrows catalog listings. Search matches title and author,
// case-insensitively. Page is 1-based.
type Filter struct {
	Genre   string
	Search  string
	Page    int
	PerPage int
}

// Normalize clamps pagination to sane bounds.
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = 20
	}
	if f.PerPage > 100 {
		f.PerPage = 100
	}
	return f
}

// Offset returns the row offset for the normalized filter.
func (f Filter) Offset() int {
	n := f.Normalize()
	return (n.Page - 1) * n.PerPage
}
