package jsonapi

import (
	"net/url"
	"strconv"
)

// Pagination holds pagination information for generating links and metadata.
type Pagination struct {
	Total   int64  // Total number of items
	Page    int    // Current page number (1-based)
	PerPage int    // Items per page
	BaseURL string // Base URL for generating links
}

// NewPagination creates a new Pagination instance.
func NewPagination(total int64, page, perPage int, baseURL string) *Pagination {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}
	return &Pagination{
		Total:   total,
		Page:    page,
		PerPage: perPage,
		BaseURL: baseURL,
	}
}

// TotalPages returns the total number of pages.
func (p *Pagination) TotalPages() int {
	if p.Total == 0 {
		return 1
	}
	return int((p.Total + int64(p.PerPage) - 1) / int64(p.PerPage))
}

func (p *Pagination) hasPrev() bool {
	return p.Page > 1
}

func (p *Pagination) hasNext() bool {
	return p.Page < p.TotalPages()
}

// Window returns the [start, end) slice bounds of the current page over n items.
func (p *Pagination) Window(n int) (start, end int) {
	start = (p.Page - 1) * p.PerPage
	if start > n {
		start = n
	}
	end = start + p.PerPage
	if end > n {
		end = n
	}
	return start, end
}

// Links generates pagination links.
func (p *Pagination) Links() *Links {
	links := &Links{
		Self:  p.buildURL(p.Page),
		First: p.buildURL(1),
		Last:  p.buildURL(p.TotalPages()),
	}
	if p.hasPrev() {
		links.Prev = p.buildURL(p.Page - 1)
	}
	if p.hasNext() {
		links.Next = p.buildURL(p.Page + 1)
	}
	return links
}

// buildURL builds a URL with pagination query parameters.
func (p *Pagination) buildURL(page int) string {
	if p.BaseURL == "" {
		return ""
	}
	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return p.BaseURL
	}
	q := u.Query()
	q.Set("page[number]", strconv.Itoa(page))
	q.Set("page[size]", strconv.Itoa(p.PerPage))
	u.RawQuery = q.Encode()
	return u.String()
}

// Meta returns pagination metadata.
func (p *Pagination) Meta() Meta {
	return Meta{
		"total":    p.Total,
		"page":     p.Page,
		"per_page": p.PerPage,
		"pages":    p.TotalPages(),
	}
}

// MaxPerPage caps the page size a client may request.
const MaxPerPage = 500

// ParsePaginationParams extracts pagination parameters from URL query.
// Both page[number]/page[size] and page/per_page are accepted.
func ParsePaginationParams(query url.Values, defaultPerPage int) (page, perPage int) {
	page = firstPositive(query, 1, "page[number]", "page")
	perPage = firstPositive(query, defaultPerPage, "page[size]", "per_page")
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}

func firstPositive(query url.Values, def int, keys ...string) int {
	for _, k := range keys {
		if v := query.Get(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				return n
			}
		}
	}
	return def
}
