package query

import (
	"strconv"
	"strings"

	ledgererr "github.com/ghgledger/ghgledger/internal/errors"
)

// Pagination defaults.
const (
	DefaultLimit = 10
	DefaultPage  = 1
)

// PageRequest selects one page. Zero fields take the defaults.
type PageRequest struct {
	Limit int
	Page  int
}

func (p PageRequest) withDefaults() PageRequest {
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
	if p.Page == 0 {
		p.Page = DefaultPage
	}
	return p
}

// Validate rejects negative values. Pages past the end are valid and empty.
func (p PageRequest) Validate() error {
	if p.Limit < 0 {
		return ledgererr.InvalidArgument("limit must be positive, got %d", p.Limit)
	}
	if p.Page < 0 {
		return ledgererr.InvalidArgument("page must be positive, got %d", p.Page)
	}
	return nil
}

// Skip returns the number of items before the page.
func (p PageRequest) Skip() int {
	p = p.withDefaults()
	return (p.Page - 1) * p.Limit
}

// PageInfo describes where a page sits in the full result.
type PageInfo struct {
	Total      int64 `json:"total"`
	Limit      int   `json:"limit"`
	Page       int   `json:"page"`
	TotalPages int   `json:"total_pages"`
}

// NewPageInfo computes page metadata for total items.
func NewPageInfo(total int64, req PageRequest) PageInfo {
	req = req.withDefaults()
	return PageInfo{
		Total:      total,
		Limit:      req.Limit,
		Page:       req.Page,
		TotalPages: int((total + int64(req.Limit) - 1) / int64(req.Limit)),
	}
}

// ParsePage parses raw limit/page query values. Empty values take defaults.
func ParsePage(limitRaw, pageRaw string) (PageRequest, error) {
	var req PageRequest
	var err error
	if req.Limit, err = parsePositive("limit", limitRaw); err != nil {
		return req, err
	}
	if req.Page, err = parsePositive("page", pageRaw); err != nil {
		return req, err
	}
	return req.withDefaults(), nil
}

func parsePositive(name, raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, ledgererr.InvalidArgument("%s must be a positive integer, got %q", name, raw)
	}
	return n, nil
}

// ParseYear parses a required year.
func ParseYear(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ledgererr.InvalidArgument("year is required")
	}
	year, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ledgererr.InvalidArgument("year must be numeric, got %q", raw)
	}
	return year, nil
}

// ParseOptionalYear parses a year that may be absent.
func ParseOptionalYear(raw string) (*int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	year, err := ParseYear(raw)
	if err != nil {
		return nil, err
	}
	return &year, nil
}
