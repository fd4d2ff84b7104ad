package models

import (
	"math"
	"strconv"
	"strings"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10

	maxPage = math.MaxInt32
)

// Page is an offset pagination window. Offsets are not stable under
// concurrent writes and the store decides row order.
type Page struct {
	Page  int
	Limit int
}

// ParsePage reads the page and limit query values. Unparseable, zero or
// negative values fall back to the defaults and limit is capped at maxLimit.
func ParsePage(rawPage, rawLimit string, maxLimit int) Page {
	p := Page{
		Page:  positiveOr(rawPage, DefaultPage),
		Limit: positiveOr(rawLimit, DefaultLimit),
	}
	if p.Page > maxPage {
		p.Page = maxPage
	}
	if maxLimit > 0 && p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// Offset is the number of rows skipped before the window starts.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

func positiveOr(raw string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v < 1 {
		return fallback
	}
	return v
}
