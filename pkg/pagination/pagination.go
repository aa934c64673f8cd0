package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Params struct {
	Limit  int
	Offset int
}

func queryInt(c echo.Context, name string) int {
	n, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return 0
	}
	return n
}

// FromContext reads limit/offset, or page/page_size with pages counted from
// 1. Explicit offset wins over page; limit is clamped to MaxLimit.
func FromContext(c echo.Context) Params {
	p := Params{Limit: queryInt(c, "limit")}
	if p.Limit <= 0 {
		p.Limit = queryInt(c, "page_size")
	}
	switch {
	case p.Limit <= 0:
		p.Limit = DefaultLimit
	case p.Limit > MaxLimit:
		p.Limit = MaxLimit
	}

	p.Offset = queryInt(c, "offset")
	if p.Offset <= 0 {
		p.Offset = 0
		if page := queryInt(c, "page"); page > 1 {
			p.Offset = (page - 1) * p.Limit
		}
	}
	return p
}

// Page is the envelope returned by every list endpoint.
type Page[T any] struct {
	Data    []T  `json:"data"`
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// NewPage never renders data as null.
func NewPage[T any](items []T, total int, p Params) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Data:    items,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.Offset+len(items) < total,
	}
}
