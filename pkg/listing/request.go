package listing

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/nimburion/listing/pkg/repository/document"
)

const (
	DefaultPage     = 1
	DefaultLimit    = 10
	DefaultMaxLimit = 100

	// maxPage keeps (page-1)*limit far from overflow.
	maxPage = math.MaxInt32
)

// Params is the raw listing request as received from a client. Page, Limit and
// SortOrder are left untyped because clients send numbers, numeric strings or nothing.
type Params struct {
	Search    string      `json:"search" form:"search"`
	Page      interface{} `json:"page" form:"page"`
	Limit     interface{} `json:"limit" form:"limit"`
	SortField string      `json:"sortField" form:"sortField"`
	SortOrder interface{} `json:"sortOrder" form:"sortOrder"`
}

// Request is a normalized listing request.
type Request struct {
	Search    string
	SortField string
	SortOrder document.SortOrder
	Page      int
	Limit     int
}

// Skip is the number of matching documents before the requested page.
func (r Request) Skip() int64 {
	return int64(r.Page-1) * int64(r.Limit)
}

// Normalize applies defaults and coerces numeric fields. It never fails: values
// that cannot be used fall back to their default, and limit is capped at maxLimit.
// The sort field is not checked here; see BuildPlan.
func Normalize(p Params, def Definition, maxLimit int) Request {
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	r := Request{
		Search:    strings.TrimSpace(p.Search),
		SortField: strings.TrimSpace(p.SortField),
		SortOrder: parseSortOrder(p.SortOrder),
		Page:      positiveInt(p.Page, DefaultPage),
		Limit:     positiveInt(p.Limit, DefaultLimit),
	}
	if r.SortField == "" {
		r.SortField = def.DefaultSort
	}
	if r.Page > maxPage {
		r.Page = maxPage
	}
	if r.Limit > maxLimit {
		r.Limit = maxLimit
	}
	return r
}

// positiveInt returns v as a positive integer, or fallback.
func positiveInt(v interface{}, fallback int) int {
	var n int64
	switch t := v.(type) {
	case int:
		n = int64(t)
	case int32:
		n = int64(t)
	case int64:
		n = t
	case float64:
		if t != math.Trunc(t) || t < 1 {
			return fallback
		}
		if t > math.MaxInt32 {
			return math.MaxInt32
		}
		n = int64(t)
	case json.Number:
		parsed, err := t.Int64()
		if err != nil {
			return fallback
		}
		n = parsed
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return fallback
		}
		n = parsed
	default:
		return fallback
	}
	if n < 1 {
		return fallback
	}
	if n > math.MaxInt32 {
		n = math.MaxInt32
	}
	return int(n)
}

func parseSortOrder(v interface{}) document.SortOrder {
	switch t := v.(type) {
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "desc", "-1":
			return document.SortDesc
		}
	case float64:
		if t == -1 {
			return document.SortDesc
		}
	case int:
		if t == -1 {
			return document.SortDesc
		}
	case json.Number:
		if t.String() == "-1" {
			return document.SortDesc
		}
	}
	return document.SortAsc
}
