package applications

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/R3E-Network/applyflow/internal/errors"
)

const (
	DefaultLimit    = 20
	MaxLimit        = 100
	MaxSearchLength = 100
	DefaultSort     = "created_at"
)

// SortDir is an ordering direction.
type SortDir string

const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

var sortColumns = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"company":    true,
	"role_title": true,
	"stage":      true,
}

// IsSortColumn reports whether column is one of the sortable columns.
func IsSortColumn(column string) bool {
	return sortColumns[column]
}

// ListQuery is a normalized list request. Sort is always an allow-listed
// column, Limit is in [1, MaxLimit] and Offset is non-negative.
type ListQuery struct {
	Stage  Stage
	Search string
	Sort   string
	Dir    SortDir
	Limit  int
	Offset int
}

// Ascending reports whether results are ordered ascending.
func (q ListQuery) Ascending() bool {
	return q.Dir == SortAsc
}

// Page describes the slice of results returned by a list call.
type Page struct {
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
	Sort   string  `json:"sort"`
	Dir    SortDir `json:"dir"`
	Total  int     `json:"total"`
}

// ListResult is a page of applications.
type ListResult struct {
	Applications []Application `json:"applications"`
	Page         Page          `json:"page"`
}

// DefaultListQuery returns the query used when no parameters are given.
func DefaultListQuery() ListQuery {
	return ListQuery{Sort: DefaultSort, Dir: SortDesc, Limit: DefaultLimit}
}

// ParseListQuery normalizes untrusted query parameters. Only an invalid stage
// or an over-long search string is an error; every other malformed value
// falls back to its default.
func ParseListQuery(values url.Values) (ListQuery, error) {
	q := DefaultListQuery()

	if stage := values.Get("stage"); stage != "" {
		if !IsValidStage(stage) {
			return ListQuery{}, errors.Validation("stage", "Invalid stage")
		}
		q.Stage = Stage(stage)
	}

	if search := values.Get("q"); search != "" {
		if utf8.RuneCountInString(search) > MaxSearchLength {
			return ListQuery{}, errors.Validation("q", "Invalid query")
		}
		q.Search = strings.TrimSpace(search)
	}

	if sort := values.Get("sort"); IsSortColumn(sort) {
		q.Sort = sort
	}

	if strings.EqualFold(values.Get("dir"), string(SortAsc)) {
		q.Dir = SortAsc
	}

	q.Limit = clamp(parseInt(values.Get("limit"), DefaultLimit), 1, MaxLimit)
	q.Offset = parseInt(values.Get("offset"), 0)
	if q.Offset < 0 {
		q.Offset = 0
	}

	return q, nil
}

func parseInt(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return n
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// ListApplications returns the caller's applications matching query along
// with the total number of matches before paging.
func ListApplications(ctx context.Context, store Store, ownerID string, query ListQuery) (*ListResult, error) {
	rows, total, err := store.List(ctx, ownerID, query)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []Application{}
	}
	return &ListResult{
		Applications: rows,
		Page: Page{
			Limit:  query.Limit,
			Offset: query.Offset,
			Sort:   query.Sort,
			Dir:    query.Dir,
			Total:  total,
		},
	}, nil
}
