package services

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

type RowFilter string

const (
	FilterAll     RowFilter = "all"
	FilterRated   RowFilter = "rated"
	FilterUnrated RowFilter = "unrated"
)

func ParseRowFilter(s string) (RowFilter, error) {
	switch RowFilter(s) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterRated, FilterUnrated:
		return RowFilter(s), nil
	}
	return "", invalidf("filter must be one of all, rated, unrated (got %q)", s)
}

// RowQuery selects one page of a session's rows. Rated/unrated are scoped to
// RaterID; ordering is always row_index ascending.
type RowQuery struct {
	SessionID string
	RaterID   string
	Filter    RowFilter
	Limit     int
	Offset    int
}

// PageRequest is the caller's paging input. Zero values take defaults.
type PageRequest struct {
	Page    int
	PerPage int
	Filter  RowFilter
}

func (p PageRequest) normalize() (PageRequest, error) {
	if p.Page == 0 {
		p.Page = 1
	}
	if p.PerPage == 0 {
		p.PerPage = DefaultPerPage
	}
	if p.Page < 1 {
		return p, invalidf("page must be >= 1 (got %d)", p.Page)
	}
	if p.PerPage < 1 || p.PerPage > MaxPerPage {
		return p, invalidf("per_page must be between 1 and %d (got %d)", MaxPerPage, p.PerPage)
	}
	if p.Filter == "" {
		p.Filter = FilterAll
	}
	return p, nil
}

// TotalPages is ceil(total/perPage) and never less than 1.
func TotalPages(total, perPage int) int {
	if perPage <= 0 || total <= 0 {
		return 1
	}
	return (total + perPage - 1) / perPage
}
