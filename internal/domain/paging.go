package domain

import "strings"

type PageRequest struct {
	Offset int
	Limit  int
}

// Clamp applies the listing bounds: limit in [1,100] (def when zero), offset >= 0.
func (p PageRequest) Clamp(def int) PageRequest {
	if p.Limit <= 0 {
		p.Limit = def
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

type Paging struct {
	Offset     int    `json:"offset"`
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"has_more"`
	NextOffset *int   `json:"next_offset"`
	OrderBy    string `json:"order_by"`
}

// NewPaging builds the descriptor from a limit+1 fetch: rows beyond limit
// signal another page.
func NewPaging(offset, limit, fetched int, orderBy string) Paging {
	pg := Paging{Offset: offset, Limit: limit, OrderBy: orderBy}
	if fetched > limit {
		pg.HasMore = true
		next := offset + limit
		pg.NextOffset = &next
	}
	return pg
}

type SortSpec struct {
	Key  string
	Desc bool
}

func (s SortSpec) String() string {
	dir := "asc"
	if s.Desc {
		dir = "desc"
	}
	return s.Key + " " + dir
}

// ParseSort whitelists the sort key against allowed (mapping request name to
// column) and normalizes direction, falling back to def on anything else.
func ParseSort(raw string, allowed map[string]string, def SortSpec) SortSpec {
	parts := strings.Fields(strings.ToLower(raw))
	if len(parts) == 0 {
		return def
	}
	col, ok := allowed[parts[0]]
	if !ok {
		return def
	}
	out := SortSpec{Key: col, Desc: def.Desc}
	if len(parts) > 1 {
		switch parts[1] {
		case "asc":
			out.Desc = false
		case "desc":
			out.Desc = true
		}
	}
	return out
}
