// Package views derives list, kanban and stats projections from an
// already-loaded collection. All operations are linear scans plus one sort.
package views

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var ErrBadQuery = errors.New("bad view query")

// Record is what a collection element exposes to the view layer.
type Record interface {
	RecordName() string
	RecordStatus() string
	RecordTimes() (created, updated time.Time)
}

type Mode string

const (
	ModeList   Mode = "list"
	ModeKanban Mode = "kanban"
	ModeStats  Mode = "stats"
)

// Query is parsed from the list endpoints' query string.
type Query struct {
	Search string
	Status string
	Sort   string
	Mode   Mode
}

var sortFields = map[string]bool{"name": true, "status": true, "created_at": true, "updated_at": true}

// ParseQuery validates the raw query values. Empty values mean defaults.
func ParseQuery(search, status, sortBy, mode string) (Query, error) {
	q := Query{
		Search: strings.TrimSpace(search),
		Status: strings.TrimSpace(status),
		Sort:   strings.TrimSpace(sortBy),
		Mode:   Mode(strings.TrimSpace(mode)),
	}
	if q.Mode == "" {
		q.Mode = ModeList
	}
	switch q.Mode {
	case ModeList, ModeKanban, ModeStats:
	default:
		return Query{}, fmt.Errorf("%w: unknown view %q", ErrBadQuery, mode)
	}
	if q.Sort != "" && !sortFields[strings.TrimPrefix(q.Sort, "-")] {
		return Query{}, fmt.Errorf("%w: cannot sort by %q", ErrBadQuery, q.Sort)
	}
	return q, nil
}

// Filter keeps records whose name contains search (case-insensitive) and,
// when status is set, whose status equals it.
func Filter[R Record](items []R, search, status string) []R {
	search = strings.ToLower(search)
	out := make([]R, 0, len(items))
	for _, it := range items {
		if status != "" && it.RecordStatus() != status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(it.RecordName()), search) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// Sort orders items in place by field; a leading "-" reverses. Ties keep
// their relative order.
func Sort[R Record](items []R, field string) {
	if field == "" {
		return
	}
	desc := strings.HasPrefix(field, "-")
	field = strings.TrimPrefix(field, "-")
	less := func(a, b R) int {
		switch field {
		case "name":
			return strings.Compare(strings.ToLower(a.RecordName()), strings.ToLower(b.RecordName()))
		case "status":
			return strings.Compare(a.RecordStatus(), b.RecordStatus())
		case "created_at":
			ca, _ := a.RecordTimes()
			cb, _ := b.RecordTimes()
			return ca.Compare(cb)
		case "updated_at":
			_, ua := a.RecordTimes()
			_, ub := b.RecordTimes()
			return ua.Compare(ub)
		}
		return 0
	}
	sort.SliceStable(items, func(i, j int) bool {
		c := less(items[i], items[j])
		if desc {
			return c > 0
		}
		return c < 0
	})
}

// Column is one kanban lane.
type Column[R Record] struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
	Items  []R    `json:"items"`
}

// Kanban groups items by status. Columns follow order; statuses not in
// order are appended alphabetically. Every status in order gets a column,
// even when empty.
func Kanban[R Record](items []R, order []string) []Column[R] {
	groups := map[string][]R{}
	for _, it := range items {
		s := it.RecordStatus()
		groups[s] = append(groups[s], it)
	}
	cols := make([]Column[R], 0, len(order)+len(groups))
	seen := map[string]bool{}
	for _, s := range order {
		seen[s] = true
		g := groups[s]
		if g == nil {
			g = []R{}
		}
		cols = append(cols, Column[R]{Status: s, Count: len(g), Items: g})
	}
	var extra []string
	for s := range groups {
		if !seen[s] {
			extra = append(extra, s)
		}
	}
	sort.Strings(extra)
	for _, s := range extra {
		cols = append(cols, Column[R]{Status: s, Count: len(groups[s]), Items: groups[s]})
	}
	return cols
}

// Stats is the dashboard summary of a collection.
type Stats struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status,omitempty"`
}

// Summarize counts items per status. Records without a status are only
// counted in Total.
func Summarize[R Record](items []R, order []string) Stats {
	st := Stats{Total: len(items)}
	if len(order) == 0 {
		return st
	}
	st.ByStatus = make(map[string]int, len(order))
	for _, s := range order {
		st.ByStatus[s] = 0
	}
	for _, it := range items {
		if s := it.RecordStatus(); s != "" {
			st.ByStatus[s]++
		}
	}
	return st
}
