// Package view derives read-only, filtered and sorted projections of todos.
package view

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Makepad-fr/tada/internal/model"
)

// Filter selects todos by completion.
type Filter int

const (
	All Filter = iota
	Completed
	Uncompleted
)

func (f Filter) String() string {
	switch f {
	case Completed:
		return "completed"
	case Uncompleted:
		return "uncompleted"
	default:
		return "all"
	}
}

// Keep reports whether t passes the filter.
func (f Filter) Keep(t model.Todo) bool {
	switch f {
	case Completed:
		return t.Completed
	case Uncompleted:
		return !t.Completed
	default:
		return true
	}
}

// Next cycles All -> Completed -> Uncompleted -> All.
func (f Filter) Next() Filter { return (f + 1) % 3 }

func ParseFilter(s string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return All, nil
	case "completed", "done":
		return Completed, nil
	case "uncompleted", "pending", "open":
		return Uncompleted, nil
	}
	return All, fmt.Errorf("unknown filter %q (want all, completed or uncompleted)", s)
}

// Sort orders todos by due date. Default keeps store order.
type Sort int

const (
	Default Sort = iota
	Ascending
	Descending
)

func (s Sort) String() string {
	switch s {
	case Ascending:
		return "ascending"
	case Descending:
		return "descending"
	default:
		return "default"
	}
}

// Next cycles Default -> Ascending -> Descending -> Default.
func (s Sort) Next() Sort { return (s + 1) % 3 }

func ParseSort(s string) (Sort, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default", "none":
		return Default, nil
	case "asc", "ascending":
		return Ascending, nil
	case "desc", "descending":
		return Descending, nil
	}
	return Default, fmt.Errorf("unknown sort %q (want default, asc or desc)", s)
}

// Query is what a caller asks of a projection. Owner, when set, scopes
// reads to that user's todos plus ownerless ones, which anyone may change.
// Adapters that push the owner down must keep the same meaning.
type Query struct {
	Owner  string
	Filter Filter
	Sort   Sort
}

// Apply filters then stably sorts items. The input slice is not modified.
func Apply(items []model.Todo, q Query) []model.Todo {
	out := make([]model.Todo, 0, len(items))
	for _, it := range items {
		if q.Owner != "" && it.Owner != "" && it.Owner != q.Owner {
			continue
		}
		if q.Filter.Keep(it) {
			out = append(out, it)
		}
	}
	switch q.Sort {
	case Ascending:
		sort.SliceStable(out, func(i, j int) bool { return dueBefore(out[i], out[j]) })
	case Descending:
		sort.SliceStable(out, func(i, j int) bool { return dueBefore(out[j], out[i]) })
	}
	return out
}

// dueBefore orders by due date with undated todos last.
func dueBefore(a, b model.Todo) bool {
	switch {
	case a.DueDate == nil:
		return false
	case b.DueDate == nil:
		return true
	}
	return a.DueDate.Before(*b.DueDate)
}

// State holds independently selectable filter and sort for a presentation.
type State struct {
	filter Filter
	sort   Sort
}

func NewState(f Filter, s Sort) State { return State{filter: f, sort: s} }

func (st *State) SetFilter(f Filter) { st.filter = f }
func (st *State) SetSort(s Sort)     { st.sort = s }
func (st State) Filter() Filter      { return st.filter }
func (st State) Sort() Sort          { return st.sort }

// Query builds the query for owner with the current filter and sort.
func (st State) Query(owner string) Query {
	return Query{Owner: owner, Filter: st.filter, Sort: st.sort}
}
