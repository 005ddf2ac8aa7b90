package model

import "time"

// Todo is the domain model for a todo entry.
// Values are never mutated in place once stored; use the With* helpers.
type Todo struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	DueDate   *time.Time `json:"dueDate,omitempty"`
	Completed bool       `json:"completed"`
	Owner     string     `json:"owner,omitempty"`
}

// Patch carries the changed fields of an update. Nil means unchanged.
type Patch struct {
	Title     *string `json:"title,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool { return p.Title == nil && p.Completed == nil }

// Apply returns t with the patch fields applied.
func (p Patch) Apply(t Todo) Todo {
	if p.Title != nil {
		t = t.WithTitle(*p.Title)
	}
	if p.Completed != nil {
		t = t.WithCompleted(*p.Completed)
	}
	return t
}

func (t Todo) WithTitle(title string) Todo {
	t.Title = title
	return t
}

func (t Todo) WithCompleted(done bool) Todo {
	t.Completed = done
	return t
}

// Clone returns a copy that shares no memory with t.
func (t Todo) Clone() Todo {
	if t.DueDate != nil {
		d := *t.DueDate
		t.DueDate = &d
	}
	return t
}

// OwnedBy reports whether actor may change t. Ownerless todos accept anyone.
func (t Todo) OwnedBy(actor string) bool {
	return t.Owner == "" || t.Owner == actor
}

// DueLabel renders the due date for display, "" when unset.
func (t Todo) DueLabel() string {
	if t.DueDate == nil {
		return ""
	}
	return FormatDue(*t.DueDate)
}

// CloneAll copies a slice of todos.
func CloneAll(items []Todo) []Todo {
	out := make([]Todo, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}
