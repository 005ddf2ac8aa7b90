// Package todo holds the in-session todo collection and keeps it in step
// with a persistence Adapter.
package todo

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/view"
)

// NewID returns a fresh todo id.
func NewID() string { return uuid.NewString() }

// Store is the authoritative ordered collection for one session.
// Operations are serialized, including their adapter call.
type Store struct {
	mu       sync.Mutex
	adapter  Adapter
	items    []model.Todo
	logger   *log.Logger
	rollback bool
	newID    func() string
}

type Option func(*Store)

func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRollback restores the previous in-memory state when the adapter fails.
// Without it the store keeps the optimistic update and only reports the error.
func WithRollback(on bool) Option { return func(s *Store) { s.rollback = on } }

func WithIDFunc(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// New creates an empty store over a. Call Load to fill it.
func New(a Adapter, opts ...Option) *Store {
	discard := log.New()
	discard.SetOutput(io.Discard)
	s := &Store{adapter: a, logger: discard, newID: NewID}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add appends a new uncompleted todo and persists it.
func (s *Store) Add(ctx context.Context, title string, due *time.Time, owner string) (model.Todo, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return model.Todo{}, fmt.Errorf("add: empty title: %w", ErrValidation)
	}
	t := model.Todo{ID: s.newID(), Title: title, Owner: owner}
	if due != nil {
		d := due.UTC()
		t.DueDate = &d
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.items
	s.items = append(model.CloneAll(s.items), t)
	id, err := s.adapter.Create(ctx, t.Clone())
	if err != nil {
		return t, s.persistFailed("create", t.ID, prev, err)
	}
	if id != "" && id != t.ID {
		t.ID = id
		s.items[len(s.items)-1] = t
	}
	s.logger.WithField("id", t.ID).Debug("todo added")
	return t, nil
}

// Toggle flips the completion flag of id.
func (s *Store) Toggle(ctx context.Context, id string) (model.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return model.Todo{}, fmt.Errorf("toggle %s: %w", id, ErrNotFound)
	}
	next := s.items[i].WithCompleted(!s.items[i].Completed)
	done := next.Completed
	return s.replace(ctx, "update", i, next, model.Patch{Completed: &done})
}

// Edit changes the title of id. actor must own the todo when it has an owner.
func (s *Store) Edit(ctx context.Context, id, title, actor string) (model.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return model.Todo{}, fmt.Errorf("edit %s: %w", id, ErrNotFound)
	}
	if !s.items[i].OwnedBy(actor) {
		return s.items[i], fmt.Errorf("edit %s: %w", id, ErrUnauthorized)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return s.items[i], fmt.Errorf("edit %s: empty title: %w", id, ErrValidation)
	}
	return s.replace(ctx, "update", i, s.items[i].WithTitle(title), model.Patch{Title: &title})
}

// Update applies a title change and a completion toggle as one adapter
// write. actor must own the todo when it has an owner.
func (s *Store) Update(ctx context.Context, id, actor string, title *string, toggle bool) (model.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return model.Todo{}, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	if !s.items[i].OwnedBy(actor) {
		return s.items[i], fmt.Errorf("update %s: %w", id, ErrUnauthorized)
	}
	var p model.Patch
	if title != nil {
		t := strings.TrimSpace(*title)
		if t == "" {
			return s.items[i], fmt.Errorf("update %s: empty title: %w", id, ErrValidation)
		}
		p.Title = &t
	}
	if toggle {
		done := !s.items[i].Completed
		p.Completed = &done
	}
	if p.Empty() {
		return s.items[i], fmt.Errorf("update %s: nothing to change: %w", id, ErrValidation)
	}
	return s.replace(ctx, "update", i, p.Apply(s.items[i]), p)
}

// Delete removes id. actor must own the todo when it has an owner.
func (s *Store) Delete(ctx context.Context, id, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	if !s.items[i].OwnedBy(actor) {
		return fmt.Errorf("delete %s: %w", id, ErrUnauthorized)
	}
	prev := s.items
	next := make([]model.Todo, 0, len(s.items)-1)
	next = append(next, s.items[:i]...)
	next = append(next, s.items[i+1:]...)
	s.items = next
	if err := s.adapter.Delete(ctx, id); err != nil {
		return s.persistFailed("delete", id, prev, err)
	}
	s.logger.WithField("id", id).Debug("todo deleted")
	return nil
}

// Load replaces the collection with what the adapter holds for q and
// returns the projection of it.
func (s *Store) Load(ctx context.Context, q view.Query) ([]model.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.adapter.ReadAll(ctx, q)
	if err != nil {
		return nil, &PersistenceError{Op: "read", Err: err}
	}
	s.items = dedupe(items)
	return view.Apply(s.items, q), nil
}

// Items returns a copy of the collection in store order.
func (s *Store) Items() []model.Todo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.CloneAll(s.items)
}

// View projects the current collection without touching the adapter.
func (s *Store) View(q view.Query) []model.Todo {
	return view.Apply(s.Items(), q)
}

func (s *Store) Get(id string) (model.Todo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.items[i].Clone(), true
	}
	return model.Todo{}, false
}

// Close releases the adapter if it holds resources.
func (s *Store) Close(ctx context.Context) error {
	if c, ok := s.adapter.(Closer); ok {
		return c.Close(ctx)
	}
	return nil
}

func (s *Store) replace(ctx context.Context, op string, i int, next model.Todo, p model.Patch) (model.Todo, error) {
	prev := s.items
	s.items = model.CloneAll(s.items)
	s.items[i] = next
	if err := s.adapter.Update(ctx, next.ID, p); err != nil {
		return next, s.persistFailed(op, next.ID, prev, err)
	}
	return next, nil
}

// persistFailed must be called with s.mu held.
func (s *Store) persistFailed(op, id string, prev []model.Todo, err error) error {
	if s.rollback {
		s.items = prev
	}
	s.logger.WithFields(log.Fields{"op": op, "id": id, "rolled_back": s.rollback}).
		WithError(err).Warn("persistence failed")
	return &PersistenceError{Op: op, ID: id, RolledBack: s.rollback, Err: err}
}

func (s *Store) indexOf(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

// dedupe drops repeated ids, keeping the first, so ids stay unique.
func dedupe(items []model.Todo) []model.Todo {
	seen := make(map[string]bool, len(items))
	out := make([]model.Todo, 0, len(items))
	for _, it := range items {
		if it.ID == "" || seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		out = append(out, it.Clone())
	}
	return out
}
