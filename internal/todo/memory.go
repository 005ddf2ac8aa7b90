package todo

import (
	"context"
	"sync"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/view"
)

// Memory keeps todos in process. Nothing survives a restart.
type Memory struct {
	mu    sync.Mutex
	order []string
	byID  map[string]model.Todo
	newID func() string
}

func NewMemory() *Memory {
	return &Memory{byID: map[string]model.Todo{}, newID: NewID}
}

func (m *Memory) Create(_ context.Context, t model.Todo) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = m.newID()
	}
	if _, ok := m.byID[t.ID]; !ok {
		m.order = append(m.order, t.ID)
	}
	m.byID[t.ID] = t.Clone()
	return t.ID, nil
}

func (m *Memory) ReadAll(_ context.Context, q view.Query) ([]model.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Todo, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byID[id].Clone())
	}
	return view.Apply(out, q), nil
}

func (m *Memory) Update(_ context.Context, id string, p model.Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	m.byID[id] = p.Apply(t)
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return nil
	}
	delete(m.byID, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}
