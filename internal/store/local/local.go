// Package local implements the todo adapter that keeps a whole collection
// in one key-value slot, the way the browser app used localStorage.
package local

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
	log "github.com/sirupsen/logrus"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/store/kv"
	"github.com/Makepad-fr/tada/internal/todo"
	"github.com/Makepad-fr/tada/internal/view"
)

// DefaultSlot is the slot name the browser app used.
const DefaultSlot = "todoList"

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "tada://local/schema.json"

var compiled = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return c.Compile(schemaURL)
})

// record is the stored shape of one todo.
type record struct {
	ID        string  `json:"id,omitempty"`
	Title     string  `json:"title"`
	DueDate   *string `json:"dueDate"`
	Completed *bool   `json:"completed"`
	Owner     string  `json:"owner,omitempty"`
}

// Adapter reads the slot, changes it and writes it back on every call.
type Adapter struct {
	mu     sync.Mutex
	kv     kv.Store
	slot   string
	logger *log.Logger
	newID  func() string
}

type Option func(*Adapter)

func WithSlot(slot string) Option {
	return func(a *Adapter) {
		if slot != "" {
			a.slot = slot
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

func WithIDFunc(fn func() string) Option {
	return func(a *Adapter) {
		if fn != nil {
			a.newID = fn
		}
	}
}

func New(store kv.Store, opts ...Option) *Adapter {
	discard := log.New()
	discard.SetOutput(io.Discard)
	a := &Adapter{kv: store, slot: DefaultSlot, logger: discard, newID: todo.NewID}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Create(ctx context.Context, t model.Todo) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	items, err := a.load(ctx)
	if err != nil {
		return "", err
	}
	if t.ID == "" {
		t.ID = a.newID()
	}
	items = append(items, t)
	return t.ID, a.save(ctx, items)
}

// ReadAll returns the full collection; the store applies q.
func (a *Adapter) ReadAll(ctx context.Context, _ view.Query) ([]model.Todo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.load(ctx)
}

func (a *Adapter) Update(ctx context.Context, id string, p model.Patch) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	items, err := a.load(ctx)
	if err != nil {
		return err
	}
	for i := range items {
		if items[i].ID == id {
			items[i] = p.Apply(items[i])
			return a.save(ctx, items)
		}
	}
	return fmt.Errorf("update %s: %w", id, todo.ErrNotFound)
}

func (a *Adapter) Delete(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	items, err := a.load(ctx)
	if err != nil {
		return err
	}
	for i := range items {
		if items[i].ID == id {
			return a.save(ctx, append(items[:i], items[i+1:]...))
		}
	}
	return nil
}

// Close releases the underlying key-value store when it holds a connection.
func (a *Adapter) Close(ctx context.Context) error {
	if c, ok := a.kv.(interface{ Close(context.Context) error }); ok {
		return c.Close(ctx)
	}
	return nil
}

func (a *Adapter) load(ctx context.Context) ([]model.Todo, error) {
	b, err := a.kv.Get(ctx, a.slot)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return []model.Todo{}, nil
		}
		return nil, fmt.Errorf("load %s: %w", a.slot, err)
	}
	items, err := Decode(b, a.newID)
	if err != nil {
		a.logger.WithField("slot", a.slot).WithError(err).Warn("ignoring unreadable todo list")
		return []model.Todo{}, nil
	}
	return items, nil
}

func (a *Adapter) save(ctx context.Context, items []model.Todo) error {
	b, err := Encode(items)
	if err != nil {
		return err
	}
	if err := a.kv.Set(ctx, a.slot, b); err != nil {
		return fmt.Errorf("save %s: %w", a.slot, err)
	}
	return nil
}

// Encode serializes items as the slot payload.
func Encode(items []model.Todo) ([]byte, error) {
	recs := make([]record, 0, len(items))
	for _, it := range items {
		done := it.Completed
		r := record{ID: it.ID, Title: it.Title, Completed: &done, Owner: it.Owner}
		if it.DueDate != nil {
			s := encodeDue(*it.DueDate)
			r.DueDate = &s
		}
		recs = append(recs, r)
	}
	b, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("json marshal: %w", err)
	}
	return b, nil
}

// encodeDue writes midnight dates as YYYY-MM-DD, as the date input did.
func encodeDue(t time.Time) string {
	t = t.UTC()
	if t.Equal(t.Truncate(24 * time.Hour)) {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339Nano)
}

// Decode parses a slot payload. Records without an id get one from newID;
// a missing completed flag reads as false.
func Decode(b []byte, newID func() string) ([]model.Todo, error) {
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}
	schema, err := compiled()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	var recs []record
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}
	items := make([]model.Todo, 0, len(recs))
	for i, r := range recs {
		t := model.Todo{ID: r.ID, Title: r.Title, Owner: r.Owner}
		if t.ID == "" {
			t.ID = newID()
		}
		if r.Completed != nil {
			t.Completed = *r.Completed
		}
		if r.DueDate != nil {
			due, err := model.ParseDue(*r.DueDate)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			t.DueDate = due
		}
		items = append(items, t)
	}
	return items, nil
}
