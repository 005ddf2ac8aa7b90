// Package tables stores todos in Azure Table Storage, one partition per owner.
package tables

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/todo"
	"github.com/Makepad-fr/tada/internal/view"
)

// sharedPartition holds todos created without an owner.
const sharedPartition = "shared"

const (
	edmDateTime = "Edm.DateTime"
	edmInt64    = "Edm.Int64"
)

type entity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Text         string `json:"Text"`
	Completed    bool   `json:"Completed"`
	Date         string `json:"Date,omitempty"`
	DateType     string `json:"Date@odata.type,omitempty"`
	Created      int64  `json:"Created,string"`
	CreatedType  string `json:"Created@odata.type"`
}

type entityUpdate struct {
	PartitionKey string  `json:"PartitionKey"`
	RowKey       string  `json:"RowKey"`
	Text         *string `json:"Text,omitempty"`
	Completed    *bool   `json:"Completed,omitempty"`
}

// Adapter implements todo.Adapter over one table.
type Adapter struct {
	table table
	now   func() time.Time
	newID func() string

	mu         sync.Mutex
	partitions map[string]string
}

// New connects to tableName using an account connection string and makes
// sure the table exists.
func New(ctx context.Context, connStr, tableName string) (*Adapter, error) {
	t, err := newAzTable(connStr, tableName)
	if err != nil {
		return nil, fmt.Errorf("tables client: %w", err)
	}
	if err := t.ensure(ctx); err != nil {
		return nil, fmt.Errorf("create table %s: %w", tableName, err)
	}
	return newAdapter(t), nil
}

func newAdapter(t table) *Adapter {
	return &Adapter{
		table:      t,
		now:        time.Now,
		newID:      todo.NewID,
		partitions: map[string]string{},
	}
}

func (a *Adapter) Create(ctx context.Context, t model.Todo) (string, error) {
	if t.ID == "" {
		t.ID = a.newID()
	}
	ent := entity{
		PartitionKey: partitionFor(t.Owner),
		RowKey:       t.ID,
		Text:         t.Title,
		Completed:    t.Completed,
		Created:      a.now().UnixNano(),
		CreatedType:  edmInt64,
	}
	if t.DueDate != nil {
		ent.Date = t.DueDate.UTC().Format(time.RFC3339Nano)
		ent.DateType = edmDateTime
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return "", err
	}
	if err := a.table.Add(ctx, payload); err != nil {
		return "", err
	}
	a.remember(t.ID, ent.PartitionKey)
	return t.ID, nil
}

// ReadAll pushes owner and completion into the OData filter. Table Storage
// cannot order results, so sorting happens here.
func (a *Adapter) ReadAll(ctx context.Context, q view.Query) ([]model.Todo, error) {
	raw, err := a.table.List(ctx, buildFilter(q))
	if err != nil {
		return nil, err
	}
	ents := make([]entity, 0, len(raw))
	for _, b := range raw {
		var ent entity
		if err := json.Unmarshal(b, &ent); err != nil {
			return nil, fmt.Errorf("decode entity: %w", err)
		}
		ents = append(ents, ent)
	}
	sort.SliceStable(ents, func(i, j int) bool {
		if ents[i].Created != ents[j].Created {
			return ents[i].Created < ents[j].Created
		}
		return ents[i].RowKey < ents[j].RowKey
	})
	items := make([]model.Todo, 0, len(ents))
	for _, ent := range ents {
		t, err := ent.todo()
		if err != nil {
			return nil, err
		}
		a.remember(ent.RowKey, ent.PartitionKey)
		items = append(items, t)
	}
	return view.Apply(items, q), nil
}

func (a *Adapter) Update(ctx context.Context, id string, p model.Patch) error {
	pk, err := a.partitionOf(ctx, id)
	if err != nil {
		return err
	}
	if pk == "" {
		return fmt.Errorf("update %s: %w", id, todo.ErrNotFound)
	}
	payload, err := json.Marshal(entityUpdate{PartitionKey: pk, RowKey: id, Text: p.Title, Completed: p.Completed})
	if err != nil {
		return err
	}
	return a.table.Merge(ctx, payload)
}

func (a *Adapter) Delete(ctx context.Context, id string) error {
	pk, err := a.partitionOf(ctx, id)
	if err != nil || pk == "" {
		return err
	}
	if err := a.table.Remove(ctx, pk, id); err != nil {
		return err
	}
	a.mu.Lock()
	delete(a.partitions, id)
	a.mu.Unlock()
	return nil
}

func (a *Adapter) remember(id, pk string) {
	a.mu.Lock()
	a.partitions[id] = pk
	a.mu.Unlock()
}

// partitionOf returns "" when no entity with id exists.
func (a *Adapter) partitionOf(ctx context.Context, id string) (string, error) {
	a.mu.Lock()
	pk, ok := a.partitions[id]
	a.mu.Unlock()
	if ok {
		return pk, nil
	}
	raw, err := a.table.List(ctx, "RowKey eq "+quote(id))
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "", nil
	}
	var ent entity
	if err := json.Unmarshal(raw[0], &ent); err != nil {
		return "", fmt.Errorf("decode entity: %w", err)
	}
	a.remember(id, ent.PartitionKey)
	return ent.PartitionKey, nil
}

func (e entity) todo() (model.Todo, error) {
	t := model.Todo{ID: e.RowKey, Title: e.Text, Completed: e.Completed}
	if e.PartitionKey != sharedPartition {
		t.Owner = e.PartitionKey
	}
	if e.Date != "" {
		due, err := model.ParseDue(e.Date)
		if err != nil {
			return model.Todo{}, fmt.Errorf("entity %s: %w", e.RowKey, err)
		}
		t.DueDate = due
	}
	return t, nil
}

func partitionFor(owner string) string {
	if owner == "" {
		return sharedPartition
	}
	return owner
}

func buildFilter(q view.Query) string {
	var parts []string
	if q.Owner != "" {
		parts = append(parts, "(PartitionKey eq "+quote(q.Owner)+" or PartitionKey eq "+quote(sharedPartition)+")")
	}
	switch q.Filter {
	case view.Completed:
		parts = append(parts, "Completed eq true")
	case view.Uncompleted:
		parts = append(parts, "Completed eq false")
	}
	return strings.Join(parts, " and ")
}

// quote renders s as an OData string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
