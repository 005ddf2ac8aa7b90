package tables

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/todo"
	"github.com/Makepad-fr/tada/internal/view"
)

// fakeTable ignores filters except the RowKey lookup; the adapter reapplies
// the query to whatever comes back.
type fakeTable struct {
	mu      sync.Mutex
	rows    map[string]map[string]any
	order   []string
	filters []string
	listErr error
}

func newFakeTable() *fakeTable { return &fakeTable{rows: map[string]map[string]any{}} }

func (f *fakeTable) Add(_ context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var row map[string]any
	if err := json.Unmarshal(payload, &row); err != nil {
		return err
	}
	rk := row["RowKey"].(string)
	if _, ok := f.rows[rk]; ok {
		return errors.New("409 conflict")
	}
	f.rows[rk] = row
	f.order = append(f.order, rk)
	return nil
}

func (f *fakeTable) Merge(_ context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var patch map[string]any
	if err := json.Unmarshal(payload, &patch); err != nil {
		return err
	}
	row, ok := f.rows[patch["RowKey"].(string)]
	if !ok {
		return errors.New("404 not found")
	}
	for k, v := range patch {
		row[k] = v
	}
	return nil
}

func (f *fakeTable) Remove(_ context.Context, _, rk string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, rk)
	return nil
}

func (f *fakeTable) List(_ context.Context, filter string) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out [][]byte
	// newest first, so the adapter has to restore creation order itself
	for i := len(f.order) - 1; i >= 0; i-- {
		row, ok := f.rows[f.order[i]]
		if !ok {
			continue
		}
		if len(filter) > 9 && filter[:9] == "RowKey eq" && quote(f.order[i]) != filter[10:] {
			continue
		}
		b, _ := json.Marshal(row)
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeTable) lastFilter() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filters[len(f.filters)-1]
}

func newTestAdapter(ft *fakeTable) *Adapter {
	a := newAdapter(ft)
	tick := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return a
}

func TestBuildFilter(t *testing.T) {
	tests := []struct {
		q    view.Query
		want string
	}{
		{view.Query{}, ""},
		{view.Query{Owner: "alice"}, "(PartitionKey eq 'alice' or PartitionKey eq 'shared')"},
		{view.Query{Owner: "o'brien", Filter: view.Completed}, "(PartitionKey eq 'o''brien' or PartitionKey eq 'shared') and Completed eq true"},
		{view.Query{Filter: view.Uncompleted, Sort: view.Descending}, "Completed eq false"},
	}
	for _, tt := range tests {
		if got := buildFilter(tt.q); got != tt.want {
			t.Fatalf("buildFilter(%+v) = %q, want %q", tt.q, got, tt.want)
		}
	}
}

func TestCreateReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTable()
	a := newTestAdapter(ft)

	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	id, err := a.Create(ctx, model.Todo{Title: "Buy milk", DueDate: &due, Owner: "alice"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := a.Create(ctx, model.Todo{ID: "shared-1", Title: "Team lunch"}); err != nil {
		t.Fatalf("create shared: %v", err)
	}
	if ft.rows[id]["PartitionKey"] != "alice" || ft.rows["shared-1"]["PartitionKey"] != sharedPartition {
		t.Fatalf("unexpected partitions: %v", ft.rows)
	}

	items, err := a.ReadAll(ctx, view.Query{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 2 || items[0].ID != id || items[1].ID != "shared-1" {
		t.Fatalf("creation order not restored: %+v", items)
	}
	if items[0].Owner != "alice" || items[0].DueLabel() != "2024-01-01" || items[1].Owner != "" {
		t.Fatalf("unexpected decode: %+v", items)
	}
}

func TestReadAllPushesQueryAndReapplies(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTable()
	a := newTestAdapter(ft)
	for _, title := range []string{"a", "b", "c"} {
		if _, err := a.Create(ctx, model.Todo{ID: title, Title: title, Owner: "alice", Completed: title == "b"}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	items, err := a.ReadAll(ctx, view.Query{Owner: "alice", Filter: view.Completed})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if ft.lastFilter() != "(PartitionKey eq 'alice' or PartitionKey eq 'shared') and Completed eq true" {
		t.Fatalf("unexpected filter %q", ft.lastFilter())
	}
	if len(items) != 1 || items[0].ID != "b" {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestUpdateMergesChangedFields(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTable()
	a := newTestAdapter(ft)
	id, _ := a.Create(ctx, model.Todo{Title: "old", Owner: "alice"})

	done := true
	if err := a.Update(ctx, id, model.Patch{Completed: &done}); err != nil {
		t.Fatalf("update: %v", err)
	}
	row := ft.rows[id]
	if row["Completed"] != true || row["Text"] != "old" {
		t.Fatalf("merge lost fields: %v", row)
	}
}

func TestUpdateLooksUpUnknownPartition(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTable()
	writer := newTestAdapter(ft)
	id, _ := writer.Create(ctx, model.Todo{Title: "elsewhere", Owner: "bob"})

	reader := newTestAdapter(ft)
	title := "renamed"
	if err := reader.Update(ctx, id, model.Patch{Title: &title}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if ft.lastFilter() != "RowKey eq "+quote(id) {
		t.Fatalf("expected row key lookup, got %q", ft.lastFilter())
	}
	if ft.rows[id]["Text"] != "renamed" {
		t.Fatalf("update not applied: %v", ft.rows[id])
	}
	if err := reader.Update(ctx, "missing", model.Patch{Title: &title}); !errors.Is(err, todo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTable()
	a := newTestAdapter(ft)
	id, _ := a.Create(ctx, model.Todo{Title: "gone"})

	if err := a.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := a.Delete(ctx, id); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, ok := ft.rows[id]; ok {
		t.Fatal("row still present")
	}
}

func TestStoreOverTables(t *testing.T) {
	ctx := context.Background()
	s := todo.New(newTestAdapter(newFakeTable()))
	td, err := s.Add(ctx, "remote", nil, "alice")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := s.Toggle(ctx, td.ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	items, err := s.Load(ctx, view.Query{Owner: "alice", Filter: view.Completed})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(items) != 1 || items[0].ID != td.ID {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestOwnerQueryIncludesSharedTodos(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTable()
	a := newTestAdapter(ft)
	for _, td := range []model.Todo{{ID: "mine", Title: "m", Owner: "alice"}, {ID: "theirs", Title: "t", Owner: "bob"}, {ID: "common", Title: "c"}} {
		if _, err := a.Create(ctx, td); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	items, err := a.ReadAll(ctx, view.Query{Owner: "alice"})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 2 || items[0].ID != "mine" || items[1].ID != "common" {
		t.Fatalf("unexpected items: %+v", items)
	}
}
