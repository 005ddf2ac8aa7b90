package graph

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/todo"
	"github.com/Makepad-fr/tada/internal/view"
)

type call struct {
	cypher string
	params map[string]any
}

type fakeRunner struct {
	calls   []call
	records []*neo4j.Record
	err     error
	closed  bool
}

func (f *fakeRunner) read(_ context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	f.calls = append(f.calls, call{cypher, params})
	return f.records, f.err
}

func (f *fakeRunner) write(_ context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	f.calls = append(f.calls, call{cypher, params})
	return f.records, f.err
}

func (f *fakeRunner) close(context.Context) error {
	f.closed = true
	return nil
}

func (f *fakeRunner) last() call { return f.calls[len(f.calls)-1] }

func record(id, title string, completed bool, due any, owner any) *neo4j.Record {
	return &neo4j.Record{
		Keys:   []string{"id", "title", "completed", "dueDate", "owner"},
		Values: []any{id, title, completed, due, owner},
	}
}

func TestBuildRead(t *testing.T) {
	tests := []struct {
		name   string
		q      view.Query
		where  string
		order  string
		params int
	}{
		{name: "everything", q: view.Query{}, where: "", order: "ORDER BY t.created ASC"},
		{name: "owner completed", q: view.Query{Owner: "alice", Filter: view.Completed},
			where: "WHERE (t.owner = $owner OR t.owner IS NULL) AND t.completed = true", order: "ORDER BY t.created ASC", params: 1},
		{name: "uncompleted asc", q: view.Query{Filter: view.Uncompleted, Sort: view.Ascending},
			where: "WHERE t.completed = false", order: "ORDER BY t.dueDate ASC, t.created ASC"},
		{name: "desc", q: view.Query{Sort: view.Descending}, order: "ORDER BY t.dueDate DESC, t.created ASC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cypher, params := buildRead(tt.q)
			if tt.where != "" && !strings.Contains(cypher, tt.where) {
				t.Fatalf("missing %q in %q", tt.where, cypher)
			}
			if tt.where == "" && strings.Contains(cypher, "WHERE") {
				t.Fatalf("unexpected WHERE in %q", cypher)
			}
			if !strings.HasSuffix(cypher, tt.order) {
				t.Fatalf("expected %q at the end of %q", tt.order, cypher)
			}
			if len(params) != tt.params {
				t.Fatalf("unexpected params %v", params)
			}
		})
	}
}

func TestCreateSendsNullsForUnsetFields(t *testing.T) {
	fr := &fakeRunner{}
	a := newAdapter(fr)
	a.newID = func() string { return "fixed" }

	id, err := a.Create(context.Background(), model.Todo{Title: "Buy milk"})
	if err != nil || id != "fixed" {
		t.Fatalf("create: %q %v", id, err)
	}
	p := fr.last().params
	if p["dueDate"] != nil || p["owner"] != nil || p["completed"] != false || p["title"] != "Buy milk" {
		t.Fatalf("unexpected params: %v", p)
	}

	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fr.records = []*neo4j.Record{{Keys: []string{"id"}, Values: []any{"server-id"}}}
	id, err = a.Create(context.Background(), model.Todo{Title: "x", DueDate: &due, Owner: "alice"})
	if err != nil || id != "server-id" {
		t.Fatalf("create with returned id: %q %v", id, err)
	}
	if got := fr.last().params["dueDate"].(time.Time); !got.Equal(due) {
		t.Fatalf("due param %v", got)
	}
}

func TestReadAllDecodesRecords(t *testing.T) {
	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fr := &fakeRunner{records: []*neo4j.Record{
		record("a", "dated", false, due, "alice"),
		record("b", "undated", true, nil, nil),
		record("c", "text date", false, "2024-02-03", nil),
	}}
	items, err := newAdapter(fr).ReadAll(context.Background(), view.Query{Owner: "alice"})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].Owner != "alice" || items[0].DueLabel() != "2024-01-01" {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	if !items[1].Completed || items[1].DueDate != nil || items[1].Owner != "" {
		t.Fatalf("unexpected second item: %+v", items[1])
	}
	if items[2].DueLabel() != "2024-02-03" {
		t.Fatalf("unexpected third item: %+v", items[2])
	}
	if fr.last().params["owner"] != "alice" {
		t.Fatalf("owner not pushed down: %v", fr.last().params)
	}
}

func TestReadAllRejectsRecordWithoutID(t *testing.T) {
	fr := &fakeRunner{records: []*neo4j.Record{record("", "x", false, nil, nil)}}
	if _, err := newAdapter(fr).ReadAll(context.Background(), view.Query{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestUpdateSetsOnlyPatchedFields(t *testing.T) {
	fr := &fakeRunner{records: []*neo4j.Record{{Keys: []string{"id"}, Values: []any{"a"}}}}
	a := newAdapter(fr)
	done := true
	if err := a.Update(context.Background(), "a", model.Patch{Completed: &done}); err != nil {
		t.Fatalf("update: %v", err)
	}
	c := fr.last()
	if !strings.Contains(c.cypher, "SET t.completed = $completed") || strings.Contains(c.cypher, "t.title") {
		t.Fatalf("unexpected cypher %q", c.cypher)
	}
	if c.params["completed"] != true {
		t.Fatalf("unexpected params %v", c.params)
	}

	fr.records = nil
	if err := a.Update(context.Background(), "missing", model.Patch{Completed: &done}); !errors.Is(err, todo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteAndClose(t *testing.T) {
	fr := &fakeRunner{}
	a := newAdapter(fr)
	if err := a.Delete(context.Background(), "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !strings.Contains(fr.last().cypher, "DETACH DELETE t") || fr.last().params["id"] != "a" {
		t.Fatalf("unexpected call %+v", fr.last())
	}
	if err := a.Close(context.Background()); err != nil || !fr.closed {
		t.Fatalf("close: %v", err)
	}
}
