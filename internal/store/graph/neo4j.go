// Package graph stores todos as (:Todo) nodes in Neo4j.
package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/todo"
	"github.com/Makepad-fr/tada/internal/view"
)

// runner executes one Cypher statement and collects its records.
type runner interface {
	read(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error)
	write(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error)
	close(ctx context.Context) error
}

type driverRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

func (d *driverRunner) read(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	return d.run(ctx, neo4j.AccessModeRead, cypher, params)
}

func (d *driverRunner) write(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	return d.run(ctx, neo4j.AccessModeWrite, cypher, params)
}

func (d *driverRunner) run(ctx context.Context, mode neo4j.AccessMode, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	session := d.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: d.database})
	defer session.Close(ctx)

	work := func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	}
	var out any
	var err error
	if mode == neo4j.AccessModeRead {
		out, err = session.ExecuteRead(ctx, work)
	} else {
		out, err = session.ExecuteWrite(ctx, work)
	}
	if err != nil {
		return nil, err
	}
	return out.([]*neo4j.Record), nil
}

func (d *driverRunner) close(ctx context.Context) error { return d.driver.Close(ctx) }

// Config names the Neo4j server to use.
type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// Adapter implements todo.Adapter over Neo4j.
type Adapter struct {
	run   runner
	now   func() time.Time
	newID func() string
}

// New connects, checks connectivity and ensures the id constraint exists.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	a := newAdapter(&driverRunner{driver: driver, database: cfg.Database})
	if _, err := a.run.write(ctx, constraintCypher, nil); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j constraint: %w", err)
	}
	return a, nil
}

func newAdapter(r runner) *Adapter {
	return &Adapter{run: r, now: time.Now, newID: todo.NewID}
}

const constraintCypher = "CREATE CONSTRAINT todo_id IF NOT EXISTS FOR (t:Todo) REQUIRE t.id IS UNIQUE"

const createCypher = "CREATE (t:Todo {id: $id, title: $title, completed: $completed, dueDate: $dueDate, owner: $owner, created: $created}) " +
	"RETURN t.id AS id"

const returnFields = "RETURN t.id AS id, t.title AS title, t.completed AS completed, t.dueDate AS dueDate, t.owner AS owner"

func (a *Adapter) Create(ctx context.Context, t model.Todo) (string, error) {
	if t.ID == "" {
		t.ID = a.newID()
	}
	params := map[string]any{
		"id":        t.ID,
		"title":     t.Title,
		"completed": t.Completed,
		"dueDate":   nil,
		"owner":     nil,
		"created":   a.now().UnixNano(),
	}
	if t.DueDate != nil {
		params["dueDate"] = t.DueDate.UTC()
	}
	if t.Owner != "" {
		params["owner"] = t.Owner
	}
	recs, err := a.run.write(ctx, createCypher, params)
	if err != nil {
		return "", err
	}
	if len(recs) > 0 {
		if id, ok := recs[0].Get("id"); ok {
			if s, ok := id.(string); ok && s != "" {
				return s, nil
			}
		}
	}
	return t.ID, nil
}

// ReadAll pushes owner, filter and due-date order into the query.
func (a *Adapter) ReadAll(ctx context.Context, q view.Query) ([]model.Todo, error) {
	cypher, params := buildRead(q)
	recs, err := a.run.read(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	items := make([]model.Todo, 0, len(recs))
	for _, rec := range recs {
		t, err := decode(rec)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, nil
}

func (a *Adapter) Update(ctx context.Context, id string, p model.Patch) error {
	var sets []string
	params := map[string]any{"id": id}
	if p.Title != nil {
		sets = append(sets, "t.title = $title")
		params["title"] = *p.Title
	}
	if p.Completed != nil {
		sets = append(sets, "t.completed = $completed")
		params["completed"] = *p.Completed
	}
	cypher := "MATCH (t:Todo {id: $id}) "
	if len(sets) > 0 {
		cypher += "SET " + strings.Join(sets, ", ") + " "
	}
	cypher += "RETURN t.id AS id"
	recs, err := a.run.write(ctx, cypher, params)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return fmt.Errorf("update %s: %w", id, todo.ErrNotFound)
	}
	return nil
}

func (a *Adapter) Delete(ctx context.Context, id string) error {
	_, err := a.run.write(ctx, "MATCH (t:Todo {id: $id}) DETACH DELETE t", map[string]any{"id": id})
	return err
}

func (a *Adapter) Close(ctx context.Context) error { return a.run.close(ctx) }

// buildRead renders the read query. Neo4j orders nulls last ascending and
// first descending, which matches view.Apply for undated todos.
func buildRead(q view.Query) (string, map[string]any) {
	var where []string
	params := map[string]any{}
	if q.Owner != "" {
		where = append(where, "(t.owner = $owner OR t.owner IS NULL)")
		params["owner"] = q.Owner
	}
	switch q.Filter {
	case view.Completed:
		where = append(where, "t.completed = true")
	case view.Uncompleted:
		where = append(where, "t.completed = false")
	}

	var b strings.Builder
	b.WriteString("MATCH (t:Todo) ")
	if len(where) > 0 {
		b.WriteString("WHERE " + strings.Join(where, " AND ") + " ")
	}
	b.WriteString(returnFields + " ")
	switch q.Sort {
	case view.Ascending:
		b.WriteString("ORDER BY t.dueDate ASC, t.created ASC")
	case view.Descending:
		b.WriteString("ORDER BY t.dueDate DESC, t.created ASC")
	default:
		b.WriteString("ORDER BY t.created ASC")
	}
	return b.String(), params
}

func decode(rec *neo4j.Record) (model.Todo, error) {
	var t model.Todo
	id, _ := rec.Get("id")
	s, ok := id.(string)
	if !ok || s == "" {
		return t, fmt.Errorf("todo record without id: %v", rec.Values)
	}
	t.ID = s
	if v, ok := rec.Get("title"); ok {
		t.Title, _ = v.(string)
	}
	if v, ok := rec.Get("completed"); ok {
		t.Completed, _ = v.(bool)
	}
	if v, ok := rec.Get("owner"); ok {
		t.Owner, _ = v.(string)
	}
	if v, ok := rec.Get("dueDate"); ok && v != nil {
		switch d := v.(type) {
		case time.Time:
			u := d.UTC()
			t.DueDate = &u
		case neo4j.LocalDateTime:
			u := d.Time().UTC()
			t.DueDate = &u
		case neo4j.Date:
			u := d.Time().UTC()
			t.DueDate = &u
		case string:
			due, err := model.ParseDue(d)
			if err != nil {
				return t, fmt.Errorf("todo %s: %w", t.ID, err)
			}
			t.DueDate = due
		default:
			return t, fmt.Errorf("todo %s: unsupported due date type %T", t.ID, v)
		}
	}
	return t, nil
}
