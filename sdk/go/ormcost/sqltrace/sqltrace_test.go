package sqltrace_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/krishiv1545/django-orm-cost/sdk/go/ormcost"
	"github.com/krishiv1545/django-orm-cost/sdk/go/ormcost/sqltrace"

	_ "modernc.org/sqlite"
)

func shapeFor(statement string) string {
	switch {
	case strings.Contains(statement, "FROM users"):
		return "users"
	case strings.Contains(statement, "FROM posts"):
		return "posts"
	default:
		return ""
	}
}

func newEngine(t *testing.T) *ormcost.Engine {
	t.Helper()
	e, err := ormcost.New(ormcost.WithConfig(ormcost.Config{}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

// newTracedDB opens an instrumented in-memory database. A single pooled
// connection keeps the :memory: schema alive across statements.
func newTracedDB(t *testing.T, eng *ormcost.Engine) *sql.DB {
	t.Helper()

	probe, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	drv := probe.Driver()
	if err := probe.Close(); err != nil {
		t.Fatalf("close probe: %v", err)
	}

	db := sql.OpenDB(sqltrace.Connector(":memory:", drv, eng, sqltrace.WithShapeFunc(shapeFor)))
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	seed := []string{
		`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, email TEXT)`,
		`INSERT INTO users (name, email) VALUES ('ada', 'ada@example.com')`,
		`INSERT INTO users (name, email) VALUES ('grace', 'grace@example.com')`,
	}
	for _, q := range seed {
		if _, err := db.ExecContext(context.Background(), q); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return db
}

func TestQueryCaptureColumnsAndRows(t *testing.T) {
	eng := newEngine(t)
	db := newTracedDB(t, eng)

	ctx := ormcost.WithContextID(context.Background(), "req-sql-1")
	eng.BeginUnitOfWork(ctx, "req-sql-1")

	rows, err := db.QueryContext(ctx, "SELECT id, name, email FROM users ORDER BY id")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	var seen int
	for rows.Next() {
		var id int
		var name, email string
		if err := rows.Scan(&id, &name, &email); err != nil {
			t.Fatalf("scan: %v", err)
		}
		seen++
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	if err := rows.Close(); err != nil {
		t.Fatalf("close rows: %v", err)
	}
	if seen != 2 {
		t.Fatalf("scanned %d rows, want 2", seen)
	}

	r := eng.EndUnitOfWork("req-sql-1")
	if r == nil {
		t.Fatal("expected a report")
	}
	if r.QueryCount != 1 || r.GroupCount != 1 {
		t.Fatalf("report = %d queries in %d groups, want 1 in 1", r.QueryCount, r.GroupCount)
	}

	g := r.Groups[0]
	if g.Primary.Shape != "users" || g.Primary.Rows != 2 {
		t.Errorf("primary = shape %q, %d rows, want users with 2 rows", g.Primary.Shape, g.Primary.Rows)
	}
	if !g.Origin.Attributed {
		t.Fatalf("origin not attributed: %+v", g.Origin)
	}
	if filepath.Base(g.Origin.File) != "sqltrace_test.go" {
		t.Errorf("origin file = %s, want sqltrace_test.go", g.Origin.File)
	}

	if len(g.Shapes) != 1 {
		t.Fatalf("shapes = %d, want 1", len(g.Shapes))
	}
	s := g.Shapes[0]
	if !s.Fetched.Known {
		t.Fatal("fetched fields should be known from declared columns")
	}
	if want := []string{"email", "id", "name"}; !reflect.DeepEqual(s.Fetched.Fields, want) {
		t.Errorf("fetched = %v, want %v", s.Fetched.Fields, want)
	}
	if s.Rows != 2 {
		t.Errorf("shape rows = %d, want 2", s.Rows)
	}
}

func TestExecCaptureRowsAffected(t *testing.T) {
	eng := newEngine(t)
	db := newTracedDB(t, eng)

	ctx := ormcost.WithContextID(context.Background(), "req-sql-2")
	eng.BeginUnitOfWork(ctx, "req-sql-2")

	res, err := db.ExecContext(ctx, "INSERT INTO users (name, email) VALUES ('lin', 'lin@example.com')")
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		t.Fatalf("rows affected = %d, %v, want 1", n, err)
	}

	r := eng.EndUnitOfWork("req-sql-2")
	if r == nil || r.QueryCount != 1 {
		t.Fatalf("report = %+v, want 1 captured exec", r)
	}
	g := r.Groups[0]
	if g.Primary.Rows != 1 {
		t.Errorf("primary rows = %d, want rows affected 1", g.Primary.Rows)
	}
	if g.Primary.Shape != "" {
		t.Errorf("primary shape = %q, want shapeless insert", g.Primary.Shape)
	}
	if filepath.Base(g.Origin.File) != "sqltrace_test.go" {
		t.Errorf("origin file = %s, want sqltrace_test.go", g.Origin.File)
	}
}

func TestPartialIterationCountsFetchedRows(t *testing.T) {
	eng := newEngine(t)
	db := newTracedDB(t, eng)

	ctx := ormcost.WithContextID(context.Background(), "req-sql-3")
	eng.BeginUnitOfWork(ctx, "req-sql-3")

	rows, err := db.QueryContext(ctx, "SELECT id, name, email FROM users ORDER BY id")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !rows.Next() {
		t.Fatal("expected at least one row")
	}
	if err := rows.Close(); err != nil {
		t.Fatalf("close rows: %v", err)
	}

	r := eng.EndUnitOfWork("req-sql-3")
	if r == nil || r.QueryCount != 1 {
		t.Fatalf("report = %+v, want 1 captured query", r)
	}
	if got := r.Groups[0].Primary.Rows; got != 1 {
		t.Errorf("primary rows = %d, want only the iterated row", got)
	}
}

func TestPreparedStatementLoopRepeatsOrigin(t *testing.T) {
	eng := newEngine(t)
	db := newTracedDB(t, eng)

	ctx := ormcost.WithContextID(context.Background(), "req-sql-4")
	eng.BeginUnitOfWork(ctx, "req-sql-4")

	stmt, err := db.PrepareContext(ctx, "SELECT name FROM users WHERE id = ?")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	defer stmt.Close()

	for id := 1; id <= 2; id++ {
		var name string
		if err := stmt.QueryRowContext(ctx, id).Scan(&name); err != nil {
			t.Fatalf("query id %d: %v", id, err)
		}
		if name == "" {
			t.Fatalf("empty name for id %d", id)
		}
	}

	r := eng.EndUnitOfWork("req-sql-4")
	if r == nil {
		t.Fatal("expected a report")
	}
	if r.QueryCount != 2 || r.GroupCount != 2 {
		t.Fatalf("report = %d queries in %d groups, want 2 in 2", r.QueryCount, r.GroupCount)
	}

	// Both executions come from the same loop body, so the second group
	// repeats the first group's origin.
	if r.Groups[0].Origin.String() != r.Groups[1].Origin.String() {
		t.Errorf("origins differ: %s vs %s", r.Groups[0].Origin, r.Groups[1].Origin)
	}
	if r.Groups[1].OriginSeq != 2 {
		t.Errorf("second group origin seq = %d, want 2", r.Groups[1].OriginSeq)
	}

	if len(r.Duplicates) != 1 || r.Duplicates[0].Count != 2 {
		t.Errorf("duplicates = %+v, want the looped statement twice", r.Duplicates)
	}

	// Parameter capture is off by default.
	if r.Groups[0].Primary.Params != nil {
		t.Errorf("params captured = %v, want none", r.Groups[0].Primary.Params)
	}
}

func TestStatementsOutsideUnitPassThrough(t *testing.T) {
	eng := newEngine(t)
	db := newTracedDB(t, eng)

	var n int
	if err := db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}

	if got := eng.Active(); got != 0 {
		t.Errorf("active units = %d, want 0", got)
	}

	eng.BeginUnitOfWork(context.Background(), "req-sql-5")
	r := eng.EndUnitOfWork("req-sql-5")
	if r == nil || r.QueryCount != 0 {
		t.Fatalf("report = %+v, want an empty unit", r)
	}
}
