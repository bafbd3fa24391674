package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/krishiv1545/django-orm-cost/sdk/go/ormcost"
	"github.com/krishiv1545/django-orm-cost/sdk/go/ormcost/sqltrace"

	_ "modernc.org/sqlite"
)

func init() {
	rootCmd.AddCommand(demoCmd)
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run an instrumented workload and print its cost report",
	Long: "Runs a miniature request against an in-memory sqlite database twice:\n" +
		"once through repository helpers that report record binds and field\n" +
		"reads, and once through the raw database/sql adapter. Prints the\n" +
		"over-fetch, N+1, and duplicate findings for both.",
	RunE: runDemo,
}

func runDemo(cmd *cobra.Command, args []string) error {
	fmt.Println("=== ormcost demo: what did this request actually use? ===")
	fmt.Println()

	eng, err := ormcost.New(ormcost.WithConfigFile(cfgPath))
	if err != nil {
		return err
	}

	plain, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer plain.Close()
	plain.SetMaxOpenConns(1)
	if err := seedDemo(plain); err != nil {
		return err
	}

	contextID := ormcost.NewContextID()
	ctx := ormcost.WithContextID(context.Background(), contextID)
	eng.BeginUnitOfWork(ctx, contextID)

	users, obs, err := loadUsers(eng, plain, ctx)
	if err != nil {
		return err
	}

	fmt.Println("Rendering the user list (the handler reads name only):")
	for _, u := range users {
		obs.FieldRead(ormcost.RecordID{Shape: "users", Key: strconv.Itoa(u.id)}, "name")
		fmt.Printf("  - %s\n", u.name)
	}
	fmt.Println()

	fmt.Println("Walking user.posts per user (the classic N+1 loop):")
	for _, u := range users {
		owner := ormcost.RecordID{Shape: "users", Key: strconv.Itoa(u.id)}
		eng.OnRelationStart(contextID, owner)
		titles, err := loadPostTitles(eng, plain, ctx, u.id)
		eng.OnRelationEnd(contextID)
		if err != nil {
			return err
		}
		fmt.Printf("  %s: %d posts\n", u.name, len(titles))
	}
	fmt.Println()

	rep := eng.EndUnitOfWork(contextID)
	if rep == nil {
		return fmt.Errorf("no report produced for unit %s", contextID)
	}

	fmt.Printf("Report: %d queries in %d groups, %d dependent, db %s\n",
		rep.QueryCount, rep.GroupCount, rep.DependentCount(), rep.DBTime)
	for _, g := range rep.Groups {
		for _, s := range g.Shapes {
			if s.OverFetched.Known && len(s.OverFetched.Fields) > 0 {
				fmt.Printf("  ✗ %s fetched [%s] but consumed only [%s]\n", s.Shape, s.Fetched, s.Consumed)
			}
		}
	}
	for _, d := range rep.Duplicates {
		fmt.Printf("  ✗ %dx %s\n", d.Count, d.Statement)
	}
	fmt.Println()

	rawRep, err := runRawCapture(eng)
	if err != nil {
		return err
	}

	fmt.Println("Raw database/sql capture (no repository layer):")
	for _, g := range rawRep.Groups {
		origin := g.Origin.String()
		if g.OriginSeq > 1 {
			origin = fmt.Sprintf("%s (#%d)", origin, g.OriginSeq)
		}
		fmt.Printf("  [%d] %s  %s (%d rows)\n", g.Seq, origin, g.Primary.Statement, g.Primary.Rows)
	}
	fmt.Println("  Raw capture sees declared columns and origins; consumption needs the record hooks.")
	fmt.Println()

	fmt.Println("Full report (JSON):")
	out, _ := json.MarshalIndent(rep, "", "  ")
	fmt.Println(string(out))
	fmt.Println()

	pass := rep.OverFetchCount() > 0 && rep.DependentCount() == len(users) && len(rep.Duplicates) > 0
	rawPass := rawRep.GroupCount == 2 && len(rawRep.Duplicates) == 1 && rawRep.Groups[1].OriginSeq == 2
	if !pass || !rawPass {
		fmt.Println("FAIL: expected over-fetch, N+1 grouping, and duplicate detection in the reports above.")
		os.Exit(1)
	}

	fmt.Println("PASS: over-fetch, N+1 grouping, loop attribution, and duplicate detection verified.")
	return nil
}

type demoUser struct {
	id   int
	name string
}

// loadUsers plays the ORM integration role: it captures the query through
// the engine, binds every materialized record, and hands back the
// observer so the handler can report field reads at consumption time.
func loadUsers(eng *ormcost.Engine, db *sql.DB, ctx context.Context) ([]demoUser, *ormcost.RecordObserver, error) {
	const q = "SELECT id, name, email, created_at FROM users ORDER BY id"

	tok := eng.StartQuery(ormcost.ContextID(ctx), q)
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		eng.EndQuery(tok, ormcost.Result{Shape: "users"})
		return nil, nil, fmt.Errorf("load users: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		eng.EndQuery(tok, ormcost.Result{Shape: "users"})
		return nil, nil, fmt.Errorf("load users: %w", err)
	}

	var users []demoUser
	for rows.Next() {
		var u demoUser
		var email, createdAt string
		if err := rows.Scan(&u.id, &u.name, &email, &createdAt); err != nil {
			eng.EndQuery(tok, ormcost.Result{Shape: "users"})
			return nil, nil, fmt.Errorf("load users: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		eng.EndQuery(tok, ormcost.Result{Shape: "users"})
		return nil, nil, fmt.Errorf("load users: %w", err)
	}
	eng.EndQuery(tok, ormcost.Result{Shape: "users", Columns: cols, Rows: len(users)})

	obs := eng.Observer(tok)
	for _, u := range users {
		obs.Bind(ormcost.RecordID{Shape: "users", Key: strconv.Itoa(u.id)})
	}
	return users, obs, nil
}

// loadPostTitles loads one user's posts and reads only the title field.
func loadPostTitles(eng *ormcost.Engine, db *sql.DB, ctx context.Context, userID int) ([]string, error) {
	const q = "SELECT id, title, body FROM posts WHERE user_id = ?"

	tok := eng.StartQuery(ormcost.ContextID(ctx), q, userID)
	rows, err := db.QueryContext(ctx, q, userID)
	if err != nil {
		eng.EndQuery(tok, ormcost.Result{Shape: "posts"})
		return nil, fmt.Errorf("load posts for user %d: %w", userID, err)
	}
	defer rows.Close()

	type post struct {
		id    int
		title string
	}
	var posts []post
	for rows.Next() {
		var p post
		var body string
		if err := rows.Scan(&p.id, &p.title, &body); err != nil {
			eng.EndQuery(tok, ormcost.Result{Shape: "posts"})
			return nil, fmt.Errorf("load posts for user %d: %w", userID, err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		eng.EndQuery(tok, ormcost.Result{Shape: "posts"})
		return nil, fmt.Errorf("load posts for user %d: %w", userID, err)
	}
	eng.EndQuery(tok, ormcost.Result{Shape: "posts", Columns: []string{"id", "title", "body"}, Rows: len(posts)})

	obs := eng.Observer(tok)
	titles := make([]string, 0, len(posts))
	for _, p := range posts {
		rec := ormcost.RecordID{Shape: "posts", Key: strconv.Itoa(p.id)}
		obs.Bind(rec)
		obs.FieldRead(rec, "title")
		titles = append(titles, p.title)
	}
	return titles, nil
}

// runRawCapture repeats a lookup through the sqltrace-wrapped pool, with
// no repository layer in between.
func runRawCapture(eng *ormcost.Engine) (*ormcost.Report, error) {
	probe, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	drv := probe.Driver()
	if err := probe.Close(); err != nil {
		return nil, err
	}

	db := sql.OpenDB(sqltrace.Connector(":memory:", drv, eng, sqltrace.WithShapeFunc(demoShape)))
	defer db.Close()
	db.SetMaxOpenConns(1)
	if err := seedDemo(db); err != nil {
		return nil, err
	}

	contextID := ormcost.NewContextID()
	ctx := ormcost.WithContextID(context.Background(), contextID)
	eng.BeginUnitOfWork(ctx, contextID)

	for id := 1; id <= 2; id++ {
		var name, email string
		if err := db.QueryRowContext(ctx, "SELECT name, email FROM users WHERE id = ?", id).Scan(&name, &email); err != nil {
			return nil, fmt.Errorf("lookup user %d: %w", id, err)
		}
	}

	rep := eng.EndUnitOfWork(contextID)
	if rep == nil {
		return nil, fmt.Errorf("no report produced for unit %s", contextID)
	}
	return rep, nil
}

func seedDemo(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, email TEXT, created_at TEXT)`,
		`CREATE TABLE posts (id INTEGER PRIMARY KEY, user_id INTEGER, title TEXT, body TEXT)`,
		`INSERT INTO users (name, email, created_at) VALUES
			('ada', 'ada@example.com', '2026-01-05'),
			('grace', 'grace@example.com', '2026-02-11'),
			('lin', 'lin@example.com', '2026-03-02')`,
		`INSERT INTO posts (user_id, title, body) VALUES
			(1, 'hello world', 'first'),
			(1, 'profiling queries', 'second'),
			(2, 'queue depth', 'third'),
			(2, 'driver wrappers', 'fourth'),
			(3, 'index hints', 'fifth'),
			(3, 'cache warmup', 'sixth')`,
	}
	for _, q := range stmts {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
	}
	return nil
}

func demoShape(statement string) string {
	switch {
	case strings.Contains(statement, "FROM users"):
		return "users"
	case strings.Contains(statement, "FROM posts"):
		return "posts"
	default:
		return ""
	}
}
