package sqltrace

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"

	"github.com/krishiv1545/django-orm-cost/sdk/go/ormcost"
)

// conn instruments a single driver connection. Fast-path interfaces are
// claimed only when the underlying connection implements them; otherwise
// driver.ErrSkip sends database/sql down its prepared-statement
// fallback, which is instrumented too. Either way each statement is
// captured once.
type conn struct {
	c   driver.Conn
	eng *ormcost.Engine
	cfg config
}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	s, err := c.c.Prepare(query)
	if err != nil {
		return nil, err
	}
	return &stmt{s: s, query: query, eng: c.eng, cfg: c.cfg}, nil
}

func (c *conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	cp, ok := c.c.(driver.ConnPrepareContext)
	if !ok {
		return c.Prepare(query)
	}
	s, err := cp.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &stmt{s: s, query: query, eng: c.eng, cfg: c.cfg}, nil
}

func (c *conn) Close() error { return c.c.Close() }

func (c *conn) Begin() (driver.Tx, error) { return c.c.Begin() }

func (c *conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if cb, ok := c.c.(driver.ConnBeginTx); ok {
		return cb.BeginTx(ctx, opts)
	}
	if opts.Isolation != 0 || opts.ReadOnly {
		return nil, errors.New("sqltrace: driver does not support transaction options")
	}
	return c.c.Begin()
}

func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	qc, ok := c.c.(driver.QueryerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	tok := c.eng.StartQuery(ormcost.ContextID(ctx), query, valuesOf(args)...)
	rs, err := qc.QueryContext(ctx, query, args)
	if err != nil {
		c.eng.EndQuery(tok, ormcost.Result{Shape: c.cfg.shapeOf(query)})
		return nil, err
	}
	return &rows{rs: rs, eng: c.eng, tok: tok, shape: c.cfg.shapeOf(query)}, nil
}

func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	ec, ok := c.c.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	tok := c.eng.StartQuery(ormcost.ContextID(ctx), query, valuesOf(args)...)
	res, err := ec.ExecContext(ctx, query, args)
	c.eng.EndQuery(tok, execResult(c.cfg.shapeOf(query), res, err))
	return res, err
}

// CheckNamedValue defers to the underlying connection's converter when
// it has one; driver.ErrSkip selects the default conversion otherwise.
func (c *conn) CheckNamedValue(nv *driver.NamedValue) error {
	if nvc, ok := c.c.(driver.NamedValueChecker); ok {
		return nvc.CheckNamedValue(nv)
	}
	return driver.ErrSkip
}

func (c *conn) ResetSession(ctx context.Context) error {
	if sr, ok := c.c.(driver.SessionResetter); ok {
		return sr.ResetSession(ctx)
	}
	return nil
}

func (c *conn) IsValid() bool {
	if v, ok := c.c.(driver.Validator); ok {
		return v.IsValid()
	}
	return true
}

type stmt struct {
	s     driver.Stmt
	query string
	eng   *ormcost.Engine
	cfg   config
}

func (s *stmt) Close() error { return s.s.Close() }

func (s *stmt) NumInput() int { return s.s.NumInput() }

// Exec and Query serve drivers predating context support. They carry no
// request context, so nothing is captured.
func (s *stmt) Exec(args []driver.Value) (driver.Result, error) { return s.s.Exec(args) }

func (s *stmt) Query(args []driver.Value) (driver.Rows, error) { return s.s.Query(args) }

func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	tok := s.eng.StartQuery(ormcost.ContextID(ctx), s.query, valuesOf(args)...)
	res, err := s.execContext(ctx, args)
	s.eng.EndQuery(tok, execResult(s.cfg.shapeOf(s.query), res, err))
	return res, err
}

func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	tok := s.eng.StartQuery(ormcost.ContextID(ctx), s.query, valuesOf(args)...)
	rs, err := s.queryContext(ctx, args)
	if err != nil {
		s.eng.EndQuery(tok, ormcost.Result{Shape: s.cfg.shapeOf(s.query)})
		return nil, err
	}
	return &rows{rs: rs, eng: s.eng, tok: tok, shape: s.cfg.shapeOf(s.query)}, nil
}

func (s *stmt) execContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	if se, ok := s.s.(driver.StmtExecContext); ok {
		return se.ExecContext(ctx, args)
	}
	vals, err := positionalValues(args)
	if err != nil {
		return nil, err
	}
	return s.s.Exec(vals)
}

func (s *stmt) queryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if sq, ok := s.s.(driver.StmtQueryContext); ok {
		return sq.QueryContext(ctx, args)
	}
	vals, err := positionalValues(args)
	if err != nil {
		return nil, err
	}
	return s.s.Query(vals)
}

func (s *stmt) CheckNamedValue(nv *driver.NamedValue) error {
	if nvc, ok := s.s.(driver.NamedValueChecker); ok {
		return nvc.CheckNamedValue(nv)
	}
	return driver.ErrSkip
}

// rows counts fetched rows and reports the result set's declared columns
// when iteration finishes. The capture window closes on EOF or Close,
// whichever comes first.
type rows struct {
	rs    driver.Rows
	eng   *ormcost.Engine
	tok   ormcost.Token
	shape string
	n     int
	done  bool
}

func (r *rows) Columns() []string { return r.rs.Columns() }

func (r *rows) Close() error {
	r.finish()
	return r.rs.Close()
}

func (r *rows) Next(dest []driver.Value) error {
	err := r.rs.Next(dest)
	switch err {
	case nil:
		r.n++
	case io.EOF:
		r.finish()
	}
	return err
}

func (r *rows) finish() {
	if r.done {
		return
	}
	r.done = true
	r.eng.EndQuery(r.tok, ormcost.Result{Shape: r.shape, Columns: r.rs.Columns(), Rows: r.n})
}

func valuesOf(args []driver.NamedValue) []any {
	if len(args) == 0 {
		return nil
	}
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a.Value
	}
	return out
}

// positionalValues converts arguments for legacy statements, which only
// accept ordinal parameters.
func positionalValues(args []driver.NamedValue) ([]driver.Value, error) {
	out := make([]driver.Value, len(args))
	for i, a := range args {
		if a.Name != "" {
			return nil, errors.New("sqltrace: driver does not support named parameters")
		}
		out[i] = a.Value
	}
	return out, nil
}

func execResult(shape string, res driver.Result, err error) ormcost.Result {
	out := ormcost.Result{Shape: shape}
	if err != nil || res == nil {
		return out
	}
	if n, aerr := res.RowsAffected(); aerr == nil && n >= 0 {
		out.Rows = int(n)
	}
	return out
}
