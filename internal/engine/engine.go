// Package engine is the live core of the instrumentation: it owns the
// registry of active units of work, resolves origins at the forcing
// moment, stamps the clock on every hook, and optionally records the hook
// stream to trail files. Hook methods never return errors to the host;
// anything that goes wrong degrades to a diagnostic line and, where it
// affects the report, a warning.
package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/krishiv1545/django-orm-cost/internal/config"
	"github.com/krishiv1545/django-orm-cost/internal/model"
	"github.com/krishiv1545/django-orm-cost/internal/origin"
	"github.com/krishiv1545/django-orm-cost/internal/redact"
	"github.com/krishiv1545/django-orm-cost/internal/report"
	"github.com/krishiv1545/django-orm-cost/internal/trail"
	"github.com/krishiv1545/django-orm-cost/internal/uow"
)

// Config configures an Engine.
type Config struct {
	// Capture holds the capture parameters. Nil means defaults.
	Capture *config.Config
	// Diag receives one-line diagnostics about degraded capture. Nil means
	// silent. The engine never writes to stdout/stderr on its own.
	Diag io.Writer
}

// Engine captures and attributes query activity per unit of work.
type Engine struct {
	cfg      *config.Config
	resolver *origin.Resolver
	reg      *registry

	diagMu sync.Mutex
	diag   io.Writer
}

// New builds an Engine. Configuration problems surface here, never later
// on the hook path.
func New(cfg Config) (*Engine, error) {
	c := cfg.Capture
	if c == nil {
		c = config.DefaultConfig()
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid configuration: %w", err)
	}
	if c.TrailDir != "" {
		if err := os.MkdirAll(c.TrailDir, 0700); err != nil {
			return nil, fmt.Errorf("engine: trail directory: %w", err)
		}
	}

	return &Engine{
		cfg:      c,
		resolver: origin.NewResolver(c.EffectivePrefixes()),
		reg:      newRegistry(),
		diag:     cfg.Diag,
	}, nil
}

// Begin opens a unit of work for the given context ID. When ctx dies
// before End the unit is detached and abandoned, so registry entries
// cannot outlive the request that created them. A second Begin for an
// already-active context keeps the original unit and records a scope
// violation on it.
func (e *Engine) Begin(ctx context.Context, contextID string) *uow.UnitOfWork {
	if contextID == "" {
		e.logf("begin ignored: empty context id")
		return nil
	}

	now := time.Now().UTC()
	u := uow.New(uow.NewUnitID(), contextID, now, uow.Options{
		CaptureParams:   e.cfg.CaptureParams,
		MaxStatementLen: e.cfg.MaxStatementLen,
	})
	un := &unit{u: u}

	if existing, ok := e.reg.attach(contextID, un); !ok {
		existing.u.AddWarning(model.WarnScope, "begin for context "+contextID+" while a unit was already active")
		e.record(existing, trail.Event{
			Kind:     trail.KindWarning,
			WarnKind: string(model.WarnScope),
			Message:  "begin while a unit was already active",
		})
		e.logf("begin ignored: unit already active for context %s", contextID)
		return existing.u
	}

	if e.cfg.TrailDir != "" {
		w, err := trail.Create(filepath.Join(e.cfg.TrailDir, u.ID()+".jsonl"))
		if err != nil {
			u.AddWarning(model.WarnDegraded, "trail recording unavailable: "+err.Error())
			e.logf("trail disabled for unit %s: %v", u.ID(), err)
		} else {
			un.w = w
		}
	}

	if ctx != nil {
		un.stop = context.AfterFunc(ctx, func() {
			if e.reg.detachIf(contextID, un) {
				un.u.Abandon()
				if un.w != nil {
					un.w.Close()
				}
				e.logf("unit %s abandoned: context %s cancelled before end", u.ID(), contextID)
			}
		})
	}

	e.record(un, trail.Event{
		Kind:      trail.KindBegin,
		ContextID: contextID,
		Timestamp: now.Format(trail.TimestampFormat),
	})
	return u
}

// End finalizes the unit registered for contextID and returns its report.
// End without a matching begin yields a valid empty report carrying a
// scope violation, never an error.
func (e *Engine) End(contextID string) *report.Report {
	now := time.Now().UTC()

	un, ok := e.reg.detach(contextID)
	if !ok {
		e.logf("end without begin for context %s", contextID)
		orphan := uow.New(uow.NewUnitID(), contextID, now, uow.Options{})
		orphan.AddWarning(model.WarnScope, "end without a matching begin for context "+contextID)
		return orphan.Finalize(now)
	}

	if un.stop != nil {
		un.stop()
	}
	e.record(un, trail.Event{Kind: trail.KindEnd, Timestamp: now.Format(trail.TimestampFormat)})
	r := un.u.Finalize(now)
	if un.w != nil {
		if err := un.w.Close(); err != nil {
			e.logf("trail close failed for unit %s: %v", un.u.ID(), err)
		}
	}

	if r == nil {
		// The unit was abandoned out of band; report that instead of nil.
		orphan := uow.New(un.u.ID(), contextID, un.u.StartedAt(), uow.Options{})
		orphan.AddWarning(model.WarnScope, "unit was abandoned before end")
		return orphan.Finalize(now)
	}
	return r
}

// StartQuery captures a query against the context's active unit. The
// origin is resolved here, synchronously: this is the forcing moment and
// the stack will not survive it. Captured parameters are masked before
// they reach the unit or the trail. Without an active unit the query is
// not captured and the zero token is returned.
func (e *Engine) StartQuery(contextID, statement string, params ...any) uow.Token {
	un, ok := e.reg.lookup(contextID)
	if !ok {
		return uow.Token{}
	}

	if e.cfg.CaptureParams {
		params = redact.Params(params)
	}
	o := e.resolver.Resolve(1)
	tok := un.u.StartQuery(statement, params, o, time.Now().UTC())
	if !tok.Valid() {
		e.logf("query capture dropped: unit %s already ended", un.u.ID())
		return tok
	}

	ev := trail.Event{
		Kind:      trail.KindQueryStart,
		QueryID:   tok.QueryID(),
		GroupSeq:  tok.GroupSeq(),
		Statement: statement,
		Origin:    &o,
	}
	if e.cfg.CaptureParams {
		ev.Params = params
	}
	e.record(un, ev)
	return tok
}

// EndQuery completes a captured query with the result metadata supplied by
// the integration layer. Timing is measured from the token's start.
func (e *Engine) EndQuery(tok uow.Token, res uow.Result) {
	un, ok := e.unitFor(tok)
	if !ok {
		return
	}

	d := time.Since(tok.StartedAt())
	if !tok.Unit().EndQuery(tok, res, d) {
		e.logf("end-query dropped: unit %s already ended", tok.Unit().ID())
		return
	}
	e.record(un, trail.Event{
		Kind:       trail.KindQueryEnd,
		QueryID:    tok.QueryID(),
		Shape:      res.Shape,
		Columns:    res.Columns,
		Rows:       res.Rows,
		DurationUS: d.Microseconds(),
	})
}

// BindRecord registers a fetched record against the token's group.
func (e *Engine) BindRecord(tok uow.Token, id model.RecordIdentity) {
	un, ok := e.unitFor(tok)
	if !ok {
		return
	}
	if !tok.Unit().Bind(tok, id) {
		return
	}
	e.record(un, trail.Event{
		Kind:    trail.KindBind,
		QueryID: tok.QueryID(),
		Shape:   id.Shape,
		Key:     id.Key,
	})
}

// FieldRead marks a field of an already-bound record as consumed.
func (e *Engine) FieldRead(contextID string, id model.RecordIdentity, field string) {
	un, ok := e.reg.lookup(contextID)
	if !ok {
		return
	}
	if !un.u.FieldRead(id, field) {
		if !un.u.Ended() {
			e.logf("field read dropped: record %s not bound in unit %s", id, un.u.ID())
		}
		return
	}
	e.record(un, trail.Event{
		Kind:  trail.KindFieldRead,
		Shape: id.Shape,
		Key:   id.Key,
		Field: field,
	})
}

// RelationStart opens a relation scope owned by the record's group.
// Queries started before the matching RelationEnd become dependents.
func (e *Engine) RelationStart(contextID string, owner model.RecordIdentity) {
	un, ok := e.reg.lookup(contextID)
	if !ok {
		return
	}
	un.u.RelationStart(owner)
	e.record(un, trail.Event{
		Kind:  trail.KindRelationStart,
		Shape: owner.Shape,
		Key:   owner.Key,
	})
}

// RelationEnd closes the innermost relation scope.
func (e *Engine) RelationEnd(contextID string) {
	un, ok := e.reg.lookup(contextID)
	if !ok {
		return
	}
	un.u.RelationEnd()
	e.record(un, trail.Event{Kind: trail.KindRelationEnd})
}

// Observer returns the capability object for the token's group. The zero
// observer (from an invalid token) is safe to use and does nothing.
func (e *Engine) Observer(tok uow.Token) *Observer {
	un, ok := e.unitFor(tok)
	if !ok {
		return nil
	}
	return &Observer{e: e, un: un, g: tok.Group()}
}

// Active returns the number of currently registered units.
func (e *Engine) Active() int {
	return e.reg.size()
}

// Resolver exposes the origin resolver for integrations that capture
// outside the query path.
func (e *Engine) Resolver() *origin.Resolver {
	return e.resolver
}

// unitFor maps a token back to its registered unit. Stale tokens from a
// previous unit of the same context are dropped.
func (e *Engine) unitFor(tok uow.Token) (*unit, bool) {
	if !tok.Valid() {
		return nil, false
	}
	un, ok := e.reg.lookup(tok.Unit().ContextID())
	if !ok || un.u != tok.Unit() {
		return nil, false
	}
	return un, true
}

func (e *Engine) record(un *unit, ev trail.Event) {
	if un.w == nil {
		return
	}
	ev.UnitID = un.u.ID()
	if err := un.w.Record(ev); err != nil {
		e.logf("trail write failed for unit %s: %v", un.u.ID(), err)
	}
}

func (e *Engine) logf(format string, args ...any) {
	if e.diag == nil {
		return
	}
	e.diagMu.Lock()
	defer e.diagMu.Unlock()
	fmt.Fprintf(e.diag, "ormcost: "+format+"\n", args...)
}

// Observer is the capability handed to record-materialization code: it can
// bind fetched records to its group and mark fields consumed, and nothing
// else. Every method is a no-op once the unit ends.
type Observer struct {
	e  *Engine
	un *unit
	g  *model.QueryGroup
}

// Bind registers a fetched record against the observer's group.
func (o *Observer) Bind(id model.RecordIdentity) {
	if o == nil {
		return
	}
	if !o.un.u.BindTo(o.g, id) {
		return
	}
	o.e.record(o.un, trail.Event{
		Kind:     trail.KindBind,
		GroupSeq: o.g.Seq,
		Shape:    id.Shape,
		Key:      id.Key,
	})
}

// FieldRead marks a field of a record as consumed, binding the record to
// the observer's group first if it was never bound.
func (o *Observer) FieldRead(id model.RecordIdentity, field string) {
	if o == nil {
		return
	}
	if !o.un.u.ObserveField(o.g, id, field) {
		return
	}
	o.e.record(o.un, trail.Event{
		Kind:     trail.KindFieldRead,
		GroupSeq: o.g.Seq,
		Shape:    id.Shape,
		Key:      id.Key,
		Field:    field,
	})
}
