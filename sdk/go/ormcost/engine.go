package ormcost

import (
	"context"
	"fmt"

	"github.com/krishiv1545/django-orm-cost/internal/config"
	"github.com/krishiv1545/django-orm-cost/internal/engine"
	"github.com/krishiv1545/django-orm-cost/internal/model"
	"github.com/krishiv1545/django-orm-cost/internal/uow"
)

// Engine captures and attributes query activity per unit of work.
// Thread-safe for concurrent units.
type Engine struct {
	eng      *engine.Engine
	onReport func(*Report)
}

// New creates an Engine with the given options.
func New(opts ...Option) (*Engine, error) {
	var ec engineConfig
	for _, o := range opts {
		o(&ec)
	}

	var capture *config.Config
	if ec.config != nil {
		capture = config.DefaultConfig()
		capture.CaptureParams = ec.config.CaptureParams
		capture.TrailDir = ec.config.TrailDir
		capture.InternalPrefixes = ec.config.InternalPrefixes
		if ec.config.MaxStatementLen != 0 {
			capture.MaxStatementLen = ec.config.MaxStatementLen
		}
	} else {
		loaded, err := config.LoadConfig(ec.configPath)
		if err != nil {
			return nil, fmt.Errorf("ormcost: load config: %w", err)
		}
		capture = loaded
	}

	if ec.captureParams != nil {
		capture.CaptureParams = *ec.captureParams
	}
	if ec.maxStatementLen != nil {
		capture.MaxStatementLen = *ec.maxStatementLen
	}
	if ec.trailDir != nil {
		capture.TrailDir = *ec.trailDir
	}
	capture.InternalPrefixes = append(capture.InternalPrefixes, ec.prefixes...)

	eng, err := engine.New(engine.Config{Capture: capture, Diag: ec.diag})
	if err != nil {
		return nil, fmt.Errorf("ormcost: %w", err)
	}

	return &Engine{eng: eng, onReport: ec.onReport}, nil
}

// Token identifies one captured query between StartQuery and EndQuery.
// The zero Token is valid to pass around and is silently dropped.
type Token struct {
	tok uow.Token
}

// Valid reports whether the token refers to a captured query.
func (t Token) Valid() bool { return t.tok.Valid() }

// Result carries what the integration layer learned when a query finished.
// Columns nil means the driver could not declare the fetched columns.
type Result struct {
	Shape   string
	Columns []string
	Rows    int
}

// RecordID identifies one fetched record: its shape (table, model name)
// plus a primary key rendering.
type RecordID struct {
	Shape string
	Key   string
}

// BeginUnitOfWork opens a unit of work for contextID. When ctx is cancelled
// before EndUnitOfWork the unit is abandoned and produces no report. A
// nested begin for the same contextID keeps the original unit and records
// a scope violation warning on it.
func (e *Engine) BeginUnitOfWork(ctx context.Context, contextID string) {
	e.eng.Begin(ctx, contextID)
}

// EndUnitOfWork finalizes the unit registered for contextID and returns its
// report. End without a matching begin returns a valid report carrying a
// scope violation warning.
func (e *Engine) EndUnitOfWork(contextID string) *Report {
	return toReport(e.eng.End(contextID))
}

// StartQuery captures a query start. The origin is resolved here,
// synchronously, because the forcing stack is gone once this returns.
// Without an active unit for contextID the zero Token is returned.
func (e *Engine) StartQuery(contextID, statement string, params ...any) Token {
	return Token{tok: e.eng.StartQuery(contextID, statement, params...)}
}

// EndQuery completes a captured query with the result metadata.
func (e *Engine) EndQuery(t Token, res Result) {
	e.eng.EndQuery(t.tok, uow.Result{Shape: res.Shape, Columns: res.Columns, Rows: res.Rows})
}

// Observer returns the capability object for the token's group. The nil
// observer (from an invalid token) is safe to use and does nothing.
func (e *Engine) Observer(t Token) *RecordObserver {
	obs := e.eng.Observer(t.tok)
	if obs == nil {
		return nil
	}
	return &RecordObserver{obs: obs}
}

// OnFieldRead marks a field of an already-bound record as consumed.
func (e *Engine) OnFieldRead(contextID string, id RecordID, field string) {
	e.eng.FieldRead(contextID, model.RecordIdentity{Shape: id.Shape, Key: id.Key}, field)
}

// OnRelationStart opens a relation scope owned by the given record.
// Queries started before the matching OnRelationEnd are grouped as
// dependents of the query that loaded the owner.
func (e *Engine) OnRelationStart(contextID string, owner RecordID) {
	e.eng.RelationStart(contextID, model.RecordIdentity{Shape: owner.Shape, Key: owner.Key})
}

// OnRelationEnd closes the innermost relation scope.
func (e *Engine) OnRelationEnd(contextID string) {
	e.eng.RelationEnd(contextID)
}

// Active returns the number of currently open units of work.
func (e *Engine) Active() int {
	return e.eng.Active()
}

// NewContextID generates a context ID for hosts that have no request ID of
// their own.
func NewContextID() string {
	return uow.NewContextID()
}

// RecordObserver binds fetched records to one query group and marks their
// fields consumed. Every method is a no-op once the unit ends, and the nil
// observer is safe to call.
type RecordObserver struct {
	obs *engine.Observer
}

// Bind registers a fetched record against the observer's group.
func (o *RecordObserver) Bind(id RecordID) {
	if o == nil {
		return
	}
	o.obs.Bind(model.RecordIdentity{Shape: id.Shape, Key: id.Key})
}

// FieldRead marks a field of a record as consumed, binding the record to
// the observer's group first if it was never bound.
func (o *RecordObserver) FieldRead(id RecordID, field string) {
	if o == nil {
		return
	}
	o.obs.FieldRead(model.RecordIdentity{Shape: id.Shape, Key: id.Key}, field)
}
