// Package ormcost provides in-process query cost attribution for Go data
// layers. It captures every database query inside a unit of work (typically
// one HTTP request), resolves the application code that forced each query
// by walking the stack at the forcing moment, groups dependent queries
// under the primary that loaded their owning records, and compares the
// columns each query fetched against the fields the application actually
// read.
//
// Usage:
//
//	oc, err := ormcost.New(ormcost.WithCaptureParams(true))
//	oc.BeginUnitOfWork(ctx, requestID)
//	tok := oc.StartQuery(requestID, "SELECT id, name, email FROM users")
//	oc.EndQuery(tok, ormcost.Result{Shape: "users", Columns: []string{"id", "name", "email"}, Rows: 10})
//	oc.Observer(tok).Bind(ormcost.RecordID{Shape: "users", Key: "7"})
//	report := oc.EndUnitOfWork(requestID)
//
// The SDK links directly against internal packages for zero-subprocess
// overhead. External users import github.com/krishiv1545/django-orm-cost/sdk/go/ormcost.
package ormcost
