package ormcost

import "context"

type contextIDKey struct{}

// WithContextID returns a context carrying the unit-of-work context ID.
// Integrations like the sqltrace driver read it back with ContextID.
func WithContextID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextIDKey{}, id)
}

// ContextID returns the unit-of-work context ID carried by ctx, or "".
func ContextID(ctx context.Context) string {
	id, _ := ctx.Value(contextIDKey{}).(string)
	return id
}
