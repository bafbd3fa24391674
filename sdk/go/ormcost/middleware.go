package ormcost

import "net/http"

// Middleware returns an http.Handler that runs one unit of work per request.
// The context ID comes from the X-Request-ID header when present, so reports
// line up with existing request logs; otherwise one is generated. The
// request context carries the ID for integrations downstream, and the
// finished report goes to the WithReportHandler callback.
func (e *Engine) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = NewContextID()
		}

		ctx := WithContextID(r.Context(), id)
		e.BeginUnitOfWork(ctx, id)
		defer func() {
			if rep := e.EndUnitOfWork(id); rep != nil && e.onReport != nil {
				e.onReport(rep)
			}
		}()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
