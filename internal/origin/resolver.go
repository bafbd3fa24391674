// Package origin resolves the host source location that forced a query by
// walking the runtime call stack at the forcing moment and skipping
// instrumentation frames.
package origin

import (
	"runtime"
	"strings"

	"github.com/krishiv1545/django-orm-cost/internal/model"
)

// maxDepth bounds the stack walk. Queries forced deeper than this from the
// nearest host frame resolve as unattributed rather than walking further.
const maxDepth = 64

// alwaysInternal are import paths that never count as host code.
var alwaysInternal = []string{"runtime", "testing", "reflect"}

// Resolver classifies stack frames as host code or instrumentation
// internals using configured prefixes. A prefix matches a frame when it is
// a path segment prefix of the frame's function import path or a plain
// prefix of the frame's source file path.
type Resolver struct {
	prefixes []string
}

// NewResolver builds a Resolver over the given internal prefixes.
func NewResolver(prefixes []string) *Resolver {
	r := &Resolver{prefixes: make([]string, 0, len(prefixes))}
	for _, p := range prefixes {
		if p = strings.TrimSpace(p); p != "" {
			r.prefixes = append(r.prefixes, p)
		}
	}
	return r
}

// Resolve walks the stack and returns the innermost frame that is not
// internal. skip drops that many additional frames above Resolve itself.
// The walk happens synchronously: by the time a lazily-forced query
// completes, the forcing stack is already gone.
func (r *Resolver) Resolve(skip int) model.Origin {
	var pcs [maxDepth]uintptr
	n := runtime.Callers(2+skip, pcs[:])
	if n == 0 {
		return model.Unattributed()
	}

	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !r.internal(frame.Function, frame.File) {
			return model.Origin{
				File:       frame.File,
				Line:       frame.Line,
				Function:   frame.Function,
				Attributed: true,
			}
		}
		if !more {
			return model.Unattributed()
		}
	}
}

func (r *Resolver) internal(function, file string) bool {
	for _, p := range alwaysInternal {
		if matchesImportPath(function, p) {
			return true
		}
	}
	for _, p := range r.prefixes {
		if matchesImportPath(function, p) || strings.HasPrefix(file, p) {
			return true
		}
	}
	return false
}

// matchesImportPath reports whether pfx covers the function's import
// path: the package itself or any package under it. External test
// packages under a covered tree stay host code, so a query forced from
// ".../sqltrace_test" attributes to the test file even though
// ".../sqltrace" is instrumented. Naming the _test path itself still
// matches exactly.
func matchesImportPath(function, pfx string) bool {
	pkg := pkgPath(function)
	if pkg == pfx {
		return true
	}
	return strings.HasPrefix(pkg, pfx+"/") && !strings.HasSuffix(pkg, "_test")
}

// pkgPath extracts the import path from a runtime function name such as
// "example.com/app/db.(*Repo).Load". Type arguments are cut first so a
// slash inside them cannot shift the package boundary.
func pkgPath(function string) string {
	if i := strings.Index(function, "["); i >= 0 {
		function = function[:i]
	}
	slash := strings.LastIndex(function, "/")
	dot := strings.Index(function[slash+1:], ".")
	if dot < 0 {
		return function
	}
	return function[:slash+1+dot]
}
