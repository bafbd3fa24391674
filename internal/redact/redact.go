// Package redact masks sensitive values in captured query parameters.
// Parameter capture is opt-in, but trail files and reports travel through
// shared inboxes, so captured values are masked unconditionally. Masking
// is pattern-based and applies to textual parameters only. Numbers, bools
// and timestamps pass through untouched so lookups stay debuggable.
package redact

import "regexp"

// Compiled patterns for sensitive parameter content.
var (
	// Email addresses.
	emailRe = regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`)

	// Credentials: key=value or key: value pairs where the key suggests a
	// secret. The key survives, the value does not.
	credKVRe = regexp.MustCompile(`(?i)\b((?:password|passwd|secret|token|api_key|apikey|auth|authorization)[ \t]*[=:][ \t]*)\S+`)

	// Bearer tokens as they appear in forwarded headers.
	bearerRe = regexp.MustCompile(`(?i)\b(bearer[ \t]+)\S+`)

	// Digit runs of card-number length. Only runs that pass the Luhn check
	// are masked, so numeric identifiers of similar length survive.
	cardRe = regexp.MustCompile(`\b\d{13,19}\b`)
)

// Mask replaces sensitive spans in s with "***".
func Mask(s string) string {
	s = credKVRe.ReplaceAllString(s, "${1}***")
	s = bearerRe.ReplaceAllString(s, "${1}***")
	s = emailRe.ReplaceAllString(s, "***")
	s = cardRe.ReplaceAllStringFunc(s, func(run string) string {
		if luhnValid(run) {
			return "***"
		}
		return run
	})
	return s
}

// Value masks textual parameter values. Driver parameters are limited to a
// handful of Go types; only string and []byte can carry free text.
func Value(v any) any {
	switch t := v.(type) {
	case string:
		return Mask(t)
	case []byte:
		return []byte(Mask(string(t)))
	default:
		return v
	}
}

// Params returns a masked copy of ps. The input slice is not modified.
func Params(ps []any) []any {
	if len(ps) == 0 {
		return nil
	}
	out := make([]any, len(ps))
	for i, p := range ps {
		out[i] = Value(p)
	}
	return out
}

// luhnValid reports whether the digit string satisfies the Luhn checksum.
func luhnValid(s string) bool {
	sum := 0
	double := false
	for i := len(s) - 1; i >= 0; i-- {
		d := int(s[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
