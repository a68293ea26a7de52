package authorization

import "regexp"

// idempotencyKeyPattern is the configured key shape: printable,
// reasonably bounded, no path/URL-hostile characters since keys flow
// into URLs and log lines unescaped.
var idempotencyKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_\-:.]{8,128}$`)

// ValidIdempotencyKey reports whether key meets the configured shape.
func ValidIdempotencyKey(key string) bool {
	return idempotencyKeyPattern.MatchString(key)
}
