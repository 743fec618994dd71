// Package correlation carries the identifier that ties together every log
// line and span produced for one client request, across HTTP and MCP.
package correlation

import (
	"context"
	"strings"

	"github.com/rs/xid"
)

// Header is the HTTP header used to accept and echo correlation IDs.
const Header = "X-Correlation-Id"

// MaxIDLength defines the maximum number of characters accepted for correlation identifiers.
const MaxIDLength = 128

type contextKey struct{}

// Generate returns a new 20 character xid.
func Generate() string {
	return xid.New().String()
}

// Normalize validates and canonicalizes an external correlation identifier.
// Only printable ASCII is accepted.
func Normalize(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > MaxIDLength {
		return "", false
	}
	for _, r := range id {
		if r < 0x20 || r > 0x7e {
			return "", false
		}
	}
	return id, true
}

// FromHeader returns the normalized inbound ID or a freshly generated one.
func FromHeader(value string) string {
	if id, ok := Normalize(value); ok {
		return id
	}
	return Generate()
}

// WithID returns a child context carrying id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// ID returns the correlation ID stored on ctx, or "".
func ID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}
