// Package requestid tags each management API request with a correlation
// id, carried through context and echoed in the X-Request-ID header so
// log lines and problem responses can be tied back to one call.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

// Header is the response header the id is echoed in.
const Header = "X-Request-ID"

type ctxKey struct{}

// WithRequestID returns a context carrying the given id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the id carried by ctx, minting one if absent so
// callers always have something to log.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}

// New mints an id and returns the enriched context alongside it.
func New(ctx context.Context) (context.Context, string) {
	id := uuid.New().String()
	return WithRequestID(ctx, id), id
}
