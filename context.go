package authclient

import "context"

type requestIDContextKey struct{}

// WithRequestID pins the request ID the client sends for every request made
// with ctx. Without it each request gets a fresh random ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// RequestIDFromContext returns the ID set by WithRequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}

	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id, id != ""
}
