// Package identity carries the resolved request identity through the core.
// It replaces the dynamic context bag of handler-attached fields with one
// typed structure passed by value; the core trusts it fully and performs no
// independent authorization.
package identity

import "context"

// RequestContext is everything the core may know about the caller.
type RequestContext struct {
	Identity  string
	Admin     bool
	RequestID string
	Livemode  bool
}

type contextKey struct{}

// NewContext attaches the request context.
func NewContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

// FromContext returns the attached request context, if any.
func FromContext(ctx context.Context) (RequestContext, bool) {
	rc, ok := ctx.Value(contextKey{}).(RequestContext)
	return rc, ok
}
