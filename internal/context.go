package voice

import "context"

type contextKey int

const ctxKeyMeta contextKey = 0

// requestMeta bundles per-request values into a single context allocation.
// The CallID field is set later by the WebSocket handler via mutation of the
// same pointer, avoiding a second context.WithValue + Request.WithContext.
type requestMeta struct {
	RequestID string
	CallID    string
}

// metaFromContext returns the requestMeta stored in ctx, or nil.
func metaFromContext(ctx context.Context) *requestMeta {
	m, _ := ctx.Value(ctxKeyMeta).(*requestMeta)
	return m
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.RequestID
	}
	return ""
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{RequestID: id})
}

// CallIDFromContext extracts the call ID from context.
func CallIDFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.CallID
	}
	return ""
}

// ContextWithCallID stores the call ID in the existing requestMeta if present,
// avoiding a new context.WithValue allocation. Falls back to creating new
// metadata if none exists (e.g., in tests).
func ContextWithCallID(ctx context.Context, id string) context.Context {
	if m := metaFromContext(ctx); m != nil {
		m.CallID = id
		return ctx
	}
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{CallID: id})
}
