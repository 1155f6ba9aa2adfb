package store

import "context"

type contextKey string

// SessionIDKey is the context key for the caller's session id. The session
// id scopes per-owner limits and the notification pull channel.
const SessionIDKey contextKey = "tamcp_session_id"

// AnonymousSession is used when the caller supplied no session id.
const AnonymousSession = "anonymous"

// WithSessionID returns a new context carrying the given session id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}

// SessionIDFromContext extracts the session id from context, defaulting to
// AnonymousSession when absent or empty.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(SessionIDKey).(string); ok && v != "" {
		return v
	}
	return AnonymousSession
}
