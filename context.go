package authcore

import "context"

type contextKey int

const (
	ctxKeyClientIP contextKey = iota
	ctxKeyUserAgent
)

// WithClientIP returns a context carrying the caller's IP for session records,
// rate limiting, and audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyClientIP, ip)
}

// ClientIPFromContext extracts the client IP set by [WithClientIP]; empty when
// absent.
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(ctxKeyClientIP).(string)
	return ip
}

// WithUserAgent returns a context carrying the caller's user agent for session
// records and audit events.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ctxKeyUserAgent, ua)
}

// UserAgentFromContext extracts the user agent set by [WithUserAgent]; empty
// when absent.
func UserAgentFromContext(ctx context.Context) string {
	ua, _ := ctx.Value(ctxKeyUserAgent).(string)
	return ua
}
