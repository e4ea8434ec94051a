package authkit

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type acceptLanguageContextKey struct{}
type acceptEncodingContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The engine uses
// it for per-IP rate limiting, audit records, and device fingerprints.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx. Used for
// device fingerprints and the device registry.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithAcceptLanguage attaches the Accept-Language header to ctx as a
// fingerprint signal.
func WithAcceptLanguage(ctx context.Context, value string) context.Context {
	return context.WithValue(ctx, acceptLanguageContextKey{}, value)
}

// WithAcceptEncoding attaches the Accept-Encoding header to ctx as a
// fingerprint signal.
func WithAcceptEncoding(ctx context.Context, value string) context.Context {
	return context.WithValue(ctx, acceptEncodingContextKey{}, value)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func acceptLanguageFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	value, _ := ctx.Value(acceptLanguageContextKey{}).(string)
	return value
}

func acceptEncodingFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	value, _ := ctx.Value(acceptEncodingContextKey{}).(string)
	return value
}
