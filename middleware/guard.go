package middleware

import (
	"context"
	"net/http"
	"strings"

	authkit "github.com/tradeyard/authkit"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the claims injected by [Guard].
func ClaimsFromContext(ctx context.Context) (*authkit.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*authkit.Claims)
	return claims, ok
}

// Guard validates the Authorization bearer token and injects the
// resulting claims. Request signals (IP, User-Agent, Accept headers)
// are attached to the context so downstream engine calls can derive
// device fingerprints.
func Guard(engine *authkit.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := WithRequestSignals(r.Context(), r)
			claims, err := engine.Authenticate(ctx, token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx = context.WithValue(ctx, claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithRequestSignals copies fingerprint and audit signals from the
// request into the context.
func WithRequestSignals(ctx context.Context, r *http.Request) context.Context {
	ctx = authkit.WithClientIP(ctx, clientIP(r))
	ctx = authkit.WithUserAgent(ctx, r.UserAgent())
	ctx = authkit.WithAcceptLanguage(ctx, r.Header.Get("Accept-Language"))
	ctx = authkit.WithAcceptEncoding(ctx, r.Header.Get("Accept-Encoding"))
	return ctx
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func clientIP(r *http.Request) string {
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}
