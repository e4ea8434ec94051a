package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	authkit "github.com/tradeyard/authkit"
	"github.com/tradeyard/authkit/accountmem"
	"github.com/tradeyard/authkit/jwt"
	"github.com/tradeyard/authkit/middleware"
	"github.com/tradeyard/authkit/password"
	"github.com/tradeyard/authkit/role"
)

func newGuardedEngine(t *testing.T) *authkit.Engine {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	cfg := authkit.DefaultConfig()
	cfg.JWT.SigningMethod = jwt.MethodHS256
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password = password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}

	engine, err := authkit.New().
		WithConfig(cfg).
		WithRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()})).
		WithAccountStore(accountmem.New()).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func registerToken(t *testing.T, engine *authkit.Engine, email string, roles ...string) string {
	t.Helper()

	result, err := engine.Register(context.Background(), authkit.RegisterInput{
		Email:    email,
		Password: "correct horse battery",
		Roles:    roles,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return result.Tokens.AccessToken
}

func TestGuardRejectsMissingAndBadTokens(t *testing.T) {
	engine := newGuardedEngine(t)

	handler := middleware.Guard(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	for _, header := range []string{"", "Bearer ", "Basic abc", "Bearer not.a.token"} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("Authorization %q: got status %d, want 401", header, rec.Code)
		}
	}
}

func TestGuardInjectsClaims(t *testing.T) {
	engine := newGuardedEngine(t)
	token := registerToken(t, engine, "ada@example.com")

	var got *authkit.Claims
	handler := middleware.Guard(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.ClaimsFromContext(r.Context())
		if !ok {
			t.Fatal("claims missing from context")
		}
		got = claims
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	if got == nil || got.Email != "ada@example.com" {
		t.Fatalf("unexpected claims %+v", got)
	}
}

func TestRequireRoleMiddleware(t *testing.T) {
	engine := newGuardedEngine(t)
	userToken := registerToken(t, engine, "ada@example.com")
	adminToken := registerToken(t, engine, "root@example.com", "admin")

	handler := middleware.Guard(engine)(
		middleware.RequireRole(engine, role.Admin)(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("user: got status %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin: got status %d, want 200", rec.Code)
	}
}

func TestRequireRoleWithoutGuard(t *testing.T) {
	engine := newGuardedEngine(t)

	handler := middleware.RequireRole(engine, role.Admin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401", rec.Code)
	}
}
