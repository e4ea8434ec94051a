package authkit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	authkit "github.com/tradeyard/authkit"
	"github.com/tradeyard/authkit/accountmem"
	"github.com/tradeyard/authkit/federation"
	"github.com/tradeyard/authkit/jwt"
	"github.com/tradeyard/authkit/password"
	"github.com/tradeyard/authkit/role"
)

type testEnv struct {
	engine *authkit.Engine
	store  *accountmem.Store
	mr     *miniredis.Miniredis
	sink   *authkit.ChannelSink
}

func testConfig() authkit.Config {
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
	cfg.Impersonation.Enabled = true
	return cfg
}

func newTestEngine(t *testing.T, mutate func(*authkit.Config), providers ...federation.Provider) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	store := accountmem.New()
	sink := authkit.NewChannelSink(256)

	builder := authkit.New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccountStore(store).
		WithAuditSink(sink).
		WithFederationProviders(providers...)

	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, store: store, mr: mr, sink: sink}
}

func register(t *testing.T, env *testEnv, email string, roles ...string) *authkit.LoginResult {
	t.Helper()

	result, err := env.engine.Register(context.Background(), authkit.RegisterInput{
		Email:    email,
		Password: "correct horse battery",
		Name:     "Test Account",
		Roles:    roles,
	})
	if err != nil {
		t.Fatalf("Register(%s) failed: %v", email, err)
	}
	return result
}

func authenticate(t *testing.T, env *testEnv, accessToken string) *authkit.Claims {
	t.Helper()

	claims, err := env.engine.Authenticate(context.Background(), accessToken)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	return claims
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	reg := register(t, env, "ada@example.com")
	if reg.Tokens.AccessToken == "" || reg.Tokens.RefreshToken == "" || reg.Tokens.SessionToken == "" {
		t.Fatal("registration must issue the full token triple")
	}
	if !reg.RoleMask.Has(role.User) {
		t.Fatal("base-user role must be granted")
	}

	login, err := env.engine.Login(ctx, "Ada@Example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if login.AccountID != reg.AccountID {
		t.Fatal("login must resolve to the registered account")
	}
	if login.ChainID == reg.ChainID {
		t.Fatal("each login must open its own chain")
	}

	claims := authenticate(t, env, login.Tokens.AccessToken)
	if claims.AccountID != reg.AccountID || claims.Email != "ada@example.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.Impersonated() {
		t.Fatal("regular login must not carry an impersonation marker")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEngine(t, nil)

	register(t, env, "ada@example.com")

	_, err := env.engine.Register(context.Background(), authkit.RegisterInput{
		Email:    "ADA@example.com",
		Password: "another password here",
	})
	if !errors.Is(err, authkit.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestRegisterRejectsUnknownRole(t *testing.T) {
	env := newTestEngine(t, nil)

	_, err := env.engine.Register(context.Background(), authkit.RegisterInput{
		Email:    "ada@example.com",
		Password: "correct horse battery",
		Roles:    []string{"pirate"},
	})
	if !errors.Is(err, role.ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	env := newTestEngine(t, nil)

	_, err := env.engine.Register(context.Background(), authkit.RegisterInput{
		Email:    "ada@example.com",
		Password: "short",
	})
	if !errors.Is(err, authkit.ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	register(t, env, "ada@example.com")

	// Unknown account and wrong password are indistinguishable.
	if _, err := env.engine.Login(ctx, "ghost@example.com", "whatever here"); !errors.Is(err, authkit.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "ada@example.com", "wrong password!"); !errors.Is(err, authkit.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "not an email", "whatever here"); !errors.Is(err, authkit.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginDisabledAccount(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	reg := register(t, env, "ada@example.com")
	if err := env.store.SetStatus(ctx, reg.AccountID, authkit.StatusDisabled, 1); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}

	if _, err := env.engine.Login(ctx, "ada@example.com", "correct horse battery"); !errors.Is(err, authkit.ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}

	// A wrong password gets the same answer, so a disabled account never
	// confirms whether a guess was right.
	if _, err := env.engine.Login(ctx, "ada@example.com", "wrong password!"); !errors.Is(err, authkit.ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestLoginPasswordlessAccount(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	// Federated registration leaves the account without a password hash.
	err := env.store.CreateAccount(ctx, &authkit.AccountRecord{
		ID:       "fed-1",
		Email:    "ada@example.com",
		RoleMask: uint64(role.User),
		Status:   authkit.StatusActive,
		Version:  1,
	})
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	if _, err := env.engine.Login(ctx, "ada@example.com", "correct horse battery"); !errors.Is(err, authkit.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	claims := &authkit.Claims{AccountID: "fed-1"}
	if err := env.engine.ChangePassword(ctx, claims, "anything at all", "correct horse battery"); !errors.Is(err, authkit.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEngine(t, func(cfg *authkit.Config) {
		cfg.Security.MaxLoginAttempts = 1
	})
	ctx := context.Background()

	register(t, env, "ada@example.com")

	for i := 0; i < 2; i++ {
		if _, err := env.engine.Login(ctx, "ada@example.com", "wrong password!"); !errors.Is(err, authkit.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	// The window is exhausted; even the right password is refused.
	if _, err := env.engine.Login(ctx, "ada@example.com", "correct horse battery"); !errors.Is(err, authkit.ErrLoginRateLimited) {
		t.Fatalf("expected ErrLoginRateLimited, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	reg := register(t, env, "ada@example.com")
	claims := authenticate(t, env, reg.Tokens.AccessToken)

	if err := env.engine.ChangePassword(ctx, claims, "wrong password!", "brand new password"); !errors.Is(err, authkit.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	if err := env.engine.ChangePassword(ctx, claims, "correct horse battery", "brand new password"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	if _, err := env.engine.Login(ctx, "ada@example.com", "correct horse battery"); !errors.Is(err, authkit.ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "ada@example.com", "brand new password"); err != nil {
		t.Fatalf("new password must work: %v", err)
	}
}

func TestChangePasswordKeepsCallerChain(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	reg := register(t, env, "ada@example.com")
	other, err := env.engine.Login(ctx, "ada@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	claims := authenticate(t, env, reg.Tokens.AccessToken)
	if err := env.engine.ChangePassword(ctx, claims, "correct horse battery", "brand new password"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	// The caller's chain survives; the other chain is dead.
	if _, err := env.engine.Refresh(ctx, reg.Tokens.RefreshToken); err != nil {
		t.Fatalf("caller's refresh must survive: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, other.Tokens.RefreshToken); err == nil {
		t.Fatal("other chains must die on password change")
	}
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	env := newTestEngine(t, nil)

	if _, err := env.engine.Authenticate(context.Background(), "not.a.token"); !errors.Is(err, authkit.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAuthenticateSessionToken(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	reg := register(t, env, "ada@example.com")

	claims, err := env.engine.AuthenticateSession(ctx, reg.Tokens.SessionToken)
	if err != nil {
		t.Fatalf("AuthenticateSession failed: %v", err)
	}
	if claims.AccountID != reg.AccountID {
		t.Fatal("session token must resolve the account")
	}
	if claims.RoleMask != role.User {
		t.Fatal("session tokens carry no privileges beyond the base role")
	}

	// The access token is not a session token.
	if _, err := env.engine.AuthenticateSession(ctx, reg.Tokens.AccessToken); !errors.Is(err, authkit.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestRequireRole(t *testing.T) {
	env := newTestEngine(t, nil)

	admin := register(t, env, "root@example.com", "admin")
	claims := authenticate(t, env, admin.Tokens.AccessToken)

	if err := env.engine.RequireRole(claims, role.Admin); err != nil {
		t.Fatalf("admin must pass: %v", err)
	}
	if err := env.engine.RequireRole(claims, role.Seller); !errors.Is(err, authkit.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := env.engine.RequireAllRoles(claims, role.Admin|role.Seller); !errors.Is(err, authkit.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := env.engine.RequireAnyRole(claims, role.Seller, role.Admin); err != nil {
		t.Fatalf("any-of with admin must pass: %v", err)
	}
	if err := env.engine.RequireRole(nil, role.User); !errors.Is(err, authkit.ErrForbidden) {
		t.Fatalf("nil claims must be forbidden, got %v", err)
	}
}

func TestEngineClosedRejectsCalls(t *testing.T) {
	env := newTestEngine(t, nil)
	env.engine.Close()

	if _, err := env.engine.Login(context.Background(), "ada@example.com", "whatever here"); !errors.Is(err, authkit.ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}
