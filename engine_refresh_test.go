package authkit_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	authkit "github.com/tradeyard/authkit"
)

func TestRefreshRotation(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	reg := register(t, env, "ada@example.com")

	next, err := env.engine.Refresh(ctx, reg.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if next.Tokens.RefreshToken == reg.Tokens.RefreshToken {
		t.Fatal("rotation must issue a new refresh token")
	}
	if next.ChainID != reg.ChainID {
		t.Fatal("rotation must stay on the same chain")
	}
	if next.SessionID == reg.SessionID {
		t.Fatal("rotation must issue a new session ID")
	}

	// The rotated token keeps working down the chain.
	if _, err := env.engine.Refresh(ctx, next.Tokens.RefreshToken); err != nil {
		t.Fatalf("second rotation failed: %v", err)
	}
}

func TestRefreshGarbageToken(t *testing.T) {
	env := newTestEngine(t, nil)

	for _, bad := range []string{"", "garbage", "AAAA.BBBB"} {
		if _, err := env.engine.Refresh(context.Background(), bad); !errors.Is(err, authkit.ErrRefreshInvalid) {
			t.Fatalf("Refresh(%q) = %v, want ErrRefreshInvalid", bad, err)
		}
	}
}

func TestRefreshReuseKillsChain(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	reg := register(t, env, "ada@example.com")

	next, err := env.engine.Refresh(ctx, reg.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	// Replaying the retired token is theft evidence.
	if _, err := env.engine.Refresh(ctx, reg.Tokens.RefreshToken); !errors.Is(err, authkit.ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid on replay, got %v", err)
	}

	// The whole chain is dead and the account is flagged; even the
	// legitimate successor token is refused until a fresh login.
	if _, err := env.engine.Refresh(ctx, next.Tokens.RefreshToken); !errors.Is(err, authkit.ErrReauthRequired) {
		t.Fatalf("expected ErrReauthRequired, got %v", err)
	}

	// A password login clears the flag and restores service.
	fresh, err := env.engine.Login(ctx, "ada@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, fresh.Tokens.RefreshToken); err != nil {
		t.Fatalf("refresh after fresh login failed: %v", err)
	}
}

func TestRefreshAfterLogout(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	reg := register(t, env, "ada@example.com")

	if err := env.engine.Logout(ctx, reg.Tokens.RefreshToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, reg.Tokens.RefreshToken); !errors.Is(err, authkit.ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid, got %v", err)
	}
}

func TestRefreshRateLimited(t *testing.T) {
	env := newTestEngine(t, func(cfg *authkit.Config) {
		cfg.Security.MaxRefreshAttempts = 2
	})
	ctx := context.Background()

	reg := register(t, env, "ada@example.com")

	token := reg.Tokens.RefreshToken
	for i := 0; i < 2; i++ {
		next, err := env.engine.Refresh(ctx, token)
		if err != nil {
			t.Fatalf("rotation %d failed: %v", i, err)
		}
		token = next.Tokens.RefreshToken
	}

	// The chain's budget is spent; rotating resets nothing.
	if _, err := env.engine.Refresh(ctx, token); !errors.Is(err, authkit.ErrRefreshRateLimited) {
		t.Fatalf("expected ErrRefreshRateLimited, got %v", err)
	}
}

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	reg := register(t, env, "ada@example.com")

	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := env.engine.Refresh(ctx, reg.Tokens.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, authkit.ErrRefreshInvalid), errors.Is(err, authkit.ErrReauthRequired):
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one winning rotation, got %d", success)
	}
}
