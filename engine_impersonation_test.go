package authkit_test

import (
	"context"
	"errors"
	"testing"

	authkit "github.com/tradeyard/authkit"
)

func impersonationSetup(t *testing.T, env *testEnv) (adminClaims *authkit.Claims, userID string) {
	t.Helper()

	admin := register(t, env, "root@example.com", "admin")
	user := register(t, env, "ada@example.com")
	return authenticate(t, env, admin.Tokens.AccessToken), user.AccountID
}

func TestImpersonate(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	adminClaims, userID := impersonationSetup(t, env)

	result, err := env.engine.Impersonate(ctx, adminClaims, userID)
	if err != nil {
		t.Fatalf("Impersonate failed: %v", err)
	}
	if result.AccountID != userID {
		t.Fatal("impersonation must act as the target account")
	}

	claims := authenticate(t, env, result.Tokens.AccessToken)
	if !claims.Impersonated() {
		t.Fatal("impersonated session must carry the marker")
	}
	if claims.ImpersonatedBy != adminClaims.AccountID {
		t.Fatalf("expected operator %q, got %q", adminClaims.AccountID, claims.ImpersonatedBy)
	}
	if claims.AccountID != userID {
		t.Fatal("claims must resolve to the target account")
	}

	// The marker survives rotation.
	rotated, err := env.engine.Refresh(ctx, result.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if c := authenticate(t, env, rotated.Tokens.AccessToken); c.ImpersonatedBy != adminClaims.AccountID {
		t.Fatal("impersonation marker must survive rotation")
	}
}

func TestImpersonatedSessionCannotMutate(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	adminClaims, userID := impersonationSetup(t, env)

	result, err := env.engine.Impersonate(ctx, adminClaims, userID)
	if err != nil {
		t.Fatalf("Impersonate failed: %v", err)
	}
	claims := authenticate(t, env, result.Tokens.AccessToken)

	if err := env.engine.ChangePassword(ctx, claims, "correct horse battery", "sneaky new password"); !errors.Is(err, authkit.ErrImpersonationRestricted) {
		t.Fatalf("expected ErrImpersonationRestricted, got %v", err)
	}
	if err := env.engine.TrustDevice(ctx, claims, "fp"); !errors.Is(err, authkit.ErrImpersonationRestricted) {
		t.Fatalf("expected ErrImpersonationRestricted, got %v", err)
	}
	if err := env.engine.RequestRole(ctx, claims, "seller"); !errors.Is(err, authkit.ErrImpersonationRestricted) {
		t.Fatalf("expected ErrImpersonationRestricted, got %v", err)
	}
	if _, err := env.engine.Impersonate(ctx, claims, adminClaims.AccountID); !errors.Is(err, authkit.ErrImpersonationRestricted) {
		t.Fatalf("nested impersonation must fail, got %v", err)
	}
}

func TestImpersonateRestrictions(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	adminClaims, userID := impersonationSetup(t, env)
	otherAdmin := register(t, env, "root2@example.com", "admin")

	// Admins cannot be targeted.
	if _, err := env.engine.Impersonate(ctx, adminClaims, otherAdmin.AccountID); !errors.Is(err, authkit.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	// Nor oneself.
	if _, err := env.engine.Impersonate(ctx, adminClaims, adminClaims.AccountID); !errors.Is(err, authkit.ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation, got %v", err)
	}
	// Non-admins cannot impersonate at all.
	user := register(t, env, "bob@example.com")
	userClaims := authenticate(t, env, user.Tokens.AccessToken)
	if _, err := env.engine.Impersonate(ctx, userClaims, userID); !errors.Is(err, authkit.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	// Disabled targets are refused.
	if err := env.store.SetStatus(ctx, userID, authkit.StatusDisabled, 1); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if _, err := env.engine.Impersonate(ctx, adminClaims, userID); !errors.Is(err, authkit.ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestImpersonateDisabledByConfig(t *testing.T) {
	env := newTestEngine(t, func(cfg *authkit.Config) {
		cfg.Impersonation.Enabled = false
	})

	adminClaims, userID := impersonationSetup(t, env)
	if _, err := env.engine.Impersonate(context.Background(), adminClaims, userID); !errors.Is(err, authkit.ErrImpersonationDisabled) {
		t.Fatalf("expected ErrImpersonationDisabled, got %v", err)
	}
}

func TestEndImpersonation(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	adminClaims, userID := impersonationSetup(t, env)

	result, err := env.engine.Impersonate(ctx, adminClaims, userID)
	if err != nil {
		t.Fatalf("Impersonate failed: %v", err)
	}

	if err := env.engine.EndImpersonation(ctx, adminClaims, result.Tokens.RefreshToken); err != nil {
		t.Fatalf("EndImpersonation failed: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, result.Tokens.RefreshToken); err == nil {
		t.Fatal("ended impersonation chain must not refresh")
	}
}
