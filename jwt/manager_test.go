package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"
)

func hsConfig() Config {
	return Config{
		AccessTTL:  time.Minute,
		SessionTTL: time.Minute,
		Method:     MethodHS256,
		PrivateKey: []byte("0123456789abcdef0123456789abcdef"),
		Issuer:     "test",
	}
}

func newHSManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(hsConfig())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestAccessTokenRoundtrip(t *testing.T) {
	m := newHSManager(t)

	token, err := m.SignAccess("acct-1", "a@example.com", 0b1001, "sess-1", "")
	if err != nil {
		t.Fatalf("SignAccess failed: %v", err)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if claims.AccountID != "acct-1" || claims.SessionID != "sess-1" {
		t.Fatalf("unexpected identity %+v", claims)
	}
	if claims.RoleMask != 0b1001 {
		t.Fatalf("unexpected role mask %b", claims.RoleMask)
	}
	if claims.ImpersonatedBy != "" {
		t.Fatal("unexpected impersonation marker")
	}
}

func TestImpersonationClaimSurvives(t *testing.T) {
	m := newHSManager(t)

	token, err := m.SignAccess("victim", "v@example.com", 1, "sess-9", "operator-7")
	if err != nil {
		t.Fatalf("SignAccess failed: %v", err)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if claims.ImpersonatedBy != "operator-7" {
		t.Fatalf("expected impersonation marker, got %q", claims.ImpersonatedBy)
	}
}

func TestTokenTypeStrictness(t *testing.T) {
	m := newHSManager(t)

	access, err := m.SignAccess("acct-1", "", 1, "sess-1", "")
	if err != nil {
		t.Fatalf("SignAccess failed: %v", err)
	}
	session, err := m.SignSession("acct-1", "sess-1")
	if err != nil {
		t.Fatalf("SignSession failed: %v", err)
	}

	if _, err := m.ParseSession(access); err == nil {
		t.Fatal("access token must not verify as session token")
	}
	if _, err := m.ParseAccess(session); err == nil {
		t.Fatal("session token must not verify as access token")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	cfg := hsConfig()
	cfg.AccessTTL = time.Millisecond
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	token, err := m.SignAccess("acct-1", "", 1, "sess-1", "")
	if err != nil {
		t.Fatalf("SignAccess failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expired token must fail")
	}
}

func TestWrongKeyRejected(t *testing.T) {
	m := newHSManager(t)

	token, err := m.SignAccess("acct-1", "", 1, "sess-1", "")
	if err != nil {
		t.Fatalf("SignAccess failed: %v", err)
	}

	cfg := hsConfig()
	cfg.PrivateKey = []byte("ffffffffffffffffffffffffffffffff")
	other, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if _, err := other.ParseAccess(token); err == nil {
		t.Fatal("token signed with another key must fail")
	}
}

func TestEd25519Roundtrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	m, err := NewManager(Config{
		AccessTTL:  time.Minute,
		Method:     MethodEd25519,
		PrivateKey: priv,
		PublicKey:  pub,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, err := m.SignAccess("acct-1", "a@example.com", 3, "sess-1", "")
	if err != nil {
		t.Fatalf("SignAccess failed: %v", err)
	}
	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if claims.AccountID != "acct-1" {
		t.Fatalf("unexpected account %q", claims.AccountID)
	}
}
