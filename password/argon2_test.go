package password

import (
	"strings"
	"testing"
)

func testConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := New(testConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return h
}

func TestHashVerifyRoundtrip(t *testing.T) {
	h := newTestHasher(t)

	encoded, err := h.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("unexpected encoding %q", encoded)
	}

	ok, err := h.Verify("correct horse battery", encoded)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Fatal("expected match")
	}

	ok, err = h.Verify("wrong password!", encoded)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if ok {
		t.Fatal("expected mismatch")
	}
}

func TestHashRejectsShortPassword(t *testing.T) {
	h := newTestHasher(t)

	if _, err := h.Hash("short"); err != ErrPasswordTooShort {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
}

func TestHashesAreSalted(t *testing.T) {
	h := newTestHasher(t)

	a, err := h.Hash("same password here")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	b, err := h.Hash("same password here")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if a == b {
		t.Fatal("two hashes of the same password must differ")
	}
}

func TestVerifyRejectsMalformedEncoding(t *testing.T) {
	h := newTestHasher(t)

	if _, err := h.Verify("whatever1", "not-a-phc-string"); err == nil {
		t.Fatal("malformed encoding must fail")
	}
}

func TestNeedsRehashOnCostChange(t *testing.T) {
	h := newTestHasher(t)

	encoded, err := h.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	needs, err := h.NeedsRehash(encoded)
	if err != nil {
		t.Fatalf("NeedsRehash failed: %v", err)
	}
	if needs {
		t.Fatal("fresh hash should not need rehash")
	}

	cfg := testConfig()
	cfg.Time = 2
	stronger, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	needs, err = stronger.NeedsRehash(encoded)
	if err != nil {
		t.Fatalf("NeedsRehash failed: %v", err)
	}
	if !needs {
		t.Fatal("weaker hash should need rehash under stronger config")
	}
}

func TestNewRejectsWeakConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Memory = 1024
	if _, err := New(cfg); err == nil {
		t.Fatal("sub-floor memory must be rejected")
	}

	cfg = testConfig()
	cfg.Time = 0
	if _, err := New(cfg); err == nil {
		t.Fatal("zero time cost must be rejected")
	}
}

func TestDummyVerifyDoesNotPanic(t *testing.T) {
	h := newTestHasher(t)
	h.DummyVerify("anything at all")
	h.DummyVerify("")
}
