package authkit

import (
	"testing"
	"time"
)

func TestDefaultTombstoneCoversRefreshWindow(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Session.TombstoneTTL < cfg.Session.RefreshTTL {
		t.Fatalf("default TombstoneTTL %v is shorter than RefreshTTL %v", cfg.Session.TombstoneTTL, cfg.Session.RefreshTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestValidateRejectsShortTombstone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session.TombstoneTTL = cfg.Session.RefreshTTL - time.Hour

	if err := cfg.Validate(); err == nil {
		t.Fatal("a tombstone shorter than the refresh window must fail validation")
	}

	cfg.Session.TombstoneTTL = cfg.Session.RefreshTTL
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestValidateRejectsNonPositiveTTLs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWT.AccessTTL = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero AccessTTL must fail validation")
	}

	cfg = DefaultConfig()
	cfg.Session.RefreshTTL = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero RefreshTTL must fail validation")
	}
}
