package authkit

import (
	"errors"
	"time"

	"github.com/tradeyard/authkit/jwt"
	"github.com/tradeyard/authkit/password"
)

// JWTConfig configures token signing.
type JWTConfig struct {
	AccessTTL     time.Duration
	SessionTTL    time.Duration
	SigningMethod jwt.SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// SessionConfig configures the refresh-chain store.
type SessionConfig struct {
	RedisPrefix string
	RefreshTTL  time.Duration
	// TombstoneTTL is how long rotated and revoked rows stay readable so
	// stale-token presentations classify as reuse instead of not-found.
	TombstoneTTL   time.Duration
	MaxChainLength int
	DeviceTTL      time.Duration
}

// SecurityConfig configures rate limiting.
type SecurityConfig struct {
	EnableIPThrottle      bool
	EnableRefreshThrottle bool
	MaxLoginAttempts      int
	LoginWindow           time.Duration
	MaxRefreshAttempts    int
	RefreshWindow         time.Duration
	MaxTicketAttempts     int
	TicketWindow          time.Duration
}

// AuditConfig configures the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds events under backpressure instead of blocking
	// request goroutines.
	DropIfFull bool
}

// MetricsConfig configures the in-process metric registry.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// FederationConfig configures external identity providers.
type FederationConfig struct {
	Enabled bool
	// StateKey signs the OAuth state parameter. Must be identical on
	// every replica.
	StateKey  []byte
	StateTTL  time.Duration
	TicketTTL time.Duration
}

// ImpersonationConfig configures operator impersonation.
type ImpersonationConfig struct {
	Enabled bool
	// SessionTTL caps impersonation chains well below regular ones.
	SessionTTL time.Duration
}

// Config is the engine's full configuration tree.
type Config struct {
	JWT           JWTConfig
	Password      password.Config
	Session       SessionConfig
	Security      SecurityConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
	Federation    FederationConfig
	Impersonation ImpersonationConfig
}

// DefaultConfig returns the baseline configuration. Signing keys are the
// only mandatory additions.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     10 * time.Minute,
			SessionTTL:    10 * time.Minute,
			SigningMethod: jwt.MethodEd25519,
			Leeway:        30 * time.Second,
		},
		Password: password.Config{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Session: SessionConfig{
			RedisPrefix:    "ak",
			RefreshTTL:     30 * 24 * time.Hour,
			TombstoneTTL:   30 * 24 * time.Hour,
			MaxChainLength: 512,
			DeviceTTL:      90 * 24 * time.Hour,
		},
		Security: SecurityConfig{
			EnableIPThrottle:      true,
			EnableRefreshThrottle: true,
			MaxLoginAttempts:      10,
			LoginWindow:           15 * time.Minute,
			MaxRefreshAttempts:    30,
			RefreshWindow:         time.Minute,
			MaxTicketAttempts:     10,
			TicketWindow:          15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
		Federation: FederationConfig{
			Enabled:   false,
			StateTTL:  10 * time.Minute,
			TicketTTL: 15 * time.Minute,
		},
		Impersonation: ImpersonationConfig{
			Enabled:    false,
			SessionTTL: time.Hour,
		},
	}
}

// Validate checks cross-field consistency. Per-package constructors
// re-validate their own slices of the tree.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT.AccessTTL must be positive")
	}
	if c.Session.RefreshTTL <= 0 {
		return errors.New("Session.RefreshTTL must be positive")
	}
	if c.JWT.AccessTTL >= c.Session.RefreshTTL {
		return errors.New("JWT.AccessTTL must be shorter than Session.RefreshTTL")
	}
	if c.Session.TombstoneTTL <= 0 {
		return errors.New("Session.TombstoneTTL must be positive")
	}
	// A tombstone that outlives every live token guarantees a stale
	// presentation is always classified as reuse, never not-found.
	if c.Session.TombstoneTTL < c.Session.RefreshTTL {
		return errors.New("Session.TombstoneTTL must be at least Session.RefreshTTL")
	}
	if c.Session.MaxChainLength < 0 {
		return errors.New("Session.MaxChainLength must not be negative")
	}
	if c.Federation.Enabled {
		if len(c.Federation.StateKey) < 32 {
			return errors.New("Federation.StateKey must be at least 32 bytes")
		}
		if c.Federation.TicketTTL <= 0 {
			return errors.New("Federation.TicketTTL must be positive")
		}
	}
	if c.Impersonation.Enabled && c.Impersonation.SessionTTL <= 0 {
		return errors.New("Impersonation.SessionTTL must be positive")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.Federation.StateKey = cloneBytes(cfg.Federation.StateKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
