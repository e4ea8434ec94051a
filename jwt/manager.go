// Package jwt signs and verifies the stateless token artifacts of the
// engine: short-lived access tokens and low-privilege session tokens.
// Refresh tokens are opaque and stateful; they never pass through here.
package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA (default).
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256.
	MethodHS256 SigningMethod = "hs256"
)

// Token type claim values. Verification is type-strict: a session token
// presented where an access token is required fails, and vice versa.
const (
	TypeAccess  = "access"
	TypeSession = "session"
)

// ErrWrongTokenType is returned when a token's typ claim does not match
// the verification entry point.
var ErrWrongTokenType = errors.New("wrong token type")

// Config holds signing configuration. Keys are injected explicitly; there
// is no ambient secret lookup.
type Config struct {
	AccessTTL    time.Duration
	SessionTTL   time.Duration
	Method       SigningMethod
	PrivateKey   []byte
	PublicKey    []byte
	Issuer       string
	Audience     string
	Leeway       time.Duration
	MaxFutureIAT time.Duration
}

// Manager signs and parses access and session tokens.
type Manager struct {
	config Config
}

// AccessClaims is the decoded access-token payload. RoleMask is the raw
// 64-bit role bitmask; ImpersonatedBy is set only on impersonation tokens
// and carries the acting admin's account ID.
type AccessClaims struct {
	AccountID      string `json:"uid"`
	Email          string `json:"eml,omitempty"`
	RoleMask       uint64 `json:"rls"`
	SessionID      string `json:"sid"`
	ImpersonatedBy string `json:"imp,omitempty"`
	TokenType      string `json:"typ"`
	jwt.RegisteredClaims
}

// SessionClaims is the decoded session-token payload. It proves "known
// user" only and deliberately omits role data.
type SessionClaims struct {
	AccountID string `json:"uid"`
	SessionID string `json:"sid"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// NewManager validates the configuration and returns a [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid access TTL configuration")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = cfg.AccessTTL
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}

	switch cfg.Method {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a key of at least 32 bytes")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg}, nil
}

// SignAccess issues an access token for the given identity snapshot.
func (m *Manager) SignAccess(accountID, email string, roleMask uint64, sessionID, impersonatedBy string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		AccountID:      accountID,
		Email:          email,
		RoleMask:       roleMask,
		SessionID:      sessionID,
		ImpersonatedBy: impersonatedBy,
		TokenType:      TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}
	return m.sign(claims)
}

// SignSession issues a session token mirroring the access-token identity
// without role data.
func (m *Manager) SignSession(accountID, sessionID string) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		AccountID: accountID,
		SessionID: sessionID,
		TokenType: TypeSession,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.SessionTTL)),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}
	return m.sign(claims)
}

// ParseAccess verifies signature, expiry, issuer/audience, and token type.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != TypeAccess {
		return nil, ErrWrongTokenType
	}
	if err := m.checkIAT(claims.IssuedAt); err != nil {
		return nil, err
	}
	return claims, nil
}

// ParseSession verifies a session token.
func (m *Manager) ParseSession(tokenStr string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if err := m.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != TypeSession {
		return nil, ErrWrongTokenType
	}
	if err := m.checkIAT(claims.IssuedAt); err != nil {
		return nil, err
	}
	return claims, nil
}

func (m *Manager) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(m.method(), claims)
	key, err := m.signKey()
	if err != nil {
		return "", err
	}
	return token.SignedString(key)
}

func (m *Manager) parse(tokenStr string, claims jwt.Claims) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.verifyKey()
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return jwt.ErrTokenInvalidClaims
	}
	return nil
}

func (m *Manager) checkIAT(iat *jwt.NumericDate) error {
	if iat != nil && m.config.MaxFutureIAT > 0 {
		if iat.Time.After(time.Now().Add(m.config.MaxFutureIAT)) {
			return errors.New("token iat too far in the future")
		}
	}
	return nil
}

func (m *Manager) method() jwt.SigningMethod {
	if m.config.Method == MethodHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodEdDSA
}

func (m *Manager) signKey() (interface{}, error) {
	if m.config.Method == MethodHS256 {
		return m.config.PrivateKey, nil
	}
	return parseEdPrivateKey(m.config.PrivateKey)
}

func (m *Manager) verifyKey() (interface{}, error) {
	if m.config.Method == MethodHS256 {
		return m.config.PrivateKey, nil
	}
	if len(m.config.PublicKey) > 0 {
		return parseEdPublicKey(m.config.PublicKey)
	}
	priv, err := parseEdPrivateKey(m.config.PrivateKey)
	if err != nil {
		return nil, err
	}
	return priv.Public(), nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	if strings.Contains(string(key), "PRIVATE KEY") {
		parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
		if err != nil {
			return nil, errors.New("invalid ed25519 private key")
		}
		edKey, ok := parsed.(ed25519.PrivateKey)
		if !ok {
			return nil, errors.New("invalid ed25519 private key type")
		}
		return edKey, nil
	}
	return nil, errors.New("invalid ed25519 private key")
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
