package authkit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tradeyard/authkit/device"
	"github.com/tradeyard/authkit/federation"
	"github.com/tradeyard/authkit/internal"
	"github.com/tradeyard/authkit/internal/rate"
	"github.com/tradeyard/authkit/internal/stores"
	"github.com/tradeyard/authkit/jwt"
	"github.com/tradeyard/authkit/password"
	"github.com/tradeyard/authkit/role"
	"github.com/tradeyard/authkit/session"
)

// Engine is the credential and session core. Construct one through
// [Builder.Build]; all methods are safe for concurrent use.
type Engine struct {
	config   Config
	logger   *logrus.Logger
	roles    *role.Registry
	accounts AccountStore
	hasher   *password.Hasher
	signer   *jwt.Manager
	sessions *session.Store
	devices  *device.Registry
	tickets  *stores.TicketStore
	limiter  *rate.Limiter
	audit    *auditDispatcher
	metrics  *Metrics

	providers *federation.Registry
	state     *federation.StateSigner

	closed atomic.Bool
}

// Close stops the audit dispatcher after draining buffered events. The
// engine rejects calls afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.closed.CompareAndSwap(false, true) {
		e.audit.Close()
	}
}

func (e *Engine) ready() error {
	if e == nil || e.closed.Load() {
		return ErrEngineNotReady
	}
	return nil
}

// Roles exposes the frozen role registry.
func (e *Engine) Roles() *role.Registry {
	return e.roles
}

// MetricsSnapshot copies the engine's counters for exporters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}, Histograms: map[MetricID][]uint64{}}
	}
	return e.metrics.Snapshot()
}

// AuditDropped returns the number of audit events shed under
// backpressure since start.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Ping reports Redis availability and round-trip latency.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.sessions.Ping(ctx)
}

// Authenticate validates an access token and returns its identity. The
// check is stateless: signature, expiry, and claim shape only. Session
// revocation takes effect at the next refresh, bounded by the access
// TTL.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*Claims, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	claims, err := e.signer.ParseAccess(accessToken)
	e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	mask := role.Mask(claims.RoleMask)
	if !mask.Valid() {
		return nil, ErrUnauthorized
	}

	return &Claims{
		AccountID:      claims.AccountID,
		Email:          claims.Email,
		RoleMask:       mask,
		SessionID:      claims.SessionID,
		ImpersonatedBy: claims.ImpersonatedBy,
		ExpiresAt:      claims.ExpiresAt.Unix(),
	}, nil
}

// AuthenticateSession validates a low-privilege session token. It
// proves "known account" only; no role data is attached.
func (e *Engine) AuthenticateSession(ctx context.Context, sessionToken string) (*Claims, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	claims, err := e.signer.ParseSession(sessionToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	return &Claims{
		AccountID: claims.AccountID,
		SessionID: claims.SessionID,
		RoleMask:  role.User,
		ExpiresAt: claims.ExpiresAt.Unix(),
	}, nil
}

// RequireRole authorizes when the identity holds at least one of the
// required bits.
func (e *Engine) RequireRole(claims *Claims, required role.Mask) error {
	if claims == nil || !claims.RoleMask.Has(required) {
		e.metrics.Inc(MetricForbidden)
		return ErrForbidden
	}
	return nil
}

// RequireAllRoles authorizes only when every required bit is held.
func (e *Engine) RequireAllRoles(claims *Claims, required role.Mask) error {
	if claims == nil || !claims.RoleMask.HasAll(required) {
		e.metrics.Inc(MetricForbidden)
		return ErrForbidden
	}
	return nil
}

// RequireAnyRole authorizes when any of the listed masks matches.
func (e *Engine) RequireAnyRole(claims *Claims, required ...role.Mask) error {
	if claims != nil && role.HasAny(claims.RoleMask, required...) {
		return nil
	}
	e.metrics.Inc(MetricForbidden)
	return ErrForbidden
}

// requireMutable rejects impersonated sessions from security-sensitive
// mutations: password, role, and device changes stay with the real
// account owner.
func (e *Engine) requireMutable(claims *Claims) error {
	if claims.Impersonated() {
		e.metrics.Inc(MetricImpersonationBlocked)
		return ErrImpersonationRestricted
	}
	return nil
}

// fingerprint derives the device fingerprint from context signals.
func (e *Engine) fingerprint(ctx context.Context) string {
	return device.Fingerprint(device.Signals{
		UserAgent:      userAgentFromContext(ctx),
		AcceptLanguage: acceptLanguageFromContext(ctx),
		AcceptEncoding: acceptEncodingFromContext(ctx),
		ClientIP:       clientIPFromContext(ctx),
	})
}

func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	e.audit.Emit(ctx, event)
}

// issueSession opens a fresh chain for the account and signs the token
// triple. Shared by login, registration, federation, and impersonation.
func (e *Engine) issueSession(ctx context.Context, acct *AccountRecord, impersonatedBy string, ttl time.Duration) (*LoginResult, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	secret, err := internal.NewSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sessionID := sid.String()
	refreshToken, err := internal.EncodeOpaqueToken(sessionID, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	fp := e.fingerprint(ctx)
	now := time.Now()
	mask := role.Mask(acct.RoleMask).Normalize()

	sess := &session.Session{
		SessionID:      sessionID,
		ChainID:        sessionID,
		AccountID:      acct.ID,
		Email:          acct.Email,
		RoleMask:       uint64(mask),
		DeviceFP:       fp,
		ImpersonatedBy: impersonatedBy,
		State:          session.StateActive,
		RefreshHash:    internal.HashSecret(secret),
		CreatedAt:      now.Unix(),
		ExpiresAt:      now.Add(ttl).Unix(),
	}
	if err := e.sessions.Create(ctx, sess, ttl); err != nil {
		e.logger.WithError(err).WithField("account_id", acct.ID).Error("session create failed")
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	accessToken, err := e.signer.SignAccess(acct.ID, acct.Email, uint64(mask), sessionID, impersonatedBy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	sessionToken, err := e.signer.SignSession(acct.ID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	newDevice := false
	if impersonatedBy == "" && fp != "" {
		known, err := e.devices.Known(ctx, acct.ID, fp)
		if err != nil {
			e.logger.WithError(err).Warn("device lookup failed")
		} else {
			newDevice = !known
		}
		if newDevice {
			e.metrics.Inc(MetricNewDeviceSeen)
		}
		if err := e.devices.RecordSeen(ctx, acct.ID, fp, userAgentFromContext(ctx)); err != nil {
			e.logger.WithError(err).Warn("device record failed")
		}
	}

	e.metrics.Inc(MetricSessionCreated)

	return &LoginResult{
		Tokens: TokenTriple{
			AccessToken:      accessToken,
			RefreshToken:     refreshToken,
			SessionToken:     sessionToken,
			AccessExpiresAt:  now.Add(e.config.JWT.AccessTTL).Unix(),
			RefreshExpiresAt: sess.ExpiresAt,
		},
		AccountID: acct.ID,
		SessionID: sessionID,
		ChainID:   sessionID,
		RoleMask:  mask,
		NewDevice: newDevice,
	}, nil
}
