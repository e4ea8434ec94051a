package authkit

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/tradeyard/authkit/internal"
	"github.com/tradeyard/authkit/session"
)

// Logout retires the chain behind the presented refresh token. The
// token must match the live leaf; a session ID alone is not enough.
// Idempotent: logging out an already-dead chain succeeds.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if err := e.ready(); err != nil {
		return err
	}

	sessionID, secret, err := internal.DecodeOpaqueToken(refreshToken)
	if err != nil {
		return ErrRefreshInvalid
	}

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if sess.State == session.StateActive {
		providedHash := internal.HashSecret(secret)
		if subtle.ConstantTimeCompare(providedHash[:], sess.RefreshHash[:]) != 1 {
			return ErrRefreshInvalid
		}
	}

	if _, err := e.sessions.RevokeChain(ctx, sess.ChainID, e.config.Session.TombstoneTTL); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(MetricLogout)
	e.metrics.Inc(MetricSessionRevoked)
	e.emitAudit(ctx, AuditEvent{
		EventType: "logout",
		AccountID: sess.AccountID,
		SessionID: sessionID,
		ChainID:   sess.ChainID,
		Success:   true,
	})

	return nil
}

// LogoutAll revokes every chain for the account, the caller's included.
// Returns the number of session rows transitioned.
func (e *Engine) LogoutAll(ctx context.Context, claims *Claims) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if claims == nil {
		return 0, ErrUnauthorized
	}

	n, err := e.sessions.RevokeAccount(ctx, claims.AccountID, "", e.config.Session.TombstoneTTL)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(MetricLogoutAll)
	e.emitAudit(ctx, AuditEvent{
		EventType: "logout.all",
		AccountID: claims.AccountID,
		ActorID:   actorID(claims),
		SessionID: claims.SessionID,
		Success:   true,
		Metadata:  map[string]string{"revoked_rows": fmt.Sprintf("%d", n)},
	})

	return n, nil
}

// LogoutOthers revokes every chain except the caller's own.
func (e *Engine) LogoutOthers(ctx context.Context, claims *Claims) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if claims == nil {
		return 0, ErrUnauthorized
	}

	currentChain := ""
	if sess, err := e.sessions.Get(ctx, claims.SessionID); err == nil {
		currentChain = sess.ChainID
	}

	n, err := e.sessions.RevokeAccount(ctx, claims.AccountID, currentChain, e.config.Session.TombstoneTTL)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(MetricLogoutAll)
	e.emitAudit(ctx, AuditEvent{
		EventType: "logout.others",
		AccountID: claims.AccountID,
		SessionID: claims.SessionID,
		Success:   true,
		Metadata:  map[string]string{"revoked_rows": fmt.Sprintf("%d", n)},
	})

	return n, nil
}

// actorID distinguishes the acting identity from the subject account in
// audit records.
func actorID(claims *Claims) string {
	if claims.Impersonated() {
		return claims.ImpersonatedBy
	}
	return claims.AccountID
}
