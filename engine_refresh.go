package authkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tradeyard/authkit/internal"
	"github.com/tradeyard/authkit/internal/rate"
	"github.com/tradeyard/authkit/role"
	"github.com/tradeyard/authkit/session"
)

// Refresh rotates a refresh token: the presented token is retired and a
// new session row extends the chain. Presenting a token that was
// already rotated or revoked is treated as theft evidence; the whole
// chain dies and the account is flagged for re-authentication. Callers
// see [ErrRefreshInvalid] for every refusal; the audit stream carries
// the distinction.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	oldID, secret, err := internal.DecodeOpaqueToken(refreshToken)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		return nil, ErrRefreshInvalid
	}
	providedHash := internal.HashSecret(secret)

	current, err := e.sessions.Get(ctx, oldID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			e.metrics.Inc(MetricRefreshFailure)
			return nil, ErrRefreshInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	flagged, err := e.sessions.ReauthRequired(ctx, current.AccountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if flagged {
		e.metrics.Inc(MetricRefreshFailure)
		e.emitAudit(ctx, AuditEvent{
			EventType: "refresh",
			AccountID: current.AccountID,
			ChainID:   current.ChainID,
			Success:   false,
			Error:     ErrReauthRequired.Error(),
		})
		return nil, ErrReauthRequired
	}

	if err := e.limiter.CheckRefresh(ctx, current.ChainID); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metrics.Inc(MetricRefreshRateLimited)
			return nil, ErrRefreshRateLimited
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	nextSecret, err := internal.NewSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	newID := sid.String()

	rotated, err := e.sessions.Rotate(
		ctx,
		oldID, newID,
		providedHash, internal.HashSecret(nextSecret),
		e.config.Session.RefreshTTL,
		e.config.Session.TombstoneTTL,
	)
	if err != nil {
		return nil, e.classifyRotateFailure(ctx, oldID, rotated, err)
	}

	newRefresh, err := internal.EncodeOpaqueToken(newID, nextSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	accessToken, err := e.signer.SignAccess(
		rotated.AccountID, rotated.Email, rotated.RoleMask, newID, rotated.ImpersonatedBy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	sessionToken, err := e.signer.SignSession(rotated.AccountID, newID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if rotated.ImpersonatedBy == "" && rotated.DeviceFP != "" {
		if err := e.devices.RecordSeen(ctx, rotated.AccountID, rotated.DeviceFP, userAgentFromContext(ctx)); err != nil {
			e.logger.WithError(err).Warn("device record failed")
		}
	}

	e.metrics.Inc(MetricRefreshSuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType: "refresh",
		AccountID: rotated.AccountID,
		SessionID: newID,
		ChainID:   rotated.ChainID,
		DeviceFP:  rotated.DeviceFP,
		Success:   true,
	})

	return &LoginResult{
		Tokens: TokenTriple{
			AccessToken:      accessToken,
			RefreshToken:     newRefresh,
			SessionToken:     sessionToken,
			AccessExpiresAt:  time.Now().Add(e.config.JWT.AccessTTL).Unix(),
			RefreshExpiresAt: rotated.ExpiresAt,
		},
		AccountID: rotated.AccountID,
		SessionID: newID,
		ChainID:   rotated.ChainID,
		RoleMask:  role.Mask(rotated.RoleMask),
	}, nil
}

// classifyRotateFailure maps store sentinels to the caller-visible
// error and runs the reuse response where warranted.
func (e *Engine) classifyRotateFailure(ctx context.Context, oldID string, stale *session.Session, err error) error {
	switch {
	case errors.Is(err, session.ErrSessionSuperseded),
		errors.Is(err, session.ErrRefreshHashMismatch):
		e.respondToReuse(ctx, oldID, stale, err)
		return ErrRefreshInvalid

	case errors.Is(err, session.ErrChainTooLong):
		// A chain at the cap cannot rotate further; retire it so the
		// client falls back to a fresh login.
		if stale != nil && stale.ChainID != "" {
			if _, revErr := e.sessions.RevokeChain(ctx, stale.ChainID, e.config.Session.TombstoneTTL); revErr != nil {
				e.logger.WithError(revErr).Error("chain cap revocation failed")
			}
		}
		e.metrics.Inc(MetricRefreshFailure)
		return ErrRefreshInvalid

	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrSessionExpired):
		e.metrics.Inc(MetricRefreshFailure)
		return ErrRefreshInvalid

	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

// respondToReuse is the theft response: revoke every row in the chain
// and flag the account so nothing short of a password login restores
// access.
func (e *Engine) respondToReuse(ctx context.Context, oldID string, stale *session.Session, cause error) {
	e.metrics.Inc(MetricRefreshReuseDetected)

	chainID, accountID := "", ""
	if stale != nil {
		chainID, accountID = stale.ChainID, stale.AccountID
	}

	if chainID != "" {
		if n, err := e.sessions.RevokeChain(ctx, chainID, e.config.Session.TombstoneTTL); err != nil {
			e.logger.WithError(err).WithField("chain_id", chainID).Error("reuse chain revocation failed")
		} else {
			e.metrics.Inc(MetricSessionRevoked)
			e.logger.WithFields(map[string]interface{}{
				"chain_id":        chainID,
				"revoked_rows":    n,
				"presented_token": oldID,
			}).Warn("refresh token reuse detected")
		}
	}

	if accountID != "" {
		if err := e.sessions.MarkReauthRequired(ctx, accountID, e.config.Session.RefreshTTL); err != nil {
			e.logger.WithError(err).Error("reauth flag failed")
		} else {
			e.metrics.Inc(MetricReauthRequired)
		}
	}

	e.emitAudit(ctx, AuditEvent{
		EventType: "refresh.reuse",
		AccountID: accountID,
		SessionID: oldID,
		ChainID:   chainID,
		Success:   false,
		Error:     cause.Error(),
	})
}
