package authkit

import (
	"context"
	"errors"

	"github.com/tradeyard/authkit/role"
)

// ErrImpersonationDisabled means the feature is off in configuration.
var ErrImpersonationDisabled = errors.New("impersonation disabled")

// Impersonate issues a short-lived session for the target account with
// the operator recorded in every token. Requires the admin role; an
// impersonated session cannot impersonate further, and operators with
// admin rights cannot be targeted.
func (e *Engine) Impersonate(ctx context.Context, operator *Claims, targetAccountID string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !e.config.Impersonation.Enabled {
		return nil, ErrImpersonationDisabled
	}
	if operator == nil {
		return nil, ErrUnauthorized
	}
	if operator.Impersonated() {
		e.metrics.Inc(MetricImpersonationBlocked)
		return nil, ErrImpersonationRestricted
	}
	if err := e.RequireRole(operator, role.Admin); err != nil {
		return nil, err
	}
	if operator.AccountID == targetAccountID {
		return nil, ErrInvariantViolation
	}

	target, err := e.accounts.GetAccountByID(ctx, targetAccountID)
	if err != nil {
		return nil, err
	}
	if target.Status != StatusActive {
		return nil, ErrAccountDisabled
	}
	if role.Mask(target.RoleMask).Has(role.Admin) {
		e.metrics.Inc(MetricForbidden)
		return nil, ErrForbidden
	}

	result, err := e.issueSession(ctx, target, operator.AccountID, e.config.Impersonation.SessionTTL)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricImpersonationStarted)
	e.emitAudit(ctx, AuditEvent{
		EventType: "impersonation.start",
		AccountID: target.ID,
		ActorID:   operator.AccountID,
		SessionID: result.SessionID,
		ChainID:   result.ChainID,
		Success:   true,
	})

	return result, nil
}

// EndImpersonation retires the impersonation chain. The refresh token
// must belong to an impersonated session.
func (e *Engine) EndImpersonation(ctx context.Context, operator *Claims, refreshToken string) error {
	if err := e.ready(); err != nil {
		return err
	}

	if err := e.Logout(ctx, refreshToken); err != nil {
		return err
	}

	e.emitAudit(ctx, AuditEvent{
		EventType: "impersonation.end",
		ActorID:   actorIDOrEmpty(operator),
		Success:   true,
	})
	return nil
}

func actorIDOrEmpty(claims *Claims) string {
	if claims == nil {
		return ""
	}
	return actorID(claims)
}
