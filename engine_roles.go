package authkit

import (
	"context"
	"errors"
	"fmt"

	"github.com/tradeyard/authkit/role"
)

// selfServiceRoles are the bits an account may request for itself.
// Privileged bits always go through an admin.
var selfServiceRoles = map[string]role.Mask{
	"seller":  role.Seller,
	"courier": role.Courier,
}

// UpdateRoleMask replaces the target account's role mask. Admin only.
// The caller passes the account version it read; a concurrent writer
// surfaces as [ErrConflict]. Existing chains are revoked so stale masks
// cannot outlive the change past the access-token TTL.
func (e *Engine) UpdateRoleMask(ctx context.Context, operator *Claims, targetAccountID string, newMask role.Mask, version uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if operator == nil {
		return ErrUnauthorized
	}
	if err := e.requireMutable(operator); err != nil {
		return err
	}
	if err := e.RequireRole(operator, role.Admin); err != nil {
		return err
	}
	if !newMask.Valid() {
		return ErrInvariantViolation
	}

	return e.applyRoleMask(ctx, operator, targetAccountID, newMask, version)
}

// GrantRole sets one named role bit on the target account. Admin only.
func (e *Engine) GrantRole(ctx context.Context, operator *Claims, targetAccountID, roleName string) error {
	return e.adjustRole(ctx, operator, targetAccountID, roleName, true)
}

// RevokeRole clears one named role bit on the target account. Admin
// only. Clearing the base-user role fails with [ErrInvariantViolation].
func (e *Engine) RevokeRole(ctx context.Context, operator *Claims, targetAccountID, roleName string) error {
	return e.adjustRole(ctx, operator, targetAccountID, roleName, false)
}

func (e *Engine) adjustRole(ctx context.Context, operator *Claims, targetAccountID, roleName string, grant bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	if operator == nil {
		return ErrUnauthorized
	}
	if err := e.requireMutable(operator); err != nil {
		return err
	}
	if err := e.RequireRole(operator, role.Admin); err != nil {
		return err
	}

	bit, ok := e.roles.Bit(roleName)
	if !ok {
		return fmt.Errorf("%w: %s", role.ErrUnknownRole, roleName)
	}
	if !grant && bit == 0 {
		return ErrInvariantViolation
	}

	acct, err := e.accounts.GetAccountByID(ctx, targetAccountID)
	if err != nil {
		return err
	}

	current := role.Mask(acct.RoleMask)
	var next role.Mask
	if grant {
		next = current.With(1 << bit)
	} else {
		next = current.Without(1 << bit)
	}
	if next == current {
		return nil
	}

	return e.applyRoleMask(ctx, operator, targetAccountID, next, acct.Version)
}

// ReconcileRole brings one named role bit in line with what the owning
// subsystem knows to be true, for example a seller-onboarding service
// repairing a drifted mask. It is a trusted backend entry point, not an
// operator call, so it takes no claims; the change is audited with the
// given reason. Version conflicts with concurrent writers are retried.
func (e *Engine) ReconcileRole(ctx context.Context, accountID, roleName string, grant bool, reason string) error {
	if err := e.ready(); err != nil {
		return err
	}

	bit, ok := e.roles.Bit(roleName)
	if !ok {
		return fmt.Errorf("%w: %s", role.ErrUnknownRole, roleName)
	}
	if !grant && bit == 0 {
		return ErrInvariantViolation
	}

	for attempt := 0; attempt < 3; attempt++ {
		acct, err := e.accounts.GetAccountByID(ctx, accountID)
		if err != nil {
			return err
		}

		current := role.Mask(acct.RoleMask)
		next := current.With(1 << bit)
		if !grant {
			next = current.Without(1 << bit)
		}
		if next == current {
			return nil
		}

		err = e.applyRoleMaskReason(ctx, nil, accountID, next, acct.Version, reason)
		if !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return ErrConflict
}

// RequestRole lets an account claim a self-service role for itself.
// Privileged roles are rejected with [ErrForbidden].
func (e *Engine) RequestRole(ctx context.Context, claims *Claims, roleName string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if claims == nil {
		return ErrUnauthorized
	}
	if err := e.requireMutable(claims); err != nil {
		return err
	}

	bits, ok := selfServiceRoles[roleName]
	if !ok {
		e.metrics.Inc(MetricForbidden)
		return ErrForbidden
	}

	acct, err := e.accounts.GetAccountByID(ctx, claims.AccountID)
	if err != nil {
		return err
	}

	next := role.Mask(acct.RoleMask).With(bits)
	if next == role.Mask(acct.RoleMask) {
		return nil
	}

	return e.applyRoleMask(ctx, claims, claims.AccountID, next, acct.Version)
}

func (e *Engine) applyRoleMask(ctx context.Context, actor *Claims, targetAccountID string, mask role.Mask, version uint64) error {
	return e.applyRoleMaskReason(ctx, actor, targetAccountID, mask, version, "")
}

func (e *Engine) applyRoleMaskReason(ctx context.Context, actor *Claims, targetAccountID string, mask role.Mask, version uint64, reason string) error {
	mask = mask.Normalize()

	if err := e.accounts.UpdateRoleMask(ctx, targetAccountID, uint64(mask), version); err != nil {
		if errors.Is(err, ErrConflict) {
			e.metrics.Inc(MetricRoleConflict)
			return ErrConflict
		}
		return err
	}

	// Live sessions still carry the old mask; kill them so the change
	// lands within one access-token TTL.
	if _, err := e.sessions.RevokeAccount(ctx, targetAccountID, "", e.config.Session.TombstoneTTL); err != nil {
		e.logger.WithError(err).WithField("account_id", targetAccountID).Error("post-role-change revocation failed")
	}

	meta := map[string]string{"mask": fmt.Sprintf("%d", uint64(mask))}
	if reason != "" {
		meta["reason"] = reason
	}

	e.metrics.Inc(MetricRoleMaskUpdated)
	e.emitAudit(ctx, AuditEvent{
		EventType: "role.update",
		AccountID: targetAccountID,
		ActorID:   actorIDOrEmpty(actor),
		Success:   true,
		Metadata:  meta,
	})

	return nil
}
