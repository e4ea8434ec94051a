package authkit

import (
	"context"
	"errors"
	"fmt"

	"github.com/tradeyard/authkit/device"
)

// ListDevices returns every tracked device for the caller's account.
func (e *Engine) ListDevices(ctx context.Context, claims *Claims) ([]*device.Device, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if claims == nil {
		return nil, ErrUnauthorized
	}

	devices, err := e.devices.List(ctx, claims.AccountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return devices, nil
}

// TrustDevice marks a fingerprint as trusted. Not available to
// impersonated sessions.
func (e *Engine) TrustDevice(ctx context.Context, claims *Claims, fingerprint string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if claims == nil {
		return ErrUnauthorized
	}
	if err := e.requireMutable(claims); err != nil {
		return err
	}

	if err := e.devices.SetTrusted(ctx, claims.AccountID, fingerprint, true); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			return ErrDeviceNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(MetricDeviceTrusted)
	e.emitAudit(ctx, AuditEvent{
		EventType: "device.trust",
		AccountID: claims.AccountID,
		DeviceFP:  fingerprint,
		Success:   true,
	})
	return nil
}

// RevokeDevice kills every chain bound to the fingerprint and removes
// the device row. Chain revocation runs first and is serialized against
// in-flight refreshes, so a racing rotation cannot outlive the
// revocation. Not available to impersonated sessions.
func (e *Engine) RevokeDevice(ctx context.Context, claims *Claims, fingerprint string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if claims == nil {
		return ErrUnauthorized
	}
	if err := e.requireMutable(claims); err != nil {
		return err
	}

	n, err := e.sessions.RevokeDevice(ctx, claims.AccountID, fingerprint, e.config.Session.TombstoneTTL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.devices.Remove(ctx, claims.AccountID, fingerprint); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(MetricDeviceRevoked)
	if n > 0 {
		e.metrics.Inc(MetricSessionRevoked)
	}
	e.emitAudit(ctx, AuditEvent{
		EventType: "device.revoke",
		AccountID: claims.AccountID,
		DeviceFP:  fingerprint,
		Success:   true,
		Metadata:  map[string]string{"revoked_rows": fmt.Sprintf("%d", n)},
	})
	return nil
}

// RevokeAllDevices removes every device and kills every chain except,
// optionally, the caller's current fingerprint. Not available to
// impersonated sessions.
func (e *Engine) RevokeAllDevices(ctx context.Context, claims *Claims, keepCurrent bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	if claims == nil {
		return ErrUnauthorized
	}
	if err := e.requireMutable(claims); err != nil {
		return err
	}

	keepFP := ""
	keepChain := ""
	if keepCurrent {
		keepFP = e.fingerprint(ctx)
		if sess, err := e.sessions.Get(ctx, claims.SessionID); err == nil {
			keepChain = sess.ChainID
		}
	}

	if _, err := e.sessions.RevokeAccount(ctx, claims.AccountID, keepChain, e.config.Session.TombstoneTTL); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.devices.RemoveAll(ctx, claims.AccountID, keepFP); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(MetricDeviceRevoked)
	e.emitAudit(ctx, AuditEvent{
		EventType: "device.revoke_all",
		AccountID: claims.AccountID,
		Success:   true,
		Metadata:  map[string]string{"kept_current": boolString(keepCurrent)},
	})
	return nil
}
