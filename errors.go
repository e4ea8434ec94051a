package authkit

import "errors"

var (
	// ErrInvalidCredentials covers unknown email and wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicateEmail means the email already anchors an account.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrAccountNotFound means no account matches the identifier.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountDisabled means the account exists but may not log in.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrUnauthorized means the access token failed validation. The
	// caller learns nothing more specific.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the identity is valid but lacks the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrRefreshInvalid covers every refresh refusal shown to callers:
	// malformed, expired, revoked, and reused tokens all collapse to it.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrReauthRequired means the account was flagged for forced
	// re-login after a security event.
	ErrReauthRequired = errors.New("reauthentication required")
	// ErrLoginRateLimited means the login attempt budget is exhausted.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrRefreshRateLimited means the chain's refresh window cap is hit.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrSessionNotFound means no live session matches the identifier.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvariantViolation means the requested mutation would break a
	// structural rule, such as clearing the base role bit.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrConflict means a concurrent writer advanced the account first.
	ErrConflict = errors.New("concurrent modification conflict")
	// ErrImpersonationRestricted means the operation is not available to
	// an impersonated session.
	ErrImpersonationRestricted = errors.New("operation restricted during impersonation")
	// ErrTicketInvalid covers expired, redeemed, and forged registration
	// tickets alike.
	ErrTicketInvalid = errors.New("invalid registration ticket")
	// ErrProfileIncomplete means the account must finish registration
	// before the operation is allowed.
	ErrProfileIncomplete = errors.New("profile incomplete")
	// ErrDeviceNotFound means the fingerprint is not registered for the
	// account.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrFederationFailed means the external provider handshake did not
	// produce a usable identity.
	ErrFederationFailed = errors.New("federation handshake failed")
	// ErrStoreUnavailable wraps backend failures so callers can
	// distinguish outages from refusals.
	ErrStoreUnavailable = errors.New("backend store unavailable")
	// ErrPasswordPolicy means the candidate password fails local policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrEngineNotReady means the engine was used before Build or after
	// Close.
	ErrEngineNotReady = errors.New("engine not initialized")
)
