package internaldefs

import (
	authkit "github.com/tradeyard/authkit"
)

// CounterDef maps one engine counter to its exported name.
type CounterDef struct {
	ID   authkit.MetricID
	Name string
	Help string
}

// HistogramDef maps one engine histogram to its exported name.
type HistogramDef struct {
	ID   authkit.MetricID
	Name string
	Help string
}

// CounterDefs is the full exported counter table.
var CounterDefs = []CounterDef{
	{ID: authkit.MetricLoginSuccess, Name: "authkit_login_success_total", Help: "Successful logins."},
	{ID: authkit.MetricLoginFailure, Name: "authkit_login_failure_total", Help: "Failed logins."},
	{ID: authkit.MetricLoginRateLimited, Name: "authkit_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: authkit.MetricRefreshSuccess, Name: "authkit_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: authkit.MetricRefreshFailure, Name: "authkit_refresh_failure_total", Help: "Refused refresh attempts."},
	{ID: authkit.MetricRefreshReuseDetected, Name: "authkit_refresh_reuse_detected_total", Help: "Refresh token reuses detected."},
	{ID: authkit.MetricRefreshRateLimited, Name: "authkit_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: authkit.MetricSessionCreated, Name: "authkit_session_created_total", Help: "Opened refresh chains."},
	{ID: authkit.MetricSessionRevoked, Name: "authkit_session_revoked_total", Help: "Revoked refresh chains."},
	{ID: authkit.MetricLogout, Name: "authkit_logout_total", Help: "Single-chain logouts."},
	{ID: authkit.MetricLogoutAll, Name: "authkit_logout_all_total", Help: "Everywhere-logouts."},
	{ID: authkit.MetricDeviceRevoked, Name: "authkit_device_revoked_total", Help: "Device removals."},
	{ID: authkit.MetricDeviceTrusted, Name: "authkit_device_trusted_total", Help: "Devices marked trusted."},
	{ID: authkit.MetricNewDeviceSeen, Name: "authkit_new_device_seen_total", Help: "Logins from unseen device fingerprints."},
	{ID: authkit.MetricImpersonationStarted, Name: "authkit_impersonation_started_total", Help: "Issued impersonation sessions."},
	{ID: authkit.MetricImpersonationBlocked, Name: "authkit_impersonation_blocked_total", Help: "Operations denied to impersonated sessions."},
	{ID: authkit.MetricForbidden, Name: "authkit_forbidden_total", Help: "Authorization denials."},
	{ID: authkit.MetricRoleMaskUpdated, Name: "authkit_role_mask_updated_total", Help: "Applied role mask changes."},
	{ID: authkit.MetricRoleConflict, Name: "authkit_role_conflict_total", Help: "Role updates lost to concurrent writers."},
	{ID: authkit.MetricAccountCreated, Name: "authkit_account_created_total", Help: "Created accounts."},
	{ID: authkit.MetricAccountDuplicate, Name: "authkit_account_duplicate_total", Help: "Registrations rejected for an existing email."},
	{ID: authkit.MetricPasswordChangeSuccess, Name: "authkit_password_change_success_total", Help: "Applied password changes."},
	{ID: authkit.MetricPasswordChangeInvalidOld, Name: "authkit_password_change_invalid_old_total", Help: "Password changes with a wrong current password."},
	{ID: authkit.MetricTicketIssued, Name: "authkit_ticket_issued_total", Help: "Registration tickets issued."},
	{ID: authkit.MetricTicketRedeemed, Name: "authkit_ticket_redeemed_total", Help: "Registration tickets redeemed."},
	{ID: authkit.MetricTicketInvalid, Name: "authkit_ticket_invalid_total", Help: "Rejected ticket presentations."},
	{ID: authkit.MetricFederationFailure, Name: "authkit_federation_failure_total", Help: "Failed external-provider handshakes."},
	{ID: authkit.MetricReauthRequired, Name: "authkit_reauth_required_total", Help: "Accounts flagged for forced re-login."},
}

// HistogramDefs is the exported histogram table.
var HistogramDefs = []HistogramDef{
	{ID: authkit.MetricAuthenticateLatency, Name: "authkit_authenticate_latency_seconds", Help: "Access-token validation latency histogram."},
}

// HistogramBounds are the Prometheus le labels matching the engine's
// fixed bucket layout.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix renders the bounds as metric-name-safe suffixes
// for backends without labeled buckets.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed
// layout.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus expects.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
