package internaldefs

import (
	"github.com/MrEthical07/telecare/internal/metrics"
)

// CounterDef names one counter slot.
type CounterDef struct {
	ID   metrics.MetricID
	Name string
	Help string
}

// HistogramDef names one latency histogram slot.
type HistogramDef struct {
	ID   metrics.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: metrics.LoginSuccess, Name: "telecare_login_success_total", Help: "Logins that ended authenticated."},
	{ID: metrics.LoginFailure, Name: "telecare_login_failure_total", Help: "Logins that failed."},
	{ID: metrics.LoginMFARequired, Name: "telecare_login_mfa_required_total", Help: "Logins that asked for a verification code."},
	{ID: metrics.LoginMFASetupRequired, Name: "telecare_login_mfa_setup_required_total", Help: "Logins that required MFA enrollment."},
	{ID: metrics.MFALoginSuccess, Name: "telecare_mfa_login_success_total", Help: "Verification codes accepted at login."},
	{ID: metrics.MFALoginFailure, Name: "telecare_mfa_login_failure_total", Help: "Verification codes rejected at login."},
	{ID: metrics.MFASetupStarted, Name: "telecare_mfa_setup_started_total", Help: "MFA enrollments started."},
	{ID: metrics.MFASetupCompleted, Name: "telecare_mfa_setup_completed_total", Help: "MFA enrollments confirmed."},
	{ID: metrics.MFADisabled, Name: "telecare_mfa_disabled_total", Help: "MFA disable operations."},
	{ID: metrics.RegisterSuccess, Name: "telecare_register_success_total", Help: "Successful registrations."},
	{ID: metrics.RegisterFailure, Name: "telecare_register_failure_total", Help: "Failed registrations."},
	{ID: metrics.Logout, Name: "telecare_logout_total", Help: "Logouts."},
	{ID: metrics.LogoutNotifyFailure, Name: "telecare_logout_notify_failure_total", Help: "Logouts the backend did not acknowledge."},
	{ID: metrics.RefreshSuccess, Name: "telecare_refresh_success_total", Help: "Successful token refreshes."},
	{ID: metrics.RefreshFailure, Name: "telecare_refresh_failure_total", Help: "Token refreshes rejected or failed."},
	{ID: metrics.RefreshMissingToken, Name: "telecare_refresh_missing_token_total", Help: "Refreshes attempted without a refresh token."},
	{ID: metrics.RefreshCoalesced, Name: "telecare_refresh_coalesced_total", Help: "Refresh results shared between concurrent requests."},
	{ID: metrics.TransportRetry, Name: "telecare_transport_retry_total", Help: "Requests replayed after a refresh."},
	{ID: metrics.TransportRetryUnauthorized, Name: "telecare_transport_retry_unauthorized_total", Help: "Replayed requests still answered with 401."},
	{ID: metrics.CircuitOpen, Name: "telecare_circuit_open_total", Help: "Requests refused by the open circuit breaker."},
	{ID: metrics.RestoreSuccess, Name: "telecare_restore_success_total", Help: "Sessions restored from the token store."},
	{ID: metrics.RestoreFailure, Name: "telecare_restore_failure_total", Help: "Sessions that could not be restored."},
	{ID: metrics.PersistFailure, Name: "telecare_persist_failure_total", Help: "Token store writes that failed."},
	{ID: metrics.ProfileUpdated, Name: "telecare_profile_updated_total", Help: "Profile updates."},
	{ID: metrics.PasswordChanged, Name: "telecare_password_changed_total", Help: "Password changes."},
	{ID: metrics.PasswordResetRequested, Name: "telecare_password_reset_requested_total", Help: "Password reset requests."},
	{ID: metrics.PasswordResetConfirmed, Name: "telecare_password_reset_confirmed_total", Help: "Password resets completed."},
	{ID: metrics.EmailVerified, Name: "telecare_email_verified_total", Help: "Email verifications."},
	{ID: metrics.ParseFailure, Name: "telecare_parse_failure_total", Help: "Backend responses that did not match their contract."},
}

var HistogramDefs = []HistogramDef{
	{ID: metrics.RequestLatency, Name: "telecare_request_latency_seconds", Help: "Backend request latency."},
	{ID: metrics.RefreshLatency, Name: "telecare_refresh_latency_seconds", Help: "Token refresh latency."},
}

// HistogramBounds are the upper bounds of the buckets, in seconds.
var HistogramBounds = []string{
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds spelled for instrument names.
var HistogramBoundSuffix = []string{
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"inf",
}

// DroppedName is the counter for notifications lost to backpressure.
const (
	DroppedName = "telecare_notifications_dropped_total"
	DroppedHelp = "Notifications dropped because the dispatcher buffer was full."
)

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [metrics.BucketCount]uint64 {
	var out [metrics.BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [metrics.BucketCount]uint64) [metrics.BucketCount]uint64 {
	var out [metrics.BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
