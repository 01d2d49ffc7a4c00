package internaldefs

import "github.com/authkeep/authkeep"

// CounterDef names one engine counter.
type CounterDef struct {
	ID   authkeep.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   authkeep.MetricID
	Name string
	Help string
}

// AuditDropped is the counter published for dispatcher drops.
var AuditDropped = CounterDef{
	Name: "authkeep_audit_dropped_total",
	Help: "Audit events dropped under dispatcher backpressure.",
}

var CounterDefs = []CounterDef{
	{ID: authkeep.MetricLoginSuccess, Name: "authkeep_login_success_total", Help: "Successful logins."},
	{ID: authkeep.MetricLoginFailure, Name: "authkeep_login_failure_total", Help: "Rejected logins."},
	{ID: authkeep.MetricLoginLocked, Name: "authkeep_login_locked_total", Help: "Logins rejected by an active lock."},
	{ID: authkeep.MetricLoginReused, Name: "authkeep_login_reused_total", Help: "Logins that returned the cached token."},
	{ID: authkeep.MetricLoginRateLimited, Name: "authkeep_login_rate_limited_total", Help: "Logins rejected by the per-IP throttle."},
	{ID: authkeep.MetricAccountLockedOut, Name: "authkeep_account_locked_out_total", Help: "Accounts locked after repeated failures."},
	{ID: authkeep.MetricAccountDisabled, Name: "authkeep_account_disabled_total", Help: "Logins rejected for banned or deleted accounts."},
	{ID: authkeep.MetricSessionCreated, Name: "authkeep_session_created_total", Help: "Sessions written to the cache."},
	{ID: authkeep.MetricSessionRefreshed, Name: "authkeep_session_refreshed_total", Help: "Sessions replaced by a refresh."},
	{ID: authkeep.MetricSessionInvalidated, Name: "authkeep_session_invalidated_total", Help: "Sessions removed after a credential or account change."},
	{ID: authkeep.MetricSessionMismatch, Name: "authkeep_session_mismatch_total", Help: "Tokens rejected because they are no longer the cached session."},
	{ID: authkeep.MetricSessionStoreUnavailable, Name: "authkeep_session_store_unavailable_total", Help: "Session cache operations that failed or timed out."},
	{ID: authkeep.MetricLogout, Name: "authkeep_logout_total", Help: "Logouts."},
	{ID: authkeep.MetricRegisterSuccess, Name: "authkeep_register_success_total", Help: "Accounts registered."},
	{ID: authkeep.MetricRegisterDuplicate, Name: "authkeep_register_duplicate_total", Help: "Registrations rejected for a taken username."},
	{ID: authkeep.MetricPasswordChangeSuccess, Name: "authkeep_password_change_success_total", Help: "Password changes."},
	{ID: authkeep.MetricPasswordChangeInvalidOld, Name: "authkeep_password_change_invalid_old_total", Help: "Password changes rejected for a wrong old password."},
	{ID: authkeep.MetricPasswordReset, Name: "authkeep_password_reset_total", Help: "Administrative password resets."},
	{ID: authkeep.MetricAccountBanned, Name: "authkeep_account_banned_total", Help: "Accounts banned."},
	{ID: authkeep.MetricAccountUnbanned, Name: "authkeep_account_unbanned_total", Help: "Accounts unbanned."},
	{ID: authkeep.MetricAccountUnlocked, Name: "authkeep_account_unlocked_total", Help: "Accounts unlocked by an administrator."},
	{ID: authkeep.MetricAccountDeleted, Name: "authkeep_account_deleted_total", Help: "Accounts soft-deleted."},
	{ID: authkeep.MetricRolesChanged, Name: "authkeep_roles_changed_total", Help: "Role assignments changed."},
	{ID: authkeep.MetricVersionConflict, Name: "authkeep_version_conflict_total", Help: "Optimistic-lock conflicts retried against the user store."},
	{ID: authkeep.MetricCurrentUserSuccess, Name: "authkeep_current_user_success_total", Help: "Tokens resolved to a user."},
	{ID: authkeep.MetricCurrentUserRejected, Name: "authkeep_current_user_rejected_total", Help: "Tokens rejected as unauthorized."},
}

var HistogramDefs = []HistogramDef{
	{ID: authkeep.MetricValidateLatency, Name: "authkeep_current_user_latency_seconds", Help: "CurrentUser latency."},
}

// HistogramBounds are the bucket upper bounds in seconds, as Prometheus le
// labels. HistogramBoundSuffix spells the same bounds for instrument names.
var (
	HistogramBounds      = [BucketCount]string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}
	HistogramBoundSuffix = [BucketCount]string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}
)

const BucketCount = 8

// NormalizeBuckets copies raw into a fixed array, zero-filling or truncating.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var running uint64
	for i, n := range raw {
		running += n
		raw[i] = running
	}
	return raw
}
