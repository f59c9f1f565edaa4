package internaldefs

import (
	"strconv"

	"github.com/MrEthical07/idpcore"
)

type CounterDef struct {
	ID   idpcore.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   idpcore.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: idpcore.MetricAuthenticateSuccess, Name: "idpcore_authenticate_success_total", Help: "Successful authentications."},
	{ID: idpcore.MetricAuthenticateFailure, Name: "idpcore_authenticate_failure_total", Help: "Authentications rejected for bad credentials."},
	{ID: idpcore.MetricAuthenticateMissingCredentials, Name: "idpcore_authenticate_missing_credentials_total", Help: "Authentications without username or password."},
	{ID: idpcore.MetricAuthenticateRejectedLocked, Name: "idpcore_authenticate_rejected_locked_total", Help: "Authentications rejected because the account is locked."},
	{ID: idpcore.MetricAuthenticateRejectedDisabled, Name: "idpcore_authenticate_rejected_disabled_total", Help: "Authentications rejected because the account is disabled."},
	{ID: idpcore.MetricAuthenticatePasswordExpired, Name: "idpcore_authenticate_password_expired_total", Help: "Authentications rejected for an expired password."},
	{ID: idpcore.MetricAccountAutoLocked, Name: "idpcore_account_auto_locked_total", Help: "Accounts locked after consecutive failures."},
	{ID: idpcore.MetricDirectorySync, Name: "idpcore_directory_sync_total", Help: "Accounts created from the external directory."},
	{ID: idpcore.MetricRoleAddSuccess, Name: "idpcore_role_add_success_total", Help: "Role grants."},
	{ID: idpcore.MetricRoleAddFailure, Name: "idpcore_role_add_failure_total", Help: "Rejected role grants."},
	{ID: idpcore.MetricRoleRemoveSuccess, Name: "idpcore_role_remove_success_total", Help: "Role revocations."},
	{ID: idpcore.MetricRoleRemoveFailure, Name: "idpcore_role_remove_failure_total", Help: "Rejected role revocations."},
	{ID: idpcore.MetricNoRelationship, Name: "idpcore_no_relationship_total", Help: "Management attempts by admins with no relationship to the target."},
	{ID: idpcore.MetricGroupAddSuccess, Name: "idpcore_group_add_success_total", Help: "Group memberships added."},
	{ID: idpcore.MetricGroupAddFailure, Name: "idpcore_group_add_failure_total", Help: "Rejected group additions."},
	{ID: idpcore.MetricGroupRemoveSuccess, Name: "idpcore_group_remove_success_total", Help: "Group memberships removed."},
	{ID: idpcore.MetricGroupRemoveFailure, Name: "idpcore_group_remove_failure_total", Help: "Rejected group removals."},
	{ID: idpcore.MetricAccountEnabled, Name: "idpcore_account_enabled_total", Help: "Account enable operations."},
	{ID: idpcore.MetricAccountDisabled, Name: "idpcore_account_disabled_total", Help: "Account disable operations."},
	{ID: idpcore.MetricAccountLocked, Name: "idpcore_account_locked_total", Help: "Administrative account locks."},
	{ID: idpcore.MetricAccountUnlocked, Name: "idpcore_account_unlocked_total", Help: "Administrative account unlocks."},
	{ID: idpcore.MetricTokenCreated, Name: "idpcore_token_created_total", Help: "Single-use tokens issued."},
	{ID: idpcore.MetricTokenInvalid, Name: "idpcore_token_invalid_total", Help: "Token checks that found no usable token."},
	{ID: idpcore.MetricTokenExpired, Name: "idpcore_token_expired_total", Help: "Token checks that found an expired token."},
	{ID: idpcore.MetricTokenConsumed, Name: "idpcore_token_consumed_total", Help: "Tokens consumed."},
	{ID: idpcore.MetricPasswordChangeSuccess, Name: "idpcore_password_change_success_total", Help: "Successful password changes."},
	{ID: idpcore.MetricPasswordChangeReuseRejected, Name: "idpcore_password_change_reuse_rejected_total", Help: "Password changes rejected for reuse."},
	{ID: idpcore.MetricEmailVerified, Name: "idpcore_email_verified_total", Help: "Email addresses verified."},
	{ID: idpcore.MetricNotificationSent, Name: "idpcore_notification_sent_total", Help: "Notifications delivered."},
	{ID: idpcore.MetricNotificationRetried, Name: "idpcore_notification_retried_total", Help: "Notifications retried after a provider error."},
	{ID: idpcore.MetricNotificationFailed, Name: "idpcore_notification_failed_total", Help: "Notifications that could not be delivered."},
}

var HistogramDefs = []HistogramDef{
	{ID: idpcore.MetricAuthenticateLatency, Name: "idpcore_authenticate_latency_seconds", Help: "Authenticate latency histogram."},
}

// HistogramBounds are the "le" labels of the latency histogram in seconds,
// ending with "+Inf".
var HistogramBounds = func() []string {
	out := make([]string, 0, idpcore.LatencyBucketCount)
	for _, b := range idpcore.LatencyBucketBounds {
		out = append(out, strconv.FormatFloat(b.Seconds(), 'g', -1, 64))
	}
	return append(out, "+Inf")
}()

// NormalizeBuckets copies raw into a fixed-size array, zero-filling missing
// buckets.
func NormalizeBuckets(raw []uint64) [idpcore.LatencyBucketCount]uint64 {
	var out [idpcore.LatencyBucketCount]uint64
	copy(out[:], raw)
	return out
}

func CumulativeBuckets(raw [idpcore.LatencyBucketCount]uint64) [idpcore.LatencyBucketCount]uint64 {
	var out [idpcore.LatencyBucketCount]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
