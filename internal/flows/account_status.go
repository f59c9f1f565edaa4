package flows

import (
	"context"
	"errors"
	"strings"
	"time"
)

type AccountStatusMetrics struct {
	Enabled        int
	Disabled       int
	Locked         int
	Unlocked       int
	NoRelationship int
}

type AccountStatusEvents struct {
	Enabled  string
	Disabled string
	Locked   string
	Unlocked string
	Failure  string
}

type AccountStatusErrors struct {
	EngineNotReady    error
	PrincipalRequired error
	AccountNotFound   error
	NoRelationship    error
}

// AccountStatusDeps captures enable/disable and lock/unlock dependencies.
type AccountStatusDeps struct {
	Authorization AuthorizationDeps
	// InactivityTrigger and EnableGrace bound how stale LastLoggedIn may be
	// after a re-enable.
	InactivityTrigger time.Duration
	EnableGrace       time.Duration
	DisabledReason    string

	Now           func() time.Time
	UpdateAccount UpdateAccountFunc
	ResetRetries  func(ctx context.Context, username string) error

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics AccountStatusMetrics
	Events  AccountStatusEvents
	Errors  AccountStatusErrors
}

// RunSetEnabled enables or disables target on behalf of admin and returns
// the updated account.
func RunSetEnabled(ctx context.Context, target string, enabled bool, reason string, admin AdminRecord, deps AccountStatusDeps) (AccountRecord, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	action, event, metric := "disable", deps.Events.Disabled, deps.Metrics.Disabled
	if enabled {
		action, event, metric = "enable", deps.Events.Enabled, deps.Metrics.Enabled
	}
	if !enabled && strings.TrimSpace(reason) == "" {
		reason = deps.DisabledReason
	}

	return runStatusChange(ctx, target, admin, action, event, metric, deps, func(acct *AccountRecord) {
		acct.Enabled = enabled
		if !enabled {
			acct.InactiveReason = reason
			return
		}
		acct.InactiveReason = ""
		if deps.InactivityTrigger <= 0 {
			return
		}
		now := deps.Now()
		if acct.LastLoggedIn.Before(now.Add(-deps.InactivityTrigger)) {
			acct.LastLoggedIn = now.Add(-deps.InactivityTrigger + deps.EnableGrace)
		}
	})
}

// RunSetLocked locks or unlocks target on behalf of admin. Unlocking also
// marks the account verified and clears the retry counter.
func RunSetLocked(ctx context.Context, target string, locked bool, admin AdminRecord, deps AccountStatusDeps) error {
	action, event, metric := "unlock", deps.Events.Unlocked, deps.Metrics.Unlocked
	if locked {
		action, event, metric = "lock", deps.Events.Locked, deps.Metrics.Locked
	}

	acct, err := runStatusChange(ctx, target, admin, action, event, metric, deps, func(acct *AccountRecord) {
		acct.Locked = locked
		if !locked {
			acct.Verified = true
		}
	})
	if err != nil {
		return err
	}
	if deps.ResetRetries != nil {
		if err := deps.ResetRetries(ctx, acct.Username); err != nil {
			return err
		}
	}
	return nil
}

func runStatusChange(
	ctx context.Context,
	target string,
	admin AdminRecord,
	action string,
	event string,
	metric int,
	deps AccountStatusDeps,
	mutate func(*AccountRecord),
) (AccountRecord, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}

	target = strings.ToUpper(strings.TrimSpace(target))
	metadata := func() map[string]string {
		return map[string]string{
			"action": action,
		}
	}
	fail := func(err error) (AccountRecord, error) {
		if errors.Is(err, deps.Errors.NoRelationship) {
			deps.MetricInc(deps.Metrics.NoRelationship)
		}
		deps.EmitAudit(ctx, deps.Events.Failure, false, target, admin.Username, err, metadata)
		return AccountRecord{}, err
	}

	if deps.UpdateAccount == nil || deps.Authorization.GroupsOf == nil {
		return fail(deps.Errors.EngineNotReady)
	}
	if strings.TrimSpace(admin.Username) == "" {
		return fail(deps.Errors.PrincipalRequired)
	}

	adminGroups, err := groupsOfAdmin(ctx, admin, deps.Authorization)
	if err != nil {
		return fail(err)
	}

	updated, err := deps.UpdateAccount(ctx, target, func(acct *AccountRecord) error {
		if !acct.Master {
			return deps.Errors.AccountNotFound
		}
		if err := checkRelationship(admin, adminGroups, acct.Groups, deps.Authorization); err != nil {
			return err
		}
		mutate(acct)
		return nil
	})
	if err != nil {
		return fail(err)
	}

	deps.MetricInc(metric)
	deps.EmitAudit(ctx, event, true, target, admin.Username, nil, metadata)
	return updated, nil
}
