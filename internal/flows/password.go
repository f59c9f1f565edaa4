package flows

import (
	"context"
	"errors"
	"strings"
	"time"
)

type PasswordMetrics struct {
	Success       int
	ReuseRejected int
}

type PasswordEvents struct {
	ChangeSuccess string
	ChangeFailure string
	ResetSuccess  string
	ResetFailure  string
}

type PasswordErrors struct {
	EngineNotReady  error
	Blank           error
	Reuse           error
	ExternalAccount error
}

// PasswordDeps captures password set/change dependencies.
type PasswordDeps struct {
	PasswordAge time.Duration

	Now           func() time.Time
	HashPassword  func(string) (string, error)
	Matches       func(stored, supplied string) bool
	UpdateAccount UpdateAccountFunc
	ResetRetries  func(ctx context.Context, username string) error

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics PasswordMetrics
	Events  PasswordEvents
	Errors  PasswordErrors
}

// RunChangePassword replaces the password of a master account. A password
// equal to the current one is rejected. viaReset marks a change authorized
// by a reset token: the account is also unlocked and marked verified.
func RunChangePassword(ctx context.Context, username, newPassword string, viaReset bool, deps PasswordDeps) error {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}

	successEvent, failureEvent := deps.Events.ChangeSuccess, deps.Events.ChangeFailure
	if viaReset {
		successEvent, failureEvent = deps.Events.ResetSuccess, deps.Events.ResetFailure
	}
	username = strings.ToUpper(strings.TrimSpace(username))
	fail := func(err error) error {
		deps.EmitAudit(ctx, failureEvent, false, username, "", err, nil)
		return err
	}

	if deps.HashPassword == nil || deps.Matches == nil || deps.UpdateAccount == nil {
		return fail(deps.Errors.EngineNotReady)
	}
	if strings.TrimSpace(newPassword) == "" {
		return fail(deps.Errors.Blank)
	}

	hash, err := deps.HashPassword(newPassword)
	if err != nil {
		return fail(err)
	}

	now := deps.Now()
	_, err = deps.UpdateAccount(ctx, username, func(acct *AccountRecord) error {
		if !acct.Master {
			return deps.Errors.ExternalAccount
		}
		if acct.PasswordHash != "" && deps.Matches(acct.PasswordHash, newPassword) {
			return deps.Errors.Reuse
		}
		acct.PasswordHash = hash
		acct.PasswordExpiry = now.Add(deps.PasswordAge)
		if viaReset {
			acct.Locked = false
			acct.Verified = true
		}
		return nil
	})
	newPassword = ""
	if err != nil {
		if errors.Is(err, deps.Errors.Reuse) {
			deps.MetricInc(deps.Metrics.ReuseRejected)
		}
		return fail(err)
	}

	if deps.ResetRetries != nil {
		if err := deps.ResetRetries(ctx, username); err != nil {
			return fail(err)
		}
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, successEvent, true, username, "", nil, nil)
	return nil
}
