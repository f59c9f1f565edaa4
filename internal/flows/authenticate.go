package flows

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Outcome labels carried in authentication audit metadata.
const (
	OutcomeSuccess            = "success"
	OutcomeMissingCredentials = "missing_credentials"
	OutcomeBadCredentials     = "bad_credentials"
	OutcomeLocked             = "locked"
	OutcomeDisabled           = "disabled"
	OutcomeExpired            = "password_expired"
	OutcomeError              = "error"
)

type AuthenticateMetrics struct {
	Success            int
	Failure            int
	MissingCredentials int
	RejectedLocked     int
	RejectedDisabled   int
	PasswordExpired    int
	AutoLocked         int
	DirectorySync      int
	Latency            int
}

type AuthenticateEvents struct {
	Success string
	Failure string
}

type AuthenticateErrors struct {
	EngineNotReady     error
	MissingCredentials error
	BadCredentials     error
	AccountNotFound    error
	AccountDisabled    error
	AccountLocked      error
	PasswordExpired    error
	// Locked builds the lock failure for a reason ("already" or "exceeded").
	Locked func(reason string) error
}

// AuthenticateDeps captures the authentication decision dependencies.
type AuthenticateDeps struct {
	MaxRetries     int
	UpgradeOnLogin bool

	Now func() time.Time

	FindAccount func(ctx context.Context, username string) (AccountRecord, error)
	// SyncExternal resolves an unknown username through the external
	// directory and persists a shadow account. nil disables sync.
	SyncExternal func(ctx context.Context, username string) (AccountRecord, bool, error)

	VerifyLocal    func(stored, supplied string) bool
	VerifyExternal func(ctx context.Context, username, password string) (bool, error)
	NeedsUpgrade   func(stored string) bool
	HashPassword   func(string) (string, error)

	IncrementRetries func(ctx context.Context, username string) (int, error)
	ResetRetries     func(ctx context.Context, username string) error
	LockAccount      func(ctx context.Context, username string) error
	// RecordLogin stamps the login time and, when upgradedHash is non-empty,
	// replaces the stored hash. It fails with AccountLocked or
	// AccountDisabled when the stored record no longer allows a login.
	RecordLogin func(ctx context.Context, username string, at time.Time, upgradedHash string) error

	MetricInc func(int)
	Observe   func(int, time.Duration)
	EmitAudit AuditFunc
	Warn      func(string, ...any)

	Metrics AuthenticateMetrics
	Events  AuthenticateEvents
	Errors  AuthenticateErrors
}

// RunAuthenticate decides one authentication attempt. Exactly one audit
// event is emitted per call, whatever the outcome.
func RunAuthenticate(ctx context.Context, username, password string, deps AuthenticateDeps) (AccountRecord, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.Observe == nil {
		deps.Observe = noopObserve
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Warn == nil {
		deps.Warn = noopWarn
	}
	if deps.FindAccount == nil ||
		deps.VerifyLocal == nil ||
		deps.IncrementRetries == nil ||
		deps.ResetRetries == nil ||
		deps.LockAccount == nil ||
		deps.RecordLogin == nil ||
		deps.Errors.Locked == nil {
		return AccountRecord{}, deps.Errors.EngineNotReady
	}

	start := deps.Now()
	defer func() {
		deps.Observe(deps.Metrics.Latency, deps.Now().Sub(start))
	}()

	username = strings.ToUpper(strings.TrimSpace(username))

	fail := func(user string, err error, outcome string) (AccountRecord, error) {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, user, "", err, func() map[string]string {
			return map[string]string{
				"outcome": outcome,
			}
		})
		return AccountRecord{}, err
	}

	if username == "" || password == "" {
		deps.MetricInc(deps.Metrics.MissingCredentials)
		return fail(username, deps.Errors.MissingCredentials, OutcomeMissingCredentials)
	}

	account, err := deps.FindAccount(ctx, username)
	if err != nil {
		if !errors.Is(err, deps.Errors.AccountNotFound) {
			return fail(username, err, OutcomeError)
		}
		if deps.SyncExternal == nil {
			return fail(username, deps.Errors.BadCredentials, OutcomeBadCredentials)
		}
		synced, found, syncErr := deps.SyncExternal(ctx, username)
		if syncErr != nil {
			return fail(username, syncErr, OutcomeError)
		}
		if !found {
			return fail(username, deps.Errors.BadCredentials, OutcomeBadCredentials)
		}
		deps.MetricInc(deps.Metrics.DirectorySync)
		account = synced
	}

	// Lock and enablement are checked before any password comparison.
	if account.Locked {
		deps.MetricInc(deps.Metrics.RejectedLocked)
		return fail(username, deps.Errors.Locked("already"), OutcomeLocked)
	}
	if !account.Enabled {
		deps.MetricInc(deps.Metrics.RejectedDisabled)
		return fail(username, deps.Errors.AccountDisabled, OutcomeDisabled)
	}

	var matched bool
	if !account.Master && deps.VerifyExternal != nil {
		matched, err = deps.VerifyExternal(ctx, username, password)
		if err != nil {
			return fail(username, err, OutcomeError)
		}
	} else {
		matched = deps.VerifyLocal(account.PasswordHash, password)
	}

	if !matched {
		count, err := deps.IncrementRetries(ctx, username)
		if err != nil {
			return fail(username, err, OutcomeError)
		}
		if deps.MaxRetries > 0 && count >= deps.MaxRetries {
			if err := deps.LockAccount(ctx, username); err != nil {
				return fail(username, err, OutcomeError)
			}
			deps.MetricInc(deps.Metrics.AutoLocked)
			return fail(username, deps.Errors.Locked("exceeded"), OutcomeLocked)
		}
		return fail(username, deps.Errors.BadCredentials, OutcomeBadCredentials)
	}

	upgraded := ""
	if account.Master && deps.UpgradeOnLogin && deps.NeedsUpgrade != nil && deps.HashPassword != nil &&
		deps.NeedsUpgrade(account.PasswordHash) {
		if h, err := deps.HashPassword(password); err == nil {
			upgraded = h
		} else {
			deps.Warn("idpcore: password hash upgrade generation failed", "username", username)
		}
	}
	password = ""

	now := deps.Now()
	if err := deps.RecordLogin(ctx, username, now, upgraded); err != nil {
		switch {
		case errors.Is(err, deps.Errors.AccountDisabled):
			deps.MetricInc(deps.Metrics.RejectedDisabled)
			return fail(username, err, OutcomeDisabled)
		case errors.Is(err, deps.Errors.AccountLocked):
			deps.MetricInc(deps.Metrics.RejectedLocked)
			return fail(username, err, OutcomeLocked)
		}
		return fail(username, err, OutcomeError)
	}
	if err := deps.ResetRetries(ctx, username); err != nil {
		return fail(username, err, OutcomeError)
	}
	account.LastLoggedIn = now
	if upgraded != "" {
		account.PasswordHash = upgraded
	}

	if !account.PasswordExpiry.IsZero() && !now.Before(account.PasswordExpiry) {
		deps.MetricInc(deps.Metrics.PasswordExpired)
		return fail(username, deps.Errors.PasswordExpired, OutcomeExpired)
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, username, "", nil, func() map[string]string {
		return map[string]string{
			"outcome": OutcomeSuccess,
		}
	})
	return account, nil
}
