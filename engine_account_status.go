package idpcore

import (
	"context"
	"strings"
)

// EnableAccount re-enables target on behalf of admin. A stale LastLoggedIn
// is moved forward so the account gets a grace period before it counts as
// inactive again. When notifications are on and the account has an email,
// the enable-user message is sent and its failure is returned.
func (e *Engine) EnableAccount(ctx context.Context, target string, admin Principal) error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	rec, err := e.flows.SetEnabled(ctx, target, true, "", toFlowAdmin(admin))
	if err != nil {
		return err
	}
	if !e.config.Notify.Enabled || rec.Email == "" {
		return nil
	}
	return e.flows.Notify(ctx, notifyRequest(e.config.Notify.EnableUserTemplate, rec.Email, rec.Username, map[string]string{
		"firstName": rec.FirstName,
		"username":  rec.Username,
		"admin":     admin.Username,
	}))
}

// DisableAccount disables target. An empty reason records the configured
// default.
func (e *Engine) DisableAccount(ctx context.Context, target, reason string, admin Principal) error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	_, err := e.flows.SetEnabled(ctx, target, false, strings.TrimSpace(reason), toFlowAdmin(admin))
	return err
}

func (e *Engine) LockAccount(ctx context.Context, target string, admin Principal) error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	return e.flows.SetLocked(ctx, target, true, toFlowAdmin(admin))
}

// UnlockAccount unlocks target, marks it verified and clears its retry
// counter.
func (e *Engine) UnlockAccount(ctx context.Context, target string, admin Principal) error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	return e.flows.SetLocked(ctx, target, false, toFlowAdmin(admin))
}
