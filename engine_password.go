package idpcore

import (
	"context"
	"strings"
)

// ChangePassword replaces the password of a master account. Reusing the
// current password fails with ErrPasswordReuse. The new password expires
// after Password.PasswordAge.
func (e *Engine) ChangePassword(ctx context.Context, username, newPassword string) error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	return e.flows.ChangePassword(ctx, username, newPassword, false)
}

// SetPasswordWithToken sets the password of the owner of a reset token and
// unlocks the account. The token stays valid when the password is rejected,
// so the user can try again.
func (e *Engine) SetPasswordWithToken(ctx context.Context, value, newPassword string) error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	token, err := e.flows.CheckToken(ctx, string(TokenReset), value, "")
	if err != nil {
		return err
	}
	if err := e.flows.ChangePassword(ctx, token.Username, newPassword, true); err != nil {
		return err
	}
	if _, err := e.flows.ConsumeToken(ctx, string(TokenReset), value); err != nil {
		e.logger.Warn(ctx, "reset token consume failed after password change", "username", token.Username, "error", err)
		return err
	}
	return nil
}

// VerifyEmail consumes a verification token and marks its owner verified.
func (e *Engine) VerifyEmail(ctx context.Context, value string) (string, error) {
	if e == nil || !e.flows.Initialized() {
		return "", ErrEngineNotReady
	}
	token, err := e.flows.ConsumeToken(ctx, string(TokenVerify), value)
	if err != nil {
		return "", err
	}

	username := strings.ToUpper(token.Username)
	_, err = e.accounts.Update(ctx, username, func(a *Account) error {
		a.Verified = true
		return nil
	})
	if err != nil {
		e.emitAudit(ctx, EventVerifyEmailFailure, false, username, "", err, nil)
		return "", err
	}
	e.metricInc(MetricEmailVerified)
	e.emitAudit(ctx, EventVerifyEmailSuccess, true, username, "", nil, nil)
	return username, nil
}

// HashPassword encodes plain with cfg's default scheme, tagged the way the
// engine stores it. It is meant for seeding accounts.
func HashPassword(cfg PasswordConfig, plain string) (string, error) {
	if strings.TrimSpace(plain) == "" {
		return "", ErrPasswordBlank
	}
	schemes, err := newPasswordSchemes(cfg)
	if err != nil {
		return "", err
	}
	return schemes.Hash(plain)
}
