package idpcore

import (
	"context"
	"strings"
)

// Authenticate decides one login attempt for username/password.
//
// Failures are ErrMissingCredentials, ErrBadCredentials (also for unknown
// users), *AccountLockedError, ErrAccountDisabled and ErrPasswordExpired.
// The N-th consecutive bad password locks the account. Exactly one audit
// event is emitted per call.
func (e *Engine) Authenticate(ctx context.Context, username, password string) (Account, error) {
	if e == nil || !e.flows.Initialized() {
		return Account{}, ErrEngineNotReady
	}
	rec, err := e.flows.Authenticate(ctx, username, password)
	if err != nil {
		return Account{}, err
	}

	acct, findErr := e.accounts.FindByUsername(ctx, rec.Username, false)
	if findErr != nil {
		e.logger.Warn(ctx, "authenticated account reload failed", "username", rec.Username, "error", findErr)
		return fromFlowAccount(rec), nil
	}
	return acct, nil
}

// IssueAccessToken signs a short-lived access token for account. Only
// canonical ROLE_ authorities are embedded.
func (e *Engine) IssueAccessToken(account Account) (string, error) {
	if e == nil || e.jwtManager == nil {
		return "", ErrEngineNotReady
	}
	authorities := make([]string, 0, len(account.Authorities))
	for _, code := range account.Authorities {
		authorities = append(authorities, Authority{Code: code}.Authority())
	}
	return e.jwtManager.CreateAccess(account.Username, authorities)
}

// PrincipalFromAccessToken verifies token and returns the administrator it
// names.
func (e *Engine) PrincipalFromAccessToken(token string) (Principal, error) {
	if e == nil || e.jwtManager == nil {
		return Principal{}, ErrEngineNotReady
	}
	claims, err := e.jwtManager.ParseAccess(strings.TrimSpace(token))
	if err != nil {
		return Principal{}, ErrAccessTokenInvalid
	}
	return Principal{
		Username:    strings.ToUpper(claims.Username),
		Authorities: append([]string(nil), claims.Authorities...),
	}, nil
}
