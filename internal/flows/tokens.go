package flows

import (
	"context"
	"errors"
	"strings"
	"time"
)

// TokenRecord is the flow-local single-use token.
type TokenRecord struct {
	Value     string
	Type      string
	Username  string
	ExpiresAt time.Time
}

type TokenMetrics struct {
	Created  int
	Invalid  int
	Expired  int
	Consumed int
}

type TokenErrors struct {
	EngineNotReady error
	InvalidType    error
	Invalid        error
	Expired        error
	InvalidUser    error
}

// TokenDeps captures the reset/verification token lifecycle.
type TokenDeps struct {
	// DefaultTTL returns the lifetime of a token type; ok is false for
	// unknown types.
	DefaultTTL func(tokenType string) (ttl time.Duration, ok bool)
	// Describe names the token flow, e.g. "ResetPassword". Events are
	// "<description>Request" and "<description>Failure".
	Describe func(tokenType string) string

	Now      func() time.Time
	NewToken func() (string, error)
	Save     func(ctx context.Context, token TokenRecord) error
	Get      func(ctx context.Context, value string) (TokenRecord, error)
	Consume  func(ctx context.Context, value string) (TokenRecord, error)
	Delete   func(ctx context.Context, value string) error

	MetricInc func(int)
	EmitAudit AuditFunc
	Warn      func(string, ...any)

	Metrics TokenMetrics
	Errors  TokenErrors
}

func (d *TokenDeps) defaults() bool {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.MetricInc == nil {
		d.MetricInc = noopMetric
	}
	if d.EmitAudit == nil {
		d.EmitAudit = noopAudit
	}
	if d.Warn == nil {
		d.Warn = noopWarn
	}
	if d.Describe == nil {
		d.Describe = func(t string) string { return t }
	}
	return d.DefaultTTL != nil && d.NewToken != nil && d.Save != nil &&
		d.Get != nil && d.Consume != nil && d.Delete != nil
}

// RunCreateToken issues a token of tokenType for username. ttl <= 0 selects
// the type's default lifetime.
func RunCreateToken(ctx context.Context, tokenType, username string, ttl time.Duration, deps TokenDeps) (TokenRecord, error) {
	if !deps.defaults() {
		return TokenRecord{}, deps.Errors.EngineNotReady
	}
	defaultTTL, ok := deps.DefaultTTL(tokenType)
	if !ok {
		return TokenRecord{}, deps.Errors.InvalidType
	}
	username = strings.ToUpper(strings.TrimSpace(username))
	if username == "" {
		return TokenRecord{}, deps.Errors.InvalidUser
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}

	value, err := deps.NewToken()
	if err != nil {
		return TokenRecord{}, err
	}
	token := TokenRecord{
		Value:     value,
		Type:      tokenType,
		Username:  username,
		ExpiresAt: deps.Now().Add(ttl),
	}
	if err := deps.Save(ctx, token); err != nil {
		return TokenRecord{}, err
	}

	deps.MetricInc(deps.Metrics.Created)
	deps.EmitAudit(ctx, deps.Describe(tokenType)+"Request", true, username, "", nil, nil)
	return token, nil
}

// RunCheckToken validates value as an unexpired token of tokenType. When
// username is non-empty the token must also belong to that user. A token
// that fails the check is deleted.
func RunCheckToken(ctx context.Context, tokenType, value, username string, deps TokenDeps) (TokenRecord, error) {
	if !deps.defaults() {
		return TokenRecord{}, deps.Errors.EngineNotReady
	}

	token, err := checkActive(ctx, tokenType, value, deps)
	if err == nil && username != "" && !strings.EqualFold(token.Username, strings.TrimSpace(username)) {
		recordInvalid(ctx, tokenType, deps)
		err = deps.Errors.Invalid
	}
	if err != nil {
		if token.Value != "" {
			if delErr := deps.Delete(ctx, token.Value); delErr != nil {
				deps.Warn("idpcore: failed token delete", "error", delErr)
			}
		}
		return TokenRecord{}, err
	}
	return token, nil
}

// RunConsumeToken validates and atomically removes value. Of any number of
// concurrent callers, at most one succeeds.
func RunConsumeToken(ctx context.Context, tokenType, value string, deps TokenDeps) (TokenRecord, error) {
	if !deps.defaults() {
		return TokenRecord{}, deps.Errors.EngineNotReady
	}

	token, err := checkActive(ctx, tokenType, value, deps)
	if err != nil {
		if token.Value != "" {
			if delErr := deps.Delete(ctx, token.Value); delErr != nil {
				deps.Warn("idpcore: failed token delete", "error", delErr)
			}
		}
		return TokenRecord{}, err
	}

	consumed, err := deps.Consume(ctx, token.Value)
	if err != nil {
		if errors.Is(err, deps.Errors.Invalid) {
			recordInvalid(ctx, tokenType, deps)
		}
		return TokenRecord{}, err
	}

	deps.MetricInc(deps.Metrics.Consumed)
	return consumed, nil
}

// checkActive returns the stored token alongside any failure so the caller
// can delete it. A token of another type is reported as invalid and is not
// returned.
func checkActive(ctx context.Context, tokenType, value string, deps TokenDeps) (TokenRecord, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		recordInvalid(ctx, tokenType, deps)
		return TokenRecord{}, deps.Errors.Invalid
	}

	token, err := deps.Get(ctx, value)
	if err != nil {
		if errors.Is(err, deps.Errors.Invalid) {
			recordInvalid(ctx, tokenType, deps)
		}
		return TokenRecord{}, err
	}
	if token.Type != tokenType {
		recordInvalid(ctx, tokenType, deps)
		return TokenRecord{}, deps.Errors.Invalid
	}

	if !deps.Now().Before(token.ExpiresAt) {
		deps.MetricInc(deps.Metrics.Expired)
		deps.EmitAudit(ctx, deps.Describe(tokenType)+"Failure", false, token.Username, "", deps.Errors.Expired, func() map[string]string {
			return map[string]string{
				"reason": "expired",
			}
		})
		return token, deps.Errors.Expired
	}
	return token, nil
}

func recordInvalid(ctx context.Context, tokenType string, deps TokenDeps) {
	deps.MetricInc(deps.Metrics.Invalid)
	deps.EmitAudit(ctx, deps.Describe(tokenType)+"Failure", false, "", "", deps.Errors.Invalid, func() map[string]string {
		return map[string]string{
			"reason": "invalid",
		}
	})
}
