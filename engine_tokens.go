package idpcore

import (
	"context"
	"time"
)

// CreateToken issues a single-use token of tokenType for username with the
// type's configured lifetime.
func (e *Engine) CreateToken(ctx context.Context, tokenType TokenType, username string) (Token, error) {
	return e.createToken(ctx, tokenType, username, 0)
}

func (e *Engine) createToken(ctx context.Context, tokenType TokenType, username string, ttl time.Duration) (Token, error) {
	if e == nil || !e.flows.Initialized() {
		return Token{}, ErrEngineNotReady
	}
	rec, err := e.flows.CreateToken(ctx, string(tokenType), username, ttl)
	if err != nil {
		return Token{}, err
	}
	return fromFlowToken(rec), nil
}

// CheckToken validates value without consuming it. It fails with
// ErrTokenInvalid or ErrTokenExpired, and a token failing the check is
// deleted.
func (e *Engine) CheckToken(ctx context.Context, tokenType TokenType, value string) (Token, error) {
	return e.CheckTokenForUser(ctx, tokenType, value, "")
}

// CheckTokenForUser is CheckToken that also requires the token to belong to
// username.
func (e *Engine) CheckTokenForUser(ctx context.Context, tokenType TokenType, value, username string) (Token, error) {
	if e == nil || !e.flows.Initialized() {
		return Token{}, ErrEngineNotReady
	}
	rec, err := e.flows.CheckToken(ctx, string(tokenType), value, username)
	if err != nil {
		return Token{}, err
	}
	return fromFlowToken(rec), nil
}

// ConsumeToken validates and removes value. Of concurrent callers at most
// one succeeds.
func (e *Engine) ConsumeToken(ctx context.Context, tokenType TokenType, value string) (Token, error) {
	if e == nil || !e.flows.Initialized() {
		return Token{}, ErrEngineNotReady
	}
	rec, err := e.flows.ConsumeToken(ctx, string(tokenType), value)
	if err != nil {
		return Token{}, err
	}
	return fromFlowToken(rec), nil
}
