package idpcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/idpcore/internal"
	"github.com/MrEthical07/idpcore/internal/limiters"
	"github.com/MrEthical07/idpcore/internal/stores"
)

// redisTokenStore adapts the Redis token records to TokenStore. Raw token
// values never reach Redis; records are keyed by their hash.
type redisTokenStore struct {
	store *stores.TokenStore
}

func newRedisTokenStore(s *stores.TokenStore) *redisTokenStore {
	return &redisTokenStore{store: s}
}

func (r *redisTokenStore) SaveToken(ctx context.Context, token Token) error {
	err := r.store.Save(ctx, internal.HashToken(token.Value), &stores.TokenRecord{
		Type:      string(token.Type),
		Username:  token.Username,
		ExpiresAt: token.ExpiresAt.Unix(),
	})
	return mapTokenStoreError(err)
}

func (r *redisTokenStore) GetToken(ctx context.Context, value string) (Token, error) {
	value, err := internal.ParseToken(value)
	if err != nil {
		return Token{}, ErrTokenInvalid
	}
	rec, err := r.store.Get(ctx, internal.HashToken(value))
	if err != nil {
		return Token{}, mapTokenStoreError(err)
	}
	return fromStoreToken(value, rec), nil
}

func (r *redisTokenStore) ConsumeToken(ctx context.Context, value string) (Token, error) {
	value, err := internal.ParseToken(value)
	if err != nil {
		return Token{}, ErrTokenInvalid
	}
	rec, err := r.store.Consume(ctx, internal.HashToken(value))
	if err != nil {
		return Token{}, mapTokenStoreError(err)
	}
	return fromStoreToken(value, rec), nil
}

func (r *redisTokenStore) DeleteToken(ctx context.Context, value string) error {
	value, err := internal.ParseToken(value)
	if err != nil {
		return nil
	}
	return mapTokenStoreError(r.store.Delete(ctx, internal.HashToken(value)))
}

func fromStoreToken(value string, rec *stores.TokenRecord) Token {
	return Token{
		Value:     value,
		Type:      TokenType(rec.Type),
		Username:  rec.Username,
		ExpiresAt: time.Unix(rec.ExpiresAt, 0),
	}
}

func mapTokenStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrTokenNotFound):
		return ErrTokenInvalid
	default:
		return fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
}

// redisRetryTracker adapts the Redis retry counter to RetryTracker.
type redisRetryTracker struct {
	counter *limiters.RetryCounter
}

func (r *redisRetryTracker) IncrementRetries(ctx context.Context, username string) (int, error) {
	n, err := r.counter.IncrementRetries(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRetryTrackerUnavailable, err)
	}
	return n, nil
}

func (r *redisRetryTracker) ResetRetries(ctx context.Context, username string) error {
	if err := r.counter.ResetRetries(ctx, username); err != nil {
		return fmt.Errorf("%w: %v", ErrRetryTrackerUnavailable, err)
	}
	return nil
}
