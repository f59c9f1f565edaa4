package limiters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RetryConfig holds configuration for the consecutive-failure counter.
type RetryConfig struct {
	// Window expires an idle counter. 0 keeps it until success or lockout.
	Window time.Duration
	Prefix string
}

var (
	// ErrRetryCounterUnavailable indicates the counter backend is unreachable.
	ErrRetryCounterUnavailable = errors.New("retry counter backend unavailable")
)

// Increments and refreshes the idle window in one step.
var incrementScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
local window = tonumber(ARGV[1])
if window > 0 then
	redis.call('PEXPIRE', KEYS[1], window)
end
return n
`)

// RetryCounter tracks consecutive failed authentications per username.
type RetryCounter struct {
	redis  redis.UniversalClient
	config RetryConfig
}

// NewRetryCounter creates a Redis-backed retry counter.
func NewRetryCounter(redisClient redis.UniversalClient, cfg RetryConfig) *RetryCounter {
	if cfg.Prefix == "" {
		cfg.Prefix = "arc"
	}
	return &RetryCounter{redis: redisClient, config: cfg}
}

func (c *RetryCounter) key(username string) string {
	return c.config.Prefix + ":" + strings.ToUpper(username)
}

// IncrementRetries records a failure and returns the new count. The key
// survives any count; the caller clears it once the account is locked.
func (c *RetryCounter) IncrementRetries(ctx context.Context, username string) (int, error) {
	if username == "" {
		return 0, nil
	}

	n, err := incrementScript.Run(
		ctx,
		c.redis,
		[]string{c.key(username)},
		c.config.Window.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRetryCounterUnavailable, err)
	}
	return int(n), nil
}

// ResetRetries clears the counter, e.g. after a successful login or unlock.
func (c *RetryCounter) ResetRetries(ctx context.Context, username string) error {
	if username == "" {
		return nil
	}

	if err := c.redis.Del(ctx, c.key(username)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRetryCounterUnavailable, err)
	}
	return nil
}

// Retries returns the current failure count for username.
func (c *RetryCounter) Retries(ctx context.Context, username string) (int, error) {
	if username == "" {
		return 0, nil
	}

	count, err := c.redis.Get(ctx, c.key(username)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRetryCounterUnavailable, err)
	}
	return int(count), nil
}
