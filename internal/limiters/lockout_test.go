package limiters

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newCounter(t *testing.T, cfg RetryConfig) (*RetryCounter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRetryCounter(rdb, cfg), mr
}

func TestRetryCounterKeepsCountPastThreshold(t *testing.T) {
	c, mr := newCounter(t, RetryConfig{})
	ctx := context.Background()

	for want := 1; want <= 4; want++ {
		n, err := c.IncrementRetries(ctx, "alice")
		if err != nil {
			t.Fatalf("IncrementRetries error: %v", err)
		}
		if n != want {
			t.Fatalf("expected count %d, got %d", want, n)
		}
	}
	if got, _ := mr.Get("arc:ALICE"); got != "4" {
		t.Fatalf("expected key to hold 4, got %q", got)
	}

	left, err := c.Retries(ctx, "Alice")
	if err != nil || left != 4 {
		t.Fatalf("expected count 4, got %d err=%v", left, err)
	}
}

func TestRetryCounterReset(t *testing.T) {
	c, _ := newCounter(t, RetryConfig{})
	ctx := context.Background()

	_, _ = c.IncrementRetries(ctx, "bob")
	_, _ = c.IncrementRetries(ctx, "bob")
	if err := c.ResetRetries(ctx, "bob"); err != nil {
		t.Fatalf("ResetRetries error: %v", err)
	}
	n, err := c.IncrementRetries(ctx, "bob")
	if err != nil || n != 1 {
		t.Fatalf("expected fresh count 1 after reset, got %d err=%v", n, err)
	}
}

func TestRetryCounterWindowExpires(t *testing.T) {
	c, mr := newCounter(t, RetryConfig{Window: time.Minute})
	ctx := context.Background()

	_, _ = c.IncrementRetries(ctx, "carol")
	mr.FastForward(2 * time.Minute)

	n, err := c.IncrementRetries(ctx, "carol")
	if err != nil || n != 1 {
		t.Fatalf("expected expired window to restart at 1, got %d err=%v", n, err)
	}
}

func TestRetryCounterConcurrentCountsAreDistinct(t *testing.T) {
	c, _ := newCounter(t, RetryConfig{})
	ctx := context.Background()

	const attempts = 30
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int]bool)
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := c.IncrementRetries(ctx, "dave")
			if err != nil {
				t.Errorf("IncrementRetries error: %v", err)
				return
			}
			mu.Lock()
			seen[n] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != attempts {
		t.Fatalf("expected %d distinct counts, got %d", attempts, len(seen))
	}
}

func TestRetryCounterUnavailable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	c := NewRetryCounter(rdb, RetryConfig{})

	_, err := c.IncrementRetries(context.Background(), "erin")
	if !errors.Is(err, ErrRetryCounterUnavailable) {
		t.Fatalf("expected ErrRetryCounterUnavailable, got %v", err)
	}
}

func TestRetryCounterBlankUsername(t *testing.T) {
	c, _ := newCounter(t, RetryConfig{})
	n, err := c.IncrementRetries(context.Background(), "")
	if err != nil || n != 0 {
		t.Fatalf("blank username should be a no-op, got %d err=%v", n, err)
	}
}
