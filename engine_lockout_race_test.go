package idpcore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

var errStoreDown = errors.New("store down")

func TestAuthenticateLockWriteFailureKeepsCounter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var failLock atomic.Bool
	failLock.Store(true)
	h.store.commitErr = func(before, after Account) error {
		if failLock.Load() && after.Locked && !before.Locked {
			return errStoreDown
		}
		return nil
	}

	for attempt := 1; attempt <= 2; attempt++ {
		if _, err := h.engine.Authenticate(ctx, "ALICE", "wrong"); !errors.Is(err, ErrBadCredentials) {
			t.Fatalf("attempt %d: expected ErrBadCredentials, got %v", attempt, err)
		}
	}

	// the threshold is reached but the lock write fails
	if _, err := h.engine.Authenticate(ctx, "ALICE", "wrong"); !errors.Is(err, errStoreDown) {
		t.Fatalf("attempt 3: expected store error, got %v", err)
	}
	if h.account(t, "ALICE").Locked {
		t.Fatal("lock write failed, record must be unchanged")
	}
	if got := h.retries(t, "ALICE"); got != 3 {
		t.Fatalf("counter must survive a failed lock write, got %d", got)
	}

	// every further failure retries the lock instead of starting over
	if _, err := h.engine.Authenticate(ctx, "ALICE", "wrong"); !errors.Is(err, errStoreDown) {
		t.Fatalf("attempt 4: expected store error, got %v", err)
	}
	if got := h.retries(t, "ALICE"); got != 4 {
		t.Fatalf("expected counter 4, got %d", got)
	}

	failLock.Store(false)
	_, err := h.engine.Authenticate(ctx, "ALICE", "wrong")
	if LockReason(err) != LockReasonExceeded {
		t.Fatalf("attempt 5: expected AccountLocked(exceeded), got %v", err)
	}
	if !h.account(t, "ALICE").Locked {
		t.Fatal("expected account locked once the store recovers")
	}
	if got := h.retries(t, "ALICE"); got != 0 {
		t.Fatalf("expected counter cleared after the lock committed, got %d", got)
	}
}

func TestAuthenticateLockCommittedAfterReadWins(t *testing.T) {
	h := newHarness(t, withConfig(func(c *Config) { c.Metrics.Enabled = true }))
	ctx := context.Background()
	before := h.account(t, "ALICE").LastLoggedIn

	var once sync.Once
	h.store.afterFind = func(username string) {
		once.Do(func() {
			_, _ = h.store.Update(ctx, username, func(a *Account) error {
				a.Locked = true
				return nil
			})
		})
	}

	_, err := h.engine.Authenticate(ctx, "ALICE", "correct-password")
	if LockReason(err) != LockReasonAlready {
		t.Fatalf("expected AccountLocked(already), got %v", err)
	}
	if got := h.account(t, "ALICE").LastLoggedIn; !got.Equal(before) {
		t.Fatalf("a rejected login must not be recorded, LastLoggedIn=%v", got)
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricAuthenticateSuccess]; got != 0 {
		t.Fatalf("expected no successful authentication, got %d", got)
	}
}

func TestAuthenticateDisableCommittedAfterReadWins(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var once sync.Once
	h.store.afterFind = func(username string) {
		once.Do(func() {
			_, _ = h.store.Update(ctx, username, func(a *Account) error {
				a.Enabled = false
				return nil
			})
		})
	}

	if _, err := h.engine.Authenticate(ctx, "ALICE", "correct-password"); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestAuthenticateConcurrentFailuresLockAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const attempts = 20
	var (
		wg     sync.WaitGroup
		locked atomic.Int32
		other  atomic.Int32
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.Authenticate(ctx, "ALICE", "wrong")
			switch {
			case errors.Is(err, ErrAccountLocked):
				locked.Add(1)
			case errors.Is(err, ErrBadCredentials):
			default:
				other.Add(1)
			}
		}()
	}
	wg.Wait()

	if other.Load() != 0 {
		t.Fatalf("unexpected errors from %d attempts", other.Load())
	}
	if locked.Load() == 0 || !h.account(t, "ALICE").Locked {
		t.Fatal("expected concurrent failures to lock the account")
	}
	if _, err := h.engine.Authenticate(ctx, "ALICE", "correct-password"); LockReason(err) != LockReasonAlready {
		t.Fatalf("expected locked account to reject the correct password, got %v", err)
	}
}

func TestAuthenticateCorrectPasswordRacingLockout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pw := "wrong"
			if i%3 == 0 {
				pw = "correct-password"
			}
			if _, err := h.engine.Authenticate(ctx, "ALICE", pw); err == nil {
				succeeded.Add(1)
			}
		}(i)
	}
	wg.Wait()

	// whatever the interleaving, a locked record accepts nothing afterwards
	// and every success was stamped on an unlocked record
	final := h.account(t, "ALICE")
	if final.Locked {
		if _, err := h.engine.Authenticate(ctx, "ALICE", "correct-password"); !errors.Is(err, ErrAccountLocked) {
			t.Fatalf("expected ErrAccountLocked after the race, got %v", err)
		}
	}
	if succeeded.Load() > 0 && final.LastLoggedIn.IsZero() {
		t.Fatal("successful logins must be recorded")
	}
}
