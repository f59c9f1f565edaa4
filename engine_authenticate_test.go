package idpcore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/idpcore/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestAuthenticateSuccessResetsRetriesAndStampsLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.engine.Authenticate(ctx, "alice", "wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
	if got := h.retries(t, "alice"); got != 1 {
		t.Fatalf("expected counter 1, got %d", got)
	}

	acct, err := h.engine.Authenticate(ctx, " alice ", "correct-password")
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if acct.Username != "ALICE" {
		t.Fatalf("expected ALICE, got %q", acct.Username)
	}
	if got := h.retries(t, "alice"); got != 0 {
		t.Fatalf("expected counter reset, got %d", got)
	}
	if !h.account(t, "alice").LastLoggedIn.Equal(h.now) {
		t.Fatalf("expected last login stamped at %v, got %v", h.now, h.account(t, "alice").LastLoggedIn)
	}
}

func TestAuthenticateLockoutScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for attempt := 1; attempt <= 2; attempt++ {
		_, err := h.engine.Authenticate(ctx, "ALICE", "wrong")
		if !errors.Is(err, ErrBadCredentials) {
			t.Fatalf("attempt %d: expected ErrBadCredentials, got %v", attempt, err)
		}
		if got := h.retries(t, "ALICE"); got != attempt {
			t.Fatalf("attempt %d: expected counter %d, got %d", attempt, attempt, got)
		}
	}

	_, err := h.engine.Authenticate(ctx, "ALICE", "wrong")
	var locked *AccountLockedError
	if !errors.As(err, &locked) || locked.Reason != LockReasonExceeded {
		t.Fatalf("expected AccountLocked(exceeded), got %v", err)
	}
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatal("lock error must match ErrAccountLocked")
	}
	if !h.account(t, "ALICE").Locked {
		t.Fatal("expected account locked")
	}
	if got := h.retries(t, "ALICE"); got != 0 {
		t.Fatalf("expected counter reset on lock, got %d", got)
	}

	_, err = h.engine.Authenticate(ctx, "ALICE", "correct-password")
	if LockReason(err) != LockReasonAlready {
		t.Fatalf("expected AccountLocked(already) with correct password, got %v", err)
	}
}

func TestAuthenticateLockedAccountNeverAuthenticates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, _ = h.store.Update(ctx, "ALICE", func(a *Account) error {
		a.Locked = true
		return nil
	})

	for _, pw := range []string{"correct-password", "wrong"} {
		_, err := h.engine.Authenticate(ctx, "alice", pw)
		if LockReason(err) != LockReasonAlready {
			t.Fatalf("password %q: expected AccountLocked(already), got %v", pw, err)
		}
	}
	if got := h.retries(t, "alice"); got != 0 {
		t.Fatalf("locked attempts must not touch the counter, got %d", got)
	}
}

func TestAuthenticateMissingCredentialsTouchesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cases := []struct{ user, pw string }{
		{"", "pw"},
		{"   ", "pw"},
		{"alice", ""},
	}
	for _, tc := range cases {
		if _, err := h.engine.Authenticate(ctx, tc.user, tc.pw); !errors.Is(err, ErrMissingCredentials) {
			t.Fatalf("%q/%q: expected ErrMissingCredentials, got %v", tc.user, tc.pw, err)
		}
	}
	if got := h.retries(t, "alice"); got != 0 {
		t.Fatalf("expected counter untouched, got %d", got)
	}
}

func TestAuthenticateUnknownUserIsBadCredentials(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.Authenticate(context.Background(), "nobody", "pw")
	if !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
	if errors.Is(err, ErrAccountNotFound) {
		t.Fatal("unknown user must not be distinguishable")
	}
}

func TestAuthenticateDisabledAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, _ = h.store.Update(ctx, "ALICE", func(a *Account) error {
		a.Enabled = false
		return nil
	})

	if _, err := h.engine.Authenticate(ctx, "alice", "correct-password"); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestAuthenticateExpiredPassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, _ = h.engine.Authenticate(ctx, "alice", "wrong")
	h.now = h.now.Add(48 * time.Hour)

	if _, err := h.engine.Authenticate(ctx, "alice", "correct-password"); !errors.Is(err, ErrPasswordExpired) {
		t.Fatalf("expected ErrPasswordExpired, got %v", err)
	}
	if got := h.retries(t, "alice"); got != 0 {
		t.Fatalf("expected counter reset on correct password, got %d", got)
	}
	if !h.account(t, "alice").LastLoggedIn.Equal(h.now) {
		t.Fatal("expected login recorded for expired password")
	}
}

func TestAuthenticateUpgradesLegacyHash(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	legacy, err := password.OracleSHA1{}.Hash("legacy-password")
	if err != nil {
		t.Fatalf("oracle hash error: %v", err)
	}
	h.addAccount(t, Account{Username: "ERIN"}, "")
	_, _ = h.store.Update(ctx, "ERIN", func(a *Account) error {
		a.PasswordHash = legacy
		return nil
	})

	if _, err := h.engine.Authenticate(ctx, "erin", "legacy-password"); err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	stored := h.account(t, "erin").PasswordHash
	if password.SchemeID(stored) != password.SchemeBcrypt {
		t.Fatalf("expected upgrade to bcrypt, got %q", stored)
	}
	if _, err := h.engine.Authenticate(ctx, "erin", "legacy-password"); err != nil {
		t.Fatalf("Authenticate after upgrade error: %v", err)
	}
}

func TestAuthenticateDirectorySyncAndDelegation(t *testing.T) {
	h := newHarness(t, withDirectory())
	ctx := context.Background()
	h.directory.add(ExternalAccount{Username: "frank", Email: "frank@example.gov", Enabled: true}, "dir-password")

	acct, err := h.engine.Authenticate(ctx, "frank", "dir-password")
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if acct.Master || acct.Username != "FRANK" {
		t.Fatalf("expected non-master shadow account FRANK, got %+v", acct)
	}
	if acct.PasswordHash != "" {
		t.Fatal("shadow account must not store a password hash")
	}

	if _, err := h.engine.Authenticate(ctx, "frank", "wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials from directory, got %v", err)
	}
	if got := h.retries(t, "frank"); got != 1 {
		t.Fatalf("expected delegated failure counted, got %d", got)
	}

	if _, err := h.engine.Authenticate(ctx, "ghost", "pw"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials for unknown directory user, got %v", err)
	}
}

func TestAuthenticateDirectoryFailurePropagates(t *testing.T) {
	h := newHarness(t, withDirectory())
	h.directory.down = true

	_, err := h.engine.Authenticate(context.Background(), "frank", "pw")
	if err == nil || errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected directory error to propagate, got %v", err)
	}
}

func TestAuthenticateEmitsOneEventPerAttempt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _ = h.engine.Authenticate(ctx, "alice", "correct-password")
	_, _ = h.engine.Authenticate(ctx, "alice", "wrong-secret")
	_, _ = h.engine.Authenticate(ctx, "", "")
	_, _ = h.engine.Authenticate(ctx, "nobody", "wrong-secret")

	events := h.events()
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d: %+v", len(events), events)
	}
	if events[0].EventType != EventAuthenticateSuccess || !events[0].Success {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	if events[1].EventType != EventAuthenticateFailure || events[1].Reason != string(auditErrBadCredentials) {
		t.Fatalf("unexpected second event %+v", events[1])
	}
	if events[2].Metadata["outcome"] != "missing_credentials" {
		t.Fatalf("unexpected third event %+v", events[2])
	}
	for _, e := range events {
		for k, v := range e.Metadata {
			if strings.Contains(v, "wrong-secret") || strings.Contains(v, "correct-password") {
				t.Fatalf("password leaked in metadata %s=%q", k, v)
			}
		}
	}
}

func TestAuthenticateLockEventCarriesReason(t *testing.T) {
	h := newHarness(t, withConfig(func(c *Config) { c.Lockout.MaxRetries = 1 }))

	_, _ = h.engine.Authenticate(context.Background(), "alice", "wrong")

	events := h.events()
	if len(events) != 1 || events[0].Metadata["lock_reason"] != LockReasonExceeded {
		t.Fatalf("expected one lock event with reason, got %+v", events)
	}
}

func TestAuthenticateSurvivesPanickingSink(t *testing.T) {
	h := newHarness(t)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	engine, err := New().
		WithConfig(h.engine.Config()).
		WithRedis(rdb).
		WithStore(h.store).
		WithAuditSink(panicSink{}).
		Build()
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	defer engine.Close()

	if _, err := engine.Authenticate(context.Background(), "alice", "correct-password"); err != nil {
		t.Fatalf("sink failure changed the result: %v", err)
	}
	if _, err := engine.Authenticate(context.Background(), "alice", "wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("sink failure changed the result: %v", err)
	}
	engine.Close()
	if engine.AuditDropped() != 2 {
		t.Fatalf("expected both events counted as dropped, got %d", engine.AuditDropped())
	}
}
