package idpcore

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func notifyHarness(t *testing.T) *harness {
	return newHarness(t, withConfig(func(c *Config) {
		c.Notify.Enabled = true
		c.Notify.InitialPasswordURL = "https://idp.example.gov/initial-password"
	}))
}

func TestSendInitialPassword(t *testing.T) {
	h := notifyHarness(t)
	ctx := context.Background()

	tok, err := h.engine.SendInitialPassword(ctx, "alice")
	if err != nil {
		t.Fatalf("SendInitialPassword error: %v", err)
	}
	if want := h.now.Add(h.engine.config.Token.InitialPasswordTTL); !tok.ExpiresAt.Equal(want) {
		t.Fatalf("expected initial-password lifetime, got %v", tok.ExpiresAt)
	}

	calls := h.notifier.calls()
	if len(calls) != 1 {
		t.Fatalf("expected one send, got %d", len(calls))
	}
	link := calls[0].params["resetLink"]
	if !strings.HasPrefix(link, "https://idp.example.gov/initial-password?token=") || !strings.HasSuffix(link, tok.Value) {
		t.Fatalf("unexpected reset link %q", link)
	}
	if _, err := h.engine.CheckToken(ctx, TokenReset, tok.Value); err != nil {
		t.Fatalf("issued token must be valid: %v", err)
	}
}

func TestSendInitialPasswordRetriesOnceOnServerError(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   bool
	}{
		{"retry succeeds", []error{statusErr(503), nil}, 2, false},
		{"retry fails", []error{statusErr(503), statusErr(502)}, 2, true},
		{"client error not retried", []error{statusErr(400)}, 1, true},
		{"typed delivery error", []error{&DeliveryError{Status: 500}, nil}, 2, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := notifyHarness(t)
			h.notifier.errs = tc.errs

			_, err := h.engine.SendInitialPassword(context.Background(), "alice")
			if got := len(h.notifier.calls()); got != tc.wantCalls {
				t.Fatalf("expected %d sends, got %d", tc.wantCalls, got)
			}
			if !tc.wantErr {
				if err != nil {
					t.Fatalf("expected success, got %v", err)
				}
				return
			}
			var de *DeliveryError
			if !errors.As(err, &de) || !errors.Is(err, ErrDeliveryFailure) {
				t.Fatalf("expected *DeliveryError, got %v", err)
			}
		})
	}
}

func TestSendInitialPasswordNeedsEmail(t *testing.T) {
	h := notifyHarness(t)

	if _, err := h.engine.SendInitialPassword(context.Background(), "dave"); !errors.Is(err, ErrNoRecipient) {
		t.Fatalf("expected ErrNoRecipient, got %v", err)
	}
	if len(h.notifier.calls()) != 0 {
		t.Fatal("nothing must be sent")
	}
}
