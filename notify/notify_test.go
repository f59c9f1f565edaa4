package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestSend_PostsTemplateAndParams(t *testing.T) {
	var got sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/notifications/email" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key-1" {
			t.Fatalf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL + "/", APIKey: "key-1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = c.Send(context.Background(), "enable-user", "bob@example.gov", map[string]string{"username": "BOB"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.TemplateID != "enable-user" || got.EmailAddress != "bob@example.gov" || got.Personalisation["username"] != "BOB" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestSend_StatusErrorCarriesCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL})
	err := c.Send(context.Background(), "t", "a@example.gov", nil)

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode() != http.StatusBadGateway || se.Body != "upstream exploded" {
		t.Fatalf("unexpected status error: %+v", se)
	}
}

func TestSend_RejectsEmptyRecipient(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL})
	if err := c.Send(context.Background(), "t", "  ", nil); !errors.Is(err, ErrNoRecipient) {
		t.Fatalf("expected ErrNoRecipient, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("provider should not be called")
	}
}

func TestSend_ThrottleHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL, RatePerSecond: 0.01, Burst: 1})
	if err := c.Send(context.Background(), "t", "a@example.gov", nil); err != nil {
		t.Fatalf("first send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Send(ctx, "t", "a@example.gov", nil); err == nil {
		t.Fatalf("second send should be throttled")
	}
}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
