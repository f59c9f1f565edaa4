package stores

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTokenStore(t *testing.T) (*TokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewTokenStore(rdb, "", time.Hour), mr
}

func TestTokenStoreSaveGetConsume(t *testing.T) {
	s, _ := newTokenStore(t)
	ctx := context.Background()

	rec := &TokenRecord{Type: "RESET", Username: "ALICE", ExpiresAt: time.Now().Add(time.Hour).Unix()}
	if err := s.Save(ctx, "h1", rec); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	got, err := s.Get(ctx, "h1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Type != "RESET" || got.Username != "ALICE" || got.ExpiresAt != rec.ExpiresAt {
		t.Fatalf("unexpected record %+v", got)
	}

	consumed, err := s.Consume(ctx, "h1")
	if err != nil {
		t.Fatalf("Consume error: %v", err)
	}
	if consumed.Username != "ALICE" {
		t.Fatalf("unexpected consumed record %+v", consumed)
	}

	if _, err := s.Consume(ctx, "h1"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected second consume to fail with ErrTokenNotFound, got %v", err)
	}
	if _, err := s.Get(ctx, "h1"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected consumed token to be gone, got %v", err)
	}
}

func TestTokenStoreExpiredRecordRetained(t *testing.T) {
	s, mr := newTokenStore(t)
	ctx := context.Background()

	rec := &TokenRecord{Type: "VERIFY", Username: "BOB", ExpiresAt: time.Now().Add(time.Minute).Unix()}
	if err := s.Save(ctx, "h2", rec); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	got, err := s.Get(ctx, "h2")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !got.Expired(time.Now().Add(2 * time.Minute)) {
		t.Fatal("expected record to report expired in the future")
	}

	mr.FastForward(2 * time.Hour)
	if _, err := s.Get(ctx, "h2"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected record to be evicted after retention, got %v", err)
	}
}

func TestTokenStoreDelete(t *testing.T) {
	s, mr := newTokenStore(t)
	ctx := context.Background()

	_ = s.Save(ctx, "h3", &TokenRecord{Type: "RESET", Username: "C", ExpiresAt: time.Now().Add(time.Hour).Unix()})
	if err := s.Delete(ctx, "h3"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if mr.Exists("atk:h3") {
		t.Fatal("expected key to be removed")
	}
}

func TestTokenStoreConcurrentConsumeSingleWinner(t *testing.T) {
	s, _ := newTokenStore(t)
	ctx := context.Background()

	_ = s.Save(ctx, "h4", &TokenRecord{Type: "RESET", Username: "D", ExpiresAt: time.Now().Add(time.Hour).Unix()})

	const workers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Consume(ctx, "h4"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one successful consume, got %d", wins)
	}
}

func TestTokenStoreUnavailable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	s := NewTokenStore(rdb, "", 0)

	_, err := s.Get(context.Background(), "h5")
	if !errors.Is(err, ErrTokenRedisUnavailable) {
		t.Fatalf("expected ErrTokenRedisUnavailable, got %v", err)
	}
}

func TestDecodeTokenRecordRejectsBadVersion(t *testing.T) {
	if _, err := decodeTokenRecord([]byte{9, 0, 0}); err == nil {
		t.Fatal("expected invalid version error")
	}
	if _, err := decodeTokenRecord(nil); err == nil {
		t.Fatal("expected error on empty data")
	}
}
