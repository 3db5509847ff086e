package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/models"
	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/store"
)

func TestAllowUpToLimit(t *testing.T) {
	st := store.NewInMemoryStore()
	l := New(st, WithLimit(3), WithWindow(time.Minute))

	for i := 0; i < 3; i++ {
		if err := l.Allow(1); err != nil {
			t.Fatalf("request %d unexpectedly limited: %v", i+1, err)
		}
	}

	err := l.Allow(1)
	var rl *models.RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitedError on request over limit, got %v", err)
	}
	if rl.RetryAfter != time.Minute {
		t.Errorf("expected wait hint of one minute, got %s", rl.RetryAfter)
	}
}

func TestLimitIsPerUser(t *testing.T) {
	st := store.NewInMemoryStore()
	l := New(st, WithLimit(1), WithWindow(time.Minute))

	if err := l.Allow(1); err != nil {
		t.Fatalf("first user unexpectedly limited: %v", err)
	}
	if err := l.Allow(2); err != nil {
		t.Fatalf("second user unexpectedly limited: %v", err)
	}
	if err := l.Allow(1); err == nil {
		t.Error("expected first user to be limited")
	}
}

func TestWindowResets(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	st := store.NewInMemoryStoreWithClock(func() time.Time { return clock() })
	l := New(st, WithLimit(1), WithWindow(time.Minute))

	if err := l.Allow(1); err != nil {
		t.Fatalf("unexpected limit: %v", err)
	}
	if err := l.Allow(1); err == nil {
		t.Fatal("expected limit within window")
	}

	later := now.Add(61 * time.Second)
	clock = func() time.Time { return later }

	if err := l.Allow(1); err != nil {
		t.Errorf("expected fresh window to admit request, got %v", err)
	}
}
