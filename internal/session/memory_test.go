package session

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore(30 * time.Minute)
	ctx := context.Background()

	got, err := s.Get(ctx, "salon-1", "+549110")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatal("expected no session before Put")
	}

	if err := s.Put(ctx, "salon-1", "+549110", &Session{Step: "menu"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err = s.Get(ctx, "salon-1", "+549110")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Step != "menu" {
		t.Fatalf("got %+v, want step menu", got)
	}

	// Different tenant, same user: independent sessions.
	got, err = s.Get(ctx, "salon-2", "+549110")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Error("session leaked across tenants")
	}

	if err := s.Delete(ctx, "salon-1", "+549110"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err = s.Get(ctx, "salon-1", "+549110")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Error("session survived Delete")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore(30 * time.Minute)
	ctx := context.Background()

	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	s.SetNowFunc(func() time.Time { return now })

	if err := s.Put(ctx, "salon-1", "+549110", &Session{Step: "selecting_day"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Just inside the TTL.
	now = now.Add(29 * time.Minute)
	got, err := s.Get(ctx, "salon-1", "+549110")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("session expired early")
	}

	// A Get refreshes nothing; only Put resets the TTL.
	now = now.Add(2 * time.Minute)
	got, err = s.Get(ctx, "salon-1", "+549110")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Error("session survived past the idle TTL")
	}
}

func TestMemoryStoreReminderPrefs(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	disabled, err := s.RemindersDisabled(ctx, "salon-1", "+549110")
	if err != nil {
		t.Fatalf("RemindersDisabled: %v", err)
	}
	if disabled {
		t.Error("reminders disabled by default")
	}

	if err := s.SetRemindersDisabled(ctx, "salon-1", "+549110", true); err != nil {
		t.Fatalf("SetRemindersDisabled: %v", err)
	}
	disabled, _ = s.RemindersDisabled(ctx, "salon-1", "+549110")
	if !disabled {
		t.Error("preference not recorded")
	}

	// Scoped per tenant.
	disabled, _ = s.RemindersDisabled(ctx, "salon-2", "+549110")
	if disabled {
		t.Error("preference leaked across tenants")
	}

	if err := s.SetRemindersDisabled(ctx, "salon-1", "+549110", false); err != nil {
		t.Fatalf("SetRemindersDisabled: %v", err)
	}
	disabled, _ = s.RemindersDisabled(ctx, "salon-1", "+549110")
	if disabled {
		t.Error("preference not cleared")
	}
}
