package store

import (
	"context"
	"testing"
	"time"

	"github.com/nvarela/turnero/internal/testutil"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	return NewSQLStore(testutil.NewTestDB(t))
}

func testBooking(tenantID, contact string, startsAt time.Time) *Booking {
	return &Booking{
		TenantID:        tenantID,
		EventID:         "evt-1",
		StaffID:         "ana",
		CustomerName:    "Maria Lopez",
		CustomerContact: contact,
		Services:        []string{"Haircut", "Color"},
		TotalPrice:      45,
		TotalDuration:   90 * time.Minute,
		StartsAt:        startsAt,
	}
}

func TestSaveAndGetByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	id, err := s.Save(ctx, testBooking("salon-1", "+5491100000001", start))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if id == "" {
		t.Fatal("expected a generated booking id")
	}

	got, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusConfirmed {
		t.Errorf("status = %q, want %q", got.Status, StatusConfirmed)
	}
	if !got.StartsAt.Equal(start) {
		t.Errorf("StartsAt = %v, want %v", got.StartsAt, start)
	}
	if got.TotalDuration != 90*time.Minute {
		t.Errorf("TotalDuration = %v, want 90m", got.TotalDuration)
	}
	if len(got.Services) != 2 || got.Services[0] != "Haircut" {
		t.Errorf("Services = %v", got.Services)
	}
}

func TestFindFutureByContact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	past := testBooking("salon-1", "+549110", now.Add(-2*time.Hour))
	later := testBooking("salon-1", "+549110", now.Add(48*time.Hour))
	soon := testBooking("salon-1", "+549110", now.Add(2*time.Hour))
	other := testBooking("salon-1", "+549999", now.Add(3*time.Hour))
	otherTenant := testBooking("salon-2", "+549110", now.Add(4*time.Hour))
	for _, b := range []*Booking{past, later, soon, other, otherTenant} {
		if _, err := s.Save(ctx, b); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	cancelledID, err := s.Save(ctx, testBooking("salon-1", "+549110", now.Add(5*time.Hour)))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := s.MarkCancelled(ctx, cancelledID, now); err != nil {
		t.Fatalf("MarkCancelled: %v", err)
	}

	got, err := s.FindFutureByContact(ctx, "salon-1", "+549110", now)
	if err != nil {
		t.Fatalf("FindFutureByContact: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d bookings, want 2", len(got))
	}
	if !got[0].StartsAt.Before(got[1].StartsAt) {
		t.Error("bookings not in chronological order")
	}
	if !got[0].StartsAt.Equal(soon.StartsAt) {
		t.Errorf("first booking starts at %v, want %v", got[0].StartsAt, soon.StartsAt)
	}
}

func TestFindConfirmedStartingBetween(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	inside := testBooking("salon-1", "+549110", base.Add(10*time.Hour))
	before := testBooking("salon-1", "+549110", base.Add(8*time.Hour))
	after := testBooking("salon-1", "+549110", base.Add(13*time.Hour))
	for _, b := range []*Booking{inside, before, after} {
		if _, err := s.Save(ctx, b); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	got, err := s.FindConfirmedStartingBetween(ctx, "salon-1", base.Add(9*time.Hour), base.Add(11*time.Hour))
	if err != nil {
		t.Fatalf("FindConfirmedStartingBetween: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d bookings, want 1", len(got))
	}
	if !got[0].StartsAt.Equal(inside.StartsAt) {
		t.Errorf("booking starts at %v, want %v", got[0].StartsAt, inside.StartsAt)
	}
}

func TestMarkCancelledIsWriteOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	id, err := s.Save(ctx, testBooking("salon-1", "+549110", now.Add(time.Hour)))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	ok, err := s.MarkCancelled(ctx, id, now)
	if err != nil || !ok {
		t.Fatalf("first MarkCancelled = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = s.MarkCancelled(ctx, id, now)
	if err != nil {
		t.Fatalf("second MarkCancelled: %v", err)
	}
	if ok {
		t.Error("second MarkCancelled reported success")
	}

	got, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("status = %q, want %q", got.Status, StatusCancelled)
	}
	if got.CancelledAt == nil {
		t.Error("CancelledAt not set")
	}
}

func TestReminderLedger(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	id, err := s.Save(ctx, testBooking("salon-1", "+549110", now.Add(24*time.Hour)))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	sent, err := s.ReminderAlreadySent(ctx, id, "24h")
	if err != nil {
		t.Fatalf("ReminderAlreadySent: %v", err)
	}
	if sent {
		t.Error("reminder reported sent before marking")
	}

	ok, err := s.MarkReminderSent(ctx, id, "24h", now)
	if err != nil || !ok {
		t.Fatalf("MarkReminderSent = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = s.MarkReminderSent(ctx, id, "24h", now)
	if err != nil {
		t.Fatalf("second MarkReminderSent: %v", err)
	}
	if ok {
		t.Error("duplicate MarkReminderSent reported a fresh write")
	}

	sent, err = s.ReminderAlreadySent(ctx, id, "24h")
	if err != nil || !sent {
		t.Fatalf("ReminderAlreadySent after mark = (%v, %v), want (true, nil)", sent, err)
	}

	// Windows are independent keys.
	sent, err = s.ReminderAlreadySent(ctx, id, "2h")
	if err != nil {
		t.Fatalf("ReminderAlreadySent: %v", err)
	}
	if sent {
		t.Error("2h window reported sent after marking only 24h")
	}
}
