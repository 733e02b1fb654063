package availability

import (
	"context"
	"testing"
	"time"

	"github.com/nvarela/turnero/internal/calendar"
	"github.com/nvarela/turnero/internal/tenant"
)

type mockClock struct {
	now time.Time
}

func (c *mockClock) Now() time.Time { return c.now }

type fakeCalendar struct {
	busy []calendar.BusyInterval
	err  error
}

func (f *fakeCalendar) ListBusy(ctx context.Context, calendarID string, from, to time.Time) ([]calendar.BusyInterval, error) {
	return f.busy, f.err
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, calendarID string, ev calendar.Event) (string, error) {
	return "evt", nil
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	return nil
}

func testTenant(t *testing.T) *tenant.Tenant {
	t.Helper()
	reg, err := tenant.ParseRegistry([]byte(`
tenants:
  - id: salon-1
    name: Salon Uno
    timezone: UTC
    whatsapp_number: "+5491100000000"
    calendar_id: cal-1
    hours:
      monday: ["09:00", "18:00"]
      tuesday: ["09:00", "18:00"]
    services:
      - name: Haircut
        price: 20
        duration_minutes: 30
      - name: Color
        price: 40
        duration_minutes: 60
    staff:
      - id: ana
        name: Ana
        hours:
          monday:
            - ["09:00", "13:00"]
            - ["14:00", "18:00"]
`))
	if err != nil {
		t.Fatalf("ParseRegistry: %v", err)
	}
	return reg.ByID("salon-1")
}

// 2026-03-09 is a Monday.
var monday = time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

func at(hour, min int) time.Time {
	return time.Date(2026, 3, 9, hour, min, 0, 0, time.UTC)
}

func containsSlot(slots []time.Time, want time.Time) bool {
	for _, s := range slots {
		if s.Equal(want) {
			return true
		}
	}
	return false
}

func TestFreeSlotsSplitShift(t *testing.T) {
	tn := testTenant(t)
	ana := tn.StaffByID("ana")
	cal := &fakeCalendar{busy: []calendar.BusyInterval{
		{Start: at(10, 0), End: at(10, 30), Label: "Ana"},
	}}
	clock := &mockClock{now: monday.AddDate(0, 0, -1)}
	eng := NewEngine(cal, clock)

	slots, err := eng.FreeSlots(context.Background(), tn, ana, monday, 30*time.Minute)
	if err != nil {
		t.Fatalf("FreeSlots: %v", err)
	}

	// 09:00-13:00 has 8 half-hour slots, 14:00-18:00 another 8; one is busy.
	if len(slots) != 15 {
		t.Fatalf("got %d slots, want 15: %v", len(slots), slots)
	}
	if containsSlot(slots, at(10, 0)) {
		t.Error("10:00 offered despite busy interval")
	}
	// Slots adjacent to the busy interval stay open.
	for _, want := range []time.Time{at(9, 30), at(10, 30)} {
		if !containsSlot(slots, want) {
			t.Errorf("slot %v missing", want)
		}
	}
	// Nothing lands in the midday break.
	if containsSlot(slots, at(13, 0)) || containsSlot(slots, at(13, 30)) {
		t.Error("slot offered inside the midday break")
	}
	// Chronological across the two ranges.
	for i := 1; i < len(slots); i++ {
		if !slots[i-1].Before(slots[i]) {
			t.Fatalf("slots out of order at %d: %v", i, slots)
		}
	}
}

func TestFreeSlotsDayOff(t *testing.T) {
	tn := testTenant(t)
	ana := tn.StaffByID("ana")
	eng := NewEngine(&fakeCalendar{}, &mockClock{now: monday})

	tuesday := monday.AddDate(0, 0, 1)
	slots, err := eng.FreeSlots(context.Background(), tn, ana, tuesday, 30*time.Minute)
	if err != nil {
		t.Fatalf("FreeSlots: %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("got %d slots on a day off, want 0", len(slots))
	}
}

func TestFreeSlotsClipsToday(t *testing.T) {
	tn := testTenant(t)
	ana := tn.StaffByID("ana")
	clock := &mockClock{now: at(10, 14)}
	eng := NewEngine(&fakeCalendar{}, clock)

	slots, err := eng.FreeSlots(context.Background(), tn, ana, monday, 30*time.Minute)
	if err != nil {
		t.Fatalf("FreeSlots: %v", err)
	}
	if len(slots) == 0 {
		t.Fatal("expected slots after clipping")
	}
	if !slots[0].Equal(at(10, 30)) {
		t.Errorf("first slot = %v, want 10:30", slots[0])
	}

	// Past the end of the first range: only the afternoon remains.
	clock.now = at(13, 30)
	slots, err = eng.FreeSlots(context.Background(), tn, ana, monday, 30*time.Minute)
	if err != nil {
		t.Fatalf("FreeSlots: %v", err)
	}
	if len(slots) != 8 || !slots[0].Equal(at(14, 0)) {
		t.Errorf("got %d slots starting %v, want 8 starting 14:00", len(slots), slots[0])
	}
}

func TestFreeSlotsIgnoresOtherStaffBusy(t *testing.T) {
	tn := testTenant(t)
	ana := tn.StaffByID("ana")
	cal := &fakeCalendar{busy: []calendar.BusyInterval{
		{Start: at(10, 0), End: at(10, 30), Label: "Bruno"},
	}}
	eng := NewEngine(cal, &mockClock{now: monday.AddDate(0, 0, -1)})

	slots, err := eng.FreeSlots(context.Background(), tn, ana, monday, 30*time.Minute)
	if err != nil {
		t.Fatalf("FreeSlots: %v", err)
	}
	if !containsSlot(slots, at(10, 0)) {
		t.Error("another staff member's busy interval blocked the slot")
	}
}

func TestFreeSlotsTenantWideBlocksAll(t *testing.T) {
	tn := testTenant(t)
	cal := &fakeCalendar{busy: []calendar.BusyInterval{
		{Start: at(10, 0), End: at(10, 30), Label: "Bruno"},
	}}
	eng := NewEngine(cal, &mockClock{now: monday.AddDate(0, 0, -1)})

	// No staff filter: any busy interval blocks the slot.
	slots, err := eng.FreeSlots(context.Background(), tn, nil, monday, 30*time.Minute)
	if err != nil {
		t.Fatalf("FreeSlots: %v", err)
	}
	if containsSlot(slots, at(10, 0)) {
		t.Error("busy interval ignored for tenant-wide availability")
	}
}

func TestClosingShortfall(t *testing.T) {
	tn := testTenant(t)
	ana := tn.StaffByID("ana")
	eng := NewEngine(&fakeCalendar{}, &mockClock{now: monday})

	// 90 minutes starting 17:30 against an 18:00 close: 60 minutes over.
	short := eng.ClosingShortfall(tn, ana, at(17, 30), 90*time.Minute)
	if short != 60*time.Minute {
		t.Errorf("shortfall = %v, want 60m", short)
	}
	// 30 minutes starting 17:30 ends exactly at close: fits.
	if short := eng.ClosingShortfall(tn, ana, at(17, 30), 30*time.Minute); short != 0 {
		t.Errorf("shortfall = %v, want 0", short)
	}
}

func TestUpcomingDays(t *testing.T) {
	tn := testTenant(t)
	ana := tn.StaffByID("ana")
	eng := NewEngine(&fakeCalendar{}, &mockClock{now: at(11, 0)})

	// Ana works Mondays only: a week of lookahead from a Monday finds one day.
	days := eng.UpcomingDays(tn, ana, 7)
	if len(days) != 1 {
		t.Fatalf("got %d days, want 1: %v", len(days), days)
	}
	if !days[0].Equal(monday) {
		t.Errorf("day = %v, want %v", days[0], monday)
	}

	// Tenant default hours cover Monday and Tuesday.
	days = eng.UpcomingDays(tn, nil, 7)
	if len(days) != 2 {
		t.Fatalf("got %d tenant days, want 2: %v", len(days), days)
	}
}
