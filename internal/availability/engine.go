// Package availability computes bookable slots from working hours and
// calendar busy intervals.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/nvarela/turnero/internal/calendar"
	"github.com/nvarela/turnero/internal/tenant"
)

// Clock abstracts time.Now so slot clipping is testable.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// overlapTolerance lets a slot touch a busy interval by up to a minute
// without being considered occupied, so back-to-back appointments are
// offered normally.
const overlapTolerance = time.Minute

// Engine produces free slots for a tenant or a single staff member.
type Engine struct {
	calendar calendar.EventCalendar
	clock    Clock
}

// NewEngine builds an engine over the given calendar. A nil clock means the
// wall clock.
func NewEngine(cal calendar.EventCalendar, clock Clock) *Engine {
	if clock == nil {
		clock = realClock{}
	}
	return &Engine{calendar: cal, clock: clock}
}

// FreeSlots returns the open slot start times for the given date, stepping by
// granularity within each working range, in chronological order. A nil staff
// member means the tenant's default hours and every busy interval blocks; a
// staff member restricts both the schedule and the busy intervals to their
// own. When the date is today, slots earlier than the current time are
// clipped. A closed day yields no slots and no error.
func (e *Engine) FreeSlots(ctx context.Context, t *tenant.Tenant, staff *tenant.StaffMember, day time.Time, granularity time.Duration) ([]time.Time, error) {
	if granularity <= 0 {
		return nil, fmt.Errorf("granularity must be positive, got %v", granularity)
	}
	loc := t.Location()
	day = day.In(loc)
	ranges := t.HoursFor(staff, day.Weekday())
	if len(ranges) == 0 {
		return nil, nil
	}

	dayStart := midnight(day, loc)
	busy, err := e.calendar.ListBusy(ctx, t.CalendarID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("error listing busy intervals: %w", err)
	}
	if staff != nil {
		busy = filterByLabel(busy, staff.Name)
	}

	now := e.clock.Now().In(loc)
	today := sameDate(now, day)
	gMin := int(granularity.Minutes())

	var slots []time.Time
	for _, r := range ranges {
		first := r.Start
		if today {
			nowMin := minuteOfDay(now)
			if nowMin >= r.End {
				continue
			}
			if nowMin > first {
				// Next grid point at or after now, anchored to the
				// range start.
				steps := (nowMin - r.Start + gMin - 1) / gMin
				first = r.Start + steps*gMin
			}
		}
		for m := first; m+gMin <= r.End; m += gMin {
			slotStart := atMinute(dayStart, m)
			if !overlapsAny(busy, slotStart, slotStart.Add(granularity)) {
				slots = append(slots, slotStart)
			}
		}
	}
	return slots, nil
}

// ClosingTime returns when the last working range of the date ends. The
// second result is false when the day is not worked.
func (e *Engine) ClosingTime(t *tenant.Tenant, staff *tenant.StaffMember, day time.Time) (time.Time, bool) {
	loc := t.Location()
	day = day.In(loc)
	ranges := t.HoursFor(staff, day.Weekday())
	if len(ranges) == 0 {
		return time.Time{}, false
	}
	end := ranges[0].End
	for _, r := range ranges[1:] {
		if r.End > end {
			end = r.End
		}
	}
	return atMinute(midnight(day, loc), end), true
}

// ClosingShortfall reports how much of the requested duration runs past
// closing time when starting at start. Zero means the appointment fits.
func (e *Engine) ClosingShortfall(t *tenant.Tenant, staff *tenant.StaffMember, start time.Time, total time.Duration) time.Duration {
	closing, ok := e.ClosingTime(t, staff, start)
	if !ok {
		return total
	}
	finish := start.Add(total)
	if !finish.After(closing) {
		return 0
	}
	return finish.Sub(closing)
}

// UpcomingDays returns the next lookahead dates, starting today, on which the
// tenant (or the staff member) has working hours.
func (e *Engine) UpcomingDays(t *tenant.Tenant, staff *tenant.StaffMember, lookahead int) []time.Time {
	loc := t.Location()
	day := midnight(e.clock.Now().In(loc), loc)
	var days []time.Time
	for i := 0; i < lookahead; i++ {
		d := day.AddDate(0, 0, i)
		if len(t.HoursFor(staff, d.Weekday())) > 0 {
			days = append(days, d)
		}
	}
	return days
}

func filterByLabel(busy []calendar.BusyInterval, label string) []calendar.BusyInterval {
	kept := busy[:0:0]
	for _, b := range busy {
		if b.Label == label {
			kept = append(kept, b)
		}
	}
	return kept
}

func overlapsAny(busy []calendar.BusyInterval, start, end time.Time) bool {
	for _, b := range busy {
		if start.Add(overlapTolerance).Before(b.End) && b.Start.Add(overlapTolerance).Before(end) {
			return true
		}
	}
	return false
}

func midnight(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func atMinute(dayStart time.Time, m int) time.Time {
	return time.Date(dayStart.Year(), dayStart.Month(), dayStart.Day(), m/60, m%60, 0, 0, dayStart.Location())
}

func minuteOfDay(t time.Time) int {
	m := t.Hour()*60 + t.Minute()
	if t.Second() > 0 || t.Nanosecond() > 0 {
		m++
	}
	return m
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
