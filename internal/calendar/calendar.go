// Package calendar defines the event-calendar contract the booking engine
// consumes. The calendar is the source of truth for availability: bookings
// exist as events, and busy intervals are derived from stored events.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEventNotFound is returned when a delete targets an unknown event id.
var ErrEventNotFound = errors.New("calendar event not found")

// BusyInterval is one occupied [Start, End) interval. The label identifies
// which staff member the underlying event belongs to; an empty label means
// the event is not tied to a particular staff member.
type BusyInterval struct {
	Start time.Time
	End   time.Time
	Label string
}

// Event is the payload for event creation.
type Event struct {
	Summary     string
	Description string
	Label       string
	Start       time.Time
	End         time.Time
}

// EventCalendar is the collaborator contract from the booking engine's point
// of view.
type EventCalendar interface {
	ListBusy(ctx context.Context, calendarID string, from, to time.Time) ([]BusyInterval, error)
	CreateEvent(ctx context.Context, calendarID string, event Event) (string, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// EventDetails carries everything a booking event encodes into its summary
// and description so that humans (and out-of-band reconciliation) can read a
// calendar entry on its own.
type EventDetails struct {
	StaffName       string
	CustomerName    string
	CustomerContact string
	Services        []string
	TotalPrice      int
	TotalDuration   time.Duration
}

// Summary renders the event title: "<staff> - <services> - <customer>", with
// "Booking" standing in when no staff member was chosen.
func (d EventDetails) Summary() string {
	who := d.StaffName
	if who == "" {
		who = "Booking"
	}
	return fmt.Sprintf("%s - %s - %s", who, strings.Join(d.Services, " + "), d.CustomerName)
}

// Description renders the line-oriented event body.
func (d EventDetails) Description() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Customer: %s\n", d.CustomerName)
	fmt.Fprintf(&b, "Contact: %s\n", d.CustomerContact)
	fmt.Fprintf(&b, "Services: %s\n", strings.Join(d.Services, " + "))
	fmt.Fprintf(&b, "Total: $%d\n", d.TotalPrice)
	fmt.Fprintf(&b, "Duration: %d min", int(d.TotalDuration.Minutes()))
	if d.StaffName != "" {
		fmt.Fprintf(&b, "\nStaff: %s", d.StaffName)
	}
	return b.String()
}
