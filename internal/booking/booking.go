// Package booking commits and cancels appointments. The calendar is the
// source of truth: a calendar write failure aborts the operation, while a
// local store failure after a successful calendar write is logged and the
// operation still succeeds.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nvarela/turnero/internal/calendar"
	"github.com/nvarela/turnero/internal/store"
	"github.com/nvarela/turnero/internal/tenant"
)

// Committer turns a completed selection into a calendar event plus a booking
// record.
type Committer struct {
	calendar calendar.EventCalendar
	store    store.BookingStore
}

// NewCommitter wires a committer.
func NewCommitter(cal calendar.EventCalendar, st store.BookingStore) *Committer {
	return &Committer{calendar: cal, store: st}
}

// Request carries everything needed to commit a booking. Staff is nil for
// tenants without a staff roster.
type Request struct {
	Tenant       *tenant.Tenant
	Staff        *tenant.StaffMember
	Start        time.Time
	CustomerName string
	Contact      string
	Services     []tenant.Service
}

// Commit writes the calendar event first, then the booking record. On a
// calendar failure nothing is persisted and the error is returned; on a
// store failure after the event exists, the inconsistency is logged and the
// booking is still reported as confirmed.
func (c *Committer) Commit(ctx context.Context, req Request) (*store.Booking, error) {
	if len(req.Services) == 0 {
		return nil, fmt.Errorf("booking requires at least one service")
	}

	var (
		names      = make([]string, len(req.Services))
		totalPrice int
		totalDur   time.Duration
	)
	for i, svc := range req.Services {
		names[i] = svc.Name
		totalPrice += svc.Price
		totalDur += time.Duration(svc.DurationMinutes) * time.Minute
	}

	var staffID, staffName string
	if req.Staff != nil {
		staffID = req.Staff.ID
		staffName = req.Staff.Name
	}

	details := calendar.EventDetails{
		StaffName:       staffName,
		CustomerName:    req.CustomerName,
		CustomerContact: req.Contact,
		Services:        names,
		TotalPrice:      totalPrice,
		TotalDuration:   totalDur,
	}
	eventID, err := c.calendar.CreateEvent(ctx, req.Tenant.CalendarID, calendar.Event{
		Summary:     details.Summary(),
		Description: details.Description(),
		Label:       staffName,
		Start:       req.Start,
		End:         req.Start.Add(totalDur),
	})
	if err != nil {
		return nil, fmt.Errorf("error creating calendar event: %w", err)
	}

	b := &store.Booking{
		TenantID:        req.Tenant.ID,
		EventID:         eventID,
		StaffID:         staffID,
		CustomerName:    req.CustomerName,
		CustomerContact: req.Contact,
		Services:        names,
		TotalPrice:      totalPrice,
		TotalDuration:   totalDur,
		StartsAt:        req.Start,
	}
	if _, err := c.store.Save(ctx, b); err != nil {
		// The event exists; the appointment is real even if the local
		// record is missing.
		log.Ctx(ctx).Warn().Err(err).
			Str("tenant_id", req.Tenant.ID).
			Str("event_id", eventID).
			Msg("calendar event created but booking record not saved")
	}
	return b, nil
}

// Canceller removes an appointment from the calendar and flips its record.
type Canceller struct {
	calendar calendar.EventCalendar
	store    store.BookingStore
}

// NewCanceller wires a canceller.
func NewCanceller(cal calendar.EventCalendar, st store.BookingStore) *Canceller {
	return &Canceller{calendar: cal, store: st}
}

// Cancel deletes the calendar event, then marks the record cancelled. A
// calendar failure aborts and the booking stays confirmed; an event that is
// already gone counts as deleted. A record update failure is logged and the
// cancellation still succeeds.
func (c *Canceller) Cancel(ctx context.Context, t *tenant.Tenant, b *store.Booking) error {
	err := c.calendar.DeleteEvent(ctx, t.CalendarID, b.EventID)
	if err != nil && !errors.Is(err, calendar.ErrEventNotFound) {
		return fmt.Errorf("error deleting calendar event: %w", err)
	}

	ok, err := c.store.MarkCancelled(ctx, b.ID, time.Now())
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).
			Str("tenant_id", t.ID).
			Str("booking_id", b.ID).
			Msg("calendar event deleted but booking record not updated")
		return nil
	}
	if !ok {
		log.Ctx(ctx).Debug().
			Str("booking_id", b.ID).
			Msg("booking was already cancelled")
	}
	return nil
}
