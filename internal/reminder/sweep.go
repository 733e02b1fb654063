package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nvarela/turnero/internal/messaging"
	"github.com/nvarela/turnero/internal/session"
	"github.com/nvarela/turnero/internal/store"
	"github.com/nvarela/turnero/internal/tenant"
)

// Clock abstracts time.Now for the sweep.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Window is one reminder lead time. Label keys the sent-reminder ledger, so
// it must stay stable across releases.
type Window struct {
	Label string
	Lead  time.Duration
}

// DefaultWindows reminds a day ahead and two hours ahead.
func DefaultWindows() []Window {
	return []Window{
		{Label: "24h", Lead: 24 * time.Hour},
		{Label: "2h", Lead: 2 * time.Hour},
	}
}

// Sweeper finds bookings entering a reminder window and messages the
// customer once per (booking, window). Delivery is at-least-once: the ledger
// is only written after a successful send, so a failed send is retried on
// the next sweep.
type Sweeper struct {
	registry  *tenant.Registry
	bookings  store.BookingStore
	prefs     session.Store
	messenger messaging.Messenger
	clock     Clock
	windows   []Window
	band      time.Duration
}

// NewSweeper wires a sweeper. band is the half-width of the catch-up range
// around each lead time, so bookings whose exact reminder moment fell
// between sweeps are still caught. A nil clock means the wall clock.
func NewSweeper(reg *tenant.Registry, bookings store.BookingStore, prefs session.Store, messenger messaging.Messenger, clock Clock, windows []Window, band time.Duration) *Sweeper {
	if clock == nil {
		clock = realClock{}
	}
	if len(windows) == 0 {
		windows = DefaultWindows()
	}
	if band <= 0 {
		band = time.Hour
	}
	return &Sweeper{
		registry:  reg,
		bookings:  bookings,
		prefs:     prefs,
		messenger: messenger,
		clock:     clock,
		windows:   windows,
		band:      band,
	}
}

// Sweep runs one pass over every tenant and window. Tenant failures are
// isolated: one tenant's error never blocks the others.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.clock.Now()
	for _, t := range s.registry.All() {
		for _, w := range s.windows {
			if err := s.sweepWindow(ctx, t, w, now); err != nil {
				log.Ctx(ctx).Error().Err(err).
					Str("tenant_id", t.ID).
					Str("window", w.Label).
					Msg("reminder sweep failed")
			}
		}
	}
}

func (s *Sweeper) sweepWindow(ctx context.Context, t *tenant.Tenant, w Window, now time.Time) error {
	from := now.Add(w.Lead - s.band)
	to := now.Add(w.Lead + s.band)
	bookings, err := s.bookings.FindConfirmedStartingBetween(ctx, t.ID, from, to)
	if err != nil {
		return fmt.Errorf("error finding bookings: %w", err)
	}

	for _, bk := range bookings {
		sent, err := s.bookings.ReminderAlreadySent(ctx, bk.ID, w.Label)
		if err != nil {
			return fmt.Errorf("error checking reminder ledger: %w", err)
		}
		if sent {
			continue
		}

		disabled, err := s.prefs.RemindersDisabled(ctx, t.ID, bk.CustomerContact)
		if err != nil {
			return fmt.Errorf("error reading reminder preference: %w", err)
		}
		if disabled {
			// No ledger write: re-enabling inside the window still
			// gets the reminder.
			continue
		}

		if err := s.messenger.Send(ctx, t.WhatsAppNumber, bk.CustomerContact, reminderText(t, &bk, w)); err != nil {
			log.Ctx(ctx).Warn().Err(err).
				Str("booking_id", bk.ID).
				Str("window", w.Label).
				Msg("reminder send failed, will retry next sweep")
			continue
		}
		if _, err := s.bookings.MarkReminderSent(ctx, bk.ID, w.Label, now); err != nil {
			return fmt.Errorf("error marking reminder sent: %w", err)
		}
		log.Ctx(ctx).Info().
			Str("tenant_id", t.ID).
			Str("booking_id", bk.ID).
			Str("window", w.Label).
			Msg("reminder sent")
	}
	return nil
}

func reminderText(t *tenant.Tenant, bk *store.Booking, w Window) string {
	when := bk.StartsAt.In(t.Location()).Format("Monday 2 January at 15:04")
	line := fmt.Sprintf("Reminder from %s: %s on %s", t.Name, strings.Join(bk.Services, " + "), when)
	if staff := t.StaffByID(bk.StaffID); staff != nil {
		line += " with " + staff.Name
	}
	return line + ". Write \"reminders off\" to stop these messages."
}
