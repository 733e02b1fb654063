// Package store persists booking records and the sent-reminder ledger.
// Booking history is append-only: records are created confirmed, flipped to
// cancelled, and never deleted.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nvarela/turnero/internal/db"
)

// Status is the lifecycle state of a booking record.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Booking is one appointment record. StartsAt is timezone-aware; it is
// persisted in UTC and rendered in the tenant's location at the edges.
type Booking struct {
	ID              string
	TenantID        string
	EventID         string
	StaffID         string
	CustomerName    string
	CustomerContact string
	Services        []string
	TotalPrice      int
	TotalDuration   time.Duration
	StartsAt        time.Time
	Status          Status
	CreatedAt       time.Time
	CancelledAt     *time.Time
}

// BookingStore is the persistence contract consumed by the committer, the
// cancellation flow, and the reminder sweep.
type BookingStore interface {
	Save(ctx context.Context, booking *Booking) (string, error)
	GetByID(ctx context.Context, id string) (*Booking, error)
	FindFutureByContact(ctx context.Context, tenantID, contact string, now time.Time) ([]Booking, error)
	FindConfirmedStartingBetween(ctx context.Context, tenantID string, from, to time.Time) ([]Booking, error)
	MarkCancelled(ctx context.Context, id string, at time.Time) (bool, error)
	ReminderAlreadySent(ctx context.Context, bookingID, windowLabel string) (bool, error)
	MarkReminderSent(ctx context.Context, bookingID, windowLabel string, at time.Time) (bool, error)
}

// SQLStore is the SQLite-backed BookingStore.
type SQLStore struct {
	db *db.DB
}

// NewSQLStore binds the store to an opened database.
func NewSQLStore(database *db.DB) *SQLStore {
	return &SQLStore{db: database}
}

// Save inserts a new booking record and returns its id. A missing id is
// generated; status defaults to confirmed.
func (s *SQLStore) Save(ctx context.Context, booking *Booking) (string, error) {
	if booking.ID == "" {
		booking.ID = uuid.New().String()
	}
	if booking.Status == "" {
		booking.Status = StatusConfirmed
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now()
	}

	services, err := json.Marshal(booking.Services)
	if err != nil {
		return "", fmt.Errorf("error encoding services: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bookings (
			id, tenant_id, event_id, staff_id, customer_name, customer_contact,
			services, total_price, total_duration_min, starts_at, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		booking.ID, booking.TenantID, booking.EventID, booking.StaffID,
		booking.CustomerName, booking.CustomerContact, string(services),
		booking.TotalPrice, int(booking.TotalDuration.Minutes()),
		formatTime(booking.StartsAt), string(booking.Status), formatTime(booking.CreatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("error saving booking: %w", err)
	}
	return booking.ID, nil
}

// GetByID returns the booking with the given id, or sql.ErrNoRows.
func (s *SQLStore) GetByID(ctx context.Context, id string) (*Booking, error) {
	row := s.db.QueryRowContext(ctx, selectBookings+` WHERE id = ?`, id)
	booking, err := scanBooking(row)
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// FindFutureByContact returns the contact's confirmed bookings starting
// after now, in chronological order. Cancelled bookings never appear.
func (s *SQLStore) FindFutureByContact(ctx context.Context, tenantID, contact string, now time.Time) ([]Booking, error) {
	rows, err := s.db.QueryContext(ctx, selectBookings+`
		WHERE tenant_id = ? AND customer_contact = ? AND status = ? AND starts_at > ?
		ORDER BY starts_at`,
		tenantID, contact, string(StatusConfirmed), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("error listing future bookings: %w", err)
	}
	return collectBookings(rows)
}

// FindConfirmedStartingBetween returns confirmed bookings with
// from <= starts_at <= to, in chronological order.
func (s *SQLStore) FindConfirmedStartingBetween(ctx context.Context, tenantID string, from, to time.Time) ([]Booking, error) {
	rows, err := s.db.QueryContext(ctx, selectBookings+`
		WHERE tenant_id = ? AND status = ? AND starts_at >= ? AND starts_at <= ?
		ORDER BY starts_at`,
		tenantID, string(StatusConfirmed), formatTime(from), formatTime(to),
	)
	if err != nil {
		return nil, fmt.Errorf("error listing bookings in window: %w", err)
	}
	return collectBookings(rows)
}

// MarkCancelled flips a confirmed booking to cancelled. Returns false when
// the booking does not exist or was already cancelled.
func (s *SQLStore) MarkCancelled(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bookings SET status = ?, cancelled_at = ?
		WHERE id = ? AND status = ?`,
		string(StatusCancelled), formatTime(at), id, string(StatusConfirmed),
	)
	if err != nil {
		return false, fmt.Errorf("error cancelling booking: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error cancelling booking: %w", err)
	}
	return affected > 0, nil
}

// ReminderAlreadySent reports whether the (booking, window) reminder key
// exists. Existence of the key is the sole "already sent" signal.
func (s *SQLStore) ReminderAlreadySent(ctx context.Context, bookingID, windowLabel string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM sent_reminders WHERE booking_id = ? AND window_label = ?`,
		bookingID, windowLabel,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error checking sent reminder: %w", err)
	}
	return true, nil
}

// MarkReminderSent records the (booking, window) key, write-once. The insert
// is atomic check-then-set: it returns false when the key already existed.
func (s *SQLStore) MarkReminderSent(ctx context.Context, bookingID, windowLabel string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sent_reminders (booking_id, window_label, sent_at) VALUES (?, ?, ?)`,
		bookingID, windowLabel, formatTime(at),
	)
	if err != nil {
		return false, fmt.Errorf("error recording sent reminder: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error recording sent reminder: %w", err)
	}
	return affected > 0, nil
}

const selectBookings = `
	SELECT id, tenant_id, event_id, staff_id, customer_name, customer_contact,
	       services, total_price, total_duration_min, starts_at, status,
	       created_at, cancelled_at
	FROM bookings`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*Booking, error) {
	var (
		b           Booking
		services    string
		startsAt    string
		createdAt   string
		cancelledAt sql.NullString
		durationMin int
		status      string
	)
	err := row.Scan(
		&b.ID, &b.TenantID, &b.EventID, &b.StaffID, &b.CustomerName,
		&b.CustomerContact, &services, &b.TotalPrice, &durationMin,
		&startsAt, &status, &createdAt, &cancelledAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(services), &b.Services); err != nil {
		return nil, fmt.Errorf("error decoding services for booking %s: %w", b.ID, err)
	}
	b.TotalDuration = time.Duration(durationMin) * time.Minute
	b.Status = Status(status)
	if b.StartsAt, err = parseTime(startsAt); err != nil {
		return nil, err
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if cancelledAt.Valid {
		t, err := parseTime(cancelledAt.String)
		if err != nil {
			return nil, err
		}
		b.CancelledAt = &t
	}
	return &b, nil
}

func collectBookings(rows *sql.Rows) ([]Booking, error) {
	defer rows.Close()
	var bookings []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("error parsing stored time %q: %w", raw, err)
	}
	return t, nil
}
