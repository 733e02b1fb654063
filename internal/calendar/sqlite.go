package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nvarela/turnero/internal/db"
)

// Store is the SQLite-backed EventCalendar. Timestamps are stored as RFC3339
// UTC strings so range predicates compare lexicographically.
type Store struct {
	db *db.DB
}

// NewStore binds the calendar to an opened database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// ListBusy returns the intervals of events on the calendar that overlap
// [from, to), ordered by start time.
func (s *Store) ListBusy(ctx context.Context, calendarID string, from, to time.Time) ([]BusyInterval, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT starts_at, ends_at, label
		FROM calendar_events
		WHERE calendar_id = ? AND starts_at < ? AND ends_at > ?
		ORDER BY starts_at`,
		calendarID, formatTime(to), formatTime(from),
	)
	if err != nil {
		return nil, fmt.Errorf("error listing busy intervals: %w", err)
	}
	defer rows.Close()

	var busy []BusyInterval
	for rows.Next() {
		var startsAt, endsAt, label string
		if err := rows.Scan(&startsAt, &endsAt, &label); err != nil {
			return nil, fmt.Errorf("error scanning busy interval: %w", err)
		}
		start, err := parseTime(startsAt)
		if err != nil {
			return nil, err
		}
		end, err := parseTime(endsAt)
		if err != nil {
			return nil, err
		}
		busy = append(busy, BusyInterval{Start: start, End: end, Label: label})
	}
	return busy, rows.Err()
}

// CreateEvent stores a new event and returns its generated id.
func (s *Store) CreateEvent(ctx context.Context, calendarID string, event Event) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calendar_events (id, calendar_id, summary, description, label, starts_at, ends_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, calendarID, event.Summary, event.Description, event.Label,
		formatTime(event.Start), formatTime(event.End), formatTime(time.Now()),
	)
	if err != nil {
		return "", fmt.Errorf("error creating calendar event: %w", err)
	}
	return id, nil
}

// DeleteEvent removes an event. Deleting an unknown id returns
// ErrEventNotFound.
func (s *Store) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM calendar_events WHERE calendar_id = ? AND id = ?`,
		calendarID, eventID,
	)
	if err != nil {
		return fmt.Errorf("error deleting calendar event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error deleting calendar event: %w", err)
	}
	if affected == 0 {
		return ErrEventNotFound
	}
	return nil
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
