// Package session holds per-conversation state between webhook requests.
// Sessions expire after a store-configured idle TTL; reminder preferences do
// not expire.
package session

import (
	"context"
	"time"
)

// Session is one user's in-flight conversation with one tenant. Option
// slices snapshot the numbered lists last shown to the user, so a numeric
// reply resolves against exactly what the user saw.
type Session struct {
	Step string `json:"step"`

	// Accumulated booking selections.
	StaffID      string   `json:"staff_id,omitempty"`
	Day          string   `json:"day,omitempty"`  // 2006-01-02 in the tenant's zone
	Slot         string   `json:"slot,omitempty"` // RFC3339
	CustomerName string   `json:"customer_name,omitempty"`
	Services     []string `json:"services,omitempty"`

	// Numbered option lists as last presented.
	StaffOptions   []string `json:"staff_options,omitempty"`   // staff ids
	ServiceOptions []string `json:"service_options,omitempty"` // service names
	DayOptions     []string `json:"day_options,omitempty"`     // 2006-01-02
	SlotOptions    []string `json:"slot_options,omitempty"`    // RFC3339
	BookingOptions []string `json:"booking_options,omitempty"` // booking ids

	// Cancellation flow.
	PendingCancelID string `json:"pending_cancel_id,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Store keeps sessions and reminder preferences, keyed by tenant and user.
// Get returns (nil, nil) for a missing or expired session. Put refreshes the
// idle TTL on every write.
type Store interface {
	Get(ctx context.Context, tenantID, userID string) (*Session, error)
	Put(ctx context.Context, tenantID, userID string, s *Session) error
	Delete(ctx context.Context, tenantID, userID string) error

	RemindersDisabled(ctx context.Context, tenantID, contact string) (bool, error)
	SetRemindersDisabled(ctx context.Context, tenantID, contact string, disabled bool) error
}
