package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/nvarela/turnero/internal/availability"
	"github.com/nvarela/turnero/internal/bot"
	"github.com/nvarela/turnero/internal/booking"
	"github.com/nvarela/turnero/internal/calendar"
	"github.com/nvarela/turnero/internal/ratelimit"
	"github.com/nvarela/turnero/internal/session"
	"github.com/nvarela/turnero/internal/store"
	"github.com/nvarela/turnero/internal/tenant"
	"github.com/nvarela/turnero/internal/testutil"
)

type fakeCalendar struct{}

func (fakeCalendar) ListBusy(ctx context.Context, calendarID string, from, to time.Time) ([]calendar.BusyInterval, error) {
	return nil, nil
}

func (fakeCalendar) CreateEvent(ctx context.Context, calendarID string, ev calendar.Event) (string, error) {
	return "evt-1", nil
}

func (fakeCalendar) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	return nil
}

func setupHandlers(t *testing.T) {
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
    services:
      - name: Haircut
        price: 20
        duration_minutes: 30
`))
	if err != nil {
		t.Fatalf("ParseRegistry: %v", err)
	}

	cal := fakeCalendar{}
	st := store.NewSQLStore(testutil.NewTestDB(t))
	b := bot.New(
		session.NewMemoryStore(30*time.Minute),
		availability.NewEngine(cal, nil),
		booking.NewCommitter(cal, st),
		booking.NewCanceller(cal, st),
		st, nil, nil, bot.Config{},
	)
	InitHandlers(b, reg, nil)
}

func postMessage(t *testing.T, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	HandleIncomingMessage(w, req)
	return w
}

func TestHandleIncomingMessage(t *testing.T) {
	setupHandlers(t)

	w := postMessage(t, url.Values{
		"From": {"whatsapp:+5491100000001"},
		"To":   {"whatsapp:+5491100000000"},
		"Body": {"hola"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("content type = %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "<Message>") || !strings.Contains(body, "Salon Uno") {
		t.Errorf("response = %q, want a TwiML message with the menu", body)
	}
}

func TestHandleIncomingMessageUnknownNumber(t *testing.T) {
	setupHandlers(t)

	w := postMessage(t, url.Values{
		"From": {"whatsapp:+5491100000001"},
		"To":   {"whatsapp:+5499900000000"},
		"Body": {"hola"},
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHandleIncomingMessageMissingFields(t *testing.T) {
	setupHandlers(t)

	w := postMessage(t, url.Values{"Body": {"hola"}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleIncomingMessageRateLimited(t *testing.T) {
	setupHandlers(t)
	lim := ratelimit.New(&ratelimit.Config{
		BurstWindow: 10 * time.Second,
		BurstMax:    1,
		MaxPerHour:  100,
	})
	defer lim.Close()
	limiter = lim
	t.Cleanup(func() { limiter = nil })

	form := url.Values{
		"From": {"whatsapp:+5491100000001"},
		"To":   {"whatsapp:+5491100000000"},
		"Body": {"hola"},
	}
	w := postMessage(t, form)
	if !strings.Contains(w.Body.String(), "<Message>") {
		t.Fatalf("first message got no reply: %q", w.Body.String())
	}

	// The second message inside the burst window is swallowed.
	w = postMessage(t, form)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if strings.Contains(w.Body.String(), "<Message>") {
		t.Errorf("throttled message still got a reply: %q", w.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	w := httptest.NewRecorder()
	HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ok") {
		t.Errorf("body = %q", w.Body.String())
	}
}
