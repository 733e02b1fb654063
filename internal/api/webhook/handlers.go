// internal/api/webhook/handlers.go
package webhook

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/twilio/twilio-go/twiml"

	"github.com/nvarela/turnero/internal/bot"
	"github.com/nvarela/turnero/internal/ratelimit"
	"github.com/nvarela/turnero/internal/tenant"
)

var (
	conversations *bot.Bot
	registry      *tenant.Registry
	limiter       *ratelimit.Limiter
)

// InitHandlers wires the package. limiter may be nil to disable throttling.
func InitHandlers(b *bot.Bot, reg *tenant.Registry, lim *ratelimit.Limiter) {
	conversations = b
	registry = reg
	limiter = lim
}

// HandleIncomingMessage processes one Twilio WhatsApp webhook POST. The
// business number in To selects the tenant; the reply goes back as TwiML.
func HandleIncomingMessage(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	from := r.PostFormValue("From")
	to := r.PostFormValue("To")
	body := r.PostFormValue("Body")
	if from == "" || to == "" {
		http.Error(w, "missing sender or recipient", http.StatusBadRequest)
		return
	}

	t := registry.ByNumber(to)
	if t == nil {
		logger.Warn().Str("to", to).Msg("message for unknown business number")
		http.Error(w, "unknown business number", http.StatusNotFound)
		return
	}

	contact := tenant.CanonicalNumber(from)

	if limiter != nil {
		if result := limiter.Allow(t.ID, contact); !result.Allowed {
			ratelimit.LogRateLimitExceeded(t.ID, contact, result.Reason)
			// Swallow the message: an empty TwiML document sends no reply.
			writeTwiML(w, nil)
			return
		}
	}

	reply := conversations.Handle(r.Context(), t, contact, body)

	writeTwiML(w, []twiml.Element{&twiml.MessagingMessage{Body: reply}})
}

func writeTwiML(w http.ResponseWriter, verbs []twiml.Element) {
	doc, err := twiml.Messages(verbs)
	if err != nil {
		log.Error().Err(err).Msg("failed to render twiml response")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.Write([]byte(doc))
}

func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
