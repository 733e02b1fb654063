package messaging

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioMessenger sends WhatsApp messages through the Twilio REST API.
type TwilioMessenger struct {
	client *twilio.RestClient
}

// NewTwilioMessenger builds a messenger with account credentials. The from
// number is supplied per send, since each tenant messages from its own line.
func NewTwilioMessenger(accountSID, authToken string) *TwilioMessenger {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioMessenger{client: client}
}

func (m *TwilioMessenger) Send(ctx context.Context, from, to, body string) error {
	params := &twilioapi.CreateMessageParams{}
	params.SetFrom(whatsappAddr(from))
	params.SetTo(whatsappAddr(to))
	params.SetBody(body)

	msg, err := m.client.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("error sending message to %s: %w", to, err)
	}
	if msg.Sid != nil {
		log.Ctx(ctx).Debug().
			Str("to", to).
			Str("message_sid", *msg.Sid).
			Msg("message sent")
	}
	return nil
}

func whatsappAddr(number string) string {
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}
