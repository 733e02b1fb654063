// Package messaging sends outbound WhatsApp messages.
package messaging

import "context"

// Messenger delivers one text message. from is the tenant's business number
// and to is the recipient, both E.164 with or without a transport prefix.
type Messenger interface {
	Send(ctx context.Context, from, to, body string) error
}
