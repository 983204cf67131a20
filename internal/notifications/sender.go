// Package notifications delivers one-off subscriber messages over email and
// the SMS/WhatsApp gateway.
package notifications

import (
	"context"

	"github.com/bissquit/submanage/internal/domain"
)

// Message is a rendered message addressed to one subscriber.
type Message struct {
	SubscriberID string `json:"subscriber_id"`
	To           string `json:"to"`
	Subject      string `json:"subject,omitempty"`
	Body         string `json:"body"`
}

// Sender delivers messages over one channel.
type Sender interface {
	Type() domain.Channel
	Send(ctx context.Context, msg Message) error
}

// Recipient returns the address msg should go to on channel: the email for
// Email and the phone number for SMS and WhatsApp.
func Recipient(sub *domain.Subscriber, channel domain.Channel) string {
	if channel == domain.ChannelEmail {
		return sub.Email
	}
	return sub.PhoneNumber
}
