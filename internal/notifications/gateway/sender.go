package gateway

import (
	"context"

	"github.com/bissquit/submanage/internal/domain"
	"github.com/bissquit/submanage/internal/notifications"
)

// Sender delivers messages for one gateway channel.
type Sender struct {
	publisher *Publisher
	channel   domain.Channel
}

// NewSMSSender returns a sender publishing with the SMS routing key.
func NewSMSSender(p *Publisher) *Sender {
	return &Sender{publisher: p, channel: domain.ChannelSMS}
}

// NewWhatsAppSender returns a sender publishing with the WhatsApp routing key.
func NewWhatsAppSender(p *Publisher) *Sender {
	return &Sender{publisher: p, channel: domain.ChannelWhatsApp}
}

// Type returns the channel.
func (s *Sender) Type() domain.Channel {
	return s.channel
}

type envelope struct {
	Channel domain.Channel `json:"channel"`
	notifications.Message
}

// Send publishes msg. Delivery to the handset is the gateway's concern;
// a successful publish counts as sent.
func (s *Sender) Send(ctx context.Context, msg notifications.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.publisher.Publish(string(s.channel), envelope{Channel: s.channel, Message: msg})
}
