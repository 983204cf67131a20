package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/submanage/internal/domain"
	"github.com/bissquit/submanage/internal/pkg/ctxlog"
)

// Dispatcher routes messages to the sender registered for their channel.
type Dispatcher struct {
	senders map[domain.Channel]Sender
}

// NewDispatcher creates a dispatcher. Nil senders are skipped.
func NewDispatcher(senders ...Sender) *Dispatcher {
	senderMap := make(map[domain.Channel]Sender)
	for _, s := range senders {
		if s == nil {
			continue
		}
		senderMap[s.Type()] = s
	}
	return &Dispatcher{senders: senderMap}
}

// Supports reports whether a sender is registered for channel.
func (d *Dispatcher) Supports(channel domain.Channel) bool {
	_, ok := d.senders[channel]
	return ok
}

// Send delivers msg over channel.
func (d *Dispatcher) Send(ctx context.Context, channel domain.Channel, msg Message) error {
	sender, ok := d.senders[channel]
	if !ok {
		return fmt.Errorf("%s: %w", channel, ErrChannelUnavailable)
	}
	if msg.To == "" {
		return fmt.Errorf("%s: %w", channel, ErrNoRecipient)
	}

	start := time.Now()
	err := sender.Send(ctx, msg)
	recordSendDuration(string(channel), time.Since(start))

	if err != nil {
		recordMessageSent(string(channel), string(domain.CommunicationFailed))
		ctxlog.FromContext(ctx).Warn("failed to send message",
			"channel", channel,
			"subscriber_id", msg.SubscriberID,
			"error", err,
		)
		return fmt.Errorf("send %s message: %w", channel, err)
	}

	recordMessageSent(string(channel), string(domain.CommunicationSent))
	return nil
}
