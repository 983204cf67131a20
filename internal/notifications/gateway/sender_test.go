package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/bissquit/submanage/internal/domain"
	"github.com/bissquit/submanage/internal/notifications"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type mockChannel struct {
	published  []published
	publishErr error
	closed     bool
}

func (m *mockChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (m *mockChannel) Close() error {
	m.closed = true
	return nil
}

func TestSender_Send(t *testing.T) {
	tests := []struct {
		name    string
		newFunc func(*Publisher) *Sender
		channel domain.Channel
	}{
		{name: "sms", newFunc: NewSMSSender, channel: domain.ChannelSMS},
		{name: "whatsapp", newFunc: NewWhatsAppSender, channel: domain.ChannelWhatsApp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := &mockChannel{}
			sender := tt.newFunc(newPublisher(ch, "submanage.messages"))
			assert.Equal(t, tt.channel, sender.Type())

			err := sender.Send(context.Background(), notifications.Message{
				SubscriberID: "sub-1",
				To:           "+15550100",
				Body:         "Your plan ends soon",
			})
			require.NoError(t, err)
			require.Len(t, ch.published, 1)

			got := ch.published[0]
			assert.Equal(t, "submanage.messages", got.exchange)
			assert.Equal(t, string(tt.channel), got.key)
			assert.Equal(t, "application/json", got.msg.ContentType)
			assert.Equal(t, uint8(amqp.Persistent), got.msg.DeliveryMode)

			var body map[string]string
			require.NoError(t, json.Unmarshal(got.msg.Body, &body))
			assert.Equal(t, string(tt.channel), body["channel"])
			assert.Equal(t, "sub-1", body["subscriber_id"])
			assert.Equal(t, "+15550100", body["to"])
			assert.Equal(t, "Your plan ends soon", body["body"])
		})
	}
}

func TestSender_SendPublishError(t *testing.T) {
	ch := &mockChannel{publishErr: errors.New("channel closed")}
	sender := NewSMSSender(newPublisher(ch, "ex"))

	err := sender.Send(context.Background(), notifications.Message{To: "+1", Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel closed")
}

func TestSender_SendCancelledContext(t *testing.T) {
	ch := &mockChannel{}
	sender := NewWhatsAppSender(newPublisher(ch, "ex"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sender.Send(ctx, notifications.Message{To: "+1", Body: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ch.published)
}

func TestPublisher_Close(t *testing.T) {
	ch := &mockChannel{}
	p := newPublisher(ch, "ex")

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}
