//go:build integration

package email

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bissquit/submanage/internal/notifications"
	"github.com/bissquit/submanage/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mailpitMessage struct {
	Subject string `json:"Subject"`
	Bcc     []struct {
		Address string `json:"Address"`
	} `json:"Bcc"`
	Snippet string `json:"Snippet"`
}

func mailpitMessages(t *testing.T, host string, port int) []mailpitMessage {
	t.Helper()

	resp, err := http.Get(fmt.Sprintf("http://%s:%d/api/v1/messages", host, port))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Messages []mailpitMessage `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Messages
}

func TestSender_DeliversToMailpit(t *testing.T) {
	ctx := context.Background()

	mailpit, err := testutil.NewMailpitContainer(ctx)
	require.NoError(t, err)
	defer func() { _ = mailpit.Terminate(ctx) }()

	sender, err := NewSender(Config{
		Enabled:     true,
		SMTPHost:    mailpit.SMTPHost,
		SMTPPort:    mailpit.SMTPPort,
		FromAddress: "IPTV Care <care@example.com>",
	})
	require.NoError(t, err)

	err = sender.Send(ctx, notifications.Message{
		SubscriberID: "sub-1",
		To:           "viewer@example.com",
		Subject:      "Your subscription is ending",
		Body:         "Renew before Friday to keep watching.",
	})
	require.NoError(t, err)

	var msgs []mailpitMessage
	require.Eventually(t, func() bool {
		msgs = mailpitMessages(t, mailpit.APIHost, mailpit.APIPort)
		return len(msgs) == 1
	}, 5*time.Second, 100*time.Millisecond)

	assert.Equal(t, "Your subscription is ending", msgs[0].Subject)
	require.Len(t, msgs[0].Bcc, 1)
	assert.Equal(t, "viewer@example.com", msgs[0].Bcc[0].Address)
	assert.Contains(t, msgs[0].Snippet, "Renew before Friday")
}
