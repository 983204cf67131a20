package summarizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bissquit/submanage/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Summarize(t *testing.T) {
	var gotAuth, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		gotAuth = r.Header.Get("Authorization")

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotText = req["text"]

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"summary":"Wants a yearly plan."}`))
	}))
	defer srv.Close()

	client := NewClient(Config{URL: srv.URL, APIKey: "secret"})

	summary, err := client.Summarize(context.Background(), "  Called twice asking about the annual plan.  ")
	require.NoError(t, err)
	assert.Equal(t, "Wants a yearly plan.", summary)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "Called twice asking about the annual plan.", gotText)
}

func TestClient_SummarizeErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{}`, wantErr: ErrUnavailable},
		{name: "invalid json", status: http.StatusOK, body: `not json`, wantErr: ErrUnavailable},
		{name: "empty summary", status: http.StatusOK, body: `{"summary":"  "}`, wantErr: ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(Config{URL: srv.URL}).Summarize(context.Background(), "notes")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClient_NotConfigured(t *testing.T) {
	client := NewClient(Config{})
	assert.False(t, client.Enabled())

	_, err := client.Summarize(context.Background(), "notes")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
}

func TestClient_EmptyText(t *testing.T) {
	client := NewClient(Config{URL: "http://127.0.0.1:1"})

	_, err := client.Summarize(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client := NewClient(Config{URL: srv.URL, Timeout: 50 * time.Millisecond})

	_, err := client.Summarize(context.Background(), "notes")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_RateLimitRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"summary":"ok"}`))
	}))
	defer srv.Close()

	client := NewClient(Config{URL: srv.URL, RPS: 0.001})

	_, err := client.Summarize(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = client.Summarize(ctx, "second")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}
