package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWebhook_RequiresURL(t *testing.T) {
	_, err := NewWebhook(WebhookConfig{})
	assert.Error(t, err)
}

func TestWebhook_Notify(t *testing.T) {
	var (
		auth string
		got  map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh, err := NewWebhook(WebhookConfig{URL: srv.URL, Token: "tok"})
	require.NoError(t, err)

	err = wh.Notify(context.Background(), "cust-1", "Recebido", map[string]string{"total": "10.00"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, "cust-1", got["customerPlatformId"])
	assert.Equal(t, "Recebido", got["text"])
	assert.Equal(t, map[string]any{"total": "10.00"}, got["payload"])
}

func TestWebhook_NotifyErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	wh, err := NewWebhook(WebhookConfig{URL: srv.URL})
	require.NoError(t, err)
	assert.ErrorContains(t, wh.Notify(context.Background(), "c", "t", nil), "status 500")

	slow, err := NewWebhook(WebhookConfig{URL: srv.URL + "/slow", Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.Error(t, slow.Notify(context.Background(), "c", "t", nil))
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Notify(context.Background(), "c", "t", nil))
}
