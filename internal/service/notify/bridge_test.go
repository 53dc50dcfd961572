package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

func TestBridgeDispatcher_SendAndRevoke(t *testing.T) {
	t.Parallel()

	var (
		sent    sendRequest
		deleted string
		to      string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tkn", r.Header.Get("Authorization"))
		switch r.Method {
		case http.MethodPost:
			require.Equal(t, "/messages", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
			_, _ = w.Write([]byte(`{"id":"wamid.42"}`))
		case http.MethodDelete:
			deleted = r.URL.Path
			to = r.URL.Query().Get("to")
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))
	t.Cleanup(srv.Close)

	d := NewBridgeDispatcher(BridgeConfig{URL: srv.URL + "/", Token: "tkn", Timeout: time.Second}, nil)
	ctx := context.Background()

	h, err := d.Send(ctx, "628123@c.us", domain.Message{Text: "caption", Image: []byte{0x89, 'P'}, ImageFilename: "qris.png"})
	require.NoError(t, err)
	require.Equal(t, "wamid.42", h.ID)
	require.Equal(t, "628123@c.us", h.BuyerRef)
	require.Equal(t, "628123@c.us", sent.To)
	require.Equal(t, "caption", sent.Text)
	require.Equal(t, base64.StdEncoding.EncodeToString([]byte{0x89, 'P'}), sent.Image)
	require.Equal(t, "qris.png", sent.Filename)
	require.NotEmpty(t, sent.ClientID)

	require.NoError(t, d.Revoke(ctx, h))
	require.Equal(t, "/messages/wamid.42", deleted)
	require.Equal(t, "628123@c.us", to)
}

func TestBridgeDispatcher_FallsBackToClientID(t *testing.T) {
	t.Parallel()

	var sent sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&sent)
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	d := NewBridgeDispatcher(BridgeConfig{URL: srv.URL}, nil)
	h, err := d.Send(context.Background(), "x", domain.Message{Text: "hi"})
	require.NoError(t, err)
	require.Equal(t, sent.ClientID, h.ID)
}

func TestBridgeDispatcher_ErrorsAreNotificationFailures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "session closed", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	d := NewBridgeDispatcher(BridgeConfig{URL: srv.URL}, nil)
	_, err := d.Send(context.Background(), "x", domain.Message{Text: "hi"})
	require.ErrorIs(t, err, domain.ErrNotificationFailure)

	var upstream *domain.UpstreamError
	require.True(t, errors.As(err, &upstream))
	require.Equal(t, http.StatusServiceUnavailable, upstream.StatusCode)

	err = d.Revoke(context.Background(), domain.NotificationHandle{ID: "m1", BuyerRef: "x"})
	require.ErrorIs(t, err, domain.ErrNotificationFailure)
}

func TestBridgeDispatcher_RevokeWithoutIDIsNoop(t *testing.T) {
	t.Parallel()

	d := NewBridgeDispatcher(BridgeConfig{URL: "http://127.0.0.1:1"}, nil)
	require.NoError(t, d.Revoke(context.Background(), domain.NotificationHandle{}))
}
