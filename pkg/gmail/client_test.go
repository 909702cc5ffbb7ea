package gmail

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eherrors "github.com/eventhint/eventhint/pkg/errors"
	"github.com/eventhint/eventhint/pkg/gauth"
	"github.com/eventhint/eventhint/pkg/logging"
)

func testTokens() *gauth.TokenSource {
	return gauth.New(gauth.Config{
		AccessToken: "test-token",
		Expiry:      time.Now().Add(time.Hour),
	})
}

func b64url(s string) string {
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte(s))
}

func TestGetMessage_ParsesFullFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/users/me/messages/msg-1", r.URL.Path)
		assert.Equal(t, "full", r.URL.Query().Get("format"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg-1",
			"threadId": "thread-1",
			"payload": {
				"mimeType": "multipart/mixed",
				"headers": [
					{"name": "Subject", "value": "Vizsga időpont"},
					{"name": "From", "value": "registrar@uni.hu"}
				],
				"parts": [
					{"mimeType": "text/plain", "body": {"data": "` + b64url("2025.11.04.\nBalogh Csaba") + `"}},
					{"mimeType": "image/png", "filename": "schedule.png",
					 "body": {"attachmentId": "att-1", "size": 42}}
				]
			}
		}`))
	}))
	defer server.Close()

	c := NewClient(testTokens(), logging.NewNopLogger()).WithBaseURL(server.URL)
	msg, err := c.GetMessage(context.Background(), "msg-1")
	require.NoError(t, err)

	assert.Equal(t, "msg-1", msg.ID)
	assert.Equal(t, "Vizsga időpont", msg.Subject)
	assert.Equal(t, "registrar@uni.hu", msg.From)
	assert.Contains(t, msg.BodyText, "Balogh Csaba")
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "schedule.png", msg.Attachments[0].Filename)
	assert.Equal(t, "att-1", msg.Attachments[0].AttachmentID)
}

func TestGetMessage_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewClient(testTokens(), nil).WithBaseURL(server.URL)
	_, err := c.GetMessage(context.Background(), "gone")
	require.Error(t, err)
	assert.Equal(t, eherrors.KindNotFound, eherrors.KindOf(err))
}

func TestGetAttachment_DecodesBase64URL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/me/messages/msg-1/attachments/att-1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": "` + b64url("image bytes") + `", "size": 11}`))
	}))
	defer server.Close()

	c := NewClient(testTokens(), nil).WithBaseURL(server.URL)
	data, err := c.GetAttachment(context.Background(), "msg-1", "att-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("image bytes"), data)
}

func TestWatch_PostsTopic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/users/me/watch", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"historyId": "12345", "expiration": "1730000000000"}`))
	}))
	defer server.Close()

	c := NewClient(testTokens(), nil).WithBaseURL(server.URL)
	resp, err := c.Watch(context.Background(), "projects/p/topics/gmail")
	require.NoError(t, err)
	assert.Equal(t, "12345", resp.HistoryID)
}

// Server errors are retryable upstream failures, client errors are not.
func TestDo_StatusMapping(t *testing.T) {
	tests := []struct {
		status    int
		kind      eherrors.Kind
		retryable bool
	}{
		{http.StatusInternalServerError, eherrors.KindUpstreamUnavailable, true},
		{http.StatusUnauthorized, eherrors.KindUnauthorized, false},
		{http.StatusBadRequest, eherrors.KindUpstreamRejected, false},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
		}))

		c := NewClient(testTokens(), nil).WithBaseURL(server.URL)
		_, err := c.ListMessages(context.Background(), "", 10, "")
		require.Error(t, err, "status %d", tt.status)
		assert.Equal(t, tt.kind, eherrors.KindOf(err), "status %d", tt.status)
		assert.Equal(t, tt.retryable, eherrors.IsRetryable(err), "status %d", tt.status)

		server.Close()
	}
}
