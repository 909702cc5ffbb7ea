// Package gmail is the mail adapter: it fetches messages and
// attachments through the Gmail REST API and manages push notification
// watches.
package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	eherrors "github.com/eventhint/eventhint/pkg/errors"
	"github.com/eventhint/eventhint/pkg/gauth"
	"github.com/eventhint/eventhint/pkg/logging"
)

const defaultBaseURL = "https://gmail.googleapis.com/gmail/v1"

// Client talks to the Gmail API for one user.
type Client struct {
	baseURL string
	tokens  *gauth.TokenSource
	client  *http.Client
	log     logging.Logger
}

// NewClient builds a Gmail client over the given token source.
func NewClient(tokens *gauth.TokenSource, log logging.Logger) *Client {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Client{
		baseURL: defaultBaseURL,
		tokens:  tokens,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

// WithBaseURL overrides the API endpoint, for tests.
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = u
	return c
}

// GetMessage fetches a full message and parses it into the uniform
// shape the pipeline consumes.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*ParsedMessage, error) {
	var raw apiMessage
	path := fmt.Sprintf("/users/me/messages/%s?format=full", url.PathEscape(messageID))
	if err := c.getJSON(ctx, path, &raw); err != nil {
		return nil, err
	}
	return parseAPIMessage(&raw), nil
}

// ListMessages lists message ids matching a Gmail search query.
func (c *Client) ListMessages(ctx context.Context, query string, maxResults int, pageToken string) (*MessageList, error) {
	q := url.Values{}
	if query != "" {
		q.Set("q", query)
	}
	if maxResults > 0 {
		q.Set("maxResults", strconv.Itoa(maxResults))
	}
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	var out MessageList
	if err := c.getJSON(ctx, "/users/me/messages?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAttachment downloads one attachment body by id.
func (c *Client) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	var out struct {
		Data string `json:"data"`
		Size int    `json:"size"`
	}
	path := fmt.Sprintf("/users/me/messages/%s/attachments/%s",
		url.PathEscape(messageID), url.PathEscape(attachmentID))
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	data, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(out.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment: %w", err)
	}
	return data, nil
}

// WatchResponse is Gmail's answer to a watch request.
type WatchResponse struct {
	HistoryID  string `json:"historyId"`
	Expiration string `json:"expiration"`
}

// Watch subscribes the inbox to push notifications on the given
// Pub/Sub topic.
func (c *Client) Watch(ctx context.Context, topicName string) (*WatchResponse, error) {
	body := map[string]any{
		"labelIds":  []string{"INBOX"},
		"topicName": topicName,
	}
	var out WatchResponse
	if err := c.postJSON(ctx, "/users/me/watch", body, &out); err != nil {
		return nil, err
	}
	c.log.Info("gmail watch established", logging.F("expiration", out.Expiration))
	return &out, nil
}

// Stop cancels push notifications.
func (c *Client) Stop(ctx context.Context) error {
	return c.postJSON(ctx, "/users/me/stop", nil, nil)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}
	return c.do(ctx, http.MethodPost, path, payload, out)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return eherrors.Wrap(eherrors.KindUnauthorized, "gmail auth failed", err)
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return eherrors.Wrap(eherrors.KindUpstreamUnavailable, "gmail request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return eherrors.Wrap(eherrors.KindUpstreamUnavailable, "failed to read gmail response", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return eherrors.E(eherrors.KindNotFound, "gmail message not found")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return eherrors.Ef(eherrors.KindUnauthorized, "gmail rejected credentials: %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return eherrors.Ef(eherrors.KindUpstreamUnavailable, "gmail returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return eherrors.Ef(eherrors.KindUpstreamRejected, "gmail returned %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode gmail response: %w", err)
	}
	return nil
}
