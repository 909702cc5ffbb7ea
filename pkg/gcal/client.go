package gcal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	eherrors "github.com/eventhint/eventhint/pkg/errors"
	"github.com/eventhint/eventhint/pkg/gauth"
	"github.com/eventhint/eventhint/pkg/logging"
)

const defaultBaseURL = "https://www.googleapis.com/calendar/v3"

// CalendarInfo describes one calendar in the user's calendar list.
type CalendarInfo struct {
	ID      string
	Name    string
	Color   string
	Primary bool
}

// Client performs event CRUD against one user's Google Calendar.
type Client struct {
	baseURL    string
	calendarID string
	tokens     *gauth.TokenSource
	client     *http.Client
	log        logging.Logger
}

// NewClient builds a calendar client. Empty calendarID targets the
// user's primary calendar.
func NewClient(tokens *gauth.TokenSource, calendarID string, log logging.Logger) *Client {
	if calendarID == "" {
		calendarID = "primary"
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Client{
		baseURL:    defaultBaseURL,
		calendarID: calendarID,
		tokens:     tokens,
		client:     &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

// WithBaseURL overrides the API endpoint, for tests.
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = u
	return c
}

// CreateEvent inserts an event and returns the provider's event id.
func (c *Client) CreateEvent(ctx context.Context, g *GCalEvent) (string, error) {
	var created GCalEvent
	path := fmt.Sprintf("/calendars/%s/events", url.PathEscape(c.calendarID))
	if err := c.do(ctx, http.MethodPost, path, g, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", eherrors.E(eherrors.KindUpstreamRejected, "calendar returned no event id")
	}
	c.log.Info("created calendar event", logging.F("external_id", created.ID))
	return created.ID, nil
}

// UpdateEvent replaces an existing event body.
func (c *Client) UpdateEvent(ctx context.Context, externalID string, g *GCalEvent) error {
	path := fmt.Sprintf("/calendars/%s/events/%s",
		url.PathEscape(c.calendarID), url.PathEscape(externalID))
	return c.do(ctx, http.MethodPut, path, g, nil)
}

// DeleteEvent removes an event from the calendar.
func (c *Client) DeleteEvent(ctx context.Context, externalID string) error {
	path := fmt.Sprintf("/calendars/%s/events/%s",
		url.PathEscape(c.calendarID), url.PathEscape(externalID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// GetEvent fetches one event by external id.
func (c *Client) GetEvent(ctx context.Context, externalID string) (*GCalEvent, error) {
	var out GCalEvent
	path := fmt.Sprintf("/calendars/%s/events/%s",
		url.PathEscape(c.calendarID), url.PathEscape(externalID))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListCalendars returns the user's calendar list.
func (c *Client) ListCalendars(ctx context.Context) ([]CalendarInfo, error) {
	var raw struct {
		Items []struct {
			ID              string `json:"id"`
			Summary         string `json:"summary"`
			BackgroundColor string `json:"backgroundColor"`
			Primary         bool   `json:"primary"`
		} `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/users/me/calendarList", nil, &raw); err != nil {
		return nil, err
	}

	calendars := make([]CalendarInfo, 0, len(raw.Items))
	for _, item := range raw.Items {
		color := item.BackgroundColor
		if color == "" {
			color = "#000000"
		}
		calendars = append(calendars, CalendarInfo{
			ID:      item.ID,
			Name:    item.Summary,
			Color:   color,
			Primary: item.Primary,
		})
	}
	return calendars, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return eherrors.Wrap(eherrors.KindUnauthorized, "calendar auth failed", err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return eherrors.Wrap(eherrors.KindUpstreamUnavailable, "calendar request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return eherrors.Wrap(eherrors.KindUpstreamUnavailable, "failed to read calendar response", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return eherrors.E(eherrors.KindNotFound, "calendar event not found")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return eherrors.Ef(eherrors.KindUnauthorized, "calendar rejected credentials: %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return eherrors.Ef(eherrors.KindUpstreamUnavailable, "calendar returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return eherrors.Ef(eherrors.KindUpstreamRejected, "calendar returned %d", resp.StatusCode)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode calendar response: %w", err)
	}
	return nil
}
