package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/runcall/platform/pkg/logging"
)

var calendarTracer = otel.Tracer("runcall.internal.calendar")

// ErrProvider wraps non-2xx responses from the Google Calendar API.
type ErrProvider struct {
	Operation string
	Status    int
	Body      string
}

func (e *ErrProvider) Error() string {
	return fmt.Sprintf("calendar: %s: google api status %d: %s", e.Operation, e.Status, e.Body)
}

// Client talks to the Google Calendar v3 REST API with a caller-supplied
// access token. It holds no credentials of its own.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a Calendar API client.
func NewClient(logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:    "https://www.googleapis.com/calendar/v3",
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// WithBaseURL overrides the Google API base URL (for testing).
func (c *Client) WithBaseURL(baseURL string) *Client {
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

// WithHTTPClient overrides the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// ListCalendars returns the calendars the account can read event details
// from, filtered to owner/writer/reader access roles.
func (c *Client) ListCalendars(ctx context.Context, accessToken string) ([]CalendarRef, error) {
	ctx, span := calendarTracer.Start(ctx, "calendar.list_calendars")
	defer span.End()

	endpoint := c.baseURL + "/users/me/calendarList?maxResults=50"
	var parsed struct {
		Items []CalendarRef `json:"items"`
	}
	if err := c.getJSON(ctx, accessToken, endpoint, "list calendars", &parsed); err != nil {
		return nil, err
	}

	refs := make([]CalendarRef, 0, len(parsed.Items))
	for _, ref := range parsed.Items {
		switch ref.AccessRole {
		case RoleOwner, RoleWriter, RoleReader:
			refs = append(refs, ref)
		}
	}
	span.SetAttributes(attribute.Int("runcall.calendar_count", len(refs)))
	return refs, nil
}

// ListEvents returns single-occurrence-expanded events in [from, to).
// Cancelled events are excluded at the API level; transparency, status and
// the private marker are passed through for the classifier.
func (c *Client) ListEvents(ctx context.Context, accessToken, calendarID string, from, to time.Time) ([]Event, error) {
	ctx, span := calendarTracer.Start(ctx, "calendar.list_events")
	defer span.End()
	span.SetAttributes(attribute.String("runcall.calendar_id", calendarID))

	q := url.Values{}
	q.Set("timeMin", from.UTC().Format(time.RFC3339))
	q.Set("timeMax", to.UTC().Format(time.RFC3339))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")
	q.Set("showDeleted", "false")
	q.Set("maxResults", "250")
	q.Set("fields", "items(id,status,summary,description,transparency,start,end,extendedProperties)")

	endpoint := fmt.Sprintf("%s/calendars/%s/events?%s", c.baseURL, url.PathEscape(calendarID), q.Encode())
	var parsed struct {
		Items []Event `json:"items"`
	}
	if err := c.getJSON(ctx, accessToken, endpoint, "list events", &parsed); err != nil {
		return nil, err
	}
	return parsed.Items, nil
}

// CreateEvent inserts an event with conference creation enabled and invite
// emails sent to attendees.
func (c *Client) CreateEvent(ctx context.Context, accessToken, calendarID string, req EventRequest) (*CreatedEvent, error) {
	ctx, span := calendarTracer.Start(ctx, "calendar.create_event")
	defer span.End()
	span.SetAttributes(attribute.String("runcall.calendar_id", calendarID))

	endpoint := fmt.Sprintf("%s/calendars/%s/events?conferenceDataVersion=1&sendUpdates=all",
		c.baseURL, url.PathEscape(calendarID))

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("calendar: marshal event: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("calendar: create event request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calendar: create event http: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("calendar: read create response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &ErrProvider{Operation: "create event", Status: resp.StatusCode, Body: string(respBody)}
	}

	var created CreatedEvent
	if err := json.Unmarshal(respBody, &created); err != nil {
		return nil, fmt.Errorf("calendar: decode create response: %w", err)
	}
	if created.ID == "" {
		return nil, fmt.Errorf("calendar: create response missing event id")
	}
	return &created, nil
}

func (c *Client) getJSON(ctx context.Context, accessToken, endpoint, operation string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("calendar: %s request: %w", operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calendar: %s http: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return &ErrProvider{Operation: operation, Status: resp.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("calendar: %s decode: %w", operation, err)
	}
	return nil
}
