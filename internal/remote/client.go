package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"remindd/internal/model"
)

const (
	requestTimeout = 10 * time.Second
	windowMinutes  = 30
)

// Credentials configure access to the remote reminder authority. Any empty
// field disables remote mode entirely.
type Credentials struct {
	BaseURL     string
	APIKey      string
	UserID      string
	AccessToken string
}

// Client talks to a PostgREST-style remote authority. All failure paths
// resolve to an error return; the engine applies local fallback uniformly
// and never sees a panic from here.
type Client struct {
	mu         sync.RWMutex
	creds      Credentials
	httpClient *http.Client
}

func NewClient(creds Credentials) *Client {
	return &Client{
		creds: creds,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// SetCredentials swaps the active credential set at runtime.
func (c *Client) SetCredentials(creds Credentials) {
	c.mu.Lock()
	c.creds = creds
	c.mu.Unlock()
}

// Configured reports whether every credential field is present.
func (c *Client) Configured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds.BaseURL != "" && c.creds.APIKey != "" && c.creds.UserID != "" && c.creds.AccessToken != ""
}

// UserID returns the configured remote user id.
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds.UserID
}

// remoteReminder is the wire shape of a reminder row; it converts to the
// unified model at this boundary.
type remoteReminder struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	ReminderType    string         `json:"reminder_type"`
	TimeOfDay       string         `json:"time_of_day"`
	Weekdays        []int          `json:"weekdays"`
	IntervalMinutes int            `json:"interval_minutes"`
	StartTime       string         `json:"start_time"`
	EndTime         string         `json:"end_time"`
	Enabled         bool           `json:"enabled"`
	NextTriggerTime time.Time      `json:"next_trigger_time"`
	TriggerCount    int            `json:"trigger_count"`
	LastTriggered   *time.Time     `json:"last_triggered"`
	Title           string         `json:"title"`
	Body            string         `json:"body"`
	Icon            string         `json:"icon"`
	Tag             string         `json:"tag"`
	Data            map[string]any `json:"data"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (r remoteReminder) toModel() model.Reminder {
	return model.Reminder{
		ID:              r.ID,
		UserID:          r.UserID,
		Type:            model.ReminderType(r.ReminderType),
		TimeOfDay:       r.TimeOfDay,
		Weekdays:        r.Weekdays,
		IntervalMinutes: r.IntervalMinutes,
		StartTime:       r.StartTime,
		EndTime:         r.EndTime,
		Enabled:         r.Enabled,
		NextTriggerTime: r.NextTriggerTime,
		TriggerCount:    r.TriggerCount,
		LastTriggered:   r.LastTriggered,
		Title:           r.Title,
		Body:            r.Body,
		Icon:            r.Icon,
		Tag:             r.Tag,
		Data:            r.Data,
		UpdatedAt:       r.UpdatedAt,
	}
}

type fetchDueRequest struct {
	UserID        string `json:"user_id"`
	WindowMinutes int    `json:"window_minutes"`
}

// FetchDue asks the authority for reminders due within +/-30 minutes.
// An empty slice with nil error is a valid "nothing due" answer, distinct
// from a non-nil error (transport failure, timeout, non-2xx).
func (c *Client) FetchDue(ctx context.Context, userID string) ([]model.Reminder, error) {
	c.mu.RLock()
	creds := c.creds
	c.mu.RUnlock()

	body, err := json.Marshal(fetchDueRequest{UserID: userID, WindowMinutes: windowMinutes})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	url := strings.TrimSuffix(creds.BaseURL, "/") + "/rpc/get_upcoming_reminders"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, creds)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch due: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch due: status %d", resp.StatusCode)
	}

	var rows []remoteReminder
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	reminders := make([]model.Reminder, 0, len(rows))
	for _, row := range rows {
		reminders = append(reminders, row.toModel())
	}
	return reminders, nil
}

type updateRequest struct {
	LastTriggered   time.Time `json:"last_triggered"`
	NextTriggerTime time.Time `json:"next_trigger_time"`
	TriggerCount    int       `json:"trigger_count"`
}

// UpdateAfterTrigger persists one successful trigger on the authority:
// stamped last_triggered, advanced next_trigger_time, incremented count.
func (c *Client) UpdateAfterTrigger(ctx context.Context, id string, next time.Time, currentCount int) error {
	c.mu.RLock()
	creds := c.creds
	c.mu.RUnlock()

	body, err := json.Marshal(updateRequest{
		LastTriggered:   time.Now().UTC(),
		NextTriggerTime: next.UTC(),
		TriggerCount:    currentCount + 1,
	})
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	url := strings.TrimSuffix(creds.BaseURL, "/") + "/reminders?id=eq." + id
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, creds)
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("update after trigger: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("update after trigger: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, creds Credentials) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", creds.APIKey)
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
}
