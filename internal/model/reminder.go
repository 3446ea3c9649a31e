package model

import "time"

// ReminderType identifies the scheduling shape of a reminder.
type ReminderType string

const (
	TypeDaily     ReminderType = "daily"
	TypeWeekly    ReminderType = "weekly"
	TypeRecurring ReminderType = "recurring"
)

// Reminder is the central scheduling entity. The remote authority and the
// local fallback store hold independent copies of the same shape; sources
// adapt their wire/row representations into this one type at the boundary.
type Reminder struct {
	ID     string       `json:"id"`
	UserID string       `json:"user_id"`
	Type   ReminderType `json:"reminder_type"`

	// Schedule parameters. TimeOfDay applies to daily and weekly ("HH:MM",
	// 24-hour). Weekdays holds 0-6 indices (Sunday=0) for weekly. Recurring
	// uses IntervalMinutes spaced occurrences inside [StartTime, EndTime]
	// each day.
	TimeOfDay       string `json:"time_of_day,omitempty"`
	Weekdays        []int  `json:"weekdays,omitempty"`
	IntervalMinutes int    `json:"interval_minutes,omitempty"`
	StartTime       string `json:"start_time,omitempty"`
	EndTime         string `json:"end_time,omitempty"`

	Enabled bool `json:"enabled"`

	// NextTriggerTime is the single source of truth for scheduling. It is
	// advanced only as part of a successful trigger cycle.
	NextTriggerTime time.Time  `json:"next_trigger_time"`
	TriggerCount    int        `json:"trigger_count"`
	LastTriggered   *time.Time `json:"last_triggered,omitempty"`

	// Presentation payload, opaque to the engine. Data conventionally
	// carries a "url" entry pointing at the page to open.
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Icon  string         `json:"icon,omitempty"`
	Tag   string         `json:"tag,omitempty"`
	Data  map[string]any `json:"data,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DeliveryEvent is relayed to UI clients when a notification is shown.
type DeliveryEvent struct {
	Type             string `json:"type"`
	NotificationType string `json:"notificationType"`
	Title            string `json:"title"`
	Body             string `json:"body"`
	URL              string `json:"url,omitempty"`
	Tag              string `json:"tag,omitempty"`
	Timestamp        int64  `json:"timestamp"`
}
