package model

import "time"

// Diagnostic event types relayed to UI clients.
const (
	EventReminderDelivered        = "reminder_delivered"
	EventNotificationMaybeBlocked = "notification_maybe_blocked"
	EventPermissionDenied         = "notification_permission_denied"
)

// PushSubscription is a registered Web Push endpoint that native
// notifications are delivered to.
type PushSubscription struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dh_key"`
	AuthKey    string    `json:"auth_key"`
	DeviceName string    `json:"device_name"`
	CreatedAt  time.Time `json:"created_at"`
}
