package notify

import (
	"log/slog"
	"sync"
	"time"

	"remindd/internal/model"
)

// activeTTL bounds how long a shown tag stays in the active registry.
const activeTTL = 10 * time.Minute

// SubscriptionSource lists registered push endpoints and prunes dead ones.
type SubscriptionSource interface {
	List() ([]model.PushSubscription, error)
	DeleteByEndpoint(endpoint string) error
}

// Relay carries diagnostic events back to UI clients.
type Relay interface {
	Broadcast(event any) error
}

// Dispatcher shows native notifications. Show never returns an error:
// display failure is absorbed, logged, reported as a diagnostic event, and
// signalled to the caller through the OnDisplayFailure hook so dedup state
// can be released for a future retry.
type Dispatcher struct {
	sender PushSender
	subs   SubscriptionSource
	relay  Relay
	logger *slog.Logger

	// OnDisplayFailure, if set, is called with the tag of a notification
	// that could not be displayed at all.
	OnDisplayFailure func(tag string)

	mu     sync.Mutex
	active map[string]time.Time // tag -> shown at
	now    func() time.Time
}

func NewDispatcher(sender PushSender, subs SubscriptionSource, relay Relay, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		sender: sender,
		subs:   subs,
		relay:  relay,
		logger: logger,
		active: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Show delivers a notification to every registered subscription.
func (d *Dispatcher) Show(title, body, tag, icon string, data map[string]any) {
	payload := Payload{
		Title:              title,
		Body:               body,
		Tag:                tag,
		Icon:               icon,
		Badge:              icon,
		Vibrate:            []int{200, 100, 200},
		RequireInteraction: false,
		Renotify:           true,
		Data:               data,
	}
	if url, ok := data["url"].(string); ok {
		payload.URL = url
	}
	d.deliver(payload)
}

// ShowTest is the diagnostic path: it bypasses the due-check pipeline and
// shows a fixed notification for manual verification.
func (d *Dispatcher) ShowTest() {
	d.deliver(Payload{
		Title:    "Test Notification",
		Body:     "Reminder notifications are working!",
		Tag:      "test",
		Renotify: true,
		URL:      "/settings",
	})
}

func (d *Dispatcher) deliver(payload Payload) {
	if d.subs == nil {
		d.logger.Warn("no subscription store, cannot display", "tag", payload.Tag)
		d.displayFailed(payload.Tag, model.EventNotificationMaybeBlocked)
		return
	}
	subs, err := d.subs.List()
	if err != nil {
		d.logger.Error("list subscriptions", "error", err)
		d.displayFailed(payload.Tag, model.EventNotificationMaybeBlocked)
		return
	}
	if len(subs) == 0 {
		d.logger.Warn("no push subscriptions registered", "tag", payload.Tag)
		d.displayFailed(payload.Tag, model.EventNotificationMaybeBlocked)
		return
	}

	sent := 0
	for i := range subs {
		sub := &subs[i]
		err := d.sender.Send(sub, payload)
		if err == nil {
			sent++
			continue
		}
		if err == ErrExpired {
			d.subs.DeleteByEndpoint(sub.Endpoint)
			d.logger.Info("pruned expired subscription", "endpoint", sub.Endpoint)
			continue
		}
		d.logger.Warn("push send failed", "tag", payload.Tag, "error", err)
	}

	if sent == 0 {
		d.displayFailed(payload.Tag, model.EventPermissionDenied)
		return
	}

	d.mu.Lock()
	d.active[payload.Tag] = d.now()
	d.pruneLocked()
	d.mu.Unlock()

	d.logger.Debug("notification shown", "tag", payload.Tag, "endpoints", sent)
}

// Active reports whether a notification with the given tag was recently
// shown; the engine uses it to verify delivery after Show.
func (d *Dispatcher) Active(tag string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	shown, ok := d.active[tag]
	if !ok {
		return false
	}
	return d.now().Sub(shown) < activeTTL
}

func (d *Dispatcher) pruneLocked() {
	cutoff := d.now().Add(-activeTTL)
	for tag, shown := range d.active {
		if shown.Before(cutoff) {
			delete(d.active, tag)
		}
	}
}

func (d *Dispatcher) displayFailed(tag, eventType string) {
	if d.OnDisplayFailure != nil {
		d.OnDisplayFailure(tag)
	}
	if d.relay == nil {
		return
	}
	err := d.relay.Broadcast(model.DeliveryEvent{
		Type:      eventType,
		Tag:       tag,
		Timestamp: d.now().UnixMilli(),
	})
	if err != nil {
		d.logger.Warn("relay diagnostic event", "error", err)
	}
}
