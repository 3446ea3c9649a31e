package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"remindd/internal/model"
	"remindd/internal/recurrence"
)

// Check runs one due-check cycle. If a cycle is already in flight the
// request is dropped, not queued; the next tick covers it. Errors are
// absorbed and logged; the cycle always returns the engine to idle.
func (e *Engine) Check(ctx context.Context) {
	if !e.flight.TryAcquire(1) {
		e.logger.Debug("check already in flight, dropping")
		return
	}
	defer e.flight.Release(1)

	candidates, fromRemote := e.fetchCandidates(ctx)

	now := e.now()
	due := 0
	for _, r := range candidates {
		if !r.Enabled {
			continue
		}
		until := r.NextTriggerTime.Sub(now)
		if until < -pastWindow || until > futureWindow {
			continue
		}
		due++
		e.trigger(ctx, r, fromRemote)
	}

	e.logger.Debug("check complete",
		"candidates", len(candidates), "due", due, "source", sourceName(fromRemote))
}

// fetchCandidates selects the reminder source: remote when configured, with
// local fallback on remote failure. A successful remote answer, including
// an empty one, is authoritative and never falls through to the local
// store.
func (e *Engine) fetchCandidates(ctx context.Context) ([]model.Reminder, bool) {
	if e.remote.Configured() {
		reminders, err := e.remote.FetchDue(ctx, e.remote.UserID())
		if err == nil {
			e.mirrorToLocal(ctx, reminders)
			return reminders, true
		}
		e.logger.Warn("remote fetch failed, falling back to local store", "error", err)
	}

	if e.local == nil {
		return nil, false
	}
	reminders, err := e.local.GetDue(e.now(), pastWindow, futureWindow)
	if err != nil {
		e.logger.Warn("local due query failed", "error", err)
		return nil, false
	}
	return reminders, false
}

// mirrorToLocal keeps the fallback store warm with the latest remote copy.
// Best-effort: partial saves are logged, never fatal.
func (e *Engine) mirrorToLocal(ctx context.Context, reminders []model.Reminder) {
	if e.local == nil || len(reminders) == 0 {
		return
	}
	saved, err := e.local.Upsert(ctx, reminders)
	if err != nil {
		e.logger.Warn("mirror to local store failed", "error", err)
		return
	}
	if saved < len(reminders) {
		e.logger.Warn("partial mirror to local store", "saved", saved, "total", len(reminders))
	}
}

// trigger applies the dedup/trigger protocol to one due reminder. The
// schedule advance is persisted before the notification is shown; a failed
// persist releases the cooldown entry and skips the notification entirely,
// so the same occurrence can retry on the next cycle instead of refiring
// after a shown notification.
func (e *Engine) trigger(ctx context.Context, r model.Reminder, fromRemote bool) {
	now := e.now()

	if !e.dedup.tryAcquire(r.ID, now) {
		e.logger.Debug("reminder in cooldown, skipping", "id", r.ID)
		return
	}

	tag := r.Tag
	if tag == "" {
		tag = "reminder-" + r.ID
	}
	if !e.dedup.tryTag(tag, now) {
		e.logger.Debug("tag recently shown, skipping", "tag", tag)
		return
	}
	e.dedup.bind(tag, r.ID)

	next := recurrence.ComputeNext(r, now)

	if err := e.persistAdvance(ctx, r, next, fromRemote); err != nil {
		e.logger.Warn("schedule advance failed, skipping notification", "id", r.ID, "error", err)
		e.dedup.release(r.ID)
		e.dedup.releaseTag(tag)
		return
	}

	e.notifier.Show(r.Title, r.Body, tag, r.Icon, r.Data)

	// Verification is a soft check: an invisible notification does not
	// revert the already-persisted schedule advance.
	if !e.notifier.Active(tag) {
		e.logger.Warn("notification not visible after show", "tag", tag)
	}

	if e.dlog != nil {
		if err := e.dlog.Record(r.ID, tag, r.Title); err != nil {
			e.logger.Warn("delivery log", "error", err)
		}
	}

	e.relayDelivery(r, tag, now)
	e.logger.Info("reminder triggered", "id", r.ID, "tag", tag, "next", next)
}

func (e *Engine) persistAdvance(ctx context.Context, r model.Reminder, next time.Time, fromRemote bool) error {
	if fromRemote {
		return e.remote.UpdateAfterTrigger(ctx, r.ID, next, r.TriggerCount)
	}
	if e.local == nil {
		return errors.New("no store available")
	}
	return e.local.Advance(r.ID, next)
}

// relayDelivery announces the shown notification on both channels. The
// channels are independent: a broadcast failure never blocks the direct
// sends and vice versa.
func (e *Engine) relayDelivery(r model.Reminder, tag string, now time.Time) {
	url, _ := r.Data["url"].(string)
	event := model.DeliveryEvent{
		Type:             model.EventReminderDelivered,
		NotificationType: string(r.Type),
		Title:            r.Title,
		Body:             r.Body,
		URL:              url,
		Tag:              tag,
		Timestamp:        now.UnixMilli(),
	}

	var errs error
	if err := e.relay.Broadcast(event); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("broadcast: %w", err))
	}
	for _, id := range e.relay.ClientIDs() {
		if err := e.relay.SendTo(id, event); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("direct to %s: %w", id, err))
		}
	}
	if errs != nil {
		e.logger.Warn("delivery event relay incomplete", "error", errs)
	}
}

func sourceName(fromRemote bool) string {
	if fromRemote {
		return "remote"
	}
	return "local"
}
