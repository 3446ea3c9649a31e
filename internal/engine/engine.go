package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"remindd/internal/hub"
	"remindd/internal/model"
	"remindd/internal/remote"
	"remindd/internal/store"
)

const (
	// pollInterval is the fixed check cadence. Deliberately a constant, not
	// runtime-configurable.
	pollInterval = 30 * time.Second

	// Due window around next_trigger_time: wide backward bound to catch
	// reminders missed by skipped cycles, narrow forward bound to absorb
	// polling jitter.
	pastWindow   = 30 * time.Minute
	futureWindow = 30 * time.Second
)

// RemoteSource is the remote reminder authority.
type RemoteSource interface {
	Configured() bool
	UserID() string
	SetCredentials(creds remote.Credentials)
	FetchDue(ctx context.Context, userID string) ([]model.Reminder, error)
	UpdateAfterTrigger(ctx context.Context, id string, next time.Time, currentCount int) error
}

// LocalSource is the persistent fallback copy of the reminder set.
type LocalSource interface {
	GetDue(now time.Time, past, future time.Duration) ([]model.Reminder, error)
	Upsert(ctx context.Context, reminders []model.Reminder) (int, error)
	Advance(id string, next time.Time) error
	All() ([]model.Reminder, error)
}

// Notifier shows native notifications and answers post-show verification.
type Notifier interface {
	Show(title, body, tag, icon string, data map[string]any)
	ShowTest()
	Active(tag string) bool
}

// Relay delivers events to UI clients over two independent channels.
type Relay interface {
	Broadcast(event any) error
	SendTo(clientID string, event any) error
	ClientIDs() []string
}

// DeliveryLog records shown notifications for diagnostic dumps.
type DeliveryLog interface {
	Record(reminderID, tag, title string) error
	Recent(n int) ([]store.DeliveryRecord, error)
}

// CredentialSaver persists received credentials across restarts.
type CredentialSaver interface {
	Set(key, value string) error
	SetSealedToken(token, passphrase string) error
}

// Engine runs the periodic due-check cycle. All transient state (dedup
// maps, guard) lives here rather than in package globals; lifecycle is an
// explicit Start/Stop pair.
type Engine struct {
	remote   RemoteSource
	local    LocalSource // nil means the fallback store failed to open
	notifier Notifier
	relay    Relay
	dlog     DeliveryLog     // optional
	creds    CredentialSaver // optional
	logger   *slog.Logger

	// sealPass protects the persisted access token at rest.
	sealPass string

	commands chan hub.Command

	// flight serializes check cycles: a failed TryAcquire drops the
	// request, the next tick covers it.
	flight *semaphore.Weighted
	dedup  *dedupState

	now func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New creates an Engine. local may be nil when the fallback store could not
// be opened; the engine then treats the local source as empty.
func New(remoteSrc RemoteSource, local LocalSource, notifier Notifier, relay Relay, dlog DeliveryLog, creds CredentialSaver, sealPass string, logger *slog.Logger) *Engine {
	return &Engine{
		remote:   remoteSrc,
		local:    local,
		notifier: notifier,
		relay:    relay,
		dlog:     dlog,
		creds:    creds,
		sealPass: sealPass,
		logger:   logger,
		commands: make(chan hub.Command, 32),
		flight:   semaphore.NewWeighted(1),
		dedup:    newDedupState(),
		now:      time.Now,
	}
}

// Commands exposes the inbound command channel for the hub and the HTTP
// control surface.
func (e *Engine) Commands() chan<- hub.Command {
	return e.commands
}

// ReleaseDisplay clears the dedup guards for a notification tag whose
// display failed outright, so the same occurrence can retry on the next
// cycle instead of waiting out the cooldown. Wired to the dispatcher's
// display-failure hook.
func (e *Engine) ReleaseDisplay(tag string) {
	e.dedup.releaseByTag(tag)
}

// Start launches the scheduler loop. Starting twice is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true

	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})

	go e.run(ctx)
	e.logger.Info("engine started", slog.Duration("interval", pollInterval))
}

// Stop halts the scheduler loop and waits for it to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	done := e.done
	e.started = false
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	e.logger.Info("engine stopped")
}

// run is the single scheduler goroutine: one ticker plus the command queue,
// so commands and ticks are consumed serially. No error escapes the loop.
func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Check(ctx)
		case cmd := <-e.commands:
			e.handleCommand(ctx, cmd)
		}
	}
}

func (e *Engine) handleCommand(ctx context.Context, cmd hub.Command) {
	switch cmd.Type {
	case hub.CmdConfigure:
		e.configure(cmd)
		e.Check(ctx)
	case hub.CmdRefresh:
		e.Check(ctx)
	case hub.CmdTestNotification:
		e.notifier.ShowTest()
	case hub.CmdDebug:
		e.debugDump(cmd.ClientID)
	default:
		e.logger.Warn("unknown command", "type", cmd.Type)
	}
}

// configure applies a credential set received from a UI client. An absent
// field leaves remote mode disabled and the engine on the local store only.
func (e *Engine) configure(cmd hub.Command) {
	creds := remote.Credentials{
		BaseURL:     cmd.RemoteURL,
		APIKey:      cmd.RemoteKey,
		UserID:      cmd.UserID,
		AccessToken: cmd.AccessToken,
	}
	e.remote.SetCredentials(creds)

	if e.creds != nil {
		if err := e.creds.Set(store.KeyRemoteURL, creds.BaseURL); err != nil {
			e.logger.Warn("persist remote url", "error", err)
		}
		if err := e.creds.Set(store.KeyRemoteKey, creds.APIKey); err != nil {
			e.logger.Warn("persist remote key", "error", err)
		}
		if err := e.creds.Set(store.KeyUserID, creds.UserID); err != nil {
			e.logger.Warn("persist user id", "error", err)
		}
		if creds.AccessToken != "" {
			if err := e.creds.SetSealedToken(creds.AccessToken, e.sealPass); err != nil {
				e.logger.Warn("persist access token", "error", err)
			}
		}
	}

	e.logger.Info("configuration applied", "remote", e.remote.Configured())
}

// debugDump relays the full local store contents and recent deliveries to
// the requesting client, or to all clients when the requester is unknown.
func (e *Engine) debugDump(clientID string) {
	dump := map[string]any{"type": "debug_dump"}

	if e.local != nil {
		reminders, err := e.local.All()
		if err != nil {
			dump["error"] = err.Error()
		} else {
			dump["reminders"] = reminders
		}
	} else {
		dump["reminders"] = []model.Reminder{}
		dump["store"] = "unavailable"
	}

	if e.dlog != nil {
		if recent, err := e.dlog.Recent(50); err == nil {
			dump["deliveries"] = recent
		}
	}

	if clientID != "" {
		if err := e.relay.SendTo(clientID, dump); err == nil {
			return
		}
	}
	if err := e.relay.Broadcast(dump); err != nil {
		e.logger.Warn("debug dump relay", "error", err)
	}
}
