package engine

import (
	"sync"
	"time"
)

const (
	// cooldown suppresses a reminder id refiring within one overlapping
	// check or rapid re-invocation. Much shorter-lived than the due window.
	cooldown = 60 * time.Second

	// tagWindow suppresses the same displayed notification tag across
	// different code paths in quick succession.
	tagWindow = 5 * time.Second
)

// dedupState holds the in-memory firing guards. Not persisted: a process
// restart clears it, which is acceptable because the persisted
// next_trigger_time is the durable source of truth.
type dedupState struct {
	mu        sync.Mutex
	lastFired map[string]time.Time // reminder id -> last trigger
	tagsSeen  map[string]time.Time // notification tag -> last shown
	tagOwner  map[string]string    // notification tag -> reminder id
}

func newDedupState() *dedupState {
	return &dedupState{
		lastFired: make(map[string]time.Time),
		tagsSeen:  make(map[string]time.Time),
		tagOwner:  make(map[string]string),
	}
}

// tryAcquire records the reminder id as fired at now and returns true, or
// returns false when the id fired within the cooldown window. The write
// happens before the caller performs any I/O, closing the race between an
// in-flight cycle and a late-arriving external refresh.
func (d *dedupState) tryAcquire(id string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.lastFired[id]; ok && now.Sub(last) < cooldown {
		return false
	}
	d.lastFired[id] = now

	// Opportunistic prune of stale entries.
	cutoff := now.Add(-2 * cooldown)
	for k, t := range d.lastFired {
		if t.Before(cutoff) {
			delete(d.lastFired, k)
		}
	}
	return true
}

// release removes a reminder id from the cooldown map so a failed trigger
// can retry on the next cycle.
func (d *dedupState) release(id string) {
	d.mu.Lock()
	delete(d.lastFired, id)
	d.mu.Unlock()
}

// tryTag records a notification tag and returns true, or returns false
// when the same tag was shown within the tag window.
func (d *dedupState) tryTag(tag string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.tagsSeen[tag]; ok && now.Sub(last) < tagWindow {
		return false
	}
	d.tagsSeen[tag] = now
	return true
}

// releaseTag removes a tag after a display failure so a future retry is
// not suppressed.
func (d *dedupState) releaseTag(tag string) {
	d.mu.Lock()
	delete(d.tagsSeen, tag)
	delete(d.tagOwner, tag)
	d.mu.Unlock()
}

// bind records which reminder id a tag was shown for, so a display failure
// reported by tag alone can release both guards.
func (d *dedupState) bind(tag, id string) {
	d.mu.Lock()
	d.tagOwner[tag] = id
	d.mu.Unlock()
}

// releaseByTag drops the tag entry and, when the owning reminder is known,
// its cooldown entry as well.
func (d *dedupState) releaseByTag(tag string) {
	d.mu.Lock()
	if id, ok := d.tagOwner[tag]; ok {
		delete(d.lastFired, id)
		delete(d.tagOwner, tag)
	}
	delete(d.tagsSeen, tag)
	d.mu.Unlock()
}
