package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"remindd/internal/model"
)

const (
	// fallbackInterval is returned on malformed schedule data rather than
	// erroring; the reminder will be re-evaluated an hour later.
	fallbackInterval = 60 * time.Minute

	// boundarySnap absorbs re-check jitter for recurring reminders: a
	// reference time within this distance of a grid occurrence resolves to
	// that occurrence instead of advancing past it.
	boundarySnap = 30 * time.Second
)

// ComputeNext returns the next occurrence of r strictly after ref, except
// for the recurring boundary-snap case which may return an occurrence up to
// 30 seconds before ref. Pure function; all math is wall-clock in ref's
// location.
func ComputeNext(r model.Reminder, ref time.Time) time.Time {
	switch r.Type {
	case model.TypeDaily:
		return nextDaily(r.TimeOfDay, ref)
	case model.TypeWeekly:
		return nextWeekly(r.TimeOfDay, r.Weekdays, ref)
	case model.TypeRecurring:
		return nextRecurring(r.IntervalMinutes, r.StartTime, r.EndTime, ref)
	}
	return ref.Add(fallbackInterval)
}

func nextDaily(timeOfDay string, ref time.Time) time.Time {
	h, m, err := ParseHHMM(timeOfDay)
	if err != nil {
		return ref.Add(fallbackInterval)
	}
	next := atTimeOfDay(ref, h, m)
	if !next.After(ref) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func nextWeekly(timeOfDay string, weekdays []int, ref time.Time) time.Time {
	h, m, err := ParseHHMM(timeOfDay)
	if err != nil || len(weekdays) == 0 {
		return ref.Add(fallbackInterval)
	}

	// All seven days selected is just a daily reminder; handling it here
	// avoids a same-day offset search that never terminates.
	if coversAllWeekdays(weekdays) {
		return nextDaily(timeOfDay, ref)
	}

	today := int(ref.Weekday())
	best := -1
	for _, wd := range weekdays {
		if wd < 0 || wd > 6 {
			continue
		}
		offset := (wd - today + 7) % 7
		if offset == 0 && !atTimeOfDay(ref, h, m).After(ref) {
			// Today's occurrence already passed; treat as next week.
			offset = 7
		}
		if best == -1 || offset < best {
			best = offset
		}
	}
	if best == -1 {
		return ref.Add(fallbackInterval)
	}
	return atTimeOfDay(ref.AddDate(0, 0, best), h, m)
}

func nextRecurring(intervalMinutes int, startTime, endTime string, ref time.Time) time.Time {
	sh, sm, serr := ParseHHMM(startTime)
	eh, em, eerr := ParseHHMM(endTime)
	if intervalMinutes <= 0 || serr != nil || eerr != nil {
		return ref.Add(fallbackInterval)
	}

	start := atTimeOfDay(ref, sh, sm)
	end := atTimeOfDay(ref, eh, em)
	interval := time.Duration(intervalMinutes) * time.Minute

	// An inverted window (end before start) is malformed; fail soft like
	// any other bad schedule.
	if end.Before(start) {
		return ref.Add(fallbackInterval)
	}

	// Before today's window: first occurrence is today's start.
	if ref.Before(start) {
		return start
	}

	// Walk the grid from start in fixed steps. The window is bounded by
	// minutes in a day, so this terminates quickly.
	for occ := start; !occ.After(end); occ = occ.Add(interval) {
		d := occ.Sub(ref)
		if d > -boundarySnap && d <= boundarySnap {
			// Within jitter of this occurrence: snap to it.
			return occ
		}
		if occ.After(ref) {
			return occ
		}
	}

	// Past today's window: roll to tomorrow's start.
	return start.AddDate(0, 0, 1)
}

func coversAllWeekdays(weekdays []int) bool {
	var seen [7]bool
	for _, wd := range weekdays {
		if wd >= 0 && wd <= 6 {
			seen[wd] = true
		}
	}
	for _, ok := range seen {
		if !ok {
			return false
		}
	}
	return true
}

func atTimeOfDay(ref time.Time, hour, minute int) time.Time {
	return time.Date(ref.Year(), ref.Month(), ref.Day(), hour, minute, 0, 0, ref.Location())
}

// ParseHHMM parses a 24-hour "HH:MM" time-of-day string.
func ParseHHMM(s string) (hour int, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
