package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"

	"remindd/internal/model"
)

// ReminderStore is the local fallback copy of the reminder set, used when
// the remote authority is unreachable or unconfigured.
type ReminderStore struct {
	db *sql.DB
}

func NewReminderStore(db *sql.DB) *ReminderStore {
	return &ReminderStore{db: db}
}

const reminderColumns = `id, user_id, reminder_type, time_of_day, weekdays, interval_minutes,
	 start_time, end_time, enabled, next_trigger_time, trigger_count, last_triggered,
	 title, body, icon, tag, data, updated_at`

// GetDue returns enabled reminders whose next_trigger_time falls inside
// [now-past, now+future].
func (s *ReminderStore) GetDue(now time.Time, past, future time.Duration) ([]model.Reminder, error) {
	rows, err := s.db.Query(
		`SELECT `+reminderColumns+`
		 FROM reminders
		 WHERE enabled = 1 AND next_trigger_time >= ? AND next_trigger_time <= ?
		 ORDER BY next_trigger_time`,
		now.Add(-past).UTC(), now.Add(future).UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("get due reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// All returns every stored reminder, for diagnostic dumps.
func (s *ReminderStore) All() ([]model.Reminder, error) {
	rows, err := s.db.Query(`SELECT ` + reminderColumns + ` FROM reminders ORDER BY next_trigger_time`)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// Get returns one reminder by id, or nil if absent.
func (s *ReminderStore) Get(id string) (*model.Reminder, error) {
	row := s.db.QueryRow(`SELECT `+reminderColumns+` FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	return r, nil
}

// Upsert writes a batch of reminders. Individual record failures do not
// fail the batch; the saved count is reported and the collected errors are
// returned only when zero records saved after a bounded retry.
func (s *ReminderStore) Upsert(ctx context.Context, reminders []model.Reminder) (int, error) {
	if len(reminders) == 0 {
		return 0, nil
	}

	saved := 0
	var errs error

	backoff := retry.WithMaxDuration(5*time.Second, retry.NewConstant(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		saved, errs = s.upsertOnce(reminders)
		if saved == 0 {
			return retry.RetryableError(fmt.Errorf("no reminders saved: %w", errs))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("upsert reminders: %w", err)
	}
	return saved, nil
}

func (s *ReminderStore) upsertOnce(reminders []model.Reminder) (int, error) {
	saved := 0
	var errs error
	for _, r := range reminders {
		if err := s.upsertOne(r); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reminder %s: %w", r.ID, err))
			continue
		}
		saved++
	}
	return saved, errs
}

func (s *ReminderStore) upsertOne(r model.Reminder) error {
	data, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO reminders (id, user_id, reminder_type, time_of_day, weekdays, interval_minutes,
		   start_time, end_time, enabled, next_trigger_time, trigger_count, last_triggered,
		   title, body, icon, tag, data, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   reminder_type = excluded.reminder_type,
		   time_of_day = excluded.time_of_day,
		   weekdays = excluded.weekdays,
		   interval_minutes = excluded.interval_minutes,
		   start_time = excluded.start_time,
		   end_time = excluded.end_time,
		   enabled = excluded.enabled,
		   next_trigger_time = excluded.next_trigger_time,
		   trigger_count = excluded.trigger_count,
		   last_triggered = excluded.last_triggered,
		   title = excluded.title,
		   body = excluded.body,
		   icon = excluded.icon,
		   tag = excluded.tag,
		   data = excluded.data,
		   updated_at = excluded.updated_at`,
		r.ID, r.UserID, string(r.Type), r.TimeOfDay, encodeWeekdays(r.Weekdays), r.IntervalMinutes,
		r.StartTime, r.EndTime, boolToInt(r.Enabled), r.NextTriggerTime.UTC(), r.TriggerCount,
		nullableTime(r.LastTriggered), r.Title, r.Body, r.Icon, r.Tag, string(data), time.Now().UTC(),
	)
	return err
}

// Advance marks one successful trigger: increments trigger_count, stamps
// last_triggered, and moves next_trigger_time forward.
func (s *ReminderStore) Advance(id string, next time.Time) error {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`UPDATE reminders
		 SET trigger_count = trigger_count + 1,
		     last_triggered = ?,
		     next_trigger_time = ?,
		     updated_at = ?
		 WHERE id = ?`,
		now, next.UTC(), now, id,
	)
	if err != nil {
		return fmt.Errorf("advance reminder: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("advance reminder: %s not found", id)
	}
	return nil
}

func scanReminders(rows *sql.Rows) ([]model.Reminder, error) {
	var out []model.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (*model.Reminder, error) {
	var (
		r             model.Reminder
		typ, weekdays string
		enabled       int
		lastTriggered sql.NullTime
		data          string
	)
	err := row.Scan(
		&r.ID, &r.UserID, &typ, &r.TimeOfDay, &weekdays, &r.IntervalMinutes,
		&r.StartTime, &r.EndTime, &enabled, &r.NextTriggerTime, &r.TriggerCount, &lastTriggered,
		&r.Title, &r.Body, &r.Icon, &r.Tag, &data, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Type = model.ReminderType(typ)
	r.Weekdays = decodeWeekdays(weekdays)
	r.Enabled = enabled != 0
	if lastTriggered.Valid {
		t := lastTriggered.Time
		r.LastTriggered = &t
	}
	if data != "" {
		// Malformed payload data is dropped, not fatal.
		_ = json.Unmarshal([]byte(data), &r.Data)
	}
	return &r, nil
}

func encodeWeekdays(days []int) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(d))
	}
	return strings.Join(parts, ",")
}

func decodeWeekdays(s string) []int {
	if s == "" {
		return nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
