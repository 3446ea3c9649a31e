package store

import (
	"database/sql"
	"fmt"
	"time"
)

// DeliveryRecord is one row of the local delivery log, kept for diagnostic
// dumps. The log is informational only; the cooldown map and persisted
// next_trigger_time are what actually prevent refires.
type DeliveryRecord struct {
	ID          int64     `json:"id"`
	ReminderID  string    `json:"reminder_id"`
	Tag         string    `json:"tag"`
	Title       string    `json:"title"`
	DeliveredAt time.Time `json:"delivered_at"`
}

type DeliveryLogStore struct {
	db *sql.DB
}

func NewDeliveryLogStore(db *sql.DB) *DeliveryLogStore {
	return &DeliveryLogStore{db: db}
}

func (s *DeliveryLogStore) Record(reminderID, tag, title string) error {
	_, err := s.db.Exec(
		`INSERT INTO delivery_log (reminder_id, tag, title, delivered_at) VALUES (?, ?, ?, ?)`,
		reminderID, tag, title, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

// Recent returns the newest n delivery records.
func (s *DeliveryLogStore) Recent(n int) ([]DeliveryRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, reminder_id, tag, title, delivered_at
		 FROM delivery_log ORDER BY delivered_at DESC, id DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []DeliveryRecord
	for rows.Next() {
		var rec DeliveryRecord
		if err := rows.Scan(&rec.ID, &rec.ReminderID, &rec.Tag, &rec.Title, &rec.DeliveredAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
