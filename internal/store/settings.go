package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"remindd/internal/seal"
)

// Settings keys used by the engine.
const (
	KeyRemoteURL   = "remote_url"
	KeyRemoteKey   = "remote_key"
	KeyUserID      = "user_id"
	KeyAccessToken = "access_token" // stored sealed, never plaintext
)

// ErrNotFound is returned for absent settings keys.
var ErrNotFound = errors.New("setting not found")

type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Get(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("setting %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

func (s *SettingsStore) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// SetSealedToken encrypts the remote access token before writing it.
func (s *SettingsStore) SetSealedToken(token, passphrase string) error {
	sealed, err := seal.Seal(token, passphrase)
	if err != nil {
		return fmt.Errorf("seal token: %w", err)
	}
	return s.Set(KeyAccessToken, sealed)
}

// SealedToken reads back and decrypts the stored access token.
func (s *SettingsStore) SealedToken(passphrase string) (string, error) {
	sealed, err := s.Get(KeyAccessToken)
	if err != nil {
		return "", err
	}
	token, err := seal.Open(sealed, passphrase)
	if err != nil {
		return "", fmt.Errorf("open sealed token: %w", err)
	}
	return token, nil
}
