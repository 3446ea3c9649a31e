package store

import (
	"errors"
	"testing"

	"remindd/internal/database"
)

func setupSettingsDB(t *testing.T) *SettingsStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSettingsStore(db)
}

func TestSettingsSetGet(t *testing.T) {
	st := setupSettingsDB(t)

	if err := st.Set(KeyRemoteURL, "https://example.supabase.co"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := st.Get(KeyRemoteURL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "https://example.supabase.co" {
		t.Errorf("get = %q", got)
	}

	// Overwrite
	if err := st.Set(KeyRemoteURL, "https://other.supabase.co"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = st.Get(KeyRemoteURL)
	if got != "https://other.supabase.co" {
		t.Errorf("after overwrite = %q", got)
	}
}

func TestSettingsMissingKey(t *testing.T) {
	st := setupSettingsDB(t)
	_, err := st.Get("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSealedTokenRoundTrip(t *testing.T) {
	st := setupSettingsDB(t)

	if err := st.SetSealedToken("bearer-token", "passphrase"); err != nil {
		t.Fatalf("set sealed token: %v", err)
	}

	// Raw stored value must not be the plaintext token.
	raw, err := st.Get(KeyAccessToken)
	if err != nil {
		t.Fatalf("get raw: %v", err)
	}
	if raw == "bearer-token" {
		t.Error("token stored in plaintext")
	}

	token, err := st.SealedToken("passphrase")
	if err != nil {
		t.Fatalf("sealed token: %v", err)
	}
	if token != "bearer-token" {
		t.Errorf("token = %q, want %q", token, "bearer-token")
	}
}
