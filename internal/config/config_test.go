package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":8090" {
		t.Errorf("ListenAddr = %q, want :8090", cfg.ListenAddr)
	}
	if cfg.DatabasePath != "remindd.db" {
		t.Errorf("DatabasePath = %q, want remindd.db", cfg.DatabasePath)
	}
	if cfg.RemoteConfigured() {
		t.Error("remote should not be configured by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REMINDD_LISTEN_ADDR", ":9000")
	t.Setenv("REMINDD_REMOTE_URL", "https://api.example.com")
	t.Setenv("REMINDD_REMOTE_KEY", "anon-key")
	t.Setenv("REMINDD_USER_ID", "u1")
	t.Setenv("REMINDD_ACCESS_TOKEN", "tok")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":9000" {
		t.Errorf("ListenAddr = %q, want :9000", cfg.ListenAddr)
	}
	if !cfg.RemoteConfigured() {
		t.Error("remote should be configured")
	}
}

func TestVAPIDKeyPairValidation(t *testing.T) {
	t.Run("private without public", func(t *testing.T) {
		t.Setenv("REMINDD_VAPID_PRIVATE_KEY", "priv-only")
		if _, err := Load(); err == nil {
			t.Error("expected error for private key without public key")
		}
	})

	t.Run("public without private", func(t *testing.T) {
		t.Setenv("REMINDD_VAPID_PUBLIC_KEY", "pub-only")
		if _, err := Load(); err == nil {
			t.Error("expected error for public key without private key")
		}
	})

	t.Run("both set", func(t *testing.T) {
		t.Setenv("REMINDD_VAPID_PUBLIC_KEY", "pub")
		t.Setenv("REMINDD_VAPID_PRIVATE_KEY", "priv")
		if _, err := Load(); err != nil {
			t.Errorf("load: %v", err)
		}
	})
}
