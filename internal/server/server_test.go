package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"remindd/internal/config"
	"remindd/internal/database"
	"remindd/internal/model"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		SealPassphrase: "test-passphrase",
		VAPIDSubject:   "mailto:test@localhost",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := New(db, cfg, logger)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv
}

func TestHealth(t *testing.T) {
	srv := setupTestServer(t)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if body["store"] != true {
		t.Errorf("store field = %v, want true", body["store"])
	}
}

func TestVAPIDKeyGenerated(t *testing.T) {
	srv := setupTestServer(t)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/vapid-key", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	json.NewDecoder(rec.Body).Decode(&body)
	if body["public_key"] == "" {
		t.Error("expected a generated public key")
	}
}

func TestCommandEndpointsAccepted(t *testing.T) {
	srv := setupTestServer(t)

	for _, path := range []string{"/api/refresh", "/api/test-notification", "/api/debug"} {
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest("POST", path, nil))
		if rec.Code != http.StatusAccepted {
			t.Errorf("POST %s status = %d, want 202", path, rec.Code)
		}
	}
}

func TestConfigureRejectsBadBody(t *testing.T) {
	srv := setupTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/configure", strings.NewReader("{not json"))
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestConfigureAccepted(t *testing.T) {
	srv := setupTestServer(t)

	body := `{"remoteUrl":"https://api.example.com","remoteKey":"key","userId":"u1","accessToken":"tok"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/configure", strings.NewReader(body))
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	srv := setupTestServer(t)
	router := srv.Router()

	create := `{"user_id":"u1","endpoint":"https://push.example.com/ep1","p256dh_key":"p256","auth_key":"auth","device_name":"phone"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/subscriptions", strings.NewReader(create)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/subscriptions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	var subs []model.PushSubscription
	if err := json.NewDecoder(rec.Body).Decode(&subs); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(subs) != 1 || subs[0].Endpoint != "https://push.example.com/ep1" {
		t.Fatalf("unexpected list: %+v", subs)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("DELETE", "/api/subscriptions?endpoint=https://push.example.com/ep1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/subscriptions", nil))
	subs = nil
	json.NewDecoder(rec.Body).Decode(&subs)
	if len(subs) != 0 {
		t.Fatalf("expected empty list after delete, got %+v", subs)
	}
}

func TestSubscriptionValidation(t *testing.T) {
	srv := setupTestServer(t)

	rec := httptest.NewRecorder()
	body := `{"user_id":"u1","endpoint":"","p256dh_key":"p","auth_key":"a"}`
	srv.Router().ServeHTTP(rec, httptest.NewRequest("POST", "/api/subscriptions", strings.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDeliveriesEmpty(t *testing.T) {
	srv := setupTestServer(t)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/deliveries", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestNoStoreDegradedMode(t *testing.T) {
	cfg := &config.Config{
		SealPassphrase: "test-passphrase",
		VAPIDSubject:   "mailto:test@localhost",
		VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := New(nil, cfg, logger)
	if err != nil {
		t.Fatalf("new server without db: %v", err)
	}
	router := srv.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/subscriptions", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("subscriptions status = %d, want 503", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	var body map[string]any
	json.NewDecoder(rec.Body).Decode(&body)
	if body["store"] != false {
		t.Errorf("store field = %v, want false", body["store"])
	}
}
