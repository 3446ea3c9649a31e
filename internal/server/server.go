package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/spf13/afero"

	"remindd/internal/assetcache"
	"remindd/internal/config"
	"remindd/internal/engine"
	"remindd/internal/hub"
	"remindd/internal/middleware"
	"remindd/internal/notify"
	"remindd/internal/remote"
	"remindd/internal/store"
)

// Server wires the scheduler engine, websocket hub, push dispatcher, and
// asset cache behind one HTTP surface.
type Server struct {
	db  *sql.DB
	cfg *config.Config

	hub        *hub.Hub
	engine     *engine.Engine
	dispatcher *notify.Dispatcher
	assets     *assetcache.Manager

	subs     *store.SubscriptionStore
	dlog     *store.DeliveryLogStore
	settings *store.SettingsStore

	vapidPublicKey string

	logger *slog.Logger
}

// New builds the full component graph. db may be nil when the local store
// failed to open; the server then runs without a fallback store and the
// engine depends on the remote source alone.
func New(db *sql.DB, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	var (
		reminderStore *store.ReminderStore
		subStore      *store.SubscriptionStore
		settingsStore *store.SettingsStore
		dlogStore     *store.DeliveryLogStore
	)
	if db != nil {
		reminderStore = store.NewReminderStore(db)
		subStore = store.NewSubscriptionStore(db)
		settingsStore = store.NewSettingsStore(db)
		dlogStore = store.NewDeliveryLogStore(db)
	}

	pub, priv, err := resolveVAPIDKeys(cfg, settingsStore, logger)
	if err != nil {
		return nil, err
	}

	sender := notify.NewWebPushSender(pub, priv, cfg.VAPIDSubject)

	remoteClient := remote.NewClient(loadCredentials(cfg, settingsStore, logger))

	h := hub.NewHub(nil, logger.With("component", "hub"))

	dispatcher := notify.NewDispatcher(sender, subSource(subStore), h, logger.With("component", "notify"))

	eng := engine.New(
		remoteClient,
		localSource(reminderStore),
		dispatcher,
		h,
		dlogSource(dlogStore),
		credSaver(settingsStore),
		cfg.SealPassphrase,
		logger.With("component", "engine"),
	)
	dispatcher.OnDisplayFailure = eng.ReleaseDisplay

	// UI commands and HTTP commands land on the same queue and are consumed
	// serially by the engine goroutine.
	h.SetCommandSink(eng.Commands())

	var assets *assetcache.Manager
	if cfg.AssetOrigin != "" {
		fs := afero.NewBasePathFs(afero.NewOsFs(), cfg.AssetCacheDir)
		assets, err = assetcache.New(cfg.AssetOrigin, fs, logger.With("component", "assets"))
		if err != nil {
			return nil, err
		}
	}

	return &Server{
		db:             db,
		cfg:            cfg,
		hub:            h,
		engine:         eng,
		dispatcher:     dispatcher,
		assets:         assets,
		subs:           subStore,
		dlog:           dlogStore,
		settings:       settingsStore,
		vapidPublicKey: pub,
		logger:         logger,
	}, nil
}

// Engine returns the scheduler engine for lifecycle management.
func (s *Server) Engine() *engine.Engine {
	return s.engine
}

// Assets returns the asset cache manager, or nil when no origin is
// configured.
func (s *Server) Assets() *assetcache.Manager {
	return s.assets
}

// subSource adapts a possibly-nil subscription store to the dispatcher
// interface without producing a non-nil interface around a nil pointer.
func subSource(st *store.SubscriptionStore) notify.SubscriptionSource {
	if st == nil {
		return nil
	}
	return st
}

func localSource(st *store.ReminderStore) engine.LocalSource {
	if st == nil {
		return nil
	}
	return st
}

func dlogSource(st *store.DeliveryLogStore) engine.DeliveryLog {
	if st == nil {
		return nil
	}
	return st
}

func credSaver(st *store.SettingsStore) engine.CredentialSaver {
	if st == nil {
		return nil
	}
	return st
}

// resolveVAPIDKeys prefers environment keys, then persisted keys, and
// finally generates and persists a fresh pair so push delivery works out of
// the box.
func resolveVAPIDKeys(cfg *config.Config, settings *store.SettingsStore, logger *slog.Logger) (string, string, error) {
	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		return cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, nil
	}

	if settings != nil {
		pub, errPub := settings.Get("vapid_public_key")
		priv, errPriv := settings.Get("vapid_private_key")
		if errPub == nil && errPriv == nil && pub != "" && priv != "" {
			return pub, priv, nil
		}
	}

	pub, priv, err := notify.GenerateVAPIDKeys()
	if err != nil {
		return "", "", err
	}
	logger.Info("generated VAPID key pair")

	if settings != nil {
		if err := settings.Set("vapid_public_key", pub); err != nil {
			logger.Warn("persist vapid public key", "error", err)
		}
		if err := settings.Set("vapid_private_key", priv); err != nil {
			logger.Warn("persist vapid private key", "error", err)
		}
	}
	return pub, priv, nil
}

// loadCredentials assembles remote credentials from the environment, falling
// back to the persisted copy from a previous configure command.
func loadCredentials(cfg *config.Config, settings *store.SettingsStore, logger *slog.Logger) remote.Credentials {
	if cfg.RemoteConfigured() {
		return remote.Credentials{
			BaseURL:     cfg.RemoteURL,
			APIKey:      cfg.RemoteKey,
			UserID:      cfg.UserID,
			AccessToken: cfg.AccessToken,
		}
	}

	if settings == nil {
		return remote.Credentials{}
	}

	var creds remote.Credentials
	if v, err := settings.Get(store.KeyRemoteURL); err == nil {
		creds.BaseURL = v
	}
	if v, err := settings.Get(store.KeyRemoteKey); err == nil {
		creds.APIKey = v
	}
	if v, err := settings.Get(store.KeyUserID); err == nil {
		creds.UserID = v
	}
	if token, err := settings.SealedToken(cfg.SealPassphrase); err == nil {
		creds.AccessToken = token
	} else if !errors.Is(err, store.ErrNotFound) {
		logger.Warn("unseal access token", "error", err)
	}
	return creds
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /ws", hub.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))

	// Command surface. Mirrors the websocket command set for clients that
	// only speak HTTP.
	mux.HandleFunc("POST /api/configure", s.configureHandler)
	mux.HandleFunc("POST /api/refresh", s.commandHandler(hub.CmdRefresh))
	mux.HandleFunc("POST /api/test-notification", s.commandHandler(hub.CmdTestNotification))
	mux.HandleFunc("POST /api/debug", s.commandHandler(hub.CmdDebug))

	mux.HandleFunc("GET /api/vapid-key", s.vapidKeyHandler)
	mux.HandleFunc("POST /api/subscriptions", s.createSubscription)
	mux.HandleFunc("GET /api/subscriptions", s.listSubscriptions)
	mux.HandleFunc("DELETE /api/subscriptions", s.deleteSubscription)
	mux.HandleFunc("GET /api/deliveries", s.recentDeliveries)

	if s.assets != nil {
		mux.Handle("/", s.assets)
	}

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":  "ok",
		"store":   s.db != nil,
		"clients": s.hub.ClientCount(),
	}
	writeJSON(w, http.StatusOK, status)
}

// enqueue forwards a command to the engine without blocking the request.
func (s *Server) enqueue(w http.ResponseWriter, cmd hub.Command) {
	select {
	case s.engine.Commands() <- cmd:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	default:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "command queue full"})
	}
}

func (s *Server) commandHandler(cmdType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.enqueue(w, hub.Command{Type: cmdType})
	}
}

func (s *Server) configureHandler(w http.ResponseWriter, r *http.Request) {
	var cmd hub.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	cmd.Type = hub.CmdConfigure
	cmd.ClientID = ""
	s.enqueue(w, cmd)
}

func (s *Server) vapidKeyHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"public_key": s.vapidPublicKey})
}

func (s *Server) createSubscription(w http.ResponseWriter, r *http.Request) {
	if s.subs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store unavailable"})
		return
	}

	var req struct {
		UserID     string `json:"user_id"`
		Endpoint   string `json:"endpoint"`
		P256dhKey  string `json:"p256dh_key"`
		AuthKey    string `json:"auth_key"`
		DeviceName string `json:"device_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Endpoint == "" || req.P256dhKey == "" || req.AuthKey == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "endpoint, p256dh_key, and auth_key are required"})
		return
	}

	sub, err := s.subs.Create(req.UserID, req.Endpoint, req.P256dhKey, req.AuthKey, req.DeviceName)
	if err != nil {
		s.logger.Error("create subscription", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save subscription"})
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	if s.subs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store unavailable"})
		return
	}
	subs, err := s.subs.List()
	if err != nil {
		s.logger.Error("list subscriptions", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list subscriptions"})
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	if s.subs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store unavailable"})
		return
	}
	endpoint := r.URL.Query().Get("endpoint")
	if endpoint == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "endpoint query parameter required"})
		return
	}
	if err := s.subs.DeleteByEndpoint(endpoint); err != nil {
		s.logger.Error("delete subscription", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete subscription"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) recentDeliveries(w http.ResponseWriter, r *http.Request) {
	if s.dlog == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store unavailable"})
		return
	}
	records, err := s.dlog.Recent(50)
	if err != nil {
		s.logger.Error("recent deliveries", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read delivery log"})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
