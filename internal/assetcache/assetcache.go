package assetcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// cacheGeneration tags the named caches; bumping it invalidates everything
// on the next activation.
const cacheGeneration = "v1"

const fetchTimeout = 15 * time.Second

// offlineDoc is served when a navigation cannot be satisfied from network
// or cache.
const offlineDoc = `<!doctype html><html><head><title>Offline</title></head>
<body><h1>You are offline</h1><p>Reconnect to load this page.</p></body></html>`

// Manager fronts the UI asset origin with two policies: network-first for
// navigations, cache-first with background revalidation for static assets.
// Non-GET and cross-origin requests pass through untouched.
type Manager struct {
	origin *url.URL
	client *http.Client
	fs     afero.Fs
	logger *slog.Logger
}

// cached response envelope stored on the cache filesystem.
type envelope struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

func New(origin string, fs afero.Fs, logger *slog.Logger) (*Manager, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("origin %q must be absolute", origin)
	}
	return &Manager{
		origin: u,
		client: &http.Client{Timeout: fetchTimeout},
		fs:     fs,
		logger: logger,
	}, nil
}

func documentCache() string { return "documents-" + cacheGeneration }
func staticCache() string   { return "static-" + cacheGeneration }

// Install pre-populates the static cache with the fixed asset manifest.
// Individual fetch failures are logged and skipped; install succeeds if the
// cache directories exist.
func (m *Manager) Install(ctx context.Context, manifest []string) error {
	for _, name := range []string{documentCache(), staticCache()} {
		if err := m.fs.MkdirAll(name, 0o755); err != nil {
			return fmt.Errorf("create cache %s: %w", name, err)
		}
	}

	for _, asset := range manifest {
		env, err := m.fetch(ctx, asset)
		if err != nil {
			m.logger.Warn("precache fetch failed", "asset", asset, "error", err)
			continue
		}
		if err := m.put(staticCache(), asset, env); err != nil {
			m.logger.Warn("precache store failed", "asset", asset, "error", err)
		}
	}
	return nil
}

// Activate deletes every cache directory not belonging to the current
// generation. The cutover is atomic per directory: a generation is either
// fully present or gone.
func (m *Manager) Activate() error {
	entries, err := afero.ReadDir(m.fs, ".")
	if err != nil {
		return fmt.Errorf("list caches: %w", err)
	}

	keep := map[string]bool{documentCache(): true, staticCache(): true}
	for _, entry := range entries {
		if !entry.IsDir() || keep[entry.Name()] {
			continue
		}
		if err := m.fs.RemoveAll(entry.Name()); err != nil {
			return fmt.Errorf("remove stale cache %s: %w", entry.Name(), err)
		}
		m.logger.Info("removed stale cache", "name", entry.Name())
	}
	return nil
}

func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet || m.crossOrigin(r) {
		m.passThrough(w, r)
		return
	}

	if isNavigation(r) {
		m.networkFirst(w, r)
		return
	}
	m.cacheFirst(w, r)
}

// crossOrigin reports whether the request targets a host other than the
// configured asset origin.
func (m *Manager) crossOrigin(r *http.Request) bool {
	return r.URL.Host != "" && r.URL.Host != m.origin.Host
}

func isNavigation(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// networkFirst serves navigations: try the origin, cache good responses,
// fall back to cache, then to the pinned offline document.
func (m *Manager) networkFirst(w http.ResponseWriter, r *http.Request) {
	env, err := m.fetch(r.Context(), r.URL.Path)
	if err == nil && env.Status == http.StatusOK {
		if perr := m.put(documentCache(), r.URL.Path, env); perr != nil {
			m.logger.Warn("cache document", "path", r.URL.Path, "error", perr)
		}
		writeEnvelope(w, env)
		return
	}

	if cached, ok := m.get(documentCache(), r.URL.Path); ok {
		writeEnvelope(w, cached)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	io.WriteString(w, offlineDoc)
}

// cacheFirst serves static assets: cached copy immediately with an async
// refresh, or fetch-and-cache on miss.
func (m *Manager) cacheFirst(w http.ResponseWriter, r *http.Request) {
	if cached, ok := m.get(staticCache(), r.URL.Path); ok {
		writeEnvelope(w, cached)
		go m.revalidate(r.URL.Path)
		return
	}

	env, err := m.fetch(r.Context(), r.URL.Path)
	if err != nil || env.Status != http.StatusOK {
		// Typed asset failure, distinct from the navigation fallback.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": "asset_unavailable", "path": r.URL.Path})
		return
	}

	if perr := m.put(staticCache(), r.URL.Path, env); perr != nil {
		m.logger.Warn("cache asset", "path", r.URL.Path, "error", perr)
	}
	writeEnvelope(w, env)
}

// revalidate refreshes a cached asset in the background. Failures leave
// the existing copy in place.
func (m *Manager) revalidate(assetPath string) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	env, err := m.fetch(ctx, assetPath)
	if err != nil || env.Status != http.StatusOK {
		return
	}
	if err := m.put(staticCache(), assetPath, env); err != nil {
		m.logger.Warn("revalidate store", "path", assetPath, "error", err)
	}
}

func (m *Manager) passThrough(w http.ResponseWriter, r *http.Request) {
	target := *m.origin
	target.Path = path.Join(target.Path, r.URL.Path)
	target.RawQuery = r.URL.RawQuery

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	req.Header = r.Header.Clone()

	resp, err := m.client.Do(req)
	if err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, vals := range resp.Header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

func (m *Manager) fetch(ctx context.Context, assetPath string) (envelope, error) {
	target := *m.origin
	target.Path = path.Join(target.Path, assetPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return envelope{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return envelope{}, fmt.Errorf("fetch %s: %w", assetPath, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return envelope{}, fmt.Errorf("read %s: %w", assetPath, err)
	}
	return envelope{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (m *Manager) put(cache, assetPath string, env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := m.fs.MkdirAll(cache, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	return afero.WriteFile(m.fs, cacheKey(cache, assetPath), data, 0o644)
}

func (m *Manager) get(cache, assetPath string) (envelope, bool) {
	data, err := afero.ReadFile(m.fs, cacheKey(cache, assetPath))
	if err != nil {
		return envelope{}, false
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		// Corrupt entry: drop it.
		m.fs.Remove(cacheKey(cache, assetPath))
		return envelope{}, false
	}
	return env, true
}

func cacheKey(cache, assetPath string) string {
	sum := sha256.Sum256([]byte(assetPath))
	return path.Join(cache, hex.EncodeToString(sum[:])+".res")
}

func writeEnvelope(w http.ResponseWriter, env envelope) {
	if env.ContentType != "" {
		w.Header().Set("Content-Type", env.ContentType)
	}
	w.WriteHeader(env.Status)
	w.Write(env.Body)
}
