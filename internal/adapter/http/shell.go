package http

import (
	"bytes"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

const offlineBody = "Offline"

// ShellAssets are precached when the shell cache starts.
var ShellAssets = []string{"/", "/manifest.webmanifest", "/icon-192.svg", "/icon-512.svg"}

type cachedResponse struct {
	status int
	header http.Header
	body   []byte
}

// ShellCache serves the app shell cache-first in front of origin. Precached
// assets never expire; other successful GETs are kept in a runtime cache.
type ShellCache struct {
	origin http.Handler
	logger *slog.Logger

	mu        sync.RWMutex
	precached map[string]*cachedResponse
	runtime   *cache.Cache
}

// NewShellCache wraps origin. runtimeTTL bounds runtime entries; zero keeps
// them until restart.
func NewShellCache(origin http.Handler, runtimeTTL time.Duration, logger *slog.Logger) *ShellCache {
	if runtimeTTL <= 0 {
		runtimeTTL = cache.NoExpiration
	}
	return &ShellCache{
		origin:    origin,
		logger:    logger,
		precached: make(map[string]*cachedResponse),
		runtime:   cache.New(runtimeTTL, 0),
	}
}

// Precache fetches paths from origin and pins the successful ones. It
// returns how many were stored.
func (c *ShellCache) Precache(paths []string) int {
	stored := 0
	for _, p := range paths {
		req, err := http.NewRequest(http.MethodGet, p, nil)
		if err != nil {
			c.logger.Warn("precache skipped", "path", p, "error", err)
			continue
		}
		resp := c.fetch(req)
		if resp.status != http.StatusOK {
			c.logger.Warn("precache miss", "path", p, "status", resp.status)
			continue
		}
		c.mu.Lock()
		c.precached[p] = resp
		c.mu.Unlock()
		stored++
	}
	c.logger.Info("app shell precached", "stored", stored, "requested", len(paths))
	return stored
}

func (c *ShellCache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		c.origin.ServeHTTP(w, r)
		return
	}
	key := r.URL.RequestURI()

	if resp, ok := c.lookup(key); ok {
		w.Header().Set("X-Cache", "hit")
		resp.write(w)
		return
	}

	resp := c.fetch(r)
	if resp.status >= http.StatusInternalServerError {
		c.logger.Warn("shell origin failed", "path", key, "status", resp.status)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(offlineBody))
		return
	}
	if resp.status == http.StatusOK {
		c.runtime.DeleteExpired()
		c.runtime.Set(key, resp, cache.DefaultExpiration)
	}
	w.Header().Set("X-Cache", "miss")
	resp.write(w)
}

func (c *ShellCache) lookup(key string) (*cachedResponse, bool) {
	c.mu.RLock()
	resp, ok := c.precached[key]
	c.mu.RUnlock()
	if ok {
		return resp, true
	}
	if v, ok := c.runtime.Get(key); ok {
		return v.(*cachedResponse), true
	}
	return nil, false
}

// fetch runs origin into a buffer. A panicking origin counts as a failure.
func (c *ShellCache) fetch(r *http.Request) (resp *cachedResponse) {
	rec := &recorder{header: make(http.Header)}
	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("shell origin panicked", "path", r.URL.Path, "panic", p)
			resp = &cachedResponse{status: http.StatusInternalServerError}
		}
	}()
	c.origin.ServeHTTP(rec, r)
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	return &cachedResponse{status: rec.status, header: rec.header, body: rec.body.Bytes()}
}

func (resp *cachedResponse) write(w http.ResponseWriter) {
	for k, vs := range resp.header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.status)
	_, _ = w.Write(resp.body)
}

type recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(b)
}
