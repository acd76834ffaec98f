package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/unified-analytics/internal/api"
	"github.com/eugenenazirov/unified-analytics/internal/loader"
	"github.com/eugenenazirov/unified-analytics/internal/site"
	"github.com/eugenenazirov/unified-analytics/internal/storage"
	"github.com/eugenenazirov/unified-analytics/internal/tracker"
	"github.com/eugenenazirov/unified-analytics/internal/vendors"
)

type collector struct {
	mu    sync.Mutex
	paths []string
}

func (c *collector) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		c.mu.Lock()
		c.paths = append(c.paths, r.URL.Path)
		c.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
}

func (c *collector) count(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, p := range c.paths {
		if p == path {
			n++
		}
	}
	return n
}

func newRouter(t *testing.T, vendorURL string) http.Handler {
	t.Helper()

	table, err := site.NewTable([]site.Entry{
		{Pattern: "bearxwu.sbs", Config: site.Config{
			GA:       "G-2EE843NKSD",
			Baidu:    "e4216c0b920a9036e8ae6a85d8774be7",
			Umami:    "db3eaad6-38cb-46ed-a3c9-fea8b2c36aeb",
			UmamiURL: vendorURL + "/script.js",
		}},
	}, &site.Config{GA: "G-XXXXXXXXXX"})
	if err != nil {
		t.Fatalf("NewTable returned error: %v", err)
	}

	logger := zaptest.NewLogger(t)
	store := storage.NewMemoryStorage(site.NewResolver(table))
	tr := tracker.New(store,
		tracker.WithLogger(logger),
		tracker.WithGA(vendors.NewGA(vendorURL+"/mp/collect", "secret", logger)),
		tracker.WithUmami(vendors.NewUmami(logger)),
		tracker.WithScheduler(tracker.SchedulerFunc(func(fn func()) { fn() })),
	)
	handler := api.NewHandler(tr, loader.New(store, logger), store)
	return api.NewRouter(handler, logger, api.WithLogging(false), api.WithRateLimit(0, 0))
}

func performRequest(t *testing.T, handler http.Handler, method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	return data
}

func TestIntegrationFlow(t *testing.T) {
	c := &collector{}
	vendorSrv := httptest.NewServer(c.handler())
	defer vendorSrv.Close()

	handler := newRouter(t, vendorSrv.URL)
	jsonHeaders := map[string]string{"Content-Type": "application/json", "User-Agent": "integration-test"}

	rec := performRequest(t, handler, http.MethodGet, "/api/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected health 200, got %d", rec.Code)
	}

	rec = performRequest(t, handler, http.MethodGet, "/api/config?host=blog.bearxwu.sbs", nil, nil)
	if !strings.Contains(rec.Body.String(), `"ga":"G-2EE843NKSD"`) {
		t.Fatalf("expected subdomain config, got %s", rec.Body.String())
	}

	rec = performRequest(t, handler, http.MethodGet, "/api/config?host=other.org", nil, nil)
	if !strings.Contains(rec.Body.String(), `"ga":"G-XXXXXXXXXX"`) {
		t.Fatalf("expected fallback config, got %s", rec.Body.String())
	}

	rec = performRequest(t, handler, http.MethodPost, "/api/track",
		mustJSON(t, map[string]any{"host": "bearxwu.sbs", "name": "signup", "params": map[string]any{"plan": "pro"}}), jsonHeaders)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected track 202, got %d", rec.Code)
	}
	if c.count("/mp/collect") != 1 || c.count("/api/send") != 1 {
		t.Fatalf("expected one GA and one Umami call, got %v", c.paths)
	}

	rec = performRequest(t, handler, http.MethodPost, "/api/pageview",
		mustJSON(t, map[string]any{"host": "bearxwu.sbs", "path": "/about"}), jsonHeaders)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected pageview 202, got %d", rec.Code)
	}

	rec = performRequest(t, handler, http.MethodPost, "/api/timing",
		mustJSON(t, map[string]any{"host": "bearxwu.sbs", "navigationStart": 1, "loadEventEnd": 501}), jsonHeaders)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected timing 202, got %d", rec.Code)
	}

	deadline := time.Now().Add(time.Second)
	for c.count("/mp/collect") < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := c.count("/mp/collect"); got != 3 {
		t.Fatalf("expected 3 GA calls, got %d", got)
	}
	if got := c.count("/api/send"); got != 2 {
		t.Fatalf("expected 2 Umami calls, got %d", got)
	}

	page := []byte(`<html><head></head><body></body></html>`)
	rec = performRequest(t, handler, http.MethodPost, "/api/inject?host=bearxwu.sbs", page, nil)
	if !strings.Contains(rec.Body.String(), "hm.baidu.com/hm.js?e4216c0b920a9036e8ae6a85d8774be7") {
		t.Fatalf("expected tongji bootstrap, got %s", rec.Body.String())
	}

	rec = performRequest(t, handler, http.MethodPost, "/api/track",
		mustJSON(t, map[string]any{"host": "127.0.0.1", "name": "ignored"}), jsonHeaders)
	if rec.Code != http.StatusAccepted || !strings.Contains(rec.Body.String(), `"vendors":[]`) {
		t.Fatalf("expected loopback to be gated, got %d %s", rec.Code, rec.Body.String())
	}
}
