package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/unified-analytics/internal/loader"
	"github.com/eugenenazirov/unified-analytics/internal/site"
	"github.com/eugenenazirov/unified-analytics/internal/storage"
	"github.com/eugenenazirov/unified-analytics/internal/tracker"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

const (
	maxEventBodyBytes    = 64 << 10
	maxDocumentBodyBytes = 4 << 20
)

// Handler wires the tracker facade, the script loader and the site storage
// into HTTP handlers.
type Handler struct {
	tracker *tracker.Tracker
	loader  *loader.Loader
	storage storage.Storage
	logger  *zap.Logger

	clock func() time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithHandlerLogger sets the logger used for request-level diagnostics.
func WithHandlerLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(tr *tracker.Tracker, ld *loader.Loader, store storage.Storage, opts ...HandlerOption) *Handler {
	h := &Handler{
		tracker: tr,
		loader:  ld,
		storage: store,
		logger:  zap.NewNop(),
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:          "ok",
		Timestamp:       h.clock(),
		ConfigUpdatedAt: h.storage.UpdatedAt(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	host := requestHost(r, r.URL.Query().Get("host"))
	resp := configResponse{
		Host:    host,
		Enabled: h.tracker.Enabled(host),
		Config:  h.tracker.GetConfig(host),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleTrack(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "Invalid request", "name must not be empty")
		return
	}

	host := requestHost(r, req.Host)
	d := h.tracker.Track(r.Context(), host, clientFrom(r, req.ClientID), name, req.Params)
	h.logDispatch(r.Context(), "track", host, d)
	writeJSON(w, http.StatusAccepted, newDispatchResponse(host, d))
}

func (h *Handler) handlePageview(w http.ResponseWriter, r *http.Request) {
	var req pageviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	path := strings.TrimSpace(req.Path)
	if path == "" {
		writeError(w, http.StatusBadRequest, "Invalid request", "path must not be empty", `send the page path, e.g. "/pricing"`)
		return
	}

	host := requestHost(r, req.Host)
	d := h.tracker.Pageview(r.Context(), host, clientFrom(r, req.ClientID), path)
	h.logDispatch(r.Context(), "pageview", host, d)
	writeJSON(w, http.StatusAccepted, newDispatchResponse(host, d))
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request) {
	var req errorRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	host := requestHost(r, req.Host)
	report := tracker.ErrorReport{
		Message: req.Message,
		Source:  req.Source,
		Line:    req.Line,
		Column:  req.Column,
		Stack:   req.Stack,
		URL:     req.URL,
	}
	d := h.tracker.ReportError(r.Context(), host, clientFrom(r, req.ClientID), report)
	h.logDispatch(r.Context(), "javascript_error", host, d)
	writeJSON(w, http.StatusAccepted, newDispatchResponse(host, d))
}

func (h *Handler) handleTiming(w http.ResponseWriter, r *http.Request) {
	var req timingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	host := requestHost(r, req.Host)
	timing := tracker.Timing{NavigationStart: req.NavigationStart, LoadEventEnd: req.LoadEventEnd}
	scheduled := h.tracker.ReportLoadTime(r.Context(), host, clientFrom(r, req.ClientID), timing)
	writeJSON(w, http.StatusAccepted, timingResponse{Host: host, Scheduled: scheduled})
}

func (h *Handler) handleInject(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "Document too large", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to read document")
		return
	}

	host := requestHost(r, r.URL.Query().Get("host"))
	out, err := h.loader.InjectHTML(body, host)
	if err != nil {
		h.logger.Warn("analytics injection incomplete",
			zap.String("host", host),
			zap.String("request_id", requestIDFromContext(r.Context())),
			zap.Error(err),
		)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (h *Handler) handleSnippet(w http.ResponseWriter, r *http.Request) {
	host := requestHost(r, r.URL.Query().Get("host"))
	frag, cfg, err := h.loader.Snippet(host)
	if err != nil {
		h.logger.Warn("analytics snippet incomplete", zap.String("host", host), zap.Error(err))
	}
	if cfg == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var buf bytes.Buffer
	if err := frag.Render(&buf); err != nil {
		writeInternalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) logDispatch(ctx context.Context, event, host string, d tracker.Dispatch) {
	h.logger.Debug("analytics dispatch",
		zap.String("event", event),
		zap.String("host", host),
		zap.Strings("vendors", d.Vendors),
		zap.String("request_id", requestIDFromContext(ctx)),
	)
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// requestHost prefers an explicit host over the request's Host header.
func requestHost(r *http.Request, explicit string) string {
	if host := strings.TrimSpace(explicit); host != "" {
		return site.NormalizeHost(host)
	}
	return site.NormalizeHost(r.Host)
}

func clientFrom(r *http.Request, id string) tracker.Client {
	return tracker.Client{ID: strings.TrimSpace(id), UserAgent: r.UserAgent()}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return false
	}
	return true
}

type trackRequest struct {
	Host     string         `json:"host"`
	ClientID string         `json:"clientId"`
	Name     string         `json:"name"`
	Params   map[string]any `json:"params"`
}

type pageviewRequest struct {
	Host     string `json:"host"`
	ClientID string `json:"clientId"`
	Path     string `json:"path"`
}

type errorRequest struct {
	Host     string `json:"host"`
	ClientID string `json:"clientId"`
	Message  string `json:"message"`
	Source   string `json:"source"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Stack    string `json:"stack"`
	URL      string `json:"url"`
}

type timingRequest struct {
	Host            string `json:"host"`
	ClientID        string `json:"clientId"`
	NavigationStart int64  `json:"navigationStart"`
	LoadEventEnd    int64  `json:"loadEventEnd"`
}

type dispatchResponse struct {
	Host    string   `json:"host"`
	Vendors []string `json:"vendors"`
}

func newDispatchResponse(host string, d tracker.Dispatch) dispatchResponse {
	vendors := d.Vendors
	if vendors == nil {
		vendors = []string{}
	}
	return dispatchResponse{Host: host, Vendors: vendors}
}

type timingResponse struct {
	Host      string `json:"host"`
	Scheduled bool   `json:"scheduled"`
}

type configResponse struct {
	Host    string       `json:"host"`
	Enabled bool         `json:"enabled"`
	Config  *site.Config `json:"config"`
}

type healthResponse struct {
	Status          string    `json:"status"`
	Timestamp       time.Time `json:"timestamp"`
	ConfigUpdatedAt time.Time `json:"configUpdatedAt"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
