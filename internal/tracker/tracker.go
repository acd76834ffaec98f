package tracker

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/unified-analytics/internal/site"
)

const (
	eventJavaScriptError = "javascript_error"
	eventPageLoadTime    = "page_load_time"
)

// Dispatch lists the vendors a call reached.
type Dispatch struct {
	Vendors []string `json:"vendors"`
}

func (d *Dispatch) record(v Vendor, ok bool) {
	if ok {
		d.Vendors = append(d.Vendors, v.Name())
	}
}

// Reached reports whether vendor received the call.
func (d Dispatch) Reached(vendor string) bool {
	for _, name := range d.Vendors {
		if name == vendor {
			return true
		}
	}
	return false
}

// Client identifies the visitor behind a call.
type Client struct {
	ID        string
	UserAgent string
}

// Tracker is the public facade over the vendor capabilities.
type Tracker struct {
	source site.Source
	ga     Vendor
	umami  Vendor

	scheduler Scheduler
	clock     func() time.Time
	logger    *zap.Logger

	enableInDevelopment bool
	trackErrors         bool
	trackPerformance    bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithGA installs the Google Analytics capability.
func WithGA(v Vendor) Option {
	return func(t *Tracker) {
		t.ga = v
	}
}

// WithUmami installs the Umami capability.
func WithUmami(v Vendor) Option {
	return func(t *Tracker) {
		t.umami = v
	}
}

// WithScheduler overrides how load-time reports are deferred.
func WithScheduler(s Scheduler) Option {
	return func(t *Tracker) {
		t.scheduler = s
	}
}

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(t *Tracker) {
		t.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithDevelopment allows tracking on development hosts.
func WithDevelopment(enabled bool) Option {
	return func(t *Tracker) {
		t.enableInDevelopment = enabled
	}
}

// WithErrorTracking toggles the error tap.
func WithErrorTracking(enabled bool) Option {
	return func(t *Tracker) {
		t.trackErrors = enabled
	}
}

// WithPerformanceTracking toggles the load-time tap.
func WithPerformanceTracking(enabled bool) Option {
	return func(t *Tracker) {
		t.trackPerformance = enabled
	}
}

// New constructs a Tracker. Error and performance tracking are on by default.
func New(source site.Source, opts ...Option) *Tracker {
	t := &Tracker{
		source:           source,
		scheduler:        GoScheduler,
		logger:           zap.NewNop(),
		trackErrors:      true,
		trackPerformance: true,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// GetConfig returns the active configuration for host, or nil.
func (t *Tracker) GetConfig(host string) *site.Config {
	return t.source.Resolver().Resolve(host)
}

// Enabled reports whether the enablement gate admits host.
func (t *Tracker) Enabled(host string) bool {
	return site.ShouldEnable(host, t.enableInDevelopment)
}

// Track forwards a custom event to GA and Umami independently.
func (t *Tracker) Track(ctx context.Context, host string, client Client, name string, params map[string]any) Dispatch {
	var d Dispatch
	hit, ok := t.hit(host, client)
	if !ok {
		return d
	}
	hit.Name = name
	hit.Params = params

	if t.ga != nil {
		d.record(t.ga, t.ga.EmitEvent(ctx, hit))
	}
	if t.umami != nil {
		d.record(t.umami, t.umami.EmitEvent(ctx, hit))
	}
	return d
}

// Pageview reports a page view for path. The GA call is attempted even when
// host has no GA id; the capability treats that as a no-op.
func (t *Tracker) Pageview(ctx context.Context, host string, client Client, path string) Dispatch {
	var d Dispatch
	hit, ok := t.hit(host, client)
	if !ok {
		return d
	}
	hit.Path = path

	if t.ga != nil {
		d.record(t.ga, t.ga.EmitPageview(ctx, hit))
	}
	if t.umami != nil {
		d.record(t.umami, t.umami.EmitPageview(ctx, hit))
	}
	return d
}

// ErrorReport is an uncaught script error as observed by the page.
type ErrorReport struct {
	Message string
	Source  string
	Line    int
	Column  int
	Stack   string
	URL     string
}

// ErrorRecord is an ErrorReport stamped with the time it was received.
type ErrorRecord struct {
	ErrorReport
	Timestamp time.Time
}

// ReportError forwards a script error to GA as a javascript_error event.
// Without GA the record is dropped.
func (t *Tracker) ReportError(ctx context.Context, host string, client Client, report ErrorReport) Dispatch {
	var d Dispatch
	if !t.trackErrors || t.ga == nil {
		return d
	}
	hit, ok := t.hit(host, client)
	if !ok {
		return d
	}

	record := ErrorRecord{ErrorReport: report, Timestamp: hit.Timestamp}
	t.logger.Debug("script error tracked",
		zap.String("host", hit.Hostname),
		zap.String("message", record.Message),
		zap.String("source", record.Source),
		zap.Int("line", record.Line),
		zap.Int("column", record.Column),
		zap.String("url", record.URL),
		zap.Time("timestamp", record.Timestamp),
	)

	hit.Name = eventJavaScriptError
	hit.URL = record.URL
	hit.Params = map[string]any{
		"error_message": record.Message,
		"error_url":     record.URL,
		"error_source":  record.Source,
		"error_line":    record.Line,
		"error_column":  record.Column,
	}
	if record.Stack != "" {
		hit.Params["error_stack"] = truncate(record.Stack, 100)
	}

	d.record(t.ga, t.ga.EmitEvent(ctx, hit))
	return d
}

// Timing carries the navigation timestamps of a page load, in milliseconds
// since the epoch.
type Timing struct {
	NavigationStart int64
	LoadEventEnd    int64
}

// Available reports whether the timing data is usable.
func (tm Timing) Available() bool {
	return tm.NavigationStart > 0 && tm.LoadEventEnd >= tm.NavigationStart
}

// LoadTime is the elapsed milliseconds from navigation start to the end of
// the load event.
func (tm Timing) LoadTime() int64 {
	return tm.LoadEventEnd - tm.NavigationStart
}

// ReportLoadTime schedules a single deferred page_load_time event through GA.
// It reports whether a continuation was scheduled.
func (t *Tracker) ReportLoadTime(ctx context.Context, host string, client Client, timing Timing) bool {
	if !t.trackPerformance || !timing.Available() || t.ga == nil {
		return false
	}
	hit, ok := t.hit(host, client)
	if !ok {
		return false
	}

	ctx = context.WithoutCancel(ctx)
	ga := t.ga
	t.scheduler.Defer(func() {
		loadTime := timing.LoadTime()
		hit.Name = eventPageLoadTime
		hit.Params = map[string]any{"value": loadTime}
		reached := ga.EmitEvent(ctx, hit)
		t.logger.Debug("page load time tracked",
			zap.String("host", hit.Hostname),
			zap.Int64("load_time_ms", loadTime),
			zap.Bool("reached", reached),
		)
	})
	return true
}

func (t *Tracker) hit(host string, client Client) (Hit, bool) {
	host = site.NormalizeHost(host)
	if !t.Enabled(host) {
		t.logger.Debug("analytics disabled for development host", zap.String("host", host))
		return Hit{}, false
	}

	hit := Hit{
		Hostname:  host,
		ClientID:  client.ID,
		UserAgent: client.UserAgent,
		Timestamp: t.clock(),
	}
	if cfg := t.GetConfig(host); cfg != nil {
		hit.Config = *cfg
	} else {
		t.logger.Warn("no analytics configuration found for domain", zap.String("host", host))
	}
	if hit.ClientID == "" {
		hit.ClientID = newClientID(hit.Timestamp)
	}
	return hit, true
}

func newClientID(now time.Time) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatInt(now.UnixNano(), 10)
	}
	return hex.EncodeToString(buf) + "." + strconv.FormatInt(now.Unix(), 10)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
