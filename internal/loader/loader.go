package loader

import (
	"bytes"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/eugenenazirov/unified-analytics/internal/site"
)

// Loader runs the enablement gate, resolves the site configuration, drives
// the three vendor loaders and installs the page-side runtime.
type Loader struct {
	source              site.Source
	logger              *zap.Logger
	enableInDevelopment bool
	endpoint            string
	trackErrors         bool
	trackPerformance    bool
}

// Option configures a Loader.
type Option func(*Loader)

// WithDevelopment allows injection on development hosts.
func WithDevelopment(enabled bool) Option {
	return func(l *Loader) {
		l.enableInDevelopment = enabled
	}
}

// WithEndpoint sets the API base the page-side runtime posts to.
func WithEndpoint(endpoint string) Option {
	return func(l *Loader) {
		l.endpoint = endpoint
	}
}

// WithErrorTracking toggles the page's uncaught error listener.
func WithErrorTracking(enabled bool) Option {
	return func(l *Loader) {
		l.trackErrors = enabled
	}
}

// WithPerformanceTracking toggles the page's load-time listener.
func WithPerformanceTracking(enabled bool) Option {
	return func(l *Loader) {
		l.trackPerformance = enabled
	}
}

// New constructs a Loader.
func New(source site.Source, logger *zap.Logger, opts ...Option) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loader{
		source:           source,
		logger:           logger,
		endpoint:         DefaultEndpoint,
		trackErrors:      true,
		trackPerformance: true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Apply injects the scripts configured for rc.Hostname. It returns the
// resolved configuration (nil when analytics are disabled) and the combined
// vendor failures, which are informational: a failing vendor never stops
// the others.
func (l *Loader) Apply(inj Injector, rc site.RuntimeContext) (*site.Config, error) {
	if !rc.Parsed() {
		return nil, ErrDocumentLoading
	}

	if !site.ShouldEnable(rc.Hostname, l.enableInDevelopment) {
		l.logger.Debug("analytics disabled for development host", zap.String("host", rc.Hostname))
		return nil, nil
	}

	cfg := l.source.Resolver().Resolve(rc.Hostname)
	if cfg == nil {
		l.logger.Warn("no analytics configuration found for domain", zap.String("host", rc.Hostname))
		return nil, nil
	}

	err := LoadAll(inj, *cfg, rc.Hostname, l.logger)
	err = multierr.Append(err, guard(l.logger, "instrumentation", func() error {
		return LoadInstrumentation(inj, Instrumentation{
			Endpoint:         l.endpoint,
			Host:             rc.Hostname,
			Config:           *cfg,
			TrackErrors:      l.trackErrors,
			TrackPerformance: l.trackPerformance,
		})
	}))
	l.logger.Debug("analytics initialized",
		zap.String("host", rc.Hostname),
		zap.String("ga", cfg.GA),
		zap.String("baidu", cfg.Baidu),
		zap.String("umami", cfg.Umami),
	)
	return cfg, err
}

// InjectHTML parses body, injects the scripts for host and re-renders it.
// The original body is returned unchanged when analytics are disabled or the
// document cannot be processed.
func (l *Loader) InjectHTML(body []byte, host string) ([]byte, error) {
	doc, err := ParseDocument(bytes.NewReader(body))
	if err != nil {
		return body, err
	}

	rc := site.NewRuntimeContext(host, site.ReadyStateComplete)
	cfg, loadErr := l.Apply(doc, rc)
	if cfg == nil {
		return body, loadErr
	}

	out, err := doc.Bytes()
	if err != nil {
		return body, err
	}
	return out, loadErr
}

// Snippet renders the scripts for host as an HTML fragment. The fragment is
// empty when analytics are disabled.
func (l *Loader) Snippet(host string) (*Fragment, *site.Config, error) {
	frag := &Fragment{}
	cfg, err := l.Apply(frag, site.NewRuntimeContext(host, site.ReadyStateComplete))
	return frag, cfg, err
}

// LoadAll runs the GA, Baidu and Umami loaders for cfg, each inside its own
// failure boundary.
func LoadAll(inj Injector, cfg site.Config, hostname string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	var errs error
	errs = multierr.Append(errs, guard(logger, "google_analytics", func() error {
		return LoadGA(inj, cfg.GA)
	}))
	errs = multierr.Append(errs, guard(logger, "baidu", func() error {
		return LoadBaidu(inj, cfg.Baidu)
	}))
	errs = multierr.Append(errs, guard(logger, "umami", func() error {
		return LoadUmami(inj, cfg.Umami, cfg.UmamiURL, hostname)
	}))
	return errs
}

func guard(logger *zap.Logger, vendor string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s loader panicked: %v", vendor, rec)
		}
		if err != nil {
			logger.Warn("failed to load analytics vendor", zap.String("vendor", vendor), zap.Error(err))
		}
	}()
	return fn()
}
