package application

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/unified-analytics/internal/api"
	"github.com/eugenenazirov/unified-analytics/internal/config"
	"github.com/eugenenazirov/unified-analytics/internal/loader"
	"github.com/eugenenazirov/unified-analytics/internal/site"
	"github.com/eugenenazirov/unified-analytics/internal/storage"
	"github.com/eugenenazirov/unified-analytics/internal/tracker"
	"github.com/eugenenazirov/unified-analytics/internal/vendors"
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	storage storage.Storage
	tracker *tracker.Tracker
	loader  *loader.Loader
	handler *api.Handler
	router  http.Handler
	logger  *zap.Logger
	server  *http.Server
}

// New initializes the application with all dependencies from the provided configuration.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	table, err := cfg.Table()
	if err != nil {
		return nil, fmt.Errorf("failed to build site table: %w", err)
	}
	store := storage.NewMemoryStorage(site.NewResolver(table))

	tr := tracker.New(store, trackerOptions(cfg, logger)...)
	ld := loader.New(store, logger,
		loader.WithDevelopment(cfg.EnableInDevelopment),
		loader.WithErrorTracking(cfg.TrackErrors),
		loader.WithPerformanceTracking(cfg.TrackPerformance),
		loader.WithEndpoint(publicEndpoint(cfg.PublicURL)),
	)

	handler := api.NewHandler(tr, ld, store, api.WithHandlerLogger(logger))
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	siteHandler, err := buildSiteHandler(cfg.SiteDir)
	if err != nil {
		return nil, fmt.Errorf("failed to serve site directory: %w", err)
	}

	rootHandler := BuildRootHandler(apiRouter, ld.Middleware(siteHandler))

	logger.Info("analytics configured",
		zap.Int("sites", len(table.Entries())),
		zap.String("fallback", string(cfg.FallbackMode)),
		zap.Bool("enable_in_development", cfg.EnableInDevelopment),
		zap.Bool("track_errors", cfg.TrackErrors),
		zap.Bool("track_performance", cfg.TrackPerformance),
	)

	return &App{
		storage: store,
		tracker: tr,
		loader:  ld,
		handler: handler,
		router:  apiRouter,
		logger:  logger,
		server:  NewServer(cfg, rootHandler),
	}, nil
}

// publicEndpoint is the API base injected pages post to.
func publicEndpoint(publicURL string) string {
	if publicURL == "" {
		return loader.DefaultEndpoint
	}
	return strings.TrimRight(publicURL, "/") + loader.DefaultEndpoint
}

func trackerOptions(cfg config.Config, logger *zap.Logger) []tracker.Option {
	httpClient := &http.Client{Timeout: cfg.VendorTimeout}

	opts := []tracker.Option{
		tracker.WithLogger(logger),
		tracker.WithDevelopment(cfg.EnableInDevelopment),
		tracker.WithErrorTracking(cfg.TrackErrors),
		tracker.WithPerformanceTracking(cfg.TrackPerformance),
		tracker.WithUmami(vendors.NewUmami(logger, vendors.WithHTTPClient(httpClient))),
	}

	if cfg.GAAPISecret == "" {
		logger.Info("google analytics measurement protocol disabled: no api secret configured")
		return opts
	}
	ga := vendors.NewGA(cfg.GAEndpoint, cfg.GAAPISecret, logger, vendors.WithHTTPClient(httpClient))
	return append(opts, tracker.WithGA(ga))
}

// BuildRootHandler routes API requests to apiHandler and everything else to
// siteHandler.
func BuildRootHandler(apiHandler, siteHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.Handle("/", siteHandler)
	return mux
}

func buildSiteHandler(dir string) (http.Handler, error) {
	if dir == "" {
		return http.NotFoundHandler(), nil
	}

	path := dir
	if !filepath.IsAbs(path) {
		resolved, err := resolveProjectPath(path)
		if err != nil {
			return nil, err
		}
		path = resolved
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", path)
	}
	return http.FileServer(http.Dir(path)), nil
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Reload installs the site table from cfg. Server and tracking settings are
// not reloaded.
func (a *App) Reload(cfg config.Config) error {
	table, err := cfg.Table()
	if err != nil {
		return fmt.Errorf("build site table: %w", err)
	}
	if err := a.storage.Replace(site.NewResolver(table)); err != nil {
		return err
	}
	a.logger.Info("site table reloaded", zap.Int("sites", len(table.Entries())))
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// resolveProjectPath locates a file or directory relative to the project root by walking up the directory tree.
func resolveProjectPath(relative string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, relative)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("unable to locate %s", relative)
}
