package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/unified-analytics/internal/application"
	"github.com/eugenenazirov/unified-analytics/internal/config"
	"github.com/eugenenazirov/unified-analytics/internal/logging"
)

var signalNotify = signal.Notify

func main() {
	kingpinApp := kingpin.New("unified-analytics", "Unified Analytics - injects GA, Baidu Tongji and Umami trackers by hostname and forwards events to them")
	configFile := kingpinApp.Flag("config", "Path to YAML configuration file").String()
	port := kingpinApp.Flag("port", "HTTP port exposed by the service").String()
	siteDir := kingpinApp.Flag("site-dir", "Directory of static pages served with analytics injected").String()
	var devSet, debugSet bool
	enableInDev := kingpinApp.Flag("enable-in-development", "Enable analytics on localhost and dev. hosts").IsSetByUser(&devSet).Bool()
	debug := kingpinApp.Flag("debug", "Log injection and dispatch details").IsSetByUser(&debugSet).Bool()
	rateLimitRPSFlag := kingpinApp.Flag("rate-limit-rps", "Requests per second allowed per client (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := kingpinApp.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()

	kingpin.MustParse(kingpinApp.Parse(os.Args[1:]))

	overrides := &config.CLIOverrides{
		ConfigFile: *configFile,
	}

	if *port != "" {
		overrides.Port = port
	}

	if *siteDir != "" {
		overrides.SiteDir = siteDir
	}

	if devSet {
		overrides.EnableInDevelopment = enableInDev
	}

	if debugSet {
		overrides.Debug = debug
	}

	if *rateLimitRPSFlag >= 0 {
		overrides.RateLimitRPS = rateLimitRPSFlag
	}

	if *rateLimitBurstFlag >= 0 {
		overrides.RateLimitBurst = rateLimitBurstFlag
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	app, err := application.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	stopReload := watchReload(app, overrides, logger)
	defer stopReload()

	shutdown(app.Server(), cfg.ShutdownGracePeriod, logger)
}

type reloader interface {
	Reload(cfg config.Config) error
}

// watchReload re-reads the configuration on SIGHUP and swaps in the new site
// table. A configuration that fails to load leaves the current table active.
func watchReload(app reloader, overrides *config.CLIOverrides, logger *zap.Logger) func() {
	hup := make(chan os.Signal, 1)
	signalNotify(hup, syscall.SIGHUP)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case <-hup:
				cfg, err := config.Load(overrides)
				if err != nil {
					logger.Error("reload failed", zap.Error(err))
					continue
				}
				if err := app.Reload(cfg); err != nil {
					logger.Error("reload failed", zap.Error(err))
				}
			}
		}
	}()

	return func() {
		signal.Stop(hup)
		close(done)
	}
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
