package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/unified-analytics/internal/site"
)

const (
	defaultPort           = "8080"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
)

// FallbackMode selects what unmatched hostnames resolve to.
type FallbackMode string

const (
	// FallbackNone leaves unmatched hostnames without analytics.
	FallbackNone FallbackMode = "none"
	// FallbackDefault resolves unmatched hostnames to the configured default
	// block.
	FallbackDefault FallbackMode = "default"
)

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > YAML config > Environment variables > Defaults
type Config struct {
	Port                 string
	SiteDir              string
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int

	Debug               bool
	EnableInDevelopment bool
	TrackErrors         bool
	TrackPerformance    bool

	GAEndpoint    string
	GAAPISecret   string
	VendorTimeout time.Duration

	// PublicURL is the API base injected pages post to. Empty keeps the
	// same-origin "/api".
	PublicURL string

	Sites        []site.Entry
	FallbackMode FallbackMode
	Fallback     *site.Config
}

// yamlConfig represents the YAML configuration file structure.
type yamlConfig struct {
	Port                 string        `yaml:"port"`
	SiteDir              string        `yaml:"site_dir"`
	ShutdownGracePeriod  string        `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string        `yaml:"read_header_timeout"`
	WriteTimeout         string        `yaml:"write_timeout"`
	IdleTimeout          string        `yaml:"idle_timeout"`
	EnableRequestLogging *bool         `yaml:"enable_request_logging"`
	RateLimit            yamlRateLimit `yaml:"rate_limit"`
	Debug                *bool         `yaml:"debug"`
	EnableInDevelopment  *bool         `yaml:"enable_in_development"`
	TrackErrors          *bool         `yaml:"track_errors"`
	TrackPerformance     *bool         `yaml:"track_performance"`
	GA                   yamlGA        `yaml:"google_analytics"`
	VendorTimeout        string        `yaml:"vendor_timeout"`
	PublicURL            string        `yaml:"public_url"`
	Sites                []yamlSite    `yaml:"sites"`
	Fallback             yamlFallback  `yaml:"fallback"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

type yamlGA struct {
	Endpoint  string `yaml:"endpoint"`
	APISecret string `yaml:"api_secret"`
}

type yamlSite struct {
	Pattern     string `yaml:"pattern"`
	site.Config `yaml:",inline"`
}

type yamlFallback struct {
	Mode   string       `yaml:"mode"`
	Config *site.Config `yaml:"config"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile          string
	Port                *string
	SiteDir             *string
	Debug               *bool
	EnableInDevelopment *bool
	RateLimitRPS        *float64
	RateLimitBurst      *int
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > YAML config > Environment variables > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	if err := applyEnvConfig(&cfg); err != nil {
		return Config{}, err
	}

	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := applyYAMLConfig(&cfg, yamlCfg); err != nil {
			return Config{}, fmt.Errorf("apply YAML config: %w", err)
		}
	}

	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Table builds the site table described by the configuration.
func (c Config) Table() (*site.Table, error) {
	var fallback *site.Config
	if c.FallbackMode == FallbackDefault {
		fallback = c.Fallback
	}
	return site.NewTable(c.Sites, fallback)
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Port:                 defaultPort,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
		TrackErrors:          true,
		TrackPerformance:     true,
		VendorTimeout:        5 * time.Second,
		FallbackMode:         FallbackNone,
	}
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) error {
	if yamlCfg.Port != "" {
		cfg.Port = yamlCfg.Port
	}

	if yamlCfg.SiteDir != "" {
		cfg.SiteDir = yamlCfg.SiteDir
	}

	durations := []struct {
		raw    string
		target *time.Duration
		key    string
	}{
		{yamlCfg.ShutdownGracePeriod, &cfg.ShutdownGracePeriod, "shutdown_grace_period"},
		{yamlCfg.ReadHeaderTimeout, &cfg.ReadHeaderTimeout, "read_header_timeout"},
		{yamlCfg.WriteTimeout, &cfg.WriteTimeout, "write_timeout"},
		{yamlCfg.IdleTimeout, &cfg.IdleTimeout, "idle_timeout"},
		{yamlCfg.VendorTimeout, &cfg.VendorTimeout, "vendor_timeout"},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		value, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.target = value
	}

	setBool(&cfg.EnableRequestLogging, yamlCfg.EnableRequestLogging)
	setBool(&cfg.Debug, yamlCfg.Debug)
	setBool(&cfg.EnableInDevelopment, yamlCfg.EnableInDevelopment)
	setBool(&cfg.TrackErrors, yamlCfg.TrackErrors)
	setBool(&cfg.TrackPerformance, yamlCfg.TrackPerformance)

	if yamlCfg.RateLimit.RPS != nil {
		cfg.RateLimitRPS = *yamlCfg.RateLimit.RPS
	}

	if yamlCfg.RateLimit.Burst != nil {
		cfg.RateLimitBurst = *yamlCfg.RateLimit.Burst
	}

	if yamlCfg.GA.Endpoint != "" {
		cfg.GAEndpoint = yamlCfg.GA.Endpoint
	}

	if yamlCfg.GA.APISecret != "" {
		cfg.GAAPISecret = yamlCfg.GA.APISecret
	}

	if yamlCfg.PublicURL != "" {
		cfg.PublicURL = strings.TrimSpace(yamlCfg.PublicURL)
	}

	if len(yamlCfg.Sites) > 0 {
		cfg.Sites = make([]site.Entry, 0, len(yamlCfg.Sites))
		for _, s := range yamlCfg.Sites {
			cfg.Sites = append(cfg.Sites, site.Entry{Pattern: s.Pattern, Config: s.Config})
		}
	}

	if yamlCfg.Fallback.Mode != "" {
		cfg.FallbackMode = FallbackMode(strings.ToLower(strings.TrimSpace(yamlCfg.Fallback.Mode)))
	}

	if yamlCfg.Fallback.Config != nil {
		fb := *yamlCfg.Fallback.Config
		cfg.Fallback = &fb
	}

	return nil
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) error {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.Port = port
	}

	if dir := strings.TrimSpace(os.Getenv("SITE_DIR")); dir != "" {
		cfg.SiteDir = dir
	}

	if secret := strings.TrimSpace(os.Getenv("GA_API_SECRET")); secret != "" {
		cfg.GAAPISecret = secret
	}

	if public := strings.TrimSpace(os.Getenv("ANALYTICS_PUBLIC_URL")); public != "" {
		cfg.PublicURL = public
	}

	if rps := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			cfg.RateLimitRPS = value
		}
	}

	if burst := strings.TrimSpace(os.Getenv("RATE_LIMIT_BURST")); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			cfg.RateLimitBurst = value
		}
	}

	flags := []struct {
		name   string
		target *bool
	}{
		{"ANALYTICS_DEBUG", &cfg.Debug},
		{"ANALYTICS_ENABLE_IN_DEVELOPMENT", &cfg.EnableInDevelopment},
		{"ANALYTICS_TRACK_ERRORS", &cfg.TrackErrors},
		{"ANALYTICS_TRACK_PERFORMANCE", &cfg.TrackPerformance},
	}
	for _, f := range flags {
		raw := strings.TrimSpace(os.Getenv(f.name))
		if raw == "" {
			continue
		}
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s: invalid boolean %q", f.name, raw)
		}
		*f.target = value
	}

	return nil
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}

	if overrides.SiteDir != nil && *overrides.SiteDir != "" {
		cfg.SiteDir = *overrides.SiteDir
	}

	setBool(&cfg.Debug, overrides.Debug)
	setBool(&cfg.EnableInDevelopment, overrides.EnableInDevelopment)

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.PublicURL != "" {
		u, err := url.Parse(cfg.PublicURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("public_url must be an absolute http(s) URL, got %q", cfg.PublicURL)
		}
	}
	switch cfg.FallbackMode {
	case FallbackNone:
	case FallbackDefault:
		if cfg.Fallback == nil {
			return fmt.Errorf("fallback mode %q requires a fallback config block", cfg.FallbackMode)
		}
	default:
		return fmt.Errorf("unknown fallback mode %q", cfg.FallbackMode)
	}
	if _, err := cfg.Table(); err != nil {
		return fmt.Errorf("site table: %w", err)
	}
	return nil
}

func setBool(target *bool, value *bool) {
	if value != nil {
		*target = *value
	}
}
