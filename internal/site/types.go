package site

import (
	"fmt"
	"net/url"
	"regexp"
)

const (
	// LocalhostPattern is the reserved pattern consulted for local hosts.
	LocalhostPattern = "localhost"
	loopbackIPv4     = "127.0.0.1"
)

var trackingIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Config holds the vendor identifiers for one site. A nil *Config means
// analytics are disabled.
type Config struct {
	GA       string `json:"ga,omitempty" yaml:"ga"`
	Baidu    string `json:"baidu,omitempty" yaml:"baidu"`
	Umami    string `json:"umami,omitempty" yaml:"umami"`
	UmamiURL string `json:"umamiUrl,omitempty" yaml:"umami_url"`
}

// Entry pairs a hostname pattern with its configuration.
type Entry struct {
	Pattern string
	Config  Config
}

// Validate checks identifiers and the Umami script URL.
func (c Config) Validate() error {
	for name, id := range map[string]string{"ga": c.GA, "baidu": c.Baidu, "umami": c.Umami} {
		if id != "" && !trackingIDPattern.MatchString(id) {
			return fmt.Errorf("%w: %s id %q contains unsupported characters", ErrInvalidConfig, name, id)
		}
	}
	if c.Umami != "" && c.UmamiURL == "" {
		return fmt.Errorf("%w: umami_url is required when umami is set", ErrInvalidConfig)
	}
	if c.UmamiURL != "" {
		u, err := url.Parse(c.UmamiURL)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: umami_url %q must be an absolute http(s) URL", ErrInvalidConfig, c.UmamiURL)
		}
	}
	return nil
}

// Empty reports whether no vendor is configured.
func (c Config) Empty() bool {
	return c.GA == "" && c.Baidu == "" && c.Umami == ""
}
