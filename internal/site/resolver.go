package site

import (
	"net"
	"strings"
)

// Resolver maps hostnames to site configuration using a fixed Table.
type Resolver struct {
	table *Table
}

// NewResolver returns a Resolver over table. A nil table resolves every
// hostname to nil.
func NewResolver(table *Table) *Resolver {
	if table == nil {
		table = &Table{exact: map[string]int{}}
	}
	return &Resolver{table: table}
}

// Table exposes the resolver's underlying table.
func (r *Resolver) Table() *Table {
	return r.table
}

// Resolve returns the configuration for hostname, or nil when analytics are
// disabled for it.
//
// Substring patterns are matched in table order and the first hit wins, so
// "a.com" listed before "b.a.com" also claims "x.b.a.com".
func (r *Resolver) Resolve(hostname string) *Config {
	host := NormalizeHost(hostname)

	if isLoopback(host) {
		if cfg, ok := r.table.lookup(LocalhostPattern); ok {
			return &cfg
		}
		return nil
	}

	if cfg, ok := r.table.lookup(host); ok {
		return &cfg
	}

	for _, entry := range r.table.entries {
		if entry.Pattern == LocalhostPattern {
			continue
		}
		if strings.Contains(host, entry.Pattern) {
			cfg := entry.Config
			return &cfg
		}
	}

	return r.table.Fallback()
}

// ShouldEnable reports whether analytics may run for hostname. Development
// hosts are excluded unless devFlag is set.
func ShouldEnable(hostname string, devFlag bool) bool {
	if IsDevelopmentHost(hostname) && !devFlag {
		return false
	}
	return true
}

// IsDevelopmentHost reports whether hostname is localhost, 127.0.0.1, or
// contains "dev.".
func IsDevelopmentHost(hostname string) bool {
	host := NormalizeHost(hostname)
	return isLoopback(host) || strings.Contains(host, "dev.")
}

// NormalizeHost lower-cases hostname and strips any port and trailing dot.
func NormalizeHost(hostname string) string {
	host := strings.ToLower(strings.TrimSpace(hostname))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
	return strings.TrimSuffix(host, ".")
}

func isLoopback(host string) bool {
	return host == LocalhostPattern || host == loopbackIPv4
}

// Source supplies the resolver currently in effect.
type Source interface {
	Resolver() *Resolver
}

// StaticSource is a Source that always returns the same resolver.
type StaticSource struct {
	R *Resolver
}

// Resolver returns s.R.
func (s StaticSource) Resolver() *Resolver {
	return s.R
}
