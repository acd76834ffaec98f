package tracker

import (
	"context"
	"time"

	"github.com/eugenenazirov/unified-analytics/internal/site"
)

// Hit is a single data point addressed to the vendors.
type Hit struct {
	Hostname  string
	Config    site.Config
	ClientID  string
	UserAgent string
	Name      string
	Params    map[string]any
	Path      string
	URL       string
	Timestamp time.Time
}

// Vendor is the capability exposed by an analytics provider. Each call
// reports whether it actually reached the vendor.
type Vendor interface {
	Name() string
	EmitEvent(ctx context.Context, hit Hit) bool
	EmitPageview(ctx context.Context, hit Hit) bool
}

// Scheduler runs a continuation after the current work has drained.
type Scheduler interface {
	Defer(fn func())
}

// SchedulerFunc adapts a function to Scheduler.
type SchedulerFunc func(fn func())

// Defer calls f(fn).
func (f SchedulerFunc) Defer(fn func()) {
	f(fn)
}

// GoScheduler runs each continuation on its own goroutine.
var GoScheduler Scheduler = SchedulerFunc(func(fn func()) {
	go fn()
})
