// Package tracker forwards custom events, page views, script errors and load
// timings to whichever analytics vendors are available. A missing vendor is
// skipped silently; nothing is buffered or retried.
package tracker
