// Package loader injects vendor bootstrap scripts into HTML documents. Each
// vendor loader talks to an Injector, so the same logic drives a parsed
// document, a fragment collector, or a test double.
package loader
