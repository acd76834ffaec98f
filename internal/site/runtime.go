package site

// ReadyState mirrors the document parse state the loaders wait for.
type ReadyState string

const (
	ReadyStateLoading     ReadyState = "loading"
	ReadyStateInteractive ReadyState = "interactive"
	ReadyStateComplete    ReadyState = "complete"
)

// RuntimeContext is the read-only view of the page being instrumented.
type RuntimeContext struct {
	Hostname    string
	ReadyState  ReadyState
	Development bool
}

// NewRuntimeContext derives a RuntimeContext for hostname.
func NewRuntimeContext(hostname string, state ReadyState) RuntimeContext {
	host := NormalizeHost(hostname)
	return RuntimeContext{
		Hostname:    host,
		ReadyState:  state,
		Development: IsDevelopmentHost(host),
	}
}

// Parsed reports whether the document structure is complete enough for
// script injection.
func (rc RuntimeContext) Parsed() bool {
	return rc.ReadyState != ReadyStateLoading
}
