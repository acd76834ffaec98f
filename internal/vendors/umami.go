package vendors

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"github.com/eugenenazirov/unified-analytics/internal/tracker"
)

const umamiSendPath = "/api/send"

// Umami sends events to the Umami instance that serves the site's tracker
// script.
type Umami struct {
	client
	logger *zap.Logger
}

// NewUmami returns an Umami capability. Calls for sites without an Umami id
// are no-ops.
func NewUmami(logger *zap.Logger, opts ...Option) *Umami {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Umami{client: newClient(opts), logger: logger}
}

// Name implements tracker.Vendor.
func (u *Umami) Name() string { return "umami" }

// EmitEvent implements tracker.Vendor.
func (u *Umami) EmitEvent(ctx context.Context, hit tracker.Hit) bool {
	return u.send(ctx, hit, hit.Name, hit.Params, hit.Path)
}

// EmitPageview implements tracker.Vendor as a "pageview" event carrying the
// path.
func (u *Umami) EmitPageview(ctx context.Context, hit tracker.Hit) bool {
	return u.send(ctx, hit, "pageview", map[string]any{"url": hit.Path}, hit.Path)
}

type umamiRequest struct {
	Type    string       `json:"type"`
	Payload umamiPayload `json:"payload"`
}

type umamiPayload struct {
	Website  string         `json:"website"`
	Hostname string         `json:"hostname"`
	URL      string         `json:"url,omitempty"`
	Name     string         `json:"name,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

func (u *Umami) send(ctx context.Context, hit tracker.Hit, name string, data map[string]any, path string) bool {
	if hit.Config.Umami == "" || hit.Config.UmamiURL == "" {
		return false
	}

	endpoint, err := sendEndpoint(hit.Config.UmamiURL)
	if err != nil {
		u.logger.Debug("umami endpoint unusable", zap.String("script_url", hit.Config.UmamiURL), zap.Error(err))
		return false
	}

	req := umamiRequest{
		Type: "event",
		Payload: umamiPayload{
			Website:  hit.Config.Umami,
			Hostname: hit.Hostname,
			URL:      path,
			Name:     name,
			Data:     data,
		},
	}

	if err := u.postJSON(ctx, endpoint, hit.UserAgent, req); err != nil {
		u.logger.Debug("umami call failed",
			zap.String("event", name),
			zap.String("host", hit.Hostname),
			zap.Error(err),
		)
		return false
	}
	return true
}

// sendEndpoint derives the collection endpoint from the tracker script URL,
// e.g. https://cloud.umami.is/script.js -> https://cloud.umami.is/api/send.
func sendEndpoint(scriptURL string) (string, error) {
	u, err := url.Parse(scriptURL)
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: umamiSendPath}).String(), nil
}
