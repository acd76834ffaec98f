package loader

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/eugenenazirov/unified-analytics/internal/site"
)

// DefaultEndpoint is the API base the page-side runtime posts to when the
// loader is not given an absolute one.
const DefaultEndpoint = "/api"

// Instrumentation describes the page-side runtime: the error and load
// listeners and the window.UnifiedAnalytics facade backed by the API.
type Instrumentation struct {
	Endpoint         string
	Host             string
	Config           site.Config
	TrackErrors      bool
	TrackPerformance bool
}

var instrumentTemplate = template.Must(template.New("instrumentation").Parse(`
(function() {
  var endpoint = '{{js .Endpoint}}';
  var host = '{{js .Host}}';
  var config = {
    ga: '{{js .Config.GA}}',
    baidu: '{{js .Config.Baidu}}',
    umami: '{{js .Config.Umami}}',
    umamiUrl: '{{js .Config.UmamiURL}}'
  };

  function clientId() {
    try {
      var id = window.localStorage.getItem('unified_analytics_cid');
      if (!id) {
        id = Math.floor(Math.random() * 2147483647) + '.' + Math.floor(Date.now() / 1000);
        window.localStorage.setItem('unified_analytics_cid', id);
      }
      return id;
    } catch (e) {
      return '';
    }
  }

  function send(path, payload) {
    payload.host = host;
    payload.clientId = clientId();
    try {
      return fetch(endpoint + path, {
        method: 'POST',
        headers: {'Content-Type': 'application/json'},
        body: JSON.stringify(payload),
        keepalive: true
      }).catch(function() {});
    } catch (e) {}
  }
{{- if .TrackErrors}}

  window.addEventListener('error', function(event) {
    send('/errors', {
      message: event.message || '',
      source: event.filename || '',
      line: event.lineno || 0,
      column: event.colno || 0,
      stack: event.error && event.error.stack ? String(event.error.stack) : '',
      url: window.location.href
    });
  });
{{- end}}
{{- if .TrackPerformance}}

  window.addEventListener('load', function() {
    setTimeout(function() {
      var timing = window.performance && window.performance.timing;
      if (!timing || !timing.loadEventEnd) {
        return;
      }
      send('/timing', {navigationStart: timing.navigationStart, loadEventEnd: timing.loadEventEnd});
    }, 0);
  });
{{- end}}

  window.UnifiedAnalytics = {
    track: function(name, params) {
      return send('/track', {name: name, params: params || {}});
    },
    pageview: function(path) {
      return send('/pageview', {path: path || window.location.pathname});
    },
    getConfig: function() {
      return config;
    }
  };
})();
`))

// LoadInstrumentation inserts the page-side runtime. It always installs the
// facade; the listeners follow TrackErrors and TrackPerformance.
func LoadInstrumentation(inj Injector, in Instrumentation) error {
	if in.Endpoint == "" {
		in.Endpoint = DefaultEndpoint
	}
	in.Endpoint = strings.TrimRight(in.Endpoint, "/")

	var sb strings.Builder
	if err := instrumentTemplate.Execute(&sb, in); err != nil {
		return fmt.Errorf("render instrumentation: %w", err)
	}
	if err := inj.Inject(Script{Inline: sb.String()}); err != nil {
		return fmt.Errorf("inject instrumentation: %w", err)
	}
	return nil
}
