package loader

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/net/html"
)

const page = `<!DOCTYPE html><html><head><title>Home</title></head><body><p>hi</p></body></html>`

func TestDocumentInjectAppendsToHead(t *testing.T) {
	t.Parallel()

	doc, err := ParseDocument(strings.NewReader(page))
	if err != nil {
		t.Fatalf("ParseDocument returned error: %v", err)
	}
	if err := doc.Inject(Script{Src: "https://cdn.example/a.js", Async: true, Attrs: []Attr{{Key: "data-x", Value: "1"}}}); err != nil {
		t.Fatalf("Inject returned error: %v", err)
	}

	out, err := doc.Bytes()
	if err != nil {
		t.Fatalf("Bytes returned error: %v", err)
	}
	want := `<title>Home</title><script async="" data-x="1" src="https://cdn.example/a.js"></script></head>`
	if !strings.Contains(string(out), want) {
		t.Fatalf("expected %s in %s", want, out)
	}
}

func TestDocumentWithoutHead(t *testing.T) {
	t.Parallel()

	doc := NewDocument(&html.Node{Type: html.DocumentNode})
	if err := doc.Inject(Script{Inline: "1"}); !errors.Is(err, ErrNoHead) {
		t.Fatalf("expected ErrNoHead, got %v", err)
	}
}

func TestFragmentRender(t *testing.T) {
	t.Parallel()

	frag := &Fragment{}
	_ = frag.Inject(Script{Inline: "var a = 1 < 2;"})
	_ = frag.Inject(Script{Src: "https://x/y.js", Defer: true})

	var buf bytes.Buffer
	if err := frag.Render(&buf); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	want := "<script>var a = 1 < 2;</script>\n<script defer=\"\" src=\"https://x/y.js\"></script>\n"
	if buf.String() != want {
		t.Fatalf("unexpected fragment:\n%s", buf.String())
	}
	if len(frag.Scripts()) != 2 {
		t.Fatalf("expected 2 scripts")
	}
}

func TestInjectHTML(t *testing.T) {
	t.Parallel()

	l := newTestLoader(t)

	out, err := l.InjectHTML([]byte(page), "www.example.com:443")
	if err != nil {
		t.Fatalf("InjectHTML returned error: %v", err)
	}
	body := string(out)
	for _, want := range []string{
		"googletagmanager.com/gtag/js?id=G-TEST123",
		"hm.baidu.com/hm.js?e4216c0b920a9036",
		`data-domains="www.example.com"`,
		"window.addEventListener('error'",
		"window.addEventListener('load'",
		"window.UnifiedAnalytics = {",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in output:\n%s", want, body)
		}
	}

	untouched, err := l.InjectHTML([]byte(page), "unknown.org")
	if err != nil {
		t.Fatalf("InjectHTML returned error: %v", err)
	}
	if string(untouched) != page {
		t.Fatalf("expected body to be unchanged for unknown host")
	}
}

func TestSnippet(t *testing.T) {
	t.Parallel()

	frag, cfg, err := newTestLoader(t).Snippet("example.com")
	if err != nil {
		t.Fatalf("Snippet returned error: %v", err)
	}
	if cfg == nil || cfg.GA != fullConfig.GA {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if got := len(frag.Scripts()); got != 5 {
		t.Fatalf("expected 4 vendor scripts plus the runtime, got %d", got)
	}
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	l := newTestLoader(t)
	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Header().Set("Content-Length", "999")
			_, _ = io.WriteString(w, page)
		case "/app.js":
			w.Header().Set("Content-Type", "application/javascript")
			_, _ = io.WriteString(w, "console.log(1)")
		case "/empty":
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusOK)
		case "/missing":
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, page)
		}
	}))

	t.Run("rewrites html", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://www.example.com/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "gtag/js?id=G-TEST123") {
			t.Fatalf("expected scripts to be injected:\n%s", rec.Body.String())
		}
		if rec.Header().Get("Content-Length") == "999" {
			t.Fatalf("expected Content-Length to be recomputed")
		}
	})

	t.Run("head keeps headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodHead, "http://www.example.com/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if got := rec.Header().Get("Content-Length"); got != "999" {
			t.Fatalf("expected Content-Length from the wrapped handler, got %q", got)
		}
		if strings.Contains(rec.Body.String(), "gtag") {
			t.Fatalf("expected no rewrite for HEAD")
		}
	})

	t.Run("empty body is not rewritten", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://www.example.com/empty", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
			t.Fatalf("expected empty 200, got %d with %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("passes through non html", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://www.example.com/app.js", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Body.String() != "console.log(1)" {
			t.Fatalf("expected body to pass through, got %s", rec.Body.String())
		}
	})

	t.Run("passes through errors", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://www.example.com/missing", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound || rec.Body.String() != page {
			t.Fatalf("expected untouched 404, got %d", rec.Code)
		}
	})

	t.Run("skips development hosts", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://localhost:8080/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Body.String() != page {
			t.Fatalf("expected untouched page on localhost, got %s", rec.Body.String())
		}
	})
}
