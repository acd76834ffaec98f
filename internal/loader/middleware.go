package loader

import (
	"bytes"
	"mime"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// Middleware rewrites successful text/html responses from next so that they
// carry the analytics scripts for the request host. Other responses, HEAD
// requests and empty bodies pass through untouched.
func (l *Loader) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		iw := &injectingWriter{ResponseWriter: w, passthrough: r.Method == http.MethodHead}
		next.ServeHTTP(iw, r)

		if !iw.buffering {
			return
		}
		if iw.buf.Len() == 0 {
			w.WriteHeader(iw.status)
			return
		}

		body, err := l.InjectHTML(iw.buf.Bytes(), r.Host)
		if err != nil {
			l.logger.Warn("analytics injection incomplete",
				zap.String("host", r.Host),
				zap.String("path", r.URL.Path),
				zap.Error(err),
			)
		}

		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(iw.status)
		_, _ = w.Write(body)
	})
}

// injectingWriter decides on the first header write whether to buffer the
// body for rewriting or stream it straight through.
type injectingWriter struct {
	http.ResponseWriter
	passthrough bool
	status      int
	wroteHeader bool
	buffering   bool
	buf         bytes.Buffer
}

func (w *injectingWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = status

	h := w.Header()
	if !w.passthrough && status == http.StatusOK && isHTML(h.Get("Content-Type")) && h.Get("Content-Encoding") == "" {
		w.buffering = true
		h.Del("Content-Length")
		return
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *injectingWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", http.DetectContentType(p))
		}
		w.WriteHeader(http.StatusOK)
	}
	if w.buffering {
		return w.buf.Write(p)
	}
	return w.ResponseWriter.Write(p)
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "text/html"
}
