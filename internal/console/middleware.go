package console

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const (
	requestKey    contextKey = "request"
	controllerKey contextKey = "controller"
)

// contentPolicy lets the pages load htmx from unpkg and inline chart SVGs.
const contentPolicy = "default-src 'self'; script-src 'self' 'unsafe-inline' https://unpkg.com; " +
	"style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self'; frame-ancestors 'none'"

// requestInfo travels with a request so the access log can report what the
// inner handlers resolved.
type requestInfo struct {
	id      string
	session string
}

func infoFrom(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestKey).(*requestInfo)
	return info
}

func requestIDFrom(ctx context.Context) string {
	if info := infoFrom(ctx); info != nil {
		return info.id
	}
	return ""
}

func isHTMX(r *http.Request) bool { return r.Header.Get("HX-Request") == "true" }

// requestID tags each request. A well-formed X-Request-ID from a fronting
// proxy is kept; anything else is replaced.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestKey, &requestInfo{id: id})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// securityHeaders sets the console's response headers. Console pages and
// fragments carry backend data and are never cached.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", contentPolicy)
		if r.URL.Path != "/health" && r.URL.Path != "/metrics" {
			h.Set("Cache-Control", "no-store")
		}
		next.ServeHTTP(w, r)
	})
}

// accessLog writes one line per request. HTMX GETs (loaders, polling, charts)
// go to debug, server errors to warn.
func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			level := slog.LevelInfo
			switch {
			case rec.status >= 500:
				level = slog.LevelWarn
			case isHTMX(r) && r.Method == http.MethodGet:
				level = slog.LevelDebug
			}
			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"bytes", rec.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if info := infoFrom(r.Context()); info != nil {
				attrs = append(attrs, "request_id", info.id)
				if info.session != "" {
					attrs = append(attrs, "session", info.session)
				}
			}
			if target := r.Header.Get("HX-Target"); target != "" {
				attrs = append(attrs, "hx_target", target)
			}
			logger.Log(r.Context(), level, "request", attrs...)
		})
	}
}

// recovery turns a handler panic into a 500. HTMX callers get a danger toast
// and no swap so the page stays usable.
func recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				err := recover()
				if err == nil {
					return
				}
				id := requestIDFrom(r.Context())
				logger.Error("panic recovered", "error", err, "path", r.URL.Path, "request_id", id)
				if isHTMX(r) {
					msg := "Internal error"
					if id != "" {
						msg = fmt.Sprintf("Internal error (request %s)", id)
					}
					Feedback{Toast: danger(msg)}.apply(w)
					w.Header().Set("HX-Reswap", "none")
				}
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// requireSession resolves the console session for every route except login,
// health and metrics, redirecting to the login page when there is none.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login", "/health", "/metrics":
			next.ServeHTTP(w, r)
			return
		}

		var c *Controller
		if cookie, err := r.Cookie(s.cfg.Session.CookieName); err == nil {
			c, err = s.controller(r.Context(), cookie.Value)
			if err != nil {
				s.logger.Error("session lookup failed", "error", err, "request_id", requestIDFrom(r.Context()))
			}
		}
		if c == nil {
			redirectLogin(w, r)
			return
		}
		if info := infoFrom(r.Context()); info != nil {
			info.session = shortToken(c.Session())
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), controllerKey, c)))
	})
}

func controllerFrom(ctx context.Context) *Controller {
	c, _ := ctx.Value(controllerKey).(*Controller)
	return c
}

// redirectLogin sends the browser to the login page: HX-Redirect for HTMX
// requests, a 302 otherwise. Nothing else is written.
func redirectLogin(w http.ResponseWriter, r *http.Request) {
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", "/login")
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *responseRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap returns the underlying ResponseWriter for http.NewResponseController.
func (w *responseRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
