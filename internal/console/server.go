package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keydeck/keydeck/internal/audit"
	"github.com/keydeck/keydeck/internal/backend"
	"github.com/keydeck/keydeck/internal/config"
	"github.com/keydeck/keydeck/internal/metrics"
	"github.com/keydeck/keydeck/internal/session"
)

// Deps are the shared services a Server uses. Actions and Metrics may be nil.
type Deps struct {
	Sessions session.Store
	Actions  *audit.Store
	Metrics  *metrics.Metrics
}

type liveSession struct {
	c       *Controller
	created time.Time
}

// Server serves the keydeck console.
type Server struct {
	cfg      *config.Config
	sessions session.Store
	actions  *audit.Store
	metrics  *metrics.Metrics
	limiter  *LoginLimiter
	logger   *slog.Logger
	mux      *http.ServeMux
	settings atomic.Pointer[Settings]

	mu   sync.Mutex
	live map[string]*liveSession

	srv *http.Server
}

// NewServer creates a console server. Sessions defaults to an in-memory store.
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Sessions == nil {
		deps.Sessions = session.NewMemoryStore(cfg.SessionTTL())
	}
	s := &Server{
		cfg:      cfg,
		sessions: deps.Sessions,
		actions:  deps.Actions,
		metrics:  deps.Metrics,
		limiter:  NewLoginLimiter(loginMaxFailures, loginWindow, loginLockout),
		logger:   logger,
		mux:      http.NewServeMux(),
		live:     make(map[string]*liveSession),
	}
	s.SetUI(cfg.UI)
	s.routes()
	return s
}

// SetUI swaps the presentation settings. Running sessions see the change on
// their next render.
func (s *Server) SetUI(ui config.UIConfig) {
	st := Settings{
		ToastMillis:  ui.ToastMillis,
		HistoryLimit: ui.HistoryLimit,
		ChartWidth:   ui.ChartWidth,
		ChartHeight:  ui.ChartHeight,
	}
	s.settings.Store(&st)
}

func (s *Server) currentSettings() Settings {
	return *s.settings.Load()
}

// Handler returns the console HTTP handler with session guard and middleware applied.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.requireSession(s.mux)
	h = securityHeaders(h)
	h = accessLog(s.logger)(h)
	h = recovery(s.logger)(h)
	h = requestID(h)
	return otelhttp.NewHandler(h, "keydeck.console")
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /login", s.handleLoginPage)
	s.mux.HandleFunc("POST /login", s.handleLoginSubmit)
	s.mux.HandleFunc("POST /logout", s.handleLogout)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.cfg.Telemetry.Metrics && s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /console/{page}", s.handlePage)
	s.mux.HandleFunc("GET /console/page/{page}", s.handleFragment)
	s.mux.HandleFunc("POST /console/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /console/status", s.handleStatus)
	s.mux.HandleFunc("GET /console/charts/{name}", s.handleChart)

	// HTMX loaders
	s.mux.HandleFunc("GET /console/dashboard/data", s.handleDashboardData)
	s.mux.HandleFunc("GET /console/keys/rows", s.handleKeyRows)
	s.mux.HandleFunc("GET /console/models/rows", s.handleModelRows)
	s.mux.HandleFunc("GET /console/stats/data", s.handleStatsData)
	s.mux.HandleFunc("GET /console/chat/data", s.handleChatData)
	s.mux.HandleFunc("GET /console/chat/models", s.handleChatModels)
	s.mux.HandleFunc("GET /console/chat/history", s.handleChatHistory)
	s.mux.HandleFunc("GET /console/chat/history/{id}", s.handleChatRecord)

	// Keys
	s.mux.HandleFunc("GET /console/keys/new", s.handleKeyNew)
	s.mux.HandleFunc("GET /console/keys/{id}/edit", s.handleKeyEdit)
	s.mux.HandleFunc("POST /console/keys", s.handleKeyCreate)
	s.mux.HandleFunc("PUT /console/keys/{id}", s.handleKeyUpdate)
	s.mux.HandleFunc("DELETE /console/keys/{id}", s.handleKeyDelete)
	s.mux.HandleFunc("POST /console/keys/{id}/test", s.handleKeyTest)

	// Models
	s.mux.HandleFunc("GET /console/models/new", s.handleModelNew)
	s.mux.HandleFunc("GET /console/models/{name}/edit", s.handleModelEdit)
	s.mux.HandleFunc("POST /console/models", s.handleModelCreate)
	s.mux.HandleFunc("PUT /console/models/{name}", s.handleModelUpdate)
	s.mux.HandleFunc("DELETE /console/models/{name}", s.handleModelDelete)
	s.mux.HandleFunc("POST /console/models/refresh", s.handleModelsRefresh)

	// Chat
	s.mux.HandleFunc("POST /console/chat", s.handleChatSend)
	s.mux.HandleFunc("POST /console/chat/reply", s.handleChatReply)
	s.mux.HandleFunc("POST /console/chat/models/refresh", s.handleChatModelsRefresh)
	s.mux.HandleFunc("POST /console/chat/clear", s.handleChatClear)
}

func (s *Server) newClient() (*backend.Client, error) {
	opts := []backend.Option{backend.WithTimeout(s.cfg.BackendTimeout())}
	if s.metrics != nil {
		opts = append(opts, backend.WithObserver(s.metrics))
	}
	return backend.NewClient(s.cfg.Backend.URL, opts...)
}

func (s *Server) newController(token string, api Backend, page Page) *Controller {
	opts := Options{
		Session:  token,
		Backend:  api,
		Page:     page,
		Settings: s.currentSettings,
		Logger:   s.logger.With("session", shortToken(token)),
	}
	if s.actions != nil {
		opts.Actions = s.actions
	}
	if s.metrics != nil {
		opts.Observer = s.metrics
	}
	return NewController(opts)
}

func shortToken(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}

// controller returns the live controller for token, rebuilding it from the
// session store after a restart. It returns (nil, nil) for an unknown token.
func (s *Server) controller(ctx context.Context, token string) (*Controller, error) {
	if token == "" {
		return nil, nil
	}
	s.mu.Lock()
	ls, ok := s.live[token]
	s.mu.Unlock()
	if ok {
		return ls.c, nil
	}

	rec, err := s.sessions.Load(ctx, token)
	if err != nil || rec == nil {
		return nil, err
	}
	client, err := s.newClient()
	if err != nil {
		return nil, fmt.Errorf("creating backend client: %w", err)
	}
	client.SetCookies(rec.HTTPCookies())
	page, err := ParsePage(rec.Page)
	if err != nil {
		page = PageDashboard
	}
	c := s.newController(token, client, page)

	s.mu.Lock()
	if existing, ok := s.live[token]; ok {
		s.mu.Unlock()
		return existing.c, nil
	}
	s.live[token] = &liveSession{c: c, created: rec.CreatedAt}
	s.mu.Unlock()
	s.logger.Info("session restored", "page", page)
	return c, nil
}

// persist saves the controller's cookies and page to the session store.
func (s *Server) persist(ctx context.Context, c *Controller) {
	s.mu.Lock()
	created := time.Now()
	if ls, ok := s.live[c.Session()]; ok {
		created = ls.created
	}
	s.mu.Unlock()

	rec := &session.Record{
		Token:     c.Session(),
		Cookies:   session.FromHTTPCookies(c.Cookies()),
		Page:      string(c.Page()),
		CreatedAt: created,
	}
	if err := s.sessions.Save(ctx, rec); err != nil {
		s.logger.Error("session save failed", "error", err)
	}
}

// drop forgets a session everywhere and releases its charts.
func (s *Server) drop(ctx context.Context, token string) {
	s.mu.Lock()
	ls, ok := s.live[token]
	delete(s.live, token)
	s.mu.Unlock()
	if ok {
		ls.c.Close()
	}
	if err := s.sessions.Delete(ctx, token); err != nil {
		s.logger.Warn("session delete failed", "error", err)
	}
	s.updateSessionGauge(ctx)
}

func (s *Server) updateSessionGauge(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	n, err := s.sessions.Count(ctx)
	if err != nil {
		return
	}
	s.metrics.SetSessions(n)
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Session.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(s.cfg.SessionTTL().Seconds()),
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Session.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1, // delete cookie
	})
}

// unauthorized handles a backend 401: the session is dropped and the browser
// is sent to the login page.
func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request, c *Controller) {
	s.logger.Info("backend session expired", "path", r.URL.Path)
	s.drop(r.Context(), c.Session())
	s.clearSessionCookie(w)
	redirectLogin(w, r)
}

// Start binds the configured port, trying the next ten ports if it is busy,
// and serves until Shutdown.
func (s *Server) Start() error {
	bind := s.cfg.Server.Bind
	if bind == "" {
		bind = "127.0.0.1"
	}
	ln, actualPort, err := listenAutoPort(bind, s.cfg.Server.Port, s.logger)
	if err != nil {
		return fmt.Errorf("binding port: %w", err)
	}
	s.cfg.Server.Port = actualPort
	s.srv = &http.Server{
		Handler:        s.Handler(),
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   s.cfg.BackendTimeout() + 15*time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	s.logger.Info("keydeck console starting",
		"addr", ln.Addr().String(),
		"backend", s.cfg.Backend.URL,
		"session_store", s.cfg.Session.Store,
	)
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server and releases every live session's charts.
// The session and action stores are owned by the caller.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	var err error
	if s.srv != nil {
		err = s.srv.Shutdown(ctx)
	}
	s.mu.Lock()
	for _, ls := range s.live {
		ls.c.Close()
	}
	s.live = make(map[string]*liveSession)
	s.mu.Unlock()
	return err
}

// listenAutoPort tries the configured port; if busy, scans up to 10 higher ports.
func listenAutoPort(bind string, port int, logger *slog.Logger) (net.Listener, int, error) {
	addr := net.JoinHostPort(bind, fmt.Sprint(port))
	ln, err := net.Listen("tcp", addr)
	if err == nil {
		// When port is 0, the OS assigns a random port
		actual := ln.Addr().(*net.TCPAddr).Port
		return ln, actual, nil
	}
	if !isAddrInUse(err) {
		return nil, 0, err
	}

	logger.Warn("port in use, searching for available port", "port", port)
	for offset := 1; offset <= 10; offset++ {
		tryPort := port + offset
		ln, err = net.Listen("tcp", net.JoinHostPort(bind, fmt.Sprint(tryPort)))
		if err == nil {
			logger.Info("using alternative port", "original", port, "actual", tryPort)
			return ln, tryPort, nil
		}
	}
	return nil, 0, fmt.Errorf("port %d and next 10 ports are all in use", port)
}

func isAddrInUse(err error) bool {
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, syscall.EADDRINUSE)
	}
	return false
}
