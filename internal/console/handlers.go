package console

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/keydeck/keydeck/internal/audit"
	"github.com/keydeck/keydeck/internal/backend"
	"github.com/keydeck/keydeck/internal/session"
)

var keyStatuses = []string{backend.StatusActive, backend.StatusInactive, backend.StatusError}

func (s *Server) render(w http.ResponseWriter, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		s.logger.Error("render failed", "template", tmpl.Name(), "error", err)
	}
}

// feedback sets the HX-Trigger header for fb and counts its toast.
func (s *Server) feedback(w http.ResponseWriter, fb Feedback) {
	fb.apply(w)
	if fb.Toast != nil {
		s.metrics.Toast(fb.Toast.Level)
	}
}

// loaderError mirrors an inline loader error as a danger toast.
func (s *Server) loaderError(w http.ResponseWriter, msg string) {
	if msg != "" {
		s.feedback(w, Feedback{Toast: danger(msg)})
	}
}

// fail handles an error returned by the controller. ErrUnauthorized drops the
// session; anything else is a 500 without detail.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, c *Controller, err error) {
	if errors.Is(err, backend.ErrUnauthorized) {
		s.unauthorized(w, r, c)
		return
	}
	s.logger.Error("console request failed", "path", r.URL.Path, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

// done finishes an action that renders nothing but feedback.
func (s *Server) done(w http.ResponseWriter, fb Feedback) {
	s.feedback(w, fb)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) record(token, action, target, outcome, msg string, latency time.Duration) {
	if s.actions != nil {
		s.actions.Record(token, action, target, outcome, msg, latency)
	}
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, loginTmpl, map[string]any{"Backend": s.cfg.Backend.URL})
}

func (s *Server) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	loginError := func(status int, msg string) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_ = loginTmpl.Execute(w, map[string]any{"Error": msg, "Backend": s.cfg.Backend.URL})
	}

	// Check rate limit before processing
	allowed, retryAfter := s.limiter.Check(ip)
	if !allowed {
		s.logger.Warn("login rate-limited",
			"ip", ip,
			"retry_after", retryAfter.Round(time.Second).String(),
		)
		s.record("", "login", ip, audit.OutcomeRejected, "rate limited", 0)
		loginError(http.StatusTooManyRequests, fmt.Sprintf("Too many failed attempts. Try again in %d minutes.", int(retryAfter.Minutes())+1))
		return
	}

	password := r.FormValue("password")
	if strings.TrimSpace(password) == "" {
		loginError(http.StatusOK, "Please enter the password")
		return
	}

	client, err := s.newClient()
	if err != nil {
		s.logger.Error("backend client", "error", err)
		loginError(http.StatusInternalServerError, "Backend is misconfigured")
		return
	}

	start := time.Now()
	err = client.Login(r.Context(), password)
	switch {
	case errors.Is(err, backend.ErrInvalidPassword):
		lockout := s.limiter.RecordFailure(ip)
		if lockout > 0 {
			s.logger.Warn("login lockout triggered",
				"ip", ip,
				"lockout_duration", lockout.String(),
			)
		} else {
			s.logger.Info("login failed", "ip", ip)
		}
		s.record("", "login", ip, audit.OutcomeFailed, "invalid password", time.Since(start))
		loginError(http.StatusOK, "Invalid password")
		return
	case err != nil:
		s.logger.Warn("login request failed", "ip", ip, "error", err)
		s.record("", "login", ip, audit.OutcomeFailed, backend.ErrorMessage(err), time.Since(start))
		loginError(http.StatusBadGateway, "Login failed: "+backend.ErrorMessage(err))
		return
	}

	s.limiter.RecordSuccess(ip)
	token := session.NewToken()
	c := s.newController(token, client, PageDashboard)
	s.mu.Lock()
	s.live[token] = &liveSession{c: c, created: time.Now()}
	s.mu.Unlock()
	s.persist(r.Context(), c)
	s.updateSessionGauge(r.Context())
	s.record(token, "login", ip, audit.OutcomeOK, "", time.Since(start))
	s.logger.Info("login success", "ip", ip)

	s.setSessionCookie(w, token)
	http.Redirect(w, r, "/console/"+string(PageDashboard), http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(s.cfg.Session.CookieName); err == nil {
		if c, _ := s.controller(r.Context(), cookie.Value); c != nil {
			c.Logout(r.Context())
		}
		s.drop(r.Context(), cookie.Value)
	}
	s.clearSessionCookie(w)
	s.logger.Info("logout", "ip", clientIP(r))
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r.Context())
	http.Redirect(w, r, "/console/"+string(c.Page()), http.StatusFound)
}

func (s *Server) pageData(c *Controller, p Page, oob bool) map[string]any {
	return map[string]any{
		"Active":       string(p),
		"Nav":          Nav(p),
		"OOB":          oob,
		"Settings":     c.Settings(),
		"KeyColumns":   KeyColumns,
		"ModelColumns": ModelColumns,
		"Periods":      backend.Periods,
		"Transcript":   c.Transcript(),
	}
}

// handlePage renders a full page after probing the backend session.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r.Context())
	p, _, err := c.Navigate(r.PathValue("page"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := c.CheckSession(r.Context()); err != nil {
		s.fail(w, r, c, err)
		return
	}
	s.persist(r.Context(), c)
	s.render(w, pageTmpl, s.pageData(c, p, false))
}

// handleFragment swaps the page container on navigation. Navigating to the
// current page acts as a refresh.
func (s *Server) handleFragment(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r.Context())
	p, same, err := c.Navigate(r.PathValue("page"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	s.persist(r.Context(), c)
	if same {
		_, fb := c.Refresh()
		s.feedback(w, fb)
	}
	s.render(w, fragmentTmpl, s.pageData(c, p, true))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r.Context())
	p, fb := c.Refresh()
	s.feedback(w, fb)
	s.render(w, fragmentTmpl, s.pageData(c, p, true))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r.Context())
	s.render(w, statusTmpl, c.CheckServiceStatus(r.Context()))
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r.Context())
	svg, ok := c.ChartSVG(r.PathValue("name"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "private, max-age=300")
	_, _ = w.Write(svg)
}

func (s *Server) handleDashboardData(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r.Context())
	v, err := c.LoadDashboard(r.Context())
	if err != nil {
		s.fail(w, r, c, err)
		return
	}
	s.loaderError(w, v.Err)
	s.render(w, dashboardDataTmpl, map[string]any{"V": v, "Cols": RecentColumns})
}

func (s *Server) handleKeyRows(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r.Context())
	v, err := c.LoadKeys(r.Context())
	if err != nil {
		s.fail(w, r, c, err)
		return
	}
	s.loaderError(w, v.Err)
	s.render(w, keyRowsTmpl, map[string]any{"V": v, "Cols": KeyColumns})
}

func (s *Server) handleModelRows(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r.Context())
	v, err := c.LoadModels(r.Context())
	if err != nil {
		s.fail(w, r, c, err)
		return
	}
	s.loaderError(w, v.Err)
	s.render(w, modelRowsTmpl, map[string]any{"V": v, "Cols": ModelColumns})
}

func (s *Server) handleStatsData(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r.Context())
	v, err := c.LoadStats(r.Context(), r.URL.Query().Get("period"))
	if err != nil {
		s.fail(w, r, c, err)
		return
	}
	if v.Usage.Err != "" {
		s.loaderError(w, v.Usage.Err)
	} else {
		s.loaderError(w, v.Hourly.Err)
	}
	s.render(w, statsTmpl, map[string]any{"V": v})
}

func (s *Server) handleChatData(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r.Context())
	v, err := c.LoadChat(r.Context(), r.URL.Query().Get("model"))
	if err != nil {
		s.fail(w, r, c, err)
		return
	}
	s.render(w, chatDataTmpl, map[string]any{"V": v})
}

func (s *Server) handleChatModels(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r.Context())
	v, err := c.LoadChatModels(r.Context(), r.URL.Query().Get("model"))
	if err != nil {
		s.fail(w, r, c, err)
		return
	}
	s.loaderError(w, v.Err)
	s.render(w, chatModelsTmpl, v)
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r.Context())
	v, err := c.LoadChatHistory(r.Context())
	if err != nil {
		s.fail(w, r, c, err)
		return
	}
	s.render(w, chatHistoryTmpl, v)
}

func (s *Server) handleChatRecord(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r.Context())
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	s.render(w, transcriptTmpl, c.ShowChatHistory(id))
}

// handleChatSend renders the user bubble and a pending bubble that posts to
// /console/chat/reply as soon as it is swapped in.
func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r.Context())
	pm, fb := c.BeginMessage(r.FormValue("model"), r.FormValue("message"))
	if pm == nil {
		w.Header().Set("HX-Reswap", "none")
		s.done(w, fb)
		return
	}
	s.render(w, bubblesTmpl, []Bubble{pm.User, pm.Pending})
}

func (s *Server) handleChatReply(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r.Context())
	turn, err := c.CompleteMessage(r.Context(), r.FormValue("id"))
	if errors.Is(err, ErrUnknownMessage) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.fail(w, r, c, err)
		return
	}
	s.feedback(w, Feedback{Reload: []string{reloadHistory}})
	s.render(w, bubblesTmpl, []Bubble{turn.Reply})
}

func (s *Server) handleChatModelsRefresh(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r.Context())
	v, fb, err := c.RefreshChatModels(r.Context(), r.FormValue("model"))
	if err != nil {
		s.fail(w, r, c, err)
		return
	}
	if v == nil {
		w.Header().Set("HX-Reswap", "none")
		s.done(w, fb)
		return
	}
	s.feedback(w, fb)
	s.render(w, chatModelsTmpl, v)
}

func (s *Server) handleChatClear(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r.Context())
	c.ClearTranscript()
	w.WriteHeader(http.StatusOK)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func keyForm(r *http.Request) KeyForm {
	return KeyForm{
		Name:   r.FormValue("name"),
		Value:  r.FormValue("key_value"),
		Status: r.FormValue("status"),
	}
}

func modelForm(r *http.Request) ModelForm {
	return ModelForm{
		Name:         r.FormValue("model_name"),
		Description:  r.FormValue("description"),
		Capabilities: r.FormValue("capabilities"),
	}
}

func confirmed(r *http.Request) bool {
	return r.FormValue("confirm") == "yes"
}

func (s *Server) handleKeyNew(w http.ResponseWriter, r *http.Request) {
	s.render(w, keyFormTmpl, map[string]any{
		"F":        KeyForm{Status: backend.StatusActive},
		"Statuses": keyStatuses,
	})
}

func (s *Server) handleKeyEdit(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r.Context())
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid key id", http.StatusBadRequest)
		return
	}
	form, fb, err := c.EditKey(r.Context(), id)
	if err != nil {
		s.fail(w, r, c, err)
		return
	}
	if form == nil {
		w.Header().Set("HX-Reswap", "none")
		s.done(w, fb)
		return
	}
	s.render(w, keyFormTmpl, map[string]any{"F": form, "Edit": true, "Statuses": keyStatuses})
}

func (s *Server) handleKeyCreate(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r.Context())
	fb, err := c.SaveKey(r.Context(), keyForm(r))
	if err != nil {
		s.fail(w, r, c, err)
		return
	}
	s.done(w, fb)
}

func (s *Server) handleKeyUpdate(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r.Context())
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid key id", http.StatusBadRequest)
		return
	}
	form := keyForm(r)
	form.ID = id
	fb, err := c.UpdateKey(r.Context(), form)
	if err != nil {
		s.fail(w, r, c, err)
		return
	}
	s.done(w, fb)
}

func (s *Server) handleKeyDelete(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r.Context())
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid key id", http.StatusBadRequest)
		return
	}
	fb, err := c.DeleteKey(r.Context(), id, confirmed(r))
	if err != nil {
		s.fail(w, r, c, err)
		return
	}
	s.done(w, fb)
}

func (s *Server) handleKeyTest(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r.Context())
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid key id", http.StatusBadRequest)
		return
	}
	fb, err := c.TestKey(r.Context(), id)
	if err != nil {
		s.fail(w, r, c, err)
		return
	}
	s.done(w, fb)
}

func (s *Server) handleModelNew(w http.ResponseWriter, r *http.Request) {
	s.render(w, modelFormTmpl, map[string]any{"F": ModelForm{}})
}

func (s *Server) handleModelEdit(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r.Context())
	form, fb, err := c.EditModel(r.Context(), r.PathValue("name"))
	if err != nil {
		s.fail(w, r, c, err)
		return
	}
	if form == nil {
		w.Header().Set("HX-Reswap", "none")
		s.done(w, fb)
		return
	}
	s.render(w, modelFormTmpl, map[string]any{"F": form, "Edit": true})
}

func (s *Server) handleModelCreate(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r.Context())
	fb, err := c.SaveModel(r.Context(), modelForm(r))
	if err != nil {
		s.fail(w, r, c, err)
		return
	}
	s.done(w, fb)
}

func (s *Server) handleModelUpdate(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r.Context())
	form := modelForm(r)
	form.Name = r.PathValue("name")
	fb, err := c.UpdateModel(r.Context(), form)
	if err != nil {
		s.fail(w, r, c, err)
		return
	}
	s.done(w, fb)
}

func (s *Server) handleModelDelete(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r.Context())
	fb, err := c.DeleteModel(r.Context(), r.PathValue("name"), confirmed(r))
	if err != nil {
		s.fail(w, r, c, err)
		return
	}
	s.done(w, fb)
}

func (s *Server) handleModelsRefresh(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r.Context())
	fb, err := c.RefreshModels(r.Context())
	if err != nil {
		s.fail(w, r, c, err)
		return
	}
	s.done(w, fb)
}
