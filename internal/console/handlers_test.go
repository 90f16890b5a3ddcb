package console

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keydeck/keydeck/internal/config"
)

// stubBackend is an httptest server speaking the backend's JSON API.
type stubBackend struct {
	*httptest.Server

	mu           sync.Mutex
	requests     []string
	unauthorized bool
	keys         string
}

func newStubBackend(t *testing.T) *stubBackend {
	t.Helper()
	sb := &stubBackend{keys: `[]`}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"success":false,"message":"Invalid password"}`)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "backend-session", Path: "/"})
		_, _ = io.WriteString(w, `{"success":true}`)
	})
	mux.HandleFunc("POST /api/logout", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true}`)
	})
	mux.HandleFunc("GET /api/stats/overview", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true,"data":{"database_info":{"keys_count":2,"active_keys_count":1,"models_count":3,"total_usage_count":40},"model_usage":[{"model_name":"gpt-4","total_usage":40}],"key_usage":[{"id":1,"name":"primary","usage_count":40}],"recent_chats":[]}}`)
	})
	mux.HandleFunc("GET /api/keys", func(w http.ResponseWriter, r *http.Request) {
		sb.mu.Lock()
		keys := sb.keys
		sb.mu.Unlock()
		_, _ = io.WriteString(w, `{"success":true,"data":`+keys+`}`)
	})
	mux.HandleFunc("POST /api/keys", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true}`)
	})
	mux.HandleFunc("DELETE /api/keys/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true}`)
	})
	mux.HandleFunc("GET /api/models/chat", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true,"data":["gpt-4","gpt-3.5-turbo"]}`)
	})
	mux.HandleFunc("GET /api/chat/history", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true,"data":[]}`)
	})
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true,"data":{"choices":[{"index":0,"message":{"role":"assistant","content":"pong"}}],"usage":{"total_tokens":5}}}`)
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"healthy","message":"ok"}`)
	})

	sb.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sb.mu.Lock()
		sb.requests = append(sb.requests, r.Method+" "+r.URL.Path)
		unauthorized := sb.unauthorized
		sb.mu.Unlock()
		if unauthorized && r.URL.Path != "/api/login" && r.URL.Path != "/health" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"success":false,"message":"Unauthorized"}`)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(sb.Close)
	return sb
}

func (sb *stubBackend) setUnauthorized(v bool) {
	sb.mu.Lock()
	sb.unauthorized = v
	sb.mu.Unlock()
}

func (sb *stubBackend) count(req string) int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	n := 0
	for _, r := range sb.requests {
		if r == req {
			n++
		}
	}
	return n
}

func newTestServer(t *testing.T, sb *stubBackend) *Server {
	t.Helper()
	cfg := config.Defaults()
	cfg.Backend.URL = sb.URL
	cfg.Telemetry.Metrics = false
	return NewServer(cfg, Deps{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(t *testing.T, h http.Handler, method, target string, form url.Values, cookie *http.Cookie, htmx bool) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, h http.Handler) *http.Cookie {
	t.Helper()
	w := do(t, h, http.MethodPost, "/login", url.Values{"password": {"secret"}}, nil, false)
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	assert.Equal(t, "/console/dashboard", w.Header().Get("Location"))
	for _, c := range w.Result().Cookies() {
		if c.Name == "keydeck_session" {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func TestLoginPage(t *testing.T) {
	s := newTestServer(t, newStubBackend(t))
	w := do(t, s.Handler(), http.MethodGet, "/login", nil, nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `name="password"`)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestLogin_InvalidPassword(t *testing.T) {
	s := newTestServer(t, newStubBackend(t))
	w := do(t, s.Handler(), http.MethodPost, "/login", url.Values{"password": {"wrong"}}, nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid password")
	assert.Empty(t, w.Result().Cookies())
}

func TestLogin_EmptyPasswordSkipsBackend(t *testing.T) {
	sb := newStubBackend(t)
	s := newTestServer(t, sb)
	w := do(t, s.Handler(), http.MethodPost, "/login", url.Values{"password": {""}}, nil, false)
	assert.Contains(t, w.Body.String(), "Please enter the password")
	assert.Zero(t, sb.count("POST /api/login"))
}

func TestLogin_RateLimited(t *testing.T) {
	s := newTestServer(t, newStubBackend(t))
	h := s.Handler()
	for i := 0; i < loginMaxFailures; i++ {
		w := do(t, h, http.MethodPost, "/login", url.Values{"password": {"wrong"}}, nil, false)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := do(t, h, http.MethodPost, "/login", url.Values{"password": {"secret"}}, nil, false)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "Too many failed attempts")
}

func TestConsole_RequiresSession(t *testing.T) {
	s := newTestServer(t, newStubBackend(t))
	h := s.Handler()

	w := do(t, h, http.MethodGet, "/console/keys", nil, nil, false)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	w = do(t, h, http.MethodGet, "/console/keys/rows", nil, &http.Cookie{Name: "keydeck_session", Value: "forged"}, true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/login", w.Header().Get("HX-Redirect"))
	assert.Empty(t, w.Body.String())
}

func TestPage_SingleActiveView(t *testing.T) {
	s := newTestServer(t, newStubBackend(t))
	h := s.Handler()
	cookie := login(t, h)

	w := do(t, h, http.MethodGet, "/console/keys", nil, cookie, false)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, 1, strings.Count(body, `id="page"`))
	assert.Equal(t, 1, strings.Count(body, `class="active"`))
	assert.Contains(t, body, `data-page="keys"`)
	assert.Contains(t, body, `>Keys</a>`)

	w = do(t, h, http.MethodGet, "/console/page/models", nil, cookie, true)
	require.Equal(t, http.StatusOK, w.Code)
	body = w.Body.String()
	assert.Contains(t, body, `data-page="models"`)
	assert.Contains(t, body, `hx-swap-oob="true"`)
	assert.Equal(t, 1, strings.Count(body, `class="active"`))
	assert.Empty(t, w.Header().Get("HX-Trigger"))

	// Navigating to the current page refreshes it.
	w = do(t, h, http.MethodGet, "/console/page/models", nil, cookie, true)
	assert.Contains(t, w.Header().Get("HX-Trigger"), "Data refreshed")

	w = do(t, h, http.MethodGet, "/", nil, cookie, false)
	assert.Equal(t, "/console/models", w.Header().Get("Location"))
}

func TestPage_Unknown(t *testing.T) {
	s := newTestServer(t, newStubBackend(t))
	h := s.Handler()
	cookie := login(t, h)
	w := do(t, h, http.MethodGet, "/console/page/settings", nil, cookie, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestKeyRows_EmptyListSpansColumns(t *testing.T) {
	s := newTestServer(t, newStubBackend(t))
	h := s.Handler()
	cookie := login(t, h)

	w := do(t, h, http.MethodGet, "/console/keys/rows", nil, cookie, true)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, 1, strings.Count(body, "<tr>"))
	assert.Contains(t, body, `colspan="7"`)
	assert.Contains(t, body, "No keys yet")
}

func TestKeyRows_MasksValues(t *testing.T) {
	sb := newStubBackend(t)
	sb.keys = `[{"id":1,"name":"primary","key_value":"sk-abcdefghijklmnop","status":"active","usage_count":"12"}]`
	s := newTestServer(t, sb)
	h := s.Handler()
	cookie := login(t, h)

	w := do(t, h, http.MethodGet, "/console/keys/rows", nil, cookie, true)
	body := w.Body.String()
	assert.Contains(t, body, "sk-abcde...")
	assert.NotContains(t, body, "sk-abcdefghijklmnop")
	assert.Contains(t, body, "badge-success")
}

func TestBackendUnauthorized_RedirectsWithoutRendering(t *testing.T) {
	sb := newStubBackend(t)
	s := newTestServer(t, sb)
	h := s.Handler()
	cookie := login(t, h)

	sb.setUnauthorized(true)
	w := do(t, h, http.MethodGet, "/console/keys/rows", nil, cookie, true)
	assert.Equal(t, "/login", w.Header().Get("HX-Redirect"))
	assert.Empty(t, w.Body.String())
	assert.Empty(t, w.Header().Get("HX-Trigger"))

	// The session is gone.
	sb.setUnauthorized(false)
	w = do(t, h, http.MethodGet, "/console/keys", nil, cookie, false)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestFullPage_UnauthorizedSessionRedirects(t *testing.T) {
	sb := newStubBackend(t)
	s := newTestServer(t, sb)
	h := s.Handler()
	cookie := login(t, h)

	sb.setUnauthorized(true)
	w := do(t, h, http.MethodGet, "/console/dashboard", nil, cookie, false)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
	assert.NotContains(t, w.Body.String(), `id="page"`)
}

func TestKeyCreate_EmptyFieldsSendNothing(t *testing.T) {
	sb := newStubBackend(t)
	s := newTestServer(t, sb)
	h := s.Handler()
	cookie := login(t, h)

	w := do(t, h, http.MethodPost, "/console/keys", url.Values{"name": {""}, "key_value": {"sk-1"}}, cookie, true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, sb.count("POST /api/keys"))

	var trig map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(w.Header().Get("HX-Trigger")), &trig))
	assert.Contains(t, string(trig["toast"]), `"warning"`)
	assert.NotContains(t, trig, "closeModal")
}

func TestKeyCreate_Success(t *testing.T) {
	sb := newStubBackend(t)
	s := newTestServer(t, sb)
	h := s.Handler()
	cookie := login(t, h)

	w := do(t, h, http.MethodPost, "/console/keys", url.Values{"name": {"primary"}, "key_value": {"sk-1"}, "status": {"active"}}, cookie, true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, sb.count("POST /api/keys"))

	var trig map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(w.Header().Get("HX-Trigger")), &trig))
	assert.Contains(t, trig, "closeModal")
	assert.Contains(t, trig, "reload-keys")
	assert.Contains(t, string(trig["toast"]), "Key added")
}

func TestKeyDelete_RequiresConfirmation(t *testing.T) {
	sb := newStubBackend(t)
	s := newTestServer(t, sb)
	h := s.Handler()
	cookie := login(t, h)

	w := do(t, h, http.MethodDelete, "/console/keys/3", nil, cookie, true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, sb.count("DELETE /api/keys/3"))

	w = do(t, h, http.MethodDelete, "/console/keys/3?confirm=yes", nil, cookie, true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, sb.count("DELETE /api/keys/3"))
	assert.Contains(t, w.Header().Get("HX-Trigger"), "reload-keys")
}

var pendingID = regexp.MustCompile(`id="b-([0-9a-f-]{36})" hx-post="/console/chat/reply"`)

func TestChat_SendAndReply(t *testing.T) {
	sb := newStubBackend(t)
	s := newTestServer(t, sb)
	h := s.Handler()
	cookie := login(t, h)

	w := do(t, h, http.MethodPost, "/console/chat", url.Values{"model": {"gpt-4"}, "message": {"ping"}}, cookie, true)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "ping")
	m := pendingID.FindStringSubmatch(body)
	require.Len(t, m, 2, body)
	assert.Zero(t, sb.count("POST /api/chat"))

	w = do(t, h, http.MethodPost, "/console/chat/reply", url.Values{"id": {m[1]}}, cookie, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pong")
	assert.Contains(t, w.Header().Get("HX-Trigger"), "reload-history")
	assert.Equal(t, 1, sb.count("POST /api/chat"))

	w = do(t, h, http.MethodPost, "/console/chat/reply", url.Values{"id": {m[1]}}, cookie, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChat_EmptyMessage(t *testing.T) {
	sb := newStubBackend(t)
	s := newTestServer(t, sb)
	h := s.Handler()
	cookie := login(t, h)

	w := do(t, h, http.MethodPost, "/console/chat", url.Values{"model": {"gpt-4"}, "message": {"  "}}, cookie, true)
	assert.Equal(t, "none", w.Header().Get("HX-Reswap"))
	assert.Contains(t, w.Header().Get("HX-Trigger"), "Please enter a message")
	assert.Empty(t, w.Body.String())
}

func TestStatusBadge(t *testing.T) {
	s := newTestServer(t, newStubBackend(t))
	h := s.Handler()
	cookie := login(t, h)

	w := do(t, h, http.MethodGet, "/console/status", nil, cookie, true)
	assert.Contains(t, w.Body.String(), "Service running")
}

func TestDashboardChartServed(t *testing.T) {
	s := newTestServer(t, newStubBackend(t))
	h := s.Handler()
	cookie := login(t, h)

	w := do(t, h, http.MethodGet, "/console/charts/"+ChartModelUsage, nil, cookie, false)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodGet, "/console/dashboard/data", nil, cookie, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/console/charts/"+ChartModelUsage+"?v=")

	w = do(t, h, http.MethodGet, "/console/charts/"+ChartModelUsage, nil, cookie, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/svg+xml", w.Header().Get("Content-Type"))
}

func TestLogout(t *testing.T) {
	sb := newStubBackend(t)
	s := newTestServer(t, sb)
	h := s.Handler()
	cookie := login(t, h)

	w := do(t, h, http.MethodPost, "/logout", nil, cookie, false)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, 1, sb.count("POST /api/logout"))

	w = do(t, h, http.MethodGet, "/console/dashboard", nil, cookie, false)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, newStubBackend(t))
	w := do(t, s.Handler(), http.MethodGet, "/health", nil, nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
