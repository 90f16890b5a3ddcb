// Package backend is a typed client for the key-rotation proxy's admin API.
//
// Every call returns either decoded data, ErrUnauthorized (HTTP 401) or an
// error describing the failure; *APIError carries the server's message.
//
//	c, _ := backend.NewClient("http://127.0.0.1:5000")
//	if err := c.Login(ctx, password); err != nil { ... }
//	keys, err := c.ListKeys(ctx)
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxBodyBytes caps a decoded backend response.
const maxBodyBytes = 8 << 20

// Observer receives one callback per finished backend call.
type Observer interface {
	ObserveCall(endpoint string, outcome Outcome, d time.Duration)
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithObserver reports call outcomes and latencies to o.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithTransport replaces the underlying round tripper. It is still wrapped
// for tracing.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.httpClient.Transport = otelhttp.NewTransport(rt) }
}

// Client talks to one backend with its own cookie jar, so each console
// session gets its own Client.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	jar        http.CookieJar
	observer   Observer
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", baseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL: u,
		jar:     jar,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Jar:       jar,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the backend address.
func (c *Client) BaseURL() string { return c.baseURL.String() }

// Cookies returns the backend session cookies held by the client.
func (c *Client) Cookies() []*http.Cookie {
	return c.jar.Cookies(c.baseURL)
}

// SetCookies seeds the jar, restoring a session persisted elsewhere.
func (c *Client) SetCookies(cookies []*http.Cookie) {
	c.jar.SetCookies(c.baseURL, cookies)
}

// envelope is the backend's standard response wrapper. Object is set only by
// the OpenAI-style model list, which carries no success flag.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Object  string          `json:"object"`
}

func (e *envelope) message() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

// call performs one request and returns the decoded envelope.
func (c *Client) call(ctx context.Context, endpoint, method, path string, body any) (env *envelope, err error) {
	start := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveCall(endpoint, Classify(err), time.Since(start))
		}
	}()

	raw, status, err := c.send(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}

	env = &envelope{}
	if err := json.Unmarshal(raw, env); err != nil {
		if status >= 400 {
			return nil, newAPIError(status, "")
		}
		return nil, &APIError{StatusCode: status, Message: fmt.Sprintf("invalid response: %v", err)}
	}
	if status >= 400 {
		return nil, newAPIError(status, env.message())
	}
	switch {
	case env.Success != nil && *env.Success:
		return env, nil
	case env.Success == nil && env.Object == "list":
		return env, nil
	case env.Success == nil:
		return nil, &APIError{StatusCode: status, Message: "invalid response: missing success flag"}
	default:
		return nil, newAPIError(status, env.message())
	}
}

func (c *Client) send(ctx context.Context, method, path string, body any) ([]byte, int, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshaling request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, rdr)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	return raw, resp.StatusCode, nil
}

func decodeData(env *envelope, out any) error {
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &APIError{StatusCode: http.StatusOK, Message: fmt.Sprintf("invalid response data: %v", err)}
	}
	return nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, out any) error {
	env, err := c.call(ctx, endpoint, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return decodeData(env, out)
}

func (c *Client) write(ctx context.Context, endpoint, method, path string, body, out any) error {
	env, err := c.call(ctx, endpoint, method, path, body)
	if err != nil {
		return err
	}
	return decodeData(env, out)
}

// Login opens a backend session. The session cookie lands in the client's jar.
func (c *Client) Login(ctx context.Context, password string) error {
	start := time.Now()
	raw, status, err := c.send(ctx, http.MethodPost, "/api/login", map[string]string{"password": password})
	if c.observer != nil {
		outcome := OutcomeOK
		if err != nil || status != http.StatusOK {
			outcome = OutcomeFailed
		}
		c.observer.ObserveCall("POST /api/login", outcome, time.Since(start))
	}
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		return ErrInvalidPassword
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return newAPIError(status, "")
	}
	if status >= 400 || env.Success == nil || !*env.Success {
		return newAPIError(status, env.message())
	}
	return nil
}

// Logout closes the backend session.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.call(ctx, "POST /api/logout", http.MethodPost, "/api/logout", struct{}{})
	return err
}

// Overview fetches the dashboard summary. It doubles as the session check.
func (c *Client) Overview(ctx context.Context) (*Overview, error) {
	var out Overview
	if err := c.get(ctx, "GET /api/stats/overview", "/api/stats/overview", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListKeys returns all keys.
func (c *Client) ListKeys(ctx context.Context) ([]Key, error) {
	var out []Key
	if err := c.get(ctx, "GET /api/keys", "/api/keys", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetKey returns one key.
func (c *Client) GetKey(ctx context.Context, id int64) (*Key, error) {
	var out Key
	if err := c.get(ctx, "GET /api/keys/:id", keyPath(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateKey adds a key.
func (c *Client) CreateKey(ctx context.Context, in KeyInput) error {
	return c.write(ctx, "POST /api/keys", http.MethodPost, "/api/keys", in, nil)
}

// UpdateKey replaces a key's name, value and status.
func (c *Client) UpdateKey(ctx context.Context, id int64, in KeyInput) error {
	return c.write(ctx, "PUT /api/keys/:id", http.MethodPut, keyPath(id), in, nil)
}

// DeleteKey removes a key.
func (c *Client) DeleteKey(ctx context.Context, id int64) error {
	return c.write(ctx, "DELETE /api/keys/:id", http.MethodDelete, keyPath(id), nil, nil)
}

// TestKey asks the backend to validate a key against upstream.
func (c *Client) TestKey(ctx context.Context, id int64) (*KeyTestResult, error) {
	var out KeyTestResult
	if err := c.write(ctx, "POST /api/keys/:id/test", http.MethodPost, keyPath(id)+"/test", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func keyPath(id int64) string {
	return "/api/keys/" + strconv.FormatInt(id, 10)
}

func modelPath(name string) string {
	return "/api/models/" + url.PathEscape(name)
}

// ListModels returns all configured models. Both the envelope shape and the
// OpenAI list shape are accepted.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	return c.listModels(ctx, "/api/models")
}

func (c *Client) listModels(ctx context.Context, path string) ([]Model, error) {
	env, err := c.call(ctx, "GET /api/models", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if env.Object == "list" {
		var list []openAIModel
		if err := decodeData(env, &list); err != nil {
			return nil, err
		}
		out := make([]Model, 0, len(list))
		for _, m := range list {
			out = append(out, Model{ModelName: m.ID})
		}
		return out, nil
	}
	var out []Model
	if err := decodeData(env, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetModel returns one model by name.
func (c *Client) GetModel(ctx context.Context, name string) (*Model, error) {
	var out Model
	if err := c.get(ctx, "GET /api/models/:name", modelPath(name), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateModel adds a model.
func (c *Client) CreateModel(ctx context.Context, in ModelInput) error {
	return c.write(ctx, "POST /api/models", http.MethodPost, "/api/models", in, nil)
}

// UpdateModel changes a model's description and capabilities.
func (c *Client) UpdateModel(ctx context.Context, name string, in ModelInput) error {
	in.ModelName = ""
	return c.write(ctx, "PUT /api/models/:name", http.MethodPut, modelPath(name), in, nil)
}

// DeleteModel removes a model.
func (c *Client) DeleteModel(ctx context.Context, name string) error {
	return c.write(ctx, "DELETE /api/models/:name", http.MethodDelete, modelPath(name), nil, nil)
}

// ChatModels returns the model names offered for chat. refresh asks the
// backend to reload the list; only RefreshModels pulls from upstream.
func (c *Client) ChatModels(ctx context.Context, refresh bool) ([]string, error) {
	path := "/api/models/chat"
	if refresh {
		path += "?refresh=true"
	}
	var raw []json.RawMessage
	if err := c.get(ctx, "GET /api/models/chat", path, &raw); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if name := modelName(r); name != "" {
			out = append(out, name)
		}
	}
	return out, nil
}

// modelName accepts a bare string, {id} or {model_name}.
func modelName(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		ID        string `json:"id"`
		ModelName string `json:"model_name"`
	}
	if json.Unmarshal(raw, &obj) != nil {
		return ""
	}
	if obj.ModelName != "" {
		return obj.ModelName
	}
	return obj.ID
}

// RefreshModels makes the backend re-fetch its model list from upstream and
// returns the stored names. On an upstream failure the backend answers with
// its current list.
func (c *Client) RefreshModels(ctx context.Context) ([]string, error) {
	models, err := c.listModels(ctx, "/api/models?refresh=true")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(models))
	for _, m := range models {
		out = append(out, m.ModelName)
	}
	return out, nil
}

// Periods accepted by Usage.
var Periods = []string{"all", "daily", "weekly", "monthly"}

// NormalizePeriod returns p if it is a known period, otherwise "all".
func NormalizePeriod(p string) string {
	for _, known := range Periods {
		if p == known {
			return p
		}
	}
	return "all"
}

// Usage returns usage statistics for a period.
func (c *Client) Usage(ctx context.Context, period string) (*Usage, error) {
	var out Usage
	path := "/api/stats/usage?period=" + url.QueryEscape(NormalizePeriod(period))
	if err := c.get(ctx, "GET /api/stats/usage", path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Hourly returns per-hour request and token counts.
func (c *Client) Hourly(ctx context.Context) ([]HourlyUsage, error) {
	var out []HourlyUsage
	if err := c.get(ctx, "GET /api/stats/hourly", "/api/stats/hourly", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ChatHistory returns the most recent chat exchanges, newest first.
func (c *Client) ChatHistory(ctx context.Context, limit int) ([]ChatRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []ChatRecord
	path := "/api/chat/history?limit=" + strconv.Itoa(limit)
	if err := c.get(ctx, "GET /api/chat/history", path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Chat sends a single-turn chat completion through the backend.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var out ChatResponse
	if err := c.write(ctx, "POST /api/chat", http.MethodPost, "/api/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health fetches GET /health. It needs no session and has no envelope.
func (c *Client) Health(ctx context.Context) (h *Health, err error) {
	start := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveCall("GET /health", Classify(err), time.Since(start))
		}
	}()
	raw, status, err := c.send(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}
	var out Health
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, newAPIError(status, fmt.Sprintf("decoding health: %v", err))
	}
	return &out, nil
}
