package console

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keydeck/keydeck/internal/audit"
	"github.com/keydeck/keydeck/internal/backend"
	"github.com/keydeck/keydeck/internal/charts"
	"github.com/keydeck/keydeck/internal/telemetry"
)

// Backend is the part of the backend client the controller uses.
type Backend interface {
	Logout(ctx context.Context) error
	Overview(ctx context.Context) (*backend.Overview, error)
	ListKeys(ctx context.Context) ([]backend.Key, error)
	GetKey(ctx context.Context, id int64) (*backend.Key, error)
	CreateKey(ctx context.Context, in backend.KeyInput) error
	UpdateKey(ctx context.Context, id int64, in backend.KeyInput) error
	DeleteKey(ctx context.Context, id int64) error
	TestKey(ctx context.Context, id int64) (*backend.KeyTestResult, error)
	ListModels(ctx context.Context) ([]backend.Model, error)
	GetModel(ctx context.Context, name string) (*backend.Model, error)
	CreateModel(ctx context.Context, in backend.ModelInput) error
	UpdateModel(ctx context.Context, name string, in backend.ModelInput) error
	DeleteModel(ctx context.Context, name string) error
	ChatModels(ctx context.Context, refresh bool) ([]string, error)
	RefreshModels(ctx context.Context) ([]string, error)
	Usage(ctx context.Context, period string) (*backend.Usage, error)
	Hourly(ctx context.Context) ([]backend.HourlyUsage, error)
	ChatHistory(ctx context.Context, limit int) ([]backend.ChatRecord, error)
	Chat(ctx context.Context, req backend.ChatRequest) (*backend.ChatResponse, error)
	Health(ctx context.Context) (*backend.Health, error)
	Cookies() []*http.Cookie
}

// ActionLog records console actions.
type ActionLog interface {
	Record(session, action, target, outcome, message string, latency time.Duration)
}

// Observer receives controller events for metrics.
type Observer interface {
	ChartRendered(chart, result string)
	BackendHealth(healthy bool)
}

// Settings are the runtime-adjustable presentation settings.
type Settings struct {
	ToastMillis  int
	HistoryLimit int
	ChartWidth   int
	ChartHeight  int
}

// DefaultSettings mirrors the config defaults.
var DefaultSettings = Settings{ToastMillis: 3000, HistoryLimit: 10, ChartWidth: 640, ChartHeight: 300}

// Chart names bound in the registry.
const (
	ChartModelUsage = "modelUsage"
	ChartKeyUsage   = "keyUsage"
	ChartModelStats = "modelStats"
	ChartKeyStats   = "keyStats"
	ChartHourly     = "hourlyUsage"
)

// Options configures a Controller.
type Options struct {
	Session  string
	Backend  Backend
	Page     Page
	Settings func() Settings
	Actions  ActionLog
	Observer Observer
	Logger   *slog.Logger
}

// Controller holds one console session's state and turns page and user
// actions into backend calls. Backend calls run without holding the lock,
// so loaders for one page may run concurrently.
type Controller struct {
	session  string
	api      Backend
	settings func() Settings
	actions  ActionLog
	observer Observer
	logger   *slog.Logger

	charts   *charts.Registry
	chartSeq atomic.Uint64

	mu         sync.Mutex
	page       Page
	history    []backend.ChatRecord
	transcript []Bubble
	pending    map[string]pendingMessage
}

type pendingMessage struct {
	model string
	input string
}

// NewController creates a controller. Page defaults to the dashboard.
func NewController(opts Options) *Controller {
	if opts.Page == "" {
		opts.Page = PageDashboard
	}
	if opts.Settings == nil {
		opts.Settings = func() Settings { return DefaultSettings }
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Controller{
		session:  opts.Session,
		api:      opts.Backend,
		settings: opts.Settings,
		actions:  opts.Actions,
		observer: opts.Observer,
		logger:   opts.Logger,
		charts:   charts.NewRegistry(),
		page:     opts.Page,
		pending:  make(map[string]pendingMessage),
	}
}

// Session returns the session token the controller belongs to.
func (c *Controller) Session() string { return c.session }

// Page returns the current page.
func (c *Controller) Page() Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

// Cookies returns the backend cookies for persisting the session.
func (c *Controller) Cookies() []*http.Cookie { return c.api.Cookies() }

// Settings returns the current presentation settings.
func (c *Controller) Settings() Settings { return c.settings() }

// CheckSession asks the backend whether the session is still valid. Only
// ErrUnauthorized means the session is gone; other failures are left to the
// page loaders to report.
func (c *Controller) CheckSession(ctx context.Context) error {
	ctx, span := telemetry.Start(ctx, "console.CheckSession")
	defer span.End()
	_, err := c.api.Overview(ctx)
	if errors.Is(err, backend.ErrUnauthorized) {
		return err
	}
	if err != nil {
		c.logger.Warn("session check failed", "error", err)
	}
	return nil
}

// Navigate switches to page. It reports whether page was already current,
// in which case the caller re-runs the loader as a refresh.
func (c *Controller) Navigate(name string) (Page, bool, error) {
	p, err := ParsePage(name)
	if err != nil {
		return c.Page(), false, err
	}
	c.mu.Lock()
	same := c.page == p
	c.page = p
	c.mu.Unlock()
	return p, same, nil
}

// Refresh re-runs the current page and confirms with a toast.
func (c *Controller) Refresh() (Page, Feedback) {
	return c.Page(), Feedback{Toast: success("Data refreshed")}
}

// Logout closes the backend session and releases charts.
func (c *Controller) Logout(ctx context.Context) {
	start := time.Now()
	err := c.api.Logout(ctx)
	c.record("logout", "", start, err)
	c.Close()
}

// Close disposes every chart held by the session.
func (c *Controller) Close() {
	c.charts.DisposeAll()
}

// ChartSVG returns the rendered chart bound to name.
func (c *Controller) ChartSVG(name string) ([]byte, bool) {
	ch, ok := c.charts.Get(name)
	if !ok {
		return nil, false
	}
	svg := ch.SVG()
	return svg, len(svg) > 0
}

// fold splits a backend error into an inline message and a propagated error.
// Only ErrUnauthorized propagates.
func fold(err error) (string, error) {
	if errors.Is(err, backend.ErrUnauthorized) {
		return "", err
	}
	return backend.ErrorMessage(err), nil
}

func (c *Controller) record(action, target string, start time.Time, err error) {
	outcome := audit.OutcomeOK
	switch backend.Classify(err) {
	case backend.OutcomeUnauthorized:
		outcome = audit.OutcomeUnauthorized
	case backend.OutcomeFailed:
		outcome = audit.OutcomeFailed
	}
	c.recordOutcome(action, target, outcome, backend.ErrorMessage(err), time.Since(start))
}

func (c *Controller) rejected(action, target, reason string) {
	c.recordOutcome(action, target, audit.OutcomeRejected, reason, 0)
}

func (c *Controller) recordOutcome(action, target, outcome, msg string, latency time.Duration) {
	if c.actions == nil {
		return
	}
	c.actions.Record(c.session, action, target, outcome, msg, latency)
}

// renderChart renders ds into a fresh chart and binds it to name, disposing
// the previous instance. Empty data unbinds the name.
func (c *Controller) renderChart(name string, kind charts.Kind, ds charts.Dataset) ChartRef {
	ref := ChartRef{Name: name}
	s := c.settings()
	ch, err := charts.New(kind, charts.Options{Width: s.ChartWidth, Height: s.ChartHeight})
	if err == nil {
		err = ch.Render(ds)
	}
	switch {
	case err == nil:
		c.charts.Replace(name, ch)
		ref.Version = c.chartSeq.Add(1)
		c.chartRendered(name, "ok")
	case errors.Is(err, charts.ErrNoData):
		c.charts.Remove(name)
		ref.Empty = true
		c.chartRendered(name, "empty")
	default:
		c.charts.Remove(name)
		ref.Err = err.Error()
		c.logger.Warn("chart render failed", "chart", name, "error", err)
		c.chartRendered(name, "error")
	}
	return ref
}

func (c *Controller) chartRendered(name, result string) {
	if c.observer != nil {
		c.observer.ChartRendered(name, result)
	}
}

// LoadDashboard fetches the overview: counters, recent requests and the
// model and key usage charts.
func (c *Controller) LoadDashboard(ctx context.Context) (*DashboardView, error) {
	ctx, span := telemetry.Start(ctx, "console.LoadDashboard")
	defer span.End()

	ov, err := c.api.Overview(ctx)
	if err != nil {
		msg, err := fold(err)
		if err != nil {
			return nil, err
		}
		return &DashboardView{Err: "Failed to load dashboard: " + msg}, nil
	}

	v := &DashboardView{
		TotalKeys:     ov.DatabaseInfo.KeysCount.Int(),
		ActiveKeys:    ov.DatabaseInfo.ActiveKeysCount.Int(),
		TotalModels:   ov.DatabaseInfo.ModelsCount.Int(),
		TotalRequests: ov.DatabaseInfo.TotalRequests(),
		DailyRequests: ov.DailyUsage.RequestCount.Int(),
		DailyTokens:   ov.DailyUsage.TokensUsed.Int(),
	}
	for _, r := range ov.RecentChats {
		v.Recent = append(v.Recent, RecentRow{
			Time:   formatDate(r.Timestamp),
			Model:  r.Model,
			KeyID:  r.KeyID,
			Tokens: r.TokensUsed.Int(),
			OK:     r.Response != "",
		})
	}

	models := charts.Dataset{Title: "Model usage", Series: []charts.Series{{Name: "requests"}}}
	for _, m := range ov.ModelUsage {
		models.Labels = append(models.Labels, m.ModelName)
		models.Series[0].Values = append(models.Series[0].Values, float64(m.TotalUsage))
	}
	v.ModelChart = c.renderChart(ChartModelUsage, charts.KindDonut, models)

	keys := charts.Dataset{Title: "Key usage", Series: []charts.Series{{Name: "requests"}}}
	for _, k := range ov.KeyUsage {
		keys.Labels = append(keys.Labels, k.Name)
		keys.Series[0].Values = append(keys.Series[0].Values, float64(k.UsageCount))
	}
	v.KeyChart = c.renderChart(ChartKeyUsage, charts.KindBar, keys)
	return v, nil
}

// LoadKeys fetches the keys table.
func (c *Controller) LoadKeys(ctx context.Context) (*KeysView, error) {
	ctx, span := telemetry.Start(ctx, "console.LoadKeys")
	defer span.End()

	keys, err := c.api.ListKeys(ctx)
	if err != nil {
		msg, err := fold(err)
		if err != nil {
			return nil, err
		}
		return &KeysView{Err: "Failed to load keys: " + msg}, nil
	}
	v := &KeysView{Rows: make([]KeyRow, 0, len(keys))}
	for _, k := range keys {
		v.Rows = append(v.Rows, KeyRow{
			ID:          k.ID,
			Name:        k.Name,
			Masked:      maskKey(k.KeyValue),
			Status:      k.Status,
			StatusColor: statusColor(k.Status),
			UsageCount:  k.UsageCount.Int(),
			LastUsed:    formatDate(k.LastUsed),
		})
	}
	return v, nil
}

// LoadModels fetches the models table.
func (c *Controller) LoadModels(ctx context.Context) (*ModelsView, error) {
	ctx, span := telemetry.Start(ctx, "console.LoadModels")
	defer span.End()

	models, err := c.api.ListModels(ctx)
	if err != nil {
		msg, err := fold(err)
		if err != nil {
			return nil, err
		}
		return &ModelsView{Err: "Failed to load models: " + msg}, nil
	}
	v := &ModelsView{Rows: make([]ModelRow, 0, len(models))}
	for _, m := range models {
		v.Rows = append(v.Rows, ModelRow{
			ID:          m.ID,
			Name:        m.ModelName,
			Description: m.Description,
			Created:     formatDate(m.CreatedAt),
			Updated:     formatDate(m.UpdatedAt),
		})
	}
	return v, nil
}

// LoadUsage fetches usage statistics for period. Unknown periods mean "all".
func (c *Controller) LoadUsage(ctx context.Context, period string) (*UsageView, error) {
	ctx, span := telemetry.Start(ctx, "console.LoadUsage")
	defer span.End()

	period = backend.NormalizePeriod(period)
	v := &UsageView{Period: period, Periods: backend.Periods}

	u, err := c.api.Usage(ctx, period)
	if err != nil {
		msg, err := fold(err)
		if err != nil {
			return nil, err
		}
		v.Err = "Failed to load statistics: " + msg
		return v, nil
	}

	v.TotalUsage = u.TotalUsage.TotalUsage.Int()
	v.TotalTokens = u.TotalUsage.TotalTokens.Int()
	v.TotalRequests = u.TotalUsage.TotalRequests.Int()

	modelDS := charts.Dataset{Title: "Model statistics", Series: []charts.Series{{Name: "Usage"}, {Name: "Tokens"}}}
	for _, m := range u.ModelStats {
		v.Models = append(v.Models, StatRow{Name: m.ModelName, Usage: m.UsageCount.Int(), Tokens: m.TokensUsed.Int(), Requests: m.RequestCount.Int()})
		modelDS.Labels = append(modelDS.Labels, m.ModelName)
		modelDS.Series[0].Values = append(modelDS.Series[0].Values, float64(m.UsageCount))
		modelDS.Series[1].Values = append(modelDS.Series[1].Values, float64(m.TokensUsed))
	}
	keyDS := charts.Dataset{Title: "Key statistics", Series: []charts.Series{{Name: "Usage"}, {Name: "Tokens"}}}
	for _, k := range u.KeyStats {
		v.Keys = append(v.Keys, StatRow{Name: k.KeyName, Usage: k.UsageCount.Int(), Tokens: k.TokensUsed.Int(), Requests: k.RequestCount.Int()})
		keyDS.Labels = append(keyDS.Labels, k.KeyName)
		keyDS.Series[0].Values = append(keyDS.Series[0].Values, float64(k.UsageCount))
		keyDS.Series[1].Values = append(keyDS.Series[1].Values, float64(k.TokensUsed))
	}
	v.ModelChart = c.renderChart(ChartModelStats, charts.KindGroupedBar, modelDS)
	v.KeyChart = c.renderChart(ChartKeyStats, charts.KindGroupedBar, keyDS)
	return v, nil
}

// LoadHourly fetches the hourly trend chart.
func (c *Controller) LoadHourly(ctx context.Context) (*HourlyView, error) {
	ctx, span := telemetry.Start(ctx, "console.LoadHourly")
	defer span.End()

	hours, err := c.api.Hourly(ctx)
	if err != nil {
		msg, err := fold(err)
		if err != nil {
			return nil, err
		}
		return &HourlyView{Err: "Failed to load hourly usage: " + msg}, nil
	}
	ds := charts.Dataset{Title: "Hourly usage", Series: []charts.Series{{Name: "Requests"}, {Name: "Tokens"}}}
	for _, h := range hours {
		ds.Labels = append(ds.Labels, hourLabel(h.Hour))
		ds.Series[0].Values = append(ds.Series[0].Values, float64(h.RequestCount))
		ds.Series[1].Values = append(ds.Series[1].Values, float64(h.TokensUsed))
	}
	return &HourlyView{Chart: c.renderChart(ChartHourly, charts.KindLine, ds)}, nil
}

// LoadStats runs the usage and hourly loaders concurrently.
func (c *Controller) LoadStats(ctx context.Context, period string) (*StatsView, error) {
	var (
		wg         sync.WaitGroup
		v          StatsView
		uerr, herr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		v.Usage, uerr = c.LoadUsage(ctx, period)
	}()
	go func() {
		defer wg.Done()
		v.Hourly, herr = c.LoadHourly(ctx)
	}()
	wg.Wait()
	if uerr != nil {
		return nil, uerr
	}
	if herr != nil {
		return nil, herr
	}
	return &v, nil
}

// CheckServiceStatus reads the backend health endpoint for the status badge.
func (c *Controller) CheckServiceStatus(ctx context.Context) StatusView {
	h, err := c.api.Health(ctx)
	if err != nil {
		c.backendHealth(false)
		return StatusView{Text: "Connection failed", Color: "danger"}
	}
	c.backendHealth(h.Healthy())
	if h.Healthy() {
		return StatusView{Text: "Service running", Color: "success"}
	}
	return StatusView{Text: "Service abnormal", Color: "warning"}
}

func (c *Controller) backendHealth(ok bool) {
	if c.observer != nil {
		c.observer.BackendHealth(ok)
	}
}
