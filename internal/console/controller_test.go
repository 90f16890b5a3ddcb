package console

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keydeck/keydeck/internal/audit"
	"github.com/keydeck/keydeck/internal/backend"
)

// fakeBackend records calls and answers from its fields.
type fakeBackend struct {
	mu    sync.Mutex
	calls []string

	overview    *backend.Overview
	overviewErr error
	keys        []backend.Key
	keysErr     error
	key         *backend.Key
	writeErr    error
	testResult  *backend.KeyTestResult
	models      []backend.Model
	chatModels  []string
	modelsErr   error
	usage       *backend.Usage
	hourly      []backend.HourlyUsage
	history     []backend.ChatRecord
	chatReply   string
	chatErr     error
	health      *backend.Health
	healthErr   error
	lastChat    backend.ChatRequest
	lastKeyIn   backend.KeyInput
	lastModelIn backend.ModelInput
}

func (f *fakeBackend) called(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) Logout(context.Context) error { f.called("Logout"); return nil }

func (f *fakeBackend) Overview(context.Context) (*backend.Overview, error) {
	f.called("Overview")
	if f.overviewErr != nil {
		return nil, f.overviewErr
	}
	if f.overview == nil {
		return &backend.Overview{}, nil
	}
	return f.overview, nil
}

func (f *fakeBackend) ListKeys(context.Context) ([]backend.Key, error) {
	f.called("ListKeys")
	return f.keys, f.keysErr
}

func (f *fakeBackend) GetKey(_ context.Context, id int64) (*backend.Key, error) {
	f.called("GetKey")
	if f.key == nil {
		return nil, &backend.APIError{StatusCode: 404, Message: "key not found"}
	}
	return f.key, nil
}

func (f *fakeBackend) CreateKey(_ context.Context, in backend.KeyInput) error {
	f.called("CreateKey")
	f.lastKeyIn = in
	return f.writeErr
}

func (f *fakeBackend) UpdateKey(_ context.Context, _ int64, in backend.KeyInput) error {
	f.called("UpdateKey")
	f.lastKeyIn = in
	return f.writeErr
}

func (f *fakeBackend) DeleteKey(context.Context, int64) error {
	f.called("DeleteKey")
	return f.writeErr
}

func (f *fakeBackend) TestKey(context.Context, int64) (*backend.KeyTestResult, error) {
	f.called("TestKey")
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	return f.testResult, nil
}

func (f *fakeBackend) ListModels(context.Context) ([]backend.Model, error) {
	f.called("ListModels")
	return f.models, f.modelsErr
}

func (f *fakeBackend) GetModel(_ context.Context, name string) (*backend.Model, error) {
	f.called("GetModel")
	for _, m := range f.models {
		if m.ModelName == name {
			return &m, nil
		}
	}
	return nil, &backend.APIError{StatusCode: 404, Message: "model not found"}
}

func (f *fakeBackend) CreateModel(_ context.Context, in backend.ModelInput) error {
	f.called("CreateModel")
	f.lastModelIn = in
	return f.writeErr
}

func (f *fakeBackend) UpdateModel(_ context.Context, _ string, in backend.ModelInput) error {
	f.called("UpdateModel")
	f.lastModelIn = in
	return f.writeErr
}

func (f *fakeBackend) DeleteModel(context.Context, string) error {
	f.called("DeleteModel")
	return f.writeErr
}

func (f *fakeBackend) ChatModels(_ context.Context, refresh bool) ([]string, error) {
	if refresh {
		f.called("ChatModels(refresh)")
	} else {
		f.called("ChatModels")
	}
	return f.chatModels, f.modelsErr
}

func (f *fakeBackend) RefreshModels(ctx context.Context) ([]string, error) {
	f.called("RefreshModels")
	return f.chatModels, f.modelsErr
}

func (f *fakeBackend) Usage(_ context.Context, period string) (*backend.Usage, error) {
	f.called("Usage(" + period + ")")
	if f.usage == nil {
		return &backend.Usage{}, nil
	}
	return f.usage, nil
}

func (f *fakeBackend) Hourly(context.Context) ([]backend.HourlyUsage, error) {
	f.called("Hourly")
	return f.hourly, nil
}

func (f *fakeBackend) ChatHistory(context.Context, int) ([]backend.ChatRecord, error) {
	f.called("ChatHistory")
	return f.history, nil
}

func (f *fakeBackend) Chat(_ context.Context, req backend.ChatRequest) (*backend.ChatResponse, error) {
	f.called("Chat")
	f.lastChat = req
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	var resp backend.ChatResponse
	raw := `{"choices":[{"index":0,"message":{"role":"assistant","content":` + quote(f.chatReply) + `}}],"usage":{"total_tokens":12}}`
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (f *fakeBackend) Health(context.Context) (*backend.Health, error) {
	f.called("Health")
	return f.health, f.healthErr
}

func (f *fakeBackend) Cookies() []*http.Cookie { return nil }

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

type loggedAction struct {
	action, target, outcome, message string
}

type actionRecorder struct {
	mu      sync.Mutex
	entries []loggedAction
}

func (a *actionRecorder) Record(_, action, target, outcome, message string, _ time.Duration) {
	a.mu.Lock()
	a.entries = append(a.entries, loggedAction{action, target, outcome, message})
	a.mu.Unlock()
}

func (a *actionRecorder) last() loggedAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.entries) == 0 {
		return loggedAction{}
	}
	return a.entries[len(a.entries)-1]
}

type chartEvents struct {
	mu      sync.Mutex
	results map[string]string
	healthy []bool
}

func (o *chartEvents) ChartRendered(chart, result string) {
	o.mu.Lock()
	if o.results == nil {
		o.results = make(map[string]string)
	}
	o.results[chart] = result
	o.mu.Unlock()
}

func (o *chartEvents) BackendHealth(healthy bool) {
	o.mu.Lock()
	o.healthy = append(o.healthy, healthy)
	o.mu.Unlock()
}

func newTestController(t *testing.T, fb *fakeBackend) (*Controller, *actionRecorder) {
	t.Helper()
	rec := &actionRecorder{}
	c := NewController(Options{Session: "test-session", Backend: fb, Actions: rec})
	t.Cleanup(c.Close)
	return c, rec
}

func TestNavigate(t *testing.T) {
	c, _ := newTestController(t, &fakeBackend{})
	assert.Equal(t, PageDashboard, c.Page())

	p, same, err := c.Navigate("keys")
	require.NoError(t, err)
	assert.Equal(t, PageKeys, p)
	assert.False(t, same)

	_, same, err = c.Navigate("keys")
	require.NoError(t, err)
	assert.True(t, same)

	_, _, err = c.Navigate("settings")
	assert.ErrorIs(t, err, ErrUnknownPage)
	assert.Equal(t, PageKeys, c.Page(), "unknown page must not change navigation")
}

func TestNav_ExactlyOneActive(t *testing.T) {
	for _, p := range Pages {
		active := 0
		for _, item := range Nav(p) {
			if item.Active {
				active++
				assert.Equal(t, p, item.Page)
			}
		}
		assert.Equal(t, 1, active, "page %s", p)
	}
}

func TestRefresh(t *testing.T) {
	c, _ := newTestController(t, &fakeBackend{})
	_, _, _ = c.Navigate("models")
	p, fb := c.Refresh()
	assert.Equal(t, PageModels, p)
	require.NotNil(t, fb.Toast)
	assert.Equal(t, LevelSuccess, fb.Toast.Level)
	assert.Equal(t, "Data refreshed", fb.Toast.Message)
}

func TestCheckSession(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"ok", nil, false},
		{"unauthorized", backend.ErrUnauthorized, true},
		{"server error", &backend.APIError{StatusCode: 500, Message: "boom"}, false},
		{"transport", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestController(t, &fakeBackend{overviewErr: tt.err})
			err := c.CheckSession(context.Background())
			if tt.wantErr {
				assert.ErrorIs(t, err, backend.ErrUnauthorized)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadKeys(t *testing.T) {
	fb := &fakeBackend{keys: []backend.Key{
		{ID: 1, Name: "primary", KeyValue: "sk-abcdefghijkl", Status: "active", UsageCount: 42},
		{ID: 2, Name: "short", KeyValue: "sk-1234", Status: "error"},
	}}
	c, _ := newTestController(t, fb)

	v, err := c.LoadKeys(context.Background())
	require.NoError(t, err)
	require.Len(t, v.Rows, 2)
	assert.Equal(t, "sk-abcde...", v.Rows[0].Masked)
	assert.Equal(t, "success", v.Rows[0].StatusColor)
	assert.Equal(t, int64(42), v.Rows[0].UsageCount)
	assert.Equal(t, "-", v.Rows[0].LastUsed)
	assert.Equal(t, "sk-1234", v.Rows[1].Masked)
	assert.Equal(t, "danger", v.Rows[1].StatusColor)
}

func TestLoadKeys_ErrorsStayInline(t *testing.T) {
	c, _ := newTestController(t, &fakeBackend{keysErr: &backend.APIError{StatusCode: 500, Message: "database locked"}})
	v, err := c.LoadKeys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, v.Rows)
	assert.Equal(t, "Failed to load keys: database locked", v.Err)
}

func TestLoaders_UnauthorizedPropagates(t *testing.T) {
	fb := &fakeBackend{keysErr: backend.ErrUnauthorized, overviewErr: backend.ErrUnauthorized, modelsErr: backend.ErrUnauthorized}
	c, _ := newTestController(t, fb)
	ctx := context.Background()

	_, err := c.LoadKeys(ctx)
	assert.ErrorIs(t, err, backend.ErrUnauthorized)
	_, err = c.LoadDashboard(ctx)
	assert.ErrorIs(t, err, backend.ErrUnauthorized)
	_, err = c.LoadModels(ctx)
	assert.ErrorIs(t, err, backend.ErrUnauthorized)
	_, err = c.LoadChatModels(ctx, "")
	assert.ErrorIs(t, err, backend.ErrUnauthorized)
}

func TestLoadDashboard(t *testing.T) {
	fb := &fakeBackend{overview: &backend.Overview{
		DatabaseInfo: backend.DatabaseInfo{KeysCount: 3, ActiveKeysCount: 2, ModelsCount: 5, TotalUsageCount: 99},
		ModelUsage:   []backend.ModelUsage{{ModelName: "gpt-4", TotalUsage: 10}, {ModelName: "gpt-3.5", TotalUsage: 4}},
		KeyUsage:     []backend.KeyUsage{{ID: 1, Name: "primary", UsageCount: 14}},
		RecentChats:  []backend.ChatRecord{{ID: 7, Model: "gpt-4", KeyID: 1, Response: "{}", TokensUsed: 30}},
	}}
	obs := &chartEvents{}
	c := NewController(Options{Session: "s", Backend: fb, Observer: obs})
	defer c.Close()

	v, err := c.LoadDashboard(context.Background())
	require.NoError(t, err)
	assert.Empty(t, v.Err)
	assert.Equal(t, int64(3), v.TotalKeys)
	assert.Equal(t, int64(2), v.ActiveKeys)
	assert.Equal(t, int64(5), v.TotalModels)
	assert.Equal(t, int64(99), v.TotalRequests)
	require.Len(t, v.Recent, 1)
	assert.True(t, v.Recent[0].OK)

	assert.NotZero(t, v.ModelChart.Version)
	assert.NotZero(t, v.KeyChart.Version)
	svg, ok := c.ChartSVG(ChartModelUsage)
	require.True(t, ok)
	assert.Contains(t, string(svg), "<svg")
	assert.Equal(t, "ok", obs.results[ChartKeyUsage])

	again, err := c.LoadDashboard(context.Background())
	require.NoError(t, err)
	assert.Greater(t, again.ModelChart.Version, v.ModelChart.Version)
}

func TestLoadDashboard_EmptyChartsUnbind(t *testing.T) {
	c, _ := newTestController(t, &fakeBackend{})
	v, err := c.LoadDashboard(context.Background())
	require.NoError(t, err)
	assert.True(t, v.ModelChart.Empty)
	assert.True(t, v.KeyChart.Empty)
	_, ok := c.ChartSVG(ChartModelUsage)
	assert.False(t, ok)
	assert.Empty(t, v.Recent)
}

func TestLoadStats_InvalidPeriodFallsBack(t *testing.T) {
	fb := &fakeBackend{
		usage: &backend.Usage{
			TotalUsage: backend.UsageTotals{TotalUsage: 10, TotalTokens: 500, TotalRequests: 10},
			ModelStats: []backend.ModelStat{{ModelName: "gpt-4", UsageCount: 10, TokensUsed: 500}},
			KeyStats:   []backend.KeyStat{{KeyID: 1, KeyName: "primary", UsageCount: 10, TokensUsed: 500}},
		},
		hourly: []backend.HourlyUsage{{Hour: "2024-01-02 13:00", RequestCount: 4, TokensUsed: 100}},
	}
	c, _ := newTestController(t, fb)

	v, err := c.LoadStats(context.Background(), "yearly")
	require.NoError(t, err)
	assert.Equal(t, "all", v.Usage.Period)
	assert.Contains(t, fb.Calls(), "Usage(all)")
	assert.Equal(t, int64(500), v.Usage.TotalTokens)
	require.Len(t, v.Usage.Models, 1)
	assert.NotZero(t, v.Usage.ModelChart.Version)
	assert.NotZero(t, v.Hourly.Chart.Version)
	_, ok := c.ChartSVG(ChartHourly)
	assert.True(t, ok)
}

func TestSaveKey_EmptyFieldsSendNothing(t *testing.T) {
	fb := &fakeBackend{}
	c, rec := newTestController(t, fb)

	for _, form := range []KeyForm{{Name: "", Value: "sk-1"}, {Name: "k", Value: "  "}} {
		out, err := c.SaveKey(context.Background(), form)
		require.NoError(t, err)
		require.NotNil(t, out.Toast)
		assert.Equal(t, LevelWarning, out.Toast.Level)
		assert.False(t, out.CloseModal)
	}
	assert.Empty(t, fb.Calls())
	assert.Equal(t, audit.OutcomeRejected, rec.last().outcome)
}

func TestSaveKey_Success(t *testing.T) {
	fb := &fakeBackend{}
	c, rec := newTestController(t, fb)

	out, err := c.SaveKey(context.Background(), KeyForm{Name: " primary ", Value: "sk-abc", Status: "bogus"})
	require.NoError(t, err)
	assert.Equal(t, []string{"CreateKey"}, fb.Calls())
	assert.Equal(t, "primary", fb.lastKeyIn.Name)
	assert.Equal(t, backend.StatusActive, fb.lastKeyIn.Status)
	assert.True(t, out.CloseModal)
	assert.Equal(t, []string{reloadKeys}, out.Reload)
	assert.Equal(t, LevelSuccess, out.Toast.Level)
	assert.Equal(t, loggedAction{"key.create", "primary", audit.OutcomeOK, ""}, rec.last())
}

func TestSaveKey_FailureKeepsModalOpen(t *testing.T) {
	fb := &fakeBackend{writeErr: &backend.APIError{StatusCode: 400, Message: "duplicate key"}}
	c, rec := newTestController(t, fb)

	out, err := c.SaveKey(context.Background(), KeyForm{Name: "primary", Value: "sk-abc"})
	require.NoError(t, err)
	assert.False(t, out.CloseModal)
	assert.Empty(t, out.Reload)
	assert.Equal(t, LevelDanger, out.Toast.Level)
	assert.Equal(t, "Failed to add key: duplicate key", out.Toast.Message)
	assert.Equal(t, audit.OutcomeFailed, rec.last().outcome)
}

func TestSaveKey_Unauthorized(t *testing.T) {
	c, rec := newTestController(t, &fakeBackend{writeErr: backend.ErrUnauthorized})
	_, err := c.SaveKey(context.Background(), KeyForm{Name: "primary", Value: "sk-abc"})
	assert.ErrorIs(t, err, backend.ErrUnauthorized)
	assert.Equal(t, audit.OutcomeUnauthorized, rec.last().outcome)
}

func TestEditKey(t *testing.T) {
	fb := &fakeBackend{key: &backend.Key{ID: 9, Name: "spare", KeyValue: "sk-x", Status: "inactive"}}
	c, _ := newTestController(t, fb)

	form, out, err := c.EditKey(context.Background(), 9)
	require.NoError(t, err)
	assert.Nil(t, out.Toast)
	assert.Equal(t, &KeyForm{ID: 9, Name: "spare", Value: "sk-x", Status: "inactive"}, form)

	fb.key = nil
	form, out, err = c.EditKey(context.Background(), 10)
	require.NoError(t, err)
	assert.Nil(t, form)
	assert.Equal(t, "Failed to load key: key not found", out.Toast.Message)
}

func TestDeleteKey_RequiresConfirmation(t *testing.T) {
	fb := &fakeBackend{}
	c, _ := newTestController(t, fb)

	out, err := c.DeleteKey(context.Background(), 3, false)
	require.NoError(t, err)
	assert.Nil(t, out.Toast)
	assert.Empty(t, fb.Calls())

	out, err = c.DeleteKey(context.Background(), 3, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"DeleteKey"}, fb.Calls())
	assert.Equal(t, []string{reloadKeys}, out.Reload)
}

func TestTestKey(t *testing.T) {
	tests := []struct {
		name      string
		result    *backend.KeyTestResult
		wantLevel string
		wantMsg   string
	}{
		{"valid", &backend.KeyTestResult{Valid: true}, LevelSuccess, "Key test passed"},
		{"invalid", &backend.KeyTestResult{Valid: false, Message: "quota exceeded"}, LevelDanger, "Key test failed: quota exceeded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestController(t, &fakeBackend{testResult: tt.result})
			out, err := c.TestKey(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLevel, out.Toast.Level)
			assert.Equal(t, tt.wantMsg, out.Toast.Message)
			assert.Equal(t, []string{reloadKeys}, out.Reload)
		})
	}
}

func TestSaveModel(t *testing.T) {
	fb := &fakeBackend{}
	c, _ := newTestController(t, fb)

	out, err := c.SaveModel(context.Background(), ModelForm{Name: "  "})
	require.NoError(t, err)
	assert.Equal(t, LevelWarning, out.Toast.Level)
	assert.Empty(t, fb.Calls())

	out, err = c.SaveModel(context.Background(), ModelForm{Name: "gpt-4o", Description: "omni"})
	require.NoError(t, err)
	assert.True(t, out.CloseModal)
	assert.Equal(t, []string{reloadModels}, out.Reload)
	assert.Equal(t, "gpt-4o", fb.lastModelIn.ModelName)
}

func TestUpdateModel_DoesNotRename(t *testing.T) {
	fb := &fakeBackend{models: []backend.Model{{ID: 1, ModelName: "gpt-4", Description: "old"}}}
	c, _ := newTestController(t, fb)

	form, _, err := c.EditModel(context.Background(), "gpt-4")
	require.NoError(t, err)
	require.NotNil(t, form)
	assert.Equal(t, "old", form.Description)

	form.Description = "new"
	out, err := c.UpdateModel(context.Background(), *form)
	require.NoError(t, err)
	assert.True(t, out.CloseModal)
	assert.Empty(t, fb.lastModelIn.ModelName)
	assert.Equal(t, "new", fb.lastModelIn.Description)
}

func TestDeleteModel_RequiresConfirmation(t *testing.T) {
	fb := &fakeBackend{}
	c, _ := newTestController(t, fb)
	_, err := c.DeleteModel(context.Background(), "gpt-4", false)
	require.NoError(t, err)
	assert.Empty(t, fb.Calls())
}

func TestRefreshModels(t *testing.T) {
	fb := &fakeBackend{chatModels: []string{"a", "b"}}
	c, _ := newTestController(t, fb)
	out, err := c.RefreshModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Model list refreshed (2 models)", out.Toast.Message)
	assert.ElementsMatch(t, []string{reloadModels, reloadChatModels}, out.Reload)
}

func TestLoadChatModels_Selection(t *testing.T) {
	fb := &fakeBackend{chatModels: []string{"gpt-3.5", "gpt-4"}}
	c, _ := newTestController(t, fb)

	v, err := c.LoadChatModels(context.Background(), "gpt-4")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4", v.Selected)

	v, err = c.LoadChatModels(context.Background(), "retired")
	require.NoError(t, err)
	assert.Equal(t, "gpt-3.5", v.Selected)
}

func TestRefreshChatModels(t *testing.T) {
	fb := &fakeBackend{chatModels: []string{"gpt-3.5", "gpt-4"}}
	c, _ := newTestController(t, fb)

	v, out, err := c.RefreshChatModels(context.Background(), "gpt-4")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4", v.Selected)
	assert.Equal(t, LevelSuccess, out.Toast.Level)
	assert.Equal(t, []string{"ChatModels(refresh)"}, fb.Calls())

	fb.chatModels = nil
	_, out, err = c.RefreshChatModels(context.Background(), "gpt-4")
	require.NoError(t, err)
	assert.Equal(t, LevelInfo, out.Toast.Level)
}

func TestSendMessage(t *testing.T) {
	fb := &fakeBackend{
		chatReply: "Hi there!",
		history:   []backend.ChatRecord{{ID: 1, Model: "gpt-4", Request: `{"model":"gpt-4","messages":[{"role":"user","content":"hello"}]}`}},
	}
	c, rec := newTestController(t, fb)

	turn, out, err := c.SendMessage(context.Background(), "gpt-4", "hello")
	require.NoError(t, err)
	require.NotNil(t, turn)
	assert.Equal(t, RoleUser, turn.User.Role)
	assert.Equal(t, "hello", turn.User.Content)
	assert.Equal(t, RoleAssistant, turn.Reply.Role)
	assert.Equal(t, "Hi there!", turn.Reply.Content)
	assert.Equal(t, int64(12), turn.Tokens)
	require.NotNil(t, turn.History)
	require.Len(t, turn.History.Items, 1)
	assert.Equal(t, "hello", turn.History.Items[0].Preview)
	assert.Equal(t, []string{reloadHistory}, out.Reload)

	assert.Equal(t, []string{"Chat", "ChatHistory"}, fb.Calls())
	assert.Equal(t, "gpt-4", fb.lastChat.Model)
	assert.Equal(t, []backend.Message{{Role: "user", Content: "hello"}}, fb.lastChat.Messages)

	transcript := c.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, "hello", transcript[0].Content)
	assert.Equal(t, "Hi there!", transcript[1].Content)
	assert.Equal(t, loggedAction{"chat.send", "gpt-4", audit.OutcomeOK, ""}, rec.last())
}

func TestSendMessage_Validation(t *testing.T) {
	fb := &fakeBackend{}
	c, _ := newTestController(t, fb)

	turn, out, err := c.SendMessage(context.Background(), "", "hello")
	require.NoError(t, err)
	assert.Nil(t, turn)
	assert.Equal(t, "Please select a model", out.Toast.Message)

	turn, out, err = c.SendMessage(context.Background(), "gpt-4", "   ")
	require.NoError(t, err)
	assert.Nil(t, turn)
	assert.Equal(t, "Please enter a message", out.Toast.Message)

	assert.Empty(t, fb.Calls())
	assert.Empty(t, c.Transcript())
}

func TestSendMessage_ErrorReplacesPending(t *testing.T) {
	fb := &fakeBackend{chatErr: &backend.APIError{StatusCode: 502, Message: "no available key"}}
	c, _ := newTestController(t, fb)

	turn, _, err := c.SendMessage(context.Background(), "gpt-4", "hello")
	require.NoError(t, err)
	assert.Equal(t, RoleError, turn.Reply.Role)
	assert.Equal(t, "Error: no available key", turn.Reply.Content)

	transcript := c.Transcript()
	require.Len(t, transcript, 2)
	for _, b := range transcript {
		assert.NotEqual(t, RolePending, b.Role)
	}
}

func TestBeginCompleteMessage(t *testing.T) {
	fb := &fakeBackend{chatReply: "pong"}
	c, _ := newTestController(t, fb)

	pm, _ := c.BeginMessage("gpt-4", "ping")
	require.NotNil(t, pm)
	transcript := c.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, RolePending, transcript[1].Role)
	assert.Empty(t, fb.Calls(), "begin must not call the backend")

	turn, err := c.CompleteMessage(context.Background(), pm.Pending.ID)
	require.NoError(t, err)
	assert.Equal(t, pm.Pending.ID, turn.Reply.ID)
	assert.Equal(t, "ping", turn.User.Content)

	_, err = c.CompleteMessage(context.Background(), pm.Pending.ID)
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestShowChatHistory(t *testing.T) {
	fb := &fakeBackend{history: []backend.ChatRecord{
		{ID: 1, Model: "gpt-4", Timestamp: "2024-01-02T10:00:00",
			Request:  `{"model":"gpt-4","messages":[{"role":"user","content":"hi"}]}`,
			Response: `{"choices":[{"message":{"role":"assistant","content":"hello!"}}]}`},
		{ID: 2, Model: "gpt-4", Request: `not json`},
		{ID: 3, Model: "gpt-4", Request: `{"messages":[{"role":"user","content":"unanswered"}]}`},
	}}
	c, _ := newTestController(t, fb)
	_, err := c.LoadChatHistory(context.Background())
	require.NoError(t, err)

	v := c.ShowChatHistory(1)
	assert.Empty(t, v.Err)
	require.Len(t, v.Bubbles, 2)
	assert.Equal(t, "hi", v.Bubbles[0].Content)
	assert.Equal(t, RoleAssistant, v.Bubbles[1].Role)
	assert.Equal(t, "hello!", v.Bubbles[1].Content)
	assert.Len(t, c.Transcript(), 2)

	v = c.ShowChatHistory(2)
	assert.Equal(t, "Unable to parse chat history", v.Err)
	assert.Empty(t, c.Transcript())

	v = c.ShowChatHistory(3)
	require.Len(t, v.Bubbles, 1)

	v = c.ShowChatHistory(99)
	assert.Equal(t, "Chat record not found", v.Err)
}

func TestCheckServiceStatus(t *testing.T) {
	tests := []struct {
		name      string
		health    *backend.Health
		err       error
		wantText  string
		wantColor string
	}{
		{"healthy", &backend.Health{Status: "healthy"}, nil, "Service running", "success"},
		{"degraded", &backend.Health{Status: "degraded"}, nil, "Service abnormal", "warning"},
		{"down", nil, errors.New("dial tcp: connection refused"), "Connection failed", "danger"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &chartEvents{}
			c := NewController(Options{Backend: &fakeBackend{health: tt.health, healthErr: tt.err}, Observer: obs})
			v := c.CheckServiceStatus(context.Background())
			assert.Equal(t, tt.wantText, v.Text)
			assert.Equal(t, tt.wantColor, v.Color)
			require.Len(t, obs.healthy, 1)
			assert.Equal(t, tt.wantColor == "success", obs.healthy[0])
		})
	}
}

func TestLogoutDisposesCharts(t *testing.T) {
	fb := &fakeBackend{overview: &backend.Overview{ModelUsage: []backend.ModelUsage{{ModelName: "m", TotalUsage: 1}}}}
	c, rec := newTestController(t, fb)
	_, err := c.LoadDashboard(context.Background())
	require.NoError(t, err)
	_, ok := c.ChartSVG(ChartModelUsage)
	require.True(t, ok)

	c.Logout(context.Background())
	_, ok = c.ChartSVG(ChartModelUsage)
	assert.False(t, ok)
	assert.Equal(t, "logout", rec.last().action)
}
