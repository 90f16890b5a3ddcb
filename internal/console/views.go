package console

// Render snapshots produced by the controller. Err holds an inline failure
// message for the view's render target; a view with Err set has no rows.

// ChartRef points the page at a rendered chart. Version changes whenever the
// chart is replaced so the browser fetches the new image.
type ChartRef struct {
	Name    string
	Version uint64
	Empty   bool
	Err     string
}

// DashboardView is the dashboard page data.
type DashboardView struct {
	TotalKeys     int64
	ActiveKeys    int64
	TotalModels   int64
	TotalRequests int64
	DailyRequests int64
	DailyTokens   int64
	Recent        []RecentRow
	ModelChart    ChartRef
	KeyChart      ChartRef
	Err           string
}

// RecentRow is one row of the recent requests table.
type RecentRow struct {
	Time   string
	Model  string
	KeyID  int64
	Tokens int64
	OK     bool
}

// RecentColumns is the column count of the recent requests table.
const RecentColumns = 5

// KeyRow is one row of the keys table.
type KeyRow struct {
	ID          int64
	Name        string
	Masked      string
	Status      string
	StatusColor string
	UsageCount  int64
	LastUsed    string
}

// KeysView is the keys table.
type KeysView struct {
	Rows []KeyRow
	Err  string
}

// KeyColumns is the column count of the keys table.
const KeyColumns = 7

// ModelRow is one row of the models table.
type ModelRow struct {
	ID          int64
	Name        string
	Description string
	Created     string
	Updated     string
}

// ModelsView is the models table.
type ModelsView struct {
	Rows []ModelRow
	Err  string
}

// ModelColumns is the column count of the models table.
const ModelColumns = 6

// StatRow is one row of a per-model or per-key statistics table.
type StatRow struct {
	Name     string
	Usage    int64
	Tokens   int64
	Requests int64
}

// UsageView is the usage half of the stats page.
type UsageView struct {
	Period        string
	Periods       []string
	TotalUsage    int64
	TotalTokens   int64
	TotalRequests int64
	Models        []StatRow
	Keys          []StatRow
	ModelChart    ChartRef
	KeyChart      ChartRef
	Err           string
}

// HourlyView is the hourly trend half of the stats page.
type HourlyView struct {
	Chart ChartRef
	Err   string
}

// StatsView combines both stats loaders.
type StatsView struct {
	Usage  *UsageView
	Hourly *HourlyView
}

// ChatModelsView is the chat model select.
type ChatModelsView struct {
	Models   []string
	Selected string
	Err      string
}

// HistoryItem is one entry of the chat history list.
type HistoryItem struct {
	ID      int64
	Model   string
	Time    string
	Tokens  int64
	Preview string
}

// ChatHistoryView is the chat history list.
type ChatHistoryView struct {
	Items []HistoryItem
	Err   string
}

// Bubble roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleError     = "error"
	RolePending   = "pending"
)

// Bubble is one chat message as shown in the transcript.
type Bubble struct {
	ID      string
	Role    string
	Content string
	Time    string
}

// TranscriptView is the chat container content.
type TranscriptView struct {
	Bubbles []Bubble
	Err     string
}

// ChatView is the chat page.
type ChatView struct {
	Models     *ChatModelsView
	History    *ChatHistoryView
	Transcript []Bubble
}

// ChatTurn is the result of one sent message.
type ChatTurn struct {
	User    Bubble
	Reply   Bubble // RoleAssistant or RoleError
	Tokens  int64
	History *ChatHistoryView
}

// StatusView is the service status badge.
type StatusView struct {
	Text  string
	Color string
}

// KeyForm is the key modal.
type KeyForm struct {
	ID     int64
	Name   string
	Value  string
	Status string
}

// ModelForm is the model modal.
type ModelForm struct {
	Name         string
	Description  string
	Capabilities string
}
