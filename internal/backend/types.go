package backend

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Count is an integer counter that tolerates the backend's loose number
// encoding: floats, quoted numbers and null all decode.
type Count int64

// UnmarshalJSON implements json.Unmarshaler.
func (c *Count) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*c = 0
			return nil
		}
		b = []byte(s)
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*c = Count(math.Round(f))
	return nil
}

// Int returns c as an int64.
func (c Count) Int() int64 { return int64(c) }

// Key statuses.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusError    = "error"
)

// Key is an upstream API key managed by the backend.
type Key struct {
	ID         int64  `json:"id"`
	KeyValue   string `json:"key_value"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
	LastUsed   string `json:"last_used"`
	UsageCount Count  `json:"usage_count"`
}

// KeyInput is the body of key create and update calls.
type KeyInput struct {
	Name     string `json:"name"`
	KeyValue string `json:"key_value"`
	Status   string `json:"status,omitempty"`
}

// KeyTestResult is the outcome of POST /api/keys/:id/test.
type KeyTestResult struct {
	Valid   bool            `json:"valid"`
	Message string          `json:"message"`
	KeyInfo json.RawMessage `json:"key_info,omitempty"`
}

// Model is a model name the backend routes.
type Model struct {
	ID           int64  `json:"id"`
	ModelName    string `json:"model_name"`
	Description  string `json:"description"`
	Capabilities string `json:"capabilities"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// ModelInput is the body of model create and update calls.
type ModelInput struct {
	ModelName    string `json:"model_name,omitempty"`
	Description  string `json:"description"`
	Capabilities string `json:"capabilities"`
}

// openAIModel is one entry of the OpenAI-style model list.
type openAIModel struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created Count  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// DatabaseInfo holds the overview counters.
type DatabaseInfo struct {
	KeysCount        Count `json:"keys_count"`
	ActiveKeysCount  Count `json:"active_keys_count"`
	ModelsCount      Count `json:"models_count"`
	UsageStatsCount  Count `json:"usage_stats_count"`
	ChatHistoryCount Count `json:"chat_history_count"`
	TotalUsageCount  Count `json:"total_usage_count"`
	TotalUsage       Count `json:"total_usage"`
}

// TotalRequests returns total_usage when present, otherwise total_usage_count.
func (d DatabaseInfo) TotalRequests() int64 {
	if d.TotalUsage != 0 {
		return d.TotalUsage.Int()
	}
	return d.TotalUsageCount.Int()
}

// ModelUsage is one model's share of total usage.
type ModelUsage struct {
	ModelName   string `json:"model_name"`
	TotalUsage  Count  `json:"total_usage"`
	TotalTokens Count  `json:"total_tokens"`
}

// KeyUsage is one key's usage summary.
type KeyUsage struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	UsageCount Count  `json:"usage_count"`
	LastUsed   string `json:"last_used"`
}

// PeriodUsage counts requests and tokens for a time window.
type PeriodUsage struct {
	RequestCount Count `json:"request_count"`
	TokensUsed   Count `json:"tokens_used"`
}

// Overview is the payload of GET /api/stats/overview.
type Overview struct {
	DatabaseInfo DatabaseInfo `json:"database_info"`
	ModelUsage   []ModelUsage `json:"model_usage"`
	KeyUsage     []KeyUsage   `json:"key_usage"`
	RecentChats  []ChatRecord `json:"recent_chats"`
	DailyUsage   PeriodUsage  `json:"daily_usage"`
	WeeklyUsage  PeriodUsage  `json:"weekly_usage"`
}

// UsageTotals is the total_usage block of the usage stats.
type UsageTotals struct {
	TotalUsage    Count `json:"total_usage"`
	TotalTokens   Count `json:"total_tokens"`
	TotalRequests Count `json:"total_requests"`
}

// ModelStat is one row of per-model statistics.
type ModelStat struct {
	ModelName    string `json:"model_name"`
	UsageCount   Count  `json:"usage_count"`
	TokensUsed   Count  `json:"tokens_used"`
	RequestCount Count  `json:"request_count"`
}

// KeyStat is one row of per-key statistics.
type KeyStat struct {
	KeyID        int64  `json:"key_id"`
	KeyName      string `json:"key_name"`
	UsageCount   Count  `json:"usage_count"`
	TokensUsed   Count  `json:"tokens_used"`
	RequestCount Count  `json:"request_count"`
}

// Usage is the payload of GET /api/stats/usage.
type Usage struct {
	TotalUsage UsageTotals     `json:"total_usage"`
	ModelStats []ModelStat     `json:"model_stats"`
	KeyStats   []KeyStat       `json:"key_stats"`
	TimeStats  json.RawMessage `json:"time_stats,omitempty"`
}

// HourlyUsage is one bucket of GET /api/stats/hourly. Hour is formatted
// "2006-01-02 15:00".
type HourlyUsage struct {
	Hour         string `json:"hour"`
	RequestCount Count  `json:"request_count"`
	TokensUsed   Count  `json:"tokens_used"`
}

// ChatRecord is a stored chat exchange. Request and Response hold the
// serialized JSON bodies; Response is empty when the call failed.
type ChatRecord struct {
	ID         int64  `json:"id"`
	KeyID      int64  `json:"key_id"`
	Model      string `json:"model"`
	Request    string `json:"request"`
	Response   string `json:"response"`
	Timestamp  string `json:"timestamp"`
	TokensUsed Count  `json:"tokens_used"`
}

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

// ChatResponse is the OpenAI-compatible completion returned by POST /api/chat.
type ChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int     `json:"index"`
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     Count `json:"prompt_tokens"`
		CompletionTokens Count `json:"completion_tokens"`
		TotalTokens      Count `json:"total_tokens"`
	} `json:"usage"`
}

// Content returns the first choice's message content.
func (r *ChatResponse) Content() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// Health is the payload of GET /health.
type Health struct {
	Status    string  `json:"status"`
	Message   string  `json:"message"`
	Timestamp string  `json:"timestamp"`
	Uptime    float64 `json:"uptime"`
}

// Healthy reports whether the backend declared itself healthy.
func (h *Health) Healthy() bool { return h != nil && h.Status == "healthy" }
