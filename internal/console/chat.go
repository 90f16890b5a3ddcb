package console

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keydeck/keydeck/internal/backend"
	"github.com/keydeck/keydeck/internal/telemetry"
)

// ErrUnknownMessage is returned by CompleteMessage for an id that was never
// begun or was already completed.
var ErrUnknownMessage = errors.New("console: unknown pending message")

const (
	msgSelectModel  = "Please select a model"
	msgEnterMessage = "Please enter a message"
	previewRunes    = 40
)

// LoadChat loads the chat page: model select and history list, concurrently.
func (c *Controller) LoadChat(ctx context.Context, selected string) (*ChatView, error) {
	var (
		wg         sync.WaitGroup
		v          ChatView
		merr, herr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		v.Models, merr = c.LoadChatModels(ctx, selected)
	}()
	go func() {
		defer wg.Done()
		v.History, herr = c.LoadChatHistory(ctx)
	}()
	wg.Wait()
	if merr != nil {
		return nil, merr
	}
	if herr != nil {
		return nil, herr
	}
	v.Transcript = c.Transcript()
	return &v, nil
}

// LoadChatModels fetches the chat model list. selected stays selected when
// it is still offered, otherwise the first model is.
func (c *Controller) LoadChatModels(ctx context.Context, selected string) (*ChatModelsView, error) {
	ctx, span := telemetry.Start(ctx, "console.LoadChatModels")
	defer span.End()

	models, err := c.api.ChatModels(ctx, false)
	if err != nil {
		msg, err := fold(err)
		if err != nil {
			return nil, err
		}
		return &ChatModelsView{Err: "Failed to load models: " + msg}, nil
	}
	return chatModelsView(models, selected), nil
}

func chatModelsView(models []string, selected string) *ChatModelsView {
	v := &ChatModelsView{Models: models}
	for _, m := range models {
		if m == selected {
			v.Selected = selected
			return v
		}
	}
	if len(models) > 0 {
		v.Selected = models[0]
	}
	return v
}

// RefreshChatModels refreshes the model list from upstream and reloads the
// select, keeping selected if it is still offered.
func (c *Controller) RefreshChatModels(ctx context.Context, selected string) (*ChatModelsView, Feedback, error) {
	ctx, span := telemetry.Start(ctx, "console.RefreshChatModels")
	defer span.End()

	start := time.Now()
	models, err := c.api.ChatModels(ctx, true)
	c.record("model.refresh", "chat", start, err)
	if err != nil {
		fb, err := failure("Failed to refresh chat models", err)
		return nil, fb, err
	}
	v := chatModelsView(models, selected)
	if len(models) == 0 {
		return v, Feedback{Toast: info("No chat models available")}, nil
	}
	return v, Feedback{Toast: success("Chat model list refreshed"), Reload: []string{reloadModels}}, nil
}

// LoadChatHistory fetches the most recent chats and replaces the cache.
func (c *Controller) LoadChatHistory(ctx context.Context) (*ChatHistoryView, error) {
	ctx, span := telemetry.Start(ctx, "console.LoadChatHistory")
	defer span.End()

	records, err := c.api.ChatHistory(ctx, c.settings().HistoryLimit)
	if err != nil {
		msg, err := fold(err)
		if err != nil {
			return nil, err
		}
		return &ChatHistoryView{Err: "Failed to load history: " + msg}, nil
	}

	c.mu.Lock()
	c.history = records
	c.mu.Unlock()

	v := &ChatHistoryView{Items: make([]HistoryItem, 0, len(records))}
	for _, r := range records {
		v.Items = append(v.Items, HistoryItem{
			ID:      r.ID,
			Model:   r.Model,
			Time:    formatDate(r.Timestamp),
			Tokens:  r.TokensUsed.Int(),
			Preview: preview(firstUserMessage(r.Request), previewRunes),
		})
	}
	return v, nil
}

func firstUserMessage(raw string) string {
	var req backend.ChatRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return ""
	}
	for _, m := range req.Messages {
		if m.Role == RoleUser {
			return m.Content
		}
	}
	return ""
}

// ShowChatHistory replaces the transcript with a cached history record.
// A record whose request or response cannot be parsed yields an inline error
// and leaves the transcript empty.
func (c *Controller) ShowChatHistory(id int64) *TranscriptView {
	c.mu.Lock()
	defer c.mu.Unlock()

	var rec *backend.ChatRecord
	for i := range c.history {
		if c.history[i].ID == id {
			rec = &c.history[i]
			break
		}
	}
	if rec == nil {
		return &TranscriptView{Err: "Chat record not found"}
	}

	bubbles, err := transcriptOf(rec)
	if err != nil {
		c.transcript = nil
		return &TranscriptView{Err: "Unable to parse chat history"}
	}
	c.transcript = bubbles
	return &TranscriptView{Bubbles: append([]Bubble(nil), bubbles...)}
}

func transcriptOf(rec *backend.ChatRecord) ([]Bubble, error) {
	var req backend.ChatRequest
	if err := json.Unmarshal([]byte(rec.Request), &req); err != nil {
		return nil, err
	}
	at := formatDate(rec.Timestamp)
	var out []Bubble
	for _, m := range req.Messages {
		out = append(out, Bubble{ID: uuid.NewString(), Role: m.Role, Content: m.Content, Time: at})
	}
	if strings.TrimSpace(rec.Response) == "" {
		return out, nil
	}
	var resp backend.ChatResponse
	if err := json.Unmarshal([]byte(rec.Response), &resp); err != nil {
		return nil, err
	}
	if content := resp.Content(); content != "" {
		out = append(out, Bubble{ID: uuid.NewString(), Role: RoleAssistant, Content: content, Time: at})
	}
	return out, nil
}

// PendingMessage is the optimistic part of a send: the user's bubble and the
// placeholder that CompleteMessage later replaces.
type PendingMessage struct {
	User    Bubble
	Pending Bubble
}

// BeginMessage validates a chat message and appends the user and pending
// bubbles to the transcript. A nil result means validation failed and the
// feedback carries the warning.
func (c *Controller) BeginMessage(model, input string) (*PendingMessage, Feedback) {
	model, input = strings.TrimSpace(model), strings.TrimSpace(input)
	if model == "" {
		c.rejected("chat.send", "", msgSelectModel)
		return nil, Feedback{Toast: warning(msgSelectModel)}
	}
	if input == "" {
		c.rejected("chat.send", model, msgEnterMessage)
		return nil, Feedback{Toast: warning(msgEnterMessage)}
	}

	now := time.Now().Format("2006-01-02 15:04:05")
	pm := &PendingMessage{
		User:    Bubble{ID: uuid.NewString(), Role: RoleUser, Content: input, Time: now},
		Pending: Bubble{ID: uuid.NewString(), Role: RolePending, Content: "Thinking..."},
	}

	c.mu.Lock()
	c.transcript = append(c.transcript, pm.User, pm.Pending)
	c.pending[pm.Pending.ID] = pendingMessage{model: model, input: input}
	c.mu.Unlock()
	return pm, Feedback{}
}

// CompleteMessage sends the message behind a pending bubble and replaces the
// bubble with the reply, or with a single error line. ErrUnauthorized is the
// only error besides an unknown id.
func (c *Controller) CompleteMessage(ctx context.Context, id string) (*ChatTurn, error) {
	ctx, span := telemetry.Start(ctx, "console.CompleteMessage")
	defer span.End()

	c.mu.Lock()
	pm, ok := c.pending[id]
	delete(c.pending, id)
	var user Bubble
	for i, b := range c.transcript {
		if b.ID == id && i > 0 {
			user = c.transcript[i-1]
		}
	}
	c.mu.Unlock()
	if !ok {
		return nil, ErrUnknownMessage
	}

	start := time.Now()
	resp, err := c.api.Chat(ctx, backend.ChatRequest{
		Model:    pm.model,
		Messages: []backend.Message{{Role: RoleUser, Content: pm.input}},
	})
	c.record("chat.send", pm.model, start, err)

	turn := &ChatTurn{User: user}
	now := time.Now().Format("2006-01-02 15:04:05")
	if err != nil {
		msg, err := fold(err)
		if err != nil {
			c.dropBubble(id)
			return nil, err
		}
		turn.Reply = Bubble{ID: id, Role: RoleError, Content: "Error: " + msg, Time: now}
	} else {
		turn.Reply = Bubble{ID: id, Role: RoleAssistant, Content: resp.Content(), Time: now}
		turn.Tokens = resp.Usage.TotalTokens.Int()
	}
	c.replaceBubble(turn.Reply)
	return turn, nil
}

func (c *Controller) replaceBubble(b Bubble) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.transcript {
		if c.transcript[i].ID == b.ID {
			c.transcript[i] = b
			return
		}
	}
	c.transcript = append(c.transcript, b)
}

func (c *Controller) dropBubble(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.transcript {
		if c.transcript[i].ID == id {
			c.transcript = append(c.transcript[:i], c.transcript[i+1:]...)
			return
		}
	}
}

// SendMessage runs a whole chat turn: optimistic bubbles, the request, the
// reply and a history refresh. A nil turn with a warning means validation
// failed and nothing was sent.
func (c *Controller) SendMessage(ctx context.Context, model, input string) (*ChatTurn, Feedback, error) {
	pm, fb := c.BeginMessage(model, input)
	if pm == nil {
		return nil, fb, nil
	}
	turn, err := c.CompleteMessage(ctx, pm.Pending.ID)
	if err != nil {
		return nil, Feedback{}, err
	}
	turn.History, err = c.LoadChatHistory(ctx)
	if err != nil {
		return nil, Feedback{}, err
	}
	return turn, Feedback{Reload: []string{reloadHistory}}, nil
}

// Transcript returns a copy of the current chat transcript.
func (c *Controller) Transcript() []Bubble {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Bubble(nil), c.transcript...)
}

// ClearTranscript empties the chat container.
func (c *Controller) ClearTranscript() {
	c.mu.Lock()
	c.transcript = nil
	c.mu.Unlock()
}
