// Package tui is the terminal chat tester: the console's chat page rendered
// with bubbletea for use over SSH or without a browser.
package tui

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/keydeck/keydeck/internal/backend"
	"github.com/keydeck/keydeck/internal/console"
)

// Chat is the part of the console controller the tester drives.
type Chat interface {
	LoadChatModels(ctx context.Context, selected string) (*console.ChatModelsView, error)
	SendMessage(ctx context.Context, model, input string) (*console.ChatTurn, console.Feedback, error)
}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#14b8a6"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0d6efd"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#198754"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc3545"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffc107"))
)

type modelsMsg struct {
	view *console.ChatModelsView
	err  error
}

type replyMsg struct {
	turn *console.ChatTurn
	fb   console.Feedback
	err  error
}

// Model is the bubbletea model of the chat tester.
type Model struct {
	ctx  context.Context
	chat Chat

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	models   []string
	selected int
	bubbles  []console.Bubble
	waiting  bool
	status   string
	expired  bool

	width, height int
}

// New creates the chat tester. model preselects a model when offered.
func New(ctx context.Context, chat Chat, model string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a message, Enter to send"
	ti.CharLimit = 8192
	ti.Focus()

	vp := viewport.New(80, 20)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{ctx: ctx, chat: chat, input: ti, viewport: vp, spinner: sp}
	if model != "" {
		m.models = []string{model}
	}
	return m
}

// Init loads the model list.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.loadModels())
}

func (m Model) loadModels() tea.Cmd {
	selected := m.Selected()
	return func() tea.Msg {
		v, err := m.chat.LoadChatModels(m.ctx, selected)
		return modelsMsg{view: v, err: err}
	}
}

func (m Model) send(model, text string) tea.Cmd {
	return func() tea.Msg {
		turn, fb, err := m.chat.SendMessage(m.ctx, model, text)
		return replyMsg{turn: turn, fb: fb, err: err}
	}
}

// Selected returns the chosen model name, or "" when none is offered.
func (m Model) Selected() string {
	if m.selected < 0 || m.selected >= len(m.models) {
		return ""
	}
	return m.models[m.selected]
}

// Bubbles returns the transcript shown.
func (m Model) Bubbles() []console.Bubble { return m.bubbles }

// Status returns the status line text.
func (m Model) Status() string { return m.status }

// Update handles input and backend replies.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-5, 1)
		m.input.Width = max(msg.Width-4, 10)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab":
			if len(m.models) > 0 {
				m.selected = (m.selected + 1) % len(m.models)
				m.status = "Model: " + m.Selected()
			}
			return m, nil
		case "ctrl+r":
			m.status = "Loading models..."
			return m, m.loadModels()
		case "enter":
			return m.submit()
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case modelsMsg:
		switch {
		case errors.Is(msg.err, backend.ErrUnauthorized):
			return m.sessionExpired()
		case msg.err != nil:
			m.status = "Failed to load models: " + backend.ErrorMessage(msg.err)
		case msg.view.Err != "":
			m.status = msg.view.Err
		default:
			m.models = msg.view.Models
			m.selected = 0
			for i, name := range m.models {
				if name == msg.view.Selected {
					m.selected = i
				}
			}
			if len(m.models) == 0 {
				m.status = "No chat models available"
			} else {
				m.status = "Model: " + m.Selected()
			}
		}
		return m, nil

	case replyMsg:
		m.waiting = false
		// drop the local pending line
		if n := len(m.bubbles); n > 0 && m.bubbles[n-1].Role == console.RolePending {
			m.bubbles = m.bubbles[:n-1]
		}
		switch {
		case errors.Is(msg.err, backend.ErrUnauthorized):
			return m.sessionExpired()
		case msg.err != nil:
			m.bubbles = append(m.bubbles, console.Bubble{Role: console.RoleError, Content: "Error: " + backend.ErrorMessage(msg.err)})
		case msg.turn == nil:
			if msg.fb.Toast != nil {
				m.status = msg.fb.Toast.Message
			}
		default:
			m.bubbles = append(m.bubbles, msg.turn.Reply)
			if msg.turn.Tokens > 0 {
				m.status = "Model: " + m.Selected() + " · " + strconv.FormatInt(msg.turn.Tokens, 10) + " tokens"
			}
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if m.waiting {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.waiting || m.expired {
		return m, nil
	}
	text := strings.TrimSpace(m.input.Value())
	model := m.Selected()
	if model == "" {
		m.status = "Please select a model"
		return m, nil
	}
	if text == "" {
		m.status = "Please enter a message"
		return m, nil
	}
	m.input.Reset()
	m.waiting = true
	m.bubbles = append(m.bubbles,
		console.Bubble{Role: console.RoleUser, Content: text},
		console.Bubble{Role: console.RolePending, Content: "Thinking..."},
	)
	m.refresh()
	return m, tea.Batch(m.send(model, text), m.spinner.Tick)
}

func (m Model) sessionExpired() (tea.Model, tea.Cmd) {
	m.expired = true
	m.waiting = false
	m.status = "Backend session expired. Restart to log in again."
	m.refresh()
	return m, nil
}

func (m *Model) refresh() {
	m.viewport.SetContent(renderTranscript(m.bubbles, m.viewport.Width))
	m.viewport.GotoBottom()
}

func renderTranscript(bubbles []console.Bubble, width int) string {
	if len(bubbles) == 0 {
		return dimStyle.Render("No messages yet.")
	}
	wrap := lipgloss.NewStyle()
	if width > 4 {
		wrap = wrap.Width(width - 2)
	}
	var b strings.Builder
	for i, msg := range bubbles {
		if i > 0 {
			b.WriteString("\n")
		}
		switch msg.Role {
		case console.RoleUser:
			b.WriteString(userStyle.Render("you") + "\n")
			b.WriteString(wrap.Render(msg.Content))
		case console.RoleAssistant:
			b.WriteString(assistantStyle.Render("assistant") + "\n")
			b.WriteString(wrap.Render(msg.Content))
		case console.RoleError:
			b.WriteString(errorStyle.Render(msg.Content))
		case console.RolePending:
			b.WriteString(dimStyle.Render(msg.Content))
		default:
			b.WriteString(dimStyle.Render(msg.Role) + "\n")
			b.WriteString(wrap.Render(msg.Content))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// View renders the tester.
func (m Model) View() string {
	header := titleStyle.Render("keydeck chat") + dimStyle.Render("  tab: model · ctrl+r: reload models · esc: quit")

	var footer string
	switch {
	case m.waiting:
		footer = m.spinner.View() + " Thinking..."
	case m.expired:
		footer = errorStyle.Render(m.status)
	case strings.HasPrefix(m.status, "Please"):
		footer = warnStyle.Render(m.status)
	default:
		footer = dimStyle.Render(m.status)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), footer, m.input.View())
}

// Run starts the tester on the terminal and blocks until the user quits.
func Run(ctx context.Context, chat Chat, model string) error {
	p := tea.NewProgram(New(ctx, chat, model), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
