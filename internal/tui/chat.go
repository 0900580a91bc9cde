package tui

import (
	"context"
	"fmt"
	"strings"

	"storefront-chat/internal/vlist"
	"storefront-chat/internal/widget"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

const (
	messageRowHeight = 2
	// header, typing line, notice, input, status bar
	chatChromeHeight = 5
	maxDraftLength   = 4000
)

// Widget is the part of widget.Controller the chat view drives.
type Widget interface {
	Snapshot() widget.Snapshot
	Changes() <-chan struct{}
	Open(ctx context.Context) error
	Toggle(ctx context.Context) error
	Minimize()
	DismissNotice()
	TakeDraft() string
	Typing()
	Send(ctx context.Context, content string) (widget.Message, error)
	Retry(ctx context.Context, tempID string) error
}

var _ Widget = (*widget.Controller)(nil)

// ChatModel renders the customer's chat widget: a launcher while closed, the transcript
// and composer while open.
type ChatModel struct {
	ctx    context.Context
	widget Widget
	keys   KeyMap
	title  string

	input textinput.Model
	list  *vlist.Engine[widget.Message]
	snap  widget.Snapshot

	width  int
	height int
}

// NewChatModel builds the view. Zero fields in list fall back to two-line rows with the
// message overscan.
func NewChatModel(ctx context.Context, w Widget, list vlist.Config, backend vlist.Backend, title string) ChatModel {
	ti := textinput.New()
	ti.Placeholder = "Type a message (enter to send)"
	ti.CharLimit = maxDraftLength
	ti.Prompt = "> "
	ti.Focus()

	if list.ItemHeight < messageRowHeight {
		list.ItemHeight = messageRowHeight
	}
	if list.Overscan <= 0 {
		list.Overscan = vlist.MessageOverscan
	}
	engine := vlist.New(list, renderMessage, backend)
	engine.Empty = "Say hello. A support agent will reply here."
	engine.SetSize(60, 20-chatChromeHeight)
	engine.ScrollToBottom()

	if title == "" {
		title = "Support"
	}
	return ChatModel{
		ctx:    ctx,
		widget: w,
		keys:   DefaultKeyMap,
		title:  title,
		input:  ti,
		list:   engine,
		snap:   w.Snapshot(),
		width:  60,
		height: 20,
	}
}

func (m ChatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForChange(m.widget.Changes()))
}

func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(10, msg.Width-4)
		m.sync()
		return m, nil

	case changedMsg:
		m.sync()
		return m, waitForChange(m.widget.Changes())

	case actionDoneMsg:
		if msg.action == "send" && msg.err != nil && m.input.Value() == "" {
			if draft := m.widget.TakeDraft(); draft != "" {
				m.input.SetValue(draft)
				m.input.CursorEnd()
			}
		}
		m.sync()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m ChatModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Toggle):
		if m.snap.Minimized {
			return m, m.run("open", m.widget.Open)
		}
		return m, m.run("toggle", m.widget.Toggle)

	case key.Matches(msg, m.keys.Dismiss):
		m.widget.DismissNotice()
		return m, nil
	}

	if !m.snap.Phase.Open() || m.snap.Minimized {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Minimize):
		m.widget.Minimize()
		return m, nil

	case key.Matches(msg, m.keys.Send):
		content := strings.TrimSpace(m.input.Value())
		if content == "" {
			return m, nil
		}
		m.input.Reset()
		return m, m.run("send", func(ctx context.Context) error {
			_, err := m.widget.Send(ctx, content)
			return err
		})

	case key.Matches(msg, m.keys.Retry):
		if m.snap.Notice == nil || m.snap.Notice.RetryID == "" {
			return m, nil
		}
		id := m.snap.Notice.RetryID
		return m, m.run("retry", func(ctx context.Context) error {
			return m.widget.Retry(ctx, id)
		})

	case key.Matches(msg, m.keys.Up):
		m.list.ScrollBy(-1)
		return m, nil
	case key.Matches(msg, m.keys.Down):
		m.list.ScrollBy(1)
		return m, nil
	case key.Matches(msg, m.keys.PageUp):
		m.list.ScrollBy(-m.listHeight())
		return m, nil
	case key.Matches(msg, m.keys.PageDown):
		m.list.ScrollBy(m.listHeight())
		return m, nil
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() != before {
		m.widget.Typing()
	}
	return m, cmd
}

// run executes a blocking widget call off the update loop.
func (m ChatModel) run(action string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return actionDoneMsg{action: action, err: fn(ctx)}
	}
}

func (m *ChatModel) sync() {
	prev := m.snap.Notice
	m.snap = m.widget.Snapshot()
	if prev != nil && prev.RetryID != "" && m.snap.Notice == nil {
		m.dropDelivered(prev.RetryID)
	}
	m.list.SetSize(m.width, m.listHeight())
	m.list.SetItems(m.snap.Messages)
}

// dropDelivered clears input that was restored for a failed send once that message
// turned out to be delivered after all.
func (m *ChatModel) dropDelivered(tempID string) {
	for _, msg := range m.snap.Messages {
		if msg.ClientID == tempID && !msg.Pending() && strings.TrimSpace(m.input.Value()) == msg.Content {
			m.input.Reset()
			return
		}
	}
}

func (m ChatModel) listHeight() int {
	return max(1, m.height-chatChromeHeight)
}

func (m ChatModel) View() string {
	switch {
	case m.snap.Phase == widget.PhaseClosed:
		return m.launcherView()
	case m.snap.Phase == widget.PhaseOpening:
		return lipgloss.JoinVertical(lipgloss.Left,
			m.header(),
			DimStyle.Render("Connecting to support..."),
		)
	case m.snap.Minimized:
		return m.launcherView()
	}

	typing := ""
	if m.snap.RemoteTyping {
		typing = DimStyle.Render(m.agentName() + " is typing...")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.header(),
		m.list.View(),
		typing,
		m.noticeView(),
		m.input.View(),
		StatusBarStyle.Render(m.help()),
	)
}

func (m ChatModel) launcherView() string {
	label := "Chat with us"
	if m.snap.Minimized {
		label = m.title + " (minimized)"
	}
	line := TitleStyle.Render(label) + DimStyle.Render("  ctrl+o")
	if m.snap.Unread > 0 {
		line += " " + BadgeStyle.Render(fmt.Sprintf("%d unread", m.snap.Unread))
	}
	return lipgloss.JoinVertical(lipgloss.Left, line, m.noticeView())
}

func (m ChatModel) header() string {
	status := ""
	switch m.snap.Phase {
	case widget.PhaseNoSession:
		status = "Start a new conversation"
	case widget.PhasePending:
		status = "Waiting for an agent"
	case widget.PhaseActive:
		status = "Chatting with " + m.agentName()
	}
	if m.snap.Loading {
		status += " ..."
	}
	return TitleStyle.Render(m.title) + "  " + DimStyle.Render(status)
}

func (m ChatModel) noticeView() string {
	n := m.snap.Notice
	if n == nil {
		return ""
	}
	switch n.Kind {
	case widget.NoticeSendFailed:
		return ErrorStyle.Render(n.Message + " (ctrl+r to retry)")
	case widget.NoticeOffline:
		text := n.Message
		if text == "" {
			text = m.snap.Availability.Summary()
		}
		return WarningStyle.Render(text)
	case widget.NoticeLoginRequired, widget.NoticeSessionClosed:
		return WarningStyle.Render(n.Message)
	}
	return ErrorStyle.Render(n.Message)
}

func (m ChatModel) agentName() string {
	if m.snap.Session != nil && m.snap.Session.Assignee != "" {
		return m.snap.Session.Assignee
	}
	return "Support"
}

func (m ChatModel) help() string {
	return "enter send · ctrl+n minimize · ctrl+o close · ↑/↓ scroll · ctrl+c quit"
}

func renderMessage(msg widget.Message, _ int, _ bool, width int) []string {
	name := msg.SenderName
	style := CustomerStyle
	if msg.Sender == widget.SenderAgent {
		style = AgentStyle
		if name == "" {
			name = "Support"
		}
	} else if name == "" {
		name = "You"
	}

	meta := DimStyle.Render(" · " + msg.DisplayTime)
	if msg.Sender == widget.SenderCustomer {
		meta += " " + statusMark(msg.Status)
	}

	body := strings.ReplaceAll(msg.Content, "\n", " ")
	body = runewidth.Truncate(body, max(1, width-2), "…")
	return []string{style.Render(name) + meta, "  " + body}
}

func statusMark(s widget.MessageStatus) string {
	switch s {
	case widget.StatusSending:
		return DimStyle.Render("sending")
	case widget.StatusSent:
		return DimStyle.Render("✓")
	case widget.StatusDelivered:
		return DimStyle.Render("✓✓")
	case widget.StatusRead:
		return AgentStyle.Render("✓✓")
	case widget.StatusFailed:
		return ErrorStyle.Render("failed")
	}
	return ""
}
