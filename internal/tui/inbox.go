package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"storefront-chat/internal/dto"
	"storefront-chat/internal/vlist"
	"storefront-chat/internal/widget"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/rs/zerolog"
)

const (
	conversationRowHeight = 2
	// title, status bar
	inboxChromeHeight = 2
)

// SessionLister is the REST call the inbox refreshes from.
type SessionLister interface {
	ListInbox(ctx context.Context) ([]dto.Session, error)
}

// InboxModel is the agent conversation list. Live chat_updated and new_message events
// keep it current between refreshes.
type InboxModel struct {
	ctx     context.Context
	source  SessionLister
	events  <-chan dto.Envelope
	keys    KeyMap
	log     zerolog.Logger
	timeout time.Duration

	list    *vlist.Engine[widget.Session]
	items   []widget.Session
	loading bool
	err     error

	width  int
	height int
}

func NewInboxModel(ctx context.Context, source SessionLister, events <-chan dto.Envelope, list vlist.Config, backend vlist.Backend, log zerolog.Logger) InboxModel {
	if list.ItemHeight < conversationRowHeight {
		list.ItemHeight = conversationRowHeight
	}
	if list.Overscan <= 0 {
		list.Overscan = vlist.ConversationOverscan
	}
	engine := vlist.New(list, renderSession, backend)
	engine.Empty = "No conversations yet."
	engine.SetSize(80, 24-inboxChromeHeight)
	return InboxModel{
		ctx:     ctx,
		source:  source,
		events:  events,
		keys:    DefaultKeyMap,
		log:     log.With().Str("component", "inbox").Logger(),
		timeout: 10 * time.Second,
		list:    engine,
		loading: true,
		width:   80,
		height:  24,
	}
}

func (m InboxModel) Init() tea.Cmd {
	return tea.Batch(m.load(), waitForEnvelope(m.events))
}

func (m InboxModel) load() tea.Cmd {
	ctx, source, timeout := m.ctx, m.source, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		items, err := source.ListInbox(ctx)
		if err != nil {
			return sessionsLoadedMsg{err: err}
		}
		sessions := make([]widget.Session, 0, len(items))
		for _, s := range items {
			sessions = append(sessions, widget.NormalizeSession(s))
		}
		return sessionsLoadedMsg{sessions: sessions}
	}
}

func (m InboxModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(m.width, m.listHeight())
		return m, nil

	case sessionsLoadedMsg:
		m.loading = false
		m.err = msg.err
		if msg.err != nil {
			m.log.Warn().Err(msg.err).Msg("failed to load conversations")
			return m, nil
		}
		m.items = msg.sessions
		m.apply()
		return m, nil

	case envelopeMsg:
		cmd := m.handleEnvelope(msg.env)
		return m, tea.Batch(cmd, waitForEnvelope(m.events))

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Refresh):
			m.loading = true
			return m, m.load()
		case key.Matches(msg, m.keys.Up):
			m.list.MoveSelection(-1)
		case key.Matches(msg, m.keys.Down):
			m.list.MoveSelection(1)
		case key.Matches(msg, m.keys.PageUp):
			m.list.MoveSelection(-m.pageRows())
		case key.Matches(msg, m.keys.PageDown):
			m.list.MoveSelection(m.pageRows())
		}
	}
	return m, nil
}

// handleEnvelope patches the list in place. A message for an unknown conversation
// triggers a reload since the event carries no session detail.
func (m *InboxModel) handleEnvelope(env dto.Envelope) tea.Cmd {
	switch env.Event {
	case dto.EventChatUpdated:
		var s dto.Session
		if err := json.Unmarshal(env.Data, &s); err != nil {
			m.log.Debug().Err(err).Msg("bad chat_updated payload")
			return nil
		}
		m.upsert(widget.NormalizeSession(s))

	case dto.EventNewMessage:
		var raw dto.Message
		if err := json.Unmarshal(env.Data, &raw); err != nil {
			m.log.Debug().Err(err).Msg("bad new_message payload")
			return nil
		}
		msg := widget.NormalizeMessage(raw, time.UTC)
		for i := range m.items {
			if m.items[i].ID == env.ChatID {
				if msg.Timestamp.After(m.items[i].LastActivity) {
					m.items[i].LastActivity = msg.Timestamp
				}
				m.apply()
				return nil
			}
		}
		return m.load()
	}
	return nil
}

func (m *InboxModel) upsert(s widget.Session) {
	for i := range m.items {
		if m.items[i].ID == s.ID {
			m.items[i] = s
			m.apply()
			return
		}
	}
	m.items = append(m.items, s)
	m.apply()
}

// apply re-sorts by recent activity and keeps the selection on the same conversation.
func (m *InboxModel) apply() {
	selectedID := ""
	if s, _, ok := m.list.Selected(); ok {
		selectedID = s.ID
	}

	visible := make([]widget.Session, 0, len(m.items))
	for _, s := range m.items {
		if !s.Deleted {
			visible = append(visible, s)
		}
	}
	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].LastActivity.After(visible[j].LastActivity)
	})
	m.items = visible
	m.list.SetSize(m.width, m.listHeight())
	m.list.SetItems(visible)

	for i, s := range visible {
		if s.ID == selectedID {
			m.list.Select(i)
			break
		}
	}
}

// Sessions returns the conversations in display order.
func (m InboxModel) Sessions() []widget.Session {
	return append([]widget.Session(nil), m.items...)
}

func (m InboxModel) pageRows() int {
	return max(1, m.listHeight()/m.list.Config().ItemHeight)
}

func (m InboxModel) listHeight() int {
	return max(1, m.height-inboxChromeHeight)
}

func (m InboxModel) View() string {
	title := TitleStyle.Render(fmt.Sprintf("Conversations (%d)", len(m.items)))
	switch {
	case m.loading:
		title += DimStyle.Render("  loading...")
	case m.err != nil:
		title += "  " + ErrorStyle.Render(m.err.Error())
	}

	status := "↑/↓ select · ctrl+l refresh · ctrl+c quit"
	if s, _, ok := m.list.Selected(); ok {
		status = s.ID + " · " + status
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		m.list.View(),
		StatusBarStyle.Render(status),
	)
}

func renderSession(s widget.Session, _ int, selected bool, width int) []string {
	name := s.Customer.Name
	if name == "" {
		name = s.Customer.Email
	}
	if name == "" {
		name = s.Customer.UserID
	}

	cursor := "  "
	nameStyle := lipgloss.NewStyle().Bold(true)
	if selected {
		cursor = "> "
		nameStyle = SelectedStyle
	}

	when := ""
	if !s.LastActivity.IsZero() {
		when = s.LastActivity.Local().Format("Jan 2 15:04")
	}
	name = runewidth.Truncate(name, max(1, width-30), "…")
	first := cursor + statusLabel(s.Status) + " " + nameStyle.Render(name) + "  " + DimStyle.Render(when)

	assignee := "unassigned"
	if s.Assignee != "" {
		assignee = "assigned to " + s.Assignee
	}
	return []string{first, "    " + DimStyle.Render(assignee)}
}

func statusLabel(s widget.SessionStatus) string {
	switch s {
	case widget.SessionActive:
		return AgentStyle.Render("active ")
	case widget.SessionPending:
		return WarningStyle.Render("pending")
	}
	return DimStyle.Render("closed ")
}
