package tui

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront-chat/internal/dto"
	"storefront-chat/internal/vlist"
	"storefront-chat/internal/widget"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWidget struct {
	mu      sync.Mutex
	snap    widget.Snapshot
	changes chan struct{}
	draft   string
	sendErr error

	toggles int
	opens   int
	typing  int
	sent    []string
	retried []string
}

func newFakeWidget() *fakeWidget {
	return &fakeWidget{
		snap:    widget.Snapshot{Phase: widget.PhaseClosed},
		changes: make(chan struct{}, 1),
	}
}

func (f *fakeWidget) set(fn func(*widget.Snapshot)) {
	f.mu.Lock()
	fn(&f.snap)
	f.mu.Unlock()
}

func (f *fakeWidget) Snapshot() widget.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeWidget) Changes() <-chan struct{} { return f.changes }

func (f *fakeWidget) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	f.snap.Minimized = false
	return nil
}

func (f *fakeWidget) Toggle(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles++
	if f.snap.Phase == widget.PhaseClosed {
		f.snap.Phase = widget.PhaseNoSession
	} else {
		f.snap.Phase = widget.PhaseClosed
	}
	return nil
}

func (f *fakeWidget) Minimize() {
	f.set(func(s *widget.Snapshot) { s.Minimized = true })
}

func (f *fakeWidget) DismissNotice() {
	f.set(func(s *widget.Snapshot) { s.Notice = nil })
}

func (f *fakeWidget) TakeDraft() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.draft
	f.draft = ""
	return d
}

func (f *fakeWidget) Typing() {
	f.mu.Lock()
	f.typing++
	f.mu.Unlock()
}

func (f *fakeWidget) Send(ctx context.Context, content string) (widget.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, content)
	if f.sendErr != nil {
		f.draft = content
		f.snap.Notice = &widget.Notice{Kind: widget.NoticeSendFailed, Message: "Message not sent.", RetryID: "temp-1"}
		return widget.Message{}, f.sendErr
	}
	msg := widget.Message{ID: "m1", Content: content, Sender: widget.SenderCustomer, DisplayTime: "09:30", Status: widget.StatusSent}
	f.snap.Messages = append(f.snap.Messages, msg)
	return msg, nil
}

func (f *fakeWidget) Retry(ctx context.Context, tempID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retried = append(f.retried, tempID)
	return nil
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m tea.Model, msg tea.Msg) (tea.Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	require.NotNil(t, next)
	return next, cmd
}

func newChat(t *testing.T, w *fakeWidget) tea.Model {
	t.Helper()
	m := NewChatModel(context.Background(), w, vlist.Config{}, vlist.FallbackBackend{}, "Acme Support")
	next, _ := update(t, m, tea.WindowSizeMsg{Width: 60, Height: 16})
	return next
}

func TestChatLauncherShowsUnread(t *testing.T) {
	w := newFakeWidget()
	w.set(func(s *widget.Snapshot) { s.Unread = 3 })
	m := newChat(t, w)

	view := m.View()
	assert.Contains(t, view, "Chat with us")
	assert.Contains(t, view, "3 unread")
}

func TestChatToggleAndSend(t *testing.T) {
	w := newFakeWidget()
	m := newChat(t, w)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlO})
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	assert.Equal(t, 1, w.toggles)
	assert.Contains(t, m.View(), "Start a new conversation")

	for _, r := range "Hello" {
		m, _ = update(t, m, keyRunes(string(r)))
	}
	assert.Equal(t, 5, w.typing)

	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, "", m.(ChatModel).input.Value())

	m, _ = update(t, m, cmd())
	assert.Equal(t, []string{"Hello"}, w.sent)
	view := m.View()
	assert.Contains(t, view, "You")
	assert.Contains(t, view, "Hello")
	assert.Contains(t, view, "✓")
}

func TestChatSendFailureRestoresDraftAndRetries(t *testing.T) {
	w := newFakeWidget()
	w.sendErr = errors.New("boom")
	w.set(func(s *widget.Snapshot) { s.Phase = widget.PhasePending })
	m := newChat(t, w)

	m, _ = update(t, m, keyRunes("Where is my order?"))
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())

	assert.Equal(t, "Where is my order?", m.(ChatModel).input.Value())
	assert.Contains(t, m.View(), "ctrl+r to retry")

	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	require.NotNil(t, cmd)
	update(t, m, cmd())
	assert.Equal(t, []string{"temp-1"}, w.retried)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	m, _ = update(t, m, changedMsg{})
	assert.NotContains(t, m.View(), "retry")
}

func TestChatClearsRestoredDraftWhenMessageLandsLate(t *testing.T) {
	w := newFakeWidget()
	w.sendErr = errors.New("gateway timeout")
	w.set(func(s *widget.Snapshot) { s.Phase = widget.PhaseActive })
	m := newChat(t, w)

	m, _ = update(t, m, keyRunes("hello"))
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = update(t, m, cmd())
	require.Equal(t, "hello", m.(ChatModel).input.Value())

	w.set(func(s *widget.Snapshot) {
		s.Notice = nil
		s.Messages = []widget.Message{{ID: "m1", ClientID: "temp-1", Content: "hello", Sender: widget.SenderCustomer, Status: widget.StatusSent}}
	})
	m, _ = update(t, m, changedMsg{})
	assert.Equal(t, "", m.(ChatModel).input.Value())
	assert.NotContains(t, m.View(), "retry")
}

func TestChatMinimizeAndRestore(t *testing.T) {
	w := newFakeWidget()
	w.set(func(s *widget.Snapshot) { s.Phase = widget.PhaseActive })
	m := newChat(t, w)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlN})
	m, _ = update(t, m, changedMsg{})
	assert.Contains(t, m.View(), "(minimized)")

	// Keys other than toggle are inert while minimized.
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)

	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlO})
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, 1, w.opens)
	assert.Equal(t, 0, w.toggles)
}

func TestChatShowsRemoteTyping(t *testing.T) {
	w := newFakeWidget()
	w.set(func(s *widget.Snapshot) {
		s.Phase = widget.PhaseActive
		s.Session = &widget.Session{ID: "s1", Status: widget.SessionActive, Assignee: "Sam"}
		s.RemoteTyping = true
		s.Messages = []widget.Message{{ID: "m1", Content: "Hi, I'm Sam", Sender: widget.SenderAgent, SenderName: "Sam", DisplayTime: "09:31"}}
	})
	m := newChat(t, w)

	view := m.View()
	assert.Contains(t, view, "Chatting with Sam")
	assert.Contains(t, view, "Sam is typing...")
	assert.Contains(t, view, "Hi, I'm Sam")
}

type fakeLister struct {
	sessions []dto.Session
	err      error
	calls    int
}

func (f *fakeLister) ListInbox(ctx context.Context) ([]dto.Session, error) {
	f.calls++
	return f.sessions, f.err
}

func stamp(minute int) string {
	return time.Date(2026, 3, 2, 9, minute, 0, 0, time.UTC).Format(time.RFC3339Nano)
}

func TestInboxLoadsAndReordersOnEvents(t *testing.T) {
	lister := &fakeLister{sessions: []dto.Session{
		{ID: "s1", Status: "pending", Customer: dto.Customer{UserID: "c1", Name: "Ada"}, LastActivityAt: stamp(1)},
		{ID: "s2", Status: "active", Customer: dto.Customer{UserID: "c2", Name: "Grace"}, LastActivityAt: stamp(5), AssignedTo: &dto.Assignee{Name: "Sam"}},
		{ID: "s3", Status: "closed", Customer: dto.Customer{UserID: "c3", Name: "Old"}, Deleted: true, LastActivityAt: stamp(9)},
	}}
	events := make(chan dto.Envelope, 4)

	var m tea.Model = NewInboxModel(context.Background(), lister, events, vlist.Config{}, vlist.NewViewportBackend(), zerolog.Nop())
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 12})
	m, _ = update(t, m, m.(InboxModel).load()())

	ids := func() []string {
		var out []string
		for _, s := range m.(InboxModel).Sessions() {
			out = append(out, s.ID)
		}
		return out
	}
	assert.Equal(t, []string{"s2", "s1"}, ids())
	view := m.View()
	assert.Contains(t, view, "Conversations (2)")
	assert.Contains(t, view, "assigned to Sam")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Contains(t, m.View(), "s2 ·")

	raw, err := json.Marshal(dto.Message{ID: "m9", ChatID: "s1", Content: "ping", CreatedAt: stamp(30)})
	require.NoError(t, err)
	m, _ = update(t, m, envelopeMsg{env: dto.Envelope{Event: dto.EventNewMessage, ChatID: "s1", Data: raw}})
	assert.Equal(t, []string{"s1", "s2"}, ids())
	assert.Contains(t, m.View(), "s2 ·", "selection follows the conversation")

	raw, err = json.Marshal(dto.Session{ID: "s4", Status: "pending", Customer: dto.Customer{UserID: "c4", Name: "Linus"}, LastActivityAt: stamp(40)})
	require.NoError(t, err)
	m, _ = update(t, m, envelopeMsg{env: dto.Envelope{Event: dto.EventChatUpdated, ChatID: "s4", Data: raw}})
	assert.Equal(t, []string{"s4", "s1", "s2"}, ids())

	_, cmd := update(t, m, envelopeMsg{env: dto.Envelope{Event: dto.EventNewMessage, ChatID: "unknown", Data: raw}})
	require.NotNil(t, cmd)
	assert.Equal(t, 1, lister.calls)
}

func TestInboxShowsLoadError(t *testing.T) {
	lister := &fakeLister{err: errors.New("backend unavailable")}
	var m tea.Model = NewInboxModel(context.Background(), lister, nil, vlist.Config{}, nil, zerolog.Nop())
	m, _ = update(t, m, m.(InboxModel).load()())
	assert.Contains(t, m.View(), "backend unavailable")
	assert.Contains(t, m.View(), "No conversations yet.")
}
