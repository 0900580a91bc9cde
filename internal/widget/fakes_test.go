package widget

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"storefront-chat/internal/dto"
)

var testCustomer = Customer{UserID: "cust-1", Name: "Ada", Email: "ada@example.com"}

type fakeAPI struct {
	mu       sync.Mutex
	now      func() time.Time
	customer Customer
	seq      int

	sessions []dto.Session
	messages map[string][]dto.Message
	online   bool

	listErr error
	postErr error

	listGate chan struct{}
	postGate chan struct{}

	availabilityCalls int
	listCalls         int
	createCalls       int
	postCalls         int
}

func newFakeAPI(now func() time.Time) *fakeAPI {
	return &fakeAPI{
		now:      now,
		customer: testCustomer,
		messages: make(map[string][]dto.Message),
		online:   true,
	}
}

func (f *fakeAPI) stamp() string {
	return f.now().UTC().Format(time.RFC3339Nano)
}

func (f *fakeAPI) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeAPI) addSession(id string, status SessionStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, dto.Session{
		ID:             id,
		Status:         string(status),
		Customer:       dto.Customer{UserID: f.customer.UserID, Name: f.customer.Name},
		LastActivityAt: f.stamp(),
	})
}

func (f *fakeAPI) setStatus(id string, status SessionStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.sessions {
		if f.sessions[i].ID == id {
			f.sessions[i].Status = string(status)
		}
	}
}

// agentReply stores an agent message the way the backend would and returns its wire form.
func (f *fakeAPI) agentReply(sessionID, content string) dto.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := dto.Message{
		ID:         f.nextID("msg"),
		ChatID:     sessionID,
		Content:    content,
		SenderType: "agent",
		Sender:     &dto.Sender{ID: "agent-1", Name: "Grace", Role: "agent", IsAdmin: true},
		Status:     "sent",
		CreatedAt:  f.stamp(),
	}
	f.messages[sessionID] = append(f.messages[sessionID], msg)
	return msg
}

func (f *fakeAPI) counts() (list, create, post int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.createCalls, f.postCalls
}

func (f *fakeAPI) ListCustomerSessions(ctx context.Context) ([]dto.Session, error) {
	f.mu.Lock()
	f.listCalls++
	gate := f.listGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]dto.Session, len(f.sessions))
	copy(out, f.sessions)
	return out, nil
}

func (f *fakeAPI) ListSessions(ctx context.Context) ([]dto.Session, error) {
	return f.ListCustomerSessions(ctx)
}

func (f *fakeAPI) CreateSession(ctx context.Context, req dto.CreateSessionRequest) (dto.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	s := dto.Session{
		ID:             f.nextID("S"),
		Status:         string(SessionPending),
		Customer:       dto.Customer{UserID: f.customer.UserID, Name: req.Name, Email: req.Email},
		CreatedAt:      f.stamp(),
		LastActivityAt: f.stamp(),
	}
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *fakeAPI) GetSession(ctx context.Context, sessionID string) (dto.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.ID == sessionID {
			return s, nil
		}
	}
	return dto.Session{}, fmt.Errorf("session %s not found", sessionID)
}

func (f *fakeAPI) ListMessages(ctx context.Context, sessionID string) ([]dto.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]dto.Message, len(f.messages[sessionID]))
	copy(out, f.messages[sessionID])
	return out, nil
}

func (f *fakeAPI) PostMessage(ctx context.Context, sessionID string, req dto.PostMessageRequest) (dto.Message, error) {
	f.mu.Lock()
	f.postCalls++
	gate := f.postGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return dto.Message{}, ctx.Err()
		}
	}
	return f.persist(sessionID, req)
}

// persist is the idempotent write shared by the REST and socket legs.
func (f *fakeAPI) persist(sessionID string, req dto.PostMessageRequest) (dto.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return dto.Message{}, f.postErr
	}
	for _, m := range f.messages[sessionID] {
		if req.ClientMessageID != "" && m.ClientMessageID == req.ClientMessageID {
			return m, nil
		}
	}
	msg := dto.Message{
		ID:              f.nextID("msg"),
		ChatID:          sessionID,
		ClientMessageID: req.ClientMessageID,
		Content:         req.Content,
		Type:            req.Type,
		SenderType:      "customer",
		Sender:          &dto.Sender{ID: f.customer.UserID, Name: f.customer.Name, Role: "customer"},
		Status:          "sent",
		CreatedAt:       f.stamp(),
	}
	f.messages[sessionID] = append(f.messages[sessionID], msg)
	return msg, nil
}

func (f *fakeAPI) Availability(ctx context.Context) (dto.Availability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.availabilityCalls++
	return dto.Availability{
		Online:       f.online,
		Timezone:     "UTC",
		WorkingHours: []dto.WorkingDay{{Day: "monday", Open: "09:00", Close: "17:00"}},
	}, nil
}

type fakeLive struct {
	mu     sync.Mutex
	joined []string
	left   []string
	sent   []dto.SendMessagePayload
	typing []string
	events chan dto.Envelope
}

func newFakeLive() *fakeLive {
	return &fakeLive{events: make(chan dto.Envelope, 16)}
}

func (l *fakeLive) JoinChat(sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.joined = append(l.joined, sessionID)
	return nil
}

func (l *fakeLive) LeaveChat(sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.left = append(l.left, sessionID)
	return nil
}

func (l *fakeLive) SendMessage(sessionID string, payload dto.SendMessagePayload) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, payload)
	return nil
}

func (l *fakeLive) StartTyping(sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.typing = append(l.typing, "start:"+sessionID)
	return nil
}

func (l *fakeLive) StopTyping(sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.typing = append(l.typing, "stop:"+sessionID)
	return nil
}

func (l *fakeLive) Events() <-chan dto.Envelope {
	return l.events
}

func (l *fakeLive) snapshot() (joined, left, typing []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.joined...), append([]string(nil), l.left...), append([]string(nil), l.typing...)
}

func envelope(event, chatID string, payload interface{}) dto.Envelope {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return dto.Envelope{Event: event, ChatID: chatID, Data: raw}
}
