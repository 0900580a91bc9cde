package widget

import (
	"context"
	"time"

	"storefront-chat/internal/dto"
)

type SessionStatus string

const (
	SessionPending SessionStatus = "pending"
	SessionActive  SessionStatus = "active"
	SessionClosed  SessionStatus = "closed"
)

type Customer struct {
	UserID string
	Name   string
	Email  string
}

type Session struct {
	ID           string
	Status       SessionStatus
	Customer     Customer
	Assignee     string
	LastActivity time.Time
	Deleted      bool
}

// Outstanding reports whether the session still counts as the customer's open conversation.
func (s Session) Outstanding() bool {
	return !s.Deleted && (s.Status == SessionActive || s.Status == SessionPending)
}

// Sender is the normalized author variant of a message.
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderAgent    Sender = "agent"
)

type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

func (s MessageStatus) rank() int {
	switch s {
	case StatusSending:
		return 1
	case StatusSent:
		return 2
	case StatusDelivered:
		return 3
	case StatusRead:
		return 4
	}
	return 0
}

// advance never moves a status backwards.
func advance(current, next MessageStatus) MessageStatus {
	if next.rank() > current.rank() {
		return next
	}
	return current
}

// Message is a normalized chat entry. ID is empty until the server acknowledges it;
// ClientID carries the temporary id assigned on send.
type Message struct {
	ID          string
	ClientID    string
	SessionID   string
	Content     string
	Sender      Sender
	SenderID    string
	SenderName  string
	Timestamp   time.Time
	DisplayTime string
	Status      MessageStatus
}

func (m Message) Pending() bool {
	return m.ID == ""
}

// Key is the id the message is rendered and looked up by.
func (m Message) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return m.ClientID
}

// Auth exposes the host application's authentication state.
type Auth interface {
	Token() string
	User() (Customer, bool)
}

// API is the REST chat backend.
type API interface {
	ListCustomerSessions(ctx context.Context) ([]dto.Session, error)
	ListSessions(ctx context.Context) ([]dto.Session, error)
	CreateSession(ctx context.Context, req dto.CreateSessionRequest) (dto.Session, error)
	GetSession(ctx context.Context, sessionID string) (dto.Session, error)
	ListMessages(ctx context.Context, sessionID string) ([]dto.Message, error)
	PostMessage(ctx context.Context, sessionID string, req dto.PostMessageRequest) (dto.Message, error)
	Availability(ctx context.Context) (dto.Availability, error)
}

// Live is the socket channel. Writes are fire-and-forget; inbound frames arrive on Events.
type Live interface {
	JoinChat(sessionID string) error
	LeaveChat(sessionID string) error
	SendMessage(sessionID string, payload dto.SendMessagePayload) error
	StartTyping(sessionID string) error
	StopTyping(sessionID string) error
	Events() <-chan dto.Envelope
}

type StaticAuth struct {
	token    string
	customer Customer
}

func NewStaticAuth(token string, customer Customer) *StaticAuth {
	return &StaticAuth{token: token, customer: customer}
}

func (a *StaticAuth) Token() string {
	return a.token
}

func (a *StaticAuth) User() (Customer, bool) {
	if a.token == "" || a.customer.UserID == "" {
		return Customer{}, false
	}
	return a.customer, true
}
