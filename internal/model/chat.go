package model

import "fmt"

const (
	SessionsTable = "ChatSessions"
	MessagesTable = "ChatMessages"

	SessionsByCustomerIndex = "byCustomer"
	MessagesBySessionIndex  = "bySession"
)

type SessionStatus string

const (
	SessionStatusPending SessionStatus = "pending"
	SessionStatusActive  SessionStatus = "active"
	SessionStatusClosed  SessionStatus = "closed"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusPending, SessionStatusActive, SessionStatusClosed:
		return true
	}
	return false
}

// Outstanding reports whether a session still blocks the customer from opening another one.
func (s SessionStatus) Outstanding() bool {
	return s == SessionStatusPending || s == SessionStatusActive
}

type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderAgent    SenderType = "agent"
)

func MessagePK(sessionID, messageID string) string {
	return fmt.Sprintf("%s#%s", sessionID, messageID)
}

type SessionItem struct {
	SessionID      string        `dynamodbav:"sessionId"`
	CustomerID     string        `dynamodbav:"customerId"`
	CustomerName   string        `dynamodbav:"customerName,omitempty"`
	CustomerEmail  string        `dynamodbav:"customerEmail,omitempty"`
	Status         SessionStatus `dynamodbav:"status"`
	AssigneeID     string        `dynamodbav:"assigneeId,omitempty"`
	AssigneeName   string        `dynamodbav:"assigneeName,omitempty"`
	Deleted        bool          `dynamodbav:"deleted"`
	CreatedAt      string        `dynamodbav:"createdAt"`
	UpdatedAt      string        `dynamodbav:"updatedAt"`
	LastActivityAt string        `dynamodbav:"lastActivityAt"`
}

type MessageItem struct {
	PK              string     `dynamodbav:"pk"`
	SessionID       string     `dynamodbav:"sessionId"`
	MessageID       string     `dynamodbav:"messageId"`
	ClientMessageID string     `dynamodbav:"clientMessageId,omitempty"`
	SenderType      SenderType `dynamodbav:"senderType"`
	SenderID        string     `dynamodbav:"senderId"`
	SenderName      string     `dynamodbav:"senderName,omitempty"`
	Body            string     `dynamodbav:"body"`
	MessageType     string     `dynamodbav:"messageType,omitempty"`
	CreatedAt       string     `dynamodbav:"createdAt"`
}
