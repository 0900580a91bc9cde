package widget

import (
	"strings"
	"time"

	"storefront-chat/internal/dto"
)

const displayTimeLayout = "15:04"

var agentSenderTypes = map[string]struct{}{
	"admin":     {},
	"agent":     {},
	"support":   {},
	"assistant": {},
}

// ClassifySender is the single place raw sender fields are inspected. History loads and
// live events both go through it.
func ClassifySender(m dto.Message) Sender {
	if _, ok := agentSenderTypes[strings.ToLower(m.SenderType)]; ok {
		return SenderAgent
	}
	if m.Sender != nil {
		if m.Sender.IsAdmin {
			return SenderAgent
		}
		switch strings.ToLower(m.Sender.Role) {
		case "admin", "agent":
			return SenderAgent
		}
	}
	return SenderCustomer
}

func NormalizeMessage(m dto.Message, loc *time.Location) Message {
	ts := parseTimestamp(m.CreatedAt)
	msg := Message{
		ID:        m.ID,
		ClientID:  m.ClientMessageID,
		SessionID: m.ChatID,
		Content:   m.Content,
		Sender:    ClassifySender(m),
		Timestamp: ts,
		Status:    MessageStatus(m.Status),
	}
	if m.Sender != nil {
		msg.SenderID = m.Sender.ID
		msg.SenderName = m.Sender.Name
	}
	if msg.Status == "" {
		msg.Status = StatusSent
	}
	msg.DisplayTime = formatDisplayTime(ts, loc)
	return msg
}

func NormalizeMessages(items []dto.Message, loc *time.Location) []Message {
	out := make([]Message, 0, len(items))
	for _, item := range items {
		out = append(out, NormalizeMessage(item, loc))
	}
	return out
}

func NormalizeSession(s dto.Session) Session {
	session := Session{
		ID:     s.ID,
		Status: SessionStatus(s.Status),
		Customer: Customer{
			UserID: s.Customer.UserID,
			Name:   s.Customer.Name,
			Email:  s.Customer.Email,
		},
		Deleted:      s.Deleted,
		LastActivity: parseTimestamp(s.LastActivityAt),
	}
	if s.AssignedTo != nil {
		session.Assignee = s.AssignedTo.Name
	}
	return session
}

func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatDisplayTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(displayTimeLayout)
}
