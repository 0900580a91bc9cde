package dto

import "encoding/json"

// Live channel event names.
const (
	EventJoinChat    = "join_chat"
	EventLeaveChat   = "leave_chat"
	EventSendMessage = "send_message"
	EventTypingStart = "typing_start"
	EventTypingStop  = "typing_stop"

	EventNewMessage   = "new_message"
	EventTypingStatus = "typing_status"
	EventChatUpdated  = "chat_updated"
	EventError        = "error"
)

// Envelope is the frame exchanged on the live channel in both directions.
type Envelope struct {
	Event  string          `json:"event"`
	ChatID string          `json:"chatId,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type SendMessagePayload struct {
	Content         string `json:"content"`
	Type            string `json:"type,omitempty"`
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

type TypingStatus struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

func NewEnvelope(event, chatID string, payload interface{}) (Envelope, error) {
	env := Envelope{Event: event, ChatID: chatID}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Data = raw
	return env, nil
}
