package dto

type Customer struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
}

type Assignee struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type Session struct {
	ID             string    `json:"id"`
	Status         string    `json:"status"`
	Customer       Customer  `json:"customer"`
	AssignedTo     *Assignee `json:"assignedTo,omitempty"`
	Deleted        bool      `json:"isDeleted,omitempty"`
	CreatedAt      string    `json:"createdAt"`
	UpdatedAt      string    `json:"updatedAt"`
	LastActivityAt string    `json:"lastActivity"`
}

// Sender mirrors the nested sender object the storefront API attaches to messages.
type Sender struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Role    string `json:"role,omitempty"`
	IsAdmin bool   `json:"isAdmin,omitempty"`
}

type Message struct {
	ID              string  `json:"id"`
	ChatID          string  `json:"chatId"`
	ClientMessageID string  `json:"clientMessageId,omitempty"`
	Content         string  `json:"content"`
	Type            string  `json:"type,omitempty"`
	SenderType      string  `json:"senderType,omitempty"`
	Sender          *Sender `json:"sender,omitempty"`
	Status          string  `json:"status,omitempty"`
	CreatedAt       string  `json:"createdAt"`
}

type CreateSessionRequest struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type UpdateSessionRequest struct {
	Status       string `json:"status,omitempty"`
	AssigneeName string `json:"assigneeName,omitempty"`
	AssignToMe   bool   `json:"assignToMe,omitempty"`
}

type PostMessageRequest struct {
	Content         string `json:"content"`
	Type            string `json:"type,omitempty"`
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

type SessionResponse struct {
	Session Session `json:"session"`
}

type ListSessionsResponse struct {
	Sessions []Session `json:"sessions"`
}

type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
}

type MessageResponse struct {
	Message Message `json:"message"`
}

type WorkingDay struct {
	Day   string `json:"day"`
	Open  string `json:"open"`
	Close string `json:"close"`
}

type Availability struct {
	Online       bool         `json:"online"`
	Timezone     string       `json:"timezone"`
	WorkingHours []WorkingDay `json:"workingHours,omitempty"`
}

type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
