package dto

import "storefront-chat/internal/model"

const MessageStatusSent = "sent"

func SessionFromModel(item model.SessionItem) Session {
	session := Session{
		ID:     item.SessionID,
		Status: string(item.Status),
		Customer: Customer{
			UserID: item.CustomerID,
			Name:   item.CustomerName,
			Email:  item.CustomerEmail,
		},
		Deleted:        item.Deleted,
		CreatedAt:      item.CreatedAt,
		UpdatedAt:      item.UpdatedAt,
		LastActivityAt: item.LastActivityAt,
	}
	if item.AssigneeID != "" || item.AssigneeName != "" {
		session.AssignedTo = &Assignee{ID: item.AssigneeID, Name: item.AssigneeName}
	}
	return session
}

func SessionsFromModel(items []model.SessionItem) []Session {
	out := make([]Session, 0, len(items))
	for _, item := range items {
		out = append(out, SessionFromModel(item))
	}
	return out
}

func MessageFromModel(item model.MessageItem) Message {
	role := string(item.SenderType)
	return Message{
		ID:              item.MessageID,
		ChatID:          item.SessionID,
		ClientMessageID: item.ClientMessageID,
		Content:         item.Body,
		Type:            item.MessageType,
		SenderType:      role,
		Sender: &Sender{
			ID:      item.SenderID,
			Name:    item.SenderName,
			Role:    role,
			IsAdmin: item.SenderType == model.SenderAgent,
		},
		Status:    MessageStatusSent,
		CreatedAt: item.CreatedAt,
	}
}

func MessagesFromModel(items []model.MessageItem) []Message {
	out := make([]Message, 0, len(items))
	for _, item := range items {
		out = append(out, MessageFromModel(item))
	}
	return out
}
