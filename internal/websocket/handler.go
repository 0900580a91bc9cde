package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"storefront-chat/internal/dto"
	"storefront-chat/internal/model"
	"storefront-chat/internal/service/chat"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const eventTimeout = 10 * time.Second

type ChatService interface {
	IdentityFromToken(token string) (chat.Identity, error)
	GetSession(ctx context.Context, identity chat.Identity, sessionID string) (model.SessionItem, error)
	PostMessage(ctx context.Context, identity chat.Identity, sessionID string, params chat.PostMessageParams) (chat.MessageResult, error)
}

type Handler struct {
	hub       *Hub
	service   ChatService
	publisher *Publisher
	upgrader  websocket.Upgrader
	log       zerolog.Logger
}

func NewHandler(hub *Hub, service ChatService, publisher *Publisher, allowedOrigins []string, log zerolog.Logger) *Handler {
	return &Handler{
		hub:       hub,
		service:   service,
		publisher: publisher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log.With().Str("component", "ws").Logger(),
	}
}

// ServeWS authenticates via the token query parameter, upgrades, and joins the caller's
// personal room (plus the agent room for staff) before any client event is read.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, err := h.service.IdentityFromToken(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("upgrade failed")
		return
	}

	cl := newClient(uuid.NewString(), identity, conn, h.log)
	h.Attach(cl)

	go cl.writePump()
	go cl.readPump(h)
	cl.log.Info().Msg("client connected")
}

// Attach registers a client with the hub and its default rooms.
func (h *Handler) Attach(cl *WSClient) {
	select {
	case h.hub.Register <- cl:
	case <-h.hub.done:
		return
	}
	h.hub.Join(cl, UserRoom(cl.Identity.UserID))
	if cl.Identity.IsStaff() {
		h.hub.Join(cl, AgentsRoom)
	}
}

func (h *Handler) dispatch(cl *WSClient, raw []byte) {
	var env dto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		countEvent("invalid")
		h.replyError(cl, "", "malformed frame")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch env.Event {
	case dto.EventJoinChat:
		countEvent(env.Event)
		if _, err := h.service.GetSession(ctx, cl.Identity, env.ChatID); err != nil {
			h.replyError(cl, env.ChatID, errorMessage(err))
			return
		}
		h.hub.Join(cl, ChatRoom(env.ChatID))

	case dto.EventLeaveChat:
		countEvent(env.Event)
		h.hub.Leave(cl, ChatRoom(env.ChatID))

	case dto.EventSendMessage:
		countEvent(env.Event)
		var payload dto.SendMessagePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			h.replyError(cl, env.ChatID, "malformed message payload")
			return
		}
		_, err := h.service.PostMessage(ctx, cl.Identity, env.ChatID, chat.PostMessageParams{
			Content:         payload.Content,
			Type:            payload.Type,
			ClientMessageID: payload.ClientMessageID,
		})
		if err != nil {
			h.replyError(cl, env.ChatID, errorMessage(err))
		}

	case dto.EventTypingStart, dto.EventTypingStop:
		countEvent(env.Event)
		if !h.hub.IsMember(cl.ID, ChatRoom(env.ChatID)) {
			return
		}
		if err := h.publisher.Typing(ctx, env.ChatID, cl.Identity.UserID, env.Event == dto.EventTypingStart); err != nil {
			h.log.Warn().Err(err).Str("session", env.ChatID).Msg("failed to publish typing status")
		}

	default:
		countEvent("unknown")
		h.replyError(cl, env.ChatID, "unknown event")
	}
}

func (h *Handler) replyError(cl *WSClient, chatID, message string) {
	env, err := dto.NewEnvelope(dto.EventError, chatID, dto.ErrorResponse{Message: message})
	if err != nil {
		return
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return
	}
	h.hub.Send(Delivery{ClientID: cl.ID, Payload: payload})
}

func errorMessage(err error) string {
	var svcErr *chat.Error
	if errors.As(err, &svcErr) && svcErr.Code != chat.ErrorCodeInternal {
		return svcErr.Message
	}
	return "internal server error"
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}
