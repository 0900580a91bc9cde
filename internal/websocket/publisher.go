package websocket

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront-chat/internal/dto"
	"storefront-chat/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const channelPrefix = "storefront-chat:room:"

type publishFunc func(ctx context.Context, roomID string, payload []byte) error

// Publisher fans chat events out to rooms. With Redis every instance's subscriber
// receives the frame; the local variant hands it straight to one hub.
type Publisher struct {
	publish   publishFunc
	transport string
	log       zerolog.Logger
}

func NewRedisPublisher(client *redis.Client, log zerolog.Logger) *Publisher {
	return &Publisher{
		publish: func(ctx context.Context, roomID string, payload []byte) error {
			return client.Publish(ctx, channelPrefix+roomID, payload).Err()
		},
		transport: "redis",
		log:       log.With().Str("component", "publisher").Logger(),
	}
}

func NewLocalPublisher(hub *Hub, log zerolog.Logger) *Publisher {
	return &Publisher{
		publish: func(ctx context.Context, roomID string, payload []byte) error {
			hub.Send(Delivery{RoomID: roomID, Payload: payload})
			return nil
		},
		transport: "local",
		log:       log.With().Str("component", "publisher").Logger(),
	}
}

func (p *Publisher) Publish(ctx context.Context, env dto.Envelope, rooms ...string) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("websocket publish: marshal envelope: %w", err)
	}
	for _, roomID := range rooms {
		if roomID == "" {
			return fmt.Errorf("websocket publish: roomID required")
		}
		if err := p.publish(ctx, roomID, payload); err != nil {
			return fmt.Errorf("websocket publish %s: %w", roomID, err)
		}
	}
	countPublished(env.Event, p.transport, len(rooms))
	return nil
}

func (p *Publisher) MessageCreated(ctx context.Context, session model.SessionItem, message model.MessageItem) {
	p.emit(ctx, dto.EventNewMessage, session, dto.MessageFromModel(message))
}

func (p *Publisher) SessionUpdated(ctx context.Context, session model.SessionItem) {
	p.emit(ctx, dto.EventChatUpdated, session, dto.SessionFromModel(session))
}

func (p *Publisher) Typing(ctx context.Context, sessionID, userID string, typing bool) error {
	env, err := dto.NewEnvelope(dto.EventTypingStatus, sessionID, dto.TypingStatus{
		ChatID:   sessionID,
		UserID:   userID,
		IsTyping: typing,
	})
	if err != nil {
		return err
	}
	return p.Publish(ctx, env, ChatRoom(sessionID))
}

// emit reaches the open conversation, the customer's personal room for unread
// counting while the widget is closed, and the agent inbox.
func (p *Publisher) emit(ctx context.Context, event string, session model.SessionItem, payload interface{}) {
	env, err := dto.NewEnvelope(event, session.SessionID, payload)
	if err != nil {
		p.log.Error().Err(err).Str("event", event).Msg("failed to build envelope")
		return
	}
	rooms := []string{ChatRoom(session.SessionID), UserRoom(session.CustomerID), AgentsRoom}
	if err := p.Publish(ctx, env, rooms...); err != nil {
		p.log.Error().Err(err).Str("event", event).Str("session", session.SessionID).Msg("failed to publish")
	}
}

// Subscribe relays every room channel published on Redis into the local hub until ctx ends.
func Subscribe(ctx context.Context, client *redis.Client, hub *Hub, log zerolog.Logger) {
	sub := client.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	log.Info().Str("pattern", channelPrefix+"*").Msg("subscribed to room channels")
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			countRelayed()
			hub.Send(Delivery{
				RoomID:  msg.Channel[len(channelPrefix):],
				Payload: []byte(msg.Payload),
			})
		}
	}
}
