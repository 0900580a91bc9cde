package websocket

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"storefront-chat/internal/service/chat"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512 * 1024
	sendBuffer     = 32
)

type WSClient struct {
	ID       string
	Identity chat.Identity

	conn  *websocket.Conn
	send  chan []byte
	rooms map[string]struct{} // owned by the hub goroutine
	log   zerolog.Logger
}

func newClient(id string, identity chat.Identity, conn *websocket.Conn, log zerolog.Logger) *WSClient {
	return &WSClient{
		ID:       id,
		Identity: identity,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		rooms:    make(map[string]struct{}),
		log:      log.With().Str("client", id).Str("user", identity.UserID).Logger(),
	}
}

// writePump is the only writer on the connection; it exits when the hub closes send.
func (cl *WSClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				cl.log.Debug().Err(err).Msg("write failed")
				return
			}

		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				cl.log.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

func (cl *WSClient) readPump(h *Handler) {
	defer func() {
		if r := recover(); r != nil {
			cl.log.Error().Interface("panic", r).Msg("recovered in read pump")
		}
		select {
		case h.hub.Unregister <- cl:
		case <-h.hub.done:
		}
		cl.conn.Close()
		cl.log.Info().Msg("client disconnected")
	}()

	cl.conn.SetReadLimit(maxMessageSize)
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				cl.log.Warn().Err(err).Msg("read failed")
			}
			return
		}
		h.dispatch(cl, message)
	}
}
