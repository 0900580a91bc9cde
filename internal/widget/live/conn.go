package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"storefront-chat/internal/dto"
	"storefront-chat/internal/widget"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 90 * time.Second
	maxMessageSize = 512 * 1024
	eventBuffer    = 64
)

var ErrClosed = errors.New("live channel closed")

// Conn is the widget side of the live channel. Writes are serialized; inbound frames
// are decoded on a read goroutine and delivered on Events until the connection ends.
type Conn struct {
	conn   *websocket.Conn
	events chan dto.Envelope
	done   chan struct{}
	log    zerolog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

var _ widget.Live = (*Conn)(nil)

// URLFor maps the REST base URL (http[s]://host/api/v1) to the socket endpoint.
func URLFor(baseURL, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("live: parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("live: unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func Dial(ctx context.Context, baseURL, token string, log zerolog.Logger) (*Conn, error) {
	wsURL, err := URLFor(baseURL, token)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("live: dial: %w", widget.ErrUnauthenticated)
		}
		return nil, fmt.Errorf("live: dial: %w", err)
	}

	c := &Conn{
		conn:   conn,
		events: make(chan dto.Envelope, eventBuffer),
		done:   make(chan struct{}),
		log:    log.With().Str("component", "live").Logger(),
	}
	go c.readPump()
	return c, nil
}

func (c *Conn) Events() <-chan dto.Envelope {
	return c.events
}

// Done is closed once the connection has stopped reading.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) JoinChat(sessionID string) error {
	return c.write(dto.EventJoinChat, sessionID, nil)
}

func (c *Conn) LeaveChat(sessionID string) error {
	return c.write(dto.EventLeaveChat, sessionID, nil)
}

func (c *Conn) SendMessage(sessionID string, payload dto.SendMessagePayload) error {
	return c.write(dto.EventSendMessage, sessionID, payload)
}

func (c *Conn) StartTyping(sessionID string) error {
	return c.write(dto.EventTypingStart, sessionID, nil)
}

func (c *Conn) StopTyping(sessionID string) error {
	return c.write(dto.EventTypingStop, sessionID, nil)
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Conn) write(event, sessionID string, payload interface{}) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	env, err := dto.NewEnvelope(event, sessionID, payload)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

func (c *Conn) readPump() {
	defer func() {
		close(c.done)
		close(c.events)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPingHandler(func(data string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		err := c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn().Err(err).Msg("live read failed")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var env dto.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.log.Debug().Err(err).Msg("dropping malformed frame")
			continue
		}
		c.events <- env
	}
}
