package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront-chat/internal/dto"
	internaljwt "storefront-chat/internal/jwt"
	"storefront-chat/internal/model"
	"storefront-chat/internal/service/chat"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(zerolog.Nop())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func receive(t *testing.T, cl *WSClient) []byte {
	t.Helper()
	select {
	case msg, ok := <-cl.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	return nil
}

func expectNothing(t *testing.T, cl *WSClient) {
	t.Helper()
	select {
	case msg := <-cl.send:
		t.Fatalf("unexpected delivery: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubRoutesToRoomMembers(t *testing.T) {
	hub := startHub(t)
	h := NewHandler(hub, nil, NewLocalPublisher(hub, zerolog.Nop()), nil, zerolog.Nop())

	customer := newClient("c1", chat.Identity{UserID: "cust-1"}, nil, zerolog.Nop())
	agent := newClient("a1", chat.Identity{UserID: "agent-1", Role: internaljwt.RoleAgent}, nil, zerolog.Nop())
	h.Attach(customer)
	h.Attach(agent)

	if hub.RoomSize(UserRoom("cust-1")) != 1 {
		t.Fatal("customer should join personal room on attach")
	}
	if !hub.IsMember("a1", AgentsRoom) || hub.IsMember("c1", AgentsRoom) {
		t.Fatal("only staff should join the agents room")
	}

	hub.Join(customer, ChatRoom("s1"))
	hub.Join(agent, ChatRoom("s1"))

	hub.Send(Delivery{RoomID: ChatRoom("s1"), Payload: []byte("hello"), Exclude: "a1"})
	if got := string(receive(t, customer)); got != "hello" {
		t.Fatalf("unexpected payload %q", got)
	}
	expectNothing(t, agent)

	hub.Leave(customer, ChatRoom("s1"))
	hub.Send(Delivery{RoomID: ChatRoom("s1"), Payload: []byte("again")})
	if got := string(receive(t, agent)); got != "again" {
		t.Fatalf("unexpected payload %q", got)
	}
	expectNothing(t, customer)

	hub.Send(Delivery{ClientID: "c1", Payload: []byte("direct")})
	if got := string(receive(t, customer)); got != "direct" {
		t.Fatalf("unexpected payload %q", got)
	}
}

func TestHubUnregisterRemovesEmptyRooms(t *testing.T) {
	hub := startHub(t)
	cl := newClient("c1", chat.Identity{UserID: "cust-1"}, nil, zerolog.Nop())
	hub.Register <- cl
	hub.Join(cl, ChatRoom("s1"))

	hub.Unregister <- cl
	if _, ok := <-cl.send; ok {
		t.Fatal("send channel should be closed after unregister")
	}
	if hub.RoomSize(ChatRoom("s1")) != 0 {
		t.Fatal("room should be empty")
	}

	// A second unregister from a racing read pump must be harmless.
	hub.Unregister <- cl
}

func TestHubDropsSlowClients(t *testing.T) {
	hub := startHub(t)
	cl := newClient("c1", chat.Identity{UserID: "cust-1"}, nil, zerolog.Nop())
	hub.Register <- cl
	hub.Join(cl, ChatRoom("s1"))

	for i := 0; i < sendBuffer+1; i++ {
		hub.Send(Delivery{RoomID: ChatRoom("s1"), Payload: []byte("x")})
	}
	deadline := time.Now().Add(time.Second)
	for hub.IsMember("c1", ChatRoom("s1")) {
		if time.Now().After(deadline) {
			t.Fatal("slow client should have been dropped")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type fakeService struct {
	mu        sync.Mutex
	publisher *Publisher
	session   model.SessionItem
	posted    []chat.PostMessageParams
}

func (f *fakeService) IdentityFromToken(token string) (chat.Identity, error) {
	if token != "good" {
		return chat.Identity{}, &chat.Error{Code: chat.ErrorCodeUnauthorized, Message: "invalid token"}
	}
	return chat.Identity{UserID: f.session.CustomerID, Role: internaljwt.RoleCustomer}, nil
}

func (f *fakeService) GetSession(ctx context.Context, identity chat.Identity, sessionID string) (model.SessionItem, error) {
	if sessionID != f.session.SessionID {
		return model.SessionItem{}, &chat.Error{Code: chat.ErrorCodeNotFound, Message: "session not found"}
	}
	return f.session, nil
}

func (f *fakeService) PostMessage(ctx context.Context, identity chat.Identity, sessionID string, params chat.PostMessageParams) (chat.MessageResult, error) {
	f.mu.Lock()
	f.posted = append(f.posted, params)
	f.mu.Unlock()

	message := model.MessageItem{
		SessionID:       sessionID,
		MessageID:       uuid.NewString(),
		ClientMessageID: params.ClientMessageID,
		SenderType:      model.SenderCustomer,
		SenderID:        identity.UserID,
		Body:            params.Content,
		CreatedAt:       time.Now().UTC().Format(time.RFC3339Nano),
	}
	f.publisher.MessageCreated(ctx, f.session, message)
	return chat.MessageResult{Session: f.session, Message: message}, nil
}

func readEnvelope(t *testing.T, conn *websocket.Conn) dto.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env dto.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	return env
}

func TestServeWSEndToEnd(t *testing.T) {
	hub := startHub(t)
	publisher := NewLocalPublisher(hub, zerolog.Nop())
	svc := &fakeService{
		publisher: publisher,
		session:   model.SessionItem{SessionID: "s1", CustomerID: "cust-1", Status: model.SessionStatusActive},
	}
	h := NewHandler(hub, svc, publisher, []string{"*"}, zerolog.Nop())

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	if _, resp, err := websocket.DefaultDialer.Dial(wsURL+"?token=bad", nil); err == nil {
		t.Fatal("expected dial with bad token to fail")
	} else if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token=good", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	join, _ := dto.NewEnvelope(dto.EventJoinChat, "s1", nil)
	if err := conn.WriteJSON(join); err != nil {
		t.Fatalf("write join: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for hub.RoomSize(ChatRoom("s1")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never joined the chat room")
		}
		time.Sleep(5 * time.Millisecond)
	}

	send, _ := dto.NewEnvelope(dto.EventSendMessage, "s1", dto.SendMessagePayload{Content: "Hello", ClientMessageID: "temp-1"})
	if err := conn.WriteJSON(send); err != nil {
		t.Fatalf("write send: %v", err)
	}

	// One copy arrives via the chat room and one via the personal room.
	for i := 0; i < 2; i++ {
		env := readEnvelope(t, conn)
		if env.Event != dto.EventNewMessage {
			t.Fatalf("expected new_message, got %s", env.Event)
		}
		var msg dto.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			t.Fatalf("decode message: %v", err)
		}
		if msg.Content != "Hello" || msg.ClientMessageID != "temp-1" {
			t.Fatalf("unexpected message %+v", msg)
		}
	}

	bogus, _ := dto.NewEnvelope(dto.EventJoinChat, "nope", nil)
	if err := conn.WriteJSON(bogus); err != nil {
		t.Fatalf("write bogus join: %v", err)
	}
	if env := readEnvelope(t, conn); env.Event != dto.EventError {
		t.Fatalf("expected error event, got %s", env.Event)
	}
}
