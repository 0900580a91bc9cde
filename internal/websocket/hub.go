package websocket

import (
	"context"

	"github.com/rs/zerolog"
)

type Hub struct {
	Register   chan *WSClient
	Unregister chan *WSClient
	Broadcast  chan Delivery

	join  chan membership
	leave chan membership
	query chan func()
	done  chan struct{}

	rooms   map[string]*Room
	clients map[string]*WSClient
	log     zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		Register:   make(chan *WSClient),
		Unregister: make(chan *WSClient),
		Broadcast:  make(chan Delivery, 256),
		join:       make(chan membership),
		leave:      make(chan membership),
		query:      make(chan func()),
		done:       make(chan struct{}),
		rooms:      make(map[string]*Room),
		clients:    make(map[string]*WSClient),
		log:        log.With().Str("component", "hub").Logger(),
	}
}

// Run owns all room state; every mutation goes through its channels.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for _, client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.Register:
			h.clients[client.ID] = client
			incConnections()

		case client := <-h.Unregister:
			if _, ok := h.clients[client.ID]; ok {
				h.drop(client)
			}

		case m := <-h.join:
			if _, ok := h.clients[m.client.ID]; !ok {
				continue
			}
			room, ok := h.rooms[m.roomID]
			if !ok {
				room = &Room{ID: m.roomID, Clients: make(map[string]*WSClient)}
				h.rooms[m.roomID] = room
				setRooms(len(h.rooms))
			}
			room.Clients[m.client.ID] = m.client
			m.client.rooms[m.roomID] = struct{}{}

		case m := <-h.leave:
			h.removeFromRoom(m.client, m.roomID)

		case d := <-h.Broadcast:
			h.deliver(d)

		case fn := <-h.query:
			fn()
		}
	}
}

func (h *Hub) Join(client *WSClient, roomID string) {
	select {
	case h.join <- membership{client: client, roomID: roomID}:
	case <-h.done:
	}
}

func (h *Hub) Leave(client *WSClient, roomID string) {
	select {
	case h.leave <- membership{client: client, roomID: roomID}:
	case <-h.done:
	}
}

func (h *Hub) Send(d Delivery) {
	select {
	case h.Broadcast <- d:
	case <-h.done:
	}
}

func (h *Hub) IsMember(clientID, roomID string) bool {
	var member bool
	h.inspect(func() {
		if room, ok := h.rooms[roomID]; ok {
			_, member = room.Clients[clientID]
		}
	})
	return member
}

func (h *Hub) RoomSize(roomID string) int {
	var size int
	h.inspect(func() {
		if room, ok := h.rooms[roomID]; ok {
			size = len(room.Clients)
		}
	})
	return size
}

func (h *Hub) inspect(fn func()) {
	finished := make(chan struct{})
	select {
	case h.query <- func() { fn(); close(finished) }:
		<-finished
	case <-h.done:
	}
}

func (h *Hub) deliver(d Delivery) {
	if d.ClientID != "" {
		if client, ok := h.clients[d.ClientID]; ok {
			h.push(client, d.Payload)
		}
		return
	}

	room, ok := h.rooms[d.RoomID]
	if !ok {
		return
	}
	delivered := 0
	for id, client := range room.Clients {
		if id == d.Exclude {
			continue
		}
		if h.push(client, d.Payload) {
			delivered++
		}
	}
	if delivered > 0 {
		addDelivered(delivered)
	}
}

// push drops clients whose send buffer is full rather than stalling the hub.
func (h *Hub) push(client *WSClient, payload []byte) bool {
	select {
	case client.send <- payload:
		return true
	default:
		h.log.Warn().Str("client", client.ID).Msg("send buffer full, dropping client")
		countDropped()
		h.drop(client)
		return false
	}
}

func (h *Hub) drop(client *WSClient) {
	for roomID := range client.rooms {
		h.removeFromRoom(client, roomID)
	}
	delete(h.clients, client.ID)
	close(client.send)
	decConnections()
}

func (h *Hub) removeFromRoom(client *WSClient, roomID string) {
	room, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(room.Clients, client.ID)
	delete(client.rooms, roomID)
	if len(room.Clients) == 0 {
		delete(h.rooms, roomID)
		setRooms(len(h.rooms))
	}
}
