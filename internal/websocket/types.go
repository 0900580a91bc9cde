package websocket

const (
	AgentsRoom = "agents"

	chatRoomPrefix = "chat:"
	userRoomPrefix = "user:"
)

func ChatRoom(sessionID string) string {
	return chatRoomPrefix + sessionID
}

func UserRoom(userID string) string {
	return userRoomPrefix + userID
}

type Room struct {
	ID      string
	Clients map[string]*WSClient
}

// Delivery is a frame bound for every member of RoomID, or for ClientID alone when set.
type Delivery struct {
	RoomID   string
	ClientID string
	Exclude  string
	Payload  []byte
}

type membership struct {
	client *WSClient
	roomID string
}
