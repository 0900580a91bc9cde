package widget

import (
	"slices"
	"sort"
	"sync"
	"time"
)

const defaultReconcileTolerance = 10 * time.Second

type AppendResult int

const (
	Inserted AppendResult = iota
	Replaced
	Duplicate
)

func (r AppendResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Replaced:
		return "replaced"
	case Duplicate:
		return "duplicate"
	}
	return "unknown"
}

// MessageStore is the ordered, deduplicated message sequence of the active session.
// Entries are kept ascending by timestamp with ties in arrival order, and no two
// entries share a server id.
type MessageStore struct {
	mu        sync.RWMutex
	tolerance time.Duration
	items     []Message
	ids       map[string]struct{}
}

func NewMessageStore(tolerance time.Duration) *MessageStore {
	if tolerance <= 0 {
		tolerance = defaultReconcileTolerance
	}
	return &MessageStore{
		tolerance: tolerance,
		ids:       make(map[string]struct{}),
	}
}

// Append adds msg unless it is already present. A server message that confirms a
// pending optimistic entry replaces that entry instead of adding a second one.
func (s *MessageStore) Append(msg Message) AppendResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID != "" {
		if _, ok := s.ids[msg.ID]; ok {
			i := s.indexOfID(msg.ID)
			s.items[i].Status = advance(s.items[i].Status, msg.Status)
			return Duplicate
		}
		if i := s.pendingMatch(msg); i >= 0 {
			s.replace(i, msg)
			return Replaced
		}
	} else if msg.ClientID != "" && s.indexOfClient(msg.ClientID) >= 0 {
		return Duplicate
	}

	s.insert(msg)
	return Inserted
}

// MarkSent reconciles the optimistic entry tempID with the acknowledged server message.
// If the socket echo already landed as its own entry, the optimistic one is dropped.
func (s *MessageStore) MarkSent(tempID string, server Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if server.Status.rank() < StatusSent.rank() {
		server.Status = StatusSent
	}
	if server.ClientID == "" {
		server.ClientID = tempID
	}

	i := s.indexOfPending(tempID)
	if i < 0 {
		if server.ID == "" {
			return false
		}
		if _, ok := s.ids[server.ID]; ok {
			j := s.indexOfID(server.ID)
			s.items[j].Status = advance(s.items[j].Status, server.Status)
			return true
		}
		s.insert(server)
		return true
	}

	if _, ok := s.ids[server.ID]; ok && server.ID != "" {
		j := s.indexOfID(server.ID)
		s.items[j].Status = advance(s.items[j].Status, server.Status)
		if s.items[j].ClientID == "" {
			s.items[j].ClientID = tempID
		}
		s.items = slices.Delete(s.items, i, i+1)
		return true
	}
	s.replace(i, server)
	return true
}

func (s *MessageStore) MarkFailed(tempID string) bool {
	return s.setPendingStatus(tempID, StatusFailed)
}

func (s *MessageStore) MarkSending(tempID string) bool {
	return s.setPendingStatus(tempID, StatusSending)
}

func (s *MessageStore) setPendingStatus(tempID string, status MessageStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOfPending(tempID)
	if i < 0 {
		return false
	}
	s.items[i].Status = status
	return true
}

// Find looks a message up by server id or temporary id.
func (s *MessageStore) Find(id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOfID(id); i >= 0 {
		return s.items[i], true
	}
	if i := s.indexOfClient(id); i >= 0 {
		return s.items[i], true
	}
	return Message{}, false
}

func (s *MessageStore) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *MessageStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.ids = make(map[string]struct{})
}

// pendingMatch finds the optimistic entry msg confirms. A message carrying a client id
// matches only that entry; one without falls back to the oldest pending entry from the
// same sender with the same content close in time.
func (s *MessageStore) pendingMatch(msg Message) int {
	if msg.ClientID != "" {
		return s.indexOfPending(msg.ClientID)
	}
	for i, item := range s.items {
		if !item.Pending() || item.Sender != msg.Sender || item.Content != msg.Content {
			continue
		}
		if absDuration(item.Timestamp.Sub(msg.Timestamp)) <= s.tolerance {
			return i
		}
	}
	return -1
}

// replace swaps the pending entry at i for its confirmed form, keeping its position
// unless the server timestamp no longer fits between its neighbours.
func (s *MessageStore) replace(i int, server Message) {
	pending := s.items[i]
	merged := server
	merged.ClientID = pending.ClientID
	merged.Status = advance(pending.Status, server.Status)
	if merged.Status == StatusFailed || merged.Status == StatusSending {
		merged.Status = StatusSent
	}
	if merged.Timestamp.IsZero() {
		merged.Timestamp = pending.Timestamp
		merged.DisplayTime = pending.DisplayTime
	}
	if merged.ID != "" {
		s.ids[merged.ID] = struct{}{}
	}

	fits := (i == 0 || !s.items[i-1].Timestamp.After(merged.Timestamp)) &&
		(i == len(s.items)-1 || !merged.Timestamp.After(s.items[i+1].Timestamp))
	if fits {
		s.items[i] = merged
		return
	}
	s.items = slices.Delete(s.items, i, i+1)
	s.insert(merged)
}

func (s *MessageStore) insert(msg Message) {
	pos := sort.Search(len(s.items), func(k int) bool {
		return s.items[k].Timestamp.After(msg.Timestamp)
	})
	s.items = slices.Insert(s.items, pos, msg)
	if msg.ID != "" {
		s.ids[msg.ID] = struct{}{}
	}
}

func (s *MessageStore) indexOfID(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(s.items, func(m Message) bool { return m.ID == id })
}

func (s *MessageStore) indexOfClient(clientID string) int {
	if clientID == "" {
		return -1
	}
	return slices.IndexFunc(s.items, func(m Message) bool { return m.ClientID == clientID })
}

func (s *MessageStore) indexOfPending(clientID string) int {
	if clientID == "" {
		return -1
	}
	return slices.IndexFunc(s.items, func(m Message) bool { return m.Pending() && m.ClientID == clientID })
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
