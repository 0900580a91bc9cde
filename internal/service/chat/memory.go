package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront-chat/internal/model"
)

// MemoryRepository keeps sessions and messages in process. It backs the server's
// memory storage driver for local development and the package tests.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]model.SessionItem
	messages map[string][]model.MessageItem
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]model.SessionItem),
		messages: make(map[string][]model.MessageItem),
	}
}

func (m *MemoryRepository) CreateSession(ctx context.Context, session model.SessionItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.SessionID] = session
	return nil
}

func (m *MemoryRepository) GetSession(ctx context.Context, sessionID string) (model.SessionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return model.SessionItem{}, ErrNotFound
	}
	return session, nil
}

func (m *MemoryRepository) UpdateSession(ctx context.Context, sessionID string, update SessionUpdate) (model.SessionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return model.SessionItem{}, ErrNotFound
	}
	session.UpdatedAt = update.UpdatedAt
	if update.Status != nil {
		session.Status = *update.Status
	}
	if update.AssigneeID != nil {
		session.AssigneeID = *update.AssigneeID
	}
	if update.AssigneeName != nil {
		session.AssigneeName = *update.AssigneeName
	}
	if update.LastActivityAt != nil {
		session.LastActivityAt = *update.LastActivityAt
	}
	m.sessions[sessionID] = session
	return session, nil
}

func (m *MemoryRepository) ListSessionsByCustomer(ctx context.Context, customerID string) ([]model.SessionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SessionItem
	for _, session := range m.sessions {
		if session.CustomerID == customerID {
			out = append(out, session)
		}
	}
	sortByActivity(out)
	return out, nil
}

func (m *MemoryRepository) ListSessions(ctx context.Context, limit int) ([]model.SessionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SessionItem
	for _, session := range m.sessions {
		if !session.Deleted {
			out = append(out, session)
		}
	}
	sortByActivity(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) CreateMessage(ctx context.Context, message model.MessageItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[message.SessionID] = append(m.messages[message.SessionID], message)
	return nil
}

func (m *MemoryRepository) ListMessages(ctx context.Context, sessionID string, limit int) ([]model.MessageItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]model.MessageItem(nil), m.messages[sessionID]...)
	sort.SliceStable(out, func(i, j int) bool {
		return parseTime(out[i].CreatedAt).Before(parseTime(out[j].CreatedAt))
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type memoryKey struct {
	value   []byte
	expires time.Time
}

// MemoryKeyStore is the single-process KeyStore. Reservations expire after their TTL.
type MemoryKeyStore struct {
	mu   sync.Mutex
	keys map[string]memoryKey
	now  func() time.Time
}

var _ KeyStore = (*MemoryKeyStore)(nil)

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{keys: make(map[string]memoryKey), now: time.Now}
}

func (m *MemoryKeyStore) Reserve(ctx context.Context, key string, value []byte, ttl time.Duration) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if existing, ok := m.keys[key]; ok {
		if existing.expires.IsZero() || now.Before(existing.expires) {
			return existing.value, false, nil
		}
	}
	entry := memoryKey{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expires = now.Add(ttl)
	}
	m.keys[key] = entry
	return nil, true, nil
}

func (m *MemoryKeyStore) Store(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := memoryKey{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expires = m.now().Add(ttl)
	}
	m.keys[key] = entry
	return nil
}

func (m *MemoryKeyStore) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}
