package chat

import (
	"context"
	"errors"
	"sort"
	"time"

	"storefront-chat/internal/database"
	"storefront-chat/internal/model"
)

var ErrNotFound = errors.New("chat repository: not found")

// SessionUpdate carries the optional fields of a session mutation; nil fields are left untouched.
type SessionUpdate struct {
	Status         *model.SessionStatus
	AssigneeID     *string
	AssigneeName   *string
	LastActivityAt *string
	UpdatedAt      string
}

type Repository interface {
	CreateSession(ctx context.Context, session model.SessionItem) error
	GetSession(ctx context.Context, sessionID string) (model.SessionItem, error)
	UpdateSession(ctx context.Context, sessionID string, update SessionUpdate) (model.SessionItem, error)
	ListSessionsByCustomer(ctx context.Context, customerID string) ([]model.SessionItem, error)
	ListSessions(ctx context.Context, limit int) ([]model.SessionItem, error)
	CreateMessage(ctx context.Context, message model.MessageItem) error
	ListMessages(ctx context.Context, sessionID string, limit int) ([]model.MessageItem, error)
}

type DynamoRepository struct {
	db *database.Database
}

func NewDynamoRepository(db *database.Database) Repository {
	return &DynamoRepository{db: db}
}

func sessionKey(sessionID string) database.Key {
	return database.Key{"sessionId": sessionID}
}

func (r *DynamoRepository) CreateSession(ctx context.Context, session model.SessionItem) error {
	return r.db.Put(ctx, model.SessionsTable, session)
}

func (r *DynamoRepository) GetSession(ctx context.Context, sessionID string) (model.SessionItem, error) {
	session, err := database.Get[model.SessionItem](ctx, r.db, model.SessionsTable, sessionKey(sessionID))
	if errors.Is(err, database.ErrItemNotFound) {
		return model.SessionItem{}, ErrNotFound
	}
	return session, err
}

func (r *DynamoRepository) UpdateSession(ctx context.Context, sessionID string, update SessionUpdate) (model.SessionItem, error) {
	u := (&database.Update{}).Set("updatedAt", database.S(update.UpdatedAt))
	if update.Status != nil {
		u.Set("status", database.S(string(*update.Status)))
	}
	if update.AssigneeID != nil {
		u.Set("assigneeId", database.S(*update.AssigneeID))
	}
	if update.AssigneeName != nil {
		u.Set("assigneeName", database.S(*update.AssigneeName))
	}
	if update.LastActivityAt != nil {
		u.Set("lastActivityAt", database.S(*update.LastActivityAt))
	}

	session, err := database.Apply[model.SessionItem](ctx, r.db, model.SessionsTable, sessionKey(sessionID), u)
	if errors.Is(err, database.ErrItemNotFound) {
		return model.SessionItem{}, ErrNotFound
	}
	return session, err
}

func (r *DynamoRepository) ListSessionsByCustomer(ctx context.Context, customerID string) ([]model.SessionItem, error) {
	sessions, err := database.QueryAll[model.SessionItem](ctx, r.db, database.Query{
		Table:      model.SessionsTable,
		Index:      model.SessionsByCustomerIndex,
		Attribute:  "customerId",
		Value:      customerID,
		Descending: true,
	})
	if err != nil {
		return nil, err
	}
	// GSI reads are eventually consistent and activity strings may mix precisions.
	sortByActivity(sessions)
	return sessions, nil
}

// ListSessions backs the agent conversation list. Sessions are few enough that a scan is acceptable.
func (r *DynamoRepository) ListSessions(ctx context.Context, limit int) ([]model.SessionItem, error) {
	sessions, err := database.ScanWhere[model.SessionItem](ctx, r.db, model.SessionsTable, "deleted", database.Bool(false))
	if err != nil {
		return nil, err
	}
	sortByActivity(sessions)

	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (r *DynamoRepository) CreateMessage(ctx context.Context, message model.MessageItem) error {
	return r.db.Put(ctx, model.MessagesTable, message)
}

// ListMessages returns the newest limit messages of a session, oldest first.
func (r *DynamoRepository) ListMessages(ctx context.Context, sessionID string, limit int) ([]model.MessageItem, error) {
	messages, err := database.QueryAll[model.MessageItem](ctx, r.db, database.Query{
		Table:      model.MessagesTable,
		Index:      model.MessagesBySessionIndex,
		Attribute:  "sessionId",
		Value:      sessionID,
		Descending: true,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return parseTime(messages[i].CreatedAt).Before(parseTime(messages[j].CreatedAt))
	})
	return messages, nil
}

func sortByActivity(sessions []model.SessionItem) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return parseTime(sessions[i].LastActivityAt).After(parseTime(sessions[j].LastActivityAt))
	})
}

func parseTime(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}
	}
	return t
}
