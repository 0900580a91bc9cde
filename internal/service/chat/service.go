package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"storefront-chat/internal/database"
	internaljwt "storefront-chat/internal/jwt"
	"storefront-chat/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ErrorCode string

const (
	ErrorCodeValidation   ErrorCode = "validation_error"
	ErrorCodeUnauthorized ErrorCode = "unauthorized"
	ErrorCodeForbidden    ErrorCode = "forbidden"
	ErrorCodeNotFound     ErrorCode = "not_found"
	ErrorCodeConflict     ErrorCode = "conflict"
	ErrorCodeInternal     ErrorCode = "internal_error"
)

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

const (
	defaultIdempotencyTTL = 10 * time.Minute
	defaultMessageLimit   = 200
	createLockTTL         = 30 * time.Second
	maxContentLength      = 4000
	defaultClaimWait      = time.Second
	claimPollInterval     = 25 * time.Millisecond
)

// pendingMessage holds a message key while its first writer is still storing it.
var pendingMessage = []byte("pending")

type Identity struct {
	UserID string
	Email  string
	Name   string
	Role   internaljwt.Role
}

func (i Identity) IsStaff() bool {
	return i.Role.IsStaff()
}

func (i Identity) displayName() string {
	if i.Name != "" {
		return i.Name
	}
	return i.Email
}

// Notifier receives committed changes so they can be fanned out on the live channel.
type Notifier interface {
	MessageCreated(ctx context.Context, session model.SessionItem, message model.MessageItem)
	SessionUpdated(ctx context.Context, session model.SessionItem)
}

type Options struct {
	Keys           KeyStore
	Notifier       Notifier
	Availability   *AvailabilityPolicy
	TokenSecret    string
	IdempotencyTTL time.Duration
	MessageLimit   int
	Logger         zerolog.Logger
	Now            func() time.Time
}

type CreateSessionParams struct {
	Name  string
	Email string
}

type SessionResult struct {
	Session model.SessionItem
	Created bool
}

type UpdateSessionParams struct {
	Status       string
	AssigneeName string
	AssignToMe   bool
}

type PostMessageParams struct {
	Content         string
	Type            string
	ClientMessageID string
}

type MessageResult struct {
	Session   model.SessionItem
	Message   model.MessageItem
	Duplicate bool
}

type ListMessagesResult struct {
	Session  model.SessionItem
	Messages []model.MessageItem
}

type Service struct {
	repo           Repository
	keys           KeyStore
	notifier       Notifier
	availability   *AvailabilityPolicy
	tokenSecret    string
	idempotencyTTL time.Duration
	messageLimit   int
	claimWait      time.Duration
	log            zerolog.Logger
	now            func() time.Time
}

func New(db *database.Database, opts Options) *Service {
	return NewWithRepository(NewDynamoRepository(db), opts)
}

func NewWithRepository(repo Repository, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = defaultIdempotencyTTL
	}
	if opts.MessageLimit <= 0 {
		opts.MessageLimit = defaultMessageLimit
	}
	return &Service{
		repo:           repo,
		keys:           opts.Keys,
		notifier:       opts.Notifier,
		availability:   opts.Availability,
		tokenSecret:    opts.TokenSecret,
		idempotencyTTL: opts.IdempotencyTTL,
		messageLimit:   opts.MessageLimit,
		claimWait:      defaultClaimWait,
		log:            opts.Logger.With().Str("component", "chat").Logger(),
		now:            opts.Now,
	}
}

// CreateSession opens a session for the caller, or returns the one still outstanding.
func (s *Service) CreateSession(ctx context.Context, identity Identity, params CreateSessionParams) (SessionResult, error) {
	if identity.UserID == "" {
		return SessionResult{}, newError(ErrorCodeUnauthorized, "invalid user identity", nil)
	}

	if existing, ok, err := s.outstandingSession(ctx, identity.UserID); err != nil {
		return SessionResult{}, err
	} else if ok {
		return SessionResult{Session: existing}, nil
	}

	nowStr := s.timestamp()
	session := model.SessionItem{
		SessionID:      uuid.NewString(),
		CustomerID:     identity.UserID,
		CustomerName:   firstNonEmpty(strings.TrimSpace(params.Name), identity.Name),
		CustomerEmail:  normalizeEmail(firstNonEmpty(params.Email, identity.Email)),
		Status:         model.SessionStatusPending,
		CreatedAt:      nowStr,
		UpdatedAt:      nowStr,
		LastActivityAt: nowStr,
	}

	if s.keys != nil {
		for attempt := 0; ; attempt++ {
			existingID, reserved, err := s.keys.Reserve(ctx, openSessionKey(identity.UserID), []byte(session.SessionID), createLockTTL)
			if err != nil {
				return SessionResult{}, newError(ErrorCodeInternal, "failed to reserve session", err)
			}
			if reserved {
				break
			}

			current, err := s.repo.GetSession(ctx, string(existingID))
			if errors.Is(err, ErrNotFound) {
				return SessionResult{}, newError(ErrorCodeConflict, "session creation in progress", err)
			}
			if err != nil {
				return SessionResult{}, newError(ErrorCodeInternal, "failed to load session", err)
			}
			if current.Status.Outstanding() && !current.Deleted {
				return SessionResult{Session: current}, nil
			}
			if attempt > 0 {
				return SessionResult{}, newError(ErrorCodeConflict, "session creation in progress", nil)
			}
			// Stale reservation pointing at a closed session.
			if err := s.keys.Release(ctx, openSessionKey(identity.UserID)); err != nil {
				return SessionResult{}, newError(ErrorCodeInternal, "failed to release reservation", err)
			}
		}
	}

	if err := s.repo.CreateSession(ctx, session); err != nil {
		s.release(ctx, openSessionKey(identity.UserID))
		return SessionResult{}, newError(ErrorCodeInternal, "failed to create session", err)
	}
	sessionsCreated.Inc()
	s.log.Info().Str("session", session.SessionID).Str("customer", identity.UserID).Msg("session created")

	if s.notifier != nil {
		s.notifier.SessionUpdated(ctx, session)
	}

	return SessionResult{Session: session, Created: true}, nil
}

func (s *Service) ListCustomerSessions(ctx context.Context, identity Identity) ([]model.SessionItem, error) {
	if identity.UserID == "" {
		return nil, newError(ErrorCodeUnauthorized, "invalid user identity", nil)
	}
	sessions, err := s.repo.ListSessionsByCustomer(ctx, identity.UserID)
	if err != nil {
		return nil, newError(ErrorCodeInternal, "failed to list sessions", err)
	}
	return sessions, nil
}

// ListSessions returns every session for staff and the caller's own sessions otherwise.
func (s *Service) ListSessions(ctx context.Context, identity Identity, limit int) ([]model.SessionItem, error) {
	if identity.UserID == "" {
		return nil, newError(ErrorCodeUnauthorized, "invalid user identity", nil)
	}
	if !identity.IsStaff() {
		return s.ListCustomerSessions(ctx, identity)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	sessions, err := s.repo.ListSessions(ctx, limit)
	if err != nil {
		return nil, newError(ErrorCodeInternal, "failed to list sessions", err)
	}
	return sessions, nil
}

func (s *Service) GetSession(ctx context.Context, identity Identity, sessionID string) (model.SessionItem, error) {
	if identity.UserID == "" {
		return model.SessionItem{}, newError(ErrorCodeUnauthorized, "invalid user identity", nil)
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return model.SessionItem{}, newError(ErrorCodeValidation, "session id is required", nil)
	}

	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.SessionItem{}, newError(ErrorCodeNotFound, "session not found", err)
		}
		return model.SessionItem{}, newError(ErrorCodeInternal, "failed to fetch session", err)
	}

	if !identity.IsStaff() && session.CustomerID != identity.UserID {
		return model.SessionItem{}, newError(ErrorCodeForbidden, "session belongs to another customer", nil)
	}
	return session, nil
}

// UpdateSession lets staff change status or assignment. Assigning a pending session activates it.
func (s *Service) UpdateSession(ctx context.Context, identity Identity, sessionID string, params UpdateSessionParams) (model.SessionItem, error) {
	if !identity.IsStaff() {
		return model.SessionItem{}, newError(ErrorCodeForbidden, "only agents can update sessions", nil)
	}

	session, err := s.GetSession(ctx, identity, sessionID)
	if err != nil {
		return model.SessionItem{}, err
	}

	update := SessionUpdate{UpdatedAt: s.timestamp()}

	if params.Status != "" {
		status := model.SessionStatus(strings.ToLower(strings.TrimSpace(params.Status)))
		if !status.Valid() {
			return model.SessionItem{}, newError(ErrorCodeValidation, fmt.Sprintf("unknown status %q", params.Status), nil)
		}
		update.Status = &status
	}

	switch {
	case params.AssignToMe:
		id, name := identity.UserID, identity.displayName()
		update.AssigneeID, update.AssigneeName = &id, &name
	case strings.TrimSpace(params.AssigneeName) != "":
		name := strings.TrimSpace(params.AssigneeName)
		empty := ""
		update.AssigneeID, update.AssigneeName = &empty, &name
	}

	if update.AssigneeName != nil && update.Status == nil && session.Status == model.SessionStatusPending {
		active := model.SessionStatusActive
		update.Status = &active
	}

	if update.Status == nil && update.AssigneeName == nil {
		return model.SessionItem{}, newError(ErrorCodeValidation, "nothing to update", nil)
	}

	updated, err := s.repo.UpdateSession(ctx, session.SessionID, update)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.SessionItem{}, newError(ErrorCodeNotFound, "session not found", err)
		}
		return model.SessionItem{}, newError(ErrorCodeInternal, "failed to update session", err)
	}

	if updated.Status == model.SessionStatusClosed {
		s.release(ctx, openSessionKey(updated.CustomerID))
	}
	if s.notifier != nil {
		s.notifier.SessionUpdated(ctx, updated)
	}

	return updated, nil
}

func (s *Service) ListMessages(ctx context.Context, identity Identity, sessionID string, limit int) (ListMessagesResult, error) {
	session, err := s.GetSession(ctx, identity, sessionID)
	if err != nil {
		return ListMessagesResult{}, err
	}

	if limit <= 0 || limit > s.messageLimit {
		limit = s.messageLimit
	}

	messages, err := s.repo.ListMessages(ctx, session.SessionID, limit)
	if err != nil {
		return ListMessagesResult{}, newError(ErrorCodeInternal, "failed to list messages", err)
	}

	return ListMessagesResult{
		Session:  session,
		Messages: messages,
	}, nil
}

// PostMessage persists a message once per (session, clientMessageId). The widget writes every
// message over both the live channel and REST; whichever leg arrives second gets the stored copy.
func (s *Service) PostMessage(ctx context.Context, identity Identity, sessionID string, params PostMessageParams) (MessageResult, error) {
	content := strings.TrimSpace(params.Content)
	if content == "" {
		return MessageResult{}, newError(ErrorCodeValidation, "message content is required", nil)
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return MessageResult{}, newError(ErrorCodeValidation, "message content is too long", nil)
	}

	session, err := s.GetSession(ctx, identity, sessionID)
	if err != nil {
		return MessageResult{}, err
	}
	if session.Deleted || session.Status == model.SessionStatusClosed {
		return MessageResult{}, newError(ErrorCodeConflict, "session is closed", nil)
	}

	senderType := model.SenderCustomer
	if identity.IsStaff() {
		senderType = model.SenderAgent
	}

	nowStr := s.timestamp()
	messageID := uuid.NewString()
	clientMessageID := strings.TrimSpace(params.ClientMessageID)
	message := model.MessageItem{
		PK:              model.MessagePK(session.SessionID, messageID),
		SessionID:       session.SessionID,
		MessageID:       messageID,
		ClientMessageID: clientMessageID,
		SenderType:      senderType,
		SenderID:        identity.UserID,
		SenderName:      identity.displayName(),
		Body:            content,
		MessageType:     firstNonEmpty(params.Type, "text"),
		CreatedAt:       nowStr,
	}

	key := ""
	if clientMessageID != "" && s.keys != nil {
		key = messageKey(session.SessionID, clientMessageID)
		stored, duplicate, err := s.claimMessage(ctx, key)
		if err != nil {
			return MessageResult{}, err
		}
		if duplicate {
			messagesDeduplicated.Inc()
			return MessageResult{Session: session, Message: stored, Duplicate: true}, nil
		}
	}

	if err := s.repo.CreateMessage(ctx, message); err != nil {
		if key != "" {
			s.release(ctx, key)
		}
		return MessageResult{}, newError(ErrorCodeInternal, "failed to store message", err)
	}
	if key != "" {
		s.remember(ctx, key, message)
	}
	messagesStored.WithLabelValues(string(senderType)).Inc()

	update := SessionUpdate{UpdatedAt: nowStr, LastActivityAt: &nowStr}
	if senderType == model.SenderAgent && session.AssigneeID == "" && session.AssigneeName == "" {
		id, name := identity.UserID, identity.displayName()
		update.AssigneeID, update.AssigneeName = &id, &name
		if session.Status == model.SessionStatusPending {
			active := model.SessionStatusActive
			update.Status = &active
		}
	}

	updated, err := s.repo.UpdateSession(ctx, session.SessionID, update)
	if err != nil {
		return MessageResult{}, newError(ErrorCodeInternal, "failed to update session", err)
	}

	if s.notifier != nil {
		s.notifier.MessageCreated(ctx, updated, message)
		if updated.Status != session.Status || updated.AssigneeName != session.AssigneeName {
			s.notifier.SessionUpdated(ctx, updated)
		}
	}

	return MessageResult{Session: updated, Message: message}, nil
}

func (s *Service) Availability() Availability {
	if s.availability == nil {
		return Availability{Online: true, Timezone: "UTC"}
	}
	return s.availability.At(s.now())
}

func (s *Service) IdentityFromAuthorizationHeader(header string) (Identity, error) {
	authHeader := strings.TrimSpace(header)
	if authHeader == "" {
		return Identity{}, newError(ErrorCodeUnauthorized, "missing authorization header", nil)
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return Identity{}, newError(ErrorCodeUnauthorized, "invalid authorization header format", nil)
	}

	return s.IdentityFromToken(strings.TrimPrefix(authHeader, "Bearer "))
}

func (s *Service) IdentityFromToken(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, newError(ErrorCodeUnauthorized, "empty token", nil)
	}

	claims, err := internaljwt.ParseToken(s.tokenSecret, token)
	if err != nil {
		return Identity{}, newError(ErrorCodeUnauthorized, "invalid token", err)
	}

	user := claims.User()
	return Identity{
		UserID: user.Id,
		Email:  user.Email,
		Name:   user.Name,
		Role:   user.Role,
	}, nil
}

func (s *Service) outstandingSession(ctx context.Context, customerID string) (model.SessionItem, bool, error) {
	sessions, err := s.repo.ListSessionsByCustomer(ctx, customerID)
	if err != nil {
		return model.SessionItem{}, false, newError(ErrorCodeInternal, "failed to list sessions", err)
	}
	session, ok := pickOutstanding(sessions)
	return session, ok, nil
}

// pickOutstanding prefers active over pending sessions, most recent activity first.
func pickOutstanding(sessions []model.SessionItem) (model.SessionItem, bool) {
	candidates := make([]model.SessionItem, 0, len(sessions))
	for _, session := range sessions {
		if session.Deleted || !session.Status.Outstanding() {
			continue
		}
		candidates = append(candidates, session)
	}
	if len(candidates) == 0 {
		return model.SessionItem{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ai := candidates[i].Status == model.SessionStatusActive
		aj := candidates[j].Status == model.SessionStatusActive
		if ai != aj {
			return ai
		}
		return parseTime(candidates[i].LastActivityAt).After(parseTime(candidates[j].LastActivityAt))
	})
	return candidates[0], true
}

// claimMessage takes the message key for this writer, or returns the copy another writer
// already stored. While the other writer is still storing, it waits up to claimWait; a
// writer that fails releases the key and the waiter takes over.
func (s *Service) claimMessage(ctx context.Context, key string) (model.MessageItem, bool, error) {
	deadline := time.Now().Add(s.claimWait)
	for {
		existing, reserved, err := s.keys.Reserve(ctx, key, pendingMessage, s.idempotencyTTL)
		if err != nil {
			return model.MessageItem{}, false, newError(ErrorCodeInternal, "failed to reserve message", err)
		}
		if reserved {
			return model.MessageItem{}, false, nil
		}
		if !bytes.Equal(existing, pendingMessage) {
			var stored model.MessageItem
			if err := json.Unmarshal(existing, &stored); err != nil {
				return model.MessageItem{}, false, newError(ErrorCodeInternal, "failed to decode stored message", err)
			}
			return stored, true, nil
		}
		if time.Now().After(deadline) {
			return model.MessageItem{}, false, newError(ErrorCodeConflict, "message is still being stored", nil)
		}

		timer := time.NewTimer(claimPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return model.MessageItem{}, false, newError(ErrorCodeConflict, "message is still being stored", ctx.Err())
		case <-timer.C:
		}
	}
}

// remember swaps the pending marker for the stored message so later writers replay it.
func (s *Service) remember(ctx context.Context, key string, message model.MessageItem) {
	encoded, err := json.Marshal(message)
	if err == nil {
		err = s.keys.Store(ctx, key, encoded, s.idempotencyTTL)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to record stored message")
	}
}

func (s *Service) release(ctx context.Context, key string) {
	if s.keys == nil {
		return
	}
	if err := s.keys.Release(ctx, key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to release reservation")
	}
}

func (s *Service) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
