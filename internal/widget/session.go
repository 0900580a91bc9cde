package widget

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront-chat/internal/dto"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const defaultRequestTimeout = 15 * time.Second

type SessionManagerOptions struct {
	API            API
	Live           Live
	Auth           Auth
	RequestTimeout time.Duration
	Location       *time.Location
	Logger         zerolog.Logger
}

// SessionManager discovers, creates and reuses the customer's single outstanding session
// and tracks which sessions are joined on the live channel.
type SessionManager struct {
	api      API
	live     Live
	auth     Auth
	timeout  time.Duration
	location *time.Location
	log      zerolog.Logger

	inflight singleflight.Group

	mu     sync.Mutex
	joined map[string]struct{}
}

func NewSessionManager(opts SessionManagerOptions) *SessionManager {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &SessionManager{
		api:      opts.API,
		live:     opts.Live,
		auth:     opts.Auth,
		timeout:  timeout,
		location: opts.Location,
		log:      opts.Logger,
		joined:   make(map[string]struct{}),
	}
}

// ResolveOrCreateSession returns the customer's outstanding session, creating one when
// none exists. Overlapping calls for the same customer share one resolution, so at most
// one create request is issued.
func (m *SessionManager) ResolveOrCreateSession(ctx context.Context, customer Customer) (Session, error) {
	if err := m.authorize(customer); err != nil {
		return Session{}, err
	}

	v, err := m.do(ctx, "create:"+customer.UserID, func(ctx context.Context) (interface{}, error) {
		session, err := m.lookup(ctx)
		if err != nil {
			return nil, err
		}
		if session != nil {
			return *session, nil
		}

		created, err := m.api.CreateSession(ctx, dto.CreateSessionRequest{
			Name:  customer.Name,
			Email: customer.Email,
		})
		if err != nil {
			return nil, transportError(ErrorCodeSessionUnavailable, "could not start a chat session", err)
		}
		m.log.Info().Str("session_id", created.ID).Msg("chat session created")
		return NormalizeSession(created), nil
	})
	if err != nil {
		return Session{}, err
	}
	return v.(Session), nil
}

// ResolveSession is the lookup-only variant used when the widget opens. It returns nil
// when the customer has no outstanding session.
func (m *SessionManager) ResolveSession(ctx context.Context, customer Customer) (*Session, error) {
	if err := m.authorize(customer); err != nil {
		return nil, err
	}

	v, err := m.do(ctx, "resolve:"+customer.UserID, func(ctx context.Context) (interface{}, error) {
		return m.lookup(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// LoadHistory fetches the session detail and its messages.
func (m *SessionManager) LoadHistory(ctx context.Context, sessionID string) (Session, []Message, error) {
	if m.auth.Token() == "" {
		return Session{}, nil, newError(ErrorCodeUnauthorized, "please log in to chat with support", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	detail, err := m.api.GetSession(ctx, sessionID)
	if err != nil {
		return Session{}, nil, transportError(ErrorCodeSessionUnavailable, "could not load the conversation", err)
	}
	items, err := m.api.ListMessages(ctx, sessionID)
	if err != nil {
		return Session{}, nil, transportError(ErrorCodeSessionUnavailable, "could not load the conversation", err)
	}
	return NormalizeSession(detail), NormalizeMessages(items, m.location), nil
}

// Subscribe joins the live channel for sessionID once; repeated calls are no-ops.
func (m *SessionManager) Subscribe(sessionID string) error {
	if m.live == nil || sessionID == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.joined[sessionID]; ok {
		return nil
	}
	if err := m.live.JoinChat(sessionID); err != nil {
		return err
	}
	m.joined[sessionID] = struct{}{}
	return nil
}

func (m *SessionManager) Unsubscribe(sessionID string) error {
	if m.live == nil || sessionID == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.joined[sessionID]; !ok {
		return nil
	}
	delete(m.joined, sessionID)
	return m.live.LeaveChat(sessionID)
}

// UnsubscribeAll leaves every joined session and returns the first failure.
func (m *SessionManager) UnsubscribeAll() error {
	if m.live == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var first error
	for sessionID := range m.joined {
		delete(m.joined, sessionID)
		if err := m.live.LeaveChat(sessionID); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *SessionManager) Subscribed(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.joined[sessionID]
	return ok
}

func (m *SessionManager) authorize(customer Customer) error {
	if m.auth == nil || m.auth.Token() == "" || customer.UserID == "" {
		return newError(ErrorCodeUnauthorized, "please log in to chat with support", nil)
	}
	return nil
}

// do runs fn once per key among overlapping callers. The shared call is detached from
// the first caller's cancellation so later callers are not failed by it.
func (m *SessionManager) do(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	ch := m.inflight.DoChan(key, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()
		return fn(callCtx)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, newError(ErrorCodeSessionUnavailable, "session lookup cancelled", ctx.Err())
	}
}

func (m *SessionManager) lookup(ctx context.Context) (*Session, error) {
	items, err := m.api.ListCustomerSessions(ctx)
	if err != nil {
		return nil, transportError(ErrorCodeSessionUnavailable, "could not reach chat support", err)
	}
	sessions := make([]Session, 0, len(items))
	for _, item := range items {
		sessions = append(sessions, NormalizeSession(item))
	}
	return pickOutstanding(sessions), nil
}

// pickOutstanding prefers active over pending, then the most recent activity.
func pickOutstanding(sessions []Session) *Session {
	var candidates []Session
	for _, s := range sessions {
		if s.Outstanding() {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if (a.Status == SessionActive) != (b.Status == SessionActive) {
			return a.Status == SessionActive
		}
		return a.LastActivity.After(b.LastActivity)
	})
	picked := candidates[0]
	return &picked
}
