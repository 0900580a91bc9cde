package widget

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"storefront-chat/internal/dto"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	maxMessageLength = 4000
	messageTypeText  = "text"
	tempIDPrefix     = "temp-"
)

type Phase string

const (
	PhaseClosed    Phase = "closed"
	PhaseOpening   Phase = "opening"
	PhaseNoSession Phase = "open:no-session"
	PhasePending   Phase = "open:session-pending"
	PhaseActive    Phase = "open:session-active"
)

func (p Phase) Open() bool {
	return p == PhaseNoSession || p == PhasePending || p == PhaseActive
}

type state int

const (
	stateClosed state = iota
	stateOpening
	stateOpen
)

type NoticeKind string

const (
	NoticeLoginRequired NoticeKind = "login_required"
	NoticeOffline       NoticeKind = "offline"
	NoticeSessionError  NoticeKind = "session_error"
	NoticeSendFailed    NoticeKind = "send_failed"
	NoticeSessionClosed NoticeKind = "session_closed"
	NoticeRejected      NoticeKind = "rejected"
)

// Notice is the user-facing banner. RetryID names the failed message a retry re-sends.
type Notice struct {
	Kind    NoticeKind
	Message string
	RetryID string
}

type Snapshot struct {
	Phase        Phase
	Minimized    bool
	Loading      bool
	Session      *Session
	Messages     []Message
	Unread       int
	RemoteTyping bool
	Notice       *Notice
	Availability Availability
}

type Options struct {
	API                API
	Live               Live
	Auth               Auth
	Signals            *Signals
	Clock              clockwork.Clock
	Logger             zerolog.Logger
	RequestTimeout     time.Duration
	TypingIdle         time.Duration
	ReconcileTolerance time.Duration
	Location           *time.Location
}

// Controller owns one widget instance: its open state, the tracked session and the
// message store. All mutation of those goes through its methods.
type Controller struct {
	api      API
	live     Live
	auth     Auth
	signals  *Signals
	clock    clockwork.Clock
	log      zerolog.Logger
	timeout  time.Duration
	location *time.Location

	sessions *SessionManager
	store    *MessageStore
	typing   *TypingCoordinator

	mu           sync.Mutex
	state        state
	minimized    bool
	loading      bool
	epoch        uint64
	session      *Session
	unread       int
	counted      map[string]struct{}
	notice       *Notice
	draft        string
	availability Availability

	changes chan struct{}
}

func NewController(opts Options) *Controller {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	log := opts.Logger.With().Str("component", "widget").Logger()

	c := &Controller{
		api:      opts.API,
		live:     opts.Live,
		auth:     opts.Auth,
		signals:  opts.Signals,
		clock:    clock,
		log:      log,
		timeout:  timeout,
		location: opts.Location,
		store:    NewMessageStore(opts.ReconcileTolerance),
		counted:  make(map[string]struct{}),
		changes:  make(chan struct{}, 1),
	}
	c.sessions = NewSessionManager(SessionManagerOptions{
		API:            opts.API,
		Live:           opts.Live,
		Auth:           opts.Auth,
		RequestTimeout: timeout,
		Location:       opts.Location,
		Logger:         log,
	})
	c.typing = NewTypingCoordinator(clock, opts.TypingIdle, c.emitTyping)
	return c
}

// Changes fires after any visible state change. Signals coalesce.
func (c *Controller) Changes() <-chan struct{} {
	return c.changes
}

func (c *Controller) notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Phase:        c.phaseLocked(),
		Minimized:    c.minimized,
		Loading:      c.loading,
		Messages:     c.store.Messages(),
		Unread:       c.unread,
		RemoteTyping: c.typing.RemoteTyping(),
		Availability: c.availability,
	}
	if c.session != nil {
		s := *c.session
		snap.Session = &s
	}
	if c.notice != nil {
		n := *c.notice
		snap.Notice = &n
	}
	return snap
}

func (c *Controller) phaseLocked() Phase {
	switch c.state {
	case stateClosed:
		return PhaseClosed
	case stateOpening:
		return PhaseOpening
	}
	if c.session == nil {
		return PhaseNoSession
	}
	if c.session.Status == SessionActive {
		return PhaseActive
	}
	return PhasePending
}

// Open resolves the customer's session and loads its history. A call while a previous
// open is still resolving is ignored; a call while minimized restores the widget.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case stateOpening:
		c.mu.Unlock()
		return nil
	case stateOpen:
		c.minimized = false
		c.unread = 0
		c.mu.Unlock()
		c.notify()
		return nil
	}

	customer, ok := c.auth.User()
	if c.auth.Token() == "" || !ok {
		err := newError(ErrorCodeUnauthorized, "please log in to chat with support", nil)
		c.notice = noticeFor(err)
		c.mu.Unlock()
		c.notify()
		return err
	}

	c.state = stateOpening
	c.epoch++
	epoch := c.epoch
	c.loading = true
	c.notice = nil
	c.unread = 0
	c.counted = make(map[string]struct{})
	c.mu.Unlock()
	c.notify()

	avail := c.fetchAvailability(ctx)
	if !avail.Online {
		err := newError(ErrorCodeOffline, avail.Summary(), nil)
		c.mu.Lock()
		if c.epoch == epoch && c.state == stateOpening {
			c.state = stateClosed
			c.loading = false
			c.availability = avail
			c.notice = noticeFor(err)
		}
		c.mu.Unlock()
		c.notify()
		return err
	}

	session, history, err := c.resolveForOpen(ctx, customer)

	c.mu.Lock()
	if c.epoch != epoch || c.state != stateOpening {
		c.mu.Unlock()
		c.log.Debug().Msg("dropping open result for a closed widget")
		return nil
	}
	c.loading = false
	c.availability = avail
	if err != nil {
		c.state = stateClosed
		c.notice = noticeFor(err)
		c.mu.Unlock()
		c.notify()
		return err
	}

	c.state = stateOpen
	c.minimized = false
	c.store.Reset()
	if session != nil {
		c.attachLocked(*session)
		for _, m := range history {
			c.store.Append(m)
		}
	}
	c.mu.Unlock()
	c.notify()
	return nil
}

func (c *Controller) resolveForOpen(ctx context.Context, customer Customer) (*Session, []Message, error) {
	session, err := c.sessions.ResolveSession(ctx, customer)
	if err != nil || session == nil {
		return nil, nil, err
	}
	detail, history, err := c.sessions.LoadHistory(ctx, session.ID)
	if err != nil {
		return nil, nil, err
	}
	if detail.ID == "" {
		detail = *session
	}
	if !detail.Outstanding() {
		return nil, nil, nil
	}
	return &detail, history, nil
}

// Close leaves the live channel for whatever session is tracked and forgets it.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return
	}
	c.state = stateClosed
	c.epoch++
	c.minimized = false
	c.loading = false
	c.detachLocked()
	c.store.Reset()
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) Toggle(ctx context.Context) error {
	c.mu.Lock()
	current := c.state
	c.mu.Unlock()

	switch current {
	case stateClosed:
		return c.Open(ctx)
	case stateOpen:
		c.Close()
	}
	return nil
}

func (c *Controller) Minimize() {
	c.mu.Lock()
	if c.state != stateOpen || c.minimized {
		c.mu.Unlock()
		return
	}
	c.minimized = true
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) DismissNotice() {
	c.mu.Lock()
	c.notice = nil
	c.mu.Unlock()
	c.notify()
}

// TakeDraft returns and clears text restored after a failed send.
func (c *Controller) TakeDraft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.draft
	c.draft = ""
	return d
}

// Typing records a local keystroke.
func (c *Controller) Typing() {
	c.mu.Lock()
	open := c.state == stateOpen
	c.mu.Unlock()
	if open {
		c.typing.NotifyTyping()
	}
}

// Send shows content optimistically and delivers it over both the live channel and
// REST. A session is resolved or created first when none is tracked.
func (c *Controller) Send(ctx context.Context, content string) (Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Message{}, newError(ErrorCodeValidation, "message is empty", nil)
	}
	if utf8.RuneCountInString(content) > maxMessageLength {
		return Message{}, newError(ErrorCodeValidation, "message is too long", nil)
	}

	c.mu.Lock()
	if c.state != stateOpen {
		c.mu.Unlock()
		return Message{}, newError(ErrorCodeValidation, "chat is not open", nil)
	}
	customer, _ := c.auth.User()
	now := c.clock.Now()
	msg := Message{
		ClientID:    tempIDPrefix + uuid.NewString(),
		Content:     content,
		Sender:      SenderCustomer,
		SenderID:    customer.UserID,
		SenderName:  customer.Name,
		Timestamp:   now,
		DisplayTime: formatDisplayTime(now, c.location),
		Status:      StatusSending,
	}
	if c.session != nil {
		msg.SessionID = c.session.ID
	}
	c.store.Append(msg)
	c.draft = ""
	c.notice = nil
	epoch := c.epoch
	c.mu.Unlock()
	c.notify()

	c.typing.Stop()
	return msg, c.deliver(ctx, epoch, msg.ClientID, content)
}

// Retry re-sends one failed message without reloading the session.
func (c *Controller) Retry(ctx context.Context, tempID string) error {
	c.mu.Lock()
	if c.state != stateOpen {
		c.mu.Unlock()
		return newError(ErrorCodeValidation, "chat is not open", nil)
	}
	m, ok := c.store.Find(tempID)
	if !ok || !m.Pending() || m.Status != StatusFailed {
		c.mu.Unlock()
		return newError(ErrorCodeValidation, "nothing to retry", nil)
	}
	c.store.MarkSending(tempID)
	if c.draft == m.Content {
		c.draft = ""
	}
	c.notice = nil
	epoch := c.epoch
	c.mu.Unlock()
	c.notify()

	return c.deliver(ctx, epoch, tempID, m.Content)
}

func (c *Controller) deliver(ctx context.Context, epoch uint64, tempID, content string) error {
	sessionID, err := c.ensureSession(ctx, epoch)
	if err != nil {
		c.failSend(epoch, tempID, content, err)
		return err
	}

	if c.live != nil {
		err := c.live.SendMessage(sessionID, dto.SendMessagePayload{
			Content:         content,
			Type:            messageTypeText,
			ClientMessageID: tempID,
		})
		if err != nil {
			c.log.Debug().Err(err).Str("session_id", sessionID).Msg("live send leg failed")
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	reply, err := c.api.PostMessage(reqCtx, sessionID, dto.PostMessageRequest{
		Content:         content,
		Type:            messageTypeText,
		ClientMessageID: tempID,
	})
	if err != nil {
		werr := transportError(ErrorCodeSendFailed, "message could not be sent", err)
		if errors.Is(err, ErrRejected) {
			werr = newError(ErrorCodeValidation, "message was not accepted", err)
		}
		c.failSend(epoch, tempID, content, werr)
		return werr
	}

	server := NormalizeMessage(reply, c.location)
	c.mu.Lock()
	if c.epoch == epoch {
		c.store.MarkSent(tempID, server)
		c.touchLocked(server.Timestamp)
	}
	c.mu.Unlock()
	c.notify()
	return nil
}

func (c *Controller) ensureSession(ctx context.Context, epoch uint64) (string, error) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return "", newError(ErrorCodeSendFailed, "chat was closed", nil)
	}
	if c.session != nil {
		id := c.session.ID
		c.mu.Unlock()
		return id, nil
	}
	customer, _ := c.auth.User()
	c.mu.Unlock()

	session, err := c.sessions.ResolveOrCreateSession(ctx, customer)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return "", newError(ErrorCodeSendFailed, "chat was closed", nil)
	}
	if c.session == nil {
		c.attachLocked(session)
		c.notify()
	}
	return c.session.ID, nil
}

// failSend keeps the failed entry in the list and puts its text back in the input.
func (c *Controller) failSend(epoch uint64, tempID, content string, err error) {
	c.mu.Lock()
	if m, ok := c.store.Find(tempID); ok && !m.Pending() {
		// The live leg already delivered it.
		c.mu.Unlock()
		c.log.Debug().Err(err).Str("temp_id", tempID).Msg("rest leg failed after live delivery")
		return
	}
	c.draft = content
	if c.epoch == epoch {
		c.store.MarkFailed(tempID)
		n := noticeFor(err)
		if n.Kind == NoticeSessionError {
			n.Kind = NoticeSendFailed
		}
		if n.Kind != NoticeRejected {
			n.RetryID = tempID
		}
		c.notice = n
	}
	c.mu.Unlock()
	c.notify()
	c.log.Warn().Err(err).Str("temp_id", tempID).Msg("send failed")
}

func (c *Controller) attachLocked(s Session) {
	c.session = &s
	c.typing.Bind(s.ID)
	if err := c.sessions.Subscribe(s.ID); err != nil {
		c.log.Warn().Err(err).Str("session_id", s.ID).Msg("live subscribe failed; relying on REST")
	}
}

func (c *Controller) detachLocked() {
	c.typing.Stop()
	c.typing.Bind("")
	if err := c.sessions.UnsubscribeAll(); err != nil {
		c.log.Debug().Err(err).Msg("live unsubscribe failed")
	}
	c.session = nil
}

func (c *Controller) touchLocked(t time.Time) {
	if c.session != nil && t.After(c.session.LastActivity) {
		c.session.LastActivity = t
	}
}

func (c *Controller) emitTyping(sessionID string, typing bool) {
	if c.live == nil {
		return
	}
	var err error
	if typing {
		err = c.live.StartTyping(sessionID)
	} else {
		err = c.live.StopTyping(sessionID)
	}
	if err != nil {
		c.log.Debug().Err(err).Bool("typing", typing).Msg("typing signal not sent")
	}
}

// Run consumes live events and program signals until ctx ends, then closes the widget.
func (c *Controller) Run(ctx context.Context) error {
	var events <-chan dto.Envelope
	if c.live != nil {
		events = c.live.Events()
	}
	var signals <-chan Signal
	if c.signals != nil {
		ch, stop := c.signals.Listen()
		defer stop()
		signals = ch
	}
	defer c.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-events:
			if !ok {
				c.log.Warn().Msg("live channel closed")
				events = nil
				continue
			}
			c.HandleEvent(env)
		case sig := <-signals:
			if sig != EventOpenChatWidget {
				continue
			}
			go func() {
				if err := c.Open(ctx); err != nil {
					c.log.Debug().Err(err).Msg("programmatic open failed")
				}
			}()
		}
	}
}

// HandleEvent applies one inbound live frame.
func (c *Controller) HandleEvent(env dto.Envelope) {
	switch env.Event {
	case dto.EventNewMessage:
		var raw dto.Message
		if err := json.Unmarshal(env.Data, &raw); err != nil {
			c.log.Warn().Err(err).Msg("malformed new_message")
			return
		}
		if raw.ChatID == "" {
			raw.ChatID = env.ChatID
		}
		c.receiveMessage(NormalizeMessage(raw, c.location))
	case dto.EventTypingStatus:
		var status dto.TypingStatus
		if err := json.Unmarshal(env.Data, &status); err != nil {
			c.log.Warn().Err(err).Msg("malformed typing_status")
			return
		}
		if status.ChatID == "" {
			status.ChatID = env.ChatID
		}
		c.receiveTyping(status)
	case dto.EventChatUpdated:
		var raw dto.Session
		if err := json.Unmarshal(env.Data, &raw); err != nil {
			c.log.Warn().Err(err).Msg("malformed chat_updated")
			return
		}
		c.receiveSessionUpdate(NormalizeSession(raw))
	case dto.EventError:
		c.log.Warn().RawJSON("data", env.Data).Str("chat_id", env.ChatID).Msg("live channel error")
	}
}

func (c *Controller) receiveMessage(msg Message) {
	c.mu.Lock()
	tracked := c.state == stateOpen && c.session != nil && c.session.ID == msg.SessionID
	switch {
	case tracked:
		res := c.store.Append(msg)
		if res == Replaced {
			c.recoverLocked()
		}
		if msg.Sender == SenderAgent {
			c.typing.ClearRemote()
			if res == Inserted && c.minimized {
				c.countUnreadLocked(msg)
			}
		}
		c.touchLocked(msg.Timestamp)
	case msg.Sender == SenderAgent && (c.state == stateClosed || c.minimized):
		c.countUnreadLocked(msg)
	default:
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.notify()
}

// recoverLocked drops the send-failed notice once the message it names was confirmed by
// the other delivery leg, along with the draft restored for it.
func (c *Controller) recoverLocked() {
	if c.notice == nil || c.notice.RetryID == "" {
		return
	}
	m, ok := c.store.Find(c.notice.RetryID)
	if !ok || m.Pending() {
		return
	}
	if c.draft == m.Content {
		c.draft = ""
	}
	c.notice = nil
}

func (c *Controller) countUnreadLocked(msg Message) {
	key := msg.Key()
	if _, ok := c.counted[key]; ok {
		return
	}
	c.counted[key] = struct{}{}
	c.unread++
}

func (c *Controller) receiveTyping(status dto.TypingStatus) {
	if customer, ok := c.auth.User(); ok && customer.UserID == status.UserID {
		return
	}
	if c.typing.SetRemote(status.ChatID, status.IsTyping) {
		c.notify()
	}
}

func (c *Controller) receiveSessionUpdate(s Session) {
	c.mu.Lock()
	if c.state != stateOpen || c.session == nil || c.session.ID != s.ID {
		c.mu.Unlock()
		return
	}
	if !s.Outstanding() {
		c.detachLocked()
		c.notice = &Notice{
			Kind:    NoticeSessionClosed,
			Message: "This conversation has ended. Send a message to start a new one.",
		}
	} else {
		c.session.Status = s.Status
		c.session.Assignee = s.Assignee
		c.touchLocked(s.LastActivity)
	}
	c.mu.Unlock()
	c.notify()
}

func noticeFor(err error) *Notice {
	switch CodeOf(err) {
	case ErrorCodeUnauthorized:
		return &Notice{Kind: NoticeLoginRequired, Message: "Please log in to chat with support."}
	case ErrorCodeOffline:
		return &Notice{Kind: NoticeOffline, Message: err.Error()}
	case ErrorCodeSendFailed:
		return &Notice{Kind: NoticeSendFailed, Message: "Message not sent. Press retry to send it again."}
	case ErrorCodeValidation:
		return &Notice{Kind: NoticeRejected, Message: "Message was not accepted. Edit it and send again."}
	}
	return &Notice{Kind: NoticeSessionError, Message: "Chat support could not be reached. Try again."}
}
