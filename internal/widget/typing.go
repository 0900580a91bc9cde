package widget

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const defaultTypingIdle = time.Second

// TypingEmitter delivers local typing transitions for a session.
type TypingEmitter func(sessionID string, typing bool)

// TypingCoordinator debounces local keystrokes into start/stop signals and holds the
// remote typing flag for the bound session. At most one idle timer is armed at a time.
type TypingCoordinator struct {
	clock clockwork.Clock
	idle  time.Duration
	emit  TypingEmitter

	mu        sync.Mutex
	sessionID string
	announced string
	typing    bool
	gen       uint64
	timer     clockwork.Timer
	remote    bool
}

func NewTypingCoordinator(clock clockwork.Clock, idle time.Duration, emit TypingEmitter) *TypingCoordinator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if idle <= 0 {
		idle = defaultTypingIdle
	}
	if emit == nil {
		emit = func(string, bool) {}
	}
	return &TypingCoordinator{clock: clock, idle: idle, emit: emit}
}

// Bind switches the coordinator to sessionID, clearing remote state.
func (t *TypingCoordinator) Bind(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sessionID != sessionID {
		t.remote = false
	}
	t.sessionID = sessionID
}

// NotifyTyping records a keystroke.
func (t *TypingCoordinator) NotifyTyping() {
	t.mu.Lock()
	t.typing = true
	t.gen++
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = t.clock.AfterFunc(t.idle, func() { t.expire(gen) })
	sessionID := t.sessionID
	start := sessionID != "" && t.announced != sessionID
	if start {
		t.announced = sessionID
	}
	t.mu.Unlock()

	if start {
		t.emit(sessionID, true)
	}
}

// Stop ends local typing immediately, as on send.
func (t *TypingCoordinator) Stop() {
	t.mu.Lock()
	if !t.typing {
		t.mu.Unlock()
		return
	}
	t.typing = false
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	sessionID := t.announced
	t.announced = ""
	t.mu.Unlock()

	if sessionID != "" {
		t.emit(sessionID, false)
	}
}

func (t *TypingCoordinator) expire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || !t.typing {
		t.mu.Unlock()
		return
	}
	t.typing = false
	t.timer = nil
	sessionID := t.announced
	t.announced = ""
	t.mu.Unlock()

	if sessionID != "" {
		t.emit(sessionID, false)
	}
}

func (t *TypingCoordinator) Typing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typing
}

// SetRemote applies a typing_status event; events for other sessions are ignored.
func (t *TypingCoordinator) SetRemote(sessionID string, typing bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sessionID == "" || sessionID != t.sessionID {
		return false
	}
	t.remote = typing
	return true
}

func (t *TypingCoordinator) ClearRemote() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remote = false
}

func (t *TypingCoordinator) RemoteTyping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remote
}
