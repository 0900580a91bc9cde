package widget

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type typingRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *typingRecorder) emit(sessionID string, typing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if typing {
		r.events = append(r.events, "start:"+sessionID)
		return
	}
	r.events = append(r.events, "stop:"+sessionID)
}

func (r *typingRecorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

func TestTypingBurstEmitsOneStartAndOneStop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &typingRecorder{}
	typing := NewTypingCoordinator(clock, time.Second, rec.emit)
	typing.Bind("S1")

	for i := 0; i < 10; i++ {
		typing.NotifyTyping()
		clock.Advance(90 * time.Millisecond)
	}
	assert.Equal(t, 1, rec.count("start:S1"))
	assert.Equal(t, 0, rec.count("stop:S1"))
	assert.True(t, typing.Typing())

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return rec.count("stop:S1") == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, typing.Typing())

	clock.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.count("stop:S1"))
	assert.Equal(t, 1, rec.count("start:S1"))
}

func TestTypingStopOnSend(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &typingRecorder{}
	typing := NewTypingCoordinator(clock, time.Second, rec.emit)
	typing.Bind("S1")

	typing.NotifyTyping()
	typing.Stop()
	assert.Equal(t, 1, rec.count("stop:S1"))

	typing.Stop()
	clock.Advance(2 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.count("stop:S1"))

	typing.NotifyTyping()
	assert.Equal(t, 2, rec.count("start:S1"), "a new burst announces again")
}

func TestTypingWithoutSessionIsSilent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &typingRecorder{}
	typing := NewTypingCoordinator(clock, time.Second, rec.emit)

	typing.NotifyTyping()
	typing.Stop()
	assert.Empty(t, rec.events)

	typing.NotifyTyping()
	typing.Bind("S1")
	typing.NotifyTyping()
	assert.Equal(t, 1, rec.count("start:S1"))
}

func TestRemoteTypingIsScopedToBoundSession(t *testing.T) {
	typing := NewTypingCoordinator(clockwork.NewFakeClock(), 0, nil)
	typing.Bind("S1")

	assert.False(t, typing.SetRemote("S2", true))
	assert.False(t, typing.RemoteTyping())

	assert.True(t, typing.SetRemote("S1", true))
	assert.True(t, typing.RemoteTyping())

	typing.ClearRemote()
	assert.False(t, typing.RemoteTyping())

	typing.SetRemote("S1", true)
	typing.Bind("S2")
	assert.False(t, typing.RemoteTyping())
}
