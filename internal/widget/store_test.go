package widget

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func serverMsg(id, content string, at time.Duration) Message {
	return Message{
		ID:        id,
		SessionID: "S1",
		Content:   content,
		Sender:    SenderCustomer,
		Timestamp: base.Add(at),
		Status:    StatusSent,
	}
}

func tempMsg(tempID, content string, at time.Duration) Message {
	return Message{
		ClientID:  tempID,
		SessionID: "S1",
		Content:   content,
		Sender:    SenderCustomer,
		Timestamp: base.Add(at),
		Status:    StatusSending,
	}
}

func contents(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func TestAppendSameServerIDTwiceAddsOneEntry(t *testing.T) {
	store := NewMessageStore(0)

	socket := serverMsg("m1", "hi", 0)
	rest := socket
	rest.Status = StatusDelivered

	assert.Equal(t, Inserted, store.Append(socket))
	assert.Equal(t, Duplicate, store.Append(rest))
	require.Equal(t, 1, store.Len())
	assert.Equal(t, StatusDelivered, store.Messages()[0].Status)

	stale := socket
	stale.Status = StatusSent
	assert.Equal(t, Duplicate, store.Append(stale))
	assert.Equal(t, StatusDelivered, store.Messages()[0].Status, "status never moves backwards")
}

func TestEchoWithClientIDReplacesTempInPlace(t *testing.T) {
	store := NewMessageStore(0)
	store.Append(serverMsg("m0", "before", 0))
	store.Append(tempMsg("temp-1", "hello", time.Second))
	store.Append(serverMsg("m2", "after", 2*time.Second))

	echo := serverMsg("m1", "hello", time.Second+200*time.Millisecond)
	echo.ClientID = "temp-1"

	assert.Equal(t, Replaced, store.Append(echo))
	msgs := store.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"before", "hello", "after"}, contents(msgs))
	assert.Equal(t, "m1", msgs[1].ID)
	assert.Equal(t, "temp-1", msgs[1].ClientID)
	assert.Equal(t, StatusSent, msgs[1].Status)
}

func TestHeuristicReconciliation(t *testing.T) {
	store := NewMessageStore(10 * time.Second)
	store.Append(tempMsg("temp-1", "hello", 0))

	near := serverMsg("m1", "hello", 3*time.Second)
	assert.Equal(t, Replaced, store.Append(near))
	assert.Equal(t, 1, store.Len())

	store.Append(tempMsg("temp-2", "again", 20*time.Second))
	far := serverMsg("m2", "again", 45*time.Second)
	assert.Equal(t, Inserted, store.Append(far), "outside tolerance is a different message")

	agent := serverMsg("m3", "again", 21*time.Second)
	agent.Sender = SenderAgent
	assert.Equal(t, Inserted, store.Append(agent), "different sender never reconciles")
	assert.Equal(t, 4, store.Len())
}

func TestForeignClientIDSkipsHeuristic(t *testing.T) {
	store := NewMessageStore(10 * time.Second)
	store.Append(tempMsg("temp-1", "hi", 0))

	other := serverMsg("m1", "hi", time.Second)
	other.ClientID = "other-tab-1"
	assert.Equal(t, Inserted, store.Append(other))

	got, ok := store.Find("temp-1")
	require.True(t, ok)
	assert.True(t, got.Pending(), "a message from another tab must not confirm ours")
	assert.Equal(t, 2, store.Len())
}

func TestMarkSentWithoutServerIDDoesNotIndexEmptyID(t *testing.T) {
	store := NewMessageStore(0)
	store.Append(tempMsg("temp-1", "one", 0))
	store.Append(tempMsg("temp-2", "two", time.Second))

	require.True(t, store.MarkSent("temp-1", Message{Content: "one", Sender: SenderCustomer}))
	require.True(t, store.MarkSent("temp-2", Message{Content: "two", Sender: SenderCustomer}))

	assert.Equal(t, []string{"one", "two"}, contents(store.Messages()))
	for _, m := range store.Messages() {
		assert.Equal(t, StatusSent, m.Status)
	}
}

func TestMarkSentBeforeEcho(t *testing.T) {
	store := NewMessageStore(0)
	store.Append(tempMsg("temp-1", "hello", 0))

	ack := serverMsg("m1", "hello", 0)
	require.True(t, store.MarkSent("temp-1", ack))

	assert.Equal(t, Duplicate, store.Append(ack))
	msgs := store.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "temp-1", msgs[0].ClientID)
	assert.Equal(t, StatusSent, msgs[0].Status)
}

func TestMarkSentAfterEchoLandedSeparately(t *testing.T) {
	store := NewMessageStore(time.Second)
	store.Append(tempMsg("temp-1", "hello", 0))

	// The echo carries no client id and a clock-skewed timestamp, so it lands on its own.
	echo := serverMsg("m1", "hello", 5*time.Second)
	require.Equal(t, Inserted, store.Append(echo))
	require.Equal(t, 2, store.Len())

	require.True(t, store.MarkSent("temp-1", echo))
	msgs := store.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "temp-1", msgs[0].ClientID)

	got, ok := store.Find("temp-1")
	require.True(t, ok)
	assert.Equal(t, "m1", got.ID)
}

func TestOrderingIndependentOfArrival(t *testing.T) {
	store := NewMessageStore(0)
	rng := rand.New(rand.NewSource(7))

	const n = 60
	for _, i := range rng.Perm(n) {
		store.Append(serverMsg(fmt.Sprintf("m%02d", i), fmt.Sprintf("%02d", i), time.Duration(i)*time.Second))
	}

	msgs := store.Messages()
	require.Len(t, msgs, n)
	for i := 1; i < n; i++ {
		assert.True(t, msgs[i-1].Timestamp.Before(msgs[i].Timestamp), "index %d out of order", i)
	}
}

func TestEqualTimestampsKeepArrivalOrder(t *testing.T) {
	store := NewMessageStore(0)
	store.Append(serverMsg("a", "first", 0))
	store.Append(serverMsg("b", "second", 0))
	store.Append(serverMsg("c", "earlier", -time.Second))

	assert.Equal(t, []string{"earlier", "first", "second"}, contents(store.Messages()))
}

func TestFailedMessageStaysRecoverable(t *testing.T) {
	store := NewMessageStore(0)
	store.Append(tempMsg("temp-1", "hello", 0))

	require.True(t, store.MarkFailed("temp-1"))
	got, ok := store.Find("temp-1")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, got.Status)

	require.True(t, store.MarkSending("temp-1"))
	require.True(t, store.MarkSent("temp-1", serverMsg("m1", "hello", 0)))
	assert.False(t, store.MarkFailed("temp-1"), "acknowledged messages cannot fail")
	assert.Equal(t, 1, store.Len())

	store.Reset()
	assert.Equal(t, 0, store.Len())
	_, ok = store.Find("m1")
	assert.False(t, ok)
}
