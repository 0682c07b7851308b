package outbox

import (
	"testing"

	"github.com/chatsync/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(key string, ack bool) Entry {
	return Entry{Key: key, Type: protocol.FrameMessage, Data: []byte(`{}`), AwaitAck: ack}
}

func keys(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Key)
	}
	return out
}

func TestPutDeduplicatesByKey(t *testing.T) {
	q := New(4, 3)
	q.Put(entry("a", true))
	q.Put(entry("b", true))
	replacement := entry("a", true)
	replacement.Data = []byte(`{"v":2}`)
	assert.Nil(t, q.Put(replacement))

	snap := q.Snapshot()
	assert.Equal(t, []string{"a", "b"}, keys(snap))
	assert.JSONEq(t, `{"v":2}`, string(snap[0].Data))
}

func TestPutEvictsOldestWhenFull(t *testing.T) {
	q := New(2, 3)
	q.Put(entry("a", true))
	q.Put(entry("b", true))
	ev := q.Put(entry("c", true))
	require.NotNil(t, ev)
	assert.Equal(t, "a", ev.Key)
	assert.Equal(t, []string{"b", "c"}, keys(q.Snapshot()))
}

func TestDrainRedeliversUntilAttemptsRunOut(t *testing.T) {
	q := New(10, 2)
	q.Put(entry("msg", true))
	q.Put(entry("edit", false))

	send, expired := q.Drain()
	assert.Equal(t, []string{"msg", "edit"}, keys(send))
	assert.Empty(t, expired)
	assert.Equal(t, []string{"msg"}, keys(q.Snapshot()), "fire-and-forget entries leave after one write")

	send, _ = q.Drain()
	assert.Equal(t, []string{"msg"}, keys(send))
	assert.Equal(t, 2, q.Snapshot()[0].Attempts)

	send, expired = q.Drain()
	assert.Empty(t, send)
	assert.Equal(t, []string{"msg"}, keys(expired))
	assert.Equal(t, 0, q.Len())
}

func TestAck(t *testing.T) {
	q := New(10, 2)
	q.Put(entry(MessageKey("m1"), true))
	assert.True(t, q.Has("message:m1"))
	got, ok := q.Get(MessageKey("m1"))
	require.True(t, ok)
	assert.True(t, got.AwaitAck)
	assert.True(t, q.Ack(MessageKey("m1")))
	assert.False(t, q.Ack(MessageKey("m1")))
}

func TestRestoreKeepsNewest(t *testing.T) {
	q := New(2, 5)
	q.Restore([]Entry{entry("a", true), entry("b", true), entry("c", true)})
	assert.Equal(t, []string{"b", "c"}, keys(q.Snapshot()))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "reaction:m1:👍", ReactionKey("m1", "👍"))
	assert.Equal(t, "pin:m1", PinKey("m1"))
	assert.Equal(t, "read:m1", ReadKey("m1"))
	assert.Equal(t, "delete:m1", DeleteKey("m1"))
	assert.Equal(t, "edit:m1", EditKey("m1"))
}

func TestMergePutsStoredEntriesFirst(t *testing.T) {
	q := New(3, 3)
	q.Put(entry("b", true))
	fresh := entry("c", true)
	fresh.Data = []byte(`{"v":2}`)
	q.Put(fresh)

	stale := entry("c", true)
	evicted := q.Merge([]Entry{entry("a", true), stale, entry("z", true)})
	require.Len(t, evicted, 1)
	assert.Equal(t, "a", evicted[0].Key)

	snap := q.Snapshot()
	assert.Equal(t, []string{"z", "b", "c"}, keys(snap))
	assert.JSONEq(t, `{"v":2}`, string(snap[2].Data), "queued entry wins over the stored one")
}
