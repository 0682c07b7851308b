package store

import (
	"testing"
	"time"

	"github.com/chatsync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textMsg(id, conv, content string) *model.Message {
	return &model.Message{ID: id, ConversationID: conv, Content: content, Type: model.MessageTypeText}
}

func ids(list []*model.Message) []string {
	out := make([]string, 0, len(list))
	for _, m := range list {
		out = append(out, m.ID)
	}
	return out
}

func TestOptimisticThenEcho(t *testing.T) {
	s := NewMessages()

	require.True(t, s.AppendOptimistic(textMsg("m1", "c1", "Hello")))
	got, ok := s.Get("m1")
	require.True(t, ok)
	assert.Equal(t, model.MessageStatusSent, got.Status)
	assert.Equal(t, 1, s.Len("c1"))

	echo := *textMsg("m1", "c1", "Hello")
	echo.Status = model.MessageStatusSent
	merged, appended := s.Reconcile(echo)
	assert.False(t, appended)
	assert.Equal(t, model.MessageStatusDelivered, merged.Status)
	assert.Equal(t, 1, s.Len("c1"))
}

func TestAppendOptimisticNeverDuplicates(t *testing.T) {
	s := NewMessages()
	require.True(t, s.AppendOptimistic(textMsg("m1", "c1", "a")))
	assert.False(t, s.AppendOptimistic(textMsg("m1", "c1", "b")))
	assert.False(t, s.AppendOptimistic(&model.Message{ConversationID: "c1"}))
	assert.Equal(t, 1, s.Len("c1"))
}

func TestReconcileIdempotent(t *testing.T) {
	s := NewMessages()
	frame := model.Message{
		ID: "m9", ConversationID: "c1", SenderID: "u2", Content: "hi",
		Reactions: model.Reactions{"👍": {"u3"}},
	}

	_, appended := s.Reconcile(frame)
	require.True(t, appended)
	first := s.Snapshot("c1")

	_, appended = s.Reconcile(frame)
	assert.False(t, appended)
	assert.Equal(t, first, s.Snapshot("c1"))
}

func TestReconcilePreservesPositionAndArrivalOrder(t *testing.T) {
	s := NewMessages()
	now := time.Now()
	// Доставка не по порядку остаётся в порядке прихода.
	late := model.Message{ID: "b", ConversationID: "c1", Timestamp: now}
	early := model.Message{ID: "a", ConversationID: "c1", Timestamp: now.Add(-time.Hour)}
	s.Reconcile(late)
	s.Reconcile(early)
	s.AppendOptimistic(textMsg("c", "c1", "mine"))

	s.Reconcile(model.Message{ID: "b", ConversationID: "c1", Content: "edited on server", IsEdited: true})

	assert.Equal(t, []string{"b", "a", "c"}, ids(s.List("c1")))
	m, _ := s.Get("b")
	assert.Equal(t, "edited on server", m.Content)
	assert.True(t, m.IsEdited)
}

func TestReconcileNeverDowngradesStatus(t *testing.T) {
	s := NewMessages()
	s.AppendOptimistic(textMsg("m1", "c1", "x"))
	require.True(t, s.ApplyReadReceipt("m1"))

	m, _ := s.Reconcile(model.Message{ID: "m1", ConversationID: "c1", Content: "x", Status: model.MessageStatusSent})
	assert.Equal(t, model.MessageStatusRead, m.Status)
}

func TestReadReceiptUnknownIsNoop(t *testing.T) {
	s := NewMessages()
	assert.False(t, s.ApplyReadReceipt("missing"))
}

func TestDeleteAndEdit(t *testing.T) {
	s := NewMessages()
	for _, id := range []string{"a", "b", "c"} {
		s.AppendOptimistic(textMsg(id, "c1", id))
	}

	conv, ok := s.Delete("b")
	require.True(t, ok)
	assert.Equal(t, "c1", conv)
	assert.Equal(t, []string{"a", "c"}, ids(s.List("c1")))
	_, ok = s.Get("b")
	assert.False(t, ok)

	require.True(t, s.Edit("c", "new"))
	m, _ := s.Get("c")
	assert.Equal(t, "new", m.Content)
	assert.True(t, m.IsEdited)
	assert.False(t, s.Edit("b", "gone"))

	// Удалённый id может снова прийти с сервера и добавляется заново.
	_, appended := s.Reconcile(model.Message{ID: "b", ConversationID: "c1"})
	assert.True(t, appended)
	assert.Equal(t, []string{"a", "c", "b"}, ids(s.List("c1")))
}

func TestFailedAndRetry(t *testing.T) {
	s := NewMessages()
	s.AppendOptimistic(textMsg("m1", "c1", "x"))
	require.True(t, s.MarkFailed("m1"))
	m, _ := s.Get("m1")
	assert.Equal(t, model.MessageStatusFailed, m.Status)

	require.True(t, s.MarkSent("m1"))
	assert.Equal(t, model.MessageStatusSent, m.Status)

	require.True(t, s.MarkFailed("m1"))
	s.Reconcile(model.Message{ID: "m1", ConversationID: "c1", Content: "x"})
	assert.Equal(t, model.MessageStatusDelivered, m.Status, "server copy clears the failed flag")
}

func TestHydrateKeepsLiveEntriesAfterHistory(t *testing.T) {
	s := NewMessages()
	s.AppendOptimistic(textMsg("live1", "c1", "pending"))
	s.Reconcile(model.Message{ID: "h2", ConversationID: "c1", Content: "from socket"})

	s.Hydrate("c1", []model.Message{
		{ID: "h1", Content: "old"},
		{ID: "h2", Content: "from history"},
		{ID: "h1", Content: "dup"},
	})

	assert.Equal(t, []string{"h1", "h2", "live1"}, ids(s.List("c1")))
	m, _ := s.Get("h1")
	assert.Equal(t, "c1", m.ConversationID)
	assert.Equal(t, model.MessageStatusDelivered, m.Status)

	last, ok := s.Last("c1")
	require.True(t, ok)
	assert.Equal(t, "live1", last.ID)
}

func TestSnapshotIsDetached(t *testing.T) {
	s := NewMessages()
	s.AppendOptimistic(textMsg("m1", "c1", "x"))
	snap := s.Snapshot("c1")
	snap[0].Content = "changed"
	m, _ := s.Get("m1")
	assert.Equal(t, "x", m.Content)
	assert.Empty(t, s.Snapshot("nope"))
}
