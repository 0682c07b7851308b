package store

import (
	"testing"
	"time"

	"github.com/chatsync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationsReplaceKeepsLocalFlags(t *testing.T) {
	c := NewConversations()
	c.Replace([]model.Conversation{{ID: "c1"}, {ID: "c2"}})
	muted := true
	require.True(t, c.SetFlags("c1", model.ConversationFlags{Muted: &muted}))

	c.Replace([]model.Conversation{{ID: "c2"}, {ID: "c1", UnreadCount: 3}, {ID: "c1"}})

	all := c.All()
	require.Len(t, all, 2)
	assert.Equal(t, "c2", all[0].ID)
	assert.True(t, all[1].IsMuted)
	assert.Equal(t, 3, all[1].UnreadCount)
}

func TestConversationsLocalFlagsWinOverServer(t *testing.T) {
	c := NewConversations()
	c.Replace([]model.Conversation{{ID: "c1", IsMuted: true, IsBlocked: true}, {ID: "c2"}})
	off := false
	require.True(t, c.SetFlags("c1", model.ConversationFlags{Muted: &off, Blocked: &off}))

	dropped := c.Replace([]model.Conversation{{ID: "c1", IsMuted: true, IsBlocked: true, IsArchived: true}})
	assert.Equal(t, []string{"c2"}, dropped)
	conv, ok := c.Get("c1")
	require.True(t, ok)
	assert.False(t, conv.IsMuted)
	assert.False(t, conv.IsBlocked)
	assert.True(t, conv.IsArchived, "flags never set locally follow the server")

	c.Upsert(model.Conversation{ID: "c1", IsMuted: true})
	conv, _ = c.Get("c1")
	assert.False(t, conv.IsMuted)
}

func TestConversationsTouchAndUnread(t *testing.T) {
	c := NewConversations()
	c.Replace([]model.Conversation{{ID: "c1"}})

	m := &model.Message{ID: "m1", ConversationID: "c1", Content: "hi"}
	require.True(t, c.Touch(m, true))
	require.True(t, c.Touch(m, true))
	conv, _ := c.Get("c1")
	assert.Equal(t, 2, conv.UnreadCount)
	assert.Equal(t, "m1", conv.LastMessage.ID)

	assert.True(t, c.ClearUnread("c1"))
	assert.False(t, c.ClearUnread("c1"))
	assert.False(t, c.Touch(&model.Message{ConversationID: "unknown"}, true))

	assert.True(t, c.ForgetLast("c1", "m1", nil))
	assert.Nil(t, conv.LastMessage)
}

func TestConversationsSetPresence(t *testing.T) {
	c := NewConversations()
	c.Replace([]model.Conversation{
		{ID: "c1", Type: model.ConversationDirect, Participants: []model.Participant{{ID: "u1"}, {ID: "u2"}}},
		{ID: "c2", Type: model.ConversationGroup, Members: []model.Participant{{ID: "u2"}, {ID: "u3"}}},
		{ID: "c3", Participants: []model.Participant{{ID: "u3"}}},
	})
	seen := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	touched := c.SetPresence("u2", false, &seen)
	assert.Equal(t, []string{"c1", "c2"}, touched)

	conv, _ := c.Get("c2")
	assert.False(t, conv.Members[0].IsOnline)
	require.NotNil(t, conv.Members[0].LastSeen)
	assert.True(t, seen.Equal(*conv.Members[0].LastSeen))
}

func TestConversationsUpsert(t *testing.T) {
	c := NewConversations()
	c.Replace([]model.Conversation{{ID: "c1"}})
	c.Upsert(model.Conversation{ID: "c2", Type: model.ConversationGroup, Name: "9Б"})
	c.Upsert(model.Conversation{ID: "c2", Type: model.ConversationGroup, Name: "9Б класс"})

	all := c.All()
	require.Len(t, all, 2)
	assert.Equal(t, "c2", all[0].ID)
	assert.Equal(t, "9Б класс", all[0].Name)
}
