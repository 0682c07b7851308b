package reaction

import (
	"testing"

	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFixture(t *testing.T) (*Aggregator, *store.Messages) {
	t.Helper()
	s := store.NewMessages()
	require.True(t, s.AppendOptimistic(&model.Message{ID: "m1", ConversationID: "c1"}))
	return NewAggregator(s), s
}

func TestLocalToggleRoundTrip(t *testing.T) {
	a, s := newFixture(t)

	action, err := a.LocalToggle("m1", "👍", "userA")
	require.NoError(t, err)
	assert.Equal(t, model.ReactionAdd, action)
	m, _ := s.Get("m1")
	assert.Equal(t, model.Reactions{"👍": {"userA"}}, m.Reactions)

	action, err = a.LocalToggle("m1", "👍", "userA")
	require.NoError(t, err)
	assert.Equal(t, model.ReactionRemove, action)
	assert.Empty(t, m.Reactions)
}

func TestApplyRemoteIsIdempotent(t *testing.T) {
	a, s := newFixture(t)

	changed, err := a.ApplyRemote("m1", "🔥", model.ReactionAdd, "u2")
	require.NoError(t, err)
	assert.True(t, changed)
	changed, _ = a.ApplyRemote("m1", "🔥", model.ReactionAdd, "u2")
	assert.False(t, changed, "remote add is not a toggle")

	m, _ := s.Get("m1")
	assert.Equal(t, []string{"u2"}, m.Reactions["🔥"])

	changed, _ = a.ApplyRemote("m1", "🔥", model.ReactionRemove, "u9")
	assert.False(t, changed)
	changed, _ = a.ApplyRemote("m1", "🔥", model.ReactionRemove, "u2")
	assert.True(t, changed)
	_, present := m.Reactions["🔥"]
	assert.False(t, present)
}

func TestEchoOfLocalToggleDoesNotUndoIt(t *testing.T) {
	a, s := newFixture(t)
	_, err := a.LocalToggle("m1", "❤️", "me")
	require.NoError(t, err)

	changed, err := a.ApplyRemote("m1", "❤️", model.ReactionAdd, "me")
	require.NoError(t, err)
	assert.False(t, changed)
	m, _ := s.Get("m1")
	assert.True(t, m.Reactions.Has("❤️", "me"))
}

func TestErrors(t *testing.T) {
	a, _ := newFixture(t)
	_, err := a.LocalToggle("nope", "👍", "u")
	assert.ErrorIs(t, err, ErrUnknownMessage)
	_, err = a.LocalToggle("m1", "", "u")
	assert.ErrorIs(t, err, ErrEmptyEmoji)
	_, err = a.ApplyRemote("nope", "👍", model.ReactionAdd, "u")
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestGroups(t *testing.T) {
	a, _ := newFixture(t)
	a.ApplyRemote("m1", "👍", model.ReactionAdd, "u1")
	a.ApplyRemote("m1", "🔥", model.ReactionAdd, "u1")
	a.ApplyRemote("m1", "🔥", model.ReactionAdd, "u2")

	groups := a.Groups("m1")
	require.Len(t, groups, 2)
	assert.Equal(t, model.ReactionGroup{Emoji: "🔥", Count: 2, Users: []string{"u1", "u2"}}, groups[0])
	assert.Equal(t, "👍", groups[1].Emoji)
	assert.Nil(t, a.Groups("nope"))
}
