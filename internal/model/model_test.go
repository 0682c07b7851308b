package model

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReactionsAddRemove(t *testing.T) {
	r := Reactions{}

	assert.True(t, r.Add("👍", "a"))
	assert.False(t, r.Add("👍", "a"), "second add of the same user is a no-op")
	assert.True(t, r.Add("👍", "b"))
	assert.Equal(t, []string{"a", "b"}, r["👍"])

	assert.True(t, r.Remove("👍", "a"))
	assert.Equal(t, []string{"b"}, r["👍"])
	assert.False(t, r.Remove("👍", "a"))

	assert.True(t, r.Remove("👍", "b"))
	_, ok := r["👍"]
	assert.False(t, ok, "empty emoji key must be dropped")
}

func TestReactionsCloneIsDeep(t *testing.T) {
	r := Reactions{"🔥": {"a"}}
	c := r.Clone()
	c.Add("🔥", "b")
	assert.Equal(t, []string{"a"}, r["🔥"])
	assert.Nil(t, Reactions(nil).Clone())
}

func TestMaxStatus(t *testing.T) {
	assert.Equal(t, MessageStatusDelivered, MaxStatus(MessageStatusSent, MessageStatusDelivered))
	assert.Equal(t, MessageStatusRead, MaxStatus(MessageStatusRead, MessageStatusDelivered))
	assert.Equal(t, MessageStatusSent, MaxStatus(MessageStatusFailed, MessageStatusSent))
	assert.Equal(t, MessageStatusDelivered, MaxStatus(MessageStatusDelivered, ""))
}

func TestMessageClone(t *testing.T) {
	exp := time.Now()
	m := &Message{
		ID:           "m1",
		ReplyTo:      &ReplyPreview{ID: "m0"},
		Attachment:   &Attachment{Name: "a.pdf"},
		VoiceMessage: &VoiceMessage{Duration: 3},
		Reactions:    Reactions{"👍": {"u1"}},
		ExpiresAt:    &exp,
	}
	c := m.Clone()
	c.ReplyTo.ID = "x"
	c.Attachment.Name = "b.pdf"
	c.VoiceMessage.Duration = 9
	c.Reactions.Add("👍", "u2")

	assert.Equal(t, "m0", m.ReplyTo.ID)
	assert.Equal(t, "a.pdf", m.Attachment.Name)
	assert.Equal(t, 3, m.VoiceMessage.Duration)
	assert.Equal(t, 1, m.Reactions.Count("👍"))
}

func TestNewSessionFromJWT(t *testing.T) {
	exp := time.Now().Add(-time.Minute)
	claims := sessionClaims{
		Name: "Anna",
		Role: "student",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u42",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	s := NewSession(token)
	assert.Equal(t, token, s.Token())
	assert.Equal(t, "u42", s.UserID())
	assert.Equal(t, "Anna", s.User().Name)
	assert.True(t, s.Expired(time.Now()))
}

func TestNewSessionOpaqueToken(t *testing.T) {
	s := NewSession("opaque-token")
	assert.Equal(t, "", s.UserID())
	assert.False(t, s.Expired(time.Now()))

	s.SetUser(User{ID: "u1", Name: "Boris"})
	assert.Equal(t, "u1", s.UserID())

	s.SetToken("other")
	assert.Equal(t, "other", s.Token())
	assert.Equal(t, "u1", s.UserID(), "opaque token keeps the confirmed user")
}
