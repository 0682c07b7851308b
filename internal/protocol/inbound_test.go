package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/chatsync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKnownFrames(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		check func(t *testing.T, in Inbound)
	}{
		{
			name: "auth success",
			raw:  `{"type":"auth","payload":{"success":true,"user":{"id":"u1","name":"Anna","role":"teacher"}}}`,
			check: func(t *testing.T, in Inbound) {
				a := in.(Auth)
				assert.True(t, a.Success)
				require.NotNil(t, a.User)
				assert.Equal(t, "u1", a.User.ID)
			},
		},
		{
			name: "message",
			raw:  `{"type":"message","payload":{"id":"m1","conversationId":"c1","content":"Привет","type":"text","status":"sent","reactions":{"👍":["u1"]}}}`,
			check: func(t *testing.T, in Inbound) {
				m := in.(Message).Message
				assert.Equal(t, "m1", m.ID)
				assert.Equal(t, "Привет", m.Content)
				assert.Equal(t, model.MessageTypeText, m.Type)
				assert.True(t, m.Reactions.Has("👍", "u1"))
			},
		},
		{
			name: "typing",
			raw:  `{"type":"typing","payload":{"chatId":"c1","userId":"u2","userName":"Boris","isTyping":true}}`,
			check: func(t *testing.T, in Inbound) {
				tp := in.(Typing)
				assert.Equal(t, "c1", tp.ChatID)
				assert.True(t, tp.IsTyping)
			},
		},
		{
			name: "user status without lastSeen",
			raw:  `{"type":"user_status","payload":{"userId":"u2","isOnline":true}}`,
			check: func(t *testing.T, in Inbound) {
				us := in.(UserStatus)
				assert.True(t, us.IsOnline)
				assert.Nil(t, us.LastSeen)
			},
		},
		{
			name: "reaction",
			raw:  `{"type":"reaction","payload":{"messageId":"m1","emoji":"🔥","action":"remove","userId":"u2","chatId":"c1"}}`,
			check: func(t *testing.T, in Inbound) {
				r := in.(Reaction)
				assert.Equal(t, model.ReactionRemove, r.Action)
			},
		},
		{
			name: "chat list",
			raw:  `{"type":"chat_list","payload":{"chats":[{"id":"c1","type":"direct","unreadCount":2}]}}`,
			check: func(t *testing.T, in Inbound) {
				cl := in.(ChatList)
				require.Len(t, cl.Chats, 1)
				assert.Equal(t, 2, cl.Chats[0].UnreadCount)
			},
		},
		{
			name: "error",
			raw:  `{"type":"error","payload":{"message":"not a member"}}`,
			check: func(t *testing.T, in Inbound) {
				assert.Equal(t, "not a member", in.(Error).Message)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			tt.check(t, in)
		})
	}
}

func TestDecodeUnknownTypeIsIgnorable(t *testing.T) {
	in, err := Decode([]byte(`{"type":"call_offer","payload":{"sdp":"x"}}`))
	require.NoError(t, err)
	u, ok := in.(Unknown)
	require.True(t, ok)
	assert.Equal(t, FrameType("call_offer"), u.FrameType())
}

func TestDecodeErrors(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":        `{"type":`,
		"no type":         `{"payload":{}}`,
		"message no id":   `{"type":"message","payload":{"content":"x"}}`,
		"bad payload":     `{"type":"typing","payload":"oops"}`,
		"bad action":      `{"type":"reaction","payload":{"messageId":"m1","emoji":"x","action":"toggle"}}`,
		"delete no id":    `{"type":"message_delete","payload":{"chatId":"c1"}}`,
		"receipt no id":   `{"type":"read_receipt","payload":{"chatId":"c1"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			var de *DecodeError
			require.True(t, errors.As(err, &de), "want DecodeError, got %v", err)
		})
	}
}

func TestEncode(t *testing.T) {
	data, err := Encode(FrameTyping, TypingPayload{ChatID: "c1", UserID: "u1", IsTyping: true})
	require.NoError(t, err)

	var f Frame
	require.NoError(t, json.Unmarshal(data, &f))
	assert.Equal(t, FrameTyping, f.Type)
	assert.JSONEq(t, `{"chatId":"c1","userId":"u1","userName":"","isTyping":true}`, string(f.Payload))

	data, err = Encode(FrameChatList, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"chat_list"}`, string(data))
}
