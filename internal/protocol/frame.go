// Package protocol: формат кадров чата. Конверт {"type","payload"}
// разбирается в закрытый набор типизированных кадров.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/chatsync/internal/model"
)

type FrameType string

const (
	FrameAuth          FrameType = "auth"
	FrameChatList      FrameType = "chat_list"
	FrameMessage       FrameType = "message"
	FrameTyping        FrameType = "typing"
	FrameUserStatus    FrameType = "user_status"
	FrameReadReceipt   FrameType = "read_receipt"
	FrameReaction      FrameType = "reaction"
	FrameError         FrameType = "error"
	FrameMessageEdit   FrameType = "message_edit"
	FrameMessageDelete FrameType = "message_delete"
	FrameMessagePin    FrameType = "message_pin"
)

// Frame: конверт, общий для обоих направлений.
type Frame struct {
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// --- Полезная нагрузка ---

type AuthPayload struct {
	Success bool        `json:"success"`
	User    *model.User `json:"user,omitempty"`
}

type ChatListPayload struct {
	Chats []model.Conversation `json:"chats"`
}

type TypingPayload struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	IsTyping bool   `json:"isTyping"`
}

type UserStatusPayload struct {
	UserID   string     `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type ReadReceiptPayload struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	ChatID    string `json:"chatId"`
}

type ReactionPayload struct {
	MessageID string               `json:"messageId"`
	Emoji     string               `json:"emoji"`
	Action    model.ReactionAction `json:"action"`
	UserID    string               `json:"userId"`
	ChatID    string               `json:"chatId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type EditPayload struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
	Content   string `json:"content"`
}

type DeletePayload struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
}

type PinPayload struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
	IsPinned  bool   `json:"isPinned"`
}

// Encode собирает байты исходящего кадра. При nil payload поле payload не пишется.
func Encode(t FrameType, payload any) ([]byte, error) {
	f := Frame{Type: t}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("protocol.Encode %s: %w", t, err)
		}
		f.Payload = raw
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("protocol.Encode %s: %w", t, err)
	}
	return data, nil
}
