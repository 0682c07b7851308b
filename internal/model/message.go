package model

import "time"

type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeVoice    MessageType = "voice"
	MessageTypeFile     MessageType = "file"
	MessageTypeImage    MessageType = "image"
	MessageTypeVideo    MessageType = "video"
	MessageTypeLocation MessageType = "location"
	MessageTypeSystem   MessageType = "system"
)


type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	// MessageStatusFailed только локальный: очередь отказалась от сообщения.
	MessageStatusFailed MessageStatus = "failed"
)

func (s MessageStatus) rank() int {
	switch s {
	case MessageStatusDelivered:
		return 2
	case MessageStatusRead:
		return 3
	case MessageStatusSent:
		return 1
	default:
		return 0
	}
}

// MaxStatus возвращает более продвинутый из a и b (sent < delivered < read).
// failed и неизвестные значения ниже sent.
func MaxStatus(a, b MessageStatus) MessageStatus {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// ReplyPreview: снимок сообщения, на которое отвечают.
type ReplyPreview struct {
	ID         string      `json:"id"`
	SenderName string      `json:"sender"`
	Content    string      `json:"content"`
	Type       MessageType `json:"type"`
}

type Attachment struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	MimeType   string `json:"mimeType"`
	Size       int64  `json:"size"`
	PreviewURL string `json:"previewUrl,omitempty"`
}

type VoiceMessage struct {
	URL      string `json:"url"`
	Duration int    `json:"duration"` // секунды
}

type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	SenderID       string        `json:"senderId"`
	SenderName     string        `json:"senderName"`
	Content        string        `json:"content"`
	Type           MessageType   `json:"type"`
	Timestamp      time.Time     `json:"timestamp"`
	Status         MessageStatus `json:"status"`
	ReplyTo        *ReplyPreview `json:"replyTo,omitempty"`
	Attachment     *Attachment   `json:"attachment,omitempty"`
	VoiceMessage   *VoiceMessage `json:"voiceMessage,omitempty"`
	Reactions      Reactions     `json:"reactions,omitempty"`
	IsPinned       bool          `json:"isPinned"`
	IsEdited       bool          `json:"isEdited"`
	ExpiresAt      *time.Time    `json:"expiresAt,omitempty"`
}

// Clone возвращает глубокую копию: вне цикла движка изменяемое состояние
// хранилища не разделяется.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.ReplyTo != nil {
		r := *m.ReplyTo
		c.ReplyTo = &r
	}
	if m.Attachment != nil {
		a := *m.Attachment
		c.Attachment = &a
	}
	if m.VoiceMessage != nil {
		v := *m.VoiceMessage
		c.VoiceMessage = &v
	}
	if m.ExpiresAt != nil {
		e := *m.ExpiresAt
		c.ExpiresAt = &e
	}
	c.Reactions = m.Reactions.Clone()
	return &c
}

// Preview строит снимок m для ответа.
func (m *Message) Preview() *ReplyPreview {
	return &ReplyPreview{
		ID:         m.ID,
		SenderName: m.SenderName,
		Content:    m.Content,
		Type:       m.Type,
	}
}
