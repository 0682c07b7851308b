package model

import "time"

type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

// Participant: участник чата в том виде, как его показывает список чатов.
type Participant struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Role     string     `json:"role,omitempty"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type Conversation struct {
	ID           string           `json:"id"`
	Type         ConversationType `json:"type"`
	Name         string           `json:"name,omitempty"`
	Participants []Participant    `json:"participants,omitempty"`
	Members      []Participant    `json:"members,omitempty"`
	IsMuted      bool             `json:"isMuted"`
	IsArchived   bool             `json:"isArchived"`
	IsBlocked    bool             `json:"isBlocked"`
	UnreadCount  int              `json:"unreadCount"`
	LastMessage  *Message         `json:"lastMessage,omitempty"`
}

func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Participants = append([]Participant(nil), c.Participants...)
	out.Members = append([]Participant(nil), c.Members...)
	out.LastMessage = c.LastMessage.Clone()
	return &out
}

// ConversationFlags: локальные переключатели чата.
type ConversationFlags struct {
	Muted    *bool `json:"muted,omitempty"`
	Archived *bool `json:"archived,omitempty"`
	Blocked  *bool `json:"blocked,omitempty"`
}
