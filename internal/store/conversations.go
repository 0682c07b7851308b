package store

import (
	"time"

	"github.com/chatsync/internal/model"
)

// Conversations: список чатов в порядке сервера.
type Conversations struct {
	order []string
	byID  map[string]*model.Conversation
	// флаги, выставленные пользователем локально; важнее значений сервера
	local map[string]model.ConversationFlags
}

func NewConversations() *Conversations {
	return &Conversations{
		byID:  make(map[string]*model.Conversation),
		local: make(map[string]model.ConversationFlags),
	}
}

// Replace подставляет свежий chat_list и возвращает id чатов, которых в нём
// больше нет. Локальные флаги сохраняются для оставшихся чатов, остальные
// флаги берутся с сервера.
func (c *Conversations) Replace(list []model.Conversation) (dropped []string) {
	prevOrder := c.order
	c.order = make([]string, 0, len(list))
	c.byID = make(map[string]*model.Conversation, len(list))
	for i := range list {
		conv := list[i].Clone()
		if conv.ID == "" {
			continue
		}
		if _, dup := c.byID[conv.ID]; dup {
			continue
		}
		applyFlags(conv, c.local[conv.ID])
		c.order = append(c.order, conv.ID)
		c.byID[conv.ID] = conv
	}
	for _, id := range prevOrder {
		if _, ok := c.byID[id]; !ok {
			dropped = append(dropped, id)
			delete(c.local, id)
		}
	}
	return dropped
}

// Upsert вставляет чат в начало списка или заменяет его на месте.
func (c *Conversations) Upsert(conv model.Conversation) {
	if conv.ID == "" {
		return
	}
	if _, ok := c.byID[conv.ID]; !ok {
		c.order = append([]string{conv.ID}, c.order...)
	}
	cp := conv.Clone()
	applyFlags(cp, c.local[conv.ID])
	c.byID[conv.ID] = cp
}

func applyFlags(conv *model.Conversation, f model.ConversationFlags) {
	if f.Muted != nil {
		conv.IsMuted = *f.Muted
	}
	if f.Archived != nil {
		conv.IsArchived = *f.Archived
	}
	if f.Blocked != nil {
		conv.IsBlocked = *f.Blocked
	}
}

func (c *Conversations) Get(id string) (*model.Conversation, bool) {
	conv, ok := c.byID[id]
	return conv, ok
}

// All возвращает глубокие копии в порядке списка.
func (c *Conversations) All() []*model.Conversation {
	out := make([]*model.Conversation, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id].Clone())
	}
	return out
}

func (c *Conversations) Len() int { return len(c.order) }

// Touch записывает m последним сообщением чата и при необходимости
// увеличивает счётчик непрочитанных.
func (c *Conversations) Touch(m *model.Message, incrementUnread bool) bool {
	conv, ok := c.byID[m.ConversationID]
	if !ok {
		return false
	}
	conv.LastMessage = m.Clone()
	if incrementUnread {
		conv.UnreadCount++
	}
	return true
}

// ForgetLast заменяет последнее сообщение, если это messageID; next: новое
// последнее сообщение или nil.
func (c *Conversations) ForgetLast(conversationID, messageID string, next *model.Message) bool {
	conv, ok := c.byID[conversationID]
	if !ok || conv.LastMessage == nil || conv.LastMessage.ID != messageID {
		return false
	}
	conv.LastMessage = next.Clone()
	return true
}

func (c *Conversations) ClearUnread(id string) bool {
	conv, ok := c.byID[id]
	if !ok || conv.UnreadCount == 0 {
		return false
	}
	conv.UnreadCount = 0
	return true
}

// SetFlags применяет флаги пользователя и помнит их между обновлениями chat_list.
func (c *Conversations) SetFlags(id string, f model.ConversationFlags) bool {
	conv, ok := c.byID[id]
	if !ok {
		return false
	}
	applyFlags(conv, f)
	l := c.local[id]
	if f.Muted != nil {
		v := *f.Muted
		l.Muted = &v
	}
	if f.Archived != nil {
		v := *f.Archived
		l.Archived = &v
	}
	if f.Blocked != nil {
		v := *f.Blocked
		l.Blocked = &v
	}
	c.local[id] = l
	return true
}

// SetPresence раскладывает статус пользователя по всем чатам, где он есть.
// Возвращает id затронутых чатов.
func (c *Conversations) SetPresence(userID string, online bool, lastSeen *time.Time) []string {
	var touched []string
	for _, id := range c.order {
		conv := c.byID[id]
		hit := updateParticipants(conv.Participants, userID, online, lastSeen)
		if updateParticipants(conv.Members, userID, online, lastSeen) {
			hit = true
		}
		if hit {
			touched = append(touched, id)
		}
	}
	return touched
}

func updateParticipants(list []model.Participant, userID string, online bool, lastSeen *time.Time) bool {
	hit := false
	for i := range list {
		if list[i].ID != userID {
			continue
		}
		list[i].IsOnline = online
		if lastSeen != nil {
			ls := *lastSeen
			list[i].LastSeen = &ls
		}
		hit = true
	}
	return hit
}
