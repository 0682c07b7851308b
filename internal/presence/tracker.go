// Package presence: онлайн-статусы и индикаторы набора текста.
//
// Индикатор набора живёт TTL. Таймерами трекер не владеет: SetTyping
// возвращает Key, таймер которого вызывающий (пере)взводит, а истечение
// сообщает обратно через Expire.
package presence

import (
	"sort"
	"time"

	"github.com/chatsync/internal/model"
)

// Key: таймер TTL одного печатающего.
type Key struct {
	ConversationID string
	UserID         string
}

// Typer: пользователь, который сейчас печатает в чате.
type Typer struct {
	UserID   string    `json:"userId"`
	UserName string    `json:"userName"`
	Since    time.Time `json:"since"`
	seq      uint64
}

type Tracker struct {
	online map[string]model.Presence
	typing map[string]map[string]*Typer
	seq    uint64
}

func NewTracker() *Tracker {
	return &Tracker{
		online: make(map[string]model.Presence),
		typing: make(map[string]map[string]*Typer),
	}
}

// SetTyping отмечает, что userID печатает в conversationID. Повторный вызов
// обновляет запись на месте; таймер возвращённого ключа вызывающий
// перезапускает (прежний экземпляр отменяется).
func (t *Tracker) SetTyping(conversationID, userID, userName string, now time.Time) (Key, bool) {
	key := Key{ConversationID: conversationID, UserID: userID}
	conv, ok := t.typing[conversationID]
	if !ok {
		conv = make(map[string]*Typer)
		t.typing[conversationID] = conv
	}
	if existing, ok := conv[userID]; ok {
		if userName != "" {
			existing.UserName = userName
		}
		return key, false
	}
	t.seq++
	conv[userID] = &Typer{UserID: userID, UserName: userName, Since: now, seq: t.seq}
	return key, true
}

// StopTyping убирает одного печатающего. Таймер ключа отменяет вызывающий.
func (t *Tracker) StopTyping(conversationID, userID string) bool {
	conv, ok := t.typing[conversationID]
	if !ok {
		return false
	}
	if _, ok := conv[userID]; !ok {
		return false
	}
	delete(conv, userID)
	if len(conv) == 0 {
		delete(t.typing, conversationID)
	}
	return true
}

// Expire: StopTyping по таймеру TTL.
func (t *Tracker) Expire(k Key) bool {
	return t.StopTyping(k.ConversationID, k.UserID)
}

// StopConversation убирает всех печатающих в чате и возвращает ключи, чьи
// таймеры нужно отменить.
func (t *Tracker) StopConversation(conversationID string) []Key {
	conv, ok := t.typing[conversationID]
	if !ok {
		return nil
	}
	keys := make([]Key, 0, len(conv))
	for userID := range conv {
		keys = append(keys, Key{ConversationID: conversationID, UserID: userID})
	}
	delete(t.typing, conversationID)
	sort.Slice(keys, func(i, j int) bool { return keys[i].UserID < keys[j].UserID })
	return keys
}

// Typing: кто печатает в чате, в порядке начала набора.
func (t *Tracker) Typing(conversationID string) []Typer {
	conv := t.typing[conversationID]
	out := make([]Typer, 0, len(conv))
	for _, ty := range conv {
		out = append(out, *ty)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// IsTyping: печатает ли кто-нибудь в чате.
func (t *Tracker) IsTyping(conversationID string) bool {
	return len(t.typing[conversationID]) > 0
}

// SetUserStatus обновляет статус. Список чатов обновляет вызывающий
// (store.Conversations.SetPresence).
func (t *Tracker) SetUserStatus(userID string, online bool, lastSeen *time.Time) model.Presence {
	p := t.online[userID]
	p.UserID = userID
	p.IsOnline = online
	if lastSeen != nil {
		ls := *lastSeen
		p.LastSeen = &ls
	}
	t.online[userID] = p
	return p
}

func (t *Tracker) Status(userID string) (model.Presence, bool) {
	p, ok := t.online[userID]
	return p, ok
}

// Online возвращает всех пользователей онлайн, по возрастанию id.
func (t *Tracker) Online() []string {
	out := make([]string, 0, len(t.online))
	for id, p := range t.online {
		if p.IsOnline {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
