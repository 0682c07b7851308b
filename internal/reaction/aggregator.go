// Package reaction: учёт эмодзи по сообщениям поверх хранилища.
package reaction

import (
	"errors"
	"sort"

	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/store"
)

var (
	ErrUnknownMessage = errors.New("reaction: unknown message")
	ErrEmptyEmoji     = errors.New("reaction: empty emoji")
)

type Aggregator struct {
	messages *store.Messages
}

func NewAggregator(messages *store.Messages) *Aggregator {
	return &Aggregator{messages: messages}
}

// LocalToggle применяет нажатие пользователя: убирает реакцию, если она есть,
// иначе добавляет. Возвращённое действие и уходит на сервер.
func (a *Aggregator) LocalToggle(messageID, emoji, userID string) (model.ReactionAction, error) {
	if emoji == "" {
		return "", ErrEmptyEmoji
	}
	m, ok := a.messages.Get(messageID)
	if !ok {
		return "", ErrUnknownMessage
	}
	if m.Reactions == nil {
		m.Reactions = model.Reactions{}
	}
	if m.Reactions.Has(emoji, userID) {
		m.Reactions.Remove(emoji, userID)
		return model.ReactionRemove, nil
	}
	m.Reactions.Add(emoji, userID)
	return model.ReactionAdd, nil
}

// ApplyRemote применяет явный add/remove от сервера, без переключения: повторный
// add или remove отсутствующего пользователя ничего не меняет.
func (a *Aggregator) ApplyRemote(messageID, emoji string, action model.ReactionAction, userID string) (bool, error) {
	if emoji == "" {
		return false, ErrEmptyEmoji
	}
	m, ok := a.messages.Get(messageID)
	if !ok {
		return false, ErrUnknownMessage
	}
	if m.Reactions == nil {
		m.Reactions = model.Reactions{}
	}
	switch action {
	case model.ReactionAdd:
		return m.Reactions.Add(emoji, userID), nil
	case model.ReactionRemove:
		return m.Reactions.Remove(emoji, userID), nil
	}
	return false, nil
}

// Groups возвращает сводку реакций сообщения: сначала популярные, при равенстве
// по эмодзи.
func (a *Aggregator) Groups(messageID string) []model.ReactionGroup {
	m, ok := a.messages.Get(messageID)
	if !ok {
		return nil
	}
	groups := make([]model.ReactionGroup, 0, len(m.Reactions))
	for emoji, users := range m.Reactions {
		groups = append(groups, model.ReactionGroup{
			Emoji: emoji,
			Count: len(users),
			Users: append([]string(nil), users...),
		})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Emoji < groups[j].Emoji
	})
	return groups
}
