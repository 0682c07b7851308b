package model

// ReactionAction: явная операция в кадре reaction.
type ReactionAction string

const (
	ReactionAdd    ReactionAction = "add"
	ReactionRemove ReactionAction = "remove"
)

// Reactions: эмодзи -> пользователи в порядке добавления. Пользователь
// встречается у эмодзи не больше одного раза, эмодзи без пользователей нет.
type Reactions map[string][]string

// Has: поставил ли userID эмодзи emoji.
func (r Reactions) Has(emoji, userID string) bool {
	for _, id := range r[emoji] {
		if id == userID {
			return true
		}
	}
	return false
}

// Add добавляет userID к emoji, если его нет. false, если ничего не изменилось.
// Карта должна быть не nil.
func (r Reactions) Add(emoji, userID string) bool {
	if r.Has(emoji, userID) {
		return false
	}
	r[emoji] = append(r[emoji], userID)
	return true
}

// Remove убирает userID у emoji, а опустевший эмодзи удаляет.
func (r Reactions) Remove(emoji, userID string) bool {
	users := r[emoji]
	for i, id := range users {
		if id != userID {
			continue
		}
		rest := make([]string, 0, len(users)-1)
		rest = append(rest, users[:i]...)
		rest = append(rest, users[i+1:]...)
		if len(rest) == 0 {
			delete(r, emoji)
		} else {
			r[emoji] = rest
		}
		return true
	}
	return false
}

// Count возвращает число пользователей у emoji.
func (r Reactions) Count(emoji string) int { return len(r[emoji]) }

func (r Reactions) Clone() Reactions {
	if r == nil {
		return nil
	}
	c := make(Reactions, len(r))
	for emoji, users := range r {
		c[emoji] = append([]string(nil), users...)
	}
	return c
}

// ReactionGroup: сводка реакции для отображения.
type ReactionGroup struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}
