// Package store хранит в памяти ленты сообщений и список чатов.
// Не потокобезопасен: владеет им цикл движка.
package store

import "github.com/chatsync/internal/model"

type conversationLog struct {
	order []*model.Message
	index map[string]int
}

func newConversationLog() *conversationLog {
	return &conversationLog{index: make(map[string]int)}
}

func (l *conversationLog) append(m *model.Message) {
	l.index[m.ID] = len(l.order)
	l.order = append(l.order, m)
}

func (l *conversationLog) remove(id string) bool {
	pos, ok := l.index[id]
	if !ok {
		return false
	}
	copy(l.order[pos:], l.order[pos+1:])
	l.order[len(l.order)-1] = nil
	l.order = l.order[:len(l.order)-1]
	delete(l.index, id)
	for i := pos; i < len(l.order); i++ {
		l.index[l.order[i].ID] = i
	}
	return true
}

// Messages: ленты сообщений по чатам. Порядок: порядок прихода или создания,
// по времени не пересортировывается.
type Messages struct {
	logs  map[string]*conversationLog
	where map[string]string // id сообщения -> id чата
}

func NewMessages() *Messages {
	return &Messages{
		logs:  make(map[string]*conversationLog),
		where: make(map[string]string),
	}
}

func (s *Messages) log(conversationID string) *conversationLog {
	l, ok := s.logs[conversationID]
	if !ok {
		l = newConversationLog()
		s.logs[conversationID] = l
	}
	return l
}

func (s *Messages) lookup(id string) (*model.Message, bool) {
	convID, ok := s.where[id]
	if !ok {
		return nil, false
	}
	l := s.logs[convID]
	return l.order[l.index[id]], true
}

// AppendOptimistic добавляет локальное сообщение в конец ленты. Возвращает
// false, если id уже есть: двух копий одного id в хранилище не бывает.
func (s *Messages) AppendOptimistic(m *model.Message) bool {
	if m == nil || m.ID == "" {
		return false
	}
	if _, ok := s.where[m.ID]; ok {
		return false
	}
	if m.Status == "" {
		m.Status = model.MessageStatusSent
	}
	if m.Reactions == nil {
		m.Reactions = model.Reactions{}
	}
	s.log(m.ConversationID).append(m)
	s.where[m.ID] = m.ConversationID
	return true
}

// Reconcile вливает копию сервера. Известный id обновляется на месте без смены
// позиции, неизвестный добавляется в конец. Статус не откатывается назад и
// после сверки не ниже delivered. Повтор того же кадра ничего не меняет.
func (s *Messages) Reconcile(server model.Message) (merged *model.Message, appended bool) {
	if server.ID == "" {
		return nil, false
	}
	if existing, ok := s.lookup(server.ID); ok {
		mergeInto(existing, &server)
		return existing, false
	}
	m := server.Clone()
	if m.ConversationID == "" {
		return nil, false
	}
	m.Status = model.MaxStatus(m.Status, model.MessageStatusDelivered)
	if m.Reactions == nil {
		m.Reactions = model.Reactions{}
	}
	s.log(m.ConversationID).append(m)
	s.where[m.ID] = m.ConversationID
	return m, true
}

func mergeInto(dst, src *model.Message) {
	status := model.MaxStatus(dst.Status, src.Status)
	status = model.MaxStatus(status, model.MessageStatusDelivered)

	if src.SenderID != "" {
		dst.SenderID = src.SenderID
	}
	if src.SenderName != "" {
		dst.SenderName = src.SenderName
	}
	if src.Type != "" {
		dst.Type = src.Type
	}
	if !src.Timestamp.IsZero() {
		dst.Timestamp = src.Timestamp
	}
	dst.Content = src.Content
	if src.ReplyTo != nil {
		r := *src.ReplyTo
		dst.ReplyTo = &r
	}
	if src.Attachment != nil {
		a := *src.Attachment
		dst.Attachment = &a
	}
	if src.VoiceMessage != nil {
		v := *src.VoiceMessage
		dst.VoiceMessage = &v
	}
	if src.Reactions != nil {
		dst.Reactions = src.Reactions.Clone()
	}
	if src.ExpiresAt != nil {
		e := *src.ExpiresAt
		dst.ExpiresAt = &e
	}
	dst.IsPinned = src.IsPinned
	dst.IsEdited = dst.IsEdited || src.IsEdited
	dst.Status = status
}

// ApplyReadReceipt помечает сообщение прочитанным. Неизвестные id игнорируются.
func (s *Messages) ApplyReadReceipt(messageID string) bool {
	m, ok := s.lookup(messageID)
	if !ok || m.Status == model.MessageStatusRead {
		return false
	}
	m.Status = model.MessageStatusRead
	return true
}

// Delete удаляет сообщение без следа.
func (s *Messages) Delete(messageID string) (conversationID string, ok bool) {
	convID, found := s.where[messageID]
	if !found {
		return "", false
	}
	s.logs[convID].remove(messageID)
	delete(s.where, messageID)
	return convID, true
}

// Edit заменяет текст на месте и помечает сообщение изменённым.
func (s *Messages) Edit(messageID, content string) bool {
	m, ok := s.lookup(messageID)
	if !ok {
		return false
	}
	m.Content = content
	m.IsEdited = true
	return true
}

func (s *Messages) SetPinned(messageID string, pinned bool) bool {
	m, ok := s.lookup(messageID)
	if !ok || m.IsPinned == pinned {
		return false
	}
	m.IsPinned = pinned
	return true
}

// MarkFailed помечает неподтверждённое локальное сообщение как failed.
func (s *Messages) MarkFailed(messageID string) bool {
	m, ok := s.lookup(messageID)
	if !ok || m.Status != model.MessageStatusSent {
		return false
	}
	m.Status = model.MessageStatusFailed
	return true
}

// MarkSent сбрасывает failed перед повторной отправкой.
func (s *Messages) MarkSent(messageID string) bool {
	m, ok := s.lookup(messageID)
	if !ok || m.Status != model.MessageStatusFailed {
		return false
	}
	m.Status = model.MessageStatusSent
	return true
}

// Get возвращает живую запись; код движка может её менять.
func (s *Messages) Get(messageID string) (*model.Message, bool) {
	return s.lookup(messageID)
}

// Conversation возвращает чат, в котором лежит messageID.
func (s *Messages) Conversation(messageID string) (string, bool) {
	id, ok := s.where[messageID]
	return id, ok
}

// List возвращает живые записи чата в порядке хранения. Срез копируется,
// сообщения нет.
func (s *Messages) List(conversationID string) []*model.Message {
	l, ok := s.logs[conversationID]
	if !ok {
		return nil
	}
	return append([]*model.Message(nil), l.order...)
}

// Snapshot возвращает глубокие копии для чтения вне цикла движка.
func (s *Messages) Snapshot(conversationID string) []*model.Message {
	l, ok := s.logs[conversationID]
	if !ok {
		return []*model.Message{}
	}
	out := make([]*model.Message, len(l.order))
	for i, m := range l.order {
		out[i] = m.Clone()
	}
	return out
}

func (s *Messages) Len(conversationID string) int {
	if l, ok := s.logs[conversationID]; ok {
		return len(l.order)
	}
	return 0
}

// Last возвращает последнюю запись чата.
func (s *Messages) Last(conversationID string) (*model.Message, bool) {
	l, ok := s.logs[conversationID]
	if !ok || len(l.order) == 0 {
		return nil, false
	}
	return l.order[len(l.order)-1], true
}

// Hydrate загружает историю из REST. Сначала история в порядке сервера, за ней
// живые записи, которых в истории нет, в прежнем порядке. Общие записи сливаются.
func (s *Messages) Hydrate(conversationID string, history []model.Message) {
	old := s.logs[conversationID]
	fresh := newConversationLog()
	seen := make(map[string]struct{}, len(history))

	for i := range history {
		h := history[i]
		if h.ID == "" {
			continue
		}
		if _, dup := seen[h.ID]; dup {
			continue
		}
		seen[h.ID] = struct{}{}
		var m *model.Message
		if old != nil {
			if pos, ok := old.index[h.ID]; ok {
				m = old.order[pos]
				mergeInto(m, &h)
			}
		}
		if m == nil {
			if other, ok := s.where[h.ID]; ok && other != conversationID {
				continue
			}
			m = h.Clone()
			m.ConversationID = conversationID
			m.Status = model.MaxStatus(m.Status, model.MessageStatusDelivered)
			if m.Reactions == nil {
				m.Reactions = model.Reactions{}
			}
		}
		fresh.append(m)
		s.where[m.ID] = conversationID
	}
	if old != nil {
		for _, m := range old.order {
			if _, ok := seen[m.ID]; !ok {
				fresh.append(m)
			}
		}
	}
	s.logs[conversationID] = fresh
}
