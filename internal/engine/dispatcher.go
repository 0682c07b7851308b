package engine

import (
	"io"
	"strings"
	"time"

	"github.com/chatsync/internal/api"
	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/media"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/outbox"
	"github.com/chatsync/internal/protocol"
	"github.com/chatsync/internal/search"
)

// Намерения пользователя. Каждое сначала меняет локальное состояние, затем
// отправляет кадр серверу.

func (s *State) canSend() bool { return s.conn == Connected && s.socketOpen }

// sendEphemeral пишет кадр, который потом не нужен (typing, chat_list).
// Если сокет не готов, кадр отбрасывается.
func (s *State) sendEphemeral(t protocol.FrameType, payload any) []Effect {
	if !s.canSend() {
		s.metrics.FrameDropped(string(t))
		logger.Warnf("engine: %v, frame dropped", &ConnectionError{Frame: t, State: s.conn})
		return nil
	}
	data, err := protocol.Encode(t, payload)
	if err != nil {
		logger.Errorf("engine: %v", err)
		return nil
	}
	return []Effect{SendFrame{Gen: s.gen, Type: t, Data: data}}
}

// sendDurable пишет кадр сразу, если можно, и держит его в очереди, если
// записать нельзя или нужно дождаться эха сервера.
func (s *State) sendDurable(e outbox.Entry, payload any) []Effect {
	data, err := protocol.Encode(e.Type, payload)
	if err != nil {
		logger.Errorf("engine: %v", err)
		return nil
	}
	e.Data = data
	e.EnqueuedAt = s.now()

	var fx []Effect
	// пока грузится сохранённая очередь, новые кадры ждут за ней
	connected := s.canSend() && s.outboxLoading == ""
	if connected {
		fx = append(fx, SendFrame{Gen: s.gen, Type: e.Type, Data: data})
	}
	switch {
	case !connected || e.AwaitAck:
		if connected {
			e.Attempts = 1
		}
		if ev := s.outbox.Put(e); ev != nil {
			logger.Warnf("engine: outbox full, %s evicted", ev.Key)
			fx = append(fx, s.failEntry(*ev)...)
		}
		fx = append(fx, s.persistOutbox())
	case s.outbox.Remove(e.Key):
		fx = append(fx, s.persistOutbox())
	}
	return fx
}

// failEntry обрабатывает запись, от которой очередь отказалась.
func (s *State) failEntry(e outbox.Entry) []Effect {
	if e.Type != protocol.FrameMessage || e.MessageID == "" {
		logger.Warnf("engine: outbox gave up on %s", e.Key)
		return nil
	}
	s.metrics.OutboxFailed()
	if !s.messages.MarkFailed(e.MessageID) {
		return nil
	}
	logger.Warnf("engine: message %s failed after %d attempts", e.MessageID, e.Attempts)
	return []Effect{publish(Update{Kind: UpdateMessages, ConversationID: e.ConversationID, MessageID: e.MessageID})}
}

func (s *State) writableConversation(id string) error {
	conv, ok := s.chats.Get(id)
	if !ok {
		return ErrUnknownConversation
	}
	if conv.IsBlocked {
		return ErrBlocked
	}
	return nil
}

func (s *State) newMessage(conversationID string, t model.MessageType) *model.Message {
	u := s.session.User()
	return &model.Message{
		ID:             s.newID(),
		ConversationID: conversationID,
		SenderID:       u.ID,
		SenderName:     u.Name,
		Type:           t,
		Timestamp:      s.now(),
		Status:         model.MessageStatusSent,
		Reactions:      model.Reactions{},
	}
}

func messageEntry(m *model.Message) outbox.Entry {
	return outbox.Entry{
		Key:            outbox.MessageKey(m.ID),
		Type:           protocol.FrameMessage,
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		AwaitAck:       true,
	}
}

// dispatchMessage добавляет оптимистичное сообщение и отправляет его.
func (s *State) dispatchMessage(m *model.Message) ([]Effect, error) {
	if err := s.writableConversation(m.ConversationID); err != nil {
		return nil, err
	}
	if !s.messages.AppendOptimistic(m) {
		return nil, ErrUnknownMessage
	}
	s.chats.Touch(m, false)
	fx := []Effect{
		publish(Update{Kind: UpdateMessages, ConversationID: m.ConversationID, MessageID: m.ID}),
		publish(Update{Kind: UpdateConversations, ConversationID: m.ConversationID}),
	}
	return append(fx, s.sendDurable(messageEntry(m), m)...), nil
}

// SendText отправляет текст, при необходимости ответом на сообщение.
func (s *State) SendText(conversationID, content, replyTo string) (*model.Message, []Effect, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil, ErrEmptyMessage
	}
	m := s.newMessage(conversationID, model.MessageTypeText)
	m.Content = content
	if replyTo != "" {
		orig, ok := s.messages.Get(replyTo)
		if !ok {
			return nil, nil, ErrUnknownMessage
		}
		m.ReplyTo = orig.Preview()
	}
	fx, err := s.dispatchMessage(m)
	if err != nil {
		return nil, nil, err
	}
	delete(s.lastTyping, conversationID)
	return m.Clone(), fx, nil
}

// Retry повторяет сообщение, от которого очередь отказалась.
func (s *State) Retry(messageID string) ([]Effect, error) {
	m, ok := s.messages.Get(messageID)
	if !ok {
		return nil, ErrUnknownMessage
	}
	if m.Status != model.MessageStatusFailed {
		return nil, ErrNotFailed
	}
	if err := s.writableConversation(m.ConversationID); err != nil {
		return nil, err
	}
	s.messages.MarkSent(messageID)
	fx := []Effect{publish(Update{Kind: UpdateMessages, ConversationID: m.ConversationID, MessageID: m.ID})}
	return append(fx, s.sendDurable(messageEntry(m), m)...), nil
}

func (s *State) EditMessage(messageID, content string) ([]Effect, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if !s.messages.Edit(messageID, content) {
		return nil, ErrUnknownMessage
	}
	m, _ := s.messages.Get(messageID)
	fx := s.messageChanged(messageID)
	if s.outbox.Has(outbox.MessageKey(messageID)) {
		// сервер сообщения ещё не видел: заменяем копию в очереди
		return append(fx, s.sendDurable(messageEntry(m), m)...), nil
	}
	entry := outbox.Entry{Key: outbox.EditKey(messageID), Type: protocol.FrameMessageEdit, MessageID: messageID, ConversationID: m.ConversationID}
	payload := protocol.EditPayload{MessageID: messageID, ChatID: m.ConversationID, Content: content}
	return append(fx, s.sendDurable(entry, payload)...), nil
}

func (s *State) DeleteMessage(messageID string) ([]Effect, error) {
	conv, ok := s.messages.Delete(messageID)
	if !ok {
		return nil, ErrUnknownMessage
	}
	fx := s.forgetMessage(conv, messageID)
	s.outbox.Remove(outbox.EditKey(messageID))
	s.outbox.Remove(outbox.PinKey(messageID))
	if s.outbox.Remove(outbox.MessageKey(messageID)) {
		// до сервера не дошло, удалять там нечего
		return append(fx, s.persistOutbox()), nil
	}
	entry := outbox.Entry{Key: outbox.DeleteKey(messageID), Type: protocol.FrameMessageDelete, MessageID: messageID, ConversationID: conv}
	return append(fx, s.sendDurable(entry, protocol.DeletePayload{MessageID: messageID, ChatID: conv})...), nil
}

// forgetMessage чистит все производные представления после удаления сообщения.
func (s *State) forgetMessage(conversationID, messageID string) []Effect {
	s.search.Forget(messageID)
	fx := []Effect{publish(Update{Kind: UpdateMessages, ConversationID: conversationID, MessageID: messageID})}
	next, _ := s.messages.Last(conversationID)
	if s.chats.ForgetLast(conversationID, messageID, next) {
		fx = append(fx, publish(Update{Kind: UpdateConversations, ConversationID: conversationID}))
	}
	if s.highlight == messageID {
		s.highlight = ""
		fx = append(fx, StopTimer{Key: highlightKey}, publish(Update{Kind: UpdateHighlight}))
	}
	if s.playback.MessageID == messageID && s.playback.Stop() {
		fx = append(fx, StopTimer{Key: playbackKey}, publish(Update{Kind: UpdatePlayback, MessageID: messageID}))
	}
	return fx
}

func (s *State) PinMessage(messageID string, pinned bool) ([]Effect, error) {
	if !s.messages.SetPinned(messageID, pinned) {
		if _, ok := s.messages.Get(messageID); !ok {
			return nil, ErrUnknownMessage
		}
	}
	conv, _ := s.messages.Conversation(messageID)
	fx := s.messageChanged(messageID)
	entry := outbox.Entry{Key: outbox.PinKey(messageID), Type: protocol.FrameMessagePin, MessageID: messageID, ConversationID: conv}
	return append(fx, s.sendDurable(entry, protocol.PinPayload{MessageID: messageID, ChatID: conv, IsPinned: pinned})...), nil
}

// React переключает эмодзи пользователя на сообщении. На сервер уходит то
// действие, которое переключение применило локально.
func (s *State) React(messageID, emoji string) (model.ReactionAction, []Effect, error) {
	me := s.me()
	action, err := s.reactions.LocalToggle(messageID, emoji, me)
	if err != nil {
		return "", nil, err
	}
	conv, _ := s.messages.Conversation(messageID)
	fx := []Effect{publish(Update{Kind: UpdateMessages, ConversationID: conv, MessageID: messageID})}
	entry := outbox.Entry{
		Key:            outbox.ReactionKey(messageID, emoji),
		Type:           protocol.FrameReaction,
		MessageID:      messageID,
		ConversationID: conv,
		AwaitAck:       true,
	}
	payload := protocol.ReactionPayload{MessageID: messageID, Emoji: emoji, Action: action, UserID: me, ChatID: conv}
	return action, append(fx, s.sendDurable(entry, payload)...), nil
}

// MarkRead сбрасывает счётчик непрочитанных и отправляет квитанцию о прочтении
// последнего чужого сообщения.
func (s *State) MarkRead(conversationID string) ([]Effect, error) {
	if _, ok := s.chats.Get(conversationID); !ok {
		return nil, ErrUnknownConversation
	}
	var fx []Effect
	if s.chats.ClearUnread(conversationID) {
		fx = append(fx, publish(Update{Kind: UpdateConversations, ConversationID: conversationID}))
	}
	msgs := s.messages.List(conversationID)
	me := s.me()
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.SenderID == me {
			continue
		}
		u := s.session.User()
		entry := outbox.Entry{Key: outbox.ReadKey(m.ID), Type: protocol.FrameReadReceipt, MessageID: m.ID, ConversationID: conversationID}
		payload := protocol.ReadReceiptPayload{MessageID: m.ID, UserID: u.ID, UserName: u.Name, ChatID: conversationID}
		return append(fx, s.sendDurable(entry, payload)...), nil
	}
	return fx, nil
}

// LocalTyping сообщает о наборе текста пользователем. Кадры начала набора не
// чаще одного на чат за TypingThrottle; отброшенный офлайн кадр не считается.
func (s *State) LocalTyping(conversationID string, typing bool) []Effect {
	now := s.now()
	if typing {
		if last, ok := s.lastTyping[conversationID]; ok && now.Sub(last) < s.opts.TypingThrottle {
			return nil
		}
	} else {
		delete(s.lastTyping, conversationID)
	}
	u := s.session.User()
	fx := s.sendEphemeral(protocol.FrameTyping, protocol.TypingPayload{
		ChatID: conversationID, UserID: u.ID, UserName: u.Name, IsTyping: typing,
	})
	if typing && len(fx) > 0 {
		s.lastTyping[conversationID] = now
	}
	return fx
}

// Select делает чат активным: сбрасывает непрочитанные и поиск, перезагружает
// историю через REST.
func (s *State) Select(conversationID string) ([]Effect, error) {
	if _, ok := s.chats.Get(conversationID); !ok {
		return nil, ErrUnknownConversation
	}
	s.active = conversationID
	s.search.Reset()
	fx := []Effect{
		FetchHistory{ConversationID: conversationID},
		publish(Update{Kind: UpdateSearch, ConversationID: conversationID}),
	}
	if s.chats.ClearUnread(conversationID) {
		fx = append(fx, publish(Update{Kind: UpdateConversations, ConversationID: conversationID}))
	}
	if s.highlight != "" {
		s.highlight = ""
		fx = append(fx, StopTimer{Key: highlightKey}, publish(Update{Kind: UpdateHighlight}))
	}
	return fx, nil
}

func (s *State) SetFlags(conversationID string, f model.ConversationFlags) ([]Effect, error) {
	if !s.chats.SetFlags(conversationID, f) {
		return nil, ErrUnknownConversation
	}
	fx := []Effect{publish(Update{Kind: UpdateConversations, ConversationID: conversationID})}
	if f.Blocked != nil && *f.Blocked {
		fx = append(fx, s.stopConversationTyping(conversationID)...)
	}
	return fx, nil
}

// UpsertConversation добавляет чат, созданный через REST.
func (s *State) UpsertConversation(c model.Conversation) []Effect {
	s.chats.Upsert(c)
	return []Effect{publish(Update{Kind: UpdateConversations, ConversationID: c.ID})}
}

// Search ищет по активному чату.
func (s *State) Search(term string, f search.Filter) ([]string, []Effect, error) {
	if s.active == "" {
		return nil, nil, ErrNoActiveChat
	}
	ids := s.search.Run(s.active, s.messages.List(s.active), term, f)
	return ids, []Effect{publish(Update{Kind: UpdateSearch, ConversationID: s.active})}, nil
}

// Navigate двигает курсор поиска и подсвечивает найденное.
func (s *State) Navigate(d search.Direction) (string, []Effect) {
	id, ok := s.search.Navigate(d)
	if !ok {
		return "", nil
	}
	s.highlight = id
	return id, []Effect{
		StartTimer{Key: highlightKey, After: s.opts.HighlightDuration},
		publish(Update{Kind: UpdateSearch, ConversationID: s.active}),
		publish(Update{Kind: UpdateHighlight, MessageID: id}),
	}
}

// BeginRecording переходит в Recording с открытым захватом. Воспроизведение
// останавливается.
func (s *State) BeginRecording(conversationID string, c media.Capture) ([]Effect, error) {
	if err := s.writableConversation(conversationID); err != nil {
		return nil, err
	}
	if err := s.recorder.Begin(conversationID, c, s.now()); err != nil {
		return nil, err
	}
	var fx []Effect
	if s.playback.Stop() {
		fx = append(fx, StopTimer{Key: playbackKey}, publish(Update{Kind: UpdatePlayback, MessageID: s.playback.MessageID}))
	}
	return append(fx,
		StartTimer{Key: recordKey, After: s.opts.RecordTick},
		publish(Update{Kind: UpdateRecorder, ConversationID: conversationID}),
	), nil
}

func (s *State) StopRecording() ([]Effect, error) {
	c, conv, duration, err := s.recorder.End()
	if err != nil {
		return nil, err
	}
	return []Effect{
		StopTimer{Key: recordKey},
		FinishRecording{Capture: c, ConversationID: conv, Duration: duration},
		publish(Update{Kind: UpdateRecorder, ConversationID: conv}),
	}, nil
}

func (s *State) CancelRecording() []Effect {
	conv := s.recorder.ConversationID()
	if !s.recorder.Cancel() {
		return nil
	}
	return []Effect{StopTimer{Key: recordKey}, publish(Update{Kind: UpdateRecorder, ConversationID: conv})}
}

// Play запускает голосовое сообщение вместо текущего.
func (s *State) Play(messageID string) ([]Effect, error) {
	m, ok := s.messages.Get(messageID)
	if !ok {
		return nil, ErrUnknownMessage
	}
	if m.VoiceMessage == nil {
		return nil, ErrNotVoice
	}
	s.playback.Start(messageID, time.Duration(m.VoiceMessage.Duration)*time.Second)
	zero := 0
	return []Effect{
		StartTimer{Key: playbackKey, After: s.opts.PlaybackTick},
		publish(Update{Kind: UpdatePlayback, MessageID: messageID, Progress: &zero}),
	}, nil
}

func (s *State) StopPlayback() []Effect {
	if !s.playback.Stop() {
		return nil
	}
	return []Effect{StopTimer{Key: playbackKey}, publish(Update{Kind: UpdatePlayback, MessageID: s.playback.MessageID})}
}

// BeginUpload регистрирует загрузку вложения. Файл больше лимита отклоняется
// до появления прогресса.
func (s *State) BeginUpload(conversationID string, f media.File, body io.Reader) (string, []Effect, error) {
	if err := s.writableConversation(conversationID); err != nil {
		return "", nil, err
	}
	id := s.newID()
	if _, err := s.uploads.Begin(id, conversationID, f); err != nil {
		logger.Warnf("engine: %v", err)
		return "", []Effect{s.notify(err)}, err
	}
	zero := 0
	return id, []Effect{
		publish(Update{Kind: UpdateUpload, ConversationID: conversationID, UploadID: id, Progress: &zero}),
		StartUpload{ID: id, ConversationID: conversationID, Kind: api.KindFile, File: f, Body: body},
	}, nil
}
