package engine

import (
	"encoding/json"
	"errors"

	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/media"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/outbox"
	"github.com/chatsync/internal/presence"
	"github.com/chatsync/internal/protocol"
	"github.com/chatsync/internal/reaction"
)

// Event: вход извне (сокет, таймер, завершённый REST-вызов).
type Event interface{ isEvent() }

type (
	SocketOpened struct {
		Gen uint64
	}
	DialFailed struct {
		Gen uint64
		Err error
	}
	FrameReceived struct {
		Gen  uint64
		Data []byte
	}
	SocketClosed struct {
		Gen  uint64
		Code int
		Err  error
	}
	TimerFired struct {
		Key TimerKey
	}
	HistoryLoaded struct {
		ConversationID string
		Messages       []model.Message
		Err            error
	}
	UploadProgressed struct {
		ID          string
		Sent, Total int64
	}
	UploadFinished struct {
		ID         string
		Attachment model.Attachment
		Err        error
	}
	VoiceUploaded struct {
		ConversationID string
		Duration       int
		Attachment     model.Attachment
		Err            error
	}
	OutboxLoaded struct {
		Owner   string
		Entries []outbox.Entry
		Err     error
	}
)

func (SocketOpened) isEvent()     {}
func (DialFailed) isEvent()       {}
func (FrameReceived) isEvent()    {}
func (SocketClosed) isEvent()     {}
func (TimerFired) isEvent()       {}
func (HistoryLoaded) isEvent()    {}
func (UploadProgressed) isEvent() {}
func (UploadFinished) isEvent()   {}
func (VoiceUploaded) isEvent()    {}
func (OutboxLoaded) isEvent()     {}

// Apply сводит событие к изменению состояния и эффектам для рантайма.
func (s *State) Apply(ev Event) []Effect {
	switch ev := ev.(type) {
	case SocketOpened:
		return s.socketOpened(ev)
	case DialFailed:
		return s.dialFailed(ev)
	case SocketClosed:
		return s.socketClosed(ev)
	case FrameReceived:
		if ev.Gen != s.gen || !s.socketOpen {
			return nil
		}
		in, err := protocol.Decode(ev.Data)
		if err != nil {
			s.metrics.DecodeError()
			logger.Errorf("engine: %v", err)
			return nil
		}
		s.metrics.FrameIn(string(in.FrameType()))
		return s.receive(in)
	case TimerFired:
		return s.timerFired(ev.Key)
	case HistoryLoaded:
		return s.historyLoaded(ev)
	case UploadProgressed:
		return s.uploadProgressed(ev)
	case UploadFinished:
		return s.uploadFinished(ev)
	case VoiceUploaded:
		return s.voiceUploaded(ev)
	case OutboxLoaded:
		return s.outboxLoaded(ev)
	}
	return nil
}

// receive отдаёт декодированный кадр ровно одному обработчику.
func (s *State) receive(in protocol.Inbound) []Effect {
	switch f := in.(type) {
	case protocol.Auth:
		return s.authenticated(f)
	case protocol.ChatList:
		fx := []Effect{publish(Update{Kind: UpdateConversations})}
		for _, id := range s.chats.Replace(f.Chats) {
			fx = append(fx, s.stopConversationTyping(id)...)
		}
		return fx
	case protocol.Message:
		return s.messageReceived(f.Message)
	case protocol.Typing:
		return s.typingReceived(f.TypingPayload)
	case protocol.UserStatus:
		p := s.presence.SetUserStatus(f.UserID, f.IsOnline, f.LastSeen)
		fx := []Effect{publish(Update{Kind: UpdatePresence, UserID: p.UserID})}
		if len(s.chats.SetPresence(f.UserID, f.IsOnline, f.LastSeen)) > 0 {
			fx = append(fx, publish(Update{Kind: UpdateConversations}))
		}
		return fx
	case protocol.ReadReceipt:
		if !s.messages.ApplyReadReceipt(f.MessageID) {
			return nil
		}
		conv, _ := s.messages.Conversation(f.MessageID)
		return []Effect{publish(Update{Kind: UpdateMessages, ConversationID: conv, MessageID: f.MessageID})}
	case protocol.Reaction:
		return s.reactionReceived(f.ReactionPayload)
	case protocol.Error:
		logger.Errorf("engine: server error: %s", f.Message)
		return nil
	case protocol.Edit:
		if !s.messages.Edit(f.MessageID, f.Content) {
			return nil
		}
		return s.messageChanged(f.MessageID)
	case protocol.Delete:
		conv, ok := s.messages.Delete(f.MessageID)
		if !ok {
			return nil
		}
		return s.forgetMessage(conv, f.MessageID)
	case protocol.Pin:
		if !s.messages.SetPinned(f.MessageID, f.IsPinned) {
			return nil
		}
		return s.messageChanged(f.MessageID)
	case protocol.Unknown:
		logger.Warnf("engine: %v", &ProtocolError{Type: f.Type})
		return nil
	}
	return nil
}

func (s *State) messageChanged(messageID string) []Effect {
	conv, _ := s.messages.Conversation(messageID)
	fx := []Effect{publish(Update{Kind: UpdateMessages, ConversationID: conv, MessageID: messageID})}
	if last, ok := s.messages.Last(conv); ok && last.ID == messageID && s.chats.Touch(last, false) {
		fx = append(fx, publish(Update{Kind: UpdateConversations, ConversationID: conv}))
	}
	return fx
}

// messageReceived сверяет сообщение сервера: эхо оптимистичной отправки
// сливается на месте и подтверждает запись в очереди.
func (s *State) messageReceived(m model.Message) []Effect {
	merged, appended := s.messages.Reconcile(m)
	if merged == nil {
		logger.Warnf("engine: message %q without conversation dropped", m.ID)
		return nil
	}
	conv := merged.ConversationID
	var fx []Effect
	if s.outbox.Ack(outbox.MessageKey(merged.ID)) {
		fx = append(fx, s.persistOutbox())
	}
	own := merged.SenderID != "" && merged.SenderID == s.me()
	fx = append(fx, publish(Update{Kind: UpdateMessages, ConversationID: conv, MessageID: merged.ID}))

	if _, known := s.chats.Get(conv); !known && appended {
		// чат только что создал кто-то другой: обновляем список
		fx = append(fx, s.sendEphemeral(protocol.FrameChatList, nil)...)
	} else if last, ok := s.messages.Last(conv); ok {
		s.chats.Touch(last, appended && !own && conv != s.active)
		fx = append(fx, publish(Update{Kind: UpdateConversations, ConversationID: conv}))
	}
	if !own && s.presence.StopTyping(conv, merged.SenderID) {
		fx = append(fx,
			StopTimer{Key: typingKey(presence.Key{ConversationID: conv, UserID: merged.SenderID})},
			publish(Update{Kind: UpdateTyping, ConversationID: conv, UserID: merged.SenderID}))
	}
	return fx
}

func (s *State) typingReceived(p protocol.TypingPayload) []Effect {
	if p.UserID == "" || p.UserID == s.me() {
		return nil
	}
	u := publish(Update{Kind: UpdateTyping, ConversationID: p.ChatID, UserID: p.UserID})
	if !p.IsTyping {
		if !s.presence.StopTyping(p.ChatID, p.UserID) {
			return nil
		}
		return []Effect{StopTimer{Key: typingKey(presence.Key{ConversationID: p.ChatID, UserID: p.UserID})}, u}
	}
	key, _ := s.presence.SetTyping(p.ChatID, p.UserID, p.UserName, s.now())
	return []Effect{StartTimer{Key: typingKey(key), After: s.opts.TypingTTL}, u}
}

// stopConversationTyping убирает всех печатающих в чате и гасит их таймеры.
func (s *State) stopConversationTyping(conversationID string) []Effect {
	keys := s.presence.StopConversation(conversationID)
	if len(keys) == 0 {
		return nil
	}
	fx := make([]Effect, 0, len(keys)+1)
	for _, k := range keys {
		fx = append(fx, StopTimer{Key: typingKey(k)})
	}
	return append(fx, publish(Update{Kind: UpdateTyping, ConversationID: conversationID}))
}

func (s *State) reactionReceived(p protocol.ReactionPayload) []Effect {
	var fx []Effect
	if p.UserID == s.me() {
		key := outbox.ReactionKey(p.MessageID, p.Emoji)
		if e, ok := s.outbox.Get(key); ok && pendingAction(e) == p.Action {
			s.outbox.Ack(key)
			fx = append(fx, s.persistOutbox())
		}
	}
	changed, err := s.reactions.ApplyRemote(p.MessageID, p.Emoji, p.Action, p.UserID)
	if err != nil {
		if !errors.Is(err, reaction.ErrUnknownMessage) {
			logger.Warnf("engine: reaction on %s: %v", p.MessageID, err)
		}
		return fx
	}
	if changed {
		conv, _ := s.messages.Conversation(p.MessageID)
		fx = append(fx, publish(Update{Kind: UpdateMessages, ConversationID: conv, MessageID: p.MessageID}))
	}
	return fx
}

func pendingAction(e outbox.Entry) model.ReactionAction {
	var f protocol.Frame
	var p protocol.ReactionPayload
	if err := json.Unmarshal(e.Data, &f); err != nil {
		return ""
	}
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		return ""
	}
	return p.Action
}

func (s *State) timerFired(k TimerKey) []Effect {
	switch k.Kind {
	case TimerReconnect:
		return s.reconnectFired()
	case TimerTyping:
		if !s.presence.Expire(presence.Key{ConversationID: k.ConversationID, UserID: k.ID}) {
			return nil
		}
		return []Effect{publish(Update{Kind: UpdateTyping, ConversationID: k.ConversationID, UserID: k.ID})}
	case TimerRecord:
		if s.recorder.State() != media.RecorderRecording {
			return nil
		}
		s.recorder.Tick()
		return []Effect{
			StartTimer{Key: recordKey, After: s.opts.RecordTick},
			publish(Update{Kind: UpdateRecorder, ConversationID: s.recorder.ConversationID()}),
		}
	case TimerPlayback:
		if !s.playback.Playing {
			return nil
		}
		done := s.playback.Advance(s.opts.PlaybackTick)
		progress := s.playback.Progress()
		if done {
			progress = 100
		}
		fx := []Effect{publish(Update{Kind: UpdatePlayback, MessageID: s.playback.MessageID, Progress: &progress})}
		if !done {
			fx = append(fx, StartTimer{Key: playbackKey, After: s.opts.PlaybackTick})
		}
		return fx
	case TimerHighlight:
		if s.highlight == "" {
			return nil
		}
		s.highlight = ""
		return []Effect{publish(Update{Kind: UpdateHighlight})}
	case TimerUploadGrace:
		if !s.uploads.Remove(k.ID) {
			return nil
		}
		return []Effect{publish(Update{Kind: UpdateUpload, UploadID: k.ID})}
	}
	return nil
}

func (s *State) historyLoaded(ev HistoryLoaded) []Effect {
	if ev.Err != nil {
		logger.Errorf("engine: history %s: %v", ev.ConversationID, ev.Err)
		return nil
	}
	s.messages.Hydrate(ev.ConversationID, ev.Messages)
	fx := []Effect{publish(Update{Kind: UpdateMessages, ConversationID: ev.ConversationID})}
	if last, ok := s.messages.Last(ev.ConversationID); ok && s.chats.Touch(last, false) {
		fx = append(fx, publish(Update{Kind: UpdateConversations, ConversationID: ev.ConversationID}))
	}
	return fx
}

func (s *State) uploadProgressed(ev UploadProgressed) []Effect {
	if ev.Total <= 0 {
		return nil
	}
	p, changed := s.uploads.Progress(ev.ID, int(ev.Sent*100/ev.Total))
	if !changed {
		return nil
	}
	return []Effect{publish(Update{Kind: UpdateUpload, UploadID: ev.ID, Progress: &p})}
}

func (s *State) uploadFinished(ev UploadFinished) []Effect {
	up, ok := s.uploads.Get(ev.ID)
	if !ok {
		return nil
	}
	if ev.Err != nil {
		s.uploads.Fail(ev.ID)
		err := &UploadError{Name: up.Name, Size: up.Size, Err: ev.Err}
		logger.Errorf("engine: %v", err)
		return []Effect{publish(Update{Kind: UpdateUpload, UploadID: ev.ID}), s.notify(err)}
	}
	s.uploads.Complete(ev.ID, ev.Attachment)
	done := 100
	fx := []Effect{
		publish(Update{Kind: UpdateUpload, UploadID: ev.ID, Progress: &done}),
		StartTimer{Key: uploadGraceKey(ev.ID), After: s.opts.UploadGrace},
	}
	mime := ev.Attachment.MimeType
	if mime == "" {
		mime = up.MimeType
	}
	att := ev.Attachment
	m := s.newMessage(up.ConversationID, media.MessageTypeFor(mime))
	m.Attachment = &att
	more, err := s.dispatchMessage(m)
	if err != nil {
		logger.Warnf("engine: attachment %s not sent: %v", up.Name, err)
		return fx
	}
	return append(fx, more...)
}

func (s *State) voiceUploaded(ev VoiceUploaded) []Effect {
	if ev.Err != nil {
		logger.Errorf("engine: voice message: %v", ev.Err)
		return []Effect{s.notify(ev.Err)}
	}
	m := s.newMessage(ev.ConversationID, model.MessageTypeVoice)
	m.VoiceMessage = &model.VoiceMessage{URL: ev.Attachment.URL, Duration: ev.Duration}
	fx, err := s.dispatchMessage(m)
	if err != nil {
		logger.Warnf("engine: voice message not sent: %v", err)
		return nil
	}
	return fx
}
