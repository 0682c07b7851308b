package engine

import (
	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/protocol"
	"github.com/chatsync/internal/ws"
)

// Connect (пере)открывает сокет сессии. Отложенный реконнект отменяется, прежний
// сокет закрывается, поэтому живой сокет всегда один.
func (s *State) Connect(token string) []Effect {
	if token != "" {
		s.session.SetToken(token)
	}
	fx := []Effect{StopTimer{Key: reconnectKey}}
	if s.socketOpen {
		fx = append(fx, CloseSocket{Gen: s.gen, Code: CloseNormal})
		s.socketOpen = false
	}
	return append(fx, s.dial()...)
}

// Disconnect штатно закрывает сокет и отключает реконнект.
func (s *State) Disconnect() []Effect {
	fx := []Effect{StopTimer{Key: reconnectKey}}
	if s.socketOpen {
		fx = append(fx, CloseSocket{Gen: s.gen, Code: CloseNormal})
		s.socketOpen = false
	}
	// незавершённые подключения устаревают
	s.gen++
	if s.conn != Disconnected {
		fx = append(fx, s.setConn(Disconnected))
	}
	return fx
}

func (s *State) dial() []Effect {
	s.gen++
	return []Effect{
		Dial{Gen: s.gen, Token: s.session.Token()},
		s.setConn(Connecting),
	}
}

func (s *State) scheduleReconnect() []Effect {
	return []Effect{
		StartTimer{Key: reconnectKey, After: s.opts.ReconnectDelay},
		s.setConn(Reconnecting),
	}
}

func (s *State) socketOpened(ev SocketOpened) []Effect {
	if ev.Gen != s.gen || s.conn != Connecting {
		logger.Debugf("engine: stray socket gen=%d closed", ev.Gen)
		return []Effect{CloseSocket{Gen: ev.Gen, Code: CloseNormal}}
	}
	s.socketOpen = true
	return []Effect{s.setConn(AuthPending)}
}

func (s *State) dialFailed(ev DialFailed) []Effect {
	if ev.Gen != s.gen || s.conn != Connecting {
		return nil
	}
	logger.Errorf("engine: dial failed: %v", ev.Err)
	return s.scheduleReconnect()
}

func (s *State) socketClosed(ev SocketClosed) []Effect {
	if ev.Gen != s.gen {
		return nil
	}
	s.socketOpen = false
	if s.conn == Disconnected {
		return nil
	}
	if ev.Code == ws.CloseAuthRejected {
		err := &AuthError{Code: ev.Code}
		logger.Errorf("engine: %v", err)
		return []Effect{s.setConn(Disconnected), s.notify(err)}
	}
	logger.Infof("engine: socket closed code=%d, reconnect in %v", ev.Code, s.opts.ReconnectDelay)
	return s.scheduleReconnect()
}

func (s *State) reconnectFired() []Effect {
	if s.conn != Reconnecting {
		return nil
	}
	s.metrics.Reconnect()
	return s.dial()
}

func (s *State) authenticated(f protocol.Auth) []Effect {
	if s.conn != AuthPending {
		logger.Warnf("engine: auth frame in state %s ignored", s.conn)
		return nil
	}
	if !f.Success {
		err := &AuthError{Reason: "rejected by server"}
		logger.Errorf("engine: %v", err)
		fx := []Effect{CloseSocket{Gen: s.gen, Code: CloseNormal}}
		s.socketOpen = false
		return append(fx, s.setConn(Disconnected), s.notify(err))
	}
	if f.User != nil && f.User.ID != "" {
		s.session.SetUser(*f.User)
	}
	fx := []Effect{s.setConn(Connected)}
	fx = append(fx, s.sendEphemeral(protocol.FrameChatList, nil)...)
	if owner := ownerOf(s.session); owner != s.outboxOwner {
		// очередь уйдёт, когда вольются сохранённые записи пользователя
		if s.outboxLoading != owner {
			s.outboxLoading = owner
			fx = append(fx, LoadOutbox{Owner: owner})
		}
		return fx
	}
	return append(fx, s.flushOutbox()...)
}

// outboxLoaded вливает сохранённую очередь вошедшего пользователя. Записи,
// поставленные до auth, переезжают из ключа "anonymous", который очищается.
// При ошибке чтения владелец не меняется, следующий auth повторит загрузку.
func (s *State) outboxLoaded(ev OutboxLoaded) []Effect {
	if ev.Owner == "" || ev.Owner != s.outboxLoading {
		return nil
	}
	s.outboxLoading = ""
	if ev.Err != nil {
		logger.Errorf("engine: load outbox %s: %v", ev.Owner, ev.Err)
		if s.conn == Connected {
			return s.flushOutbox()
		}
		return nil
	}
	prev := s.outboxOwner
	var fx []Effect
	if prev == anonymousOwner {
		for _, e := range s.outbox.Merge(ev.Entries) {
			logger.Warnf("engine: outbox full, %s evicted", e.Key)
			fx = append(fx, s.failEntry(e)...)
		}
		fx = append(fx, PersistOutbox{Owner: prev})
	} else {
		s.outbox.Restore(ev.Entries)
	}
	s.outboxOwner = ev.Owner
	if len(ev.Entries) > 0 {
		logger.Infof("engine: restored %d outbox entries of %s", len(ev.Entries), ev.Owner)
	}
	if s.conn == Connected {
		if more := s.flushOutbox(); len(more) > 0 {
			return append(fx, more...)
		}
	}
	return append(fx, s.persistOutbox())
}

// flushOutbox повторно отправляет все записи в порядке FIFO. Записи без
// оставшихся попыток помечают сообщение как failed.
func (s *State) flushOutbox() []Effect {
	send, expired := s.outbox.Drain()
	if len(send) == 0 && len(expired) == 0 {
		return nil
	}
	var fx []Effect
	for _, e := range expired {
		fx = append(fx, s.failEntry(e)...)
	}
	for _, e := range send {
		fx = append(fx, SendFrame{Gen: s.gen, Type: e.Type, Data: e.Data})
	}
	logger.Infof("engine: outbox redelivered=%d failed=%d", len(send), len(expired))
	return append(fx, s.persistOutbox())
}
