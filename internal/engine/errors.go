package engine

import (
	"errors"
	"fmt"

	"github.com/chatsync/internal/media"
	"github.com/chatsync/internal/protocol"
)

var (
	ErrClosed              = errors.New("engine closed")
	ErrUnknownConversation = errors.New("unknown conversation")
	ErrUnknownMessage      = errors.New("unknown message")
	ErrBlocked             = errors.New("conversation is blocked")
	ErrEmptyMessage        = errors.New("empty message")
	ErrNotFailed           = errors.New("message has not failed")
	ErrNoActiveChat        = errors.New("no conversation selected")
	ErrNotVoice            = errors.New("not a voice message")
)

// ConnectionError: кадр не записан, сокет не открыт или не авторизован.
type ConnectionError struct {
	Frame protocol.FrameType
	State ConnState
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot send %s: connection %s", e.Frame, e.State)
}

// ProtocolError: сервер прислал тип кадра, который клиент не обрабатывает.
type ProtocolError struct {
	Type protocol.FrameType
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("unhandled frame type %q", e.Type)
}

// AuthError: сервер отклонил токен сессии. Реконнекта нет до следующего Connect.
type AuthError struct {
	Code   int
	Reason string
}

func (e *AuthError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("authentication rejected (close %d)", e.Code)
	}
	if e.Reason != "" {
		return "authentication failed: " + e.Reason
	}
	return "authentication failed"
}

type (
	MediaError  = media.MediaError
	UploadError = media.UploadError
	DecodeError = protocol.DecodeError
)

type NotificationKind string

const (
	NotifyAuth   NotificationKind = "auth"
	NotifyUpload NotificationKind = "upload"
	NotifyMedia  NotificationKind = "media"
)

// Notification: ошибка для пользователя, приходит через Subscribe.
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	Message string           `json:"message"`
	Err     error            `json:"-"`
}

func notificationFor(err error) *Notification {
	var (
		ae *AuthError
		ue *UploadError
		me *MediaError
	)
	switch {
	case errors.As(err, &ae):
		return &Notification{Kind: NotifyAuth, Message: err.Error(), Err: err}
	case errors.As(err, &ue):
		return &Notification{Kind: NotifyUpload, Message: err.Error(), Err: err}
	case errors.As(err, &me):
		return &Notification{Kind: NotifyMedia, Message: err.Error(), Err: err}
	}
	return nil
}
