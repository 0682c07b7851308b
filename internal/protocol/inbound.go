package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chatsync/internal/model"
)

// Inbound: декодированный кадр сервера. Набор реализаций закрыт: потребители
// переключаются по конкретному типу, Unknown уходит в одну ветку игнорирования.
type Inbound interface {
	FrameType() FrameType
	inbound()
}

type (
	Auth        struct{ AuthPayload }
	ChatList    struct{ ChatListPayload }
	Message     struct{ Message model.Message }
	Typing      struct{ TypingPayload }
	UserStatus  struct{ UserStatusPayload }
	ReadReceipt struct{ ReadReceiptPayload }
	Reaction    struct{ ReactionPayload }
	Error       struct{ ErrorPayload }
	Edit        struct{ EditPayload }
	Delete      struct{ DeletePayload }
	Pin         struct{ PinPayload }

	// Unknown: кадр типа, который клиент не понимает.
	Unknown struct {
		Type    FrameType
		Payload json.RawMessage
	}
)

func (Auth) FrameType() FrameType        { return FrameAuth }
func (ChatList) FrameType() FrameType    { return FrameChatList }
func (Message) FrameType() FrameType     { return FrameMessage }
func (Typing) FrameType() FrameType      { return FrameTyping }
func (UserStatus) FrameType() FrameType  { return FrameUserStatus }
func (ReadReceipt) FrameType() FrameType { return FrameReadReceipt }
func (Reaction) FrameType() FrameType    { return FrameReaction }
func (Error) FrameType() FrameType       { return FrameError }
func (Edit) FrameType() FrameType        { return FrameMessageEdit }
func (Delete) FrameType() FrameType      { return FrameMessageDelete }
func (Pin) FrameType() FrameType         { return FrameMessagePin }
func (u Unknown) FrameType() FrameType   { return u.Type }

func (Auth) inbound()        {}
func (ChatList) inbound()    {}
func (Message) inbound()     {}
func (Typing) inbound()      {}
func (UserStatus) inbound()  {}
func (ReadReceipt) inbound() {}
func (Reaction) inbound()    {}
func (Error) inbound()       {}
func (Edit) inbound()        {}
func (Delete) inbound()      {}
func (Pin) inbound()         {}
func (Unknown) inbound()     {}

// DecodeError: тело кадра не разобрано, кадр отбрасывается.
type DecodeError struct {
	Type FrameType
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("decode frame: %v", e.Err)
	}
	return fmt.Sprintf("decode %s frame: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var (
	errMissingType   = errors.New("missing frame type")
	errMissingID     = errors.New("missing message id")
	errInvalidAction = errors.New("invalid reaction action")
)

// Decode разбирает один кадр. Незнакомый тип не ошибка: возвращается Unknown,
// вызывающий пишет в лог и пропускает его.
func Decode(data []byte) (Inbound, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if f.Type == "" {
		return nil, &DecodeError{Err: errMissingType}
	}

	var (
		in  Inbound
		err error
	)
	switch f.Type {
	case FrameAuth:
		var p Auth
		err = unmarshalPayload(f.Payload, &p.AuthPayload)
		in = p
	case FrameChatList:
		var p ChatList
		err = unmarshalPayload(f.Payload, &p.ChatListPayload)
		in = p
	case FrameMessage:
		var p Message
		err = unmarshalPayload(f.Payload, &p.Message)
		if err == nil && p.Message.ID == "" {
			err = errMissingID
		}
		in = p
	case FrameTyping:
		var p Typing
		err = unmarshalPayload(f.Payload, &p.TypingPayload)
		in = p
	case FrameUserStatus:
		var p UserStatus
		err = unmarshalPayload(f.Payload, &p.UserStatusPayload)
		in = p
	case FrameReadReceipt:
		var p ReadReceipt
		err = unmarshalPayload(f.Payload, &p.ReadReceiptPayload)
		if err == nil && p.MessageID == "" {
			err = errMissingID
		}
		in = p
	case FrameReaction:
		var p Reaction
		err = unmarshalPayload(f.Payload, &p.ReactionPayload)
		if err == nil && p.Action != model.ReactionAdd && p.Action != model.ReactionRemove {
			err = fmt.Errorf("%w %q", errInvalidAction, p.Action)
		}
		in = p
	case FrameError:
		var p Error
		err = unmarshalPayload(f.Payload, &p.ErrorPayload)
		in = p
	case FrameMessageEdit:
		var p Edit
		err = unmarshalPayload(f.Payload, &p.EditPayload)
		if err == nil && p.MessageID == "" {
			err = errMissingID
		}
		in = p
	case FrameMessageDelete:
		var p Delete
		err = unmarshalPayload(f.Payload, &p.DeletePayload)
		if err == nil && p.MessageID == "" {
			err = errMissingID
		}
		in = p
	case FrameMessagePin:
		var p Pin
		err = unmarshalPayload(f.Payload, &p.PinPayload)
		if err == nil && p.MessageID == "" {
			err = errMissingID
		}
		in = p
	default:
		return Unknown{Type: f.Type, Payload: f.Payload}, nil
	}
	if err != nil {
		return nil, &DecodeError{Type: f.Type, Err: err}
	}
	return in, nil
}

func unmarshalPayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
