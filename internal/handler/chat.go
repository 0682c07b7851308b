package handler

import (
	"net/http"

	"github.com/chatsync/internal/engine"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/search"
	"github.com/go-chi/chi/v5"
)

type ChatHandler struct {
	eng *engine.Engine
}

func NewChatHandler(eng *engine.Engine) *ChatHandler {
	return &ChatHandler{eng: eng}
}

type CreateDirectRequest struct {
	UserID string `json:"userId" validate:"required"`
}

type CreateGroupRequest struct {
	Name      string   `json:"name" validate:"required,max=128"`
	MemberIDs []string `json:"memberIds" validate:"required,min=1,dive,required"`
}

type SendMessageRequest struct {
	Content string `json:"content" validate:"required,max=10000"`
	ReplyTo string `json:"replyTo"`
}

type TypingRequest struct {
	IsTyping bool `json:"isTyping"`
}

type NavigateRequest struct {
	Direction string `json:"direction" validate:"required,oneof=next prev previous up down"`
}

func (h *ChatHandler) GetChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.eng.Conversations()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

func (h *ChatHandler) CreateDirect(w http.ResponseWriter, r *http.Request) {
	var req CreateDirectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := h.eng.CreateDirect(r.Context(), req.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *ChatHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := h.eng.CreateGroup(r.Context(), req.Name, req.MemberIDs)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// Select делает чат активным и подгружает историю.
func (h *ChatHandler) Select(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.Select(chi.URLParam(r, "id")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetMessages отдаёт сообщения чата по возрастанию времени; limit: последние N.
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.eng.Messages(chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if limit := queryInt(r, "limit", 0); limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	if msgs == nil {
		msgs = []*model.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	m, err := h.eng.SendText(chi.URLParam(r, "id"), req.Content, req.ReplyTo)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.MarkRead(chi.URLParam(r, "id")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChatHandler) SetTyping(w http.ResponseWriter, r *http.Request) {
	var req TypingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.eng.Typing(chi.URLParam(r, "id"), req.IsTyping); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChatHandler) GetTyping(w http.ResponseWriter, r *http.Request) {
	typers, err := h.eng.TypingUsers(chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"typing": typers})
}

// Search ищет в активном чате: ?q=&type=&sender=. Чат из пути становится активным.
func (h *ChatHandler) Search(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	v, err := h.eng.View()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if v.ActiveConversation != convID {
		if err := h.eng.Select(convID); err != nil {
			writeEngineError(w, err)
			return
		}
	}
	q := r.URL.Query()
	f := search.Filter{Type: model.MessageType(q.Get("type")), Sender: q.Get("sender")}
	ids, err := h.eng.Search(q.Get("q"), f)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": ids})
}

func (h *ChatHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	var req NavigateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	d, _ := search.ParseDirection(req.Direction)
	id, err := h.eng.Navigate(d)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"messageId": id})
}

func (h *ChatHandler) SetFlags(w http.ResponseWriter, r *http.Request) {
	var flags model.ConversationFlags
	if !decodeBody(w, r, &flags) {
		return
	}
	if err := h.eng.SetFlags(chi.URLParam(r, "id"), flags); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
