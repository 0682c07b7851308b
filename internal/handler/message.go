package handler

import (
	"net/http"

	"github.com/chatsync/internal/engine"
	"github.com/go-chi/chi/v5"
)

type MessageHandler struct {
	eng *engine.Engine
}

func NewMessageHandler(eng *engine.Engine) *MessageHandler {
	return &MessageHandler{eng: eng}
}

type EditMessageRequest struct {
	Content string `json:"content" validate:"required,max=10000"`
}

type PinRequest struct {
	IsPinned bool `json:"isPinned"`
}

type ReactRequest struct {
	Emoji string `json:"emoji" validate:"required,max=32"`
}

func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req EditMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.eng.Edit(chi.URLParam(r, "id"), req.Content); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.Delete(chi.URLParam(r, "id")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) Pin(w http.ResponseWriter, r *http.Request) {
	var req PinRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.eng.Pin(chi.URLParam(r, "id"), req.IsPinned); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// React переключает реакцию текущего пользователя и возвращает выбранное действие.
func (h *MessageHandler) React(w http.ResponseWriter, r *http.Request) {
	var req ReactRequest
	if !decodeBody(w, r, &req) {
		return
	}
	action, err := h.eng.React(chi.URLParam(r, "id"), req.Emoji)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"action": string(action)})
}

func (h *MessageHandler) GetReactions(w http.ResponseWriter, r *http.Request) {
	groups, err := h.eng.Reactions(chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reactions": groups})
}

func (h *MessageHandler) Retry(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.Retry(chi.URLParam(r, "id")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
