package handler

import (
	"net/http"

	"github.com/chatsync/internal/engine"
)

// SessionHandler управляет подключением агента и отдаёт снимок состояния для UI.
type SessionHandler struct {
	eng *engine.Engine
}

func NewSessionHandler(eng *engine.Engine) *SessionHandler {
	return &SessionHandler{eng: eng}
}

type ConnectRequest struct {
	Token string `json:"token"`
}

func (h *SessionHandler) GetState(w http.ResponseWriter, r *http.Request) {
	v, err := h.eng.View()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Connect открывает сокет. Пустой token: переподключение с текущим токеном сессии.
func (h *SessionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	if err := h.eng.Connect(req.Token); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *SessionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.Disconnect(); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) GetOutbox(w http.ResponseWriter, r *http.Request) {
	entries, err := h.eng.Outbox()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
