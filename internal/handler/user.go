package handler

import (
	"net/http"

	"github.com/chatsync/internal/engine"
	"github.com/chatsync/internal/model"
)

type UserHandler struct {
	eng *engine.Engine
}

func NewUserHandler(eng *engine.Engine) *UserHandler {
	return &UserHandler{eng: eng}
}

// GetUsers проксирует список пользователей сервера (для создания чатов).
func (h *UserHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.eng.Users(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}
