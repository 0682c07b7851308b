package handler

import (
	"net/http"

	"github.com/chatsync/internal/engine"
	"github.com/go-chi/chi/v5"
)

// AudioHandler управляет записью и воспроизведением голосовых сообщений.
type AudioHandler struct {
	eng *engine.Engine
}

func NewAudioHandler(eng *engine.Engine) *AudioHandler {
	return &AudioHandler{eng: eng}
}

// StartRecording открывает микрофон и начинает запись в чат из пути.
func (h *AudioHandler) StartRecording(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.StartRecording(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StopRecording завершает запись; загрузка и отправка идут в фоне.
func (h *AudioHandler) StopRecording(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.StopRecording(); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *AudioHandler) CancelRecording(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.CancelRecording(); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AudioHandler) Play(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.Play(chi.URLParam(r, "id")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AudioHandler) StopPlayback(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.StopPlayback(); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
