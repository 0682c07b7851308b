package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/chatsync/internal/engine"
	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/media"
	"github.com/go-chi/chi/v5"
)

const (
	// multipartMemory: сколько держать в памяти при разборе формы, остальное уходит во временный файл.
	multipartMemory = 8 << 20
	// multipartOverhead: запас на границы и заголовки частей сверх лимита файла.
	multipartOverhead = 64 << 10
)

type FileHandler struct {
	eng           *engine.Engine
	maxUploadSize int64
}

func NewFileHandler(eng *engine.Engine, maxUploadSize int64) *FileHandler {
	return &FileHandler{eng: eng, maxUploadSize: maxUploadSize}
}

// Upload принимает multipart "file" и отправляет его вложением в чат.
// Ответ 202 с uploadId: прогресс и итог приходят в /api/events.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadSize > 0 {
		// тело сверх лимита не читаем и не пишем на диск
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", h.maxUploadSize))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	f, fh, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer f.Close()

	file := media.File{
		Name:     filepath.Base(fh.Filename),
		Size:     fh.Size,
		MimeType: fh.Header.Get("Content-Type"),
	}
	// Временные файлы формы удаляются после ответа, а загрузка идёт в фоне: копируем в память.
	// Слишком большой файл движок отклонит без чтения тела.
	var body io.Reader = http.NoBody
	if h.maxUploadSize <= 0 || fh.Size <= h.maxUploadSize {
		data, err := io.ReadAll(f)
		if err != nil {
			logger.Errorf("file upload: read %s: %v", file.Name, err)
			writeError(w, http.StatusBadRequest, "failed to read file")
			return
		}
		body = bytes.NewReader(data)
	}
	id, err := h.eng.SendAttachment(chi.URLParam(r, "id"), file, body)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"uploadId": id})
}
