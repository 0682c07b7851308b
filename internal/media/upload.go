package media

import (
	"sort"
	"strings"

	"github.com/chatsync/internal/model"
)

// DefaultMaxUploadSize: лимит размера вложения (50 МБ).
const DefaultMaxUploadSize int64 = 50 << 20

type UploadState string

const (
	UploadInProgress UploadState = "uploading"
	UploadReady      UploadState = "ready"
	UploadFailed     UploadState = "failed"
)

// File описывает выбранное вложение до загрузки.
type File struct {
	Name     string
	Size     int64
	MimeType string
}

type Upload struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversationId"`
	Name           string            `json:"name"`
	Size           int64             `json:"size"`
	MimeType       string            `json:"mimeType"`
	Percent        int               `json:"percent"`
	State          UploadState       `json:"state"`
	Attachment     *model.Attachment `json:"attachment,omitempty"`
	seq            uint64
}

// Uploads отслеживает прогресс вложений по id загрузки.
type Uploads struct {
	maxSize int64
	byID    map[string]*Upload
	seq     uint64
}

func NewUploads(maxSize int64) *Uploads {
	if maxSize <= 0 {
		maxSize = DefaultMaxUploadSize
	}
	return &Uploads{maxSize: maxSize, byID: make(map[string]*Upload)}
}

// Check проверяет размер, ничего не создавая.
func (u *Uploads) Check(f File) error {
	if f.Size > u.maxSize {
		return &UploadError{Name: f.Name, Size: f.Size, Limit: u.maxSize, Err: ErrTooLarge}
	}
	return nil
}

// Begin регистрирует загрузку с 0%. Слишком большой файл отклоняется до
// создания записи, прогресса по нему не бывает.
func (u *Uploads) Begin(id, conversationID string, f File) (*Upload, error) {
	if err := u.Check(f); err != nil {
		return nil, err
	}
	u.seq++
	up := &Upload{
		ID:             id,
		ConversationID: conversationID,
		Name:           f.Name,
		Size:           f.Size,
		MimeType:       f.MimeType,
		State:          UploadInProgress,
		seq:            u.seq,
	}
	u.byID[id] = up
	return up, nil
}

// Progress записывает новый процент. Во время передачи значение в пределах
// 0..99 (100 только у Complete) и не уменьшается.
func (u *Uploads) Progress(id string, percent int) (int, bool) {
	up, ok := u.byID[id]
	if !ok || up.State != UploadInProgress {
		return 0, false
	}
	if percent > 99 {
		percent = 99
	}
	if percent <= up.Percent {
		return up.Percent, false
	}
	up.Percent = percent
	return percent, true
}

// Complete отмечает загрузку готовой на 100%.
func (u *Uploads) Complete(id string, att model.Attachment) (*Upload, bool) {
	up, ok := u.byID[id]
	if !ok || up.State != UploadInProgress {
		return nil, false
	}
	up.Percent = 100
	up.State = UploadReady
	a := att
	up.Attachment = &a
	return up, true
}

// Fail удаляет загрузку целиком.
func (u *Uploads) Fail(id string) (*Upload, bool) {
	up, ok := u.byID[id]
	if !ok {
		return nil, false
	}
	delete(u.byID, id)
	up.State = UploadFailed
	return up, true
}

// Remove убирает завершённую запись после паузы.
func (u *Uploads) Remove(id string) bool {
	if _, ok := u.byID[id]; !ok {
		return false
	}
	delete(u.byID, id)
	return true
}

func (u *Uploads) Get(id string) (Upload, bool) {
	up, ok := u.byID[id]
	if !ok {
		return Upload{}, false
	}
	return *up, true
}

// List возвращает загрузки в порядке начала.
func (u *Uploads) List() []Upload {
	out := make([]Upload, 0, len(u.byID))
	for _, up := range u.byID {
		out = append(out, *up)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// MessageTypeFor выбирает тип сообщения по MIME-типу вложения.
func MessageTypeFor(mimeType string) model.MessageType {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return model.MessageTypeImage
	case strings.HasPrefix(mimeType, "video/"):
		return model.MessageTypeVideo
	default:
		return model.MessageTypeFile
	}
}
