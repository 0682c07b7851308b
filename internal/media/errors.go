package media

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

var (
	ErrAlreadyRecording = errors.New("media: already recording")
	ErrNotRecording     = errors.New("media: not recording")
	ErrNoMicrophone     = errors.New("media: microphone unavailable")
	ErrUnknownUpload    = errors.New("media: unknown upload")
)

// MediaError: микрофон недоступен (нет разрешения или устройства).
type MediaError struct {
	Err error
}

func (e *MediaError) Error() string { return fmt.Sprintf("microphone: %v", e.Err) }
func (e *MediaError) Unwrap() error { return e.Err }

// UploadError: вложение отклонено или загрузка не удалась. Частичной загрузки
// после неё не остаётся.
type UploadError struct {
	Name  string
	Size  int64
	Limit int64
	Err   error
}

func (e *UploadError) Error() string {
	if e.Limit > 0 && e.Size > e.Limit {
		return fmt.Sprintf("file %q is %s, limit is %s",
			e.Name, humanize.IBytes(uint64(e.Size)), humanize.IBytes(uint64(e.Limit)))
	}
	return fmt.Sprintf("upload %q: %v", e.Name, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// ErrTooLarge оборачивается в UploadError, когда файл не прошёл проверку размера.
var ErrTooLarge = errors.New("file too large")
