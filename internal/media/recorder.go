// Package media: автоматы записи и воспроизведения голосовых и прогресса
// загрузки вложений. Сам захват звука и хранение снаружи: Microphone и
// REST-загрузчик.
package media

import (
	"context"
	"io"
	"time"
)

// Microphone открывает захват звука. Open может ждать запроса разрешения.
type Microphone interface {
	Open(ctx context.Context) (Capture, error)
}

// Capture: идущая запись.
type Capture interface {
	// Stop завершает запись и возвращает закодированный файл.
	Stop() (Blob, error)
	// Cancel выбрасывает запись.
	Cancel()
}

type Blob struct {
	Data     io.Reader
	Size     int64
	MimeType string
	Name     string
}

type RecorderState string

const (
	RecorderIdle      RecorderState = "idle"
	RecorderRecording RecorderState = "recording"
)

// Recorder: автомат Idle -> Recording -> Idle. Секундный таймер снаружи:
// владелец вызывает Tick раз в секунду, пока идёт запись.
type Recorder struct {
	state          RecorderState
	conversationID string
	capture        Capture
	started        time.Time
	elapsed        int
}

func NewRecorder() *Recorder { return &Recorder{state: RecorderIdle} }

func (r *Recorder) State() RecorderState { return r.state }

// Elapsed: длительность записи в целых секундах.
func (r *Recorder) Elapsed() int { return r.elapsed }

func (r *Recorder) ConversationID() string { return r.conversationID }

// Begin переходит в Recording с уже открытым захватом.
func (r *Recorder) Begin(conversationID string, c Capture, now time.Time) error {
	if r.state == RecorderRecording {
		return ErrAlreadyRecording
	}
	r.state = RecorderRecording
	r.conversationID = conversationID
	r.capture = c
	r.started = now
	r.elapsed = 0
	return nil
}

// Tick добавляет к длительности одну секунду.
func (r *Recorder) Tick() int {
	if r.state == RecorderRecording {
		r.elapsed++
	}
	return r.elapsed
}

// End выходит из Recording и отдаёт захват на завершение.
func (r *Recorder) End() (c Capture, conversationID string, duration int, err error) {
	if r.state != RecorderRecording {
		return nil, "", 0, ErrNotRecording
	}
	c, conversationID, duration = r.capture, r.conversationID, r.elapsed
	r.reset()
	return c, conversationID, duration, nil
}

// Cancel выходит из Recording и выбрасывает захват.
func (r *Recorder) Cancel() bool {
	if r.state != RecorderRecording {
		return false
	}
	if r.capture != nil {
		r.capture.Cancel()
	}
	r.reset()
	return true
}

func (r *Recorder) reset() {
	r.state = RecorderIdle
	r.capture = nil
	r.conversationID = ""
	r.elapsed = 0
}

// NoMicrophone: для окружений без устройства записи (агент без звука).
type NoMicrophone struct{}

func (NoMicrophone) Open(context.Context) (Capture, error) { return nil, ErrNoMicrophone }
