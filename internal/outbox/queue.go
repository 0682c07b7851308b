// Package outbox: ограниченная исходящая очередь. Надёжные кадры ждут здесь,
// пока сокет недоступен, а требующие подтверждения ждут эха сервера.
// Записи уникальны по ключу.
package outbox

import (
	"encoding/json"
	"time"

	"github.com/chatsync/internal/protocol"
)

const (
	DefaultSize        = 256
	DefaultMaxAttempts = 5
)

type Entry struct {
	Key            string             `json:"key"`
	Type           protocol.FrameType `json:"type"`
	Data           json.RawMessage    `json:"data"`
	MessageID      string             `json:"messageId,omitempty"`
	ConversationID string             `json:"conversationId,omitempty"`
	AwaitAck       bool               `json:"awaitAck"`
	Attempts       int                `json:"attempts"`
	EnqueuedAt     time.Time          `json:"enqueuedAt"`
}

func MessageKey(messageID string) string { return "message:" + messageID }

func ReactionKey(messageID, emoji string) string { return "reaction:" + messageID + ":" + emoji }

func EditKey(messageID string) string { return "edit:" + messageID }

func DeleteKey(messageID string) string { return "delete:" + messageID }

func PinKey(messageID string) string { return "pin:" + messageID }

func ReadKey(messageID string) string { return "read:" + messageID }

type Queue struct {
	max         int
	maxAttempts int
	entries     []*Entry
}

func New(size, maxAttempts int) *Queue {
	if size <= 0 {
		size = DefaultSize
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Queue{max: size, maxAttempts: maxAttempts}
}

func (q *Queue) find(key string) int {
	for i, e := range q.entries {
		if e.Key == key {
			return i
		}
	}
	return -1
}

// Put ставит e в очередь. Запись с тем же ключом заменяется на месте (побеждает
// последнее намерение, попытки сохраняются). При переполнении самая старая
// запись вытесняется и возвращается.
func (q *Queue) Put(e Entry) (evicted *Entry) {
	if i := q.find(e.Key); i >= 0 {
		if e.Attempts < q.entries[i].Attempts {
			e.Attempts = q.entries[i].Attempts
		}
		q.entries[i] = &e
		return nil
	}
	q.entries = append(q.entries, &e)
	if len(q.entries) > q.max {
		evicted = q.entries[0]
		q.entries[0] = nil
		q.entries = q.entries[1:]
	}
	return evicted
}

// Remove убирает запись без подтверждения (например, удаление отменяет
// неотправленную правку).
func (q *Queue) Remove(key string) bool {
	i := q.find(key)
	if i < 0 {
		return false
	}
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	return true
}

// Ack убирает подтверждённую запись.
func (q *Queue) Ack(key string) bool { return q.Remove(key) }

func (q *Queue) Has(key string) bool { return q.find(key) >= 0 }

func (q *Queue) Get(key string) (Entry, bool) {
	i := q.find(key)
	if i < 0 {
		return Entry{}, false
	}
	return *q.entries[i], true
}

// Drain готовит повторную отправку в порядке FIFO. Все записи попадают в send;
// не ждущие подтверждения покидают очередь, остальные остаются с увеличенным
// счётчиком попыток. Исчерпавшие попытки удаляются и возвращаются в expired.
func (q *Queue) Drain() (send []Entry, expired []Entry) {
	kept := q.entries[:0]
	for _, e := range q.entries {
		if !e.AwaitAck {
			send = append(send, *e)
			continue
		}
		if e.Attempts >= q.maxAttempts {
			expired = append(expired, *e)
			continue
		}
		e.Attempts++
		send = append(send, *e)
		kept = append(kept, e)
	}
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = nil
	}
	q.entries = kept
	return send, expired
}

func (q *Queue) Len() int { return len(q.entries) }

// Snapshot копирует очередь для сохранения.
func (q *Queue) Snapshot() []Entry {
	out := make([]Entry, len(q.entries))
	for i, e := range q.entries {
		out[i] = *e
	}
	return out
}

// Merge ставит сохранённые записи перед текущими. Для ключа, который уже в
// очереди, остаётся текущая запись. При переполнении самые старые записи
// вытесняются и возвращаются.
func (q *Queue) Merge(stored []Entry) (evicted []Entry) {
	seen := make(map[string]bool, len(q.entries))
	for _, e := range q.entries {
		seen[e.Key] = true
	}
	merged := make([]*Entry, 0, len(stored)+len(q.entries))
	for i := range stored {
		e := stored[i]
		if seen[e.Key] {
			continue
		}
		seen[e.Key] = true
		merged = append(merged, &e)
	}
	merged = append(merged, q.entries...)
	for len(merged) > q.max {
		evicted = append(evicted, *merged[0])
		merged = merged[1:]
	}
	q.entries = merged
	return evicted
}

// Restore загружает сохранённые записи, оставляя max самых новых.
func (q *Queue) Restore(entries []Entry) {
	q.entries = q.entries[:0]
	for _, e := range entries {
		q.Put(e)
	}
}
