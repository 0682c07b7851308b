// Package search: поиск в памяти по загруженным сообщениям чата с курсором по
// найденному. Постоянного индекса нет, каждый Run сканирует заново.
package search

import (
	"strings"

	"github.com/chatsync/internal/model"
	"golang.org/x/text/cases"
)

type Filter struct {
	Type   model.MessageType `json:"type,omitempty"`
	Sender string            `json:"sender,omitempty"`
}

func (f Filter) empty() bool { return f.Type == "" && f.Sender == "" }

type Direction int

const (
	Next Direction = iota
	Prev
)

// ParseDirection принимает "next"/"down" и "prev"/"previous"/"up".
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(s) {
	case "next", "down":
		return Next, true
	case "prev", "previous", "up":
		return Prev, true
	}
	return Next, false
}

// Match выполняет один запрос. Результаты в порядке хранения.
func Match(msgs []*model.Message, term string, f Filter) []*model.Message {
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(term))
	if needle == "" && f.empty() {
		return nil
	}
	var out []*model.Message
	for _, m := range msgs {
		if f.Type != "" && m.Type != f.Type {
			continue
		}
		if f.Sender != "" && m.SenderID != f.Sender {
			continue
		}
		if needle == "" || matches(fold, m, needle) {
			out = append(out, m)
		}
	}
	return out
}

func matches(fold cases.Caser, m *model.Message, needle string) bool {
	if strings.Contains(fold.String(m.Content), needle) {
		return true
	}
	if m.Attachment != nil && strings.Contains(fold.String(m.Attachment.Name), needle) {
		return true
	}
	return strings.Contains(fold.String(m.SenderName), needle)
}

// Index хранит последние результаты и курсор.
type Index struct {
	ConversationID string
	Term           string
	Filter         Filter
	results        []string
	cursor         int
}

func NewIndex() *Index { return &Index{cursor: -1} }

// Run сканирует msgs заново и ставит курсор в 0, или -1, если ничего не найдено.
func (ix *Index) Run(conversationID string, msgs []*model.Message, term string, f Filter) []string {
	hits := Match(msgs, term, f)
	ix.ConversationID = conversationID
	ix.Term = term
	ix.Filter = f
	ix.results = make([]string, len(hits))
	for i, m := range hits {
		ix.results[i] = m.ID
	}
	ix.cursor = -1
	if len(ix.results) > 0 {
		ix.cursor = 0
	}
	return ix.Results()
}

// Navigate двигает курсор по кругу в обе стороны и возвращает id сообщения под ним.
func (ix *Index) Navigate(d Direction) (string, bool) {
	n := len(ix.results)
	if n == 0 {
		return "", false
	}
	switch d {
	case Prev:
		ix.cursor = (ix.cursor - 1 + n) % n
	default:
		ix.cursor = (ix.cursor + 1) % n
	}
	return ix.results[ix.cursor], true
}

// Forget убирает удалённое сообщение из результатов, по возможности оставляя
// курсор на том же совпадении.
func (ix *Index) Forget(messageID string) {
	for i, id := range ix.results {
		if id != messageID {
			continue
		}
		ix.results = append(ix.results[:i], ix.results[i+1:]...)
		switch {
		case len(ix.results) == 0:
			ix.cursor = -1
		case i < ix.cursor || ix.cursor >= len(ix.results):
			ix.cursor--
		}
		return
	}
}

func (ix *Index) Reset() {
	*ix = Index{cursor: -1}
}

func (ix *Index) Cursor() int { return ix.cursor }

func (ix *Index) Results() []string { return append([]string(nil), ix.results...) }

// Current возвращает id под курсором.
func (ix *Index) Current() (string, bool) {
	if ix.cursor < 0 || ix.cursor >= len(ix.results) {
		return "", false
	}
	return ix.results[ix.cursor], true
}
