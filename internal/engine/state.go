// Package engine: движок синхронизации чата. State хранит все компоненты и
// сводит события в эффекты; Engine крутит State в одной горутине и исполняет
// эффекты (сокеты, таймеры, REST-вызовы).
package engine

import (
	"fmt"
	"io"
	"time"

	"github.com/chatsync/internal/api"
	"github.com/chatsync/internal/media"
	"github.com/chatsync/internal/metrics"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/outbox"
	"github.com/chatsync/internal/presence"
	"github.com/chatsync/internal/protocol"
	"github.com/chatsync/internal/reaction"
	"github.com/chatsync/internal/search"
	"github.com/chatsync/internal/store"
	"github.com/google/uuid"
)

// CloseNormal: код закрытия, с которым движок сам закрывает сокет.
const CloseNormal = 1000

type ConnState string

const (
	Disconnected ConnState = "disconnected"
	Connecting   ConnState = "connecting"
	AuthPending  ConnState = "auth_pending"
	Connected    ConnState = "connected"
	Reconnecting ConnState = "reconnecting"
)

type Options struct {
	ReconnectDelay    time.Duration
	TypingTTL         time.Duration
	TypingThrottle    time.Duration
	UploadGrace       time.Duration
	HighlightDuration time.Duration
	RecordTick        time.Duration
	PlaybackTick      time.Duration
	MaxUploadSize     int64
	OutboxSize        int
	OutboxMaxAttempts int
}

func DefaultOptions() Options {
	return Options{
		ReconnectDelay:    3000 * time.Millisecond,
		TypingTTL:         3000 * time.Millisecond,
		TypingThrottle:    2000 * time.Millisecond,
		UploadGrace:       500 * time.Millisecond,
		HighlightDuration: 2000 * time.Millisecond,
		RecordTick:        time.Second,
		PlaybackTick:      100 * time.Millisecond,
		MaxUploadSize:     media.DefaultMaxUploadSize,
		OutboxSize:        outbox.DefaultSize,
		OutboxMaxAttempts: outbox.DefaultMaxAttempts,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = d.ReconnectDelay
	}
	if o.TypingTTL <= 0 {
		o.TypingTTL = d.TypingTTL
	}
	if o.TypingThrottle <= 0 {
		o.TypingThrottle = d.TypingThrottle
	}
	if o.UploadGrace <= 0 {
		o.UploadGrace = d.UploadGrace
	}
	if o.HighlightDuration <= 0 {
		o.HighlightDuration = d.HighlightDuration
	}
	if o.RecordTick <= 0 {
		o.RecordTick = d.RecordTick
	}
	if o.PlaybackTick <= 0 {
		o.PlaybackTick = d.PlaybackTick
	}
	if o.MaxUploadSize <= 0 {
		o.MaxUploadSize = d.MaxUploadSize
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = d.OutboxSize
	}
	if o.OutboxMaxAttempts <= 0 {
		o.OutboxMaxAttempts = d.OutboxMaxAttempts
	}
	return o
}

// --- Таймеры ---

type TimerKind uint8

const (
	TimerReconnect TimerKind = iota + 1
	TimerTyping
	TimerRecord
	TimerPlayback
	TimerHighlight
	TimerUploadGrace
)

// TimerKey задаёт слот таймера. Повторный запуск ключа заменяет прежний экземпляр.
type TimerKey struct {
	Kind           TimerKind
	ConversationID string
	ID             string
}

func (k TimerKey) String() string {
	switch k.Kind {
	case TimerReconnect:
		return "reconnect"
	case TimerTyping:
		return fmt.Sprintf("typing(%s,%s)", k.ConversationID, k.ID)
	case TimerRecord:
		return "record"
	case TimerPlayback:
		return "playback"
	case TimerHighlight:
		return "highlight"
	case TimerUploadGrace:
		return "upload(" + k.ID + ")"
	}
	return "timer"
}

var (
	reconnectKey = TimerKey{Kind: TimerReconnect}
	recordKey    = TimerKey{Kind: TimerRecord}
	playbackKey  = TimerKey{Kind: TimerPlayback}
	highlightKey = TimerKey{Kind: TimerHighlight}
)

func typingKey(k presence.Key) TimerKey {
	return TimerKey{Kind: TimerTyping, ConversationID: k.ConversationID, ID: k.UserID}
}

func uploadGraceKey(id string) TimerKey { return TimerKey{Kind: TimerUploadGrace, ID: id} }

// --- Эффекты ---

// Effect: инструкция для рантайма. Сам State ввод-вывод не делает.
type Effect interface{ isEffect() }

type (
	// SendFrame пишет в сокет поколения Gen.
	SendFrame struct {
		Gen  uint64
		Type protocol.FrameType
		Data []byte
	}
	Dial struct {
		Gen   uint64
		Token string
	}
	CloseSocket struct {
		Gen  uint64
		Code int
	}
	StartTimer struct {
		Key   TimerKey
		After time.Duration
	}
	StopTimer struct {
		Key TimerKey
	}
	FetchHistory struct {
		ConversationID string
	}
	StartUpload struct {
		ID             string
		ConversationID string
		Kind           api.UploadKind
		File           media.File
		Body           io.Reader
	}
	// FinishRecording завершает запись и загружает файл.
	FinishRecording struct {
		Capture        media.Capture
		ConversationID string
		Duration       int
	}
	PersistOutbox struct {
		Owner   string
		Entries []outbox.Entry
	}
	// LoadOutbox читает сохранённую очередь Owner и возвращает OutboxLoaded.
	LoadOutbox struct {
		Owner string
	}
	Publish struct {
		Update Update
	}
)

func (SendFrame) isEffect()       {}
func (Dial) isEffect()            {}
func (CloseSocket) isEffect()     {}
func (StartTimer) isEffect()      {}
func (StopTimer) isEffect()       {}
func (FetchHistory) isEffect()    {}
func (StartUpload) isEffect()     {}
func (FinishRecording) isEffect() {}
func (PersistOutbox) isEffect()   {}
func (LoadOutbox) isEffect()      {}
func (Publish) isEffect()         {}

// --- Обновления ---

type UpdateKind string

const (
	UpdateConnection    UpdateKind = "connection"
	UpdateConversations UpdateKind = "conversations"
	UpdateMessages      UpdateKind = "messages"
	UpdateTyping        UpdateKind = "typing"
	UpdatePresence      UpdateKind = "presence"
	UpdateSearch        UpdateKind = "search"
	UpdateHighlight     UpdateKind = "highlight"
	UpdateRecorder      UpdateKind = "recorder"
	UpdatePlayback      UpdateKind = "playback"
	UpdateUpload        UpdateKind = "upload"
	UpdateNotification  UpdateKind = "notification"
)

// Update сообщает подписчикам, какая часть состояния изменилась. Новые значения
// читаются через методы-запросы Engine.
type Update struct {
	Kind           UpdateKind    `json:"kind"`
	ConversationID string        `json:"conversationId,omitempty"`
	MessageID      string        `json:"messageId,omitempty"`
	UserID         string        `json:"userId,omitempty"`
	UploadID       string        `json:"uploadId,omitempty"`
	Connection     ConnState     `json:"connection,omitempty"`
	Progress       *int          `json:"progress,omitempty"`
	Notification   *Notification `json:"notification,omitempty"`
}

func publish(u Update) Effect { return Publish{Update: u} }

// --- Состояние ---

// State: вся модель клиента. Не потокобезопасен, владеет им только цикл Engine.
type State struct {
	opts    Options
	session *model.Session
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() string

	conn       ConnState
	gen        uint64
	socketOpen bool

	messages  *store.Messages
	chats     *store.Conversations
	presence  *presence.Tracker
	reactions *reaction.Aggregator
	search    *search.Index
	recorder  *media.Recorder
	playback  media.Playback
	uploads   *media.Uploads
	outbox    *outbox.Queue

	active     string
	highlight  string
	lastTyping map[string]time.Time

	// outboxOwner: ключ, под которым сохраняется очередь; outboxLoading
	// выставлен, пока читается сохранённая очередь только что вошедшего пользователя.
	outboxOwner   string
	outboxLoading string
}

// NewState создаёт пустое отключённое состояние. now может быть nil (системные часы).
func NewState(opts Options, session *model.Session, m *metrics.Metrics, now func() time.Time) *State {
	opts = opts.withDefaults()
	if now == nil {
		now = time.Now
	}
	if session == nil {
		session = model.NewSession("")
	}
	messages := store.NewMessages()
	return &State{
		opts:        opts,
		session:     session,
		metrics:     m,
		now:         now,
		newID:       uuid.NewString,
		conn:        Disconnected,
		messages:    messages,
		chats:       store.NewConversations(),
		presence:    presence.NewTracker(),
		reactions:   reaction.NewAggregator(messages),
		search:      search.NewIndex(),
		recorder:    media.NewRecorder(),
		uploads:     media.NewUploads(opts.MaxUploadSize),
		outbox:      outbox.New(opts.OutboxSize, opts.OutboxMaxAttempts),
		lastTyping:  make(map[string]time.Time),
		outboxOwner: ownerOf(session),
	}
}

func (s *State) Conn() ConnState { return s.conn }

func (s *State) Generation() uint64 { return s.gen }

func (s *State) Session() *model.Session { return s.session }

func (s *State) me() string { return s.session.UserID() }

const anonymousOwner = "anonymous"

func ownerOf(session *model.Session) string {
	if id := session.UserID(); id != "" {
		return id
	}
	return anonymousOwner
}

// OutboxOwner: ключ, под которым сохраняется исходящая очередь. Пока сервер не
// назвал пользователя, это "anonymous"; после auth сохранённая очередь
// пользователя вливается в текущую.
func (s *State) OutboxOwner() string { return s.outboxOwner }

// RestoreOutbox загружает сохранённые записи (только при старте).
func (s *State) RestoreOutbox(entries []outbox.Entry) {
	s.outbox.Restore(entries)
	s.metrics.OutboxDepth(s.outbox.Len())
}

func (s *State) setConn(c ConnState) Effect {
	s.conn = c
	s.metrics.Connected(c == Connected)
	return publish(Update{Kind: UpdateConnection, Connection: c})
}

func (s *State) notify(err error) Effect {
	n := notificationFor(err)
	if n == nil {
		n = &Notification{Message: err.Error(), Err: err}
	}
	return publish(Update{Kind: UpdateNotification, Notification: n})
}

func (s *State) persistOutbox() Effect {
	s.metrics.OutboxDepth(s.outbox.Len())
	return PersistOutbox{Owner: s.outboxOwner, Entries: s.outbox.Snapshot()}
}

// View: снимок состояния только для чтения, для вызовов извне цикла.
type View struct {
	Connection         ConnState           `json:"connection"`
	User               model.User          `json:"user"`
	ActiveConversation string              `json:"activeConversation,omitempty"`
	Highlight          string              `json:"highlight,omitempty"`
	SearchTerm         string              `json:"searchTerm,omitempty"`
	SearchResults      []string            `json:"searchResults,omitempty"`
	SearchCursor       int                 `json:"searchCursor"`
	Recorder           media.RecorderState `json:"recorder"`
	RecordingSeconds   int                 `json:"recordingSeconds"`
	Playback           media.Playback      `json:"playback"`
	Uploads            []media.Upload      `json:"uploads"`
	OutboxDepth        int                 `json:"outboxDepth"`
	Online             []string            `json:"online"`
}

func (s *State) View() View {
	return View{
		Connection:         s.conn,
		User:               s.session.User(),
		ActiveConversation: s.active,
		Highlight:          s.highlight,
		SearchTerm:         s.search.Term,
		SearchResults:      s.search.Results(),
		SearchCursor:       s.search.Cursor(),
		Recorder:           s.recorder.State(),
		RecordingSeconds:   s.recorder.Elapsed(),
		Playback:           s.playback,
		Uploads:            s.uploads.List(),
		OutboxDepth:        s.outbox.Len(),
		Online:             s.presence.Online(),
	}
}

func (s *State) Conversations() []*model.Conversation { return s.chats.All() }

func (s *State) Conversation(id string) (*model.Conversation, bool) {
	c, ok := s.chats.Get(id)
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

func (s *State) Messages(conversationID string) []*model.Message {
	return s.messages.Snapshot(conversationID)
}

func (s *State) Message(id string) (*model.Message, bool) {
	m, ok := s.messages.Get(id)
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

func (s *State) Typing(conversationID string) []presence.Typer {
	return s.presence.Typing(conversationID)
}

func (s *State) Presence(userID string) (model.Presence, bool) {
	return s.presence.Status(userID)
}

func (s *State) Reactions(messageID string) []model.ReactionGroup {
	return s.reactions.Groups(messageID)
}

func (s *State) Outbox() []outbox.Entry { return s.outbox.Snapshot() }
