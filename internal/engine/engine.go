package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/chatsync/internal/api"
	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/media"
	"github.com/chatsync/internal/metrics"
	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/outbox"
	"github.com/chatsync/internal/presence"
	"github.com/chatsync/internal/search"
	"github.com/chatsync/internal/storage"
	"github.com/chatsync/internal/ws"
)

const (
	inboxSize   = 256
	persistWait = 5 * time.Second
)

// Dialer открывает сокет чата. Реализация: *ws.Dialer, в тестах фейки.
type Dialer interface {
	Dial(ctx context.Context, token string, h ws.Handler) (ws.Socket, error)
}

// API: REST-клиент сервера. Реализация: *api.Client.
type API interface {
	History(ctx context.Context, conversationID string) ([]model.Message, error)
	Upload(ctx context.Context, kind api.UploadKind, f media.File, body io.Reader, progress api.Progress) (model.Attachment, error)
	CreateDirect(ctx context.Context, userID string) (model.Conversation, error)
	CreateGroup(ctx context.Context, name string, memberIDs []string) (model.Conversation, error)
	Users(ctx context.Context) ([]model.User, error)
}

// Deps: зависимости движка. Обязателен только Dialer.
type Deps struct {
	Dialer     Dialer
	API        API
	Store      storage.OutboxStore
	Microphone media.Microphone
	Clock      clock.Clock
	Metrics    *metrics.Metrics
}

type timer struct {
	t   *clock.Timer
	gen uint64
}

// Engine крутит State в одной горутине. Каждый экспортируемый метод ставит
// задачу в эту горутину и ждёт её, поэтому после запуска Run методы можно
// вызывать конкурентно.
type Engine struct {
	deps  Deps
	clock clock.Clock
	state *State

	inbox   chan func()
	stopped chan struct{}
	ctx     context.Context

	// принадлежат горутине цикла
	sockets  map[uint64]ws.Socket
	timers   map[TimerKey]*timer
	timerGen uint64

	// последний несохранённый снимок по каждому владельцу
	persistMu  sync.Mutex
	persisting map[string][]outbox.Entry
	persistSig chan struct{}
	wg         sync.WaitGroup

	subsMu  sync.Mutex
	subs    map[int]chan Update
	nextSub int
}

func New(opts Options, session *model.Session, deps Deps) *Engine {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Microphone == nil {
		deps.Microphone = media.NoMicrophone{}
	}
	return &Engine{
		deps:      deps,
		clock:     deps.Clock,
		state:     NewState(opts, session, deps.Metrics, deps.Clock.Now),
		inbox:     make(chan func(), inboxSize),
		stopped:   make(chan struct{}),
		ctx:       context.Background(),
		sockets:   make(map[uint64]ws.Socket),
		timers:    make(map[TimerKey]*timer),
		subs:      make(map[int]chan Update),

		persisting: make(map[string][]outbox.Entry),
		persistSig: make(chan struct{}, 1),
	}
}

// Run загружает сохранённую очередь и обрабатывает события до отмены ctx.
// На выходе гасит таймеры, закрывает сокет с кодом 1000 и каналы подписчиков.
func (e *Engine) Run(ctx context.Context) error {
	defer logger.DeferLogDuration("engine.Run", time.Now())()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.ctx = ctx

	e.loadOutbox(ctx)
	e.wg.Add(1)
	go e.persistLoop(ctx)

	defer func() {
		close(e.stopped)
		e.teardown()
		cancel()
		e.wg.Wait()
		e.closeSubscribers()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-e.inbox:
			fn()
		}
	}
}

func (e *Engine) loadOutbox(ctx context.Context) {
	if e.deps.Store == nil {
		return
	}
	owner := e.state.OutboxOwner()
	lctx, cancel := context.WithTimeout(ctx, persistWait)
	defer cancel()
	entries, err := e.deps.Store.LoadOutbox(lctx, owner)
	if err != nil {
		logger.Errorf("engine: load outbox %s: %v", owner, err)
		return
	}
	if len(entries) > 0 {
		e.state.RestoreOutbox(entries)
		logger.Infof("engine: restored %d outbox entries", len(entries))
	}
}

func (e *Engine) teardown() {
	e.exec(e.state.Disconnect())
	for k, t := range e.timers {
		t.t.Stop()
		delete(e.timers, k)
	}
	for gen, sock := range e.sockets {
		sock.Close(CloseNormal)
		delete(e.sockets, gen)
	}
}

// post передаёт fn в цикл. После остановки движка возвращает false.
func (e *Engine) post(fn func()) bool {
	select {
	case <-e.stopped:
		return false
	default:
	}
	select {
	case e.inbox <- fn:
		return true
	case <-e.stopped:
		return false
	}
}

func (e *Engine) apply(ev Event) {
	e.exec(e.state.Apply(ev))
}

func (e *Engine) postEvent(ev Event) {
	e.post(func() { e.apply(ev) })
}

// do выполняет fn в цикле, исполняет эффекты и ждёт завершения.
func (e *Engine) do(fn func(s *State) []Effect) error {
	done := make(chan struct{})
	if !e.post(func() {
		defer close(done)
		e.exec(fn(e.state))
	}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-e.stopped:
		return ErrClosed
	}
}

// exec исполняет эффекты по порядку.
func (e *Engine) exec(fx []Effect) {
	for _, f := range fx {
		switch f := f.(type) {
		case SendFrame:
			sock, ok := e.sockets[f.Gen]
			if !ok {
				logger.Warnf("engine: %s frame for closed socket gen=%d dropped", f.Type, f.Gen)
				continue
			}
			if err := sock.Send(f.Data); err != nil {
				logger.Errorf("engine: send %s: %v", f.Type, err)
				continue
			}
			e.deps.Metrics.FrameOut(string(f.Type))
		case Dial:
			e.dial(f)
		case CloseSocket:
			if sock, ok := e.sockets[f.Gen]; ok {
				delete(e.sockets, f.Gen)
				sock.Close(f.Code)
			}
		case StartTimer:
			e.startTimer(f.Key, f.After)
		case StopTimer:
			e.stopTimer(f.Key)
		case FetchHistory:
			e.fetchHistory(f.ConversationID)
		case StartUpload:
			e.upload(f)
		case FinishRecording:
			e.finishRecording(f)
		case PersistOutbox:
			e.queuePersist(f)
		case LoadOutbox:
			e.loadOwnerOutbox(f)
		case Publish:
			e.publish(f.Update)
		}
	}
}

// dial подключается вне цикла. Колбэки сокета ждут, пока в очередь встанет
// SocketOpened, поэтому ни один кадр его не обгонит.
func (e *Engine) dial(f Dial) {
	gen := f.Gen
	ready := make(chan struct{})
	h := ws.Handler{
		OnMessage: func(data []byte) {
			<-ready
			e.postEvent(FrameReceived{Gen: gen, Data: data})
		},
		OnClose: func(code int, err error) {
			<-ready
			e.post(func() {
				delete(e.sockets, gen)
				e.apply(SocketClosed{Gen: gen, Code: code, Err: err})
			})
		},
	}
	ctx := e.ctx
	go func() {
		defer close(ready)
		sock, err := e.deps.Dialer.Dial(ctx, f.Token, h)
		if err != nil {
			e.postEvent(DialFailed{Gen: gen, Err: err})
			return
		}
		if !e.post(func() {
			e.sockets[gen] = sock
			e.apply(SocketOpened{Gen: gen})
		}) {
			sock.Close(CloseNormal)
		}
	}()
}

// startTimer взводит таймер key вместо прежнего. Срабатывание заменённого
// экземпляра несёт старое поколение и игнорируется.
func (e *Engine) startTimer(key TimerKey, d time.Duration) {
	e.stopTimer(key)
	e.timerGen++
	gen := e.timerGen
	t := e.clock.AfterFunc(d, func() {
		e.post(func() { e.fire(key, gen) })
	})
	e.timers[key] = &timer{t: t, gen: gen}
}

func (e *Engine) stopTimer(key TimerKey) {
	if t, ok := e.timers[key]; ok {
		t.t.Stop()
		delete(e.timers, key)
	}
}

func (e *Engine) fire(key TimerKey, gen uint64) {
	t, ok := e.timers[key]
	if !ok || t.gen != gen {
		return
	}
	delete(e.timers, key)
	e.apply(TimerFired{Key: key})
}

func (e *Engine) fetchHistory(conversationID string) {
	if e.deps.API == nil {
		return
	}
	ctx := e.ctx
	go func() {
		msgs, err := e.deps.API.History(ctx, conversationID)
		e.postEvent(HistoryLoaded{ConversationID: conversationID, Messages: msgs, Err: err})
	}()
}

func (e *Engine) upload(f StartUpload) {
	if e.deps.API == nil {
		e.apply(UploadFinished{ID: f.ID, Err: errors.New("uploads are not configured")})
		return
	}
	ctx := e.ctx
	go func() {
		att, err := e.deps.API.Upload(ctx, f.Kind, f.File, f.Body, func(sent, total int64) {
			e.postEvent(UploadProgressed{ID: f.ID, Sent: sent, Total: total})
		})
		e.postEvent(UploadFinished{ID: f.ID, Attachment: att, Err: err})
	}()
}

func (e *Engine) finishRecording(f FinishRecording) {
	ctx := e.ctx
	go func() {
		ev := VoiceUploaded{ConversationID: f.ConversationID, Duration: f.Duration}
		defer func() { e.postEvent(ev) }()

		blob, err := f.Capture.Stop()
		if err != nil {
			ev.Err = &MediaError{Err: err}
			return
		}
		if e.deps.API == nil {
			ev.Err = &UploadError{Name: blob.Name, Size: blob.Size, Err: errors.New("uploads are not configured")}
			return
		}
		file := media.File{Name: blob.Name, Size: blob.Size, MimeType: blob.MimeType}
		if file.Name == "" {
			file.Name = fmt.Sprintf("voice-%d.webm", e.clock.Now().Unix())
		}
		att, err := e.deps.API.Upload(ctx, api.KindAudio, file, blob.Data, nil)
		if err != nil {
			ev.Err = &UploadError{Name: file.Name, Size: file.Size, Err: err}
			return
		}
		ev.Attachment = att
	}()
}

// loadOwnerOutbox читает сохранённую очередь пользователя, которого назвал сервер.
func (e *Engine) loadOwnerOutbox(f LoadOutbox) {
	if e.deps.Store == nil {
		e.apply(OutboxLoaded{Owner: f.Owner})
		return
	}
	ctx := e.ctx
	go func() {
		lctx, cancel := context.WithTimeout(ctx, persistWait)
		defer cancel()
		entries, err := e.deps.Store.LoadOutbox(lctx, f.Owner)
		e.postEvent(OutboxLoaded{Owner: f.Owner, Entries: entries, Err: err})
	}()
}

// queuePersist оставляет только последний снимок каждого владельца; горутина
// записи сохраняет их по одному.
func (e *Engine) queuePersist(p PersistOutbox) {
	if e.deps.Store == nil {
		return
	}
	e.persistMu.Lock()
	e.persisting[p.Owner] = p.Entries
	e.persistMu.Unlock()
	select {
	case e.persistSig <- struct{}{}:
	default:
	}
}

func (e *Engine) persistLoop(ctx context.Context) {
	defer e.wg.Done()
	flush := func() {
		e.persistMu.Lock()
		batch := e.persisting
		e.persisting = make(map[string][]outbox.Entry)
		e.persistMu.Unlock()
		for owner, entries := range batch {
			sctx, cancel := context.WithTimeout(context.Background(), persistWait)
			if err := e.deps.Store.SaveOutbox(sctx, owner, entries); err != nil {
				logger.Errorf("engine: save outbox %s: %v", owner, err)
			}
			cancel()
		}
	}
	for {
		select {
		case <-e.persistSig:
			flush()
		case <-ctx.Done():
			flush()
			return
		}
	}
}

// --- Подписки ---

// Subscribe возвращает канал обновлений. Подписчик, отставший больше чем на buf
// обновлений, теряет лишние. Возвращаемая функция отписывает.
func (e *Engine) Subscribe(buf int) (<-chan Update, func()) {
	if buf <= 0 {
		buf = 64
	}
	ch := make(chan Update, buf)
	e.subsMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.subsMu.Unlock()
	return ch, func() {
		e.subsMu.Lock()
		defer e.subsMu.Unlock()
		if c, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(c)
		}
	}
}

func (e *Engine) publish(u Update) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	for id, ch := range e.subs {
		select {
		case ch <- u:
		default:
			e.deps.Metrics.UpdateDropped()
			logger.Errorf("engine: subscriber %d buffer full, %s update dropped", id, u.Kind)
		}
	}
}

func (e *Engine) closeSubscribers() {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
}

// --- Команды ---

func (e *Engine) Connect(token string) error {
	return e.do(func(s *State) []Effect { return s.Connect(token) })
}

func (e *Engine) Disconnect() error {
	return e.do(func(s *State) []Effect { return s.Disconnect() })
}

func (e *Engine) SendText(conversationID, content, replyTo string) (*model.Message, error) {
	var (
		m   *model.Message
		err error
	)
	if derr := e.do(func(s *State) []Effect {
		var fx []Effect
		m, fx, err = s.SendText(conversationID, content, replyTo)
		return fx
	}); derr != nil {
		return nil, derr
	}
	return m, err
}

// doErr выполняет намерение, которое возвращает только ошибку.
func (e *Engine) doErr(fn func(s *State) ([]Effect, error)) error {
	var err error
	if derr := e.do(func(s *State) []Effect {
		var fx []Effect
		fx, err = fn(s)
		return fx
	}); derr != nil {
		return derr
	}
	return err
}

func (e *Engine) Retry(messageID string) error {
	return e.doErr(func(s *State) ([]Effect, error) { return s.Retry(messageID) })
}

func (e *Engine) Edit(messageID, content string) error {
	return e.doErr(func(s *State) ([]Effect, error) { return s.EditMessage(messageID, content) })
}

func (e *Engine) Delete(messageID string) error {
	return e.doErr(func(s *State) ([]Effect, error) { return s.DeleteMessage(messageID) })
}

func (e *Engine) Pin(messageID string, pinned bool) error {
	return e.doErr(func(s *State) ([]Effect, error) { return s.PinMessage(messageID, pinned) })
}

func (e *Engine) React(messageID, emoji string) (model.ReactionAction, error) {
	var action model.ReactionAction
	err := e.doErr(func(s *State) ([]Effect, error) {
		a, fx, err := s.React(messageID, emoji)
		action = a
		return fx, err
	})
	return action, err
}

func (e *Engine) MarkRead(conversationID string) error {
	return e.doErr(func(s *State) ([]Effect, error) { return s.MarkRead(conversationID) })
}

func (e *Engine) Typing(conversationID string, typing bool) error {
	return e.do(func(s *State) []Effect { return s.LocalTyping(conversationID, typing) })
}

func (e *Engine) Select(conversationID string) error {
	return e.doErr(func(s *State) ([]Effect, error) { return s.Select(conversationID) })
}

func (e *Engine) SetFlags(conversationID string, f model.ConversationFlags) error {
	return e.doErr(func(s *State) ([]Effect, error) { return s.SetFlags(conversationID, f) })
}

func (e *Engine) Search(term string, f search.Filter) ([]string, error) {
	var ids []string
	err := e.doErr(func(s *State) ([]Effect, error) {
		r, fx, err := s.Search(term, f)
		ids = r
		return fx, err
	})
	return ids, err
}

// Navigate возвращает id сообщения, к которому прокрутить ("" без результатов).
func (e *Engine) Navigate(d search.Direction) (string, error) {
	var id string
	err := e.do(func(s *State) []Effect {
		var fx []Effect
		id, fx = s.Navigate(d)
		return fx
	})
	return id, err
}

// StartRecording открывает микрофон (может ждать запроса разрешения) и
// переходит в Recording.
func (e *Engine) StartRecording(ctx context.Context, conversationID string) error {
	c, err := e.deps.Microphone.Open(ctx)
	if err != nil {
		merr := &MediaError{Err: err}
		logger.Errorf("engine: %v", merr)
		if derr := e.do(func(s *State) []Effect { return []Effect{s.notify(merr)} }); derr != nil {
			return derr
		}
		return merr
	}
	err = e.doErr(func(s *State) ([]Effect, error) { return s.BeginRecording(conversationID, c) })
	if err != nil {
		c.Cancel()
	}
	return err
}

func (e *Engine) StopRecording() error {
	return e.doErr(func(s *State) ([]Effect, error) { return s.StopRecording() })
}

func (e *Engine) CancelRecording() error {
	return e.do(func(s *State) []Effect { return s.CancelRecording() })
}

func (e *Engine) Play(messageID string) error {
	return e.doErr(func(s *State) ([]Effect, error) { return s.Play(messageID) })
}

func (e *Engine) StopPlayback() error {
	return e.do(func(s *State) []Effect { return s.StopPlayback() })
}

// SendAttachment запускает загрузку; сообщение уходит по её завершении.
// body должен оставаться читаемым до этого момента.
func (e *Engine) SendAttachment(conversationID string, f media.File, body io.Reader) (string, error) {
	var id string
	err := e.doErr(func(s *State) ([]Effect, error) {
		uid, fx, err := s.BeginUpload(conversationID, f, body)
		id = uid
		return fx, err
	})
	return id, err
}

func (e *Engine) CreateDirect(ctx context.Context, userID string) (model.Conversation, error) {
	if e.deps.API == nil {
		return model.Conversation{}, errors.New("engine: REST API is not configured")
	}
	c, err := e.deps.API.CreateDirect(ctx, userID)
	if err != nil {
		return c, err
	}
	return c, e.do(func(s *State) []Effect { return s.UpsertConversation(c) })
}

func (e *Engine) CreateGroup(ctx context.Context, name string, memberIDs []string) (model.Conversation, error) {
	if e.deps.API == nil {
		return model.Conversation{}, errors.New("engine: REST API is not configured")
	}
	c, err := e.deps.API.CreateGroup(ctx, name, memberIDs)
	if err != nil {
		return c, err
	}
	return c, e.do(func(s *State) []Effect { return s.UpsertConversation(c) })
}

func (e *Engine) Users(ctx context.Context) ([]model.User, error) {
	if e.deps.API == nil {
		return nil, errors.New("engine: REST API is not configured")
	}
	return e.deps.API.Users(ctx)
}

// --- Запросы ---

// query выполняет чтение в цикле.
func query[T any](e *Engine, fn func(s *State) T) (T, error) {
	var out T
	err := e.do(func(s *State) []Effect {
		out = fn(s)
		return nil
	})
	return out, err
}

func (e *Engine) View() (View, error) {
	return query(e, func(s *State) View { return s.View() })
}

func (e *Engine) Conversations() ([]*model.Conversation, error) {
	return query(e, func(s *State) []*model.Conversation { return s.Conversations() })
}

func (e *Engine) Messages(conversationID string) ([]*model.Message, error) {
	return query(e, func(s *State) []*model.Message { return s.Messages(conversationID) })
}

func (e *Engine) Message(id string) (*model.Message, error) {
	m, err := query(e, func(s *State) *model.Message {
		m, _ := s.Message(id)
		return m
	})
	if err == nil && m == nil {
		err = ErrUnknownMessage
	}
	return m, err
}

func (e *Engine) TypingUsers(conversationID string) ([]presence.Typer, error) {
	return query(e, func(s *State) []presence.Typer { return s.Typing(conversationID) })
}

func (e *Engine) Reactions(messageID string) ([]model.ReactionGroup, error) {
	return query(e, func(s *State) []model.ReactionGroup { return s.Reactions(messageID) })
}

func (e *Engine) Outbox() ([]outbox.Entry, error) {
	return query(e, func(s *State) []outbox.Entry { return s.Outbox() })
}
