// Package ws: клиентская сторона WebSocket чата. Одно соединение с горутинами
// чтения и записи и пингами.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/chatsync/internal/logger"
	"github.com/gorilla/websocket"
)

const (
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 1 << 20
	sendBufSize           = 256

	// CloseAuthRejected сервер присылает, когда токен отклонён.
	CloseAuthRejected = 4001
)

var (
	ErrClosed         = errors.New("ws: connection closed")
	ErrSendBufferFull = errors.New("ws: send buffer full")
)

// Socket: то, во что пишет движок. Реализуют настоящие соединения и тестовые фейки.
type Socket interface {
	Send(data []byte) error
	Close(code int)
}

// Handler получает всё, что прочитано из сокета. OnClose вызывается ровно один
// раз, после остановки обеих горутин.
type Handler struct {
	OnMessage func(data []byte)
	OnClose   func(code int, err error)
}

// Dialer открывает авторизованные соединения к одному адресу.
type Dialer struct {
	URL            string // ws(s)://host/ws
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
	// HandshakeTimeout ограничивает рукопожатие; ноль: значение gorilla по умолчанию.
	HandshakeTimeout time.Duration
}

func (d *Dialer) writeWait() time.Duration {
	if d.WriteWait > 0 {
		return d.WriteWait
	}
	return defaultWriteWait
}

func (d *Dialer) pongWait() time.Duration {
	if d.PongWait > 0 {
		return d.PongWait
	}
	return defaultPongWait
}

// Endpoint добавляет экранированный токен к базовому URL.
func Endpoint(base, token string) string {
	return base + "?token=" + url.QueryEscape(token)
}

// Dial открывает сокет и запускает горутины чтения и записи.
func (d *Dialer) Dial(ctx context.Context, token string, h Handler) (Socket, error) {
	dialer := *websocket.DefaultDialer
	if d.HandshakeTimeout > 0 {
		dialer.HandshakeTimeout = d.HandshakeTimeout
	}
	conn, resp, err := dialer.DialContext(ctx, Endpoint(d.URL, token), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("ws.Dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("ws.Dial: %w", err)
	}
	maxSize := d.MaxMessageSize
	if maxSize <= 0 {
		maxSize = defaultMaxMessageSize
	}
	c := &Conn{
		conn:      conn,
		send:      make(chan []byte, sendBufSize),
		done:      make(chan struct{}),
		handler:   h,
		writeWait: d.writeWait(),
		pongWait:  d.pongWait(),
		maxSize:   maxSize,
	}
	c.start()
	return c, nil
}

// Conn: одно клиентское WebSocket-соединение.
// Жизненный цикл: Dial -> [readPump, writePump] -> Close.
type Conn struct {
	conn    *websocket.Conn
	send    chan []byte
	handler Handler

	writeWait time.Duration
	pongWait  time.Duration
	maxSize   int64

	// done закрывается один раз; Send проверяет его без блокировки.
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (c *Conn) start() {
	c.wg.Add(2)
	go c.writePump()
	go c.readPump()
}

// Send ставит текстовый кадр в очередь и никогда не блокирует.
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrSendBufferFull
	}
}

// Close отправляет close-кадр с кодом и рвёт соединение. Можно вызывать
// повторно из любой горутины.
func (c *Conn) Close(code int) {
	c.once.Do(func() {
		msg := websocket.FormatCloseMessage(code, "")
		if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil &&
			!errors.Is(err, websocket.ErrCloseSent) {
			logger.Debugf("ws close message code=%d: %v", code, err)
		}
		close(c.done)
		// Разблокируем обе горутины (ReadMessage / WriteMessage вернут ошибку).
		c.conn.Close()
	})
}

func (c *Conn) shutdown() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// CloseCode достаёт код закрытия из ошибки чтения. Всё, что не close-кадр,
// считается аварийным закрытием.
func CloseCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}

// readPump читает кадры до ошибки или закрытия, затем сообщает код закрытия.
func (c *Conn) readPump() {
	var readErr error
	defer func() {
		c.shutdown()
		c.wg.Done()
		if c.handler.OnClose != nil {
			c.handler.OnClose(CloseCode(readErr), readErr)
		}
	}()

	c.conn.SetReadLimit(c.maxSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
		readErr = err
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, CloseAuthRejected) {
				logger.Errorf("ws read error: %v", err)
			}
			readErr = err
			return
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
			readErr = err
			return
		}
		if c.handler.OnMessage != nil {
			c.handler.OnMessage(raw)
		}
	}
}

// writePump пишет кадры из очереди и пинги. Выходит при закрытии или ошибке записи.
func (c *Conn) writePump() {
	defer c.wg.Done()
	ticker := time.NewTicker((c.pongWait * 9) / 10)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
				logger.Errorf("ws set write deadline: %v", err)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Errorf("ws write: %v", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
				logger.Errorf("ws set write deadline: %v", err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
