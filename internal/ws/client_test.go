package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

type closed struct {
	code int
	err  error
}

func startServer(t *testing.T, handle func(conn *websocket.Conn, r *http.Request)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn, r)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestEndpointEscapesToken(t *testing.T) {
	assert.Equal(t, "ws://h/ws?token=a%2Bb%3D%26c", Endpoint("ws://h/ws", "a+b=&c"))
}

func TestDialEchoAndNormalClose(t *testing.T) {
	tokens := make(chan string, 1)
	url := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		tokens <- r.URL.Query().Get("token")
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	})

	got := make(chan []byte, 1)
	done := make(chan closed, 1)
	d := &Dialer{URL: url}
	sock, err := d.Dial(context.Background(), "t o/k", Handler{
		OnMessage: func(data []byte) { got <- data },
		OnClose:   func(code int, err error) { done <- closed{code, err} },
	})
	require.NoError(t, err)
	assert.Equal(t, "t o/k", <-tokens)

	require.NoError(t, sock.Send([]byte(`{"type":"chat_list"}`)))
	select {
	case data := <-got:
		assert.JSONEq(t, `{"type":"chat_list"}`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("no echo")
	}

	sock.Close(websocket.CloseNormalClosure)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose not called")
	}
	assert.ErrorIs(t, sock.Send([]byte("x")), ErrClosed)
	sock.(*Conn).wg.Wait()
}

func TestServerCloseCodeIsReported(t *testing.T) {
	url := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		msg := websocket.FormatCloseMessage(CloseAuthRejected, "bad token")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_, _, _ = conn.ReadMessage()
	})

	done := make(chan closed, 1)
	d := &Dialer{URL: url}
	_, err := d.Dial(context.Background(), "tok", Handler{
		OnClose: func(code int, err error) { done <- closed{code, err} },
	})
	require.NoError(t, err)

	select {
	case c := <-done:
		assert.Equal(t, CloseAuthRejected, c.code)
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose not called")
	}
}

func TestDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	d := &Dialer{URL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"}
	_, err := d.Dial(context.Background(), "tok", Handler{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestCloseCodeOfPlainError(t *testing.T) {
	assert.Equal(t, websocket.CloseAbnormalClosure, CloseCode(assert.AnError))
	assert.Equal(t, 4001, CloseCode(&websocket.CloseError{Code: 4001}))
}
