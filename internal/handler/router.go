package handler

import (
	"net/http"
	"strings"

	"github.com/chatsync/internal/engine"
	"github.com/chatsync/internal/metrics"
	"github.com/chatsync/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig: зависимости локального API агента.
type RouterConfig struct {
	Engine             *engine.Engine
	Metrics            *metrics.Metrics
	CORSAllowedOrigins string
	RatePerSec         float64
	MaxUploadSize      int64
}

// NewRouter собирает chi-роутер API агента.
func NewRouter(c RouterConfig) http.Handler {
	sessionH := NewSessionHandler(c.Engine)
	chatH := NewChatHandler(c.Engine)
	msgH := NewMessageHandler(c.Engine)
	fileH := NewFileHandler(c.Engine, c.MaxUploadSize)
	audioH := NewAudioHandler(c.Engine)
	userH := NewUserHandler(c.Engine)
	wsH := NewWSHandler(c.Engine, c.CORSAllowedOrigins)

	origins := []string{"*"}
	if o := strings.TrimSpace(c.CORSAllowedOrigins); o != "" && o != "*" {
		origins = strings.Split(o, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	r.Use(middleware.RequestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Handle("/metrics", c.Metrics.Handler())
	r.Get("/api/events", wsH.ServeEvents)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(c.RatePerSec, int(c.RatePerSec)*2))
		r.Get("/api/state", sessionH.GetState)
		r.Post("/api/connect", sessionH.Connect)
		r.Post("/api/disconnect", sessionH.Disconnect)
		r.Get("/api/outbox", sessionH.GetOutbox)

		r.Get("/api/users", userH.GetUsers)

		r.Get("/api/chats", chatH.GetChats)
		r.Post("/api/chats/direct", chatH.CreateDirect)
		r.Post("/api/chats/group", chatH.CreateGroup)
		r.Post("/api/chats/{id}/select", chatH.Select)
		r.Get("/api/chats/{id}/messages", chatH.GetMessages)
		r.Post("/api/chats/{id}/messages", chatH.SendMessage)
		r.Post("/api/chats/{id}/read", chatH.MarkRead)
		r.Post("/api/chats/{id}/typing", chatH.SetTyping)
		r.Get("/api/chats/{id}/typing", chatH.GetTyping)
		r.Get("/api/chats/{id}/search", chatH.Search)
		r.Post("/api/chats/{id}/search/navigate", chatH.Navigate)
		r.Put("/api/chats/{id}/flags", chatH.SetFlags)
		r.Post("/api/chats/{id}/files", fileH.Upload)
		r.Post("/api/chats/{id}/recording", audioH.StartRecording)

		r.Post("/api/recording/stop", audioH.StopRecording)
		r.Delete("/api/recording", audioH.CancelRecording)
		r.Post("/api/playback/stop", audioH.StopPlayback)

		r.Put("/api/messages/{id}", msgH.Edit)
		r.Delete("/api/messages/{id}", msgH.Delete)
		r.Post("/api/messages/{id}/pin", msgH.Pin)
		r.Get("/api/messages/{id}/reactions", msgH.GetReactions)
		r.Post("/api/messages/{id}/reactions", msgH.React)
		r.Post("/api/messages/{id}/retry", msgH.Retry)
		r.Post("/api/messages/{id}/play", audioH.Play)
	})
	return r
}
