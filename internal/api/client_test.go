package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chatsync/internal/media"
	"github.com/chatsync/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Get("/api/chat/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		writeJSON(w, http.StatusOK, map[string]any{"messages": []model.Message{
			{ID: "m1", Content: "hi", Type: model.MessageTypeText},
			{ID: "m2", ConversationID: id, Content: "there", Type: model.MessageTypeText},
		}})
	})
	r.Post("/api/chat/create", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			UserID string `json:"userId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)
		writeJSON(w, http.StatusOK, model.Conversation{ID: "d-" + in.UserID, Type: model.ConversationDirect})
	})
	r.Post("/api/chat/create-group", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Name      string   `json:"name"`
			MemberIDs []string `json:"memberIds"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)
		members := make([]model.Participant, 0, len(in.MemberIDs))
		for _, id := range in.MemberIDs {
			members = append(members, model.Participant{ID: id})
		}
		writeJSON(w, http.StatusOK, model.Conversation{ID: "g1", Type: model.ConversationGroup, Name: in.Name, Members: members})
	})
	r.Get("/api/users", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"users": []model.User{{ID: "u1", Name: "Анна"}}})
	})
	upload := func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength <= 0 {
			writeJSON(w, http.StatusLengthRequired, map[string]string{"error": "length required"})
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		data, _ := io.ReadAll(f)
		writeJSON(w, http.StatusOK, UploadResponse{
			URL:         r.URL.Path + "/" + hdr.Filename,
			FileName:    hdr.Filename,
			FileSize:    int64(len(data)),
			ContentType: hdr.Header.Get("Content-Type"),
		})
	}
	r.Post("/api/files/upload", upload)
	r.Post("/api/audio/upload", upload)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestHistoryFillsConversationID(t *testing.T) {
	srv := newServer(t)
	c := NewClient(srv.URL+"/", func() string { return "tok" })

	msgs, err := c.History(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "c1", msgs[0].ConversationID)
	assert.Equal(t, "c1", msgs[1].ConversationID)
}

func TestStatusErrorCarriesServerMessage(t *testing.T) {
	srv := newServer(t)
	c := NewClient(srv.URL, func() string { return "wrong" })

	_, err := c.Users(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Status)
	assert.Equal(t, "unauthorized", se.Body)
}

func TestCreateConversations(t *testing.T) {
	srv := newServer(t)
	c := NewClient(srv.URL, func() string { return "tok" })
	ctx := context.Background()

	d, err := c.CreateDirect(ctx, "u7")
	require.NoError(t, err)
	assert.Equal(t, "d-u7", d.ID)

	g, err := c.CreateGroup(ctx, "9Б", []string{"u1", "u2"})
	require.NoError(t, err)
	assert.Equal(t, "9Б", g.Name)
	assert.Len(t, g.Members, 2)

	users, err := c.Users(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Анна", users[0].Name)
}

func TestUploadReportsMonotonicProgress(t *testing.T) {
	srv := newServer(t)
	c := NewClient(srv.URL, func() string { return "tok" })

	content := strings.Repeat("x", 200<<10)
	var last, total int64
	calls := 0
	att, err := c.Upload(context.Background(), KindFile,
		media.File{Name: "photo.png", Size: int64(len(content)), MimeType: "image/png"},
		strings.NewReader(content),
		func(sent, tot int64) {
			assert.GreaterOrEqual(t, sent, last)
			last, total = sent, tot
			calls++
		})
	require.NoError(t, err)
	assert.Greater(t, calls, 1)
	assert.Equal(t, total, last, "whole body consumed")
	assert.Equal(t, "photo.png", att.Name)
	assert.Equal(t, int64(len(content)), att.Size)
	assert.Equal(t, "image/png", att.MimeType)
	assert.Equal(t, "/api/files/upload/photo.png", att.URL)
	assert.Equal(t, att.URL, att.PreviewURL)
}

func TestUploadAudioEndpoint(t *testing.T) {
	srv := newServer(t)
	c := NewClient(srv.URL, func() string { return "tok" })

	att, err := c.Upload(context.Background(), KindAudio,
		media.File{Name: "voice.webm", Size: 4, MimeType: "audio/webm"},
		strings.NewReader("opus"), nil)
	require.NoError(t, err)
	assert.Equal(t, "/api/audio/upload/voice.webm", att.URL)
	assert.Empty(t, att.PreviewURL)
}
