// Package api: REST-часть сервиса чата: история, создание чатов, список
// пользователей и загрузка вложений.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/media"
	"github.com/chatsync/internal/model"
)

// UploadKind выбирает эндпоинт загрузки.
type UploadKind string

const (
	KindFile  UploadKind = "file"
	KindAudio UploadKind = "audio"
)

// Client вызывает REST API чата с bearer-токеном текущей сессии.
type Client struct {
	baseURL    string
	token      func() string
	httpClient *http.Client
	// uploadClient без общего таймаута: большие файлы ограничены только ctx.
	uploadClient *http.Client
}

// NewClient создаёт клиент. token вызывается на каждый запрос, чтобы смена токена
// (повторный Connect) сразу попадала в заголовок.
func NewClient(baseURL string, token func() string) *Client {
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		token:        token,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		uploadClient: &http.Client{},
	}
}

// StatusError: ответ сервера с кодом не 2xx.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != nil {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	return req, nil
}

// do выполняет запрос и декодирует JSON-ответ в out (если out != nil).
func (c *Client) do(hc *http.Client, req *http.Request, op string, out any) error {
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, Status: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}

// readErrorBody достаёт поле error из ответа {"error": "..."} или сырой текст.
func readErrorBody(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(raw))
}

func (c *Client) postJSON(ctx context.Context, path, op string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(c.httpClient, req, op, out)
}

// History загружает сохранённые сообщения беседы.
func (c *Client) History(ctx context.Context, conversationID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("api.History", time.Now())()
	req, err := c.newRequest(ctx, http.MethodGet, "/api/chat/"+url.PathEscape(conversationID)+"/messages", nil)
	if err != nil {
		return nil, fmt.Errorf("api.History: %w", err)
	}
	var out struct {
		Messages []model.Message `json:"messages"`
	}
	if err := c.do(c.httpClient, req, "api.History", &out); err != nil {
		return nil, err
	}
	for i := range out.Messages {
		if out.Messages[i].ConversationID == "" {
			out.Messages[i].ConversationID = conversationID
		}
	}
	return out.Messages, nil
}

// CreateDirect открывает (или возвращает существующий) личный чат с userID.
func (c *Client) CreateDirect(ctx context.Context, userID string) (model.Conversation, error) {
	var conv model.Conversation
	err := c.postJSON(ctx, "/api/chat/create", "api.CreateDirect", map[string]string{"userId": userID}, &conv)
	return conv, err
}

// CreateGroup создаёт групповой чат.
func (c *Client) CreateGroup(ctx context.Context, name string, memberIDs []string) (model.Conversation, error) {
	in := struct {
		Name      string   `json:"name"`
		MemberIDs []string `json:"memberIds"`
	}{Name: name, MemberIDs: memberIDs}
	var conv model.Conversation
	err := c.postJSON(ctx, "/api/chat/create-group", "api.CreateGroup", in, &conv)
	return conv, err
}

// Users возвращает справочник пользователей портала.
func (c *Client) Users(ctx context.Context) ([]model.User, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/users", nil)
	if err != nil {
		return nil, fmt.Errorf("api.Users: %w", err)
	}
	var out struct {
		Users []model.User `json:"users"`
	}
	if err := c.do(c.httpClient, req, "api.Users", &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// UploadResponse: ответ файлового и аудио-сервиса.
type UploadResponse struct {
	URL         string `json:"url"`
	FileName    string `json:"file_name"`
	FileSize    int64  `json:"file_size"`
	ContentType string `json:"content_type"`
}

// Progress получает число отправленных байт тела запроса и его полный размер.
type Progress func(sent, total int64)

// Upload отправляет файл multipart-полем "file". Тело собирается потоково с
// известной длиной (сервис требует Content-Length), progress вызывается по мере
// того, как транспорт вычитывает байты.
func (c *Client) Upload(ctx context.Context, kind UploadKind, f media.File, body io.Reader, progress Progress) (model.Attachment, error) {
	defer logger.DeferLogDuration("api.Upload", time.Now())()
	path := "/api/files/upload"
	if kind == KindAudio {
		path = "/api/audio/upload"
	}
	prefix, suffix, contentType, err := multipartFrame(f)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("api.Upload: %w", err)
	}
	total := int64(len(prefix)) + f.Size + int64(len(suffix))
	pr := &progressReader{
		r:        io.MultiReader(bytes.NewReader(prefix), io.LimitReader(body, f.Size), bytes.NewReader(suffix)),
		total:    total,
		progress: progress,
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, pr)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("api.Upload: %w", err)
	}
	req.ContentLength = total
	req.Header.Set("Content-Type", contentType)

	var out UploadResponse
	if err := c.do(c.uploadClient, req, "api.Upload", &out); err != nil {
		return model.Attachment{}, err
	}
	att := model.Attachment{
		Name:     out.FileName,
		URL:      out.URL,
		MimeType: out.ContentType,
		Size:     out.FileSize,
	}
	if att.Name == "" {
		att.Name = f.Name
	}
	if att.MimeType == "" {
		att.MimeType = f.MimeType
	}
	if att.Size == 0 {
		att.Size = f.Size
	}
	if strings.HasPrefix(att.MimeType, "image/") {
		att.PreviewURL = att.URL
	}
	return att, nil
}

// multipartFrame возвращает заголовок части и закрывающую границу, между
// которыми идёт содержимое файла.
func multipartFrame(f media.File) (prefix, suffix []byte, contentType string, err error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, f.Name))
	mimeType := f.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h.Set("Content-Type", mimeType)
	if _, err := mw.CreatePart(h); err != nil {
		return nil, nil, "", err
	}
	prefix = append([]byte(nil), buf.Bytes()...)
	buf.Reset()
	if err := mw.Close(); err != nil {
		return nil, nil, "", err
	}
	suffix = append([]byte(nil), buf.Bytes()...)
	return prefix, suffix, mw.FormDataContentType(), nil
}

// progressReader считает байты, которые транспорт реально забрал из тела.
type progressReader struct {
	r        io.Reader
	sent     int64
	total    int64
	progress Progress
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.progress != nil {
			p.progress(p.sent, p.total)
		}
	}
	return n, err
}
