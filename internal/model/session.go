package model

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// sessionClaims: поля, которые портал кладёт в bearer-токен.
type sessionClaims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Session: явная личность, с которой работает движок. Движок знает только то,
// что передано здесь и что потом подтвердит кадр auth.
type Session struct {
	mu        sync.RWMutex
	token     string
	user      User
	expiresAt time.Time
}

// NewSession создаёт сессию из bearer-токена. Если токен JWT, его поля
// (sub, name, email, role, exp) задают пользователя; подпись здесь не
// проверяется, это делает сервер при рукопожатии.
func NewSession(token string) *Session {
	s := &Session{token: token}
	var claims sessionClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err == nil {
		s.user = User{ID: claims.Subject, Name: claims.Name, Email: claims.Email, Role: claims.Role}
		if claims.ExpiresAt != nil {
			s.expiresAt = claims.ExpiresAt.Time
		}
	}
	return s
}

// NewSessionWithUser: когда пользователь уже известен (тесты, флаги агента).
func NewSessionWithUser(token string, u User) *Session {
	s := NewSession(token)
	s.user = u
	return s
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) SetToken(token string) {
	fresh := NewSession(token)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.expiresAt = fresh.expiresAt
	if fresh.user.ID != "" {
		s.user = fresh.user
	}
}

func (s *Session) User() User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// SetUser сохраняет пользователя, подтверждённого кадром auth.
func (s *Session) SetUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
}

func (s *Session) UserID() string { return s.User().ID }

// Expired: истёк ли exp в токене.
func (s *Session) Expired(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.expiresAt.IsZero() && now.After(s.expiresAt)
}
