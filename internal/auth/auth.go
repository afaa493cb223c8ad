// Package auth issues and resolves user sessions.
//
// Sessions are explicit values handed to every ledger operation; there is no
// process-wide current user. The account identity is seeded from
// configuration, and the users profile document is created on first sign-in
// or touched on every later one.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"utangku/internal/core"
	"utangku/internal/store"
)

const (
	EventSignedIn  = "signed_in"
	EventSignedOut = "signed_out"
)

type (
	// Session identifies one authenticated user for the lifetime of a token.
	Session struct {
		Token     string
		UserID    string
		Email     string
		ExpiresAt time.Time
	}

	// SessionEvent is one entry in the session-change notification stream.
	SessionEvent struct {
		Type    string
		Session Session
	}

	// Seed is the configured bootstrap identity.
	Seed struct {
		Email    string
		Password string
	}

	Service struct {
		users store.UserStore
		seed  Seed
		ttl   time.Duration

		mu       sync.Mutex
		sessions map[string]Session

		events *store.Hub[SessionEvent]

		now func() time.Time
	}
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNoSession          = errors.New("no valid session")
)

func NewService(users store.UserStore, seed Seed, ttl time.Duration) *Service {
	return &Service{
		users:    users,
		seed:     seed,
		ttl:      ttl,
		sessions: make(map[string]Session),
		events:   store.NewHub[SessionEvent](),
		now:      time.Now,
	}
}

// SignIn verifies the credentials and issues a session. On the first
// sign-in of the seeded identity the users profile document is created;
// every later sign-in refreshes its last-login timestamp.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		u, err = s.provision(ctx, email, password)
		if err != nil {
			return Session{}, err
		}
	case err != nil:
		return Session{}, fmt.Errorf("look up user: %w", err)
	default:
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
			return Session{}, ErrInvalidCredentials
		}
		if err := s.users.TouchLastLogin(ctx, u.ID, s.now()); err != nil {
			// A stale last-login must not block the sign-in itself.
			slog.WarnContext(ctx, "Failed to refresh last login", "user_id", u.ID, "error", err)
		}
	}

	sess := Session{
		Token:     newToken(),
		UserID:    u.ID,
		Email:     u.Email,
		ExpiresAt: s.now().Add(s.ttl),
	}
	s.mu.Lock()
	s.sessions[sess.Token] = sess
	s.mu.Unlock()

	s.events.Publish("sessions", SessionEvent{Type: EventSignedIn, Session: sess})
	return sess, nil
}

// provision creates the profile document for the seeded identity. Any other
// unknown identity is rejected.
func (s *Service) provision(ctx context.Context, email, password string) (core.User, error) {
	if s.seed.Email == "" || !strings.EqualFold(email, s.seed.Email) || password != s.seed.Password {
		return core.User{}, ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return core.User{}, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.users.CreateUser(ctx, core.User{Email: email, PasswordHash: string(hash)})
	if errors.Is(err, store.ErrUserExists) {
		// Lost a race against a concurrent first sign-in; re-read.
		return s.users.GetUserByEmail(ctx, email)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("create user profile: %w", err)
	}
	slog.InfoContext(ctx, "User profile created on first sign-in", "email", email)
	return u, nil
}

// Resolve returns the session behind a token, rejecting expired ones.
func (s *Service) Resolve(token string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return Session{}, ErrNoSession
	}
	if s.now().After(sess.ExpiresAt) {
		delete(s.sessions, token)
		return Session{}, ErrNoSession
	}
	return sess, nil
}

// SignOut invalidates the token. Unknown tokens are a no-op.
func (s *Service) SignOut(token string) {
	s.mu.Lock()
	sess, ok := s.sessions[token]
	delete(s.sessions, token)
	s.mu.Unlock()

	if ok {
		s.events.Publish("sessions", SessionEvent{Type: EventSignedOut, Session: sess})
	}
}

// Subscribe returns the session-change notification stream.
func (s *Service) Subscribe() (<-chan SessionEvent, store.CancelFunc) {
	ch, cancel := s.events.Subscribe("sessions")
	return ch, cancel
}

func newToken() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("tok_%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
