// Package auth implements email/password accounts and in-memory sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/sujalbistaa/confessly/internal/models"
	"github.com/sujalbistaa/confessly/internal/store"
	"github.com/sujalbistaa/confessly/internal/validate"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAlreadyRegistered  = errors.New("email already registered")
)

// Users is the account storage the service needs.
type Users interface {
	CreateUser(ctx context.Context, u *models.User) error
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
}

// Session is a signed-in user.
type Session struct {
	Token     string    `json:"-"`
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Event names an auth state transition.
type Event string

const (
	SignedIn  Event = "SIGNED_IN"
	SignedOut Event = "SIGNED_OUT"
)

// StateChange is delivered to OnStateChange listeners.
type StateChange struct {
	Event   Event
	Session Session
}

// Listener is a registration made with OnStateChange.
type Listener struct {
	id   uint64
	svc  *Service
	once sync.Once
}

// Close stops delivery. Safe to call more than once.
func (l *Listener) Close() {
	l.once.Do(func() {
		l.svc.mu.Lock()
		delete(l.svc.listeners, l.id)
		l.svc.mu.Unlock()
	})
}

// Service signs users up, in and out.
type Service struct {
	users    Users
	sessions *cache.Cache
	ttl      time.Duration
	log      *zap.Logger
	cost     int

	mu        sync.RWMutex
	listeners map[uint64]func(StateChange)
	nextID    uint64
}

// Option configures a Service.
type Option func(*Service)

// WithBcryptCost overrides the hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func NewService(users Users, ttl time.Duration, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		users:     users,
		sessions:  cache.New(ttl, 10*time.Minute),
		ttl:       ttl,
		log:       log,
		cost:      bcrypt.DefaultCost,
		listeners: make(map[uint64]func(StateChange)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sessions.OnEvicted(func(_ string, v any) {
		if sess, ok := v.(*Session); ok {
			s.log.Debug("session expired", zap.String("user_id", sess.UserID))
		}
	})
	return s
}

// SignUp creates an account. The new user has no roles.
func (s *Service) SignUp(ctx context.Context, email, password string) (*models.User, error) {
	email, err := validate.Email(email)
	if err != nil {
		return nil, err
	}
	if err := validate.Password(password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &models.User{Email: email, PasswordHash: string(hash)}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrAlreadyRegistered
		}
		return nil, err
	}
	s.log.Info("user signed up", zap.String("user_id", u.ID))
	return u, nil
}

// SignIn checks credentials and opens a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email, err := validate.Email(email)
	if err != nil {
		return nil, err
	}
	if err := validate.Password(password); err != nil {
		return nil, err
	}

	u, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	sess := &Session{
		Token:     uuid.NewString(),
		UserID:    u.ID,
		Email:     u.Email,
		ExpiresAt: time.Now().Add(s.ttl),
	}
	s.sessions.Set(sess.Token, sess, s.ttl)
	s.notify(StateChange{Event: SignedIn, Session: *sess})
	return sess, nil
}

// SignOut ends the session. Unknown tokens are ignored.
func (s *Service) SignOut(token string) {
	v, ok := s.sessions.Get(token)
	if !ok {
		return
	}
	s.sessions.Delete(token)
	if sess, ok := v.(*Session); ok {
		s.notify(StateChange{Event: SignedOut, Session: *sess})
	}
}

// Session returns the live session for token.
func (s *Service) Session(token string) (*Session, bool) {
	if token == "" {
		return nil, false
	}
	v, ok := s.sessions.Get(token)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*Session)
	return sess, ok
}

// IsAdmin reports whether the session's user holds the admin role.
func (s *Service) IsAdmin(ctx context.Context, sess *Session) (bool, error) {
	if sess == nil {
		return false, nil
	}
	return s.users.HasRole(ctx, sess.UserID, models.RoleAdmin)
}

// ActiveSessions is the number of unexpired sessions.
func (s *Service) ActiveSessions() int {
	return s.sessions.ItemCount()
}

// OnStateChange registers fn for sign-in and sign-out events.
func (s *Service) OnStateChange(fn func(StateChange)) *Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.listeners[s.nextID] = fn
	return &Listener{id: s.nextID, svc: s}
}

func (s *Service) notify(change StateChange) {
	s.mu.RLock()
	fns := make([]func(StateChange), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(change)
	}
}
