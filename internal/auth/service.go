// Package auth provides password sign-up and sign-in backed by the store,
// JWT sessions, and the authentication view-model.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/store"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// DefaultSessionTTL is used when Config.SessionTTL is zero.
const DefaultSessionTTL = 7 * 24 * time.Hour

// Event is an authentication state change.
type Event string

const (
	EventSignedIn  Event = "SIGNED_IN"
	EventSignedOut Event = "SIGNED_OUT"
)

// ErrInvalidCredentials is returned for an unknown email or wrong password.
var ErrInvalidCredentials = errors.New("invalid login credentials")

// Claims are the JWT claims of an access token.
type Claims struct {
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
	jwt.RegisteredClaims
}

// Config configures a Service.
type Config struct {
	JWTSecret   string
	SessionTTL  time.Duration
	SessionFile string // empty disables session persistence
}

// Service implements sign-up, sign-in and session management.
type Service struct {
	store  store.Store
	secret []byte
	ttl    time.Duration
	file   string
	now    func() time.Time

	mu        sync.Mutex
	nextID    int
	listeners map[int]func(Event, *models.Session)
}

// NewService creates a Service. A JWT secret is required.
func NewService(s store.Store, cfg Config) (*Service, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is not configured")
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Service{
		store:     s,
		secret:    []byte(cfg.JWTSecret),
		ttl:       ttl,
		file:      cfg.SessionFile,
		now:       time.Now,
		listeners: make(map[int]func(Event, *models.Session)),
	}, nil
}

func validateCredentials(email, password string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("invalid email: %s", email)
	}
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password should be at least %d characters", MinPasswordLength)
	}
	return nil
}

// SignUp registers a user and signs them in.
func (s *Service) SignUp(ctx context.Context, email, password, fullName string) (*models.Session, error) {
	email = store.NormalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &models.User{Email: email, FullName: fullName, PasswordHash: string(hash)}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return s.startSession(user)
}

// SignInWithPassword verifies the credentials and starts a session.
func (s *Service) SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.startSession(user)
}

func (s *Service) startSession(user *models.User) (*models.Session, error) {
	session, err := s.IssueToken(user)
	if err != nil {
		return nil, err
	}
	if err := s.saveSession(session); err != nil {
		return nil, err
	}
	s.emit(EventSignedIn, session)
	return session, nil
}

// IssueToken signs an access token for user.
func (s *Service) IssueToken(user *models.User) (*models.Session, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := Claims{
		Email:    user.Email,
		FullName: user.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	u := *user
	u.PasswordHash = ""
	return &models.Session{AccessToken: token, ExpiresAt: expires, User: &u}, nil
}

// VerifyToken validates token and returns the user it was issued to.
func (s *Service) VerifyToken(token string) (*models.User, error) {
	claims := &Claims{}
	parser := jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}}
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if claims.ExpiresAt == nil || !s.now().Before(claims.ExpiresAt.Time) {
		return nil, errors.New("invalid token: expired")
	}
	return &models.User{ID: claims.Subject, Email: claims.Email, FullName: claims.FullName}, nil
}

// GetSession returns the persisted session, or nil when there is none or it
// is no longer valid.
func (s *Service) GetSession(ctx context.Context) (*models.Session, error) {
	if s.file == "" {
		return nil, nil
	}
	data, err := os.ReadFile(s.file)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, nil
	}
	if _, err := s.VerifyToken(session.AccessToken); err != nil {
		return nil, nil
	}
	return &session, nil
}

// SignOut forgets the persisted session.
func (s *Service) SignOut(ctx context.Context) error {
	if s.file != "" {
		if err := os.Remove(s.file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove session: %w", err)
		}
	}
	s.emit(EventSignedOut, nil)
	return nil
}

// OnAuthStateChange registers fn for sign-in and sign-out events.
func (s *Service) OnAuthStateChange(fn func(Event, *models.Session)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Service) emit(ev Event, session *models.Session) {
	s.mu.Lock()
	fns := make([]func(Event, *models.Session), 0, len(s.listeners))
	for i := 0; i < s.nextID; i++ {
		if fn, ok := s.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev, session)
	}
}

func (s *Service) saveSession(session *models.Session) error {
	if s.file == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.file), 0700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := os.WriteFile(s.file, data, 0600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}
