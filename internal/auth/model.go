package auth

import (
	"context"
	"log/slog"
	"sync"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/state"
)

// Backend is the session API the view-model drives. *Service implements it.
type Backend interface {
	GetSession(ctx context.Context) (*models.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error)
	SignUp(ctx context.Context, email, password, fullName string) (*models.Session, error)
	SignOut(ctx context.Context) error
	OnAuthStateChange(fn func(Event, *models.Session)) (unsubscribe func())
}

var _ Backend = (*Service)(nil)

// State is the observable authentication state.
type State struct {
	User    *models.User `json:"user"`
	Loading bool         `json:"loading"`
}

// Result is returned by Login and Signup.
type Result struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Session *models.Session `json:"session,omitempty"`
}

// Model is the authentication view-model.
type Model struct {
	backend Backend
	logger  *slog.Logger
	state   *state.Writable[State]
	once    sync.Once
}

// NewModel creates a view-model in the loading state.
func NewModel(b Backend, logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{
		backend: b,
		logger:  logger,
		state:   state.NewWritable(State{Loading: true}),
	}
}

// State returns the current state.
func (m *Model) State() State { return m.state.Get() }

// Subscribe calls fn with the current state and on every change.
func (m *Model) Subscribe(fn func(State)) (unsubscribe func()) {
	return m.state.Subscribe(fn)
}

func sessionUser(s *models.Session) *models.User {
	if s == nil {
		return nil
	}
	return s.User
}

// Initialize loads the current session and follows session changes for the
// life of the process. Only the first call has any effect.
func (m *Model) Initialize(ctx context.Context) {
	m.once.Do(func() {
		session, err := m.backend.GetSession(ctx)
		if err != nil {
			m.logger.Error("load session", "error", err)
		}
		m.state.Set(State{User: sessionUser(session)})

		m.backend.OnAuthStateChange(func(ev Event, s *models.Session) {
			m.logger.Debug("auth state change", "event", string(ev))
			m.state.Set(State{User: sessionUser(s)})
		})
	})
}

// Login signs in with email and password.
func (m *Model) Login(ctx context.Context, email, password string) Result {
	session, err := m.backend.SignInWithPassword(ctx, email, password)
	if err != nil {
		return Result{Error: err.Error()}
	}
	return Result{Success: true, Session: session}
}

// Signup registers a new account.
func (m *Model) Signup(ctx context.Context, email, password, fullName string) Result {
	session, err := m.backend.SignUp(ctx, email, password, fullName)
	if err != nil {
		return Result{Error: err.Error()}
	}
	return Result{Success: true, Session: session}
}

// Logout requests sign-out. Failures are logged.
func (m *Model) Logout(ctx context.Context) {
	if err := m.backend.SignOut(ctx); err != nil {
		m.logger.Error("sign out", "error", err)
	}
}
