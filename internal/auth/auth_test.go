package auth

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/store"
)

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.NewSQLiteStore(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	file := filepath.Join(dir, "session.json")
	svc, err := NewService(s, Config{JWTSecret: "test-secret", SessionTTL: time.Hour, SessionFile: file})
	require.NoError(t, err)
	return svc, file
}

func TestNewService_RequiresSecret(t *testing.T) {
	_, err := NewService(nil, Config{})
	assert.ErrorContains(t, err, "jwt_secret")
}

func TestSignUpAndSignIn(t *testing.T) {
	svc, file := newTestService(t)
	ctx := context.Background()

	session, err := svc.SignUp(ctx, "Alice@Example.com", "secret1", "Alice")
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)
	assert.Equal(t, "alice@example.com", session.User.Email)
	assert.Equal(t, "Alice", session.User.FullName)
	assert.Empty(t, session.User.PasswordHash)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "$2a$", "password hash must not be persisted")

	require.NoError(t, svc.SignOut(ctx))
	got, err := svc.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	session, err = svc.SignInWithPassword(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)

	got, err = svc.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, session.AccessToken, got.AccessToken)
}

func TestSignUp_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "not-an-email", "secret1", "")
	assert.ErrorContains(t, err, "invalid email")

	_, err = svc.SignUp(ctx, "a@example.com", "123", "")
	assert.ErrorContains(t, err, "at least 6")

	_, err = svc.SignUp(ctx, "a@example.com", "secret1", "")
	require.NoError(t, err)
	_, err = svc.SignUp(ctx, "a@example.com", "secret2", "")
	assert.ErrorContains(t, err, "already registered")
}

func TestSignIn_InvalidCredentials(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "a@example.com", "secret1", "")
	require.NoError(t, err)

	_, err = svc.SignInWithPassword(ctx, "a@example.com", "wrong!!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.SignInWithPassword(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyToken(t *testing.T) {
	svc, _ := newTestService(t)
	user := &models.User{ID: "u1", Email: "a@example.com", FullName: "A"}

	session, err := svc.IssueToken(user)
	require.NoError(t, err)

	got, err := svc.VerifyToken(session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
	assert.Equal(t, "a@example.com", got.Email)

	// tampered signature
	parts := strings.Split(session.AccessToken, ".")
	require.Len(t, parts, 3)
	flip := "A"
	if strings.HasPrefix(parts[2], "A") {
		flip = "B"
	}
	tampered := parts[0] + "." + parts[1] + "." + flip + parts[2][1:]
	_, err = svc.VerifyToken(tampered)
	assert.Error(t, err)

	// different secret
	other, err := NewService(nil, Config{JWTSecret: "other"})
	require.NoError(t, err)
	_, err = other.VerifyToken(session.AccessToken)
	assert.Error(t, err)

	// expired
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := svc.IssueToken(user)
	require.NoError(t, err)
	svc.now = time.Now
	_, err = svc.VerifyToken(old.AccessToken)
	assert.Error(t, err)

	_, err = svc.VerifyToken("garbage")
	assert.True(t, strings.HasPrefix(err.Error(), "invalid token"))
}

func TestGetSession_CorruptFile(t *testing.T) {
	svc, file := newTestService(t)
	require.NoError(t, os.WriteFile(file, []byte("{not json"), 0600))

	got, err := svc.GetSession(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestOnAuthStateChange(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var events []Event
	unsub := svc.OnAuthStateChange(func(ev Event, _ *models.Session) {
		events = append(events, ev)
	})

	_, err := svc.SignUp(ctx, "a@example.com", "secret1", "")
	require.NoError(t, err)
	require.NoError(t, svc.SignOut(ctx))
	unsub()
	require.NoError(t, svc.SignOut(ctx))

	assert.Equal(t, []Event{EventSignedIn, EventSignedOut}, events)
}

func TestModel_Lifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	m := NewModel(svc, nil)
	assert.True(t, m.State().Loading)

	m.Initialize(ctx)
	st := m.State()
	assert.False(t, st.Loading)
	assert.Nil(t, st.User)

	res := m.Signup(ctx, "bob@example.com", "secret1", "Bob")
	require.True(t, res.Success, res.Error)
	require.NotNil(t, m.State().User)
	assert.Equal(t, "Bob", m.State().User.FullName)

	m.Logout(ctx)
	assert.Nil(t, m.State().User)

	res = m.Login(ctx, "bob@example.com", "nope123")
	assert.False(t, res.Success)
	assert.Equal(t, ErrInvalidCredentials.Error(), res.Error)
	assert.Nil(t, m.State().User)

	res = m.Login(ctx, "bob@example.com", "secret1")
	require.True(t, res.Success)
	assert.Equal(t, "bob@example.com", m.State().User.Email)
}

func TestModel_InitializeRestoresSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "carol@example.com", "secret1", "Carol")
	require.NoError(t, err)

	m := NewModel(svc, nil)
	m.Initialize(ctx)
	m.Initialize(ctx)
	require.NotNil(t, m.State().User)
	assert.Equal(t, "carol@example.com", m.State().User.Email)
}
