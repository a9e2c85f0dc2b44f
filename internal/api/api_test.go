package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/tracker/internal/auth"
	"github.com/joescharf/tracker/internal/issues"
	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/realtime"
	"github.com/joescharf/tracker/internal/report"
	"github.com/joescharf/tracker/internal/store"
)

func setupTestServer(t *testing.T, apiKey string) (*Server, store.Store) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	authSvc, err := auth.NewService(s, auth.Config{JWTSecret: "test-secret"})
	require.NoError(t, err)

	m := issues.New(s, nil)
	srv := NewServer(m, s, authSvc, apiKey)
	return srv, s
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func listIssues(t *testing.T, h http.Handler) []*models.Issue {
	t.Helper()
	w := do(t, h, "GET", "/api/v1/issues", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []*models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	return list
}

func TestListIssues_Empty(t *testing.T) {
	srv, _ := setupTestServer(t, "")
	router := srv.Router()

	w := do(t, router, "GET", "/api/v1/issues", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestIssuesCRUD_API(t *testing.T) {
	srv, _ := setupTestServer(t, "")
	router := srv.Router()

	// Create
	w := do(t, router, "POST", "/api/v1/issues", `{"name":"Leak","description":"roof","priority":"bad"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())

	list := listIssues(t, router)
	require.Len(t, list, 1)
	created := list[0]
	assert.Equal(t, 3, created.Priority)
	assert.Equal(t, models.IssueStatusCurrent, created.Status)

	// Get
	w = do(t, router, "GET", "/api/v1/issues/"+created.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	// Update
	w = do(t, router, "PUT", "/api/v1/issues/"+created.ID, `{"name":"Leak","description":"roof","priority":1,"status":"parked"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	list = listIssues(t, router)
	assert.Equal(t, 1, list[0].Priority)
	assert.Equal(t, models.IssueStatusParked, list[0].Status)

	// Delete
	w = do(t, router, "DELETE", "/api/v1/issues/"+created.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, listIssues(t, router))
}

func TestCreateIssue_ValidationFailure(t *testing.T) {
	srv, _ := setupTestServer(t, "")
	router := srv.Router()

	w := do(t, router, "POST", "/api/v1/issues", `{"description":"no name"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"name is required"}`, w.Body.String())

	w = do(t, router, "POST", "/api/v1/issues", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetIssue_NotFound(t *testing.T) {
	srv, _ := setupTestServer(t, "")

	w := do(t, srv.Router(), "GET", "/api/v1/issues/nonexistent", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCommentsAndActions_API(t *testing.T) {
	srv, s := setupTestServer(t, "")
	router := srv.Router()
	ctx := context.Background()

	issue := &models.Issue{Name: "Fence", Description: "d", Priority: 2, Status: models.IssueStatusCurrent}
	require.NoError(t, s.CreateIssue(ctx, issue))

	w := do(t, router, "POST", "/api/v1/issues/"+issue.ID+"/comments", `{"comment_text":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, router, "POST", "/api/v1/issues/"+issue.ID+"/actions", `{"action_text":"paint","name_text":"Sam","date_deadline":"2025-06-01"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got := listIssues(t, router)[0]
	require.Len(t, got.Comments, 1)
	require.Len(t, got.Actions, 1)
	require.NotNil(t, got.Actions[0].Deadline)

	w = do(t, router, "PUT", "/api/v1/comments/"+got.Comments[0].ID, `{"comment_text":"edited"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, router, "PUT", "/api/v1/actions/"+got.Actions[0].ID, `{"action_text":"paint","status":"completed"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	got = listIssues(t, router)[0]
	assert.Equal(t, "edited", got.Comments[0].Text)
	assert.Equal(t, models.ActionStatusCompleted, got.Actions[0].Status)
	assert.Nil(t, got.Actions[0].Deadline)

	w = do(t, router, "DELETE", "/api/v1/comments/"+got.Comments[0].ID, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, router, "DELETE", "/api/v1/actions/"+got.Actions[0].ID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, "DELETE", "/api/v1/actions/missing", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "action not found: missing")
}

func TestReport_API(t *testing.T) {
	srv, s := setupTestServer(t, "")
	router := srv.Router()
	ctx := context.Background()

	for _, st := range []models.IssueStatus{models.IssueStatusCurrent, models.IssueStatusParked, models.IssueStatusCompleted} {
		require.NoError(t, s.CreateIssue(ctx, &models.Issue{Name: string(st), Description: "d", Priority: 3, Status: st}))
	}

	w := do(t, router, "GET", "/api/v1/report?status=current,parked", "")
	require.Equal(t, http.StatusOK, w.Code)

	var rep report.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Len(t, rep.Groups.Current, 1)
	assert.Len(t, rep.Groups.Parked, 1)
	assert.Empty(t, rep.Groups.Completed)
	assert.Equal(t, "Showing: Current, Parked • All changes", rep.Summary)

	w = do(t, router, "GET", "/api/v1/report?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPIKey(t *testing.T) {
	srv, _ := setupTestServer(t, "public-key")
	router := srv.Router()

	w := do(t, router, "GET", "/api/v1/issues", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest("GET", "/api/v1/issues", nil)
	req.Header.Set("apikey", "public-key")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// preflight is exempt
	w = do(t, router, "OPTIONS", "/api/v1/issues", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCORS(t *testing.T) {
	srv, _ := setupTestServer(t, "")
	router := srv.Router()

	w := do(t, router, "OPTIONS", "/api/v1/issues", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "apikey")
}

func TestRequestID_Propagated(t *testing.T) {
	srv, _ := setupTestServer(t, "")

	req := httptest.NewRequest("GET", "/api/v1/issues", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestAuth_API(t *testing.T) {
	srv, _ := setupTestServer(t, "")
	router := srv.Router()

	w := do(t, router, "POST", "/api/v1/auth/signup", `{"email":"a@example.com","password":"secret1","full_name":"A"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, router, "POST", "/api/v1/auth/login", `{"email":"a@example.com","password":"wrong!!"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, router, "POST", "/api/v1/auth/login", `{"email":"a@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var res auth.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.True(t, res.Success)
	require.NotNil(t, res.Session)

	req := httptest.NewRequest("GET", "/api/v1/auth/user", nil)
	req.Header.Set("Authorization", "Bearer "+res.Session.AccessToken)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var user models.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
	assert.Equal(t, "a@example.com", user.Email)

	w = do(t, router, "GET", "/api/v1/auth/user", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, router, "POST", "/api/v1/auth/logout", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStreamIssues(t *testing.T) {
	srv, _ := setupTestServer(t, "")
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/v1/issues/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	go func() {
		body := strings.NewReader(`{"name":"Streamed","description":"d"}`)
		r, err := http.Post(ts.URL+"/api/v1/issues", "application/json", body)
		if err == nil {
			r.Body.Close()
		}
	}()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	found := false
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var st issues.State
		require.NoError(t, json.Unmarshal([]byte(data), &st))
		if len(st.Issues) == 1 && st.Issues[0].Name == "Streamed" {
			found = true
			break
		}
	}
	assert.True(t, found, "stream should deliver the new issue")
}

func TestStreamIssues_ChangeEvents(t *testing.T) {
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	hub := realtime.NewHub(nil)
	ns := store.Notifying(s, hub)
	srv := NewServer(issues.New(ns, hub), ns, nil, "").WithFeed(hub)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/v1/issues/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	go func() {
		body := strings.NewReader(`{"name":"Streamed","description":"d"}`)
		r, err := http.Post(ts.URL+"/api/v1/issues", "application/json", body)
		if err == nil {
			r.Body.Close()
		}
	}()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var ev realtime.ChangeEvent
	inChange := false
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event: change" {
			inChange = true
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok || !inChange {
			continue
		}
		require.NoError(t, json.Unmarshal([]byte(data), &ev))
		break
	}
	assert.Equal(t, realtime.TableIssues, ev.Table)
	assert.Equal(t, realtime.EventInsert, ev.Type)
	assert.NotEmpty(t, ev.ID)
}
