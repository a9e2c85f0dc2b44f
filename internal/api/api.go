package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joescharf/tracker/internal/auth"
	"github.com/joescharf/tracker/internal/issues"
	"github.com/joescharf/tracker/internal/realtime"
	"github.com/joescharf/tracker/internal/report"
	"github.com/joescharf/tracker/internal/store"
)

// streamBuffer is the number of pending state snapshots per SSE client.
const streamBuffer = 16

// Server provides the REST API handlers.
type Server struct {
	model  *issues.Model
	store  store.Store
	auth   *auth.Service
	apiKey string
	feed   realtime.Feed
	logger *slog.Logger
	now    func() time.Time
}

// NewServer creates a new API server. authSvc may be nil, which disables the
// auth routes. An empty apiKey disables the apikey header check.
func NewServer(m *issues.Model, s store.Store, authSvc *auth.Service, apiKey string) *Server {
	return &Server{
		model:  m,
		store:  s,
		auth:   authSvc,
		apiKey: apiKey,
		logger: slog.Default(),
		now:    time.Now,
	}
}

// WithFeed makes the event stream forward raw change events from feed as
// "change" events alongside the issue snapshots.
func (s *Server) WithFeed(feed realtime.Feed) *Server {
	s.feed = feed
	return s
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/auth/signup", s.signup)
	mux.HandleFunc("POST /api/v1/auth/login", s.login)
	mux.HandleFunc("POST /api/v1/auth/logout", s.logout)
	mux.HandleFunc("GET /api/v1/auth/user", s.currentUser)

	mux.HandleFunc("GET /api/v1/issues", s.listIssues)
	mux.HandleFunc("POST /api/v1/issues", s.createIssue)
	mux.HandleFunc("GET /api/v1/issues/stream", s.streamIssues)
	mux.HandleFunc("GET /api/v1/issues/{id}", s.getIssue)
	mux.HandleFunc("PUT /api/v1/issues/{id}", s.updateIssue)
	mux.HandleFunc("DELETE /api/v1/issues/{id}", s.deleteIssue)

	mux.HandleFunc("POST /api/v1/issues/{id}/comments", s.createComment)
	mux.HandleFunc("PUT /api/v1/comments/{id}", s.updateComment)
	mux.HandleFunc("DELETE /api/v1/comments/{id}", s.deleteComment)

	mux.HandleFunc("POST /api/v1/issues/{id}/actions", s.createAction)
	mux.HandleFunc("PUT /api/v1/actions/{id}", s.updateAction)
	mux.HandleFunc("DELETE /api/v1/actions/{id}", s.deleteAction)

	mux.HandleFunc("GET /api/v1/report", s.getReport)

	return corsMiddleware(requestIDMiddleware(s.apiKeyMiddleware(mux)))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, apikey")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("apikey") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeResult answers a mutation: 200 on success, 422 otherwise.
func writeResult(w http.ResponseWriter, res issues.Result) {
	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// --- Auth ---

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

func (s *Server) requireAuth(w http.ResponseWriter) bool {
	if s.auth == nil {
		writeError(w, http.StatusServiceUnavailable, "auth not configured (set auth.jwt_secret)")
		return false
	}
	return true
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	if !s.requireAuth(w) {
		return
	}
	var c credentials
	if !decode(w, r, &c) {
		return
	}
	session, err := s.auth.SignUp(r.Context(), c.Email, c.Password, c.FullName)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, auth.Result{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, auth.Result{Success: true, Session: session})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if !s.requireAuth(w) {
		return
	}
	var c credentials
	if !decode(w, r, &c) {
		return
	}
	session, err := s.auth.SignInWithPassword(r.Context(), c.Email, c.Password)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, auth.Result{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, auth.Result{Success: true, Session: session})
}

// logout is acknowledged without server state; clients drop their token.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, auth.Result{Success: true})
}

func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) {
	if !s.requireAuth(w) {
		return
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	user, err := s.auth.VerifyToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// --- Issues ---

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
	s.model.FetchIssues(r.Context())
	st := s.model.State()
	if st.Error != "" {
		writeError(w, http.StatusInternalServerError, st.Error)
		return
	}
	writeJSON(w, http.StatusOK, st.Issues)
}

func (s *Server) getIssue(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	issue, err := s.store.GetIssue(r.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) createIssue(w http.ResponseWriter, r *http.Request) {
	var in issues.IssueInput
	if !decode(w, r, &in) {
		return
	}
	writeResult(w, s.model.AddIssue(r.Context(), in))
}

func (s *Server) updateIssue(w http.ResponseWriter, r *http.Request) {
	var in issues.IssueInput
	if !decode(w, r, &in) {
		return
	}
	writeResult(w, s.model.UpdateIssue(r.Context(), r.PathValue("id"), in))
}

func (s *Server) deleteIssue(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.model.DeleteIssue(r.Context(), r.PathValue("id")))
}

// streamIssues sends the view-model state as server-sent events, one
// "issues" event per change, plus a "change" event per raw row change when a
// feed is set.
func (s *Server) streamIssues(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	updates := make(chan issues.State, streamBuffer)
	unsubscribe := s.model.Subscribe(func(st issues.State) {
		select {
		case updates <- st:
		default:
			s.logger.Warn("issue stream client is slow, dropping update")
		}
	})
	defer unsubscribe()

	var changes <-chan realtime.ChangeEvent
	if s.feed != nil {
		ch := s.feed.Channel("api-stream")
		defer s.feed.RemoveChannel(ch)
		changes = ch.Events()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case st := <-updates:
			data, err := json.Marshal(st)
			if err != nil {
				s.logger.Warn("marshal issue state", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: issues\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		case ev, open := <-changes:
			if !open {
				changes = nil
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Warn("marshal change event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: change\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// --- Comments ---

type commentBody struct {
	Text string `json:"comment_text"`
}

func (s *Server) createComment(w http.ResponseWriter, r *http.Request) {
	var body commentBody
	if !decode(w, r, &body) {
		return
	}
	writeResult(w, s.model.AddComment(r.Context(), r.PathValue("id"), body.Text))
}

func (s *Server) updateComment(w http.ResponseWriter, r *http.Request) {
	var body commentBody
	if !decode(w, r, &body) {
		return
	}
	writeResult(w, s.model.UpdateComment(r.Context(), r.PathValue("id"), body.Text))
}

func (s *Server) deleteComment(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.model.DeleteComment(r.Context(), r.PathValue("id")))
}

// --- Actions ---

func (s *Server) createAction(w http.ResponseWriter, r *http.Request) {
	var in issues.ActionInput
	if !decode(w, r, &in) {
		return
	}
	writeResult(w, s.model.AddAction(r.Context(), r.PathValue("id"), in))
}

func (s *Server) updateAction(w http.ResponseWriter, r *http.Request) {
	var in issues.ActionInput
	if !decode(w, r, &in) {
		return
	}
	writeResult(w, s.model.UpdateAction(r.Context(), r.PathValue("id"), in))
}

func (s *Server) deleteAction(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.model.DeleteAction(r.Context(), r.PathValue("id")))
}

// --- Report ---

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts, err := report.ParseOptions(q.Get("since"), q.Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.model.FetchIssues(r.Context())
	st := s.model.State()
	if st.Error != "" {
		writeError(w, http.StatusInternalServerError, st.Error)
		return
	}
	writeJSON(w, http.StatusOK, report.Build(st.Issues, opts, s.now()))
}
