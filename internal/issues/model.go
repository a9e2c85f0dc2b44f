// Package issues is the issue view-model: an in-memory list of issues with
// their comments and actions, kept in sync with the store by refetching
// after every mutation and every change notification.
package issues

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/realtime"
	"github.com/joescharf/tracker/internal/state"
	"github.com/joescharf/tracker/internal/store"
)

// ChannelName is the realtime channel opened by InitializeRealtime.
const ChannelName = "issues-changes"

// State is the observable view-model state.
type State struct {
	Issues  []*models.Issue `json:"issues"`
	Loading bool            `json:"loading"`
	Error   string          `json:"error"`
}

// Filters are the change notifications that trigger a refetch.
var Filters = []realtime.Filter{
	realtime.On(realtime.EventInsert, realtime.TableIssues),
	realtime.On(realtime.EventUpdate, realtime.TableIssues),
	realtime.On(realtime.EventDelete, realtime.TableIssues),
	realtime.On(realtime.EventAll, realtime.TableComments),
	realtime.On(realtime.EventAll, realtime.TableActions),
}

// Model is the issue view-model. Create it with New and dispose of it with
// Close.
type Model struct {
	store  store.Store
	feed   realtime.Feed
	logger *slog.Logger
	state  *state.Writable[State]

	issued  atomic.Uint64
	applied uint64 // guarded by the state lock

	rtMu    sync.Mutex
	channel *realtime.Channel
	done    chan struct{}
}

// Option configures a Model.
type Option func(*Model)

// WithLogger sets the logger used for realtime status.
func WithLogger(l *slog.Logger) Option {
	return func(m *Model) { m.logger = l }
}

// New creates a view-model over s. feed may be nil, in which case
// InitializeRealtime is a no-op.
func New(s store.Store, feed realtime.Feed, opts ...Option) *Model {
	m := &Model{
		store:  s,
		feed:   feed,
		logger: slog.Default(),
		state:  state.NewWritable(State{Issues: []*models.Issue{}}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state.
func (m *Model) State() State {
	return m.state.Get()
}

// Subscribe calls fn with the current state and on every change.
func (m *Model) Subscribe(fn func(State)) (unsubscribe func()) {
	return m.state.Subscribe(fn)
}

// FetchIssues reloads every issue. A response that arrives after a newer
// one has been applied is discarded.
func (m *Model) FetchIssues(ctx context.Context) {
	seq := m.issued.Add(1)
	m.state.Update(func(s State) State {
		s.Loading = true
		s.Error = ""
		return s
	})

	list, err := m.store.ListIssues(ctx, store.IssueListFilter{})

	m.state.Update(func(s State) State {
		if seq < m.applied {
			m.logger.Debug("discarding stale fetch", "seq", seq, "applied", m.applied)
			return s
		}
		m.applied = seq
		s.Loading = m.issued.Load() > seq
		if err != nil {
			s.Error = err.Error()
			return s
		}
		if list == nil {
			list = []*models.Issue{}
		}
		s.Issues = list
		return s
	})
}

// ClearError resets the error text.
func (m *Model) ClearError() {
	m.state.Update(func(s State) State {
		s.Error = ""
		return s
	})
}

// mutate runs op and refetches on success. On failure the error is stored
// and the issue list is left as it was.
func (m *Model) mutate(ctx context.Context, op func() error) Result {
	if err := op(); err != nil {
		m.state.Update(func(s State) State {
			s.Error = err.Error()
			return s
		})
		return failed(err)
	}
	m.FetchIssues(ctx)
	return ok()
}

func required(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return errors.New(field + " is required")
	}
	return nil
}

// --- Issues ---

func (m *Model) AddIssue(ctx context.Context, in IssueInput) Result {
	return m.mutate(ctx, func() error {
		issue, err := in.toIssue("")
		if err != nil {
			return err
		}
		return m.store.CreateIssue(ctx, issue)
	})
}

func (m *Model) UpdateIssue(ctx context.Context, id string, in IssueInput) Result {
	return m.mutate(ctx, func() error {
		if err := required("id", id); err != nil {
			return err
		}
		issue, err := in.toIssue(id)
		if err != nil {
			return err
		}
		return m.store.UpdateIssue(ctx, issue)
	})
}

func (m *Model) DeleteIssue(ctx context.Context, id string) Result {
	return m.mutate(ctx, func() error {
		if err := required("id", id); err != nil {
			return err
		}
		return m.store.DeleteIssue(ctx, id)
	})
}

// --- Comments ---

func (m *Model) AddComment(ctx context.Context, issueID, text string) Result {
	return m.mutate(ctx, func() error {
		if err := required("issue id", issueID); err != nil {
			return err
		}
		if err := required("comment text", text); err != nil {
			return err
		}
		return m.store.CreateComment(ctx, &models.Comment{IssueID: issueID, Text: strings.TrimSpace(text)})
	})
}

func (m *Model) UpdateComment(ctx context.Context, id, text string) Result {
	return m.mutate(ctx, func() error {
		if err := required("comment text", text); err != nil {
			return err
		}
		return m.store.UpdateComment(ctx, id, strings.TrimSpace(text))
	})
}

func (m *Model) DeleteComment(ctx context.Context, id string) Result {
	return m.mutate(ctx, func() error {
		return m.store.DeleteComment(ctx, id)
	})
}

// --- Actions ---

func (m *Model) AddAction(ctx context.Context, issueID string, in ActionInput) Result {
	return m.mutate(ctx, func() error {
		if err := required("issue id", issueID); err != nil {
			return err
		}
		a, err := in.toAction("", issueID)
		if err != nil {
			return err
		}
		return m.store.CreateAction(ctx, a)
	})
}

func (m *Model) UpdateAction(ctx context.Context, id string, in ActionInput) Result {
	return m.mutate(ctx, func() error {
		a, err := in.toAction(id, "")
		if err != nil {
			return err
		}
		return m.store.UpdateAction(ctx, a)
	})
}

func (m *Model) DeleteAction(ctx context.Context, id string) Result {
	return m.mutate(ctx, func() error {
		return m.store.DeleteAction(ctx, id)
	})
}

// --- Realtime ---

// InitializeRealtime opens the change channel and refetches on every event
// until Cleanup. An existing channel is torn down first.
func (m *Model) InitializeRealtime(ctx context.Context) {
	if m.feed == nil {
		return
	}
	m.rtMu.Lock()
	defer m.rtMu.Unlock()

	m.teardown()

	ch := m.feed.Channel(ChannelName, Filters...)
	done := make(chan struct{})
	m.channel = ch
	m.done = done
	m.logger.Info("realtime subscribed", "channel", ch.Name(), "id", ch.ID())

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, open := <-ch.Events():
				if !open {
					return
				}
				m.logger.Debug("realtime change", "channel", ch.Name(), "event", ev.String())
				m.FetchIssues(ctx)
			}
		}
	}()
}

// Cleanup closes the active channel, if any. It is safe to call repeatedly.
func (m *Model) Cleanup() {
	m.rtMu.Lock()
	defer m.rtMu.Unlock()
	m.teardown()
}

// teardown must be called with rtMu held.
func (m *Model) teardown() {
	if m.channel == nil {
		return
	}
	m.feed.RemoveChannel(m.channel)
	<-m.done
	m.logger.Info("realtime unsubscribed", "channel", m.channel.Name(), "id", m.channel.ID())
	m.channel = nil
	m.done = nil
}

// ActiveChannel reports whether a realtime channel is open.
func (m *Model) ActiveChannel() bool {
	m.rtMu.Lock()
	defer m.rtMu.Unlock()
	return m.channel != nil
}

// Close releases the model's realtime resources.
func (m *Model) Close() {
	m.Cleanup()
}
