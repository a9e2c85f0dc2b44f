package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/realtime"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.ChangeEvent
}

func (p *recordingPublisher) Publish(ev realtime.ChangeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) summary() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		out = append(out, string(ev.Type)+" "+ev.Table)
	}
	return out
}

func TestNotifying_PublishesWrites(t *testing.T) {
	pub := &recordingPublisher{}
	s := Notifying(newTestStore(t), pub)
	ctx := context.Background()

	issue := newIssue("Boiler", 1, models.IssueStatusCurrent)
	require.NoError(t, s.CreateIssue(ctx, issue))
	c := &models.Comment{IssueID: issue.ID, Text: "hot"}
	require.NoError(t, s.CreateComment(ctx, c))
	a := &models.Action{IssueID: issue.ID, Text: "service", Status: models.ActionStatusPending}
	require.NoError(t, s.CreateAction(ctx, a))
	require.NoError(t, s.UpdateComment(ctx, c.ID, "cold"))
	a.Status = models.ActionStatusCompleted
	require.NoError(t, s.UpdateAction(ctx, a))
	require.NoError(t, s.DeleteComment(ctx, c.ID))
	require.NoError(t, s.DeleteAction(ctx, a.ID))
	issue.Name = "Boiler room"
	require.NoError(t, s.UpdateIssue(ctx, issue))
	require.NoError(t, s.DeleteIssue(ctx, issue.ID))

	assert.Equal(t, []string{
		"INSERT issues",
		"INSERT comments",
		"INSERT actions",
		"UPDATE comments",
		"UPDATE actions",
		"DELETE comments",
		"DELETE actions",
		"UPDATE issues",
		"DELETE issues",
	}, pub.summary())

	first := pub.events[0]
	assert.Equal(t, issue.ID, first.ID)
	assert.Contains(t, string(first.Record), `"name":"Boiler"`)
}

func TestNotifying_FailedWriteIsSilent(t *testing.T) {
	pub := &recordingPublisher{}
	s := Notifying(newTestStore(t), pub)

	err := s.DeleteIssue(context.Background(), "missing")
	assert.True(t, IsNotFound(err))
	assert.Empty(t, pub.summary())
}

func TestNotifying_ReadsPassThrough(t *testing.T) {
	pub := &recordingPublisher{}
	s := Notifying(newTestStore(t), pub)
	ctx := context.Background()

	require.NoError(t, s.CreateIssue(ctx, newIssue("a", 3, models.IssueStatusCurrent)))
	issues, err := s.ListIssues(ctx, IssueListFilter{})
	require.NoError(t, err)
	assert.Len(t, issues, 1)
	assert.Len(t, pub.summary(), 1)
}
