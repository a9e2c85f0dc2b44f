package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/report"
)

func TestBuildPrompt(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	issues := []*models.Issue{
		{
			ID: "i1", Name: "Broken gate", Priority: 1, Status: models.IssueStatusCurrent,
			CreatedAt: now, UpdatedAt: now,
			Actions: []*models.Action{
				{ID: "a1", IssueID: "i1", Text: "Order hinge", Assignee: "Pat", Status: models.ActionStatusPending},
			},
		},
		{ID: "i2", Name: "Old fence", Priority: 5, Status: models.IssueStatusCompleted, CreatedAt: now, UpdatedAt: now},
	}
	rep := report.Build(issues, report.DefaultOptions(), now)

	system, user, err := buildPrompt(rep)
	require.NoError(t, err)

	assert.Contains(t, system, "status briefings")
	assert.Contains(t, system, "Do not invent")

	assert.Contains(t, user, "Issues in report: 2")
	assert.Contains(t, user, "Broken gate")
	assert.Contains(t, user, "Order hinge (Pat)")
	assert.Contains(t, user, "## Completed Issues (1)")
}

func TestBuildPrompt_Empty(t *testing.T) {
	rep := report.Build(nil, report.DefaultOptions(), time.Now())
	_, user, err := buildPrompt(rep)
	require.NoError(t, err)
	assert.Contains(t, user, "Issues in report: 0")
	assert.Contains(t, user, "No issues match")
}

func TestStripFence(t *testing.T) {
	assert.Equal(t, "hello", stripFence("  hello \n"))
	assert.Equal(t, "- a\n- b", stripFence("```markdown\n- a\n- b\n```"))
	assert.Equal(t, "plain", stripFence("```\nplain```"))
}
