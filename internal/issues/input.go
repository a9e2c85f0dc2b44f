package issues

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/joescharf/tracker/internal/format"
	"github.com/joescharf/tracker/internal/models"
)

// Result is returned by every mutating operation.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func ok() Result { return Result{Success: true} }

func failed(err error) Result { return Result{Error: err.Error()} }

// IssueInput carries user-entered issue fields. Priority accepts anything a
// form might submit: ints, numeric strings, floats or nil.
type IssueInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Priority    any    `json:"priority"`
	Status      string `json:"status"`
}

// ActionInput carries user-entered action fields. Deadline is YYYY-MM-DD or
// empty.
type ActionInput struct {
	Text     string `json:"action_text"`
	Assignee string `json:"name_text"`
	Deadline string `json:"date_deadline"`
	Status   string `json:"status"`
}

// CoercePriority converts v to a priority in 1-5. Missing, non-numeric and
// out-of-range values become the default.
func CoercePriority(v any) int {
	switch x := v.(type) {
	case bool:
		return models.PriorityDefault
	case string:
		// Decimal only: cast reads a leading zero as octal.
		x = strings.TrimLeft(strings.TrimSpace(x), "0")
		if x == "" {
			return models.PriorityDefault
		}
		v = x
	}
	p, err := cast.ToIntE(v)
	if err != nil || p < models.PriorityMin || p > models.PriorityMax {
		return models.PriorityDefault
	}
	return p
}

// toIssue validates in and builds the row to write.
func (in IssueInput) toIssue(id string) (*models.Issue, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, errors.New("name is required")
	}
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return nil, errors.New("description is required")
	}
	status := models.IssueStatus(strings.ToLower(strings.TrimSpace(in.Status)))
	if status == "" {
		status = models.IssueStatusCurrent
	}
	if !status.Valid() {
		return nil, fmt.Errorf("invalid status: %s", in.Status)
	}
	return &models.Issue{
		ID:          id,
		Name:        name,
		Description: desc,
		Priority:    CoercePriority(in.Priority),
		Status:      status,
	}, nil
}

// toAction validates in and builds the row to write.
func (in ActionInput) toAction(id, issueID string) (*models.Action, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, errors.New("action text is required")
	}
	status := models.ActionStatus(strings.ToLower(strings.TrimSpace(in.Status)))
	if status == "" {
		status = models.ActionStatusPending
	}
	if !status.Valid() {
		return nil, fmt.Errorf("invalid action status: %s", in.Status)
	}
	deadline, err := format.ParseDate(in.Deadline)
	if err != nil {
		return nil, fmt.Errorf("invalid deadline: %s", in.Deadline)
	}
	return &models.Action{
		ID:       id,
		IssueID:  issueID,
		Text:     text,
		Assignee: strings.TrimSpace(in.Assignee),
		Deadline: deadline,
		Status:   status,
	}, nil
}
