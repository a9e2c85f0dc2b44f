package models

import "time"

// ActionStatus represents the progress of a follow-up action.
type ActionStatus string

const (
	ActionStatusPending    ActionStatus = "pending"
	ActionStatusInProgress ActionStatus = "in-progress"
	ActionStatusCompleted  ActionStatus = "completed"
)

// Valid reports whether s is one of the known action statuses.
func (s ActionStatus) Valid() bool {
	switch s {
	case ActionStatusPending, ActionStatusInProgress, ActionStatusCompleted:
		return true
	}
	return false
}

// Action is a follow-up task attached to an issue.
type Action struct {
	ID        string       `json:"id"`
	IssueID   string       `json:"issue_id"`
	Text      string       `json:"action_text"`
	Assignee  string       `json:"name_text"`
	Deadline  *time.Time   `json:"date_deadline"` // date only, nil when unset
	Status    ActionStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
