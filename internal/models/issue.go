package models

import "time"

// IssueStatus represents the state of an issue.
type IssueStatus string

const (
	IssueStatusCurrent   IssueStatus = "current"
	IssueStatusParked    IssueStatus = "parked"
	IssueStatusCompleted IssueStatus = "completed"
)

// Valid reports whether s is one of the known issue statuses.
func (s IssueStatus) Valid() bool {
	switch s {
	case IssueStatusCurrent, IssueStatusParked, IssueStatusCompleted:
		return true
	}
	return false
}

// Priority bounds. Lower numbers are more urgent.
const (
	PriorityMin     = 1
	PriorityMax     = 5
	PriorityDefault = 3
)

// Issue represents a tracked problem or task with its nested comments and actions.
type Issue struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Priority    int         `json:"priority"`
	Status      IssueStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`

	Comments []*Comment `json:"comments"`
	Actions  []*Action  `json:"actions"`
}
