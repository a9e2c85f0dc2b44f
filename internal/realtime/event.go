// Package realtime delivers row change notifications to named channels.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the kind of row change.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
	EventAll    EventType = "*"
)

// Tables that emit change events.
const (
	TableIssues   = "issues"
	TableComments = "comments"
	TableActions  = "actions"
	TableAll      = "*"
)

// ChangeEvent describes a single row change. Table or Type may be "*" when
// the source cannot tell which row changed.
type ChangeEvent struct {
	Table      string          `json:"table"`
	Type       EventType       `json:"type"`
	ID         string          `json:"id,omitempty"`
	Record     json.RawMessage `json:"record,omitempty"`
	OldRecord  json.RawMessage `json:"old_record,omitempty"`
	CommitTime time.Time       `json:"commit_timestamp"`
}

func (e ChangeEvent) String() string {
	if e.ID == "" {
		return fmt.Sprintf("%s %s", e.Type, e.Table)
	}
	return fmt.Sprintf("%s %s/%s", e.Type, e.Table, e.ID)
}

// Filter selects events by type and table. "*" matches anything.
type Filter struct {
	Event EventType
	Table string
}

// On is shorthand for a Filter.
func On(event EventType, table string) Filter {
	return Filter{Event: event, Table: table}
}

// Matches reports whether ev passes the filter. Wildcard events match every
// filter.
func (f Filter) Matches(ev ChangeEvent) bool {
	tableOK := f.Table == TableAll || ev.Table == TableAll || f.Table == ev.Table
	eventOK := f.Event == EventAll || ev.Type == EventAll || f.Event == ev.Type
	return tableOK && eventOK
}
