package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayload(t *testing.T) {
	ev, err := ParsePayload(`{"table":"issues","type":"INSERT","id":"abc","record":{"id":"abc","name":"A"},"old_record":null,"commit_timestamp":"2025-01-15T10:00:00Z"}`)
	require.NoError(t, err)
	assert.Equal(t, TableIssues, ev.Table)
	assert.Equal(t, EventInsert, ev.Type)
	assert.Equal(t, "abc", ev.ID)
	assert.JSONEq(t, `{"id":"abc","name":"A"}`, string(ev.Record))
	assert.Nil(t, ev.OldRecord)
	assert.Equal(t, 2025, ev.CommitTime.Year())
}

func TestParsePayload_LowercaseTypeAndMissingTimestamp(t *testing.T) {
	ev, err := ParsePayload(`{"table":"comments","type":"delete","id":"c1","old_record":{"id":"c1"}}`)
	require.NoError(t, err)
	assert.Equal(t, EventDelete, ev.Type)
	assert.NotNil(t, ev.OldRecord)
	assert.False(t, ev.CommitTime.IsZero())
}

func TestParsePayload_Invalid(t *testing.T) {
	_, err := ParsePayload(`not json`)
	assert.Error(t, err)

	_, err = ParsePayload(`{"type":"INSERT"}`)
	assert.Error(t, err)

	_, err = ParsePayload(`{"table":"issues","type":"TRUNCATE"}`)
	assert.Error(t, err)
}
