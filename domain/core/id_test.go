package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}
}

func TestParseEntityID(t *testing.T) {
	id, err := ParseEntityID("  exam-042 ")
	require.NoError(t, err)
	assert.Equal(t, EntityID("exam-042"), id)

	_, err = ParseEntityID("   ")
	assert.Error(t, err)
}

func TestParseRunID(t *testing.T) {
	run := NewRunID()
	parsed, err := ParseRunID(run.String())
	require.NoError(t, err)
	assert.Equal(t, run, parsed)

	_, err = ParseRunID("")
	assert.Error(t, err)
}

func TestTimestampJSONRoundTrip(t *testing.T) {
	ts := NewTimestamp(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2024-03-01T12:00:00Z"`, string(data))

	var back Timestamp
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Time().Equal(ts.Time()))
}
