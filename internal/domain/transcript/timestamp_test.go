package transcript

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-05-01T10:00:00Z", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"2024-05-01T12:00:00+02:00", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"2024-05-01T10:00:00.123456", time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC)},
		{"2024-05-01T10:00:00", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"2024-05-01 10:00:00.5", time.Date(2024, 5, 1, 10, 0, 0, 500000000, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}

	_, err := ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestSessionDecodesBackendPayload(t *testing.T) {
	raw := `{
		"id": "7c1d",
		"agents": [{"id": "a1", "name": "Cathy", "system_message": "You are Cathy",
			"llm_config": {"model": "gpt-3.5-turbo", "temperature": 0.8},
			"human_input_mode": "NEVER", "memory": []}],
		"messages": [
			{"role": "user", "content": "hello", "timestamp": "2024-05-01T10:00:00.000Z", "agent_name": null},
			{"role": "assistant", "content": "hi", "timestamp": "2024-05-01T10:00:01.250000", "agent_name": "Cathy"}
		],
		"summary": null,
		"created_at": "2024-05-01T09:59:00",
		"updated_at": "2024-05-01T10:00:01"
	}`

	var s Session
	require.NoError(t, json.Unmarshal([]byte(raw), &s))

	require.Len(t, s.Agents, 1)
	assert.Equal(t, "Cathy", s.Agents[0].Name)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, "", s.Messages[0].AgentName)
	assert.Equal(t, "Cathy", s.Messages[1].AgentName)
	assert.True(t, s.Messages[0].Timestamp.Before(s.Messages[1].Timestamp.Time))
}

func TestTimestampRoundTrip(t *testing.T) {
	in := NewTimestamp(time.Date(2024, 5, 1, 10, 0, 0, 5, time.UTC))
	b, err := json.Marshal(in)
	require.NoError(t, err)

	var out Timestamp
	require.NoError(t, json.Unmarshal(b, &out))
	assert.True(t, in.Equal(out.Time))

	b, err = json.Marshal(Timestamp{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}
