package logging

import (
	"testing"

	"github.com/mattermost/logr/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldsPairsUpKeysAndValues(t *testing.T) {
	got := fields([]any{"destination", "peer.example.com", "attempt", 3})
	want := []logr.Field{
		logr.Any("destination", "peer.example.com"),
		logr.Any("attempt", 3),
	}
	assert.Equal(t, want, got)
}

func TestFieldsHandlesTrailingUnpairedKey(t *testing.T) {
	got := fields([]any{"only_key"})
	require.Len(t, got, 1)
	assert.Equal(t, logr.Any("EXTRA", "only_key"), got[0])
}

func TestFieldsNonStringKeyIsStringified(t *testing.T) {
	got := fields([]any{42, "value"})
	require.Len(t, got, 1)
	assert.Equal(t, logr.Any("42", "value"), got[0])
}

func TestNewBuildsAWorkingLogger(t *testing.T) {
	l, err := New()
	require.NoError(t, err)

	l.LogDebug("debug message", "k", "v")
	l.LogInfo("info message")
	l.LogWarn("warn message", "n", 1)
	l.LogError("error message", "err", "boom")
}
