package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusTerminal(t *testing.T) {
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
	assert.False(t, JobStatusPending.Terminal())
	assert.False(t, JobStatusInProgress.Terminal())
	assert.False(t, JobStatusPaused.Terminal())
}

func TestAppendLog(t *testing.T) {
	var j ScrapingJob
	j.AppendLog(LogLevelInfo, "Searching for %q in %q", "boulangerie", "Paris")
	j.AppendLog(LogLevelError, "Error in scraping job: %v", "quota exceeded")

	require.Len(t, j.Logs, 2)
	assert.Equal(t, LogLevelInfo, j.Logs[0].Level)
	assert.Equal(t, `Searching for "boulangerie" in "Paris"`, j.Logs[0].Message)
	assert.False(t, j.Logs[0].Timestamp.IsZero())
	assert.Equal(t, LogLevelError, j.Logs[1].Level)
}

func TestErrorLogs(t *testing.T) {
	var j ScrapingJob
	assert.Empty(t, j.ErrorLogs())

	j.AppendLog(LogLevelInfo, "started")
	j.AppendLog(LogLevelError, "boom")
	j.AppendLog(LogLevelWarning, "slow")
	j.AppendLog(LogLevelError, "boom again")

	errs := j.ErrorLogs()
	require.Len(t, errs, 2)
	assert.Equal(t, "boom", errs[0].Message)
	assert.Equal(t, "boom again", errs[1].Message)
}
