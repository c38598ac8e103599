package tasks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCVAnalyzeTaskRoundTrip(t *testing.T) {
	task, err := NewCVAnalyzeTask(CVAnalyzePayload{CVID: 4, UserID: 9, Text: "cv", UseAI: true, CorrelationID: "c-1"})
	require.NoError(t, err)
	assert.Equal(t, TypeCVAnalyze, task.Type())

	p, err := ParseCVAnalyzePayload(task)
	require.NoError(t, err)
	assert.Equal(t, uint(4), p.CVID)
	assert.Equal(t, uint(9), p.UserID)
	assert.Equal(t, "c-1", p.CorrelationID)
	assert.True(t, p.UseAI)
}
