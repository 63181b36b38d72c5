package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusExecuting.IsTerminal())

	assert.True(t, StatusInitializing.IsActive())
	assert.True(t, StatusCoordination.IsActive())
	assert.True(t, StatusExecuting.IsActive())
	assert.False(t, StatusCreated.IsActive())
	assert.False(t, StatusCompleted.IsActive())
}

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from    TestStatus
		to      TestStatus
		allowed bool
	}{
		{StatusCreated, StatusInitializing, true},
		{StatusInitializing, StatusCoordination, true},
		{StatusCoordination, StatusExecuting, true},
		{StatusExecuting, StatusCompleted, true},
		{StatusExecuting, StatusFailed, true},
		{StatusExecuting, StatusCancelled, true},
		{StatusInitializing, StatusCancelled, true},
		{StatusCoordination, StatusFailed, true},
		{StatusExecuting, StatusCompleting, true},
		{StatusCompleting, StatusCompleted, true},

		{StatusCreated, StatusExecuting, false},
		{StatusCreated, StatusCoordination, false},
		{StatusExecuting, StatusInitializing, false},
		{StatusCompleted, StatusExecuting, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusCompleted, false},
		{StatusFailed, StatusInitializing, false},
		{StatusCreated, StatusCancelled, false},
	}
	for _, tt := range tests {
		run := &TestRun{Status: tt.from}
		assert.Equal(t, tt.allowed, run.CanTransitionTo(tt.to),
			"%s → %s", tt.from, tt.to)
	}
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Now().UTC()
	reason := ReasonTimeout
	run := &TestRun{
		TestID:               "t1",
		Status:               StatusCompleted,
		TestingAgentProfiles: []ProfileName{ProfileLeader},
		TestingAgentIDs:      []string{"a1"},
		StartedAt:            &now,
		EndedAt:              &now,
		CompletionReason:     &reason,
	}

	clone := run.Clone()
	clone.TestingAgentIDs[0] = "mutated"
	*clone.StartedAt = now.Add(time.Hour)
	*clone.CompletionReason = ReasonError

	assert.Equal(t, "a1", run.TestingAgentIDs[0])
	assert.Equal(t, now, *run.StartedAt)
	assert.Equal(t, ReasonTimeout, *run.CompletionReason)
}
