package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Every event serialises as a tagged object whose "type" field matches its
// EventType — the wire contract the dashboard decodes on.
func TestEventWireTags(t *testing.T) {
	now := time.Now().UTC()
	events := []DomainEvent{
		NewTestStatusChanged("t1", StatusCreated, StatusInitializing),
		TargetLLMDecisionEvent{Type: EventTargetLLMDecision, TestID: "t1", Timestamp: now},
		AgentActionEvent{Type: EventAgentAction, TestID: "t1", Timestamp: now},
		TestChatMessageEvent{Type: EventTestChatMessage, TestID: "t1", Channel: ChatChannelText, Timestamp: now},
		TestMetricsUpdatedEvent{Type: EventTestMetricsUpdated, TestID: "t1", Timestamp: now},
		TestCompletedEvent{Type: EventTestCompleted, TestID: "t1", Reason: ReasonSuccess, Timestamp: now},
		TestErrorEvent{Type: EventTestError, TestID: "t1", Fatal: true, Timestamp: now},
	}

	seen := make(map[string]bool)
	for _, ev := range events {
		raw, err := json.Marshal(ev)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.Equal(t, ev.EventType(), decoded["type"])
		assert.Equal(t, "t1", decoded["testId"])
		assert.Equal(t, "t1", ev.EventTestID())

		// Tags are injective per event type.
		assert.False(t, seen[ev.EventType()], "duplicate tag %s", ev.EventType())
		seen[ev.EventType()] = true
	}
}

func TestStatusChangedCarriesBothStatuses(t *testing.T) {
	ev := NewTestStatusChanged("t1", StatusCoordination, StatusExecuting)
	assert.Equal(t, StatusCoordination, ev.PreviousStatus)
	assert.Equal(t, StatusExecuting, ev.NewStatus)
	assert.False(t, ev.Timestamp.IsZero())
}
