package models

import "time"

// Domain event type tags. These are the wire "type" discriminators; the
// encoder is injective per type because every event struct carries its tag.
const (
	EventTestStatusChanged  = "test-status-changed"
	EventTargetLLMDecision  = "target-llm-decision"
	EventAgentAction        = "agent-action"
	EventTestChatMessage    = "test-chat-message"
	EventTestMetricsUpdated = "test-metrics-updated"
	EventTestCompleted      = "test-completed"
	EventTestError          = "test-error"
)

// Chat channels carried by test-chat-message events.
const (
	ChatChannelText  = "text"
	ChatChannelVoice = "voice"
)

// DomainEvent is the typed sum broadcast to subscribers. Every event carries
// the testId it belongs to; fan-out routes on it.
type DomainEvent interface {
	EventType() string
	EventTestID() string
}

// TestStatusChangedEvent is emitted exactly once per state transition.
type TestStatusChangedEvent struct {
	Type           string     `json:"type"`
	TestID         string     `json:"testId"`
	PreviousStatus TestStatus `json:"previousStatus"`
	NewStatus      TestStatus `json:"newStatus"`
	Timestamp      time.Time  `json:"timestamp"`
}

func NewTestStatusChanged(testID string, prev, next TestStatus) TestStatusChangedEvent {
	return TestStatusChangedEvent{
		Type:           EventTestStatusChanged,
		TestID:         testID,
		PreviousStatus: prev,
		NewStatus:      next,
		Timestamp:      time.Now().UTC(),
	}
}

func (e TestStatusChangedEvent) EventType() string   { return e.Type }
func (e TestStatusChangedEvent) EventTestID() string { return e.TestID }

// TargetLLMDecisionEvent summarises one parsed decision cycle.
type TargetLLMDecisionEvent struct {
	Type           string    `json:"type"`
	TestID         string    `json:"testId"`
	Reasoning      string    `json:"reasoning"`
	ParsedActions  []string  `json:"parsedActions"`
	Chat           string    `json:"chat,omitempty"`
	Speak          string    `json:"speak,omitempty"`
	ResponseTimeMs int64     `json:"responseTimeMs"`
	Timestamp      time.Time `json:"timestamp"`
}

func (e TargetLLMDecisionEvent) EventType() string   { return e.Type }
func (e TargetLLMDecisionEvent) EventTestID() string { return e.TestID }

// AgentActionEvent records one attempted game action from either side.
type AgentActionEvent struct {
	Type       string    `json:"type"`
	TestID     string    `json:"testId"`
	AgentID    string    `json:"agentId"`
	SourceType string    `json:"sourceType"`
	Action     string    `json:"action"`
	Detail     string    `json:"detail,omitempty"`
	Success    bool      `json:"success"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e AgentActionEvent) EventType() string   { return e.Type }
func (e AgentActionEvent) EventTestID() string { return e.TestID }

// TestChatMessageEvent is emitted for text and voice messages.
type TestChatMessageEvent struct {
	Type       string    `json:"type"`
	TestID     string    `json:"testId"`
	AgentID    string    `json:"agentId"`
	SourceType string    `json:"sourceType"`
	Channel    string    `json:"channel"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e TestChatMessageEvent) EventType() string   { return e.Type }
func (e TestChatMessageEvent) EventTestID() string { return e.TestID }

// TestMetricsUpdatedEvent carries a snapshot of the run's counters.
type TestMetricsUpdatedEvent struct {
	Type      string      `json:"type"`
	TestID    string      `json:"testId"`
	Metrics   TestMetrics `json:"metrics"`
	Timestamp time.Time   `json:"timestamp"`
}

func (e TestMetricsUpdatedEvent) EventType() string   { return e.Type }
func (e TestMetricsUpdatedEvent) EventTestID() string { return e.TestID }

// TestCompletedEvent is the single final event of a run.
type TestCompletedEvent struct {
	Type      string           `json:"type"`
	TestID    string           `json:"testId"`
	Status    TestStatus       `json:"status"`
	Reason    CompletionReason `json:"reason"`
	Metrics   TestMetrics      `json:"metrics"`
	Timestamp time.Time        `json:"timestamp"`
}

func (e TestCompletedEvent) EventType() string   { return e.Type }
func (e TestCompletedEvent) EventTestID() string { return e.TestID }

// TestErrorEvent reports a failure. Fatal errors accompany a transition to
// failed; non-fatal ones leave the run's status unchanged.
type TestErrorEvent struct {
	Type      string    `json:"type"`
	TestID    string    `json:"testId"`
	Message   string    `json:"message"`
	Fatal     bool      `json:"fatal"`
	Timestamp time.Time `json:"timestamp"`
}

func (e TestErrorEvent) EventType() string   { return e.Type }
func (e TestErrorEvent) EventTestID() string { return e.TestID }
