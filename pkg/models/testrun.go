// Package models defines the domain types for the test orchestration engine.
package models

import "time"

// TestStatus is the lifecycle state of a test run.
type TestStatus string

const (
	StatusCreated      TestStatus = "created"
	StatusInitializing TestStatus = "initializing"
	StatusCoordination TestStatus = "coordination"
	StatusExecuting    TestStatus = "executing"
	StatusCompleting   TestStatus = "completing"
	StatusCompleted    TestStatus = "completed"
	StatusFailed       TestStatus = "failed"
	StatusCancelled    TestStatus = "cancelled"
)

// IsTerminal reports whether the status is absorbing.
func (s TestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsActive reports whether the run counts against the concurrency cap.
func (s TestStatus) IsActive() bool {
	return s == StatusInitializing || s == StatusCoordination || s == StatusExecuting
}

// ScenarioType identifies a registered scenario definition.
type ScenarioType string

const (
	ScenarioCooperation        ScenarioType = "cooperation"
	ScenarioResourceManagement ScenarioType = "resource-management"
)

// CompletionReason explains why a run reached a terminal state.
type CompletionReason string

const (
	ReasonSuccess         CompletionReason = "success"
	ReasonTimeout         CompletionReason = "timeout"
	ReasonManualStop      CompletionReason = "manual-stop"
	ReasonError           CompletionReason = "error"
	ReasonAllAgentsFailed CompletionReason = "all-agents-failed"
)

// TestMetrics is the embedded counter record of a run. All numeric fields
// are monotonic non-decreasing; updates go through Repository.IncrementMetric.
type TestMetrics struct {
	LLMDecisionCount         int64      `json:"llmDecisionCount"`
	TargetActionCount        int64      `json:"targetActionCount"`
	TestingAgentActionCount  int64      `json:"testingAgentActionCount"`
	TargetMessageCount       int64      `json:"targetMessageCount"`
	TestingAgentMessageCount int64      `json:"testingAgentMessageCount"`
	LLMErrorCount            int64      `json:"llmErrorCount"`
	TotalLLMResponseTimeMs   int64      `json:"totalLlmResponseTimeMs"`
	LastLLMDecisionAt        *time.Time `json:"lastLlmDecisionAt"`
}

// Metric field names accepted by Repository.IncrementMetric.
const (
	MetricLLMDecisionCount         = "llmDecisionCount"
	MetricTargetActionCount        = "targetActionCount"
	MetricTestingAgentActionCount  = "testingAgentActionCount"
	MetricTargetMessageCount       = "targetMessageCount"
	MetricTestingAgentMessageCount = "testingAgentMessageCount"
	MetricLLMErrorCount            = "llmErrorCount"
	MetricTotalLLMResponseTimeMs   = "totalLlmResponseTimeMs"

	// Timestamp field accepted by Repository.UpdateMetricTimestamp.
	MetricLastLLMDecisionAt = "lastLlmDecisionAt"
)

// TestRunConfig holds the per-run tunables resolved at creation time.
type TestRunConfig struct {
	LLMPollingIntervalMs     int     `json:"llmPollingIntervalMs"`
	CoordinationPhaseSeconds int     `json:"coordinationPhaseSeconds"`
	BehaviorIntensity        float64 `json:"behaviorIntensity"`
	VoiceEnabled             bool    `json:"voiceEnabled"`
}

// TestRun is the primary aggregate. It is created by the service, mutated
// only by the runner and completion detector, and frozen once terminal.
type TestRun struct {
	TestID                string            `json:"testId"`
	ScenarioType          ScenarioType      `json:"scenarioType"`
	Status                TestStatus        `json:"status"`
	TargetLLMModel        string            `json:"targetLlmModel"`
	TestingAgentProfiles  []ProfileName     `json:"testingAgentProfiles"`
	TestingAgentIDs       []string          `json:"testingAgentIds"`
	TargetAgentID         string            `json:"targetAgentId,omitempty"`
	TargetBotID           string            `json:"targetBotId,omitempty"`
	DiscordTextChannelID  string            `json:"discordTextChannelId,omitempty"`
	DiscordVoiceChannelID string            `json:"discordVoiceChannelId,omitempty"`
	DurationSeconds       int               `json:"durationSeconds"`
	CreatedAt             time.Time         `json:"createdAt"`
	StartedAt             *time.Time        `json:"startedAt"`
	EndedAt               *time.Time        `json:"endedAt"`
	CompletionReason      *CompletionReason `json:"completionReason"`
	Config                TestRunConfig     `json:"config"`
	Metrics               TestMetrics       `json:"metrics"`
}

// Clone returns a deep copy so callers can hand the run to encoders
// without racing the runner.
func (r *TestRun) Clone() *TestRun {
	c := *r
	c.TestingAgentProfiles = append([]ProfileName(nil), r.TestingAgentProfiles...)
	c.TestingAgentIDs = append([]string(nil), r.TestingAgentIDs...)
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.EndedAt != nil {
		t := *r.EndedAt
		c.EndedAt = &t
	}
	if r.CompletionReason != nil {
		cr := *r.CompletionReason
		c.CompletionReason = &cr
	}
	if r.Metrics.LastLLMDecisionAt != nil {
		t := *r.Metrics.LastLLMDecisionAt
		c.Metrics.LastLLMDecisionAt = &t
	}
	return &c
}

// CanTransitionTo reports whether the state machine permits moving from the
// current status to next.
func (r *TestRun) CanTransitionTo(next TestStatus) bool {
	if r.Status.IsTerminal() {
		return false
	}
	switch next {
	case StatusInitializing:
		return r.Status == StatusCreated
	case StatusCoordination:
		return r.Status == StatusInitializing
	case StatusExecuting:
		return r.Status == StatusCoordination
	case StatusCompleting:
		return r.Status.IsActive()
	case StatusCompleted, StatusFailed, StatusCancelled:
		return r.Status.IsActive() || r.Status == StatusCompleting
	default:
		return false
	}
}

// TestRunFilters narrows FindAll listings.
type TestRunFilters struct {
	Status       TestStatus
	ScenarioType ScenarioType
}

// CreateTestRequest is the body of POST /api/tests.
type CreateTestRequest struct {
	ScenarioType         ScenarioType   `json:"scenarioType" binding:"required"`
	TargetLLMModel       string         `json:"targetLlmModel,omitempty"`
	TestingAgentProfiles []ProfileName  `json:"testingAgentProfiles,omitempty"`
	DurationSeconds      int            `json:"durationSeconds,omitempty"`
	Config               *ConfigPartial `json:"config,omitempty"`
}

// ConfigPartial carries optional overrides of TestRunConfig.
type ConfigPartial struct {
	LLMPollingIntervalMs     *int     `json:"llmPollingIntervalMs,omitempty"`
	CoordinationPhaseSeconds *int     `json:"coordinationPhaseSeconds,omitempty"`
	BehaviorIntensity        *float64 `json:"behaviorIntensity,omitempty"`
	VoiceEnabled             *bool    `json:"voiceEnabled,omitempty"`
}
