package models

import "time"

// Action source and category tags used in action logs and agent-action events.
const (
	SourceTarget       = "target"
	SourceTestingAgent = "testing-agent"

	CategoryMinecraft   = "minecraft"
	CategoryDiscord     = "discord"
	CategoryLLMDecision = "llm-decision"
)

// ActionLog is an append-only record of one action or decision.
type ActionLog struct {
	LogID          string         `json:"logId"`
	TestID         string         `json:"testId"`
	SourceAgentID  string         `json:"sourceAgentId"`
	SourceType     string         `json:"sourceType"`
	ActionCategory string         `json:"actionCategory"`
	ActionDetail   string         `json:"actionDetail"`
	Timestamp      time.Time      `json:"timestamp"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}
