package models

import "time"

// AgentStatus is the lifecycle state of a testing agent.
type AgentStatus string

const (
	AgentIdle       AgentStatus = "idle"
	AgentSpawning   AgentStatus = "spawning"
	AgentActive     AgentStatus = "active"
	AgentPaused     AgentStatus = "paused"
	AgentTerminated AgentStatus = "terminated"
	AgentError      AgentStatus = "error"
)

// ProfileName identifies a behavioural profile archetype.
type ProfileName string

const (
	ProfileLeader          ProfileName = "leader"
	ProfileFollower        ProfileName = "follower"
	ProfileNonCooperator   ProfileName = "non-cooperator"
	ProfileConfuser        ProfileName = "confuser"
	ProfileResourceHoarder ProfileName = "resource-hoarder"
	ProfileTaskAbandoner   ProfileName = "task-abandoner"
)

// AgentMetadata links a testing agent back to its run.
type AgentMetadata struct {
	TestID            string  `json:"testId,omitempty"`
	BehaviorIntensity float64 `json:"behaviorIntensity"`
}

// TestingAgent is one scripted adversarial/cooperative actor.
type TestingAgent struct {
	AgentID        string        `json:"agentId"`
	Profile        ProfileName   `json:"profile"`
	Status         AgentStatus   `json:"status"`
	MinecraftBotID string        `json:"minecraftBotId,omitempty"`
	SystemPrompt   string        `json:"systemPrompt,omitempty"`
	SpawnedAt      *time.Time    `json:"spawnedAt"`
	LastActionAt   *time.Time    `json:"lastActionAt"`
	ActionCount    int           `json:"actionCount"`
	Metadata       AgentMetadata `json:"metadata"`
}
