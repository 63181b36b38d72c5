// Package discord implements the voice/chat coordination surface the
// engine consumes during test runs.
package discord

import "context"

// SessionChannels identifies the coordination channels of one test run.
type SessionChannels struct {
	TextChannelID  string
	VoiceChannelID string
}

// Coordinator is the narrow coordination-service surface used by the
// engine. Channel records persist after a run for review; only the voice
// connection and agent voice profiles are released on cleanup.
type Coordinator interface {
	// EnsureTestSessionChannels creates (or finds) the per-test text and
	// voice channels.
	EnsureTestSessionChannels(ctx context.Context, guildID, testID string) (*SessionChannels, error)

	JoinVoice(ctx context.Context, guildID, channelID string) error
	LeaveVoice(ctx context.Context, guildID string) error

	RegisterAgentVoice(agentID, voiceID, displayName string)
	UnregisterAgentVoice(agentID string)

	// SpeakAsAgent synthesizes text with the agent's registered voice and
	// plays it into the joined voice channel.
	SpeakAsAgent(ctx context.Context, guildID, agentID, text string) error

	// SendText posts a message to a coordination text channel.
	SendText(ctx context.Context, channelID, content string) error
}
