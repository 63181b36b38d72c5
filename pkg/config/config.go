// Package config loads engine configuration from the environment.
package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Bounds for clamped options.
const (
	MinLLMPollingIntervalMs = 3000
	MaxLLMPollingIntervalMs = 30000
	MinTestDurationSeconds  = 60
	MaxTestDurationSeconds  = 1800
)

// Config holds every recognised environment option with its default.
type Config struct {
	Port        int    `env:"PORT" envDefault:"3000"`
	DatabaseURL string `env:"DATABASE_URL"`

	MinecraftHost    string `env:"MINECRAFT_HOST" envDefault:"localhost"`
	MinecraftPort    int    `env:"MINECRAFT_PORT" envDefault:"25565"`
	MinecraftVersion string `env:"MINECRAFT_VERSION"`

	DiscordBotToken  string `env:"DISCORD_BOT_TOKEN"`
	DiscordGuildID   string `env:"DISCORD_GUILD_ID"`
	DiscordAutoStart bool   `env:"DISCORD_AUTO_START" envDefault:"true"`

	ElevenLabsAPIKey string `env:"ELEVENLABS_API_KEY"`
	OpenRouterAPIKey string `env:"OPENROUTER_API_KEY"`
	DefaultLLMModel  string `env:"DEFAULT_LLM_MODEL" envDefault:"anthropic/claude-3.5-sonnet"`

	MaxConcurrentTests          int     `env:"MAX_CONCURRENT_TESTS" envDefault:"3"`
	CoordinationPhaseSeconds    int     `env:"COORDINATION_PHASE_SECONDS" envDefault:"30"`
	DefaultLLMPollingIntervalMs int     `env:"DEFAULT_LLM_POLLING_INTERVAL_MS" envDefault:"7000"`
	DefaultTestDurationSeconds  int     `env:"DEFAULT_TEST_DURATION_SECONDS" envDefault:"600"`
	DefaultBehaviorIntensity    float64 `env:"DEFAULT_BEHAVIOR_INTENSITY" envDefault:"0.5"`
}

// Load reads an optional .env file, parses the environment, and clamps
// numeric options into their supported ranges.
func Load() (*Config, error) {
	// A missing .env is the normal production case.
	if err := godotenv.Load(); err == nil {
		slog.Debug("Loaded .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.clamp()
	return cfg, nil
}

func (c *Config) clamp() {
	c.DefaultLLMPollingIntervalMs = ClampInt(c.DefaultLLMPollingIntervalMs, MinLLMPollingIntervalMs, MaxLLMPollingIntervalMs)
	c.DefaultTestDurationSeconds = ClampInt(c.DefaultTestDurationSeconds, MinTestDurationSeconds, MaxTestDurationSeconds)
	if c.DefaultBehaviorIntensity < 0 {
		c.DefaultBehaviorIntensity = 0
	}
	if c.DefaultBehaviorIntensity > 1 {
		c.DefaultBehaviorIntensity = 1
	}
	if c.MaxConcurrentTests < 1 {
		c.MaxConcurrentTests = 1
	}
	if c.CoordinationPhaseSeconds < 0 {
		c.CoordinationPhaseSeconds = 0
	}
}

// ClampInt bounds v into [lo, hi].
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
