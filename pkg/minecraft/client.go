// Package minecraft defines the game-client surface the engine consumes
// and the WebSocket bridge implementation that speaks to the bot sidecar.
package minecraft

import (
	"context"
	"time"
)

// Vec3 is a world coordinate or face vector.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Item is one inventory entry.
type Item struct {
	Slot  int    `json:"slot"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Block is a world block observation.
type Block struct {
	Name     string `json:"name"`
	Position Vec3   `json:"position"`
}

// BotState is a point-in-time snapshot of a connected bot.
type BotState struct {
	Position      Vec3      `json:"position"`
	Yaw           float64   `json:"yaw"`
	Pitch         float64   `json:"pitch"`
	Health        float64   `json:"health"`
	Food          float64   `json:"food"`
	Inventory     []Item    `json:"inventory"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
}

// SpawnOptions configures bot creation.
type SpawnOptions struct {
	Username      string
	Host          string
	Port          int
	Version       string
	SpawnTeleport *Vec3
}

// BotEventKind enumerates the per-bot event stream.
type BotEventKind string

const (
	BotEventChat   BotEventKind = "chat"
	BotEventDamage BotEventKind = "damage"
	BotEventDeath  BotEventKind = "death"
	BotEventKicked BotEventKind = "kicked"
	BotEventMove   BotEventKind = "move"
)

// BotEvent is one entry from a bot's event stream.
type BotEvent struct {
	Kind      BotEventKind `json:"kind"`
	BotID     string       `json:"botId"`
	Sender    string       `json:"sender,omitempty"`
	Message   string       `json:"message,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// ContainerHandle is an open container session. Close must always be
// called; the bridge holds the container open until then.
type ContainerHandle interface {
	Items() []Item
	Withdraw(ctx context.Context, itemName string, count int) (int, error)
	Close(ctx context.Context) error
}

// BlockMatcher selects blocks by name in search calls.
type BlockMatcher func(name string) bool

// GameClient is the remote-actor RPC surface the engine consumes. All
// blocking calls honour their context; connect and pathfinding are bounded
// at 30 s by the implementation.
type GameClient interface {
	// CreateBot connects a bot and blocks until it has fully joined the
	// world, optionally teleporting it to the configured spawn.
	CreateBot(ctx context.Context, opts SpawnOptions) (string, error)
	DisconnectBot(ctx context.Context, botID string) error

	GetState(ctx context.Context, botID string) (*BotState, error)

	LookAt(ctx context.Context, botID string, target Vec3) error
	WalkForward(ctx context.Context, botID string, duration time.Duration) error
	Jump(ctx context.Context, botID string) error
	PathfindTo(ctx context.Context, botID string, target Vec3, arriveWithin float64) error

	Dig(ctx context.Context, botID string, target Vec3) error
	PlaceBlock(ctx context.Context, botID string, reference Vec3, face Vec3) error

	Equip(ctx context.Context, botID, itemName, slot string) error
	Attack(ctx context.Context, botID, targetName string) error

	FindNearestBlock(ctx context.Context, botID string, match BlockMatcher, maxDistance float64) (*Block, error)
	BlockAt(ctx context.Context, botID string, pos Vec3) (*Block, error)

	OpenContainer(ctx context.Context, botID string, pos Vec3) (ContainerHandle, error)

	SendChat(ctx context.Context, botID, message string) error

	// Events returns the bot's event stream. The channel closes when the
	// bot disconnects.
	Events(botID string) <-chan BotEvent
}
