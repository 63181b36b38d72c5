// Agent Arena orchestration server — provisions game bots, drives target
// and testing-agent loops, and streams test observations to dashboards.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zshan-dev/agent-arena/pkg/api"
	"github.com/zshan-dev/agent-arena/pkg/config"
	"github.com/zshan-dev/agent-arena/pkg/discord"
	"github.com/zshan-dev/agent-arena/pkg/events"
	"github.com/zshan-dev/agent-arena/pkg/llm"
	"github.com/zshan-dev/agent-arena/pkg/minecraft"
	"github.com/zshan-dev/agent-arena/pkg/runner"
	"github.com/zshan-dev/agent-arena/pkg/services"
	"github.com/zshan-dev/agent-arena/pkg/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()

	// Storage: Postgres when DATABASE_URL is set, in-memory otherwise.
	var repo storage.Repository
	if cfg.DatabaseURL != "" {
		pg, err := storage.NewPostgresRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		repo = pg
		slog.Info("Using PostgreSQL storage")
	} else {
		repo = storage.NewMemoryRepository()
		slog.Info("Using in-memory storage; active tests do not survive restarts")
	}

	bus := events.NewBus()

	// Game client bridge.
	bridgeURL := fmt.Sprintf("ws://%s:%d/bridge", cfg.MinecraftHost, cfg.MinecraftPort+1)
	if url := os.Getenv("MINECRAFT_BRIDGE_URL"); url != "" {
		bridgeURL = url
	}
	dialCtx, cancelDial := context.WithTimeout(ctx, 30*time.Second)
	game, err := minecraft.Dial(dialCtx, bridgeURL)
	cancelDial()
	if err != nil {
		return fmt.Errorf("failed to reach bot bridge at %s: %w", bridgeURL, err)
	}
	defer game.Close()

	llmClient := llm.NewOpenRouterClient(cfg.OpenRouterAPIKey)

	// Discord coordination is optional; without it channel IDs stay empty
	// and voice paths no-op.
	var coord discord.Coordinator
	if cfg.DiscordAutoStart && cfg.DiscordBotToken != "" {
		svc, err := discord.NewService(cfg.DiscordBotToken, cfg.ElevenLabsAPIKey)
		if err != nil {
			slog.Warn("Discord coordination unavailable", "error", err)
		} else {
			defer svc.Close()
			coord = svc
			slog.Info("Discord coordination enabled", "guild_id", cfg.DiscordGuildID)
		}
	}

	testRunner := runner.NewRunner(repo, bus, game, llmClient, coord, cfg)
	testService := services.NewTestService(repo, testRunner, cfg)
	server := api.NewServer(testService, repo, bus)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(cfg.Port) }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		slog.Info("Shutting down", "signal", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}

	// Apply the cleanup coordinator to every active run before exiting.
	testRunner.Shutdown()
	return nil
}
