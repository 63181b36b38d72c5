package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/zshan-dev/agent-arena/pkg/models"
)

// cleanupStepTimeout bounds each external call during teardown so a hung
// collaborator cannot stall the remaining steps.
const cleanupStepTimeout = 10 * time.Second

// cleanup releases a run's resources in order. Each step's failure is
// logged and never aborts the remaining steps. Invoked exactly once per
// run, from triggerCompletion.
func (r *Runner) cleanup(ar *activeRun, run *models.TestRun) {
	log := slog.With("test_id", ar.testID)
	log.Info("Cleaning up test run")

	// 1. Completion detector timers.
	if ar.detector != nil {
		ar.detector.stop()
	}

	// 2. Decision and behaviour loops. Cancelling the run context prevents
	// the next tick and interrupts inter-tick sleeps; an in-flight LLM call
	// runs under the same context and is interrupted as well.
	ar.cancel()

	// 3. Testing agents: terminate, then disconnect their bots.
	for _, t := range ar.testers {
		t.mu.Lock()
		t.agent.Status = models.AgentTerminated
		botID := t.agent.MinecraftBotID
		t.mu.Unlock()
		if botID == "" {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), cleanupStepTimeout)
		if err := r.game.DisconnectBot(ctx, botID); err != nil {
			log.Warn("Failed to disconnect testing bot", "bot_id", botID, "error", err)
		}
		cancel()
	}

	// 4. Target bot.
	if ar.targetBotID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupStepTimeout)
		if err := r.game.DisconnectBot(ctx, ar.targetBotID); err != nil {
			log.Warn("Failed to disconnect target bot", "bot_id", ar.targetBotID, "error", err)
		}
		cancel()
	}

	// 5. Voice channel. The text/voice channel records persist for review.
	if r.coord != nil {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupStepTimeout)
		if err := r.coord.LeaveVoice(ctx, r.cfg.DiscordGuildID); err != nil {
			log.Warn("Failed to leave voice channel", "error", err)
		}
		cancel()
	}

	// 6. Agent voice profiles.
	if r.coord != nil {
		for _, t := range ar.testers {
			r.coord.UnregisterAgentVoice(t.agent.AgentID)
		}
		if ar.targetAgentID != "" {
			r.coord.UnregisterAgentVoice(ar.targetAgentID)
		}
	}

	// 7. Final run state.
	ctx, cancel := context.WithTimeout(context.Background(), cleanupStepTimeout)
	defer cancel()
	if err := r.repo.Update(ctx, run); err != nil {
		log.Error("Failed to persist final run state", "error", err)
	}
}
