package runner

import (
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/zshan-dev/agent-arena/pkg/models"
)

// runBehaviorLoop ticks one testing agent at its profile-derived interval.
// Non-leader profiles start after a fixed delay so the leader speaks first.
func (r *Runner) runBehaviorLoop(ar *activeRun, t *testerState) {
	log := slog.With("test_id", ar.testID, "agent_id", t.agent.AgentID, "profile", t.agent.Profile)

	if t.agent.Profile != models.ProfileLeader {
		if !sleepCtx(ar.ctx, followerStartDelay) {
			return
		}
	}

	interval := time.Duration(t.profile.ActionFrequency.MeanIntervalMs()) * time.Millisecond
	log.Info("Behaviour loop started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ar.ctx.Done():
			log.Info("Behaviour loop stopped")
			return
		case <-ticker.C:
			r.runBehaviorTick(ar, t)
		}
	}
}

// runBehaviorTick executes one behaviour. Game failures are logged and the
// loop always continues.
func (r *Runner) runBehaviorTick(ar *activeRun, t *testerState) {
	ctx := ar.ctx
	log := slog.With("test_id", ar.testID, "agent_id", t.agent.AgentID)

	t.mu.Lock()
	botID := t.agent.MinecraftBotID
	status := t.agent.Status
	t.mu.Unlock()
	if botID == "" || status != models.AgentActive {
		return
	}

	hasPlanks := false
	if state, err := r.game.GetState(ctx, botID); err == nil {
		for _, item := range state.Inventory {
			if strings.Contains(item.Name, "planks") && item.Count > 0 {
				hasPlanks = true
				break
			}
		}
	}

	behavior := t.selectBehavior(hasPlanks)
	result := r.executeBehavior(ar, t, behavior)
	if ctx.Err() != nil {
		return
	}

	if t.agent.Metadata.TestID != "" {
		r.bus.Publish(models.AgentActionEvent{
			Type:       models.EventAgentAction,
			TestID:     ar.testID,
			AgentID:    t.agent.AgentID,
			SourceType: models.SourceTestingAgent,
			Action:     string(behavior),
			Detail:     result.detail,
			Success:    result.success,
			Timestamp:  time.Now().UTC(),
		})
		if err := r.repo.IncrementMetric(ctx, ar.testID, models.MetricTestingAgentActionCount, 1); err != nil {
			log.Warn("Failed to record agent action", "error", err)
		}

		if result.chatMessage != "" {
			r.bus.Publish(models.TestChatMessageEvent{
				Type:       models.EventTestChatMessage,
				TestID:     ar.testID,
				AgentID:    t.agent.AgentID,
				SourceType: models.SourceTestingAgent,
				Channel:    models.ChatChannelText,
				Message:    result.chatMessage,
				Timestamp:  time.Now().UTC(),
			})
			if err := r.repo.IncrementMetric(ctx, ar.testID, models.MetricTestingAgentMessageCount, 1); err != nil {
				log.Warn("Failed to record agent message", "error", err)
			}
		}
		r.emitMetrics(ctx, ar.testID)
	}

	// Subtle drift keeps agents from standing still between behaviours.
	r.subtleDrift(ar, t, botID)

	now := time.Now().UTC()
	t.mu.Lock()
	t.agent.LastActionAt = &now
	t.agent.ActionCount++
	t.mu.Unlock()

	r.appendActionLog(ctx, ar.testID, t.agent.AgentID, models.SourceTestingAgent,
		models.CategoryMinecraft, string(behavior), map[string]any{
			"success": result.success,
			"chat":    result.chatMessage != "",
		})
}

// subtleDrift walks the bot 0.6–1.4 s toward a random bearing.
func (r *Runner) subtleDrift(ar *activeRun, t *testerState, botID string) {
	state, err := r.game.GetState(ar.ctx, botID)
	if err != nil {
		return
	}
	bearing := t.rng.Float64() * 2 * math.Pi
	target := driftTarget(state.Position, bearing, 4)
	if err := r.game.LookAt(ar.ctx, botID, target); err != nil {
		return
	}
	duration := time.Duration(600+t.rng.Intn(800)) * time.Millisecond
	_ = r.game.WalkForward(ar.ctx, botID, duration)
}
