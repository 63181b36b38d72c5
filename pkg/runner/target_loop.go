package runner

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/zshan-dev/agent-arena/pkg/llm"
	"github.com/zshan-dev/agent-arena/pkg/minecraft"
	"github.com/zshan-dev/agent-arena/pkg/models"
	"github.com/zshan-dev/agent-arena/pkg/prompt"
)

const (
	llmTemperature = 0.7
	llmMaxTokens   = 1024

	fallbackBearingDistance = 8.0
	fallbackWalkDuration    = 900 * time.Millisecond
)

// runTargetLoop drives observe→decide→act cycles until the run terminates.
func (r *Runner) runTargetLoop(ar *activeRun, model string, interval time.Duration) {
	log := slog.With("test_id", ar.testID, "bot_id", ar.targetBotID)
	log.Info("Target decision loop started", "model", model, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ar.ctx.Done():
			log.Info("Target decision loop stopped")
			return
		case <-ticker.C:
			r.runDecisionCycle(ar, model)
		}
	}
}

// runDecisionCycle executes one full cycle. Errors never escape: they
// become metrics and events and the loop proceeds to its next tick.
func (r *Runner) runDecisionCycle(ar *activeRun, model string) {
	ctx := ar.ctx
	log := slog.With("test_id", ar.testID)

	state, err := r.game.GetState(ctx, ar.targetBotID)
	if err != nil {
		log.Warn("Failed to snapshot target state", "error", err)
		return
	}

	chat := ar.recentChat()
	lines := make([]prompt.ChatLine, len(chat))
	for i, c := range chat {
		lines[i] = prompt.ChatLine{Sender: c.sender, Message: c.message}
	}

	sc := ar.sc
	systemPrompt := prompt.BuildSystemPrompt(sc.ObjectivePrompt)
	userPrompt := prompt.BuildUserPrompt(state, lines)

	start := time.Now()
	resp, err := r.llm.Chat(ctx, llm.ChatRequest{
		Model:       model,
		System:      systemPrompt,
		Messages:    []llm.Message{{Role: "user", Content: userPrompt}},
		Temperature: llmTemperature,
		MaxTokens:   llmMaxTokens,
	})
	responseTime := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Warn("LLM call failed", "error", err)
		if err := r.repo.IncrementMetric(ctx, ar.testID, models.MetricLLMErrorCount, 1); err != nil {
			log.Warn("Failed to record llm error", "error", err)
		}
		r.emitError(ar.testID, fmt.Sprintf("llm call failed: %v", err), false)
		return
	}

	decision, err := llm.ParseDecision(resp.Text)
	if err != nil {
		log.Warn("Failed to parse LLM decision", "error", err)
		if err := r.repo.IncrementMetric(ctx, ar.testID, models.MetricLLMErrorCount, 1); err != nil {
			log.Warn("Failed to record llm error", "error", err)
		}
		r.emitError(ar.testID, fmt.Sprintf("unparseable llm response: %v", err), false)
		return
	}

	if decision.IsEmpty() {
		log.Debug("Empty decision, running fallback exploration")
		r.fallbackExploration(ctx, ar.targetBotID, state)
	}

	now := time.Now().UTC()
	if err := r.repo.IncrementMetric(ctx, ar.testID, models.MetricLLMDecisionCount, 1); err != nil {
		log.Warn("Failed to record decision", "error", err)
	}
	if err := r.repo.IncrementMetric(ctx, ar.testID, models.MetricTotalLLMResponseTimeMs, responseTime.Milliseconds()); err != nil {
		log.Warn("Failed to record response time", "error", err)
	}
	if err := r.repo.UpdateMetricTimestamp(ctx, ar.testID, models.MetricLastLLMDecisionAt, now); err != nil {
		log.Warn("Failed to record decision timestamp", "error", err)
	}

	r.bus.Publish(models.TargetLLMDecisionEvent{
		Type:           models.EventTargetLLMDecision,
		TestID:         ar.testID,
		Reasoning:      decision.Reasoning,
		ParsedActions:  decision.ActionTypes(),
		Chat:           decision.Chat,
		Speak:          decision.Speak,
		ResponseTimeMs: responseTime.Milliseconds(),
		Timestamp:      now,
	})
	r.emitMetrics(ctx, ar.testID)

	for _, action := range decision.Actions {
		if ctx.Err() != nil {
			return
		}
		r.executeTargetAction(ar, action)
	}

	if decision.Chat != "" {
		success := true
		if err := r.game.SendChat(ctx, ar.targetBotID, decision.Chat); err != nil {
			log.Warn("Failed to send target chat", "error", err)
			success = false
		}
		if success {
			if err := r.repo.IncrementMetric(ctx, ar.testID, models.MetricTargetMessageCount, 1); err != nil {
				log.Warn("Failed to record target message", "error", err)
			}
			ar.appendChat(ar.targetAgentID, decision.Chat)
			r.mirrorChat(ar, ar.targetAgentID, decision.Chat)
			r.bus.Publish(models.TestChatMessageEvent{
				Type:       models.EventTestChatMessage,
				TestID:     ar.testID,
				AgentID:    ar.targetAgentID,
				SourceType: models.SourceTarget,
				Channel:    models.ChatChannelText,
				Message:    decision.Chat,
				Timestamp:  time.Now().UTC(),
			})
			r.emitMetrics(ctx, ar.testID)
		}
	}

	if decision.Speak != "" && ar.voiceEnabled {
		if err := r.coord.SpeakAsAgent(ctx, r.cfg.DiscordGuildID, ar.targetAgentID, decision.Speak); err != nil {
			log.Warn("Failed to speak as target", "error", err)
		} else {
			r.bus.Publish(models.TestChatMessageEvent{
				Type:       models.EventTestChatMessage,
				TestID:     ar.testID,
				AgentID:    ar.targetAgentID,
				SourceType: models.SourceTarget,
				Channel:    models.ChatChannelVoice,
				Message:    decision.Speak,
				Timestamp:  time.Now().UTC(),
			})
		}
	}

	r.appendActionLog(ctx, ar.testID, ar.targetAgentID, models.SourceTarget,
		models.CategoryLLMDecision, decision.Reasoning, map[string]any{
			"actions":        decision.ActionTypes(),
			"chat":           decision.Chat != "",
			"responseTimeMs": responseTime.Milliseconds(),
		})
}

// executeTargetAction dispatches one coerced action to the game client and
// emits agent-action with the observed outcome.
func (r *Runner) executeTargetAction(ar *activeRun, action llm.Action) {
	ctx := ar.ctx
	botID := ar.targetBotID
	target := minecraft.Vec3{X: action.X, Y: action.Y, Z: action.Z}

	var err error
	known := true
	switch action.Type {
	case llm.ActionMoveTo:
		err = r.game.PathfindTo(ctx, botID, target, 1)
	case llm.ActionOpenContainer:
		err = r.openAndCloseContainer(ctx, botID, target)
	case llm.ActionJump:
		err = r.game.Jump(ctx, botID)
	case llm.ActionDig:
		err = r.game.Dig(ctx, botID, target)
	case llm.ActionPlaceBlock:
		err = r.game.PlaceBlock(ctx, botID,
			minecraft.Vec3{X: target.X, Y: target.Y - 1, Z: target.Z},
			minecraft.Vec3{Y: 1})
	case llm.ActionSendChat:
		err = r.game.SendChat(ctx, botID, action.Message)
	case llm.ActionLookAt:
		err = r.game.LookAt(ctx, botID, target)
	case llm.ActionEquip:
		err = r.game.Equip(ctx, botID, action.ItemName, "hand")
	case llm.ActionAttack:
		err = r.game.Attack(ctx, botID, action.Target)
	default:
		known = false
		slog.Debug("Skipping unknown action type", "test_id", ar.testID, "type", action.Type)
	}
	if !known {
		return
	}

	success := err == nil
	if err != nil && ctx.Err() == nil {
		slog.Debug("Target action failed", "test_id", ar.testID, "action", action.Type, "error", err)
	}
	if success {
		if err := r.repo.IncrementMetric(ctx, ar.testID, models.MetricTargetActionCount, 1); err != nil {
			slog.Warn("Failed to record target action", "test_id", ar.testID, "error", err)
		}
	}
	r.bus.Publish(models.AgentActionEvent{
		Type:       models.EventAgentAction,
		TestID:     ar.testID,
		AgentID:    ar.targetAgentID,
		SourceType: models.SourceTarget,
		Action:     action.Type,
		Success:    success,
		Timestamp:  time.Now().UTC(),
	})
}

func (r *Runner) openAndCloseContainer(ctx context.Context, botID string, pos minecraft.Vec3) error {
	handle, err := r.game.OpenContainer(ctx, botID, pos)
	if err != nil {
		return err
	}
	return handle.Close(ctx)
}

// fallbackExploration looks toward a random horizontal bearing 8 blocks out
// and walks forward briefly, so an empty decision still moves the bot.
func (r *Runner) fallbackExploration(ctx context.Context, botID string, state *minecraft.BotState) {
	bearing := rand.Float64() * 2 * math.Pi
	target := minecraft.Vec3{
		X: state.Position.X + fallbackBearingDistance*math.Cos(bearing),
		Y: state.Position.Y,
		Z: state.Position.Z + fallbackBearingDistance*math.Sin(bearing),
	}
	if err := r.game.LookAt(ctx, botID, target); err != nil {
		return
	}
	_ = r.game.WalkForward(ctx, botID, fallbackWalkDuration)
}
