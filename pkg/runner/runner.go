// Package runner drives test runs: the lifecycle state machine, the target
// decision loop, the per-agent behaviour loops, the completion detector,
// and the ordered cleanup that follows a terminal transition.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zshan-dev/agent-arena/pkg/config"
	"github.com/zshan-dev/agent-arena/pkg/discord"
	"github.com/zshan-dev/agent-arena/pkg/events"
	"github.com/zshan-dev/agent-arena/pkg/llm"
	"github.com/zshan-dev/agent-arena/pkg/minecraft"
	"github.com/zshan-dev/agent-arena/pkg/models"
	"github.com/zshan-dev/agent-arena/pkg/scenario"
	"github.com/zshan-dev/agent-arena/pkg/storage"
)

// followerStartDelay holds back every non-leader behaviour loop so the
// leader speaks first. Late starts are tolerated; this is not a
// synchronisation primitive.
const followerStartDelay = 12 * time.Second

// chatBufferSize caps the per-bot recent-chat ring used for prompts.
const chatBufferSize = 20

// Runner owns every active run and is the only writer of structural
// TestRun state.
type Runner struct {
	repo  storage.Repository
	bus   *events.Bus
	game  minecraft.GameClient
	llm   llm.Client
	coord discord.Coordinator // nil when Discord is disabled
	cfg   *config.Config

	mu     sync.Mutex
	active map[string]*activeRun
}

// activeRun is the in-process state of one running test.
type activeRun struct {
	testID string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sc *scenario.Scenario

	targetAgentID string
	targetBotID   string
	textChannelID string
	voiceEnabled  bool

	testers []*testerState

	detector *completionDetector

	chatMu sync.Mutex
	chat   []chatEntry

	completeOnce sync.Once
}

type chatEntry struct {
	sender  string
	message string
}

// testerState is one testing agent's live record plus its loop state.
type testerState struct {
	mu      sync.Mutex
	agent   *models.TestingAgent
	profile *scenario.BehaviouralProfile
	rng     *rand.Rand

	// Per-behaviour message cursors so chat pools rotate before repeating.
	cursors map[scenario.Behavior]int
}

// NewRunner wires the runner's collaborators. coord may be nil.
func NewRunner(repo storage.Repository, bus *events.Bus, game minecraft.GameClient, llmClient llm.Client, coord discord.Coordinator, cfg *config.Config) *Runner {
	return &Runner{
		repo:   repo,
		bus:    bus,
		game:   game,
		llm:    llmClient,
		coord:  coord,
		cfg:    cfg,
		active: make(map[string]*activeRun),
	}
}

// Start moves a created run into the initialisation pipeline. The caller
// (TestService) has already validated status and the concurrency cap.
func (r *Runner) Start(ctx context.Context, testID string) error {
	run, err := r.repo.FindByID(ctx, testID)
	if err != nil {
		return err
	}
	if run.Status != models.StatusCreated {
		return fmt.Errorf("test %s is %s, not created", testID, run.Status)
	}

	sc := scenario.Get(run.ScenarioType)
	if sc == nil {
		return fmt.Errorf("unknown scenario %q", run.ScenarioType)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	ar := &activeRun{
		testID: testID,
		ctx:    runCtx,
		cancel: cancel,
		sc:     sc,
	}

	r.mu.Lock()
	if _, exists := r.active[testID]; exists {
		r.mu.Unlock()
		cancel()
		return fmt.Errorf("test %s already running", testID)
	}
	r.active[testID] = ar
	r.mu.Unlock()

	now := time.Now().UTC()
	run.StartedAt = &now
	if err := r.transition(ctx, run, models.StatusInitializing); err != nil {
		r.removeActive(testID)
		cancel()
		return err
	}

	ar.wg.Add(1)
	go func() {
		defer ar.wg.Done()
		r.initialize(ar)
	}()
	return nil
}

// Stop cancels a run and completes it with reason manual-stop.
func (r *Runner) Stop(ctx context.Context, testID string) error {
	r.mu.Lock()
	ar, ok := r.active[testID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("test %s is not active", testID)
	}
	ar.cancel()
	r.triggerCompletion(ar, models.ReasonManualStop)
	return nil
}

// Shutdown applies the cleanup coordinator to every active run.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	runs := make([]*activeRun, 0, len(r.active))
	for _, ar := range r.active {
		runs = append(runs, ar)
	}
	r.mu.Unlock()

	for _, ar := range runs {
		ar.cancel()
		r.triggerCompletion(ar, models.ReasonManualStop)
	}
}

// IsActive reports whether the runner currently owns the run.
func (r *Runner) IsActive(testID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[testID]
	return ok
}

func (r *Runner) removeActive(testID string) {
	r.mu.Lock()
	delete(r.active, testID)
	r.mu.Unlock()
}

// initialize runs the created→coordination→executing pipeline.
func (r *Runner) initialize(ar *activeRun) {
	ctx := ar.ctx
	log := slog.With("test_id", ar.testID)

	run, err := r.repo.FindByID(ctx, ar.testID)
	if err != nil {
		r.failRun(ar, fmt.Errorf("failed to reload run: %w", err))
		return
	}
	ar.voiceEnabled = run.Config.VoiceEnabled && r.coord != nil

	// Coordination channels. A missing coordinator leaves the channel IDs
	// empty and every voice path becomes a no-op.
	if r.coord != nil {
		channels, err := r.coord.EnsureTestSessionChannels(ctx, r.cfg.DiscordGuildID, ar.testID)
		if err != nil {
			log.Warn("Failed to ensure coordination channels", "error", err)
		} else {
			run.DiscordTextChannelID = channels.TextChannelID
			run.DiscordVoiceChannelID = channels.VoiceChannelID
			ar.textChannelID = channels.TextChannelID
		}
	}

	// Target bot: failure here is unrecoverable.
	targetBotID, err := r.game.CreateBot(ctx, minecraft.SpawnOptions{
		Username:      "target-" + shortID(ar.testID),
		Host:          r.cfg.MinecraftHost,
		Port:          r.cfg.MinecraftPort,
		Version:       r.cfg.MinecraftVersion,
		SpawnTeleport: spawnTeleport(ar.sc),
	})
	if err != nil {
		r.failRun(ar, fmt.Errorf("failed to spawn target bot: %w", err))
		return
	}
	ar.targetBotID = targetBotID
	ar.targetAgentID = "target-" + shortID(ar.testID)
	run.TargetAgentID = ar.targetAgentID
	run.TargetBotID = targetBotID
	if r.coord != nil {
		r.coord.RegisterAgentVoice(ar.targetAgentID, "", "target")
	}

	// Watch the target's chat stream for the prompt buffer.
	ar.wg.Add(1)
	go func() {
		defer ar.wg.Done()
		r.watchTargetEvents(ar)
	}()

	// Testing agents: partial spawn failures are non-fatal.
	for i, profileName := range run.TestingAgentProfiles {
		profile := scenario.GetProfile(profileName)
		if profile == nil {
			log.Warn("Skipping unknown profile", "profile", profileName)
			continue
		}
		agentID := fmt.Sprintf("%s-%d-%s", profileName, i, shortID(ar.testID))
		tester := &testerState{
			agent: &models.TestingAgent{
				AgentID: agentID,
				Profile: profileName,
				Status:  models.AgentSpawning,
				Metadata: models.AgentMetadata{
					TestID:            ar.testID,
					BehaviorIntensity: run.Config.BehaviorIntensity,
				},
				SystemPrompt: profile.BehaviorRules,
			},
			profile: profile,
			rng:     rand.New(rand.NewSource(time.Now().UnixNano() + int64(i))),
			cursors: make(map[scenario.Behavior]int),
		}

		botID, err := r.game.CreateBot(ctx, minecraft.SpawnOptions{
			Username:      agentID,
			Host:          r.cfg.MinecraftHost,
			Port:          r.cfg.MinecraftPort,
			Version:       r.cfg.MinecraftVersion,
			SpawnTeleport: spawnTeleport(ar.sc),
		})
		if err != nil {
			log.Warn("Testing agent failed to spawn", "agent_id", agentID, "error", err)
			tester.agent.Status = models.AgentError
			r.emitError(ar.testID, fmt.Sprintf("testing agent %s failed to spawn: %v", agentID, err), false)
			continue
		}
		now := time.Now().UTC()
		tester.agent.MinecraftBotID = botID
		tester.agent.SpawnedAt = &now
		tester.agent.Status = models.AgentActive
		ar.testers = append(ar.testers, tester)
		run.TestingAgentIDs = append(run.TestingAgentIDs, agentID)

		if r.coord != nil {
			r.coord.RegisterAgentVoice(agentID, "", string(profileName))
		}
	}

	if err := ctx.Err(); err != nil {
		return
	}
	if err := r.repo.Update(ctx, run); err != nil {
		r.failRun(ar, fmt.Errorf("failed to persist spawn state: %w", err))
		return
	}
	if err := r.transition(ctx, run, models.StatusCoordination); err != nil {
		r.failRun(ar, err)
		return
	}

	if r.coord != nil && run.DiscordVoiceChannelID != "" {
		if err := r.coord.JoinVoice(ctx, r.cfg.DiscordGuildID, run.DiscordVoiceChannelID); err != nil {
			log.Warn("Failed to join voice channel", "error", err)
		}
	}

	// Behaviour loops begin with the coordination dwell; the leader opens.
	for _, tester := range ar.testers {
		t := tester
		ar.wg.Add(1)
		go func() {
			defer ar.wg.Done()
			r.runBehaviorLoop(ar, t)
		}()
	}

	dwell := time.Duration(run.Config.CoordinationPhaseSeconds) * time.Second
	if !sleepCtx(ctx, dwell) {
		return
	}

	run, err = r.repo.FindByID(ctx, ar.testID)
	if err != nil || run.Status.IsTerminal() {
		return
	}
	if err := r.transition(ctx, run, models.StatusExecuting); err != nil {
		log.Warn("Failed to enter executing", "error", err)
		return
	}

	// Executing: start the decision loop and the completion detector.
	ar.detector = newCompletionDetector(r, ar, time.Duration(run.DurationSeconds)*time.Second)
	ar.detector.start()

	ar.wg.Add(1)
	go func() {
		defer ar.wg.Done()
		r.runTargetLoop(ar, run.TargetLLMModel, time.Duration(run.Config.LLMPollingIntervalMs)*time.Millisecond)
	}()

	log.Info("Test run executing",
		"scenario", run.ScenarioType,
		"testing_agents", len(ar.testers),
		"duration_seconds", run.DurationSeconds)
}

// failRun marks the run failed with reason error and emits a fatal
// test-error event.
func (r *Runner) failRun(ar *activeRun, cause error) {
	slog.Error("Test run failed", "test_id", ar.testID, "error", cause)
	r.emitError(ar.testID, cause.Error(), true)
	r.triggerCompletion(ar, models.ReasonError)
}

// triggerCompletion moves the run to its terminal state exactly once and
// kicks off cleanup. A second trigger is a no-op.
func (r *Runner) triggerCompletion(ar *activeRun, reason models.CompletionReason) {
	ar.completeOnce.Do(func() {
		status := models.StatusCompleted
		switch reason {
		case models.ReasonManualStop:
			status = models.StatusCancelled
		case models.ReasonError, models.ReasonAllAgentsFailed:
			status = models.StatusFailed
		}

		ctx := context.Background()
		run, err := r.repo.FindByID(ctx, ar.testID)
		if err != nil {
			slog.Error("Completion could not load run", "test_id", ar.testID, "error", err)
			r.removeActive(ar.testID)
			return
		}

		now := time.Now().UTC()
		run.EndedAt = &now
		run.CompletionReason = &reason
		if err := r.transition(ctx, run, status); err != nil {
			slog.Error("Completion transition failed", "test_id", ar.testID, "error", err)
		}

		r.cleanup(ar, run)

		final, err := r.repo.FindByID(ctx, ar.testID)
		if err != nil {
			final = run
		}
		r.bus.Publish(models.TestCompletedEvent{
			Type:      models.EventTestCompleted,
			TestID:    ar.testID,
			Status:    final.Status,
			Reason:    reason,
			Metrics:   final.Metrics,
			Timestamp: time.Now().UTC(),
		})

		r.removeActive(ar.testID)
		slog.Info("Test run finished", "test_id", ar.testID, "status", status, "reason", reason)
	})
}

// transition applies one state-machine step and emits test-status-changed.
func (r *Runner) transition(ctx context.Context, run *models.TestRun, next models.TestStatus) error {
	if !run.CanTransitionTo(next) {
		return fmt.Errorf("invalid transition %s → %s for test %s", run.Status, next, run.TestID)
	}
	prev := run.Status
	run.Status = next
	if err := r.repo.Update(ctx, run); err != nil {
		run.Status = prev
		return fmt.Errorf("failed to persist status %s: %w", next, err)
	}
	r.bus.Publish(models.NewTestStatusChanged(run.TestID, prev, next))
	return nil
}

// watchTargetEvents feeds the target bot's chat into the prompt buffer.
func (r *Runner) watchTargetEvents(ar *activeRun) {
	stream := r.game.Events(ar.targetBotID)
	for {
		select {
		case <-ar.ctx.Done():
			return
		case ev, ok := <-stream:
			if !ok {
				return
			}
			if ev.Kind == minecraft.BotEventChat && ev.Sender != "" {
				ar.appendChat(ev.Sender, ev.Message)
			}
		}
	}
}

func (ar *activeRun) appendChat(sender, message string) {
	ar.chatMu.Lock()
	defer ar.chatMu.Unlock()
	ar.chat = append(ar.chat, chatEntry{sender: sender, message: message})
	if len(ar.chat) > chatBufferSize {
		ar.chat = ar.chat[len(ar.chat)-chatBufferSize:]
	}
}

func (ar *activeRun) recentChat() []chatEntry {
	ar.chatMu.Lock()
	defer ar.chatMu.Unlock()
	return append([]chatEntry(nil), ar.chat...)
}

// mirrorChat copies an in-game message to the run's coordination text
// channel for review. Best effort.
func (r *Runner) mirrorChat(ar *activeRun, sender, message string) {
	if r.coord == nil || ar.textChannelID == "" {
		return
	}
	if err := r.coord.SendText(ar.ctx, ar.textChannelID, "**"+sender+"**: "+message); err != nil {
		slog.Debug("Failed to mirror chat", "test_id", ar.testID, "error", err)
	}
}

// emitError publishes a test-error event and logs it.
func (r *Runner) emitError(testID, message string, fatal bool) {
	r.bus.Publish(models.TestErrorEvent{
		Type:      models.EventTestError,
		TestID:    testID,
		Message:   message,
		Fatal:     fatal,
		Timestamp: time.Now().UTC(),
	})
}

// emitMetrics publishes a fresh metrics snapshot.
func (r *Runner) emitMetrics(ctx context.Context, testID string) {
	run, err := r.repo.FindByID(ctx, testID)
	if err != nil {
		return
	}
	r.bus.Publish(models.TestMetricsUpdatedEvent{
		Type:      models.EventTestMetricsUpdated,
		TestID:    testID,
		Metrics:   run.Metrics,
		Timestamp: time.Now().UTC(),
	})
}

// appendActionLog persists one append-only log entry.
func (r *Runner) appendActionLog(ctx context.Context, testID, agentID, sourceType, category, detail string, metadata map[string]any) {
	err := r.repo.CreateActionLog(ctx, &models.ActionLog{
		LogID:          uuid.New().String(),
		TestID:         testID,
		SourceAgentID:  agentID,
		SourceType:     sourceType,
		ActionCategory: category,
		ActionDetail:   detail,
		Timestamp:      time.Now().UTC(),
		Metadata:       metadata,
	})
	if err != nil {
		slog.Warn("Failed to append action log", "test_id", testID, "error", err)
	}
}

func spawnTeleport(sc *scenario.Scenario) *minecraft.Vec3 {
	if sc.InitialConditions.SpawnPosition == nil {
		return nil
	}
	p := sc.InitialConditions.SpawnPosition
	return &minecraft.Vec3{X: p.X, Y: p.Y, Z: p.Z}
}

// sleepCtx waits for d and reports false when ctx fires first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
