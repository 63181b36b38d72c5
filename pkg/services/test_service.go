package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zshan-dev/agent-arena/pkg/config"
	"github.com/zshan-dev/agent-arena/pkg/models"
	"github.com/zshan-dev/agent-arena/pkg/scenario"
	"github.com/zshan-dev/agent-arena/pkg/storage"
)

// Lifecycle is the runner surface the service drives. Split out so tests
// can run the service without game bots.
type Lifecycle interface {
	Start(ctx context.Context, testID string) error
	Stop(ctx context.Context, testID string) error
}

// TestService owns test-run CRUD and lifecycle operations.
type TestService struct {
	repo   storage.Repository
	runner Lifecycle
	cfg    *config.Config
}

// NewTestService wires the service.
func NewTestService(repo storage.Repository, runner Lifecycle, cfg *config.Config) *TestService {
	return &TestService{repo: repo, runner: runner, cfg: cfg}
}

// CreateTest validates the request, enforces the concurrency cap, and
// persists a run in status created.
func (s *TestService) CreateTest(ctx context.Context, req models.CreateTestRequest) (*models.TestRun, error) {
	sc := scenario.Get(req.ScenarioType)
	if sc == nil {
		return nil, ErrInvalidScenario
	}

	if req.DurationSeconds != 0 &&
		(req.DurationSeconds < config.MinTestDurationSeconds || req.DurationSeconds > config.MaxTestDurationSeconds) {
		return nil, ErrInvalidDuration
	}

	active, err := s.repo.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count active tests: %w", err)
	}
	if active >= s.cfg.MaxConcurrentTests {
		return nil, ErrMaxTestsReached
	}

	profiles := req.TestingAgentProfiles
	if len(profiles) == 0 {
		profiles = append([]models.ProfileName(nil), sc.DefaultProfiles...)
	}
	for _, p := range profiles {
		if !scenario.KnownProfile(p) {
			return nil, fmt.Errorf("%w: unknown profile %q", ErrInvalidScenario, p)
		}
	}

	duration := req.DurationSeconds
	if duration == 0 {
		duration = sc.DefaultDurationSeconds
	}
	model := req.TargetLLMModel
	if model == "" {
		model = s.cfg.DefaultLLMModel
	}

	run := &models.TestRun{
		TestID:               uuid.New().String(),
		ScenarioType:         req.ScenarioType,
		Status:               models.StatusCreated,
		TargetLLMModel:       model,
		TestingAgentProfiles: profiles,
		TestingAgentIDs:      []string{},
		DurationSeconds:      duration,
		CreatedAt:            time.Now().UTC(),
		Config:               s.resolveConfig(req.Config),
	}

	if err := s.repo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to persist test run: %w", err)
	}

	slog.Info("Test run created",
		"test_id", run.TestID,
		"scenario", run.ScenarioType,
		"profiles", run.TestingAgentProfiles,
		"duration_seconds", run.DurationSeconds)
	return run, nil
}

// resolveConfig merges request overrides over environment defaults, with
// the polling interval clamped into its supported range.
func (s *TestService) resolveConfig(partial *models.ConfigPartial) models.TestRunConfig {
	cfg := models.TestRunConfig{
		LLMPollingIntervalMs:     s.cfg.DefaultLLMPollingIntervalMs,
		CoordinationPhaseSeconds: s.cfg.CoordinationPhaseSeconds,
		BehaviorIntensity:        s.cfg.DefaultBehaviorIntensity,
		VoiceEnabled:             s.cfg.DiscordAutoStart && s.cfg.DiscordBotToken != "",
	}
	if partial == nil {
		return cfg
	}
	if partial.LLMPollingIntervalMs != nil {
		cfg.LLMPollingIntervalMs = *partial.LLMPollingIntervalMs
	}
	if partial.CoordinationPhaseSeconds != nil {
		cfg.CoordinationPhaseSeconds = *partial.CoordinationPhaseSeconds
	}
	if partial.BehaviorIntensity != nil {
		cfg.BehaviorIntensity = *partial.BehaviorIntensity
	}
	if partial.VoiceEnabled != nil {
		cfg.VoiceEnabled = *partial.VoiceEnabled
	}
	cfg.LLMPollingIntervalMs = config.ClampInt(cfg.LLMPollingIntervalMs,
		config.MinLLMPollingIntervalMs, config.MaxLLMPollingIntervalMs)
	return cfg
}

// GetTest returns one run.
func (s *TestService) GetTest(ctx context.Context, testID string) (*models.TestRun, error) {
	run, err := s.repo.FindByID(ctx, testID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTestNotFound
		}
		return nil, err
	}
	return run, nil
}

// ListTests returns runs matching the filters, newest first.
func (s *TestService) ListTests(ctx context.Context, filters models.TestRunFilters) ([]*models.TestRun, error) {
	return s.repo.FindAll(ctx, filters)
}

// StartTest begins a created run's initialisation pipeline.
func (s *TestService) StartTest(ctx context.Context, testID string) (*models.TestRun, error) {
	run, err := s.GetTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	if run.Status != models.StatusCreated {
		return nil, ErrInvalidStatus
	}
	if err := s.runner.Start(ctx, testID); err != nil {
		return nil, fmt.Errorf("failed to start test: %w", err)
	}
	return s.GetTest(ctx, testID)
}

// StopTest cancels an active run with reason manual-stop.
func (s *TestService) StopTest(ctx context.Context, testID string) (*models.TestRun, error) {
	run, err := s.GetTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	if !run.Status.IsActive() {
		return nil, ErrInvalidStatus
	}
	if err := s.runner.Stop(ctx, testID); err != nil {
		return nil, fmt.Errorf("failed to stop test: %w", err)
	}
	return s.GetTest(ctx, testID)
}

// DeleteTest removes a run that is not active.
func (s *TestService) DeleteTest(ctx context.Context, testID string) error {
	run, err := s.GetTest(ctx, testID)
	if err != nil {
		return err
	}
	if run.Status.IsActive() {
		return ErrTestActive
	}
	if err := s.repo.Delete(ctx, testID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrTestNotFound
		}
		return err
	}
	return nil
}

// GetActionLogs returns the most recent action logs for a run.
func (s *TestService) GetActionLogs(ctx context.Context, testID string, limit int) ([]*models.ActionLog, error) {
	if _, err := s.GetTest(ctx, testID); err != nil {
		return nil, err
	}
	limit = config.ClampInt(limit, 1, 500)
	return s.repo.FindActionLogs(ctx, testID, limit)
}
