package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zshan-dev/agent-arena/pkg/config"
	"github.com/zshan-dev/agent-arena/pkg/models"
	"github.com/zshan-dev/agent-arena/pkg/storage"
)

// fakeLifecycle records lifecycle calls and flips the run's status the way
// the real runner would.
type fakeLifecycle struct {
	repo    storage.Repository
	started []string
	stopped []string
}

func (f *fakeLifecycle) Start(ctx context.Context, testID string) error {
	f.started = append(f.started, testID)
	run, err := f.repo.FindByID(ctx, testID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	run.Status = models.StatusInitializing
	run.StartedAt = &now
	return f.repo.Update(ctx, run)
}

func (f *fakeLifecycle) Stop(ctx context.Context, testID string) error {
	f.stopped = append(f.stopped, testID)
	run, err := f.repo.FindByID(ctx, testID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	reason := models.ReasonManualStop
	run.Status = models.StatusCancelled
	run.EndedAt = &now
	run.CompletionReason = &reason
	return f.repo.Update(ctx, run)
}

func testConfig() *config.Config {
	return &config.Config{
		MaxConcurrentTests:          3,
		CoordinationPhaseSeconds:    30,
		DefaultLLMPollingIntervalMs: 7000,
		DefaultTestDurationSeconds:  600,
		DefaultBehaviorIntensity:    0.5,
		DefaultLLMModel:             "test-model",
	}
}

func newService(t *testing.T) (*TestService, *fakeLifecycle, storage.Repository) {
	t.Helper()
	repo := storage.NewMemoryRepository()
	lifecycle := &fakeLifecycle{repo: repo}
	return NewTestService(repo, lifecycle, testConfig()), lifecycle, repo
}

func TestCreateTestDefaults(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	run, err := svc.CreateTest(ctx, models.CreateTestRequest{ScenarioType: models.ScenarioCooperation})
	require.NoError(t, err)

	assert.Equal(t, models.StatusCreated, run.Status)
	assert.Equal(t, []models.ProfileName{models.ProfileLeader, models.ProfileNonCooperator}, run.TestingAgentProfiles)
	assert.Equal(t, 600, run.DurationSeconds)
	assert.Equal(t, "test-model", run.TargetLLMModel)
	assert.Equal(t, 7000, run.Config.LLMPollingIntervalMs)
	assert.Nil(t, run.CompletionReason)
	assert.NotEmpty(t, run.TestID)
}

func TestCreateTestInvalidScenario(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.CreateTest(context.Background(), models.CreateTestRequest{ScenarioType: "griefing"})
	assert.ErrorIs(t, err, ErrInvalidScenario)
}

func TestCreateTestDurationBounds(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.CreateTest(ctx, models.CreateTestRequest{
		ScenarioType:    models.ScenarioCooperation,
		DurationSeconds: 59,
	})
	assert.ErrorIs(t, err, ErrInvalidDuration)

	_, err = svc.CreateTest(ctx, models.CreateTestRequest{
		ScenarioType:    models.ScenarioCooperation,
		DurationSeconds: 1801,
	})
	assert.ErrorIs(t, err, ErrInvalidDuration)

	run, err := svc.CreateTest(ctx, models.CreateTestRequest{
		ScenarioType:    models.ScenarioCooperation,
		DurationSeconds: 60,
	})
	require.NoError(t, err)
	assert.Equal(t, 60, run.DurationSeconds)
}

func TestCreateTestClampsPollingInterval(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	low := 100
	run, err := svc.CreateTest(ctx, models.CreateTestRequest{
		ScenarioType: models.ScenarioCooperation,
		Config:       &models.ConfigPartial{LLMPollingIntervalMs: &low},
	})
	require.NoError(t, err)
	assert.Equal(t, config.MinLLMPollingIntervalMs, run.Config.LLMPollingIntervalMs)

	high := 90000
	run, err = svc.CreateTest(ctx, models.CreateTestRequest{
		ScenarioType: models.ScenarioCooperation,
		Config:       &models.ConfigPartial{LLMPollingIntervalMs: &high},
	})
	require.NoError(t, err)
	assert.Equal(t, config.MaxLLMPollingIntervalMs, run.Config.LLMPollingIntervalMs)
}

func TestCreateTestConcurrencyCap(t *testing.T) {
	svc, _, repo := newService(t)
	ctx := context.Background()

	// Three active runs fill the cap.
	for i := 0; i < 3; i++ {
		run, err := svc.CreateTest(ctx, models.CreateTestRequest{ScenarioType: models.ScenarioCooperation})
		require.NoError(t, err)
		run.Status = models.StatusExecuting
		require.NoError(t, repo.Update(ctx, run))
	}

	before, err := repo.Count(ctx)
	require.NoError(t, err)

	_, err = svc.CreateTest(ctx, models.CreateTestRequest{ScenarioType: models.ScenarioCooperation})
	assert.ErrorIs(t, err, ErrMaxTestsReached)

	// The rejected request must not mutate state.
	after, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestStartTest(t *testing.T) {
	svc, lifecycle, _ := newService(t)
	ctx := context.Background()

	run, err := svc.CreateTest(ctx, models.CreateTestRequest{ScenarioType: models.ScenarioCooperation})
	require.NoError(t, err)

	started, err := svc.StartTest(ctx, run.TestID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInitializing, started.Status)
	assert.Equal(t, []string{run.TestID}, lifecycle.started)

	// Start on a non-created run conflicts.
	_, err = svc.StartTest(ctx, run.TestID)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = svc.StartTest(ctx, "nope")
	assert.ErrorIs(t, err, ErrTestNotFound)
}

func TestStopTest(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	run, err := svc.CreateTest(ctx, models.CreateTestRequest{ScenarioType: models.ScenarioCooperation})
	require.NoError(t, err)

	// Stop on a created (not active) run conflicts.
	_, err = svc.StopTest(ctx, run.TestID)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = svc.StartTest(ctx, run.TestID)
	require.NoError(t, err)

	stopped, err := svc.StopTest(ctx, run.TestID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, stopped.Status)
	require.NotNil(t, stopped.CompletionReason)
	assert.Equal(t, models.ReasonManualStop, *stopped.CompletionReason)

	// A second stop on the terminal run conflicts again.
	_, err = svc.StopTest(ctx, run.TestID)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestDeleteTest(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	run, err := svc.CreateTest(ctx, models.CreateTestRequest{ScenarioType: models.ScenarioCooperation})
	require.NoError(t, err)

	_, err = svc.StartTest(ctx, run.TestID)
	require.NoError(t, err)

	// Active runs cannot be deleted.
	assert.ErrorIs(t, svc.DeleteTest(ctx, run.TestID), ErrTestActive)

	_, err = svc.StopTest(ctx, run.TestID)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteTest(ctx, run.TestID))

	assert.ErrorIs(t, svc.DeleteTest(ctx, run.TestID), ErrTestNotFound)
}

func TestGetActionLogs(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.GetActionLogs(ctx, "nope", 10)
	assert.ErrorIs(t, err, ErrTestNotFound)

	run, err := svc.CreateTest(ctx, models.CreateTestRequest{ScenarioType: models.ScenarioCooperation})
	require.NoError(t, err)

	logs, err := svc.GetActionLogs(ctx, run.TestID, 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}
