package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zshan-dev/agent-arena/pkg/events"
	"github.com/zshan-dev/agent-arena/pkg/models"
	"github.com/zshan-dev/agent-arena/pkg/scenario"
	"github.com/zshan-dev/agent-arena/pkg/storage"
)

func testScenario() *scenario.Scenario {
	return scenario.Get(models.ScenarioCooperation)
}

// detectorFixture builds a detector over an executing run without starting
// its timers, so evaluate() can be driven synchronously.
func detectorFixture(t *testing.T) (*completionDetector, storage.Repository, *models.TestRun) {
	t.Helper()
	repo := storage.NewMemoryRepository()
	bus := events.NewBus()
	r := NewRunner(repo, bus, newFakeGame(), &fakeLLM{text: "{}"}, nil, runnerConfig())

	run := createRun(t, repo, 600)
	run.Status = models.StatusExecuting
	require.NoError(t, repo.Update(context.Background(), run))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ar := &activeRun{testID: run.TestID, ctx: ctx, cancel: cancel, sc: testScenario()}
	return newCompletionDetector(r, ar, time.Minute), repo, run
}

func TestEvaluateNoCriteriaMet(t *testing.T) {
	d, _, _ := detectorFixture(t)
	_, fired := d.evaluate()
	assert.False(t, fired)
}

func TestEvaluateCooperativeActions(t *testing.T) {
	d, repo, run := detectorFixture(t)
	ctx := context.Background()

	// Enough actions but no chat: the discord-communication requirement
	// holds success back.
	require.NoError(t, repo.IncrementMetric(ctx, run.TestID, models.MetricTargetActionCount, 5))
	_, fired := d.evaluate()
	assert.False(t, fired)

	require.NoError(t, repo.IncrementMetric(ctx, run.TestID, models.MetricTargetMessageCount, 1))
	reason, fired := d.evaluate()
	assert.True(t, fired)
	assert.Equal(t, models.ReasonSuccess, reason)
}

func TestEvaluateErrorRate(t *testing.T) {
	d, repo, run := detectorFixture(t)
	ctx := context.Background()

	// Error rate only counts once more than 10 decisions exist.
	require.NoError(t, repo.IncrementMetric(ctx, run.TestID, models.MetricLLMDecisionCount, 5))
	require.NoError(t, repo.IncrementMetric(ctx, run.TestID, models.MetricLLMErrorCount, 5))
	_, fired := d.evaluate()
	assert.False(t, fired)

	require.NoError(t, repo.IncrementMetric(ctx, run.TestID, models.MetricLLMDecisionCount, 6))
	require.NoError(t, repo.IncrementMetric(ctx, run.TestID, models.MetricLLMErrorCount, 4))
	reason, fired := d.evaluate()
	assert.True(t, fired)
	assert.Equal(t, models.ReasonAllAgentsFailed, reason)
}

func TestEvaluateTasksCompleted(t *testing.T) {
	repo := storage.NewMemoryRepository()
	bus := events.NewBus()
	r := NewRunner(repo, bus, newFakeGame(), &fakeLLM{text: "{}"}, nil, runnerConfig())

	run := createRun(t, repo, 600)
	run.ScenarioType = models.ScenarioResourceManagement
	run.Status = models.StatusExecuting
	ctx := context.Background()
	require.NoError(t, repo.Update(ctx, run))

	runCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	ar := &activeRun{
		testID: run.TestID,
		ctx:    runCtx,
		cancel: cancel,
		sc:     scenario.Get(models.ScenarioResourceManagement),
	}
	d := newCompletionDetector(r, ar, time.Minute)

	// minTasksCompleted=2 → 20 target actions required.
	require.NoError(t, repo.IncrementMetric(ctx, run.TestID, models.MetricTargetActionCount, 19))
	_, fired := d.evaluate()
	assert.False(t, fired)

	require.NoError(t, repo.IncrementMetric(ctx, run.TestID, models.MetricTargetActionCount, 1))
	reason, fired := d.evaluate()
	assert.True(t, fired)
	assert.Equal(t, models.ReasonSuccess, reason)
}

func TestEvaluateSkipsTerminalRun(t *testing.T) {
	d, repo, run := detectorFixture(t)
	ctx := context.Background()

	require.NoError(t, repo.IncrementMetric(ctx, run.TestID, models.MetricTargetActionCount, 50))
	require.NoError(t, repo.IncrementMetric(ctx, run.TestID, models.MetricTargetMessageCount, 1))

	stored, err := repo.FindByID(ctx, run.TestID)
	require.NoError(t, err)
	reason := models.ReasonManualStop
	stored.Status = models.StatusCancelled
	stored.CompletionReason = &reason
	require.NoError(t, repo.Update(ctx, stored))

	_, fired := d.evaluate()
	assert.False(t, fired)
}

func TestDetectorStopIsIdempotent(t *testing.T) {
	d, _, _ := detectorFixture(t)
	d.start()
	d.stop()
	d.stop()
}
