package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zshan-dev/agent-arena/pkg/models"
)

// criteriaPollInterval is how often the success criteria are evaluated.
const criteriaPollInterval = 5 * time.Second

// completionDetector owns a run's hard-timeout timer and its criteria
// poll ticker. Both stop as soon as either fires; firing on an already
// terminated run is a no-op (triggerCompletion is idempotent).
type completionDetector struct {
	runner   *Runner
	ar       *activeRun
	duration time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
}

func newCompletionDetector(r *Runner, ar *activeRun, duration time.Duration) *completionDetector {
	return &completionDetector{
		runner:   r,
		ar:       ar,
		duration: duration,
		stopCh:   make(chan struct{}),
	}
}

func (d *completionDetector) start() {
	go d.run()
}

// stop halts both timers without triggering completion. It does not wait:
// the detector itself invokes completion (and thus cleanup), so a blocking
// stop would deadlock on the detector's own goroutine.
func (d *completionDetector) stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

func (d *completionDetector) run() {
	timeout := time.NewTimer(d.duration)
	defer timeout.Stop()
	ticker := time.NewTicker(criteriaPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-d.ar.ctx.Done():
			return
		case <-timeout.C:
			slog.Info("Test run timed out", "test_id", d.ar.testID)
			d.runner.triggerCompletion(d.ar, models.ReasonTimeout)
			return
		case <-ticker.C:
			if reason, fired := d.evaluate(); fired {
				d.runner.triggerCompletion(d.ar, reason)
				return
			}
		}
	}
}

// evaluate checks the scenario's success criteria against live metrics.
func (d *completionDetector) evaluate() (models.CompletionReason, bool) {
	ctx := context.Background()
	run, err := d.runner.repo.FindByID(ctx, d.ar.testID)
	if err != nil {
		slog.Warn("Criteria poll could not load run", "test_id", d.ar.testID, "error", err)
		return "", false
	}
	if run.Status.IsTerminal() {
		return "", false
	}

	criteria := d.ar.sc.SuccessCriteria
	m := run.Metrics

	if criteria.MinCooperativeActions != nil &&
		m.TargetActionCount >= *criteria.MinCooperativeActions &&
		(!criteria.RequiresDiscordCommunication || m.TargetMessageCount > 0) {
		return models.ReasonSuccess, true
	}

	if criteria.MinTasksCompleted != nil &&
		m.TargetActionCount >= 10**criteria.MinTasksCompleted {
		return models.ReasonSuccess, true
	}

	if criteria.MaxLLMErrorRate != nil && m.LLMDecisionCount > 10 {
		rate := float64(m.LLMErrorCount) / float64(m.LLMDecisionCount)
		if rate > *criteria.MaxLLMErrorRate {
			return models.ReasonAllAgentsFailed, true
		}
	}

	return "", false
}
