// Package storage provides the test-run repository with in-memory and
// PostgreSQL backends. The engine never knows which backend is active.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/zshan-dev/agent-arena/pkg/models"
)

// ErrNotFound is returned when a test run does not exist.
var ErrNotFound = errors.New("test run not found")

// ErrUnknownMetric is returned for metric field names outside the
// models.Metric* set.
var ErrUnknownMetric = errors.New("unknown metric field")

// Repository is the single authority for TestRun state.
//
// Counter fields are mutated only through IncrementMetric and
// UpdateMetricTimestamp; both must be free of lost-update races under
// concurrent writers. Structural fields (status, agent lists, channel IDs)
// go through Update, which is single-writer in practice — the runner owns it.
type Repository interface {
	Create(ctx context.Context, run *models.TestRun) error
	FindByID(ctx context.Context, testID string) (*models.TestRun, error)
	// FindAll returns runs matching the filters, sorted by createdAt descending.
	FindAll(ctx context.Context, filters models.TestRunFilters) ([]*models.TestRun, error)
	Update(ctx context.Context, run *models.TestRun) error
	Delete(ctx context.Context, testID string) error

	CreateActionLog(ctx context.Context, log *models.ActionLog) error
	// FindActionLogs returns the most recent logs for a run, newest first.
	FindActionLogs(ctx context.Context, testID string, limit int) ([]*models.ActionLog, error)

	Count(ctx context.Context) (int, error)
	Exists(ctx context.Context, testID string) (bool, error)
	// CountActive counts runs in initializing, coordination, or executing.
	CountActive(ctx context.Context) (int, error)

	// IncrementMetric atomically adds delta to a numeric metric field.
	IncrementMetric(ctx context.Context, testID, field string, delta int64) error
	// UpdateMetricTimestamp writes a metric timestamp field without reading
	// the rest of the record.
	UpdateMetricTimestamp(ctx context.Context, testID, field string, value time.Time) error
}

func validMetricField(field string) bool {
	switch field {
	case models.MetricLLMDecisionCount,
		models.MetricTargetActionCount,
		models.MetricTestingAgentActionCount,
		models.MetricTargetMessageCount,
		models.MetricTestingAgentMessageCount,
		models.MetricLLMErrorCount,
		models.MetricTotalLLMResponseTimeMs:
		return true
	}
	return false
}
