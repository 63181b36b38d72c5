package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zshan-dev/agent-arena/pkg/models"
)

// MemoryRepository is the map-backed store. Runs live for the process
// lifetime only; a restart loses active tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	runs map[string]*memoryRun
}

// memoryRun pairs a run with its own lock so metric increments on one run
// never contend with another run's writers.
type memoryRun struct {
	mu   sync.Mutex
	run  *models.TestRun
	logs []*models.ActionLog
}

// NewMemoryRepository creates an empty in-memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{runs: make(map[string]*memoryRun)}
}

func (r *MemoryRepository) Create(_ context.Context, run *models.TestRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.TestID] = &memoryRun{run: run.Clone()}
	return nil
}

func (r *MemoryRepository) get(testID string) (*memoryRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.runs[testID]
	if !ok {
		return nil, ErrNotFound
	}
	return entry, nil
}

func (r *MemoryRepository) FindByID(_ context.Context, testID string) (*models.TestRun, error) {
	entry, err := r.get(testID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.run.Clone(), nil
}

func (r *MemoryRepository) FindAll(_ context.Context, filters models.TestRunFilters) ([]*models.TestRun, error) {
	r.mu.RLock()
	entries := make([]*memoryRun, 0, len(r.runs))
	for _, entry := range r.runs {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	runs := make([]*models.TestRun, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		run := entry.run.Clone()
		entry.mu.Unlock()
		if filters.Status != "" && run.Status != filters.Status {
			continue
		}
		if filters.ScenarioType != "" && run.ScenarioType != filters.ScenarioType {
			continue
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

func (r *MemoryRepository) Update(_ context.Context, run *models.TestRun) error {
	entry, err := r.get(run.TestID)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	// Counters may have advanced since the caller read the run; keep the
	// stored counters and merge only the structural fields.
	metrics := entry.run.Metrics
	entry.run = run.Clone()
	entry.run.Metrics = metrics
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, testID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[testID]; !ok {
		return ErrNotFound
	}
	delete(r.runs, testID)
	return nil
}

func (r *MemoryRepository) CreateActionLog(_ context.Context, log *models.ActionLog) error {
	entry, err := r.get(log.TestID)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	cp := *log
	entry.logs = append(entry.logs, &cp)
	return nil
}

func (r *MemoryRepository) FindActionLogs(_ context.Context, testID string, limit int) ([]*models.ActionLog, error) {
	entry, err := r.get(testID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	n := len(entry.logs)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*models.ActionLog, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		cp := *entry.logs[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (r *MemoryRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs), nil
}

func (r *MemoryRepository) Exists(_ context.Context, testID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.runs[testID]
	return ok, nil
}

func (r *MemoryRepository) CountActive(_ context.Context) (int, error) {
	r.mu.RLock()
	entries := make([]*memoryRun, 0, len(r.runs))
	for _, entry := range r.runs {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	count := 0
	for _, entry := range entries {
		entry.mu.Lock()
		if entry.run.Status.IsActive() {
			count++
		}
		entry.mu.Unlock()
	}
	return count, nil
}

func (r *MemoryRepository) IncrementMetric(_ context.Context, testID, field string, delta int64) error {
	if !validMetricField(field) {
		return ErrUnknownMetric
	}
	entry, err := r.get(testID)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	m := &entry.run.Metrics
	switch field {
	case models.MetricLLMDecisionCount:
		m.LLMDecisionCount += delta
	case models.MetricTargetActionCount:
		m.TargetActionCount += delta
	case models.MetricTestingAgentActionCount:
		m.TestingAgentActionCount += delta
	case models.MetricTargetMessageCount:
		m.TargetMessageCount += delta
	case models.MetricTestingAgentMessageCount:
		m.TestingAgentMessageCount += delta
	case models.MetricLLMErrorCount:
		m.LLMErrorCount += delta
	case models.MetricTotalLLMResponseTimeMs:
		m.TotalLLMResponseTimeMs += delta
	}
	return nil
}

func (r *MemoryRepository) UpdateMetricTimestamp(_ context.Context, testID, field string, value time.Time) error {
	if field != models.MetricLastLLMDecisionAt {
		return ErrUnknownMetric
	}
	entry, err := r.get(testID)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	v := value
	entry.run.Metrics.LastLLMDecisionAt = &v
	return nil
}
