package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver for database/sql

	"github.com/zshan-dev/agent-arena/pkg/models"
)

//go:embed migrations
var migrationsFS embed.FS

// metricColumns maps metric field names to their counter columns. Only
// names in this map ever reach SQL.
var metricColumns = map[string]string{
	models.MetricLLMDecisionCount:         "llm_decision_count",
	models.MetricTargetActionCount:        "target_action_count",
	models.MetricTestingAgentActionCount:  "testing_agent_action_count",
	models.MetricTargetMessageCount:       "target_message_count",
	models.MetricTestingAgentMessageCount: "testing_agent_message_count",
	models.MetricLLMErrorCount:            "llm_error_count",
	models.MetricTotalLLMResponseTimeMs:   "total_llm_response_time_ms",
}

// PostgresRepository is the durable backend.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository connects to databaseURL, applies pending migrations,
// and returns the ready repository.
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &PostgresRepository{db: db}, nil
}

// NewPostgresRepositoryFromDB wraps an existing connection and applies
// migrations. Used by tests.
func NewPostgresRepositoryFromDB(db *sql.DB) (*PostgresRepository, error) {
	if err := runMigrations(db); err != nil {
		return nil, err
	}
	return &PostgresRepository{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

const runColumns = `test_id, scenario_type, status, target_llm_model,
	testing_agent_profiles, testing_agent_ids, target_agent_id, target_bot_id,
	discord_text_channel_id, discord_voice_channel_id, duration_seconds,
	created_at, started_at, ended_at, completion_reason, config,
	llm_decision_count, target_action_count, testing_agent_action_count,
	target_message_count, testing_agent_message_count, llm_error_count,
	total_llm_response_time_ms, last_llm_decision_at`

func (r *PostgresRepository) Create(ctx context.Context, run *models.TestRun) error {
	profiles, err := json.Marshal(run.TestingAgentProfiles)
	if err != nil {
		return fmt.Errorf("failed to encode profiles: %w", err)
	}
	agentIDs, err := json.Marshal(run.TestingAgentIDs)
	if err != nil {
		return fmt.Errorf("failed to encode agent ids: %w", err)
	}
	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO test_runs (
			test_id, scenario_type, status, target_llm_model,
			testing_agent_profiles, testing_agent_ids, target_agent_id, target_bot_id,
			discord_text_channel_id, discord_voice_channel_id, duration_seconds,
			created_at, started_at, ended_at, completion_reason, config
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		run.TestID, run.ScenarioType, run.Status, run.TargetLLMModel,
		profiles, agentIDs, run.TargetAgentID, run.TargetBotID,
		run.DiscordTextChannelID, run.DiscordVoiceChannelID, run.DurationSeconds,
		run.CreatedAt, run.StartedAt, run.EndedAt, nullableReason(run.CompletionReason), cfg,
	)
	if err != nil {
		return fmt.Errorf("failed to insert test run: %w", err)
	}
	return nil
}

func nullableReason(r *models.CompletionReason) any {
	if r == nil {
		return nil
	}
	return string(*r)
}

func scanRun(row interface{ Scan(...any) error }) (*models.TestRun, error) {
	var (
		run       models.TestRun
		profiles  []byte
		agentIDs  []byte
		cfg       []byte
		startedAt sql.NullTime
		endedAt   sql.NullTime
		reason    sql.NullString
		lastLLMAt sql.NullTime
	)
	err := row.Scan(
		&run.TestID, &run.ScenarioType, &run.Status, &run.TargetLLMModel,
		&profiles, &agentIDs, &run.TargetAgentID, &run.TargetBotID,
		&run.DiscordTextChannelID, &run.DiscordVoiceChannelID, &run.DurationSeconds,
		&run.CreatedAt, &startedAt, &endedAt, &reason, &cfg,
		&run.Metrics.LLMDecisionCount, &run.Metrics.TargetActionCount,
		&run.Metrics.TestingAgentActionCount, &run.Metrics.TargetMessageCount,
		&run.Metrics.TestingAgentMessageCount, &run.Metrics.LLMErrorCount,
		&run.Metrics.TotalLLMResponseTimeMs, &lastLLMAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan test run: %w", err)
	}
	if err := json.Unmarshal(profiles, &run.TestingAgentProfiles); err != nil {
		return nil, fmt.Errorf("failed to decode profiles: %w", err)
	}
	if err := json.Unmarshal(agentIDs, &run.TestingAgentIDs); err != nil {
		return nil, fmt.Errorf("failed to decode agent ids: %w", err)
	}
	if err := json.Unmarshal(cfg, &run.Config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if startedAt.Valid {
		t := startedAt.Time
		run.StartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time
		run.EndedAt = &t
	}
	if reason.Valid {
		cr := models.CompletionReason(reason.String)
		run.CompletionReason = &cr
	}
	if lastLLMAt.Valid {
		t := lastLLMAt.Time
		run.Metrics.LastLLMDecisionAt = &t
	}
	return &run, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, testID string) (*models.TestRun, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM test_runs WHERE test_id = $1`, testID)
	return scanRun(row)
}

func (r *PostgresRepository) FindAll(ctx context.Context, filters models.TestRunFilters) ([]*models.TestRun, error) {
	query := `SELECT ` + runColumns + ` FROM test_runs WHERE 1=1`
	args := []any{}
	if filters.Status != "" {
		args = append(args, filters.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filters.ScenarioType != "" {
		args = append(args, filters.ScenarioType)
		query += fmt.Sprintf(" AND scenario_type = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list test runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.TestRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *PostgresRepository) Update(ctx context.Context, run *models.TestRun) error {
	profiles, err := json.Marshal(run.TestingAgentProfiles)
	if err != nil {
		return fmt.Errorf("failed to encode profiles: %w", err)
	}
	agentIDs, err := json.Marshal(run.TestingAgentIDs)
	if err != nil {
		return fmt.Errorf("failed to encode agent ids: %w", err)
	}
	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// Structural fields only — counter columns are owned by IncrementMetric.
	res, err := r.db.ExecContext(ctx, `
		UPDATE test_runs SET
			scenario_type = $2, status = $3, target_llm_model = $4,
			testing_agent_profiles = $5, testing_agent_ids = $6,
			target_agent_id = $7, target_bot_id = $8,
			discord_text_channel_id = $9, discord_voice_channel_id = $10,
			duration_seconds = $11, started_at = $12, ended_at = $13,
			completion_reason = $14, config = $15
		WHERE test_id = $1`,
		run.TestID, run.ScenarioType, run.Status, run.TargetLLMModel,
		profiles, agentIDs, run.TargetAgentID, run.TargetBotID,
		run.DiscordTextChannelID, run.DiscordVoiceChannelID,
		run.DurationSeconds, run.StartedAt, run.EndedAt,
		nullableReason(run.CompletionReason), cfg,
	)
	if err != nil {
		return fmt.Errorf("failed to update test run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, testID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM test_runs WHERE test_id = $1`, testID)
	if err != nil {
		return fmt.Errorf("failed to delete test run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) CreateActionLog(ctx context.Context, log *models.ActionLog) error {
	var metadata []byte
	if log.Metadata != nil {
		var err error
		metadata, err = json.Marshal(log.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode log metadata: %w", err)
		}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO action_logs (log_id, test_id, source_agent_id, source_type,
			action_category, action_detail, created_at, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		log.LogID, log.TestID, log.SourceAgentID, log.SourceType,
		log.ActionCategory, log.ActionDetail, log.Timestamp, metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to insert action log: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindActionLogs(ctx context.Context, testID string, limit int) ([]*models.ActionLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT log_id, test_id, source_agent_id, source_type, action_category,
			action_detail, created_at, metadata
		FROM action_logs WHERE test_id = $1
		ORDER BY created_at DESC LIMIT $2`, testID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list action logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.ActionLog
	for rows.Next() {
		var (
			log      models.ActionLog
			metadata []byte
		)
		if err := rows.Scan(&log.LogID, &log.TestID, &log.SourceAgentID,
			&log.SourceType, &log.ActionCategory, &log.ActionDetail,
			&log.Timestamp, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan action log: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &log.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode log metadata: %w", err)
			}
		}
		logs = append(logs, &log)
	}
	return logs, rows.Err()
}

func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM test_runs`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count test runs: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) Exists(ctx context.Context, testID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM test_runs WHERE test_id = $1)`, testID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check test run existence: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM test_runs
		WHERE status IN ('initializing', 'coordination', 'executing')`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active test runs: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) IncrementMetric(ctx context.Context, testID, field string, delta int64) error {
	column, ok := metricColumns[field]
	if !ok {
		return ErrUnknownMetric
	}
	// Arithmetic UPDATE: the read-modify-write happens inside the database,
	// so concurrent writers cannot lose updates.
	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE test_runs SET %s = %s + $1 WHERE test_id = $2`, column, column),
		delta, testID)
	if err != nil {
		return fmt.Errorf("failed to increment %s: %w", field, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) UpdateMetricTimestamp(ctx context.Context, testID, field string, value time.Time) error {
	if field != models.MetricLastLLMDecisionAt {
		return ErrUnknownMetric
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE test_runs SET last_llm_decision_at = $1 WHERE test_id = $2`,
		value, testID)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", field, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
