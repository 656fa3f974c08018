package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agentoven/aigateway/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PostgresStore is an ExecutionStore backed by PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to connURL and creates the executions table if
// needed.
func NewPostgresStore(ctx context.Context, connURL string, maxConns int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres parse config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}

	log.Info().Str("host", cfg.ConnConfig.Host).Str("database", cfg.ConnConfig.Database).
		Msg("PostgreSQL execution store initialized")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS ai_executions (
			id               TEXT PRIMARY KEY,
			agent_id         TEXT NOT NULL,
			agent_name       TEXT NOT NULL DEFAULT '',
			provider         TEXT NOT NULL DEFAULT '',
			model            TEXT NOT NULL DEFAULT '',
			status           TEXT NOT NULL,
			duration_ms      BIGINT NOT NULL DEFAULT 0,
			error_message    TEXT NOT NULL DEFAULT '',
			inputs_redacted  JSONB NOT NULL DEFAULT '{}',
			input_preview    TEXT NOT NULL DEFAULT '',
			output_full_text TEXT NOT NULL DEFAULT '',
			output_preview   TEXT NOT NULL DEFAULT '',
			output_mode      TEXT NOT NULL DEFAULT 'text',
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_ai_executions_created ON ai_executions (created_at);
		CREATE INDEX IF NOT EXISTS idx_ai_executions_agent ON ai_executions (agent_id, created_at);
	`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateExecution(ctx context.Context, rec *models.ExecutionRecord) error {
	inputs := rec.InputsRedacted
	if inputs == nil {
		inputs = map[string]string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ai_executions (id, agent_id, agent_name, provider, model, status, duration_ms, error_message,
			inputs_redacted, input_preview, output_full_text, output_preview, output_mode, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rec.ID, rec.AgentID, rec.AgentName, rec.Provider, rec.Model, string(rec.Status), rec.DurationMs,
		rec.ErrorMessage, inputs, rec.InputPreview, rec.OutputFullText, rec.OutputPreview,
		string(rec.OutputMode), rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

const pgRecordColumns = `id, agent_id, agent_name, provider, model, status, duration_ms, error_message,
	inputs_redacted, input_preview, output_full_text, output_preview, output_mode, created_at`

func (s *PostgresStore) GetExecution(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgRecordColumns+` FROM ai_executions WHERE id = $1`, id)
	rec, err := scanPgRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "execution", Key: id}
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *PostgresStore) ListExecutions(ctx context.Context, filter models.ExecutionFilter) ([]models.ExecutionSummary, error) {
	filter = normalizeFilter(filter)

	var (
		where []string
		args  []any
	)
	if filter.AgentID != "" {
		args = append(args, filter.AgentID)
		where = append(where, fmt.Sprintf("agent_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT id, agent_id, agent_name, provider, model, status, duration_ms, error_message,
		input_preview, output_preview, output_mode, created_at FROM ai_executions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	result := []models.ExecutionSummary{}
	for rows.Next() {
		var (
			sum    models.ExecutionSummary
			status string
			mode   string
		)
		if err := rows.Scan(&sum.ID, &sum.AgentID, &sum.AgentName, &sum.Provider, &sum.Model, &status,
			&sum.DurationMs, &sum.ErrorMessage, &sum.InputPreview, &sum.OutputPreview, &mode, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		sum.Status = models.ExecutionStatus(status)
		sum.OutputMode = models.OutputMode(mode)
		sum.CreatedAt = sum.CreatedAt.UTC()
		result = append(result, sum)
	}
	return result, rows.Err()
}

func (s *PostgresStore) ListExecutionsBefore(ctx context.Context, cutoff time.Time) ([]models.ExecutionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgRecordColumns+` FROM ai_executions WHERE created_at < $1 ORDER BY created_at ASC`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("list expired executions: %w", err)
	}
	defer rows.Close()

	var result []models.ExecutionRecord
	for rows.Next() {
		rec, err := scanPgRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	return result, rows.Err()
}

func (s *PostgresStore) DeleteExecutionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ai_executions WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete executions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanPgRecord(row pgx.Row) (*models.ExecutionRecord, error) {
	var (
		rec    models.ExecutionRecord
		status string
		mode   string
	)
	if err := row.Scan(&rec.ID, &rec.AgentID, &rec.AgentName, &rec.Provider, &rec.Model, &status,
		&rec.DurationMs, &rec.ErrorMessage, &rec.InputsRedacted, &rec.InputPreview, &rec.OutputFullText,
		&rec.OutputPreview, &mode, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Status = models.ExecutionStatus(status)
	rec.OutputMode = models.OutputMode(mode)
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}
