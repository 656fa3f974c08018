package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentoven/aigateway/pkg/models"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// SQLiteStore is an ExecutionStore backed by a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and runs schema
// migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Single connection: statements are serialized in-process.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", path).Msg("SQLite execution store initialized")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS executions (
    id               TEXT PRIMARY KEY,
    agent_id         TEXT NOT NULL,
    agent_name       TEXT NOT NULL DEFAULT '',
    provider         TEXT NOT NULL DEFAULT '',
    model            TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL,
    duration_ms      INTEGER NOT NULL DEFAULT 0,
    error_message    TEXT NOT NULL DEFAULT '',
    inputs_redacted  TEXT NOT NULL DEFAULT '{}',
    input_preview    TEXT NOT NULL DEFAULT '',
    output_full_text TEXT NOT NULL DEFAULT '',
    output_preview   TEXT NOT NULL DEFAULT '',
    output_mode      TEXT NOT NULL DEFAULT 'text',
    created_at       INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_executions_created ON executions (created_at);
CREATE INDEX IF NOT EXISTS idx_executions_agent ON executions (agent_id, created_at);
`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) CreateExecution(ctx context.Context, rec *models.ExecutionRecord) error {
	inputs, err := encodeInputs(rec.InputsRedacted)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO executions (id, agent_id, agent_name, provider, model, status, duration_ms, error_message,
    inputs_redacted, input_preview, output_full_text, output_preview, output_mode, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.AgentID, rec.AgentName, rec.Provider, rec.Model, string(rec.Status), rec.DurationMs,
		rec.ErrorMessage, inputs, rec.InputPreview, rec.OutputFullText, rec.OutputPreview,
		string(rec.OutputMode), rec.CreatedAt.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

const sqliteRecordColumns = `id, agent_id, agent_name, provider, model, status, duration_ms, error_message,
    inputs_redacted, input_preview, output_full_text, output_preview, output_mode, created_at`

func (s *SQLiteStore) GetExecution(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteRecordColumns+` FROM executions WHERE id = ?`, id)
	rec, err := scanSQLiteRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "execution", Key: id}
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) ListExecutions(ctx context.Context, filter models.ExecutionFilter) ([]models.ExecutionSummary, error) {
	filter = normalizeFilter(filter)

	var (
		where []string
		args  []any
	)
	if filter.AgentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, filter.AgentID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT id, agent_id, agent_name, provider, model, status, duration_ms, error_message,
    input_preview, output_preview, output_mode, created_at FROM executions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	result := []models.ExecutionSummary{}
	for rows.Next() {
		var (
			sum       models.ExecutionSummary
			status    string
			mode      string
			createdAt int64
		)
		if err := rows.Scan(&sum.ID, &sum.AgentID, &sum.AgentName, &sum.Provider, &sum.Model, &status,
			&sum.DurationMs, &sum.ErrorMessage, &sum.InputPreview, &sum.OutputPreview, &mode, &createdAt); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		sum.Status = models.ExecutionStatus(status)
		sum.OutputMode = models.OutputMode(mode)
		sum.CreatedAt = time.Unix(0, createdAt).UTC()
		result = append(result, sum)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) ListExecutionsBefore(ctx context.Context, cutoff time.Time) ([]models.ExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteRecordColumns+` FROM executions WHERE created_at < ? ORDER BY created_at ASC`,
		cutoff.UTC().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("list expired executions: %w", err)
	}
	defer rows.Close()

	var result []models.ExecutionRecord
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) DeleteExecutionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE created_at < ?`, cutoff.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete executions: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner) (*models.ExecutionRecord, error) {
	var (
		rec       models.ExecutionRecord
		status    string
		mode      string
		inputs    string
		createdAt int64
	)
	if err := row.Scan(&rec.ID, &rec.AgentID, &rec.AgentName, &rec.Provider, &rec.Model, &status,
		&rec.DurationMs, &rec.ErrorMessage, &inputs, &rec.InputPreview, &rec.OutputFullText,
		&rec.OutputPreview, &mode, &createdAt); err != nil {
		return nil, err
	}
	rec.Status = models.ExecutionStatus(status)
	rec.OutputMode = models.OutputMode(mode)
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	if err := json.Unmarshal([]byte(inputs), &rec.InputsRedacted); err != nil {
		return nil, fmt.Errorf("decode inputs: %w", err)
	}
	return &rec, nil
}

func encodeInputs(in map[string]string) (string, error) {
	if in == nil {
		in = map[string]string{}
	}
	b, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("encode inputs: %w", err)
	}
	return string(b), nil
}
