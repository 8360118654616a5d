package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/meridian-lending/recon-cli/internal/db"
	"github.com/meridian-lending/recon-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":        `INSERT INTO runs (id, loan, loan_id, mode, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"update_run_status": `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"save_run_report":   `UPDATE runs SET report = $1, status = $2, updated_at = $3 WHERE id = $4`,
	"get_run":           `SELECT id, loan, mode, status, report, created_at, updated_at FROM runs WHERE id = $1`,
	"insert_baseline":   `INSERT INTO fee_baselines (id, loan_id, source, lines, imported_at) VALUES ($1, $2, $3, $4, $5)`,
	"get_baseline":      `SELECT id, loan_id, source, lines, imported_at FROM fee_baselines WHERE loan_id = $1 ORDER BY imported_at DESC LIMIT 1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	loan       JSONB NOT NULL,
	loan_id    TEXT NOT NULL,
	mode       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	report     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS fee_baselines (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	loan_id     TEXT NOT NULL,
	source      TEXT NOT NULL,
	lines       JSONB NOT NULL,
	imported_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_loan_id ON runs(loan_id);
CREATE INDEX IF NOT EXISTS idx_fee_baselines_loan_id ON fee_baselines(loan_id, imported_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, loan model.Loan, mode model.Mode) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	loanJSON, err := json.Marshal(loan)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal loan")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, loan, loan_id, mode, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, loanJSON, loan.ID, string(mode), string(model.RunStatusPending), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Loan:      loan,
		Mode:      mode,
		Status:    model.RunStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

// SaveRunReport stores the report and moves the run to the report's
// terminal status in one statement.
func (s *PostgresStore) SaveRunReport(ctx context.Context, runID string, report *model.RunReport) error {
	if report == nil {
		return eris.New("postgres: nil report")
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal report")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET report = $1, status = $2, updated_at = $3 WHERE id = $4`,
		reportJSON, string(report.Status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save run report %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var loanJSON []byte
	var reportJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, loan, mode, status, report, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &loanJSON, &r.Mode, &r.Status, &reportJSON, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrRunNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if err := json.Unmarshal(loanJSON, &r.Loan); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal loan")
	}
	if len(reportJSON) > 0 {
		r.Report = &model.RunReport{}
		if err := json.Unmarshal(reportJSON, r.Report); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal report")
		}
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, loan, mode, status, report, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.LoanID != "" {
		query += fmt.Sprintf(` AND loan_id = $%d`, argIdx)
		args = append(args, filter.LoanID)
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at > $%d`, argIdx)
		args = append(args, filter.CreatedAfter.UTC())
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var loanJSON []byte
		var reportJSON []byte

		if err := rows.Scan(&r.ID, &loanJSON, &r.Mode, &r.Status, &reportJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if err := json.Unmarshal(loanJSON, &r.Loan); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal loan")
		}
		if len(reportJSON) > 0 {
			r.Report = &model.RunReport{}
			if err := json.Unmarshal(reportJSON, r.Report); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal report")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) SaveBaseline(ctx context.Context, loanID, source string, lines []model.FeeLine) (*model.FeeBaseline, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	linesJSON, err := json.Marshal(lines)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal baseline lines")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO fee_baselines (id, loan_id, source, lines, imported_at) VALUES ($1, $2, $3, $4, $5)`,
		id, loanID, source, linesJSON, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert baseline")
	}

	return &model.FeeBaseline{
		ID:         id,
		LoanID:     loanID,
		Source:     source,
		Lines:      lines,
		ImportedAt: now,
	}, nil
}

func (s *PostgresStore) GetBaseline(ctx context.Context, loanID string) (*model.FeeBaseline, error) {
	var fb model.FeeBaseline
	var linesJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, loan_id, source, lines, imported_at FROM fee_baselines
		 WHERE loan_id = $1
		 ORDER BY imported_at DESC LIMIT 1`,
		loanID,
	).Scan(&fb.ID, &fb.LoanID, &fb.Source, &linesJSON, &fb.ImportedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get baseline")
	}
	if err := json.Unmarshal(linesJSON, &fb.Lines); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal baseline lines")
	}
	return &fb, nil
}
