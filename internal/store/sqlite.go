package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/meridian-lending/recon-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	loan       TEXT NOT NULL,
	loan_id    TEXT NOT NULL,
	mode       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	report     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS fee_baselines (
	id          TEXT PRIMARY KEY,
	loan_id     TEXT NOT NULL,
	source      TEXT NOT NULL,
	lines       TEXT NOT NULL,
	imported_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_loan_id ON runs(loan_id);
CREATE INDEX IF NOT EXISTS idx_fee_baselines_loan_id ON fee_baselines(loan_id, imported_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, loan model.Loan, mode model.Mode) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	loanJSON, err := json.Marshal(loan)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal loan")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, loan, loan_id, mode, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, string(loanJSON), loan.ID, string(mode), string(model.RunStatusPending), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

// SaveRunReport stores the report and moves the run to the report's
// terminal status in one statement.
func (s *SQLiteStore) SaveRunReport(ctx context.Context, runID string, report *model.RunReport) error {
	if report == nil {
		return eris.New("sqlite: nil report")
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal report")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET report = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(reportJSON), string(report.Status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save run report %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, loan, mode, status, report, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	run, err := scanRun(row)
	return run, eris.Wrapf(err, "sqlite: get run %s", runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, loan, mode, status, report, created_at, updated_at FROM runs WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.LoanID != "" {
		query += ` AND loan_id = ?`
		args = append(args, filter.LoanID)
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at > ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	// rowid breaks ties between runs created in the same instant.
	query += ` ORDER BY created_at DESC, rowid DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveBaseline(ctx context.Context, loanID, source string, lines []model.FeeLine) (*model.FeeBaseline, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	linesJSON, err := json.Marshal(lines)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal baseline lines")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO fee_baselines (id, loan_id, source, lines, imported_at) VALUES (?, ?, ?, ?, ?)`,
		id, loanID, source, string(linesJSON), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert baseline")
	}

	return &model.FeeBaseline{
		ID:         id,
		LoanID:     loanID,
		Source:     source,
		Lines:      lines,
		ImportedAt: now,
	}, nil
}

func (s *SQLiteStore) GetBaseline(ctx context.Context, loanID string) (*model.FeeBaseline, error) {
	var fb model.FeeBaseline
	var linesJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, loan_id, source, lines, imported_at FROM fee_baselines
		 WHERE loan_id = ?
		 ORDER BY imported_at DESC, rowid DESC LIMIT 1`,
		loanID,
	).Scan(&fb.ID, &fb.LoanID, &fb.Source, &linesJSON, &fb.ImportedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get baseline")
	}
	if err := json.Unmarshal([]byte(linesJSON), &fb.Lines); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal baseline lines")
	}
	return &fb, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var loanJSON string
	var reportJSON sql.NullString

	err := row.Scan(&r.ID, &loanJSON, &r.Mode, &r.Status, &reportJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(loanJSON), &r.Loan); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal loan")
	}
	if reportJSON.Valid {
		r.Report = &model.RunReport{}
		if err := json.Unmarshal([]byte(reportJSON.String), r.Report); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal report")
		}
	}
	return &r, nil
}
