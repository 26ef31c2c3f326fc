package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/crypto-trading/impactcurve/internal/domain"
)

// SQLiteStore is the local ledger of sweep runs, evaluation summaries and
// consistency probes. No per-point quote data is stored.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sweep_runs (
			run_id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			strategy TEXT NOT NULL,
			total INTEGER NOT NULL,
			succeeded INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS evaluation_reports (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			source TEXT NOT NULL,
			strategy TEXT NOT NULL,
			spacing TEXT NOT NULL,
			token_in TEXT NOT NULL,
			token_out TEXT NOT NULL,
			min_amount REAL NOT NULL,
			max_amount REAL NOT NULL,
			data_points INTEGER NOT NULL,
			offsets_json TEXT NOT NULL,
			test_points INTEGER NOT NULL,
			quotes_failed INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			compared INTEGER NOT NULL,
			max_error_pct REAL NOT NULL,
			mean_error_pct REAL NOT NULL,
			below_threshold INTEGER NOT NULL,
			threshold_pct REAL NOT NULL,
			max_impact_bps REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			failure_reason TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_evaluation_reports_run ON evaluation_reports (run_id)`,
		`CREATE TABLE IF NOT EXISTS consistency_reports (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			token_in TEXT NOT NULL,
			token_out TEXT NOT NULL,
			points INTEGER NOT NULL,
			iterations_json TEXT NOT NULL,
			max_variation_pct REAL NOT NULL,
			avg_variation_pct REAL NOT NULL,
			verdict TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) WriteSweepRun(run domain.SweepRun) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO sweep_runs
			(run_id, source, strategy, total, succeeded, failed, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID.String(), run.Source, string(run.Strategy),
		run.Total, run.Succeeded, run.Failed,
		run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	return err
}

func (s *SQLiteStore) WriteEvaluation(r domain.EvaluationReport) error {
	offsets, err := json.Marshal(r.OffsetsPct)
	if err != nil {
		return fmt.Errorf("marshal offsets: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO evaluation_reports
			(id, run_id, source, strategy, spacing, token_in, token_out,
			 min_amount, max_amount, data_points, offsets_json, test_points,
			 quotes_failed, skipped, compared, max_error_pct, mean_error_pct,
			 below_threshold, threshold_pct, max_impact_bps, status, failure_reason, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.RunID.String(), r.Source, string(r.Strategy), string(r.Spacing),
		r.Pair.TokenIn, r.Pair.TokenOut,
		r.MinAmount, r.MaxAmount, r.DataPoints, string(offsets), r.TestPoints,
		r.QuotesFailed, r.Skipped, r.Compared, r.MaxErrorPct, r.MeanErrorPct,
		r.BelowThreshold, r.ThresholdPct, r.MaxImpactBps, string(r.Status), r.FailureReason,
		r.Duration.Milliseconds(), r.CreatedAt.UTC(),
	)
	return err
}

func (s *SQLiteStore) WriteConsistency(r domain.ConsistencyReport) error {
	iterations, err := json.Marshal(r.Iterations)
	if err != nil {
		return fmt.Errorf("marshal iterations: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO consistency_reports
			(id, source, token_in, token_out, points, iterations_json,
			 max_variation_pct, avg_variation_pct, verdict, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.Source, r.Pair.TokenIn, r.Pair.TokenOut, r.Points, string(iterations),
		r.MaxVariationPct, r.AvgVariationPct, string(r.Verdict), r.CreatedAt.UTC(),
	)
	return err
}

// EvaluationsByRun returns the stored summaries of one sweep run, oldest first.
func (s *SQLiteStore) EvaluationsByRun(runID uuid.UUID) ([]domain.EvaluationReport, error) {
	rows, err := s.db.Query(
		`SELECT id, source, strategy, spacing, token_in, token_out, min_amount, max_amount,
			data_points, offsets_json, test_points, quotes_failed, skipped, compared,
			max_error_pct, mean_error_pct, below_threshold, threshold_pct, max_impact_bps, status,
			failure_reason, duration_ms, created_at
		FROM evaluation_reports WHERE run_id = ? ORDER BY created_at, rowid`,
		runID.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []domain.EvaluationReport
	for rows.Next() {
		var (
			r          domain.EvaluationReport
			id         string
			offsets    string
			durationMs int64
		)
		err := rows.Scan(&id, &r.Source, &r.Strategy, &r.Spacing, &r.Pair.TokenIn, &r.Pair.TokenOut,
			&r.MinAmount, &r.MaxAmount, &r.DataPoints, &offsets, &r.TestPoints, &r.QuotesFailed,
			&r.Skipped, &r.Compared, &r.MaxErrorPct, &r.MeanErrorPct, &r.BelowThreshold,
			&r.ThresholdPct, &r.MaxImpactBps, &r.Status, &r.FailureReason, &durationMs, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan evaluation report: %w", err)
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse report id: %w", err)
		}
		if err := json.Unmarshal([]byte(offsets), &r.OffsetsPct); err != nil {
			return nil, fmt.Errorf("unmarshal offsets: %w", err)
		}
		r.RunID = runID
		r.Duration = time.Duration(durationMs) * time.Millisecond
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func (s *SQLiteStore) LatestConsistency(pair domain.TokenPair) (*domain.ConsistencyReport, error) {
	var (
		r          domain.ConsistencyReport
		id         string
		iterations string
	)
	err := s.db.QueryRow(
		`SELECT id, source, points, iterations_json, max_variation_pct, avg_variation_pct, verdict, created_at
		FROM consistency_reports WHERE token_in = ? AND token_out = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		pair.TokenIn, pair.TokenOut,
	).Scan(&id, &r.Source, &r.Points, &iterations, &r.MaxVariationPct, &r.AvgVariationPct, &r.Verdict, &r.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if r.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse report id: %w", err)
	}
	if err := json.Unmarshal([]byte(iterations), &r.Iterations); err != nil {
		return nil, fmt.Errorf("unmarshal iterations: %w", err)
	}
	r.Pair = pair
	return &r, nil
}

func (s *SQLiteStore) CleanupOlderThan(maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge).UTC()
	for _, table := range []string{"evaluation_reports", "consistency_reports"} {
		if _, err := s.db.Exec("DELETE FROM "+table+" WHERE created_at < ?", cutoff); err != nil {
			return fmt.Errorf("cleanup %s: %w", table, err)
		}
	}
	_, err := s.db.Exec("DELETE FROM sweep_runs WHERE finished_at < ?", cutoff)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
