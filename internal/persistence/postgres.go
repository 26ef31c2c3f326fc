package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crypto-trading/impactcurve/internal/domain"
)

// PostgresStore mirrors the SQLite ledger into a shared database so runs
// from several instances can be compared. A nil store ignores writes.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresStore(ctx context.Context, dsn string, poolSize int, logger *slog.Logger) (*PostgresStore, error) {
	if dsn == "" {
		logger.Warn("no PostgreSQL DSN configured, cold store disabled")
		return nil, nil
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pg config: %w", err)
	}

	if poolSize > 0 {
		config.MaxConns = int32(poolSize)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresStore{pool: pool, logger: logger}
	return store, nil
}

func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sweep_runs (
			run_id UUID PRIMARY KEY,
			source VARCHAR(32) NOT NULL,
			strategy VARCHAR(32) NOT NULL,
			total INTEGER NOT NULL,
			succeeded INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS evaluation_reports (
			id UUID PRIMARY KEY,
			run_id UUID NOT NULL,
			source VARCHAR(32) NOT NULL,
			strategy VARCHAR(32) NOT NULL,
			spacing VARCHAR(16) NOT NULL,
			token_in VARCHAR(128) NOT NULL,
			token_out VARCHAR(128) NOT NULL,
			min_amount DOUBLE PRECISION NOT NULL,
			max_amount DOUBLE PRECISION NOT NULL,
			data_points INTEGER NOT NULL,
			offsets_pct DOUBLE PRECISION[] NOT NULL,
			test_points INTEGER NOT NULL,
			quotes_failed INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			compared INTEGER NOT NULL,
			max_error_pct DOUBLE PRECISION NOT NULL,
			mean_error_pct DOUBLE PRECISION NOT NULL,
			below_threshold INTEGER NOT NULL,
			threshold_pct DOUBLE PRECISION NOT NULL,
			max_impact_bps DOUBLE PRECISION NOT NULL DEFAULT 0,
			status VARCHAR(16) NOT NULL,
			failure_reason TEXT NOT NULL DEFAULT '',
			duration_ms BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_evaluation_reports_run ON evaluation_reports (run_id)`,
		`CREATE TABLE IF NOT EXISTS consistency_reports (
			id UUID PRIMARY KEY,
			source VARCHAR(32) NOT NULL,
			token_in VARCHAR(128) NOT NULL,
			token_out VARCHAR(128) NOT NULL,
			points INTEGER NOT NULL,
			iterations JSONB NOT NULL,
			max_variation_pct DOUBLE PRECISION NOT NULL,
			avg_variation_pct DOUBLE PRECISION NOT NULL,
			verdict VARCHAR(32) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	s.logger.Info("PostgreSQL migrations completed")
	return nil
}

func (s *PostgresStore) WriteSweepRun(ctx context.Context, run domain.SweepRun) error {
	if s == nil || s.pool == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sweep_runs (run_id, source, strategy, total, succeeded, failed, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id) DO UPDATE SET
			total = EXCLUDED.total, succeeded = EXCLUDED.succeeded,
			failed = EXCLUDED.failed, finished_at = EXCLUDED.finished_at`,
		run.RunID.String(), run.Source, string(run.Strategy),
		run.Total, run.Succeeded, run.Failed, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sweep run: %w", err)
	}
	s.logger.Debug("sweep run written to cold store", "run_id", run.RunID)
	return nil
}

func (s *PostgresStore) WriteEvaluation(ctx context.Context, r domain.EvaluationReport) error {
	if s == nil || s.pool == nil {
		return nil
	}
	offsets := r.OffsetsPct
	if offsets == nil {
		offsets = []float64{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO evaluation_reports
			(id, run_id, source, strategy, spacing, token_in, token_out,
			 min_amount, max_amount, data_points, offsets_pct, test_points,
			 quotes_failed, skipped, compared, max_error_pct, mean_error_pct,
			 below_threshold, threshold_pct, max_impact_bps, status, failure_reason, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
		r.ID.String(), r.RunID.String(), r.Source, string(r.Strategy), string(r.Spacing),
		r.Pair.TokenIn, r.Pair.TokenOut,
		r.MinAmount, r.MaxAmount, r.DataPoints, offsets, r.TestPoints,
		r.QuotesFailed, r.Skipped, r.Compared, r.MaxErrorPct, r.MeanErrorPct,
		r.BelowThreshold, r.ThresholdPct, r.MaxImpactBps, string(r.Status), r.FailureReason,
		r.Duration.Milliseconds(), r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert evaluation report: %w", err)
	}
	s.logger.Debug("evaluation written to cold store", "id", r.ID)
	return nil
}

func (s *PostgresStore) WriteConsistency(ctx context.Context, r domain.ConsistencyReport) error {
	if s == nil || s.pool == nil {
		return nil
	}
	iterations, err := json.Marshal(r.Iterations)
	if err != nil {
		return fmt.Errorf("marshal iterations: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO consistency_reports
			(id, source, token_in, token_out, points, iterations,
			 max_variation_pct, avg_variation_pct, verdict, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10)`,
		r.ID.String(), r.Source, r.Pair.TokenIn, r.Pair.TokenOut, r.Points, string(iterations),
		r.MaxVariationPct, r.AvgVariationPct, string(r.Verdict), r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert consistency report: %w", err)
	}
	s.logger.Debug("consistency report written to cold store", "id", r.ID)
	return nil
}

// RunStats returns the number of stored evaluations of a run and the mean of
// their mean errors over successful ones.
func (s *PostgresStore) RunStats(ctx context.Context, runID uuid.UUID) (count int, meanErrorPct float64, err error) {
	if s == nil || s.pool == nil {
		return 0, 0, nil
	}
	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(AVG(mean_error_pct) FILTER (WHERE status = 'OK'), 0)
		FROM evaluation_reports WHERE run_id = $1`,
		runID.String(),
	).Scan(&count, &meanErrorPct)
	if err != nil {
		return 0, 0, fmt.Errorf("query run stats: %w", err)
	}
	return count, meanErrorPct, nil
}

func (s *PostgresStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}
