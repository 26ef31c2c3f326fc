package persistence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/crypto-trading/impactcurve/internal/domain"
)

type WriteType int

const (
	WriteTypeEvaluation WriteType = iota
	WriteTypeConsistency
	WriteTypeSweepRun
)

func (t WriteType) String() string {
	switch t {
	case WriteTypeEvaluation:
		return "evaluation"
	case WriteTypeConsistency:
		return "consistency"
	case WriteTypeSweepRun:
		return "sweep_run"
	default:
		return "unknown"
	}
}

type WriteRequest struct {
	Type    WriteType
	Payload any
}

const coldStoreTimeout = 5 * time.Second

// AsyncWriter moves store writes off the sweep path. Evaluation and
// consistency summaries are dropped when the buffer is full; sweep run
// records go through a separate channel and are never dropped.
type AsyncWriter struct {
	writeCh       chan WriteRequest
	runCh         chan WriteRequest
	sqliteStore   *SQLiteStore
	postgresStore *PostgresStore
	logger        *slog.Logger
	wg            sync.WaitGroup
	stopOnce      sync.Once
}

func NewAsyncWriter(
	sqliteStore *SQLiteStore,
	postgresStore *PostgresStore,
	bufferSize int,
	logger *slog.Logger,
) *AsyncWriter {
	return &AsyncWriter{
		writeCh:       make(chan WriteRequest, bufferSize),
		runCh:         make(chan WriteRequest, 100),
		sqliteStore:   sqliteStore,
		postgresStore: postgresStore,
		logger:        logger,
	}
}

func (w *AsyncWriter) Write(req WriteRequest) {
	if req.Type == WriteTypeSweepRun {
		w.runCh <- req
		return
	}

	select {
	case w.writeCh <- req:
	default:
		w.logger.Warn("write channel full, dropping summary write",
			"type", req.Type.String())
	}
}

func (w *AsyncWriter) Run() {
	w.wg.Add(2)
	go w.process(w.writeCh)
	go w.process(w.runCh)
}

func (w *AsyncWriter) process(ch <-chan WriteRequest) {
	defer w.wg.Done()
	for req := range ch {
		w.handleWrite(req)
	}
}

func (w *AsyncWriter) handleWrite(req WriteRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), coldStoreTimeout)
	defer cancel()

	switch p := req.Payload.(type) {
	case domain.EvaluationReport:
		if w.sqliteStore != nil {
			if err := w.sqliteStore.WriteEvaluation(p); err != nil {
				w.logger.Error("failed to write evaluation", "error", err, "id", p.ID)
			}
		}
		if err := w.postgresStore.WriteEvaluation(ctx, p); err != nil {
			w.logger.Error("failed to mirror evaluation", "error", err, "id", p.ID)
		}
	case domain.ConsistencyReport:
		if w.sqliteStore != nil {
			if err := w.sqliteStore.WriteConsistency(p); err != nil {
				w.logger.Error("failed to write consistency report", "error", err, "id", p.ID)
			}
		}
		if err := w.postgresStore.WriteConsistency(ctx, p); err != nil {
			w.logger.Error("failed to mirror consistency report", "error", err, "id", p.ID)
		}
	case domain.SweepRun:
		if w.sqliteStore != nil {
			if err := w.sqliteStore.WriteSweepRun(p); err != nil {
				w.logger.Error("failed to write sweep run", "error", err, "run_id", p.RunID)
			}
		}
		if err := w.postgresStore.WriteSweepRun(ctx, p); err != nil {
			w.logger.Error("failed to mirror sweep run", "error", err, "run_id", p.RunID)
		}
	default:
		w.logger.Warn("unknown write payload", "type", req.Type.String())
	}
}

// Stop closes the queues and waits for pending writes to drain.
func (w *AsyncWriter) Stop() {
	w.stopOnce.Do(func() {
		close(w.writeCh)
		close(w.runCh)
	})
	w.wg.Wait()
}
