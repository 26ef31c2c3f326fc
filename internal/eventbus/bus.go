package eventbus

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/crypto-trading/impactcurve/internal/domain"
)

type EventBus struct {
	mu sync.RWMutex

	evaluationSubs  []chan domain.EvaluationReport
	consistencySubs []chan domain.ConsistencyReport

	droppedEvaluations atomic.Uint64
	droppedConsistency atomic.Uint64

	closed     bool
	bufferSize int
	logger     *slog.Logger
}

func New(bufferSize int, logger *slog.Logger) *EventBus {
	return &EventBus{
		bufferSize: bufferSize,
		logger:     logger,
	}
}

func (eb *EventBus) SubscribeEvaluation() <-chan domain.EvaluationReport {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	ch := make(chan domain.EvaluationReport, eb.bufferSize)
	eb.evaluationSubs = append(eb.evaluationSubs, ch)
	return ch
}

// PublishEvaluation never blocks: a subscriber whose buffer is full misses
// the report, and the drop is counted in Dropped.
func (eb *EventBus) PublishEvaluation(report domain.EvaluationReport) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return
	}
	for _, ch := range eb.evaluationSubs {
		select {
		case ch <- report:
		default:
			eb.droppedEvaluations.Add(1)
			eb.logger.Warn("evaluation subscriber channel full, dropping event",
				"pair", report.Pair.String(), "run_id", report.RunID)
		}
	}
}

func (eb *EventBus) SubscribeConsistency() <-chan domain.ConsistencyReport {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	ch := make(chan domain.ConsistencyReport, eb.bufferSize)
	eb.consistencySubs = append(eb.consistencySubs, ch)
	return ch
}

func (eb *EventBus) PublishConsistency(report domain.ConsistencyReport) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return
	}
	for _, ch := range eb.consistencySubs {
		select {
		case ch <- report:
		default:
			eb.droppedConsistency.Add(1)
			eb.logger.Warn("consistency subscriber channel full, dropping event",
				"pair", report.Pair.String(), "source", report.Source)
		}
	}
}

// Dropped returns how many evaluation and consistency deliveries were lost
// to full subscriber buffers.
func (eb *EventBus) Dropped() (evaluations, consistency uint64) {
	return eb.droppedEvaluations.Load(), eb.droppedConsistency.Load()
}

// Close closes every subscriber channel. Publishing after Close is a no-op.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		return
	}
	eb.closed = true
	for _, ch := range eb.evaluationSubs {
		close(ch)
	}
	for _, ch := range eb.consistencySubs {
		close(ch)
	}
}
