package monitor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/crypto-trading/impactcurve/internal/domain"
)

func TestObserveQuoteBatch(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveQuoteBatch("soroswap", []domain.QuoteOutcome{
		domain.QuoteOK(10, 20),
		domain.QuoteOK(20, 40),
		domain.QuoteFailed(30, domain.ErrNoRoute),
		domain.QuoteFailed(40, errors.New("HTTP 500")),
	}, 15*time.Millisecond)

	if got := testutil.ToFloat64(m.QuoteRequestsTotal.WithLabelValues("soroswap", "ok")); got != 2 {
		t.Errorf("expected 2 ok quotes, got %v", got)
	}
	if got := testutil.ToFloat64(m.QuoteRequestsTotal.WithLabelValues("soroswap", "no_route")); got != 1 {
		t.Errorf("expected 1 no_route quote, got %v", got)
	}
	if got := testutil.ToFloat64(m.QuoteRequestsTotal.WithLabelValues("soroswap", "error")); got != 1 {
		t.Errorf("expected 1 error quote, got %v", got)
	}
}

func TestObserveEvaluation(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	pair := domain.TokenPair{TokenIn: "XLM", TokenOut: "USDC"}

	m.ObserveEvaluation(domain.EvaluationReport{
		Source: "soroswap", Strategy: domain.StrategyLinearStrict, Pair: pair,
		Status: domain.EvaluationOK, Compared: 3, MaxErrorPct: 0.04, Skipped: 2,
	})
	m.ObserveEvaluation(domain.EvaluationReport{
		Source: "soroswap", Strategy: domain.StrategyLinearStrict, Pair: pair,
		Status: domain.EvaluationAborted, Overlap: true,
	})

	if got := testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("soroswap", "linear_strict", "OK")); got != 1 {
		t.Errorf("expected 1 OK evaluation, got %v", got)
	}
	if got := testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("soroswap", "linear_strict", "ABORTED")); got != 1 {
		t.Errorf("expected 1 aborted evaluation, got %v", got)
	}
	if got := testutil.ToFloat64(m.MaxErrorPct.WithLabelValues("soroswap", "linear_strict", "XLM->USDC")); got != 0.04 {
		t.Errorf("expected max error 0.04, got %v", got)
	}
	if got := testutil.ToFloat64(m.SkippedTestPoints.WithLabelValues("soroswap")); got != 2 {
		t.Errorf("expected 2 skipped points, got %v", got)
	}
	if got := testutil.ToFloat64(m.OverlapDefects); got != 1 {
		t.Errorf("expected 1 overlap defect, got %v", got)
	}
}

func TestAlertManager(t *testing.T) {
	am := NewAlertManager([]string{"log"}, slog.New(slog.NewTextHandler(os.Stderr, nil)))

	am.Fire(AlertLevelP1, AlertDataTestOverlap, "XLM->USDC", "test point leaked")
	am.Fire(AlertLevelP2, AlertHighVariation, "XLM->USDC", "unstable quotes")

	if got := len(am.ActiveAlerts()); got != 2 {
		t.Fatalf("expected 2 active alerts, got %d", got)
	}

	am.Acknowledge(AlertDataTestOverlap, "")
	active := am.ActiveAlerts()
	if len(active) != 1 || active[0].Name != AlertHighVariation {
		t.Errorf("expected only the variation alert active, got %+v", active)
	}
}

func TestAlertManager_RepeatsBumpCount(t *testing.T) {
	am := NewAlertManager(nil, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := start
	am.now = func() time.Time { return tick }

	am.Fire(AlertLevelP2, AlertErrorThreshold, "XLM->USDC", "max error 0.05%")
	tick = tick.Add(time.Minute)
	am.Fire(AlertLevelP2, AlertErrorThreshold, "XLM->USDC", "max error 0.07%")
	am.Fire(AlertLevelP2, AlertErrorThreshold, "AQUA->XLM", "max error 0.03%")

	active := am.ActiveAlerts()
	if len(active) != 2 {
		t.Fatalf("expected one alert per subject, got %+v", active)
	}
	first := active[0]
	if first.Count != 2 || first.Message != "max error 0.07%" {
		t.Errorf("expected repeat to bump count and message, got %+v", first)
	}
	if !first.FiredAt.Equal(start) || !first.LastSeen.Equal(tick) {
		t.Errorf("expected fired %v last seen %v, got %v / %v", start, tick, first.FiredAt, first.LastSeen)
	}

	am.Acknowledge(AlertErrorThreshold, "XLM->USDC")
	am.Fire(AlertLevelP2, AlertErrorThreshold, "XLM->USDC", "max error 0.04%")
	active = am.ActiveAlerts()
	if len(active) != 2 || active[1].Count != 1 {
		t.Errorf("expected a fresh alert after acknowledgement, got %+v", active)
	}
}

func TestInitTracer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	shutdown, err := InitTracer("test", nil, logger)
	if err != nil {
		t.Fatalf("disabled tracer: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown: %v", err)
	}

	var buf bytes.Buffer
	shutdown, err = InitTracer("test", &buf, logger)
	if err != nil {
		t.Fatalf("init tracer: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
