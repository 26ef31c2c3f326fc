package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/crypto-trading/impactcurve/internal/config"
	"github.com/crypto-trading/impactcurve/internal/consistency"
	"github.com/crypto-trading/impactcurve/internal/domain"
	"github.com/crypto-trading/impactcurve/internal/evaluation"
	"github.com/crypto-trading/impactcurve/internal/eventbus"
	"github.com/crypto-trading/impactcurve/internal/interpolation"
	"github.com/crypto-trading/impactcurve/internal/monitor"
	"github.com/crypto-trading/impactcurve/internal/pairs"
	"github.com/crypto-trading/impactcurve/internal/persistence"
	"github.com/crypto-trading/impactcurve/internal/quote"
	"github.com/crypto-trading/impactcurve/internal/quote/cetus"
	"github.com/crypto-trading/impactcurve/internal/quote/simulated"
	"github.com/crypto-trading/impactcurve/internal/quote/soroswap"
	"github.com/crypto-trading/impactcurve/internal/report"
	"github.com/crypto-trading/impactcurve/internal/sweep"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to dotenv file with API keys")
	probe := flag.Bool("probe", false, "Run the aggregator consistency probe instead of the sweep")
	once := flag.Bool("once", false, "Run a single sweep pass and print per-point errors")
	storedRun := flag.String("report", "", "Print the stored summary of a past sweep run id and exit")
	flag.Parse()

	logger := initLogger("INFO")

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to load dotenv file", "path", *envPath, "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger = initLogger(cfg.System.LogLevel)
	logger.Info("configuration loaded",
		"instance_id", cfg.System.InstanceID,
		"mode", cfg.System.Mode,
		"source", cfg.Sweep.Source,
		"strategy", cfg.Sweep.Strategy,
	)

	configureRuntime(cfg.Runtime, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	metrics := monitor.NewMetrics(prometheus.DefaultRegisterer)

	var traceOut io.Writer
	if cfg.Monitoring.Tracing {
		traceOut = os.Stderr
	}
	tracerShutdown, err := monitor.InitTracer(cfg.System.InstanceID, traceOut, logger)
	if err != nil {
		logger.Warn("failed to initialize tracer", "error", err)
	}

	alertMgr := monitor.NewAlertManager(cfg.Monitoring.Alerting.Channels, logger)

	bus := eventbus.New(1024, logger)

	sqliteStore, err := persistence.NewSQLiteStore(cfg.Persistence.LedgerDB, logger)
	if err != nil {
		logger.Error("failed to initialize SQLite store", "error", err)
		os.Exit(1)
	}
	defer sqliteStore.Close()
	if err := sqliteStore.CleanupOlderThan(cfg.Persistence.Retention()); err != nil {
		logger.Warn("ledger cleanup failed", "error", err)
	}

	var pgStore *persistence.PostgresStore
	if cfg.Persistence.ColdStoreDSN != "" {
		pgStore, err = persistence.NewPostgresStore(ctx, cfg.Persistence.ColdStoreDSN, cfg.Persistence.ColdStorePoolSize, logger)
		if err != nil {
			logger.Warn("PostgreSQL cold store unavailable, continuing without it", "error", err)
		} else if pgStore != nil {
			defer pgStore.Close()
			if err := pgStore.RunMigrations(ctx); err != nil {
				logger.Error("failed to run PostgreSQL migrations", "error", err)
			}
		}
	}

	if *storedRun != "" {
		if err := printStoredRun(ctx, *storedRun, sqliteStore, pgStore, logger); err != nil {
			logger.Error("failed to print stored run", "run_id", *storedRun, "error", err)
		}
		return
	}

	asyncWriter := persistence.NewAsyncWriter(sqliteStore, pgStore, cfg.Persistence.WriteBufferSize, logger)
	asyncWriter.Run()

	recorder := sweep.NewRecorder(bus, metrics, alertMgr, asyncWriter, logger)
	recorderDone := make(chan struct{})
	go func() {
		recorder.Run(context.Background())
		close(recorderDone)
	}()

	server := startMetricsServer(cfg.Monitoring.MetricsAddr, logger)

	source, err := buildSource(cfg, metrics, logger)
	if err != nil {
		logger.Error("failed to build quote source", "error", err)
		os.Exit(1)
	}

	if *probe {
		runProbe(ctx, cfg, source, bus, logger)
	} else {
		if err := config.WatchAndReload(*configPath, func(newCfg *config.Config) {
			logger.Info("configuration reloaded, applied from the next sweep run")
		}); err != nil {
			logger.Warn("config hot-reload setup failed", "error", err)
		}
		runSweeps(ctx, cfg, source, bus, recorder, sqliteStore, *once, logger)
	}

	logger.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	bus.Close()
	<-recorderDone
	if evals, consistencyDrops := bus.Dropped(); evals > 0 || consistencyDrops > 0 {
		logger.Warn("reports dropped before persistence", "evaluations", evals, "consistency", consistencyDrops)
	}
	asyncWriter.Stop()

	for _, a := range alertMgr.ActiveAlerts() {
		logger.Warn("alert still open at shutdown",
			"level", string(a.Level), "name", a.Name, "subject", a.Subject,
			"count", a.Count, "first_fired", a.FiredAt, "message", a.Message)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down metrics server", "error", err)
	}

	if tracerShutdown != nil {
		if err := tracerShutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down tracer", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func runSweeps(ctx context.Context, cfg *config.Config, source quote.Source, bus *eventbus.EventBus, recorder *sweep.Recorder, ledger *persistence.SQLiteStore, once bool, logger *slog.Logger) {
	interp, err := interpolation.New(domain.Strategy(cfg.Sweep.Strategy))
	if err != nil {
		logger.Error("invalid interpolation strategy", "error", err)
		return
	}
	evaluator := evaluation.NewEvaluator(source, interp, logger)

	for {
		// pacing, threshold and plan follow the latest reloaded config
		current := config.Get()
		if current == nil {
			current = cfg
		}

		discovered := discoverPairs(current.Sweep, logger)
		ranges := sweep.PairRanges(current.Sweep, discovered)
		combos := sweep.Plan(ranges, current.Sweep.DataPoints, current.Sweep.OffsetGroups, domain.Spacing(current.Sweep.Spacing))
		if len(combos) == 0 {
			logger.Error("nothing to sweep, configure sweep.pairs or sweep.pools_file")
			return
		}

		tee := &collector{bus: bus}
		driver := sweep.NewDriver(evaluator, tee, func() sweep.Settings {
			return sweep.Settings{
				Pacing:       sweep.Pacing{Pause: current.Sweep.Pause(), BatchSize: current.Sweep.BatchSize},
				ThresholdPct: current.Sweep.ErrorThresholdPct,
			}
		}, logger)

		run, err := driver.Run(ctx, combos)
		recorder.RecordRun(run)
		if once {
			printDetails(tee.details, logger)
		}
		if err := report.WriteSummaryTable(os.Stdout, tee.reports, probeVerdicts(ledger, ranges, logger)); err != nil {
			logger.Warn("failed to print summary", "error", err)
		}
		if err != nil {
			logger.Info("sweep interrupted", "run_id", run.RunID, "error", err)
			return
		}

		interval := current.Sweep.Interval()
		if once || interval <= 0 {
			return
		}
		logger.Info("next sweep scheduled", "in", interval.String())
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func runProbe(ctx context.Context, cfg *config.Config, source quote.Source, bus *eventbus.EventBus, logger *slog.Logger) {
	pc := cfg.Consistency
	if pc.TokenIn == "" || pc.TokenOut == "" || len(pc.Amounts) == 0 {
		logger.Error("consistency probe needs consistency.token_in, token_out and amounts")
		return
	}

	p := consistency.NewProbe(source, logger)
	result, err := p.Run(ctx, pc.Pair(), pc.Amounts, pc.Interval(), pc.Iterations)
	if err != nil && len(result.Iterations) == 0 {
		logger.Error("consistency probe failed", "error", err)
		return
	}
	if err != nil {
		logger.Warn("consistency probe interrupted", "error", err, "iterations", len(result.Iterations))
	}

	bus.PublishConsistency(result)
	if err := report.WriteConsistency(os.Stdout, result); err != nil {
		logger.Warn("failed to print consistency report", "error", err)
	}
}

// collector keeps the reports and per-point errors of one run for the
// terminal and forwards the reports to the bus.
type collector struct {
	bus     *eventbus.EventBus
	reports []domain.EvaluationReport
	details []sweep.Detail
}

func (c *collector) PublishEvaluation(r domain.EvaluationReport) {
	c.reports = append(c.reports, r)
	c.bus.PublishEvaluation(r)
}

func (c *collector) PublishDetail(d sweep.Detail) {
	c.details = append(c.details, d)
}

func printDetails(details []sweep.Detail, logger *slog.Logger) {
	for _, d := range details {
		r := d.Report
		fmt.Fprintf(os.Stdout, "\n%s amounts %.0f..%.0f, %d data points, offsets %v\n",
			r.Pair, r.MinAmount, r.MaxAmount, r.DataPoints, r.OffsetsPct)
		if err := report.WriteErrorTable(os.Stdout, d.Errors, d.Stats); err != nil {
			logger.Warn("failed to print error table", "pair", r.Pair.String(), "error", err)
			return
		}
	}
	fmt.Fprintln(os.Stdout)
}

// probeVerdicts looks up the last stored consistency verdict of every swept
// pair. Pairs never probed are absent.
func probeVerdicts(ledger *persistence.SQLiteStore, ranges []sweep.PairRange, logger *slog.Logger) map[domain.TokenPair]domain.ConsistencyVerdict {
	verdicts := make(map[domain.TokenPair]domain.ConsistencyVerdict, len(ranges))
	for _, pr := range ranges {
		latest, err := ledger.LatestConsistency(pr.Pair)
		if err != nil {
			logger.Warn("consistency lookup failed", "pair", pr.Pair.String(), "error", err)
			continue
		}
		if latest != nil {
			verdicts[pr.Pair] = latest.Verdict
		}
	}
	return verdicts
}

func printStoredRun(ctx context.Context, id string, ledger *persistence.SQLiteStore, cold *persistence.PostgresStore, logger *slog.Logger) error {
	runID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("parse run id: %w", err)
	}
	reports, err := ledger.EvaluationsByRun(runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	if len(reports) == 0 {
		return fmt.Errorf("no evaluations stored for run %s", runID)
	}

	seen := make(map[domain.TokenPair]bool)
	var ranges []sweep.PairRange
	for _, r := range reports {
		if !seen[r.Pair] {
			seen[r.Pair] = true
			ranges = append(ranges, sweep.PairRange{Pair: r.Pair})
		}
	}
	if err := report.WriteSummaryTable(os.Stdout, reports, probeVerdicts(ledger, ranges, logger)); err != nil {
		return err
	}

	if cold != nil {
		count, meanErr, err := cold.RunStats(ctx, runID)
		if err != nil {
			return err
		}
		logger.Info("cold store run totals", "run_id", runID, "evaluations", count, "mean_error_pct", meanErr)
	}
	return nil
}

func discoverPairs(cfg config.SweepConfig, logger *slog.Logger) []domain.TokenPair {
	if cfg.PoolsFile == "" {
		return nil
	}
	pools, err := pairs.LoadPools(cfg.PoolsFile)
	if err != nil {
		logger.Warn("pool discovery skipped", "error", err)
		return nil
	}

	var found []domain.TokenPair
	if cfg.AnchorToken != "" {
		found = pairs.AnchoredPairs(pools, cfg.AnchorToken)
	}
	if cfg.PoolProtocol != "" {
		found = pairs.Merge(found, pairs.ByProtocol(pools, cfg.PoolProtocol))
	}
	logger.Info("pairs discovered from pools", "pools", len(pools), "pairs", len(found))
	return found
}

func buildSource(cfg *config.Config, metrics *monitor.Metrics, logger *slog.Logger) (quote.Source, error) {
	var src quote.Source

	name := cfg.Sweep.Source
	if cfg.System.RunMode() == domain.RunModeDryRun && name != "simulated" {
		logger.Info("dry run: replacing live quote source with simulated pool", "configured", name)
		name = "simulated"
	}

	switch name {
	case "soroswap":
		sc := cfg.Sources.Soroswap
		if sc.APIKey == "" {
			return nil, fmt.Errorf("soroswap source needs SOROSWAP_API_KEY")
		}
		src = soroswap.New(soroswap.Config{
			RestURL:       sc.RestURL,
			APIKey:        sc.APIKey,
			Protocols:     sc.Protocols,
			SlippageBps:   sc.SlippageBps,
			Parts:         sc.Parts,
			MaxHops:       sc.MaxHops,
			AssetList:     sc.AssetList,
			FeeBps:        sc.FeeBps,
			Timeout:       sc.Timeout(),
			MaxConcurrent: sc.MaxConcurrent,
		}, quote.NewLimiter(sc.RateLimit.Capacity, sc.RateLimit.RefillPerSecond), logger)
	case "cetus":
		cc := cfg.Sources.Cetus
		src = cetus.New(cetus.Config{
			RestURL:       cc.RestURL,
			Timeout:       cc.Timeout(),
			MaxConcurrent: cc.MaxConcurrent,
		}, quote.NewLimiter(cc.RateLimit.Capacity, cc.RateLimit.RefillPerSecond), logger)
	case "simulated":
		sc := cfg.Sources.Simulated
		pool, err := simulated.New(simulated.Config{
			ReserveIn:     sc.ReserveIn,
			ReserveOut:    sc.ReserveOut,
			FeeBps:        sc.FeeBps,
			RejectRatePct: sc.RejectRatePct,
			LatencyMs:     sc.LatencyMs,
			MaxConcurrent: sc.MaxConcurrent,
		}, logger)
		if err != nil {
			return nil, err
		}
		src = pool
	default:
		return nil, fmt.Errorf("unknown quote source %q", name)
	}

	return quote.Instrument(src, metrics, logger), nil
}

func initLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "DEBUG":
		logLevel = slog.LevelDebug
	case "INFO":
		logLevel = slog.LevelInfo
	case "WARN":
		logLevel = slog.LevelWarn
	case "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func configureRuntime(cfg config.RuntimeConfig, logger *slog.Logger) {
	if cfg.GoMaxProcs > 0 {
		runtime.GOMAXPROCS(cfg.GoMaxProcs)
	}
	logger.Info("runtime configured",
		"GOMAXPROCS", runtime.GOMAXPROCS(0),
		"GOGC", cfg.GOGC,
		"GOMEMLIMIT", cfg.GoMemLimit,
	)

	if cfg.GOGC > 0 {
		debug.SetGCPercent(cfg.GOGC)
	}
}

func startMetricsServer(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitor.MetricsHandler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("metrics server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return server
}
