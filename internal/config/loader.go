package config

import (
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/crypto-trading/impactcurve/internal/evaluation"
)

var globalConfig atomic.Pointer[Config]

func Get() *Config {
	return globalConfig.Load()
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	_ = v.BindEnv("sources.soroswap.api_key", "SOROSWAP_API_KEY")
	_ = v.BindEnv("persistence.cold_store_dsn", "COLD_STORE_DSN")

	v.SetDefault("system.log_level", "INFO")
	v.SetDefault("system.mode", "dry_run")
	v.SetDefault("sweep.source", "simulated")
	v.SetDefault("sweep.strategy", "linear_strict")
	v.SetDefault("sweep.spacing", "logarithmic")
	v.SetDefault("sweep.data_points", 10)
	v.SetDefault("sweep.error_threshold_pct", evaluation.DefaultThresholdPct)
	v.SetDefault("sweep.pause_ms", 3000)
	v.SetDefault("sweep.batch_size", 1)
	v.SetDefault("consistency.interval_seconds", 30)
	v.SetDefault("consistency.iterations", 5)
	v.SetDefault("sources.soroswap.rest_url", "https://api.soroswap.finance")
	v.SetDefault("sources.soroswap.protocols", []string{"soroswap", "phoenix", "aqua", "sdex"})
	v.SetDefault("sources.soroswap.slippage_bps", 50)
	v.SetDefault("sources.soroswap.parts", 10)
	v.SetDefault("sources.soroswap.max_hops", 2)
	v.SetDefault("sources.soroswap.asset_list", []string{"SOROSWAP", "STELLAR_EXPERT"})
	v.SetDefault("sources.soroswap.fee_bps", 50)
	v.SetDefault("sources.soroswap.timeout_ms", 10000)
	v.SetDefault("sources.cetus.rest_url", "https://api-sui.cetus.zone/router_v2")
	v.SetDefault("sources.cetus.timeout_ms", 10000)
	v.SetDefault("sources.simulated.reserve_in", int64(1_000_000_000_000))
	v.SetDefault("sources.simulated.reserve_out", int64(2_000_000_000_000))
	v.SetDefault("sources.simulated.fee_bps", 30)
	v.SetDefault("monitoring.metrics_addr", ":9090")
	v.SetDefault("persistence.ledger_db", "impactcurve.db")
	v.SetDefault("persistence.cold_store_pool_size", 4)
	v.SetDefault("persistence.retention_days", 30)
	v.SetDefault("persistence.write_buffer_size", 1024)
	v.SetDefault("runtime.gomaxprocs", 0)
	v.SetDefault("runtime.gogc", 100)
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func Load(configPath string) (*Config, error) {
	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	globalConfig.Store(cfg)
	return cfg, nil
}

// WatchAndReload re-reads the file on change. Only configs that pass
// validation replace the current one.
func WatchAndReload(configPath string, onChange func(*Config)) error {
	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config for watch: %w", err)
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		newCfg, err := decode(v)
		if err != nil {
			slog.Error("reloaded config rejected", "error", err)
			return
		}

		old := globalConfig.Load()
		globalConfig.Store(newCfg)
		slog.Info("configuration reloaded successfully")

		if onChange != nil {
			onChange(newCfg)
		}

		logConfigChanges(old, newCfg)
	})
	v.WatchConfig()

	return nil
}

func logConfigChanges(old, new *Config) {
	if old == nil || new == nil {
		return
	}
	if old.System.Mode != new.System.Mode {
		slog.Warn("run mode changed, takes effect on restart",
			"old", old.System.Mode,
			"new", new.System.Mode,
		)
	}
	if old.System.LogLevel != new.System.LogLevel {
		slog.Info("log level changed",
			"old", old.System.LogLevel,
			"new", new.System.LogLevel,
		)
	}
	if old.Sweep.ErrorThresholdPct != new.Sweep.ErrorThresholdPct {
		slog.Info("error threshold changed",
			"old", old.Sweep.ErrorThresholdPct,
			"new", new.Sweep.ErrorThresholdPct,
		)
	}
	if old.Sweep.PauseMs != new.Sweep.PauseMs || old.Sweep.BatchSize != new.Sweep.BatchSize {
		slog.Info("sweep pacing changed",
			"old_pause_ms", old.Sweep.PauseMs,
			"new_pause_ms", new.Sweep.PauseMs,
			"old_batch_size", old.Sweep.BatchSize,
			"new_batch_size", new.Sweep.BatchSize,
		)
	}
	if !slices.Equal(old.Sweep.MaxAmounts, new.Sweep.MaxAmounts) {
		slog.Info("sweep max amounts changed, applied on the next run")
	}
}
