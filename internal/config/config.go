package config

import (
	"time"

	"github.com/crypto-trading/impactcurve/internal/domain"
)

type Config struct {
	System      SystemConfig      `mapstructure:"system" validate:"required"`
	Sweep       SweepConfig       `mapstructure:"sweep" validate:"required"`
	Consistency ConsistencyConfig `mapstructure:"consistency"`
	Sources     SourcesConfig     `mapstructure:"sources" validate:"required"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Persistence PersistenceConfig `mapstructure:"persistence" validate:"required"`
	Runtime     RuntimeConfig     `mapstructure:"runtime"`
}

type SystemConfig struct {
	InstanceID string `mapstructure:"instance_id" validate:"required"`
	Mode       string `mapstructure:"mode" validate:"required,oneof=live dry_run"`
	LogLevel   string `mapstructure:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR"`
}

func (c SystemConfig) RunMode() domain.RunMode {
	return domain.RunMode(c.Mode)
}

type SweepConfig struct {
	Source            string       `mapstructure:"source" validate:"required,oneof=soroswap cetus simulated"`
	Strategy          string       `mapstructure:"strategy" validate:"required,oneof=linear_strict linear_permissive power_law"`
	Spacing           string       `mapstructure:"spacing" validate:"required,oneof=logarithmic linear"`
	MinAmount         float64      `mapstructure:"min_amount" validate:"gt=0"`
	MaxAmounts        []float64    `mapstructure:"max_amounts" validate:"required,min=1,dive,gt=0"`
	DataPoints        int          `mapstructure:"data_points" validate:"gte=2"`
	OffsetGroups      [][]float64  `mapstructure:"offset_groups" validate:"required,min=1,dive,min=1,dive,gte=0,lte=100"`
	ErrorThresholdPct float64      `mapstructure:"error_threshold_pct" validate:"gt=0"`
	PauseMs           int          `mapstructure:"pause_ms" validate:"gte=0"`
	BatchSize         int          `mapstructure:"batch_size" validate:"gte=0"`
	IntervalSeconds   int          `mapstructure:"interval_seconds" validate:"gte=0"`
	Pairs             []PairConfig `mapstructure:"pairs" validate:"dive"`
	PoolsFile         string       `mapstructure:"pools_file"`
	AnchorToken       string       `mapstructure:"anchor_token"`
	PoolProtocol      string       `mapstructure:"pool_protocol"`
}

func (c SweepConfig) Pause() time.Duration {
	return time.Duration(c.PauseMs) * time.Millisecond
}

func (c SweepConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// PairConfig names a pair to sweep. MinAmount and MaxAmounts override the
// sweep-wide range when set.
type PairConfig struct {
	TokenIn    string    `mapstructure:"token_in" validate:"required"`
	TokenOut   string    `mapstructure:"token_out" validate:"required,nefield=TokenIn"`
	MinAmount  float64   `mapstructure:"min_amount" validate:"gte=0"`
	MaxAmounts []float64 `mapstructure:"max_amounts" validate:"dive,gt=0"`
}

func (c PairConfig) Pair() domain.TokenPair {
	return domain.TokenPair{TokenIn: c.TokenIn, TokenOut: c.TokenOut}
}

type ConsistencyConfig struct {
	TokenIn         string  `mapstructure:"token_in"`
	TokenOut        string  `mapstructure:"token_out"`
	Amounts         []int64 `mapstructure:"amounts" validate:"dive,gt=0"`
	IntervalSeconds int     `mapstructure:"interval_seconds" validate:"gte=0"`
	Iterations      int     `mapstructure:"iterations" validate:"gte=0"`
}

func (c ConsistencyConfig) Pair() domain.TokenPair {
	return domain.TokenPair{TokenIn: c.TokenIn, TokenOut: c.TokenOut}
}

func (c ConsistencyConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

type SourcesConfig struct {
	Soroswap  SoroswapConfig  `mapstructure:"soroswap"`
	Cetus     CetusConfig     `mapstructure:"cetus"`
	Simulated SimulatedConfig `mapstructure:"simulated"`
}

type RateLimitConfig struct {
	Capacity        int `mapstructure:"capacity" validate:"gte=0"`
	RefillPerSecond int `mapstructure:"refill_per_second" validate:"gte=0"`
}

type SoroswapConfig struct {
	RestURL       string          `mapstructure:"rest_url" validate:"omitempty,url"`
	APIKey        string          `mapstructure:"api_key"`
	Protocols     []string        `mapstructure:"protocols"`
	SlippageBps   int             `mapstructure:"slippage_bps" validate:"gte=0"`
	Parts         int             `mapstructure:"parts" validate:"gte=0"`
	MaxHops       int             `mapstructure:"max_hops" validate:"gte=0"`
	AssetList     []string        `mapstructure:"asset_list"`
	FeeBps        int             `mapstructure:"fee_bps" validate:"gte=0"`
	TimeoutMs     int             `mapstructure:"timeout_ms" validate:"gte=0"`
	MaxConcurrent int             `mapstructure:"max_concurrent" validate:"gte=0"`
	RateLimit     RateLimitConfig `mapstructure:"rate_limit"`
}

func (c SoroswapConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

type CetusConfig struct {
	RestURL       string          `mapstructure:"rest_url" validate:"omitempty,url"`
	TimeoutMs     int             `mapstructure:"timeout_ms" validate:"gte=0"`
	MaxConcurrent int             `mapstructure:"max_concurrent" validate:"gte=0"`
	RateLimit     RateLimitConfig `mapstructure:"rate_limit"`
}

func (c CetusConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

type SimulatedConfig struct {
	ReserveIn     int64   `mapstructure:"reserve_in" validate:"gt=0"`
	ReserveOut    int64   `mapstructure:"reserve_out" validate:"gt=0"`
	FeeBps        int64   `mapstructure:"fee_bps" validate:"gte=0,lt=10000"`
	RejectRatePct float64 `mapstructure:"reject_rate_pct" validate:"gte=0,lte=100"`
	LatencyMs     int     `mapstructure:"latency_ms" validate:"gte=0"`
	MaxConcurrent int     `mapstructure:"max_concurrent" validate:"gte=0"`
}

type MonitoringConfig struct {
	MetricsAddr string         `mapstructure:"metrics_addr"`
	Tracing     bool           `mapstructure:"tracing"`
	Alerting    AlertingConfig `mapstructure:"alerting"`
}

type AlertingConfig struct {
	Channels []string `mapstructure:"channels"`
}

type PersistenceConfig struct {
	LedgerDB          string `mapstructure:"ledger_db" validate:"required"`
	ColdStoreDSN      string `mapstructure:"cold_store_dsn"`
	ColdStorePoolSize int    `mapstructure:"cold_store_pool_size" validate:"gt=0"`
	RetentionDays     int    `mapstructure:"retention_days" validate:"gt=0"`
	WriteBufferSize   int    `mapstructure:"write_buffer_size" validate:"gt=0"`
}

func (c PersistenceConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

type RuntimeConfig struct {
	GoMaxProcs int    `mapstructure:"gomaxprocs"`
	GOGC       int    `mapstructure:"gogc"`
	GoMemLimit string `mapstructure:"gomemlimit"`
}
