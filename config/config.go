package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
)

// ErrInvalid is returned when a loaded or updated configuration fails
// validation. The previous configuration stays active.
var ErrInvalid = errors.New("configuration invalid")

type Config struct {
	BinanceConfig    BinanceConfig    `json:"binance"`
	EngineConfig     EngineConfig     `json:"engine"`
	FVGConfig        FVGConfig        `json:"fvg"`
	LiquidityConfig  LiquidityConfig  `json:"liquidity"`
	ConfluenceConfig ConfluenceConfig `json:"confluence"`
	ScoringConfig    ScoringConfig    `json:"scoring"`
	RiskConfig       RiskConfig       `json:"risk"`
	LoggingConfig    LoggingConfig    `json:"logging"`
	ServerConfig     ServerConfig     `json:"server"`
	DatabaseConfig   DatabaseConfig   `json:"database"`
	RedisConfig      RedisConfig      `json:"redis"`
	VaultConfig      VaultConfig      `json:"vault"`
}

type BinanceConfig struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	BaseURL   string `json:"base_url"`
	WSBaseURL string `json:"ws_base_url"`
	TestNet   bool   `json:"testnet"`
	MockMode  bool   `json:"mock_mode"` // Use simulated data when Binance API is unavailable
}

// EngineConfig holds the orchestrator loop parameters.
type EngineConfig struct {
	Symbols             []string `json:"symbols"`               // Symbols to monitor
	LoopIntervalSeconds int      `json:"loop_interval_seconds"` // Seconds between cycles
	WorkerCount         int      `json:"worker_count"`          // Concurrent per-symbol workers
	CandleLimit         int      `json:"candle_limit"`          // Candles fetched per (symbol, timeframe)
	MaxCandidates       int      `json:"max_candidates"`        // Top-ranked candidates passed to the gate
	DryRun              bool     `json:"dry_run"`               // Simulate order execution
}

// FVGConfig holds Fair Value Gap detection parameters.
type FVGConfig struct {
	MinGapRatio        float64 `json:"min_gap_ratio"`        // Minimum gap size as fraction of price
	MaxAgeBars         int     `json:"max_age_bars"`         // FVG dropped after this many bars
	RequirePartialFill bool    `json:"require_partial_fill"` // Require a re-test before entry
	ProximityRatio     float64 `json:"proximity_ratio"`      // Price distance considered "near" a gap
}

// LiquidityConfig holds swing/zone/sweep detection parameters.
type LiquidityConfig struct {
	SwingLookback    int     `json:"swing_lookback"`     // Symmetric extremum window (bars per side)
	MinSwingsBetween int     `json:"min_swings_between"` // Swings required between same-side zones
	ZoneWidthRatio   float64 `json:"zone_width_ratio"`   // Level clustering width as fraction of price
	SweepThreshold   float64 `json:"sweep_threshold"`    // Intrabar breach beyond the level
	SweepRetreat     float64 `json:"sweep_retreat"`      // Close back across the level
	MaxSweepAge      int     `json:"max_sweep_age"`      // Bars a breach stays eligible for confirmation
	MaxZoneAge       int     `json:"max_zone_age"`       // Bars before an unswept zone ages out (0 = candle window)
}

// ConfluenceConfig holds multi-timeframe fusion parameters.
type ConfluenceConfig struct {
	Timeframes         []string           `json:"timeframes"`           // Analyzed timeframes
	TimeframeWeights   map[string]float64 `json:"timeframe_weights"`    // Weight per timeframe
	MinConfluenceCount int                `json:"min_confluence_count"` // Timeframes that must agree
	Threshold          float64            `json:"threshold"`            // Minimum weighted score
	ProximityRatio     float64            `json:"proximity_ratio"`      // Vote evidence distance from price
}

// ScoringConfig holds signal confidence weights. Weights must sum to 1.0.
type ScoringConfig struct {
	QualityWeight   float64 `json:"quality_weight"`
	FreshnessWeight float64 `json:"freshness_weight"`
	LocationWeight  float64 `json:"location_weight"`
	RRWeight        float64 `json:"rr_weight"`
	MinConfidence   float64 `json:"min_confidence"` // Candidates below are excluded, not down-ranked
	MinRRRatio      float64 `json:"min_rr_ratio"`
	SLATRRatio      float64 `json:"sl_atr_ratio"` // Stop distance = ATR x ratio
	TPRRRatio       float64 `json:"tp_rr_ratio"`  // Target = risk x ratio (FVG signals)
}

// RiskConfig holds the admission gate limits.
type RiskConfig struct {
	MaxDrawdownPercent   float64 `json:"max_drawdown_percent"`    // Drawdown from peak that trips the breaker
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`  // Losing trades in a row that trip the breaker
	DailyLossLimit       float64 `json:"daily_loss_limit"`        // Daily loss in quote currency that trips the breaker
	RiskPerTrade         float64 `json:"risk_per_trade"`          // Per-trade risk as fraction of equity
	MaxPositionSize      float64 `json:"max_position_size"`       // Position notional as fraction of equity
	Leverage             float64 `json:"leverage"`                // Applied to the notional bound
	MaxOpenPositions     int     `json:"max_open_positions"`      // Concurrent positions
	MinTradeIntervalSecs int     `json:"min_trade_interval_secs"` // Spacing between approvals
	PersistDecisions     bool    `json:"persist_decisions"`       // Write the audit log to Postgres
	PersistRiskState     bool    `json:"persist_risk_state"`      // Snapshot RiskState to Postgres
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

type ServerConfig struct {
	Enabled        bool   `json:"enabled"`
	Host           string `json:"host"`
	Port           int    `json:"port"`
	AllowedOrigins string `json:"allowed_origins"`
}

type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// Default returns the configuration the system ships with.
func Default() *Config {
	return &Config{
		BinanceConfig: BinanceConfig{
			BaseURL:   "https://api.binance.com",
			WSBaseURL: "wss://stream.binance.com:9443",
		},
		EngineConfig: EngineConfig{
			Symbols:             []string{"BTCUSDT", "ETHUSDT"},
			LoopIntervalSeconds: 10,
			WorkerCount:         4,
			CandleLimit:         100,
			MaxCandidates:       3,
			DryRun:              true,
		},
		FVGConfig: FVGConfig{
			MinGapRatio:        0.001,
			MaxAgeBars:         30,
			RequirePartialFill: true,
			ProximityRatio:     0.01,
		},
		LiquidityConfig: LiquidityConfig{
			SwingLookback:    2,
			MinSwingsBetween: 3,
			ZoneWidthRatio:   0.001,
			SweepThreshold:   0.0003,
			SweepRetreat:     0.0005,
			MaxSweepAge:      10,
			MaxZoneAge:       0,
		},
		ConfluenceConfig: ConfluenceConfig{
			Timeframes:         []string{"5m", "15m", "1h"},
			TimeframeWeights:   map[string]float64{"5m": 1.0, "15m": 2.0, "1h": 3.0},
			MinConfluenceCount: 2,
			Threshold:          0.6,
			ProximityRatio:     0.01,
		},
		ScoringConfig: ScoringConfig{
			QualityWeight:   0.30,
			FreshnessWeight: 0.25,
			LocationWeight:  0.25,
			RRWeight:        0.20,
			MinConfidence:   0.60,
			MinRRRatio:      2.0,
			SLATRRatio:      1.5,
			TPRRRatio:       2.5,
		},
		RiskConfig: RiskConfig{
			MaxDrawdownPercent:   5.0,
			MaxConsecutiveLosses: 3,
			DailyLossLimit:       30.0,
			RiskPerTrade:         0.02,
			MaxPositionSize:      0.3,
			Leverage:             1.0,
			MaxOpenPositions:     3,
			MinTradeIntervalSecs: 600,
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
		ServerConfig: ServerConfig{
			Enabled:        true,
			Host:           "0.0.0.0",
			Port:           8080,
			AllowedOrigins: "*",
		},
		DatabaseConfig: DatabaseConfig{SSLMode: "disable"},
		RedisConfig:    RedisConfig{Address: "localhost:6379"},
		VaultConfig:    VaultConfig{MountPath: "secret", SecretPath: "trading/binance"},
	}
}

// Load reads config.json (if present), applies environment overrides and
// validates the result.
func Load() (*Config, error) {
	cfg := Default()

	if data, err := os.ReadFile("config.json"); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config.json: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	cfg.BinanceConfig.APIKey = getEnvOrDefault("BINANCE_API_KEY", cfg.BinanceConfig.APIKey)
	cfg.BinanceConfig.SecretKey = getEnvOrDefault("BINANCE_SECRET_KEY", cfg.BinanceConfig.SecretKey)
	cfg.BinanceConfig.BaseURL = getEnvOrDefault("BINANCE_BASE_URL", cfg.BinanceConfig.BaseURL)
	cfg.BinanceConfig.TestNet = getEnvOrDefault("BINANCE_TESTNET", boolString(cfg.BinanceConfig.TestNet)) == "true"
	cfg.BinanceConfig.MockMode = getEnvOrDefault("MOCK_MODE", boolString(cfg.BinanceConfig.MockMode)) == "true"

	cfg.EngineConfig.DryRun = getEnvOrDefault("ENGINE_DRY_RUN", boolString(cfg.EngineConfig.DryRun)) == "true"
	cfg.EngineConfig.LoopIntervalSeconds = getEnvIntOrDefault("ENGINE_LOOP_INTERVAL", cfg.EngineConfig.LoopIntervalSeconds)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", boolString(cfg.LoggingConfig.JSONFormat)) == "true"

	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)

	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDR", cfg.RedisConfig.Address)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
}

// Validate checks every parameter against its allowed range. A config that
// fails validation is never installed.
func (c *Config) Validate() error {
	if c.EngineConfig.LoopIntervalSeconds <= 0 {
		return fmt.Errorf("%w: loop_interval_seconds must be positive", ErrInvalid)
	}
	if c.EngineConfig.WorkerCount <= 0 {
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalid)
	}
	if len(c.EngineConfig.Symbols) == 0 {
		return fmt.Errorf("%w: at least one symbol required", ErrInvalid)
	}

	if c.FVGConfig.MinGapRatio <= 0 || c.FVGConfig.MinGapRatio >= 1 {
		return fmt.Errorf("%w: min_gap_ratio must be in (0, 1)", ErrInvalid)
	}
	if c.FVGConfig.MaxAgeBars <= 0 {
		return fmt.Errorf("%w: max_age_bars must be positive", ErrInvalid)
	}

	if c.LiquidityConfig.SwingLookback <= 0 {
		return fmt.Errorf("%w: swing_lookback must be positive", ErrInvalid)
	}
	if c.LiquidityConfig.SweepThreshold <= 0 || c.LiquidityConfig.SweepRetreat <= 0 {
		return fmt.Errorf("%w: sweep thresholds must be positive", ErrInvalid)
	}
	if c.LiquidityConfig.MaxSweepAge <= 0 {
		return fmt.Errorf("%w: max_sweep_age must be positive", ErrInvalid)
	}

	if len(c.ConfluenceConfig.Timeframes) == 0 {
		return fmt.Errorf("%w: at least one timeframe required", ErrInvalid)
	}
	for _, tf := range c.ConfluenceConfig.Timeframes {
		if _, ok := c.ConfluenceConfig.TimeframeWeights[tf]; !ok {
			return fmt.Errorf("%w: missing weight for timeframe %s", ErrInvalid, tf)
		}
	}
	if c.ConfluenceConfig.Threshold < 0 || c.ConfluenceConfig.Threshold > 1 {
		return fmt.Errorf("%w: confluence threshold must be in [0, 1]", ErrInvalid)
	}
	if c.ConfluenceConfig.MinConfluenceCount <= 0 {
		return fmt.Errorf("%w: min_confluence_count must be positive", ErrInvalid)
	}

	s := c.ScoringConfig
	total := s.QualityWeight + s.FreshnessWeight + s.LocationWeight + s.RRWeight
	if total < 0.99 || total > 1.01 {
		return fmt.Errorf("%w: scoring weights must sum to 1.0, got %.2f", ErrInvalid, total)
	}
	if s.MinConfidence < 0 || s.MinConfidence > 1 {
		return fmt.Errorf("%w: min_confidence must be in [0, 1]", ErrInvalid)
	}
	if s.MinRRRatio < 0 {
		return fmt.Errorf("%w: min_rr_ratio must be non-negative", ErrInvalid)
	}

	r := c.RiskConfig
	if r.MaxDrawdownPercent <= 0 || r.MaxDrawdownPercent > 100 {
		return fmt.Errorf("%w: max_drawdown_percent must be in (0, 100]", ErrInvalid)
	}
	if r.MaxConsecutiveLosses <= 0 {
		return fmt.Errorf("%w: max_consecutive_losses must be positive", ErrInvalid)
	}
	if r.DailyLossLimit <= 0 {
		return fmt.Errorf("%w: daily_loss_limit must be positive", ErrInvalid)
	}
	if r.RiskPerTrade <= 0 || r.RiskPerTrade > 1 {
		return fmt.Errorf("%w: risk_per_trade must be in (0, 1]", ErrInvalid)
	}
	if r.MaxPositionSize <= 0 || r.MaxPositionSize > 1 {
		return fmt.Errorf("%w: max_position_size must be in (0, 1]", ErrInvalid)
	}
	if r.Leverage < 1 {
		return fmt.Errorf("%w: leverage must be >= 1", ErrInvalid)
	}

	return nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
