package config

import (
	"errors"
	"testing"
)

// TestDefaultConfigValidates ensures the shipped defaults pass validation
func TestDefaultConfigValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default config must validate: %v", err)
	}
}

// TestValidateRejectsBadValues walks the validation rules
func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero loop interval", func(c *Config) { c.EngineConfig.LoopIntervalSeconds = 0 }},
		{"zero workers", func(c *Config) { c.EngineConfig.WorkerCount = 0 }},
		{"no symbols", func(c *Config) { c.EngineConfig.Symbols = nil }},
		{"negative gap ratio", func(c *Config) { c.FVGConfig.MinGapRatio = -0.1 }},
		{"gap ratio over one", func(c *Config) { c.FVGConfig.MinGapRatio = 1.5 }},
		{"zero max age", func(c *Config) { c.FVGConfig.MaxAgeBars = 0 }},
		{"zero swing lookback", func(c *Config) { c.LiquidityConfig.SwingLookback = 0 }},
		{"zero sweep threshold", func(c *Config) { c.LiquidityConfig.SweepThreshold = 0 }},
		{"no timeframes", func(c *Config) { c.ConfluenceConfig.Timeframes = nil }},
		{"missing timeframe weight", func(c *Config) {
			c.ConfluenceConfig.Timeframes = append(c.ConfluenceConfig.Timeframes, "4h")
		}},
		{"threshold out of range", func(c *Config) { c.ConfluenceConfig.Threshold = 1.5 }},
		{"scoring weights off", func(c *Config) { c.ScoringConfig.RRWeight = 0.5 }},
		{"min confidence out of range", func(c *Config) { c.ScoringConfig.MinConfidence = 1.2 }},
		{"drawdown out of range", func(c *Config) { c.RiskConfig.MaxDrawdownPercent = 150 }},
		{"zero consecutive losses", func(c *Config) { c.RiskConfig.MaxConsecutiveLosses = 0 }},
		{"zero daily loss limit", func(c *Config) { c.RiskConfig.DailyLossLimit = 0 }},
		{"risk per trade over one", func(c *Config) { c.RiskConfig.RiskPerTrade = 1.5 }},
		{"position size over one", func(c *Config) { c.RiskConfig.MaxPositionSize = 2.0 }},
		{"leverage below one", func(c *Config) { c.RiskConfig.Leverage = 0.5 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Expected ErrInvalid, got %v", err)
			}
		})
	}
}

// TestManagerSnapshotIsolation ensures snapshots never alias the active config
func TestManagerSnapshotIsolation(t *testing.T) {
	manager := NewManager(Default())

	snap := manager.Snapshot()
	snap.EngineConfig.Symbols[0] = "MUTATED"
	snap.ConfluenceConfig.TimeframeWeights["5m"] = 99

	fresh := manager.Snapshot()
	if fresh.EngineConfig.Symbols[0] == "MUTATED" {
		t.Error("Snapshot symbols alias the active config")
	}
	if fresh.ConfluenceConfig.TimeframeWeights["5m"] == 99 {
		t.Error("Snapshot weights alias the active config")
	}
}

// TestManagerApplyMergesPatch applies a partial update
func TestManagerApplyMergesPatch(t *testing.T) {
	manager := NewManager(Default())

	if err := manager.Apply([]byte(`{"engine": {"loop_interval_seconds": 30}}`)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	snap := manager.Snapshot()
	if snap.EngineConfig.LoopIntervalSeconds != 30 {
		t.Errorf("Expected interval 30, got %d", snap.EngineConfig.LoopIntervalSeconds)
	}
	// Untouched fields survive the merge
	if len(snap.EngineConfig.Symbols) == 0 {
		t.Error("Patch must not clobber unrelated fields")
	}
}

// TestManagerApplyRejectsInvalid keeps the previous config on failure
func TestManagerApplyRejectsInvalid(t *testing.T) {
	manager := NewManager(Default())

	err := manager.Apply([]byte(`{"engine": {"loop_interval_seconds": -5}}`))
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("Expected ErrInvalid, got %v", err)
	}

	if manager.Snapshot().EngineConfig.LoopIntervalSeconds <= 0 {
		t.Error("Rejected patch must not alter the active config")
	}
}
