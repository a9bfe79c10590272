package config

import (
	"encoding/json"
	"sync"
)

// Manager hands out immutable configuration snapshots. The engine takes a
// snapshot at each cycle boundary, so a live update never partially applies
// mid-cycle.
type Manager struct {
	mu      sync.RWMutex
	current *Config
}

// NewManager creates a manager seeded with a validated configuration.
func NewManager(cfg *Config) *Manager {
	return &Manager{current: cfg}
}

// Snapshot returns a deep copy of the active configuration.
func (m *Manager) Snapshot() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.clone()
}

// Update validates and installs a new configuration atomically. On validation
// failure the previous configuration stays active.
func (m *Manager) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.current = cfg.clone()
	m.mu.Unlock()
	return nil
}

// Apply merges a partial JSON document onto a copy of the active
// configuration and installs the result if it validates.
func (m *Manager) Apply(patch []byte) error {
	m.mu.RLock()
	next := m.current.clone()
	m.mu.RUnlock()

	if err := json.Unmarshal(patch, next); err != nil {
		return err
	}
	return m.Update(next)
}

// clone copies the config including its slices and maps, so a snapshot is
// never aliased by a later update.
func (c *Config) clone() *Config {
	out := *c

	out.EngineConfig.Symbols = append([]string(nil), c.EngineConfig.Symbols...)
	out.ConfluenceConfig.Timeframes = append([]string(nil), c.ConfluenceConfig.Timeframes...)

	weights := make(map[string]float64, len(c.ConfluenceConfig.TimeframeWeights))
	for k, v := range c.ConfluenceConfig.TimeframeWeights {
		weights[k] = v
	}
	out.ConfluenceConfig.TimeframeWeights = weights

	return &out
}
