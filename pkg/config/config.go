package config

import (
	"fmt"
	"time"
)

// Config holds all configuration for the synergy discovery engine.
type Config struct {
	Streaming StreamingConfig `yaml:"streaming" json:"streaming"`
	Mining    MiningConfig    `yaml:"mining" json:"mining"`
	Temporal  TemporalConfig  `yaml:"temporal" json:"temporal"`
	Relevance RelevanceConfig `yaml:"relevance" json:"relevance"`
	Engine    EngineConfig    `yaml:"engine" json:"engine"`
	NATS      NATSConfig      `yaml:"nats" json:"nats"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
}

// StreamingConfig configures the live statistics tracker.
type StreamingConfig struct {
	// RollingWindowHours bounds the per-entity timestamp history.
	RollingWindowHours float64 `yaml:"rolling_window_hours" json:"rolling_window_hours"`

	// MinSamples is the minimum observations per pair before a
	// correlation is reported.
	MinSamples int `yaml:"min_samples" json:"min_samples"`

	// CacheTTLSeconds is the staleness fallback for cached
	// correlations. Explicit invalidation on update is the primary
	// mechanism.
	CacheTTLSeconds float64 `yaml:"cache_ttl_seconds" json:"cache_ttl_seconds"`
}

// RollingWindow returns the rolling window as a duration.
func (s *StreamingConfig) RollingWindow() time.Duration {
	return time.Duration(s.RollingWindowHours * float64(time.Hour))
}

// CacheTTL returns the cache TTL as a duration.
func (s *StreamingConfig) CacheTTL() time.Duration {
	return time.Duration(s.CacheTTLSeconds * float64(time.Second))
}

// MiningConfig configures transaction building and itemset mining.
type MiningConfig struct {
	MinSupport         float64 `yaml:"min_support" json:"min_support"`
	MinConfidence      float64 `yaml:"min_confidence" json:"min_confidence"`
	MinLift            float64 `yaml:"min_lift" json:"min_lift"`
	MaxItemsetSize     int     `yaml:"max_itemset_size" json:"max_itemset_size"`
	WindowSeconds      float64 `yaml:"window_seconds" json:"window_seconds"`
	MinTransactionSize int     `yaml:"min_transaction_size" json:"min_transaction_size"`
}

// TemporalConfig configures directed trigger-action validation.
type TemporalConfig struct {
	MinConsistency float64 `yaml:"min_consistency" json:"min_consistency"`
	MinOccurrences int     `yaml:"min_occurrences" json:"min_occurrences"`
	WindowSeconds  float64 `yaml:"window_seconds" json:"window_seconds"`
}

// RelevanceConfig configures the pairwise pre-filter.
type RelevanceConfig struct {
	// Threshold below which a pair is not forwarded to mining. Kept
	// conservatively low: false negatives are missed synergies.
	Threshold      float64 `yaml:"threshold" json:"threshold"`
	MaxPredictions int     `yaml:"max_predictions" json:"max_predictions"`
}

// EngineConfig configures the orchestrating engine.
type EngineConfig struct {
	MiningIntervalHours float64 `yaml:"mining_interval_hours" json:"mining_interval_hours"`
	MiningWindowHours   float64 `yaml:"mining_window_hours" json:"mining_window_hours"`
	EventBufferSize     int     `yaml:"event_buffer_size" json:"event_buffer_size"`
}

// MiningInterval returns the scheduled mining cadence as a duration.
func (e *EngineConfig) MiningInterval() time.Duration {
	return time.Duration(e.MiningIntervalHours * float64(time.Hour))
}

// MiningWindow returns the historical window a mining run covers.
func (e *EngineConfig) MiningWindow() time.Duration {
	return time.Duration(e.MiningWindowHours * float64(time.Hour))
}

// NATSConfig configures the JetStream event source.
type NATSConfig struct {
	URL          string  `yaml:"url" json:"url"`
	StreamName   string  `yaml:"stream_name" json:"stream_name"`
	Subject      string  `yaml:"subject" json:"subject"`
	ConsumerName string  `yaml:"consumer_name" json:"consumer_name"`
	RateLimit    float64 `yaml:"rate_limit" json:"rate_limit"` // events/sec, 0 = unlimited
	RateBurst    int     `yaml:"rate_burst" json:"rate_burst"`
}

// StorageConfig configures the SQLite store.
type StorageConfig struct {
	Path string `yaml:"path" json:"path"`
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		Streaming: StreamingConfig{
			RollingWindowHours: 24,
			MinSamples:         3,
			CacheTTLSeconds:    300,
		},
		Mining: MiningConfig{
			MinSupport:         0.05,
			MinConfidence:      0.6,
			MinLift:            1.0,
			MaxItemsetSize:     4,
			WindowSeconds:      300,
			MinTransactionSize: 2,
		},
		Temporal: TemporalConfig{
			MinConsistency: 0.5,
			MinOccurrences: 3,
			WindowSeconds:  300,
		},
		Relevance: RelevanceConfig{
			Threshold:      0.3,
			MaxPredictions: 500,
		},
		Engine: EngineConfig{
			MiningIntervalHours: 24,
			MiningWindowHours:   7 * 24,
			EventBufferSize:     1000,
		},
		NATS: NATSConfig{
			URL:          "nats://localhost:4222",
			StreamName:   "EVENTS",
			Subject:      "events.state.>",
			ConsumerName: "synaptic-engine",
			RateLimit:    0,
			RateBurst:    100,
		},
		Storage: StorageConfig{
			Path: "synaptic.db",
		},
	}
}

// Validate validates the full configuration. Any violation is fatal at
// construction time.
func (c *Config) Validate() error {
	if err := c.Streaming.Validate(); err != nil {
		return fmt.Errorf("streaming config validation failed: %w", err)
	}
	if err := c.Mining.Validate(); err != nil {
		return fmt.Errorf("mining config validation failed: %w", err)
	}
	if err := c.Temporal.Validate(); err != nil {
		return fmt.Errorf("temporal config validation failed: %w", err)
	}
	if err := c.Relevance.Validate(); err != nil {
		return fmt.Errorf("relevance config validation failed: %w", err)
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config validation failed: %w", err)
	}
	return nil
}

// Validate validates streaming configuration.
func (s *StreamingConfig) Validate() error {
	if s.RollingWindowHours <= 0 {
		return fmt.Errorf("rolling window hours must be positive")
	}
	if s.MinSamples < 2 {
		return fmt.Errorf("min samples must be at least 2")
	}
	if s.CacheTTLSeconds <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	return nil
}

// Validate validates mining configuration.
func (m *MiningConfig) Validate() error {
	if m.MinSupport <= 0 || m.MinSupport > 1 {
		return fmt.Errorf("min support must be in (0,1], got %v", m.MinSupport)
	}
	if m.MinConfidence <= 0 || m.MinConfidence > 1 {
		return fmt.Errorf("min confidence must be in (0,1], got %v", m.MinConfidence)
	}
	if m.MinLift < 0 {
		return fmt.Errorf("min lift cannot be negative, got %v", m.MinLift)
	}
	if m.MaxItemsetSize < 2 {
		return fmt.Errorf("max itemset size must be at least 2, got %d", m.MaxItemsetSize)
	}
	if m.WindowSeconds <= 0 {
		return fmt.Errorf("window seconds must be positive, got %v", m.WindowSeconds)
	}
	if m.MinTransactionSize < 2 {
		return fmt.Errorf("min transaction size must be at least 2, got %d", m.MinTransactionSize)
	}
	return nil
}

// Validate validates temporal configuration.
func (t *TemporalConfig) Validate() error {
	if t.MinConsistency < 0 || t.MinConsistency > 1 {
		return fmt.Errorf("min consistency must be in [0,1], got %v", t.MinConsistency)
	}
	if t.MinOccurrences < 1 {
		return fmt.Errorf("min occurrences must be at least 1, got %d", t.MinOccurrences)
	}
	if t.WindowSeconds <= 0 {
		return fmt.Errorf("window seconds must be positive, got %v", t.WindowSeconds)
	}
	return nil
}

// Validate validates relevance configuration.
func (r *RelevanceConfig) Validate() error {
	if r.Threshold < 0 || r.Threshold > 1 {
		return fmt.Errorf("threshold must be in [0,1], got %v", r.Threshold)
	}
	if r.MaxPredictions < 0 {
		return fmt.Errorf("max predictions cannot be negative, got %d", r.MaxPredictions)
	}
	return nil
}

// Validate validates engine configuration.
func (e *EngineConfig) Validate() error {
	if e.MiningIntervalHours <= 0 {
		return fmt.Errorf("mining interval must be positive")
	}
	if e.MiningWindowHours <= 0 {
		return fmt.Errorf("mining window must be positive")
	}
	if e.EventBufferSize <= 0 {
		return fmt.Errorf("event buffer size must be positive")
	}
	return nil
}
