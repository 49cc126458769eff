package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Workflow   WorkflowConfig   `mapstructure:"workflow"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Gate       GateConfig       `mapstructure:"gate"`
	LLM        LLMConfig        `mapstructure:"llm"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// WorkflowConfig configures pipeline execution.
type WorkflowConfig struct {
	Language     string        `mapstructure:"language"`
	AgentTimeout time.Duration `mapstructure:"agent_timeout"`
}

// CheckpointConfig configures checkpoint persistence.
type CheckpointConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Dir           string        `mapstructure:"dir"`
	Compress      bool          `mapstructure:"compress"`
	MaxActive     int           `mapstructure:"max_active"`
	Retention     time.Duration `mapstructure:"retention"`
	FormatVersion int           `mapstructure:"format_version"`
}

// CacheConfig configures the hybrid cache.
type CacheConfig struct {
	LocalCapacity int           `mapstructure:"local_capacity"`
	TTL           time.Duration `mapstructure:"ttl"`
	Shared        SharedCache   `mapstructure:"shared"`
}

// SharedCache configures the cross-process badger tier.
type SharedCache struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// GateConfig configures the confidence gate. Thresholds and weights are
// business policy carried as data, not code.
type GateConfig struct {
	// Weights assigns a relative weight to each named confidence factor.
	Weights map[string]float64 `mapstructure:"weights"`

	// Thresholds maps agent IDs to the minimum overall score they need
	// to be admitted into the consulting pass.
	Thresholds map[string]float64 `mapstructure:"thresholds"`

	// DefaultThreshold applies to agents without an explicit entry.
	DefaultThreshold float64 `mapstructure:"default_threshold"`

	// BorderlineWindow: an admitted agent whose margin over its
	// threshold is below this window runs flagged with a capped score.
	BorderlineWindow float64 `mapstructure:"borderline_window"`

	// BorderlineCap is the ceiling applied to flagged results.
	BorderlineCap float64 `mapstructure:"borderline_cap"`

	// FallbackAgent is admitted unconditionally when nothing else is,
	// its output tagged low_confidence.
	FallbackAgent string `mapstructure:"fallback_agent"`

	// MinProductMentions / MinMarketingMentions are structural gates for
	// the product and marketing advisors.
	MinProductMentions   int `mapstructure:"min_product_mentions"`
	MinMarketingMentions int `mapstructure:"min_marketing_mentions"`
}

// LLMConfig configures the optional model gateway.
type LLMConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Validate checks config invariants.
func (c *Config) Validate() error {
	if c.Workflow.AgentTimeout <= 0 {
		return fmt.Errorf("workflow.agent_timeout must be positive")
	}
	if c.Checkpoint.MaxActive < 1 {
		return fmt.Errorf("checkpoint.max_active must be at least 1")
	}
	if c.Cache.LocalCapacity < 1 {
		return fmt.Errorf("cache.local_capacity must be at least 1")
	}
	if c.Gate.DefaultThreshold < 0 || c.Gate.DefaultThreshold > 1 {
		return fmt.Errorf("gate.default_threshold must be in [0,1]")
	}
	for agent, th := range c.Gate.Thresholds {
		if th < 0 || th > 1 {
			return fmt.Errorf("gate.thresholds[%s] must be in [0,1]", agent)
		}
	}
	if c.Gate.FallbackAgent == "" {
		return fmt.Errorf("gate.fallback_agent is required")
	}
	return nil
}
