package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "NPSINSIGHT",
	}
}

// NewLoaderWithViper creates a loader using an existing viper instance,
// allowing CLI flag bindings to participate in precedence.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "NPSINSIGHT",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (NPSINSIGHT_*)
// 3. Project config (.npsinsight.yaml in current directory)
// 4. User config (~/.config/npsinsight/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".npsinsight")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "npsinsight"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values.
func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "text")

	l.v.SetDefault("workflow.language", "zh")
	l.v.SetDefault("workflow.agent_timeout", 2*time.Minute)

	l.v.SetDefault("checkpoint.enabled", true)
	l.v.SetDefault("checkpoint.dir", ".npsinsight/checkpoints")
	l.v.SetDefault("checkpoint.compress", true)
	l.v.SetDefault("checkpoint.max_active", 10)
	l.v.SetDefault("checkpoint.retention", 7*24*time.Hour)
	l.v.SetDefault("checkpoint.format_version", 1)

	l.v.SetDefault("cache.local_capacity", 512)
	l.v.SetDefault("cache.ttl", time.Hour)
	l.v.SetDefault("cache.shared.enabled", false)
	l.v.SetDefault("cache.shared.dir", ".npsinsight/cache")

	l.v.SetDefault("gate.weights", map[string]float64{
		"sample_size":           1,
		"data_quality":          1,
		"analysis_completeness": 1,
		"outcome_severity":      1,
	})
	l.v.SetDefault("gate.thresholds", map[string]float64{
		"advisor_strategic": 0.5,
		"advisor_product":   0.6,
		"advisor_marketing": 0.6,
		"advisor_risk":      0.7,
	})
	l.v.SetDefault("gate.default_threshold", 0.7)
	l.v.SetDefault("gate.borderline_window", 0.05)
	l.v.SetDefault("gate.borderline_cap", 0.5)
	l.v.SetDefault("gate.fallback_agent", "advisor_strategic")
	l.v.SetDefault("gate.min_product_mentions", 5)
	l.v.SetDefault("gate.min_marketing_mentions", 3)

	l.v.SetDefault("llm.enabled", false)
	l.v.SetDefault("llm.model", "gpt-4o-mini")
	l.v.SetDefault("llm.temperature", 0.3)
	l.v.SetDefault("llm.timeout", 60*time.Second)
}
