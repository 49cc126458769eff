package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfigYAML contains the default configuration file content
// written by `npsinsight init`.
const DefaultConfigYAML = `# NPS Insight Engine configuration
# Values not specified here use sensible defaults.

log:
  level: info
  format: text

workflow:
  language: zh
  agent_timeout: 2m

checkpoint:
  enabled: true
  dir: .npsinsight/checkpoints
  compress: true
  max_active: 10
  retention: 168h

cache:
  local_capacity: 512
  ttl: 1h
  shared:
    enabled: false
    dir: .npsinsight/cache

# Confidence gate policy. Thresholds gate consulting advisors on the
# overall confidence score computed after the analysis pass.
gate:
  default_threshold: 0.7
  borderline_window: 0.05
  borderline_cap: 0.5
  fallback_agent: advisor_strategic
  min_product_mentions: 5
  min_marketing_mentions: 3
  thresholds:
    advisor_strategic: 0.5
    advisor_product: 0.6
    advisor_marketing: 0.6
    advisor_risk: 0.7
  weights:
    sample_size: 1
    data_quality: 1
    analysis_completeness: 1
    outcome_severity: 1

# Optional model gateway for narrative synthesis. Disabled by default;
# agents fall back to deterministic summaries.
llm:
  enabled: false
  model: gpt-4o-mini
  temperature: 0.3
  timeout: 60s
`

// WriteDefault writes the default config file, refusing to overwrite.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	return os.WriteFile(path, []byte(DefaultConfigYAML), 0o644)
}

// Dump renders the effective configuration as YAML.
func Dump(cfg *Config) (string, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshaling config: %w", err)
	}
	return string(out), nil
}
