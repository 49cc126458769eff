// Package gate implements the admission-control policy for the
// consulting pass: a scalar+factor confidence assessment computed once
// after the analysis pass, and per-agent admission decisions against
// configured thresholds and structural requirements.
package gate

import (
	"fmt"
	"time"

	"github.com/SyncPort-ai/nps-insight-engine/internal/core"
	"github.com/SyncPort-ai/nps-insight-engine/internal/logging"
)

// Factor names produced by Assess.
const (
	FactorSampleSize           = "sample_size"
	FactorDataQuality          = "data_quality"
	FactorAnalysisCompleteness = "analysis_completeness"
	FactorOutcomeSeverity      = "outcome_severity"
)

// MetadataLowConfidence tags a fallback admission on the result metadata.
const MetadataLowConfidence = "low_confidence"

// Policy is the admission policy, carried as data.
type Policy struct {
	Weights              map[string]float64
	Thresholds           map[string]float64
	DefaultThreshold     float64
	BorderlineWindow     float64
	BorderlineCap        float64
	FallbackAgent        string
	MinProductMentions   int
	MinMarketingMentions int
}

// DefaultPolicy mirrors the shipped configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		Weights: map[string]float64{
			FactorSampleSize:           1,
			FactorDataQuality:          1,
			FactorAnalysisCompleteness: 1,
			FactorOutcomeSeverity:      1,
		},
		Thresholds: map[string]float64{
			"advisor_strategic": 0.5,
			"advisor_product":   0.6,
			"advisor_marketing": 0.6,
			"advisor_risk":      0.7,
		},
		DefaultThreshold:     0.7,
		BorderlineWindow:     0.05,
		BorderlineCap:        0.5,
		FallbackAgent:        "advisor_strategic",
		MinProductMentions:   5,
		MinMarketingMentions: 3,
	}
}

// Admission is the per-agent outcome of gate planning.
type Admission struct {
	AgentID    string
	Borderline bool
	Fallback   bool
}

// Gate computes confidence and filters the consulting candidate set.
type Gate struct {
	policy Policy
	logger *logging.Logger
}

// New creates a gate with the given policy.
func New(policy Policy, logger *logging.Logger) *Gate {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Gate{policy: policy, logger: logger}
}

// Assess computes the confidence assessment from the post-analysis
// state. Each named factor maps a raw metric into [0,1] via fixed bands;
// the overall score is their weighted average.
func (g *Gate) Assess(state *core.AnalysisState) *core.ConfidenceAssessment {
	factors := map[string]float64{
		FactorSampleSize:           g.sampleSizeFactor(state),
		FactorDataQuality:          g.dataQualityFactor(state),
		FactorAnalysisCompleteness: g.completenessFactor(state),
		FactorOutcomeSeverity:      g.severityFactor(state),
	}

	var weighted, total float64
	for name, score := range factors {
		w, ok := g.policy.Weights[name]
		if !ok {
			w = 1
		}
		weighted += score * w
		total += w
	}
	overall := 0.5
	if total > 0 {
		overall = weighted / total
	}

	assessment := &core.ConfidenceAssessment{
		OverallScore: overall,
		Factors:      factors,
		Tier:         core.TierForScore(overall),
		ComputedAt:   time.Now().UTC(),
	}
	g.logger.Info("confidence assessed",
		"workflow_id", state.WorkflowID,
		"overall_score", fmt.Sprintf("%.3f", overall),
		"tier", assessment.Tier,
	)
	return assessment
}

// Admit reports whether the agent clears its configured threshold.
// Structural gates are applied by Plan, which also enforces the
// guaranteed-progress fallback.
func (g *Gate) Admit(agentID string, assessment *core.ConfidenceAssessment) bool {
	return assessment.OverallScore >= g.threshold(agentID)
}

// Plan filters the candidate set. An agent is admitted iff it clears its
// threshold AND its structural gates; admitted agents whose margin over
// the threshold is inside the borderline window are flagged. If nothing
// is admitted the fallback agent is admitted unconditionally, so the
// consulting pass is never empty.
func (g *Gate) Plan(candidates []string, assessment *core.ConfidenceAssessment, state *core.AnalysisState) []Admission {
	var admitted []Admission
	for _, agentID := range candidates {
		if !g.Admit(agentID, assessment) {
			g.logger.Info("agent rejected by confidence gate",
				"agent_id", agentID,
				"score", fmt.Sprintf("%.3f", assessment.OverallScore),
				"threshold", g.threshold(agentID),
			)
			continue
		}
		if reason, ok := g.structuralReject(agentID, state); ok {
			g.logger.Info("agent rejected by structural gate", "agent_id", agentID, "reason", reason)
			continue
		}
		margin := assessment.OverallScore - g.threshold(agentID)
		admitted = append(admitted, Admission{
			AgentID:    agentID,
			Borderline: margin < g.policy.BorderlineWindow,
		})
	}

	if len(admitted) == 0 && g.policy.FallbackAgent != "" {
		g.logger.Warn("no agents admitted, falling back",
			"fallback_agent", g.policy.FallbackAgent,
			"score", fmt.Sprintf("%.3f", assessment.OverallScore),
		)
		admitted = append(admitted, Admission{
			AgentID:  g.policy.FallbackAgent,
			Fallback: true,
		})
	}
	return admitted
}

// FallbackAdmission returns the unconditional fallback admission. The
// orchestrator uses it when every admitted advisor failed at runtime,
// so the consulting pass still yields at least one flagged result.
func (g *Gate) FallbackAdmission() (Admission, bool) {
	if g.policy.FallbackAgent == "" {
		return Admission{}, false
	}
	return Admission{AgentID: g.policy.FallbackAgent, Fallback: true}, true
}

// Annotate applies the post-hoc result markings the plan calls for:
// fallback results carry the low_confidence tag, borderline results get
// a capped score and a warning.
func (g *Gate) Annotate(adm Admission, result *core.AgentResult) {
	if adm.Fallback {
		result.Annotate(MetadataLowConfidence, true)
		result.Warnings = append(result.Warnings,
			"admitted as mandatory fallback under low confidence; review before action")
	}
	if adm.Borderline {
		result.CapConfidence(g.policy.BorderlineCap, g.policy.BorderlineCap)
		result.Annotate("confidence_level", "borderline")
		result.Warnings = append(result.Warnings,
			"confidence margin is borderline for this recommendation set; review before action")
	}
}

func (g *Gate) threshold(agentID string) float64 {
	if th, ok := g.policy.Thresholds[agentID]; ok {
		return th
	}
	return g.policy.DefaultThreshold
}

// structuralReject applies agent-specific requirements unrelated to the
// scalar score.
func (g *Gate) structuralReject(agentID string, state *core.AnalysisState) (string, bool) {
	switch agentID {
	case "advisor_product":
		n := countTaggedMentions(state, "product")
		if n < g.policy.MinProductMentions {
			return fmt.Sprintf("only %d product-tagged mentions, need %d", n, g.policy.MinProductMentions), true
		}
	case "advisor_marketing":
		n := countTaggedMentions(state, "marketing")
		if n < g.policy.MinMarketingMentions {
			return fmt.Sprintf("only %d marketing-tagged mentions, need %d", n, g.policy.MinMarketingMentions), true
		}
	case "advisor_risk":
		if quality := dataQuality(state); quality == "insufficient" {
			return "data quality is insufficient for risk assessment", true
		}
	}
	return "", false
}

// --- factor band mappings ---

func (g *Gate) sampleSizeFactor(state *core.AnalysisState) float64 {
	metrics := asMap(state.Data["nps_metrics"])
	if asBool(metrics["statistical_significance"]) {
		return 0.9
	}
	switch size := asInt(metrics["sample_size"]); {
	case size >= 100:
		return 0.8
	case size >= 50:
		return 0.6
	default:
		return 0.4
	}
}

func (g *Gate) dataQualityFactor(state *core.AnalysisState) float64 {
	switch dataQuality(state) {
	case "high":
		return 0.9
	case "medium":
		return 0.7
	case "insufficient":
		return 0.2
	default:
		return 0.4
	}
}

// analysisOutputKeys are the overlay keys the analysis pass is expected
// to fill; completeness is the fraction present.
var analysisOutputKeys = []string{
	"promoter_analysis",
	"passive_analysis",
	"detractor_analysis",
	"trend_analysis",
	"benchmark_comparison",
	"product_dimension",
	"geographic_dimension",
	"channel_dimension",
}

func (g *Gate) completenessFactor(state *core.AnalysisState) float64 {
	completed := 0
	for _, key := range analysisOutputKeys {
		if _, ok := state.Data[key]; ok {
			completed++
		}
	}
	ratio := float64(completed) / float64(len(analysisOutputKeys))
	if ratio > 0.9 {
		return 0.9
	}
	return ratio
}

func (g *Gate) severityFactor(state *core.AnalysisState) float64 {
	metrics := asMap(state.Data["nps_metrics"])
	switch nps := asFloat(metrics["nps_score"]); {
	case nps < 0:
		return 0.5
	case nps < 20:
		return 0.7
	default:
		return 0.9
	}
}

func dataQuality(state *core.AnalysisState) string {
	cleaned := asMap(state.Data["cleaned_data"])
	return asString(cleaned["data_quality"])
}

// countTaggedMentions counts tagged responses carrying the given tag.
func countTaggedMentions(state *core.AnalysisState, tag string) int {
	tagged, _ := state.Data["tagged_responses"].([]any)
	count := 0
	for _, entry := range tagged {
		m := asMap(entry)
		tags, _ := m["tags"].([]any)
		for _, t := range tags {
			if asString(t) == tag {
				count++
				break
			}
		}
	}
	return count
}

// --- loose typing helpers ---
//
// Overlay values arrive either as in-process Go values or as JSON
// round-tripped values after a checkpoint load, so numbers may be int,
// int64 or float64.

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return 0
	}
}

func asInt(v any) int {
	return int(asFloat(v))
}
