package agents

import (
	"context"
	"fmt"

	"github.com/SyncPort-ai/nps-insight-engine/internal/core"
	"github.com/SyncPort-ai/nps-insight-engine/internal/llm"
)

// StrategicAdvisor turns the full analysis picture into strategic
// recommendations. It is the broadest advisor and the designated
// fallback when every other consulting stage is gated out.
type StrategicAdvisor struct {
	Gateway llm.Gateway
}

func (a *StrategicAdvisor) ID() string { return AgentAdvisorStrategic }

func (a *StrategicAdvisor) Execute(ctx context.Context, state *core.AnalysisState) (core.AgentResult, error) {
	metrics := asMap(state.Data["nps_metrics"])
	if metrics == nil {
		return core.AgentResult{}, core.ErrState(core.CodeInvalidState, "nps_metrics missing; analysis incomplete")
	}
	nps, _ := asFloat(metrics["nps_score"])

	var recs []any
	switch {
	case nps < 0:
		recs = append(recs,
			recommendation("stabilize", "high", "Negative NPS requires immediate retention focus: prioritize detractor recovery over acquisition."),
			recommendation("listen", "high", "Stand up a closed-loop feedback program to contact every detractor within 48 hours."))
	case nps < 20:
		recs = append(recs,
			recommendation("improve", "high", "NPS below growth threshold: concentrate on converting passives through targeted experience fixes."))
	default:
		recs = append(recs,
			recommendation("amplify", "medium", "Healthy NPS base: invest in referral and advocacy programs to compound promoter goodwill."))
	}
	if bench := asMap(state.Data["benchmark_comparison"]); bench != nil {
		if asString(bench["relative_position"]) == "below_average" {
			recs = append(recs, recommendation("benchmark", "medium", "Score trails the industry median; commission a competitive experience audit."))
		}
	}

	var tokens int
	if a.Gateway != nil {
		prompt := fmt.Sprintf("Refine these NPS strategy recommendations for an executive audience: %v", recs)
		if text, err := a.Gateway.Complete(ctx, prompt); err == nil && text != "" {
			recs = append(recs, recommendation("narrative", "low", text))
			tokens = llm.EstimateTokens(prompt, text)
		}
	}

	result := core.CompletedResult(a.ID(), map[string]any{
		"strategic_recommendations": recs,
	})
	result.TokensUsed = tokens
	return result, nil
}

func recommendation(theme, priority, text string) map[string]any {
	return map[string]any{"theme": theme, "priority": priority, "recommendation": text}
}

// ProductAdvisor issues product-facing recommendations from the tag
// counts and the product dimension slice. The gate only admits it when
// enough product feedback exists to ground the advice.
type ProductAdvisor struct{}

func (a *ProductAdvisor) ID() string { return AgentAdvisorProduct }

func (a *ProductAdvisor) Execute(ctx context.Context, state *core.AnalysisState) (core.AgentResult, error) {
	counts := asMap(state.Data["tag_counts"])
	mentions, _ := asInt(counts["product"])

	var recs []any
	recs = append(recs, recommendation("quality", "high",
		fmt.Sprintf("Product feedback appears in %d responses; route the tagged comments to the product quality review board.", mentions)))
	if dim := asMap(state.Data["product_dimension"]); dim != nil {
		if weakest := weakestGroup(dim); weakest != "" {
			recs = append(recs, recommendation("portfolio", "medium",
				fmt.Sprintf("Product line %q scores lowest; schedule a root-cause review of its recent feedback.", weakest)))
		}
	}
	if pkg, _ := asInt(counts["packaging"]); pkg > 0 {
		recs = append(recs, recommendation("packaging", "low",
			fmt.Sprintf("%d responses mention packaging; include packaging in the next design iteration.", pkg)))
	}

	return core.CompletedResult(a.ID(), map[string]any{
		"product_recommendations": recs,
	}), nil
}

// MarketingAdvisor issues campaign and positioning recommendations.
// Admitted only when the sample carries enough marketing signal.
type MarketingAdvisor struct{}

func (a *MarketingAdvisor) ID() string { return AgentAdvisorMarketing }

func (a *MarketingAdvisor) Execute(ctx context.Context, state *core.AnalysisState) (core.AgentResult, error) {
	metrics := asMap(state.Data["nps_metrics"])
	promoterRatio, _ := asFloat(metrics["promoter_ratio"])

	var recs []any
	if promoterRatio >= 0.4 {
		recs = append(recs, recommendation("advocacy", "high",
			"A strong promoter base supports a referral campaign; seed it with the representative promoter comments."))
	} else {
		recs = append(recs, recommendation("positioning", "medium",
			"Promoter share is thin; align messaging with the strongest-scoring dimension groups before scaling spend."))
	}
	if dim := asMap(state.Data["channel_dimension"]); dim != nil {
		if weakest := weakestGroup(dim); weakest != "" {
			recs = append(recs, recommendation("channel", "medium",
				fmt.Sprintf("Channel %q underperforms; review its funnel messaging and post-purchase touchpoints.", weakest)))
		}
	}

	return core.CompletedResult(a.ID(), map[string]any{
		"marketing_recommendations": recs,
	}), nil
}

// RiskAdvisor assesses churn and reputation exposure. Structurally
// gated out when data quality is insufficient, since risk calls on bad
// data are worse than none.
type RiskAdvisor struct{}

func (a *RiskAdvisor) ID() string { return AgentAdvisorRisk }

func (a *RiskAdvisor) Execute(ctx context.Context, state *core.AnalysisState) (core.AgentResult, error) {
	metrics := asMap(state.Data["nps_metrics"])
	if metrics == nil {
		return core.AgentResult{}, core.ErrState(core.CodeInvalidState, "nps_metrics missing; analysis incomplete")
	}
	detractorRatio, _ := asFloat(metrics["detractor_ratio"])
	nps, _ := asFloat(metrics["nps_score"])

	level := "low"
	switch {
	case nps < 0 || detractorRatio >= 0.4:
		level = "high"
	case detractorRatio >= 0.25:
		level = "medium"
	}

	var risks []any
	risks = append(risks, map[string]any{
		"risk":       "churn",
		"level":      level,
		"detail":     fmt.Sprintf("%.0f%% of respondents are detractors", detractorRatio*100),
		"mitigation": "prioritized detractor outreach with service recovery offers",
	})
	if det := asMap(state.Data["detractor_analysis"]); det != nil {
		if topics := asSlice(det["top_topics"]); len(topics) > 0 {
			top := asMap(topics[0])
			risks = append(risks, map[string]any{
				"risk":       "reputation",
				"level":      level,
				"detail":     fmt.Sprintf("detractor complaints concentrate on %q", asString(top["topic"])),
				"mitigation": "publish a visible remediation plan for the dominant complaint theme",
			})
		}
	}

	return core.CompletedResult(a.ID(), map[string]any{
		"risk_assessment": map[string]any{
			"overall_level": level,
			"risks":         risks,
		},
	}), nil
}

// ExecSynthAgent assembles the executive summary and dashboard from
// whatever consulting outputs were admitted and completed. It never
// fails on missing advisor output; degradation is part of its job.
type ExecSynthAgent struct {
	Gateway llm.Gateway
}

func (a *ExecSynthAgent) ID() string { return AgentExecSynth }

func (a *ExecSynthAgent) Execute(ctx context.Context, state *core.AnalysisState) (core.AgentResult, error) {
	metrics := asMap(state.Data["nps_metrics"])
	nps, _ := asFloat(metrics["nps_score"])
	sample, _ := asInt(metrics["sample_size"])

	status := "healthy"
	switch {
	case nps < 0:
		status = "critical"
	case nps < 20:
		status = "at_risk"
	}

	available := make([]any, 0, 4)
	for _, key := range []string{"strategic_recommendations", "product_recommendations", "marketing_recommendations", "risk_assessment"} {
		if _, ok := state.Data[key]; ok {
			available = append(available, key)
		}
	}

	summary := fmt.Sprintf("NPS stands at %.1f over %d responses; business status %s. %d of 4 advisory tracks contributed.",
		nps, sample, status, len(available))
	var tokens int
	if a.Gateway != nil {
		prompt := fmt.Sprintf("Write a three-sentence executive summary. NPS %.1f, sample %d, status %s, advisory inputs: %v", nps, sample, status, available)
		if text, err := a.Gateway.Complete(ctx, prompt); err == nil && text != "" {
			summary = text
			tokens = llm.EstimateTokens(prompt, text)
		}
	}

	dashboard := map[string]any{
		"nps_score":       nps,
		"sample_size":     sample,
		"business_status": status,
		"advisory_tracks": available,
		"health_score":    round2(healthScore(nps)),
	}
	if state.Confidence != nil {
		dashboard["confidence"] = state.Confidence.OverallScore
		dashboard["confidence_tier"] = string(state.Confidence.Tier)
	}

	result := core.CompletedResult(a.ID(), map[string]any{
		"executive_summary":   summary,
		"executive_dashboard": dashboard,
	})
	result.TokensUsed = tokens
	return result, nil
}

// healthScore maps NPS (-100..100) onto a 0..1 health scale.
func healthScore(nps float64) float64 {
	score := (nps + 100) / 200
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
