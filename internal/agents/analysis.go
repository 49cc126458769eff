package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/SyncPort-ai/nps-insight-engine/internal/core"
	"github.com/SyncPort-ai/nps-insight-engine/internal/llm"
)

// SegmentKind selects which NPS band a SegmentAgent analyzes.
type SegmentKind string

const (
	SegmentPromoter  SegmentKind = "promoter"
	SegmentPassive   SegmentKind = "passive"
	SegmentDetractor SegmentKind = "detractor"
)

func (k SegmentKind) matches(score int) bool {
	switch k {
	case SegmentPromoter:
		return score >= 9
	case SegmentPassive:
		return score >= 7 && score <= 8
	default:
		return score <= 6
	}
}

func (k SegmentKind) outputKey() string { return string(k) + "_analysis" }

// SegmentAgent summarizes one NPS band: its share of the sample, its
// dominant topics, and representative comments.
type SegmentAgent struct {
	id   string
	kind SegmentKind
}

func NewSegmentAgent(id string, kind SegmentKind) *SegmentAgent {
	return &SegmentAgent{id: id, kind: kind}
}

func (a *SegmentAgent) ID() string { return a.id }

func (a *SegmentAgent) Execute(ctx context.Context, state *core.AnalysisState) (core.AgentResult, error) {
	tagged := asSlice(state.Data["tagged_responses"])
	if len(tagged) == 0 {
		return core.AgentResult{}, core.ErrState(core.CodeInvalidState, "tagged_responses missing; foundation incomplete")
	}

	var members []map[string]any
	topics := make(map[string]int)
	for _, t := range tagged {
		resp := asMap(t)
		score, _ := asInt(resp["nps_score"])
		if !a.kind.matches(score) {
			continue
		}
		members = append(members, resp)
		for _, tag := range asSlice(resp["tags"]) {
			topics[asString(tag)]++
		}
	}

	var comments []any
	for _, m := range members {
		if c := asString(m["comment"]); c != "" && len(comments) < 3 {
			comments = append(comments, c)
		}
	}

	result := core.CompletedResult(a.ID(), map[string]any{
		a.kind.outputKey(): map[string]any{
			"segment":                 string(a.kind),
			"count":                   len(members),
			"share":                   round2(float64(len(members)) / float64(len(tagged))),
			"top_topics":              topTopics(topics, 3),
			"representative_comments": comments,
		},
	})
	return result, nil
}

func topTopics(counts map[string]int, limit int) []any {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > limit {
		names = names[:limit]
	}
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = map[string]any{"topic": n, "mentions": counts[n]}
	}
	return out
}

// TrendAgent derives the score distribution and a momentum label from
// the cleaned responses. With no historical baseline in the input, the
// distribution itself is the trend signal.
type TrendAgent struct{}

func (a *TrendAgent) ID() string { return AgentTrend }

func (a *TrendAgent) Execute(ctx context.Context, state *core.AnalysisState) (core.AgentResult, error) {
	responses, err := cleanedResponses(state)
	if err != nil {
		return core.AgentResult{}, err
	}

	dist := make([]int, 11)
	var sum int
	for _, r := range responses {
		score, _ := asInt(asMap(r)["nps_score"])
		dist[score]++
		sum += score
	}
	avg := float64(sum) / float64(len(responses))

	distribution := make(map[string]any, 11)
	for score, n := range dist {
		distribution[fmt.Sprintf("%d", score)] = n
	}
	result := core.CompletedResult(a.ID(), map[string]any{
		"trend_analysis": map[string]any{
			"score_distribution": distribution,
			"average_score":      round2(avg),
			"momentum":           momentumLabel(avg),
		},
	})
	return result, nil
}

func momentumLabel(avg float64) string {
	switch {
	case avg >= 8.5:
		return "strengthening"
	case avg >= 7:
		return "stable"
	default:
		return "weakening"
	}
}

// Industry reference points for the benchmark comparison. Values are
// consumer-goods sector medians.
const (
	benchmarkIndustryNPS = 30.0
	benchmarkTopQuartile = 50.0
)

// BenchmarkAgent positions the measured NPS against industry reference
// values.
type BenchmarkAgent struct{}

func (a *BenchmarkAgent) ID() string { return AgentBenchmark }

func (a *BenchmarkAgent) Execute(ctx context.Context, state *core.AnalysisState) (core.AgentResult, error) {
	metrics := asMap(state.Data["nps_metrics"])
	if metrics == nil {
		return core.AgentResult{}, core.ErrState(core.CodeInvalidState, "nps_metrics missing; quant has not run")
	}
	nps, _ := asFloat(metrics["nps_score"])

	position := "below_average"
	switch {
	case nps >= benchmarkTopQuartile:
		position = "top_quartile"
	case nps >= benchmarkIndustryNPS:
		position = "above_average"
	}
	result := core.CompletedResult(a.ID(), map[string]any{
		"benchmark_comparison": map[string]any{
			"nps_score":         nps,
			"industry_median":   benchmarkIndustryNPS,
			"top_quartile":      benchmarkTopQuartile,
			"delta_to_median":   round2(nps - benchmarkIndustryNPS),
			"relative_position": position,
		},
	})
	return result, nil
}

// DimensionAgent slices NPS along one response attribute (product line,
// segment, channel) and reports per-group scores.
type DimensionAgent struct {
	id        string
	outputKey string
	field     func(map[string]any) string
}

func dimensionByProduct(r map[string]any) string { return asString(r["product_line"]) }
func dimensionBySegment(r map[string]any) string { return asString(r["segment"]) }
func dimensionByChannel(r map[string]any) string { return asString(r["channel"]) }

func NewDimensionAgent(id, outputKey string, field func(map[string]any) string) *DimensionAgent {
	return &DimensionAgent{id: id, outputKey: outputKey, field: field}
}

func (a *DimensionAgent) ID() string { return a.id }

func (a *DimensionAgent) Execute(ctx context.Context, state *core.AnalysisState) (core.AgentResult, error) {
	responses, err := cleanedResponses(state)
	if err != nil {
		return core.AgentResult{}, err
	}

	type bucket struct{ promoters, detractors, total int }
	buckets := make(map[string]*bucket)
	for _, r := range responses {
		resp := asMap(r)
		group := a.field(resp)
		if group == "" {
			group = "unspecified"
		}
		b := buckets[group]
		if b == nil {
			b = &bucket{}
			buckets[group] = b
		}
		b.total++
		score, _ := asInt(resp["nps_score"])
		switch {
		case score >= 9:
			b.promoters++
		case score <= 6:
			b.detractors++
		}
	}

	groups := make([]string, 0, len(buckets))
	for g := range buckets {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	out := make([]any, 0, len(groups))
	for _, g := range groups {
		b := buckets[g]
		out = append(out, map[string]any{
			"group":       g,
			"sample_size": b.total,
			"nps_score":   round2(100 * float64(b.promoters-b.detractors) / float64(b.total)),
		})
	}
	result := core.CompletedResult(a.ID(), map[string]any{
		a.outputKey: map[string]any{"groups": out},
	})
	return result, nil
}

// AnalysisSynthAgent consolidates the analysis outputs into key
// findings. When a gateway is configured it also produces a narrative
// summary; otherwise a deterministic one is assembled.
type AnalysisSynthAgent struct {
	Gateway llm.Gateway
}

func (a *AnalysisSynthAgent) ID() string { return AgentAnalysisSynth }

func (a *AnalysisSynthAgent) Execute(ctx context.Context, state *core.AnalysisState) (core.AgentResult, error) {
	metrics := asMap(state.Data["nps_metrics"])
	if metrics == nil {
		return core.AgentResult{}, core.ErrState(core.CodeInvalidState, "nps_metrics missing; foundation incomplete")
	}
	nps, _ := asFloat(metrics["nps_score"])

	var findings []any
	findings = append(findings, fmt.Sprintf("NPS score is %.1f across %v responses", nps, metrics["sample_size"]))
	if bench := asMap(state.Data["benchmark_comparison"]); bench != nil {
		findings = append(findings, fmt.Sprintf("relative market position: %s", asString(bench["relative_position"])))
	}
	if det := asMap(state.Data["detractor_analysis"]); det != nil {
		if share, ok := asFloat(det["share"]); ok && share > 0.2 {
			findings = append(findings, fmt.Sprintf("detractors account for %.0f%% of responses", share*100))
		}
	}
	for _, key := range []string{"product_dimension", "geographic_dimension", "channel_dimension"} {
		if dim := asMap(state.Data[key]); dim != nil {
			if weakest := weakestGroup(dim); weakest != "" {
				findings = append(findings, fmt.Sprintf("weakest %s group: %s", strings.TrimSuffix(key, "_dimension"), weakest))
			}
		}
	}

	narrative := fmt.Sprintf("Overall NPS of %.1f with %d key findings across segment, trend, benchmark and dimensional analyses.", nps, len(findings))
	var tokens int
	if a.Gateway != nil {
		prompt := fmt.Sprintf("Summarize these NPS survey findings in two sentences: %v", findings)
		if text, err := a.Gateway.Complete(ctx, prompt); err == nil && text != "" {
			narrative = text
			tokens = llm.EstimateTokens(prompt, text)
		}
	}

	result := core.CompletedResult(a.ID(), map[string]any{
		"analysis_synthesis": map[string]any{
			"key_findings": findings,
			"narrative":    narrative,
		},
	})
	result.TokensUsed = tokens
	return result, nil
}

func weakestGroup(dim map[string]any) string {
	var name string
	var worst float64
	for i, g := range asSlice(dim["groups"]) {
		group := asMap(g)
		score, _ := asFloat(group["nps_score"])
		if i == 0 || score < worst {
			worst = score
			name = asString(group["group"])
		}
	}
	return name
}
