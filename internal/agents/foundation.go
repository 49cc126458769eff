package agents

import (
	"context"
	"sort"
	"strings"

	"github.com/SyncPort-ai/nps-insight-engine/internal/core"
)

// IngestAgent validates and cleans the raw survey responses. It is the
// first foundation stage; everything downstream reads cleaned_data
// instead of touching the raw input again.
type IngestAgent struct{}

func (a *IngestAgent) ID() string { return AgentIngest }

func (a *IngestAgent) Execute(ctx context.Context, state *core.AnalysisState) (core.AgentResult, error) {
	total := len(state.RawInput)
	if total == 0 {
		return core.AgentResult{}, core.ErrValidation(core.CodeEmptyInput, "no survey responses to analyze")
	}

	valid := make([]map[string]any, 0, total)
	invalid := 0
	for _, resp := range state.RawInput {
		if resp.NPSScore < 0 || resp.NPSScore > 10 {
			invalid++
			continue
		}
		valid = append(valid, map[string]any{
			"response_id":  resp.ResponseID,
			"nps_score":    resp.NPSScore,
			"comment":      strings.TrimSpace(resp.Comment),
			"product_line": resp.ProductLine,
			"segment":      resp.Segment,
			"channel":      resp.Channel,
		})
	}
	if len(valid) == 0 {
		return core.AgentResult{}, core.ErrValidation(core.CodeEmptyInput, "all survey responses failed validation")
	}

	ratio := float64(len(valid)) / float64(total)
	result := core.CompletedResult(a.ID(), map[string]any{
		"cleaned_data": map[string]any{
			"total_responses":   total,
			"valid_responses":   len(valid),
			"invalid_responses": invalid,
			"valid_ratio":       round2(ratio),
			"data_quality":      dataQuality(len(valid), ratio),
			"responses":         toAnySlice(valid),
		},
	})
	return result, nil
}

func dataQuality(valid int, ratio float64) string {
	switch {
	case valid >= 100 && ratio >= 0.9:
		return "high"
	case valid >= 50 && ratio >= 0.8:
		return "medium"
	case valid >= 10:
		return "low"
	default:
		return "insufficient"
	}
}

func toAnySlice(in []map[string]any) []any {
	out := make([]any, len(in))
	for i, m := range in {
		out[i] = m
	}
	return out
}

// QuantAgent computes the NPS metrics from the cleaned responses. It
// depends on the ingest overlay and fails if it is absent.
type QuantAgent struct{}

func (a *QuantAgent) ID() string { return AgentQuant }

func (a *QuantAgent) Execute(ctx context.Context, state *core.AnalysisState) (core.AgentResult, error) {
	responses, err := cleanedResponses(state)
	if err != nil {
		return core.AgentResult{}, err
	}

	var promoters, passives, detractors int
	for _, r := range responses {
		score, _ := asInt(asMap(r)["nps_score"])
		switch {
		case score >= 9:
			promoters++
		case score >= 7:
			passives++
		default:
			detractors++
		}
	}
	sample := len(responses)
	nps := 100 * float64(promoters-detractors) / float64(sample)

	result := core.CompletedResult(a.ID(), map[string]any{
		"nps_metrics": map[string]any{
			"nps_score":                round2(nps),
			"sample_size":              sample,
			"promoters":                promoters,
			"passives":                 passives,
			"detractors":               detractors,
			"promoter_ratio":           round2(float64(promoters) / float64(sample)),
			"detractor_ratio":          round2(float64(detractors) / float64(sample)),
			"statistical_significance": sample >= 100,
		},
	})
	return result, nil
}

func cleanedResponses(state *core.AnalysisState) ([]any, error) {
	cleaned := asMap(state.Data["cleaned_data"])
	if cleaned == nil {
		return nil, core.ErrState(core.CodeInvalidState, "cleaned_data missing; ingest has not run")
	}
	responses := asSlice(cleaned["responses"])
	if len(responses) == 0 {
		return nil, core.ErrState(core.CodeInvalidState, "cleaned_data holds no responses")
	}
	return responses, nil
}

// tagKeywords maps a tag category to the comment keywords that imply
// it. Both Chinese and English terms appear; survey corpora mix the
// two freely.
var tagKeywords = map[string][]string{
	"product":   {"product", "taste", "flavor", "quality", "产品", "口味", "味道", "质量", "口感"},
	"packaging": {"packaging", "package", "bottle", "包装", "瓶"},
	"price":     {"price", "expensive", "cheap", "cost", "价格", "贵", "便宜", "性价比"},
	"service":   {"service", "support", "staff", "服务", "客服", "态度"},
	"marketing": {"marketing", "advert", "promotion", "campaign", "brand", "营销", "广告", "促销", "品牌", "宣传"},
	"logistics": {"delivery", "shipping", "logistics", "配送", "物流", "快递"},
}

// tagOrder keeps tag output deterministic across runs.
var tagOrder = []string{"product", "packaging", "price", "service", "marketing", "logistics"}

// TaggerAgent assigns topic tags and a sentiment label to every cleaned
// response based on keyword matching over the comment text.
type TaggerAgent struct{}

func (a *TaggerAgent) ID() string { return AgentTagger }

func (a *TaggerAgent) Execute(ctx context.Context, state *core.AnalysisState) (core.AgentResult, error) {
	responses, err := cleanedResponses(state)
	if err != nil {
		return core.AgentResult{}, err
	}

	tagged := make([]any, 0, len(responses))
	counts := make(map[string]int, len(tagOrder))
	for _, r := range responses {
		resp := asMap(r)
		comment := strings.ToLower(asString(resp["comment"]))
		tags := make([]any, 0, 2)
		for _, tag := range tagOrder {
			if containsAny(comment, tagKeywords[tag]) {
				tags = append(tags, tag)
				counts[tag]++
			}
		}
		score, _ := asInt(resp["nps_score"])
		tagged = append(tagged, map[string]any{
			"response_id": asString(resp["response_id"]),
			"nps_score":   score,
			"comment":     asString(resp["comment"]),
			"tags":        tags,
			"sentiment":   sentimentForScore(score),
		})
	}

	tagCounts := make(map[string]any, len(counts))
	for tag, n := range counts {
		tagCounts[tag] = n
	}
	result := core.CompletedResult(a.ID(), map[string]any{
		"tagged_responses": tagged,
		"tag_counts":       tagCounts,
	})
	return result, nil
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func sentimentForScore(score int) string {
	switch {
	case score >= 9:
		return "positive"
	case score <= 6:
		return "negative"
	default:
		return "neutral"
	}
}

// ClusterAgent groups tagged responses into themes by their dominant
// tag. Untagged responses collect under a general theme so every
// response lands in exactly one cluster.
type ClusterAgent struct{}

func (a *ClusterAgent) ID() string { return AgentCluster }

func (a *ClusterAgent) Execute(ctx context.Context, state *core.AnalysisState) (core.AgentResult, error) {
	tagged := asSlice(state.Data["tagged_responses"])
	if len(tagged) == 0 {
		return core.AgentResult{}, core.ErrState(core.CodeInvalidState, "tagged_responses missing; tagger has not run")
	}

	type cluster struct {
		ids       []any
		sentiment map[string]int
	}
	clusters := make(map[string]*cluster)
	for _, t := range tagged {
		resp := asMap(t)
		theme := "general"
		if tags := asSlice(resp["tags"]); len(tags) > 0 {
			theme = asString(tags[0])
		}
		c := clusters[theme]
		if c == nil {
			c = &cluster{sentiment: make(map[string]int)}
			clusters[theme] = c
		}
		c.ids = append(c.ids, asString(resp["response_id"]))
		c.sentiment[asString(resp["sentiment"])]++
	}

	themes := make([]string, 0, len(clusters))
	for theme := range clusters {
		themes = append(themes, theme)
	}
	sort.Slice(themes, func(i, j int) bool {
		if len(clusters[themes[i]].ids) != len(clusters[themes[j]].ids) {
			return len(clusters[themes[i]].ids) > len(clusters[themes[j]].ids)
		}
		return themes[i] < themes[j]
	})

	out := make([]any, 0, len(themes))
	for _, theme := range themes {
		c := clusters[theme]
		dist := make(map[string]any, len(c.sentiment))
		for label, n := range c.sentiment {
			dist[label] = n
		}
		out = append(out, map[string]any{
			"theme":                  theme,
			"size":                   len(c.ids),
			"response_ids":           c.ids,
			"sentiment_distribution": dist,
		})
	}

	result := core.CompletedResult(a.ID(), map[string]any{
		"semantic_clusters": out,
	})
	return result, nil
}
