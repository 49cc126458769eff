package agents

import (
	"context"
	"testing"

	"github.com/SyncPort-ai/nps-insight-engine/internal/core"
)

func surveyFixture() []core.SurveyResponse {
	return []core.SurveyResponse{
		{ResponseID: "r1", NPSScore: 10, Comment: "great taste and quality", ProductLine: "yogurt", Segment: "east", Channel: "online"},
		{ResponseID: "r2", NPSScore: 9, Comment: "love the brand", ProductLine: "yogurt", Segment: "east", Channel: "online"},
		{ResponseID: "r3", NPSScore: 8, Comment: "fine but expensive", ProductLine: "milk", Segment: "west", Channel: "retail"},
		{ResponseID: "r4", NPSScore: 3, Comment: "delivery was slow and packaging damaged", ProductLine: "milk", Segment: "west", Channel: "retail"},
		{ResponseID: "r5", NPSScore: 15, Comment: "out of range"},
	}
}

// runFoundation drives the foundation chain the way the orchestrator
// does: execute against the current state, merge, repeat.
func runFoundation(t *testing.T, state *core.AnalysisState) *core.AnalysisState {
	t.Helper()
	ctx := context.Background()
	for _, agent := range []core.Agent{&IngestAgent{}, &QuantAgent{}, &TaggerAgent{}, &ClusterAgent{}} {
		result, err := agent.Execute(ctx, state)
		if err != nil {
			t.Fatalf("%s: %v", agent.ID(), err)
		}
		state = core.Merge(state, result)
	}
	return state
}

func TestIngestFiltersInvalidScores(t *testing.T) {
	state := core.NewAnalysisState("wf_agents", "zh", surveyFixture())
	result, err := (&IngestAgent{}).Execute(context.Background(), state)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	cleaned := result.Data["cleaned_data"].(map[string]any)
	if cleaned["total_responses"] != 5 || cleaned["valid_responses"] != 4 || cleaned["invalid_responses"] != 1 {
		t.Errorf("counts = %v/%v/%v, want 5/4/1",
			cleaned["total_responses"], cleaned["valid_responses"], cleaned["invalid_responses"])
	}
	if cleaned["data_quality"] != "insufficient" {
		t.Errorf("data_quality = %v, want insufficient for 4 valid responses", cleaned["data_quality"])
	}
}

func TestIngestRejectsEmptyInput(t *testing.T) {
	state := core.NewAnalysisState("wf_agents", "zh", nil)
	_, err := (&IngestAgent{}).Execute(context.Background(), state)
	if !core.IsKind(err, core.KindValidation) {
		t.Errorf("err = %v, want validation kind", err)
	}
}

func TestQuantComputesNPS(t *testing.T) {
	state := core.NewAnalysisState("wf_agents", "zh", surveyFixture())
	state = runFoundation(t, state)

	metrics := state.Data["nps_metrics"].(map[string]any)
	// 2 promoters, 1 passive, 1 detractor of 4 valid: NPS = 25.
	if got, _ := asFloat(metrics["nps_score"]); got != 25 {
		t.Errorf("nps_score = %v, want 25", got)
	}
	if got, _ := asInt(metrics["sample_size"]); got != 4 {
		t.Errorf("sample_size = %v, want 4", got)
	}
	if metrics["statistical_significance"] != false {
		t.Error("4 responses must not be statistically significant")
	}
}

func TestQuantRequiresIngestOutput(t *testing.T) {
	state := core.NewAnalysisState("wf_agents", "zh", surveyFixture())
	_, err := (&QuantAgent{}).Execute(context.Background(), state)
	if !core.IsKind(err, core.KindState) {
		t.Errorf("err = %v, want state kind", err)
	}
}

func TestTaggerAssignsTagsAndSentiment(t *testing.T) {
	state := core.NewAnalysisState("wf_agents", "zh", surveyFixture())
	state = runFoundation(t, state)

	tagged := state.Data["tagged_responses"].([]any)
	if len(tagged) != 4 {
		t.Fatalf("tagged %d responses, want 4", len(tagged))
	}

	byID := make(map[string]map[string]any)
	for _, entry := range tagged {
		m := entry.(map[string]any)
		byID[m["response_id"].(string)] = m
	}
	r1 := byID["r1"]
	if !hasTag(r1["tags"], "product") {
		t.Errorf("r1 tags = %v, want product tag for taste/quality comment", r1["tags"])
	}
	if r1["sentiment"] != "positive" {
		t.Errorf("r1 sentiment = %v", r1["sentiment"])
	}
	r4 := byID["r4"]
	if !hasTag(r4["tags"], "logistics") || !hasTag(r4["tags"], "packaging") {
		t.Errorf("r4 tags = %v, want logistics and packaging", r4["tags"])
	}
	if r4["sentiment"] != "negative" {
		t.Errorf("r4 sentiment = %v", r4["sentiment"])
	}

	counts := state.Data["tag_counts"].(map[string]any)
	if counts["marketing"] != 1 {
		t.Errorf("marketing count = %v, want 1 (brand mention)", counts["marketing"])
	}
}

func hasTag(tags any, want string) bool {
	for _, t := range tags.([]any) {
		if t == want {
			return true
		}
	}
	return false
}

func TestClusterOrdersBySizeThenTheme(t *testing.T) {
	state := core.NewAnalysisState("wf_agents", "zh", surveyFixture())
	state = runFoundation(t, state)

	clusters := state.Data["semantic_clusters"].([]any)
	if len(clusters) == 0 {
		t.Fatal("no clusters produced")
	}
	var prevSize int
	var prevTheme string
	for i, c := range clusters {
		m := c.(map[string]any)
		size := m["size"].(int)
		theme := m["theme"].(string)
		if i > 0 && (size > prevSize || (size == prevSize && theme < prevTheme)) {
			t.Errorf("clusters out of order at %d: %s/%d after %s/%d", i, theme, size, prevTheme, prevSize)
		}
		prevSize, prevTheme = size, theme
	}
}

func TestSegmentAgentsSplitBands(t *testing.T) {
	state := core.NewAnalysisState("wf_agents", "zh", surveyFixture())
	state = runFoundation(t, state)
	ctx := context.Background()

	for _, tc := range []struct {
		kind SegmentKind
		want int
	}{
		{SegmentPromoter, 2},
		{SegmentPassive, 1},
		{SegmentDetractor, 1},
	} {
		agent := NewSegmentAgent("segment_"+string(tc.kind), tc.kind)
		result, err := agent.Execute(ctx, state)
		if err != nil {
			t.Fatalf("%s: %v", agent.ID(), err)
		}
		analysis := result.Data[string(tc.kind)+"_analysis"].(map[string]any)
		if analysis["count"] != tc.want {
			t.Errorf("%s count = %v, want %d", tc.kind, analysis["count"], tc.want)
		}
	}
}

func TestDimensionAgentGroups(t *testing.T) {
	state := core.NewAnalysisState("wf_agents", "zh", surveyFixture())
	state = runFoundation(t, state)

	agent := NewDimensionAgent(AgentDimProduct, "product_dimension", dimensionByProduct)
	result, err := agent.Execute(context.Background(), state)
	if err != nil {
		t.Fatal(err)
	}

	dim := result.Data["product_dimension"].(map[string]any)
	groups := dim["groups"].([]any)
	if len(groups) != 2 {
		t.Fatalf("groups = %v, want milk and yogurt", groups)
	}
	// Sorted by name: milk first. 1 passive + 1 detractor -> NPS -50.
	milk := groups[0].(map[string]any)
	if milk["group"] != "milk" {
		t.Fatalf("first group = %v, want milk", milk["group"])
	}
	if milk["nps_score"] != -50.0 {
		t.Errorf("milk nps = %v, want -50", milk["nps_score"])
	}
}

func TestExecSynthDegradesGracefully(t *testing.T) {
	state := core.NewAnalysisState("wf_agents", "zh", surveyFixture())
	state = runFoundation(t, state)

	// Only the strategic track contributed; synthesis must still work.
	strategic, err := (&StrategicAdvisor{}).Execute(context.Background(), state)
	if err != nil {
		t.Fatal(err)
	}
	state = core.Merge(state, strategic)

	result, err := (&ExecSynthAgent{}).Execute(context.Background(), state)
	if err != nil {
		t.Fatalf("exec synth: %v", err)
	}
	dashboard := result.Data["executive_dashboard"].(map[string]any)
	tracks := dashboard["advisory_tracks"].([]any)
	if len(tracks) != 1 || tracks[0] != "strategic_recommendations" {
		t.Errorf("advisory_tracks = %v", tracks)
	}
	if result.Data["executive_summary"] == "" {
		t.Error("summary missing")
	}
	if dashboard["business_status"] != "healthy" {
		t.Errorf("business_status = %v, want healthy at NPS 25", dashboard["business_status"])
	}
}

func TestBuiltinRegistryCoversPipeline(t *testing.T) {
	registry := Builtin(nil)

	for _, id := range []string{
		AgentIngest, AgentQuant, AgentTagger, AgentCluster,
		AgentSegmentPromoter, AgentSegmentPassive, AgentSegmentDetractor,
		AgentTrend, AgentBenchmark, AgentDimProduct, AgentDimGeo, AgentDimChannel,
		AgentAnalysisSynth,
		AgentAdvisorStrategic, AgentAdvisorProduct, AgentAdvisorMarketing, AgentAdvisorRisk,
		AgentExecSynth,
	} {
		if _, ok := registry.Get(id); !ok {
			t.Errorf("agent %s not registered", id)
		}
	}
	if len(registry.IDs()) != 18 {
		t.Errorf("registered %d agents, want 18", len(registry.IDs()))
	}
}
