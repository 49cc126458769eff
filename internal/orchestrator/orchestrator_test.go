package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/SyncPort-ai/nps-insight-engine/internal/agents"
	"github.com/SyncPort-ai/nps-insight-engine/internal/checkpoint"
	"github.com/SyncPort-ai/nps-insight-engine/internal/core"
	"github.com/SyncPort-ai/nps-insight-engine/internal/gate"
)

// stubAgent runs an arbitrary function under a fixed ID.
type stubAgent struct {
	id string
	fn func(ctx context.Context, state *core.AnalysisState) (core.AgentResult, error)
}

func (s *stubAgent) ID() string { return s.id }

func (s *stubAgent) Execute(ctx context.Context, state *core.AnalysisState) (core.AgentResult, error) {
	return s.fn(ctx, state)
}

func emit(id string, data map[string]any) *stubAgent {
	return &stubAgent{id: id, fn: func(context.Context, *core.AnalysisState) (core.AgentResult, error) {
		return core.CompletedResult(id, data), nil
	}}
}

func failing(id, msg string) *stubAgent {
	return &stubAgent{id: id, fn: func(context.Context, *core.AnalysisState) (core.AgentResult, error) {
		return core.AgentResult{}, core.ErrAgentExecution(id, msg)
	}}
}

// stubPlan is a compact pipeline whose foundation stubs fill the
// overlay keys the confidence gate reads.
func stubPlan() PassPlan {
	return PassPlan{
		FoundationChain: []string{"f_clean", "f_metrics"},
		AnalysisGroups:  [][]string{{"a_slow", "a_fast"}},
		AnalysisSynth:   "a_synth",
		ConsultingCandidates: []string{
			"advisor_strategic",
			"advisor_risk",
		},
		ConsultingSynth: "c_synth",
	}
}

func stubRegistry(t *testing.T, overrides ...core.Agent) *agents.Registry {
	t.Helper()
	registry := agents.NewRegistry()
	defaults := []core.Agent{
		emit("f_clean", map[string]any{"cleaned_data": map[string]any{"data_quality": "high"}}),
		emit("f_metrics", map[string]any{"nps_metrics": map[string]any{
			"nps_score": 30.0, "sample_size": 150, "statistical_significance": true,
		}}),
		&stubAgent{id: "a_slow", fn: func(ctx context.Context, _ *core.AnalysisState) (core.AgentResult, error) {
			time.Sleep(30 * time.Millisecond)
			return core.CompletedResult("a_slow", map[string]any{
				"slow_out":           true,
				"promoter_analysis":  map[string]any{},
				"passive_analysis":   map[string]any{},
				"detractor_analysis": map[string]any{},
				"trend_analysis":     map[string]any{},
			}), nil
		}},
		emit("a_fast", map[string]any{
			"fast_out":             true,
			"benchmark_comparison": map[string]any{},
			"product_dimension":    map[string]any{},
			"geographic_dimension": map[string]any{},
			"channel_dimension":    map[string]any{},
		}),
		emit("a_synth", map[string]any{"analysis_synthesis": map[string]any{}}),
		emit("advisor_strategic", map[string]any{"strategic_recommendations": []any{}}),
		emit("advisor_risk", map[string]any{"risk_assessment": map[string]any{}}),
		emit("c_synth", map[string]any{"executive_summary": "done"}),
	}
	overridden := make(map[string]core.Agent)
	for _, agent := range overrides {
		overridden[agent.ID()] = agent
	}
	for _, agent := range defaults {
		if replacement, ok := overridden[agent.ID()]; ok {
			agent = replacement
		}
		registry.MustRegister(agent)
	}
	return registry
}

func newStubOrchestrator(t *testing.T, registry *agents.Registry, ckpt *checkpoint.Manager) *Orchestrator {
	t.Helper()
	orch, err := New(Options{
		Registry:    registry,
		Plan:        stubPlan(),
		Gate:        gate.New(gate.DefaultPolicy(), nil),
		Checkpoints: ckpt,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return orch
}

func responses(n int) []core.SurveyResponse {
	out := make([]core.SurveyResponse, n)
	for i := range out {
		out[i] = core.SurveyResponse{ResponseID: fmt.Sprintf("r%d", i), NPSScore: 9}
	}
	return out
}

func TestExecuteRunsAllPhases(t *testing.T) {
	orch := newStubOrchestrator(t, stubRegistry(t), nil)

	state, err := orch.Execute(context.Background(), responses(3))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if state.Phase != core.PhaseCompleted {
		t.Fatalf("phase = %s, want completed", state.Phase)
	}
	if !strings.HasPrefix(state.WorkflowID, "wf_") {
		t.Errorf("workflow ID = %q", state.WorkflowID)
	}
	want := []string{"f_clean", "f_metrics", "a_slow", "a_fast", "a_synth",
		"advisor_strategic", "advisor_risk", "c_synth"}
	if fmt.Sprint(state.AgentSequence) != fmt.Sprint(want) {
		t.Errorf("sequence = %v, want %v", state.AgentSequence, want)
	}
	if len(state.FoundationSnapshot) == 0 || len(state.AnalysisSnapshot) == 0 {
		t.Error("phase snapshots not taken")
	}
	if state.Confidence == nil {
		t.Error("confidence assessment missing")
	}
	if state.Data["executive_summary"] != "done" {
		t.Errorf("executive_summary = %v", state.Data["executive_summary"])
	}
}

func TestGroupMergeOrderIsDeclarationOrder(t *testing.T) {
	// a_slow finishes after a_fast but is declared first; the merged
	// sequence must follow declaration order regardless.
	orch := newStubOrchestrator(t, stubRegistry(t), nil)

	state, err := orch.Execute(context.Background(), responses(3))
	if err != nil {
		t.Fatal(err)
	}
	slowIdx, fastIdx := -1, -1
	for i, id := range state.AgentSequence {
		switch id {
		case "a_slow":
			slowIdx = i
		case "a_fast":
			fastIdx = i
		}
	}
	if slowIdx == -1 || fastIdx == -1 || slowIdx > fastIdx {
		t.Errorf("sequence = %v, want a_slow before a_fast", state.AgentSequence)
	}
}

func TestFoundationFailsFast(t *testing.T) {
	registry := stubRegistry(t, failing("f_metrics", "metrics exploded"))
	orch := newStubOrchestrator(t, registry, nil)

	state, err := orch.Execute(context.Background(), responses(3))
	if err == nil {
		t.Fatal("expected failure")
	}
	if state.Phase != core.PhaseFailed {
		t.Errorf("phase = %s, want failed", state.Phase)
	}
	for _, id := range state.AgentSequence {
		if id == "a_slow" || id == "a_fast" {
			t.Errorf("analysis agent %s ran after foundation failure", id)
		}
	}
	if len(state.Errors) == 0 {
		t.Error("failure not recorded on state")
	}
}

func TestAnalysisGroupFailureFailsPhase(t *testing.T) {
	registry := stubRegistry(t, failing("a_fast", "fan-out member broke"))
	orch := newStubOrchestrator(t, registry, nil)

	state, err := orch.Execute(context.Background(), responses(3))
	if err == nil {
		t.Fatal("expected failure")
	}
	if state.Phase != core.PhaseFailed {
		t.Errorf("phase = %s, want failed", state.Phase)
	}
	// The failure must not cancel siblings: the slow member's result is
	// still merged.
	if _, ok := state.Data["slow_out"]; !ok {
		t.Error("surviving group member's output missing")
	}
	if result, ok := state.AgentOutputs["a_fast"]; !ok || result.Status != core.AgentStatusFailed {
		t.Error("failed member's result not recorded")
	}
}

func TestConsultingAdvisorFailureDegrades(t *testing.T) {
	registry := stubRegistry(t, failing("advisor_risk", "risk model unavailable"))
	orch := newStubOrchestrator(t, registry, nil)

	state, err := orch.Execute(context.Background(), responses(3))
	if err != nil {
		t.Fatalf("advisor failure must not fail the workflow: %v", err)
	}
	if state.Phase != core.PhaseCompleted {
		t.Errorf("phase = %s, want completed", state.Phase)
	}
	if len(state.Errors) != 1 {
		t.Errorf("errors = %v, want exactly one recorded", state.Errors)
	}
	if state.Data["executive_summary"] != "done" {
		t.Error("synthesis did not run after advisor failure")
	}
}

func TestConsultingFallbackRunsWhenAdmittedAdvisorsFail(t *testing.T) {
	// Degraded metrics admit only the strategic advisor; when it fails,
	// the configured fallback must still run and carry the low-confidence
	// tag, so the synthesis never works from zero advisory tracks.
	registry := stubRegistry(t,
		emit("f_clean", map[string]any{"cleaned_data": map[string]any{"data_quality": "low"}}),
		emit("f_metrics", map[string]any{"nps_metrics": map[string]any{
			"nps_score": 10.0, "sample_size": 60, "statistical_significance": false,
		}}),
		failing("advisor_strategic", "strategy model unavailable"),
	)
	policy := gate.DefaultPolicy()
	policy.FallbackAgent = "advisor_risk"
	orch, err := New(Options{
		Registry: registry,
		Plan:     stubPlan(),
		Gate:     gate.New(policy, nil),
	})
	if err != nil {
		t.Fatal(err)
	}

	state, err := orch.Execute(context.Background(), responses(3))
	if err != nil {
		t.Fatalf("sole advisor failure must degrade, not fail: %v", err)
	}
	if state.Phase != core.PhaseCompleted {
		t.Fatalf("phase = %s, want completed", state.Phase)
	}
	fallback, ok := state.AgentOutputs["advisor_risk"]
	if !ok || fallback.Status != core.AgentStatusCompleted {
		t.Fatalf("fallback advisor result = %+v, want completed", fallback)
	}
	if flagged, _ := fallback.Metadata[gate.MetadataLowConfidence].(bool); !flagged {
		t.Errorf("fallback metadata = %v, want the low_confidence tag", fallback.Metadata)
	}
	if _, ok := state.Data["risk_assessment"]; !ok {
		t.Error("fallback advisor output missing from overlay")
	}
	if len(state.Errors) != 1 {
		t.Errorf("errors = %v, want exactly the failed advisor recorded", state.Errors)
	}
}

func TestNonContextAwareAgentStillTimesOut(t *testing.T) {
	// An agent that never checks its context must not hold the run past
	// its timeout; the executor abandons it and reports a timeout result.
	stuck := &stubAgent{id: "f_metrics", fn: func(context.Context, *core.AnalysisState) (core.AgentResult, error) {
		time.Sleep(300 * time.Millisecond)
		return core.CompletedResult("f_metrics", nil), nil
	}}
	orch, err := New(Options{
		Registry:     stubRegistry(t, stuck),
		Plan:         stubPlan(),
		Gate:         gate.New(gate.DefaultPolicy(), nil),
		AgentTimeout: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	state, err := orch.Execute(context.Background(), responses(3))
	if err == nil {
		t.Fatal("expected timeout failure")
	}
	if elapsed := time.Since(start); elapsed >= 300*time.Millisecond {
		t.Errorf("run blocked %v, held hostage by a non-context-aware agent", elapsed)
	}
	result := state.AgentOutputs["f_metrics"]
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0], "timeout") {
		t.Errorf("result errors = %v, want a timeout error", result.Errors)
	}
}

func TestConsultingSkipsUnadmittedAgents(t *testing.T) {
	// Degrade the metrics so only the strategic advisor (threshold 0.5)
	// clears the gate; advisor_risk (0.7) must be skipped, not run.
	registry := stubRegistry(t,
		emit("f_clean", map[string]any{"cleaned_data": map[string]any{"data_quality": "low"}}),
		emit("f_metrics", map[string]any{"nps_metrics": map[string]any{
			"nps_score": 10.0, "sample_size": 60, "statistical_significance": false,
		}}),
	)
	orch := newStubOrchestrator(t, registry, nil)

	state, err := orch.Execute(context.Background(), responses(3))
	if err != nil {
		t.Fatal(err)
	}
	risk, ok := state.AgentOutputs["advisor_risk"]
	if !ok {
		t.Fatal("skipped advisor missing from outputs")
	}
	if risk.Status != core.AgentStatusSkipped {
		t.Errorf("advisor_risk status = %s, want skipped", risk.Status)
	}
	if _, ok := state.Data["risk_assessment"]; ok {
		t.Error("skipped advisor still produced output")
	}
	if strategic := state.AgentOutputs["advisor_strategic"]; strategic.Status != core.AgentStatusCompleted {
		t.Errorf("advisor_strategic status = %s, want completed", strategic.Status)
	}
}

func TestAgentTimeoutBecomesTimeoutError(t *testing.T) {
	blocking := &stubAgent{id: "f_metrics", fn: func(ctx context.Context, _ *core.AnalysisState) (core.AgentResult, error) {
		<-ctx.Done()
		return core.AgentResult{}, ctx.Err()
	}}
	orch, err := New(Options{
		Registry:     stubRegistry(t, blocking),
		Plan:         stubPlan(),
		Gate:         gate.New(gate.DefaultPolicy(), nil),
		AgentTimeout: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	state, err := orch.Execute(context.Background(), responses(3))
	if err == nil {
		t.Fatal("expected timeout failure")
	}
	if state.Phase != core.PhaseFailed {
		t.Errorf("phase = %s, want failed", state.Phase)
	}
	result := state.AgentOutputs["f_metrics"]
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0], "timeout") {
		t.Errorf("result errors = %v, want a timeout error", result.Errors)
	}
}

func TestCheckpointsSavedAtPhaseBoundaries(t *testing.T) {
	ckpt, err := checkpoint.NewManager(checkpoint.Options{Dir: t.TempDir(), Compress: true, MaxActive: 10})
	if err != nil {
		t.Fatal(err)
	}
	orch := newStubOrchestrator(t, stubRegistry(t), ckpt)

	state, err := orch.Execute(context.Background(), responses(3))
	if err != nil {
		t.Fatal(err)
	}

	records, err := ckpt.List(state.WorkflowID)
	if err != nil {
		t.Fatal(err)
	}
	phases := make(map[core.Phase]bool)
	for _, rec := range records {
		phases[rec.Phase] = true
	}
	for _, phase := range []core.Phase{core.PhaseAnalysis, core.PhaseConsulting, core.PhaseCompleted} {
		if !phases[phase] {
			t.Errorf("no checkpoint recorded at %s boundary", phase)
		}
	}
	if len(state.Checkpoints) != len(records) {
		t.Errorf("state records %d checkpoints, manager has %d", len(state.Checkpoints), len(records))
	}

	// The assessment is computed at the end of the analysis pass, so the
	// consulting-boundary checkpoint must already carry it.
	var consultingCkpt string
	for _, rec := range records {
		if rec.Phase == core.PhaseConsulting {
			consultingCkpt = rec.CheckpointID
		}
	}
	loaded, _, err := ckpt.Load(context.Background(), state.WorkflowID, consultingCkpt)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Confidence == nil {
		t.Error("consulting-boundary checkpoint lacks the confidence assessment")
	}
}

func TestResumeContinuesFromCheckpoint(t *testing.T) {
	dir := t.TempDir()
	ckpt, err := checkpoint.NewManager(checkpoint.Options{Dir: dir, Compress: true, MaxActive: 10})
	if err != nil {
		t.Fatal(err)
	}
	orch := newStubOrchestrator(t, stubRegistry(t), ckpt)

	final, err := orch.Execute(context.Background(), responses(3))
	if err != nil {
		t.Fatal(err)
	}

	// Pick the checkpoint taken after foundation (saved at the analysis
	// boundary) and resume from it with a fresh orchestrator.
	records, err := ckpt.List(final.WorkflowID)
	if err != nil {
		t.Fatal(err)
	}
	var analysisCkpt string
	for _, rec := range records {
		if rec.Phase == core.PhaseAnalysis {
			analysisCkpt = rec.CheckpointID
		}
	}
	if analysisCkpt == "" {
		t.Fatal("no analysis-boundary checkpoint found")
	}

	ckpt2, err := checkpoint.NewManager(checkpoint.Options{Dir: dir, Compress: true, MaxActive: 10})
	if err != nil {
		t.Fatal(err)
	}
	resumed, err := newStubOrchestrator(t, stubRegistry(t), ckpt2).Resume(
		context.Background(), final.WorkflowID, analysisCkpt)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.Phase != core.PhaseCompleted {
		t.Errorf("phase = %s, want completed", resumed.Phase)
	}
	if resumed.Data["executive_summary"] != "done" {
		t.Error("resumed run did not reach synthesis")
	}
	if resumed.WorkflowID != final.WorkflowID {
		t.Errorf("workflow changed across resume: %s vs %s", resumed.WorkflowID, final.WorkflowID)
	}
}

func TestExecuteEndToEndWithBuiltinAgents(t *testing.T) {
	registry := agents.Builtin(nil)
	orch, err := New(Options{
		Registry: registry,
		Plan:     DefaultPlan(),
		Gate:     gate.New(gate.DefaultPolicy(), nil),
	})
	if err != nil {
		t.Fatal(err)
	}

	input := make([]core.SurveyResponse, 0, 120)
	for i := 0; i < 120; i++ {
		resp := core.SurveyResponse{
			ResponseID:  fmt.Sprintf("r%d", i),
			ProductLine: []string{"yogurt", "milk"}[i%2],
			Segment:     []string{"east", "west", "south"}[i%3],
			Channel:     []string{"online", "retail"}[i%2],
		}
		switch {
		case i < 80:
			resp.NPSScore = 9 + i%2
			resp.Comment = "great taste and quality"
		case i < 100:
			resp.NPSScore = 7 + i%2
			resp.Comment = "nice brand advert but a bit expensive"
		default:
			resp.NPSScore = i % 7
			resp.Comment = "slow delivery and bad service"
		}
		input = append(input, resp)
	}

	state, err := orch.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if state.Phase != core.PhaseCompleted {
		t.Fatalf("phase = %s, want completed", state.Phase)
	}

	// NPS 50 over 120 responses with high data quality clears every
	// advisor threshold and structural gate.
	for _, key := range []string{
		"cleaned_data", "nps_metrics", "tagged_responses", "semantic_clusters",
		"promoter_analysis", "passive_analysis", "detractor_analysis",
		"trend_analysis", "benchmark_comparison",
		"product_dimension", "geographic_dimension", "channel_dimension",
		"analysis_synthesis",
		"strategic_recommendations", "product_recommendations",
		"marketing_recommendations", "risk_assessment",
		"executive_summary", "executive_dashboard",
	} {
		if _, ok := state.Data[key]; !ok {
			t.Errorf("overlay key %s missing", key)
		}
	}
	if state.Confidence == nil || state.Confidence.Tier != core.TierVeryHigh {
		t.Errorf("confidence = %+v, want very_high tier", state.Confidence)
	}
	for _, result := range state.AgentOutputs {
		if result.Status == core.AgentStatusFailed {
			t.Errorf("agent %s failed: %v", result.AgentID, result.Errors)
		}
	}
}
