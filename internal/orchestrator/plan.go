package orchestrator

import (
	"github.com/SyncPort-ai/nps-insight-engine/internal/agents"
	"github.com/SyncPort-ai/nps-insight-engine/internal/core"
)

// PassPlan declares the pipeline shape as data: which agents run in
// which phase, and how. Foundation is a sequential fail-fast chain;
// analysis runs independent groups concurrently and then a synthesis
// stage; consulting candidates are filtered by the confidence gate
// before a final synthesis that always runs.
type PassPlan struct {
	FoundationChain []string

	AnalysisGroups [][]string
	AnalysisSynth  string

	ConsultingCandidates []string
	ConsultingSynth      string
}

// DefaultPlan returns the shipped pipeline layout.
func DefaultPlan() PassPlan {
	return PassPlan{
		FoundationChain: []string{
			agents.AgentIngest,
			agents.AgentQuant,
			agents.AgentTagger,
			agents.AgentCluster,
		},
		AnalysisGroups: [][]string{
			{agents.AgentSegmentPromoter, agents.AgentSegmentPassive, agents.AgentSegmentDetractor},
			{agents.AgentTrend, agents.AgentBenchmark},
			{agents.AgentDimProduct, agents.AgentDimGeo, agents.AgentDimChannel},
		},
		AnalysisSynth: agents.AgentAnalysisSynth,
		ConsultingCandidates: []string{
			agents.AgentAdvisorStrategic,
			agents.AgentAdvisorProduct,
			agents.AgentAdvisorMarketing,
			agents.AgentAdvisorRisk,
		},
		ConsultingSynth: agents.AgentExecSynth,
	}
}

// Validate checks that every agent the plan names is registered.
func (p PassPlan) Validate(registry core.AgentRegistry) error {
	check := func(ids ...string) error {
		for _, id := range ids {
			if _, ok := registry.Get(id); !ok {
				return core.ErrState(core.CodeAgentUnknown, "plan references unregistered agent "+id)
			}
		}
		return nil
	}
	if err := check(p.FoundationChain...); err != nil {
		return err
	}
	for _, group := range p.AnalysisGroups {
		if err := check(group...); err != nil {
			return err
		}
	}
	if err := check(p.AnalysisSynth, p.ConsultingSynth); err != nil {
		return err
	}
	return check(p.ConsultingCandidates...)
}
