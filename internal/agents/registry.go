// Package agents provides the stage registry and the built-in analysis
// agents for the survey pipeline. Agents are pure functions of the state
// snapshot they receive; anything expensive goes through the gateway and
// its cache.
package agents

import (
	"fmt"

	"github.com/SyncPort-ai/nps-insight-engine/internal/core"
	"github.com/SyncPort-ai/nps-insight-engine/internal/llm"
)

// Stage identifiers, in pipeline order.
const (
	AgentIngest  = "ingest"
	AgentQuant   = "quant"
	AgentTagger  = "tagger"
	AgentCluster = "cluster"

	AgentSegmentPromoter  = "segment_promoter"
	AgentSegmentPassive   = "segment_passive"
	AgentSegmentDetractor = "segment_detractor"
	AgentTrend            = "trend"
	AgentBenchmark        = "benchmark"
	AgentDimProduct       = "dim_product"
	AgentDimGeo           = "dim_geo"
	AgentDimChannel       = "dim_channel"
	AgentAnalysisSynth    = "analysis_synth"

	AgentAdvisorStrategic = "advisor_strategic"
	AgentAdvisorProduct   = "advisor_product"
	AgentAdvisorMarketing = "advisor_marketing"
	AgentAdvisorRisk      = "advisor_risk"
	AgentExecSynth        = "exec_synth"
)

// Registry maps stage identifiers to agents, preserving registration
// order. It satisfies core.AgentRegistry.
type Registry struct {
	order  []string
	agents map[string]core.Agent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]core.Agent)}
}

// Register adds an agent, rejecting duplicate identifiers.
func (r *Registry) Register(agent core.Agent) error {
	id := agent.ID()
	if _, exists := r.agents[id]; exists {
		return fmt.Errorf("agent %s already registered", id)
	}
	r.agents[id] = agent
	r.order = append(r.order, id)
	return nil
}

// MustRegister adds an agent and panics on duplicates. Intended for
// static wiring at startup.
func (r *Registry) MustRegister(agent core.Agent) {
	if err := r.Register(agent); err != nil {
		panic(err)
	}
}

// Get returns the agent for the given stage identifier.
func (r *Registry) Get(agentID string) (core.Agent, bool) {
	agent, ok := r.agents[agentID]
	return agent, ok
}

// IDs returns the registered identifiers in registration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// Builtin returns a registry holding the full built-in pipeline. The
// gateway may be nil; synthesis agents then emit deterministic text.
func Builtin(gw llm.Gateway) *Registry {
	r := NewRegistry()

	r.MustRegister(&IngestAgent{})
	r.MustRegister(&QuantAgent{})
	r.MustRegister(&TaggerAgent{})
	r.MustRegister(&ClusterAgent{})

	r.MustRegister(NewSegmentAgent(AgentSegmentPromoter, SegmentPromoter))
	r.MustRegister(NewSegmentAgent(AgentSegmentPassive, SegmentPassive))
	r.MustRegister(NewSegmentAgent(AgentSegmentDetractor, SegmentDetractor))
	r.MustRegister(&TrendAgent{})
	r.MustRegister(&BenchmarkAgent{})
	r.MustRegister(NewDimensionAgent(AgentDimProduct, "product_dimension", dimensionByProduct))
	r.MustRegister(NewDimensionAgent(AgentDimGeo, "geographic_dimension", dimensionBySegment))
	r.MustRegister(NewDimensionAgent(AgentDimChannel, "channel_dimension", dimensionByChannel))
	r.MustRegister(&AnalysisSynthAgent{Gateway: gw})

	r.MustRegister(&StrategicAdvisor{Gateway: gw})
	r.MustRegister(&ProductAdvisor{})
	r.MustRegister(&MarketingAdvisor{})
	r.MustRegister(&RiskAdvisor{})
	r.MustRegister(&ExecSynthAgent{Gateway: gw})

	return r
}
