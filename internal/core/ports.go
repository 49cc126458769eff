package core

import "context"

// Agent is the capability interface for one pipeline stage. Execute
// receives a read-only clone of the state and returns a result; it must
// never retain a reference into the snapshot past its return, must be
// idempotent-safe to retry, and must respect the passed context.
type Agent interface {
	// ID returns the stage identifier (for example "quant" or "advisor_risk").
	ID() string

	// Execute runs the stage against the snapshot.
	Execute(ctx context.Context, snapshot *AnalysisState) (AgentResult, error)
}

// AgentRegistry maps stage identifiers to Agent instances.
type AgentRegistry interface {
	// Get returns the agent for the given stage identifier.
	Get(agentID string) (Agent, bool)

	// IDs returns the registered stage identifiers in registration order.
	IDs() []string
}
