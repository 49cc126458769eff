package core

import "time"

// AgentStatus represents the terminal or in-flight status of an agent run.
type AgentStatus string

const (
	AgentStatusPending   AgentStatus = "pending"
	AgentStatusRunning   AgentStatus = "running"
	AgentStatusCompleted AgentStatus = "completed"
	AgentStatusFailed    AgentStatus = "failed"
	AgentStatusSkipped   AgentStatus = "skipped"
)

// IsTerminal reports whether the status admits no further transitions.
func (s AgentStatus) IsTerminal() bool {
	return s == AgentStatusCompleted || s == AgentStatusFailed || s == AgentStatusSkipped
}

// AgentResult is the unit of output an agent returns to the pipeline.
// The Data payload is owned by the agent; the gate may annotate Metadata
// after the fact (for example to tag low-confidence admissions).
type AgentResult struct {
	AgentID         string         `json:"agent_id"`
	Status          AgentStatus    `json:"status"`
	Data            map[string]any `json:"data,omitempty"`
	Errors          []string       `json:"errors,omitempty"`
	Warnings        []string       `json:"warnings,omitempty"`
	ConfidenceScore *float64       `json:"confidence_score,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	TokensUsed      int            `json:"tokens_used,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
	DurationMS      int64          `json:"duration_ms"`
}

// CompletedResult builds a successful result for an agent.
func CompletedResult(agentID string, data map[string]any) AgentResult {
	return AgentResult{
		AgentID: agentID,
		Status:  AgentStatusCompleted,
		Data:    data,
	}
}

// FailedResult builds a failed result carrying the error message.
func FailedResult(agentID string, err error) AgentResult {
	return AgentResult{
		AgentID: agentID,
		Status:  AgentStatusFailed,
		Errors:  []string{err.Error()},
	}
}

// SkippedResult builds a skipped result with the reason recorded.
func SkippedResult(agentID, reason string) AgentResult {
	return AgentResult{
		AgentID:  agentID,
		Status:   AgentStatusSkipped,
		Warnings: []string{reason},
	}
}

// SetConfidence sets the confidence score on the result.
func (r *AgentResult) SetConfidence(score float64) {
	r.ConfidenceScore = &score
}

// CapConfidence lowers the confidence score to at most max. A missing
// score is treated as the given fallback before capping.
func (r *AgentResult) CapConfidence(max, fallback float64) {
	score := fallback
	if r.ConfidenceScore != nil {
		score = *r.ConfidenceScore
	}
	if score > max {
		score = max
	}
	r.ConfidenceScore = &score
}

// Annotate sets a metadata key on the result.
func (r *AgentResult) Annotate(key string, value any) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	r.Metadata[key] = value
}
