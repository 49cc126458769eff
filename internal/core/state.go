package core

import (
	"fmt"
	"time"
)

// SurveyResponse is one raw customer survey answer.
type SurveyResponse struct {
	ResponseID  string         `json:"response_id"`
	NPSScore    int            `json:"nps_score"`
	Comment     string         `json:"comment,omitempty"`
	ProductLine string         `json:"product_line,omitempty"`
	Segment     string         `json:"segment,omitempty"`
	Channel     string         `json:"channel,omitempty"`
	Timestamp   time.Time      `json:"timestamp,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Snapshot is an immutable copy of the overlay data taken at a pass
// boundary. It is the stable input to the next pass and the recovery
// anchor for resumed runs.
type Snapshot map[string]any

// Clone returns an independent deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	return deepCopyMap(s)
}

// protectedKeys are overlay keys an agent result may never set. The
// corresponding values live in dedicated struct fields and identify the
// pipeline run; letting an agent overwrite them would corrupt identity
// or short-circuit phase progression.
var protectedKeys = map[string]struct{}{
	"workflow_id":         {},
	"phase":               {},
	"raw_input":           {},
	"language":            {},
	"foundation_snapshot": {},
	"analysis_snapshot":   {},
	"confidence":          {},
}

// AnalysisState is the single mutable record threaded through the
// pipeline. It is owned exclusively by the Orchestrator between pass
// boundaries; agents only ever see clones.
type AnalysisState struct {
	WorkflowID string `json:"workflow_id"`
	Phase      Phase  `json:"phase"`
	Language   string `json:"language"`

	RawInput []SurveyResponse `json:"raw_input"`

	// Data is the overlay written by agent results through Merge.
	Data map[string]any `json:"data"`

	AgentOutputs  map[string]AgentResult `json:"agent_outputs"`
	AgentSequence []string               `json:"agent_sequence"`

	FoundationSnapshot Snapshot `json:"foundation_snapshot,omitempty"`
	AnalysisSnapshot   Snapshot `json:"analysis_snapshot,omitempty"`

	Confidence *ConfidenceAssessment `json:"confidence,omitempty"`

	Checkpoints []CheckpointRecord `json:"checkpoints"`
	Errors      []string           `json:"errors"`
	Warnings    []string           `json:"warnings"`

	TokensUsed       int   `json:"tokens_used"`
	ProcessingTimeMS int64 `json:"processing_time_ms"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewAnalysisState builds the initial state for a workflow run.
func NewAnalysisState(workflowID, language string, raw []SurveyResponse) *AnalysisState {
	now := time.Now().UTC()
	return &AnalysisState{
		WorkflowID:    workflowID,
		Phase:         PhaseInitialization,
		Language:      language,
		RawInput:      raw,
		Data:          make(map[string]any),
		AgentOutputs:  make(map[string]AgentResult),
		AgentSequence: make([]string, 0),
		Checkpoints:   make([]CheckpointRecord, 0),
		Errors:        make([]string, 0),
		Warnings:      make([]string, 0),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Clone returns a deep copy of the state. Agents receive clones so that
// in-flight work can never reach back into the live state.
func (s *AnalysisState) Clone() *AnalysisState {
	cp := *s
	cp.RawInput = append([]SurveyResponse(nil), s.RawInput...)
	cp.Data = deepCopyMap(s.Data)
	cp.AgentOutputs = make(map[string]AgentResult, len(s.AgentOutputs))
	for k, v := range s.AgentOutputs {
		cp.AgentOutputs[k] = v
	}
	cp.AgentSequence = append([]string(nil), s.AgentSequence...)
	cp.FoundationSnapshot = s.FoundationSnapshot.Clone()
	cp.AnalysisSnapshot = s.AnalysisSnapshot.Clone()
	cp.Confidence = s.Confidence.Clone()
	cp.Checkpoints = append([]CheckpointRecord(nil), s.Checkpoints...)
	cp.Errors = append([]string(nil), s.Errors...)
	cp.Warnings = append([]string(nil), s.Warnings...)
	return &cp
}

// Merge overlays a completed agent result onto the state. This is the
// only mutation path for agent output: result data keys land in the
// overlay, protected keys are always preserved from the base, and the
// agent is appended to the execution sequence. Merge never removes keys.
func Merge(base *AnalysisState, result AgentResult) *AnalysisState {
	next := base.Clone()

	for k, v := range result.Data {
		if _, protected := protectedKeys[k]; protected {
			next.Warnings = append(next.Warnings,
				fmt.Sprintf("agent %s attempted to overwrite protected field %q", result.AgentID, k))
			continue
		}
		next.Data[k] = deepCopyValue(v)
	}

	next.AgentOutputs[result.AgentID] = result
	if !containsString(next.AgentSequence, result.AgentID) {
		next.AgentSequence = append(next.AgentSequence, result.AgentID)
	}
	for _, w := range result.Warnings {
		next.Warnings = append(next.Warnings, fmt.Sprintf("%s: %s", result.AgentID, w))
	}
	next.TokensUsed += result.TokensUsed
	next.ProcessingTimeMS += result.DurationMS
	next.UpdatedAt = time.Now().UTC()
	return next
}

// TakeFoundationSnapshot freezes the overlay at foundation completion.
func (s *AnalysisState) TakeFoundationSnapshot() {
	s.FoundationSnapshot = deepCopyMap(s.Data)
}

// TakeAnalysisSnapshot freezes the overlay at analysis completion.
func (s *AnalysisState) TakeAnalysisSnapshot() {
	s.AnalysisSnapshot = deepCopyMap(s.Data)
}

// AdvanceTo moves the phase forward. Backward transitions are rejected;
// recovery from a checkpoint bypasses this by restoring the recorded
// phase wholesale.
func (s *AnalysisState) AdvanceTo(next Phase) error {
	if !ValidPhase(next) {
		return ErrState(CodeInvalidState, fmt.Sprintf("unknown phase %q", next))
	}
	if next != PhaseFailed && PhaseOrder(next) < PhaseOrder(s.Phase) {
		return ErrState(CodeInvalidState,
			fmt.Sprintf("phase may not move backward: %s -> %s", s.Phase, next))
	}
	s.Phase = next
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkFailed transitions to the terminal failed phase, recording the
// triggering error.
func (s *AnalysisState) MarkFailed(err error) {
	s.Phase = PhaseFailed
	s.RecordError(err)
}

// RecordError appends an error to the bookkeeping list.
func (s *AnalysisState) RecordError(err error) {
	s.Errors = append(s.Errors, err.Error())
	s.UpdatedAt = time.Now().UTC()
}

// RecordWarning appends a warning to the bookkeeping list.
func (s *AnalysisState) RecordWarning(msg string) {
	s.Warnings = append(s.Warnings, msg)
	s.UpdatedAt = time.Now().UTC()
}

// AppendCheckpoint records checkpoint metadata on the state.
func (s *AnalysisState) AppendCheckpoint(rec CheckpointRecord) {
	s.Checkpoints = append(s.Checkpoints, rec)
	s.UpdatedAt = time.Now().UTC()
}

// Validate checks the state invariants. A state failing validation must
// never be executed or resumed.
func (s *AnalysisState) Validate() error {
	if s.WorkflowID == "" {
		return ErrValidation(CodeInvalidState, "workflow ID cannot be empty")
	}
	if !ValidPhase(s.Phase) {
		return ErrValidation(CodeInvalidState, fmt.Sprintf("unknown phase %q", s.Phase))
	}
	for agentID := range s.AgentOutputs {
		if !containsString(s.AgentSequence, agentID) {
			return ErrValidation(CodeSequenceMismatch,
				fmt.Sprintf("agent %s has output but is missing from execution sequence", agentID))
		}
	}
	if (s.Phase == PhaseAnalysis || s.Phase == PhaseConsulting) && len(s.FoundationSnapshot) == 0 {
		return ErrValidation(CodeMissingSnapshot,
			fmt.Sprintf("phase %s requires a foundation snapshot", s.Phase))
	}
	if s.Phase == PhaseConsulting && len(s.AnalysisSnapshot) == 0 {
		return ErrValidation(CodeMissingSnapshot, "consulting phase requires an analysis snapshot")
	}
	return nil
}

func containsString(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

// deepCopyMap copies a JSON-shaped map. Values outside the JSON shape
// (maps, slices, scalars) are shared; agent payloads are required to be
// JSON-shaped and are never mutated after return.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
