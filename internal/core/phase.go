package core

import "fmt"

// Phase represents a stage in the pipeline execution.
type Phase string

const (
	// PhaseInitialization is the setup stage: the initial state is built
	// from raw input and no agents run.
	PhaseInitialization Phase = "initialization"

	// PhaseFoundation runs the data-preparation agents as a strict
	// sequential chain. Each agent consumes the previous agent's merged
	// output, so any failure aborts the run.
	PhaseFoundation Phase = "foundation"

	// PhaseAnalysis runs the domain analysis agents in ordered concurrent
	// groups, closed by a synthesis agent.
	PhaseAnalysis Phase = "analysis"

	// PhaseConsulting runs the advisory agents that survive the
	// confidence gate, with graceful degradation on individual failure.
	PhaseConsulting Phase = "consulting"

	// PhaseCompleted is the terminal success state.
	PhaseCompleted Phase = "completed"

	// PhaseFailed is the terminal failure state, reachable from any
	// non-terminal phase.
	PhaseFailed Phase = "failed"
)

// AllPhases returns the executable phases in execution order.
func AllPhases() []Phase {
	return []Phase{PhaseInitialization, PhaseFoundation, PhaseAnalysis, PhaseConsulting}
}

// PhaseOrder returns the numeric order of a phase (0-indexed).
// Terminal phases share the final slot; unknown phases return -1.
func PhaseOrder(p Phase) int {
	switch p {
	case PhaseInitialization:
		return 0
	case PhaseFoundation:
		return 1
	case PhaseAnalysis:
		return 2
	case PhaseConsulting:
		return 3
	case PhaseCompleted, PhaseFailed:
		return 4
	default:
		return -1
	}
}

// NextPhase returns the phase following the given phase.
// Returns empty string for terminal phases.
func NextPhase(p Phase) Phase {
	switch p {
	case PhaseInitialization:
		return PhaseFoundation
	case PhaseFoundation:
		return PhaseAnalysis
	case PhaseAnalysis:
		return PhaseConsulting
	case PhaseConsulting:
		return PhaseCompleted
	default:
		return ""
	}
}

// ValidPhase checks if a phase string is valid.
func ValidPhase(p Phase) bool {
	switch p {
	case PhaseInitialization, PhaseFoundation, PhaseAnalysis, PhaseConsulting, PhaseCompleted, PhaseFailed:
		return true
	default:
		return false
	}
}

// ParsePhase converts a string to a Phase with validation.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !ValidPhase(p) {
		return "", fmt.Errorf("invalid phase: %s", s)
	}
	return p, nil
}

// IsTerminal reports whether the phase admits no further transitions.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}
