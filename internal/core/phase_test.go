package core

import "testing"

func TestNextPhase(t *testing.T) {
	cases := []struct {
		from, want Phase
	}{
		{PhaseInitialization, PhaseFoundation},
		{PhaseFoundation, PhaseAnalysis},
		{PhaseAnalysis, PhaseConsulting},
		{PhaseConsulting, PhaseCompleted},
		{PhaseCompleted, ""},
		{PhaseFailed, ""},
	}
	for _, tc := range cases {
		if got := NextPhase(tc.from); got != tc.want {
			t.Errorf("NextPhase(%s) = %s, want %s", tc.from, got, tc.want)
		}
	}
}

func TestParsePhase(t *testing.T) {
	phase, err := ParsePhase("consulting")
	if err != nil || phase != PhaseConsulting {
		t.Errorf("ParsePhase(consulting) = %s, %v", phase, err)
	}
	if _, err := ParsePhase("warmup"); err == nil {
		t.Error("unknown phase must not parse")
	}
}

func TestTerminalPhases(t *testing.T) {
	for _, phase := range []Phase{PhaseCompleted, PhaseFailed} {
		if !phase.IsTerminal() {
			t.Errorf("%s should be terminal", phase)
		}
	}
	for _, phase := range []Phase{PhaseInitialization, PhaseFoundation, PhaseAnalysis, PhaseConsulting} {
		if phase.IsTerminal() {
			t.Errorf("%s should not be terminal", phase)
		}
	}
}
