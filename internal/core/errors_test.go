package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestPipelineErrorKindAndUnwrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := ErrCheckpointIO(CodeCheckpointWrite, "writing checkpoint").WithCause(cause)

	if KindOf(err) != KindCheckpointIO {
		t.Errorf("KindOf = %s, want %s", KindOf(err), KindCheckpointIO)
	}
	if !errors.Is(err, cause) {
		t.Error("cause not reachable through Unwrap")
	}

	var pe *PipelineError
	wrapped := fmt.Errorf("outer: %w", err)
	if !errors.As(wrapped, &pe) {
		t.Fatal("errors.As failed through wrapping")
	}
	if pe.Code != CodeCheckpointWrite {
		t.Errorf("code = %s, want %s", pe.Code, CodeCheckpointWrite)
	}
}

func TestRetryability(t *testing.T) {
	cases := []struct {
		err       error
		retryable bool
	}{
		{ErrTimeout("quant", "exceeded budget"), true},
		{ErrCache("shared tier down"), true},
		{ErrValidation(CodeEmptyInput, "no responses"), false},
		{ErrCheckpointIO(CodeCheckpointWrite, "io failed"), false},
		{ErrAgentExecution("tagger", "panic"), true},
		{fmt.Errorf("plain error"), false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.retryable {
			t.Errorf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.retryable)
		}
	}
}

func TestErrorMessageCarriesAgent(t *testing.T) {
	err := ErrTimeout("cluster", "agent exceeded 2m0s")
	if got := err.Error(); !strings.Contains(got, "cluster") {
		t.Errorf("error string should carry the agent ID: %q", got)
	}
}
