package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/SyncPort-ai/nps-insight-engine/internal/core"
	"github.com/SyncPort-ai/nps-insight-engine/internal/logging"
)

// PassExecutor runs agents against a state snapshot. It never mutates
// the state it is handed and never merges results; the orchestrator
// owns both. Group members run concurrently, each under its own
// timeout, and a member failure does not cancel its siblings: the join
// always waits for every member to reach a terminal status.
type PassExecutor struct {
	registry core.AgentRegistry
	timeout  time.Duration
	logger   *logging.Logger
}

// NewPassExecutor creates an executor with a per-agent timeout.
func NewPassExecutor(registry core.AgentRegistry, timeout time.Duration, logger *logging.Logger) *PassExecutor {
	if logger == nil {
		logger = logging.NewNop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &PassExecutor{registry: registry, timeout: timeout, logger: logger}
}

// RunOne executes a single agent against the snapshot. Errors are
// folded into the returned result: the caller inspects Status, not a
// second error value, so sequential and grouped paths share one shape.
func (e *PassExecutor) RunOne(ctx context.Context, agentID string, snapshot *core.AnalysisState) core.AgentResult {
	agent, ok := e.registry.Get(agentID)
	if !ok {
		return core.FailedResult(agentID, core.ErrState(core.CodeAgentUnknown, "agent not registered: "+agentID))
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	started := time.Now()
	log := e.logger.WithAgent(agentID)
	log.Debug("agent starting")

	type outcome struct {
		result core.AgentResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, execErr := agent.Execute(runCtx, snapshot)
		done <- outcome{result: r, err: execErr}
	}()

	var result core.AgentResult
	var err error
	select {
	case out := <-done:
		result, err = out.result, out.err
	case <-runCtx.Done():
		// An agent stuck in non-context-aware work is abandoned here; its
		// goroutine drains into the buffered channel whenever it returns.
		err = runCtx.Err()
	}
	finished := time.Now()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			err = core.ErrTimeout(agentID, "agent exceeded "+e.timeout.String()).WithCause(err)
		} else if core.KindOf(err) == core.KindInternal {
			err = core.ErrAgentExecution(agentID, "agent failed").WithCause(err)
		}
		result = core.FailedResult(agentID, err)
		log.Error("agent failed", "error", err, "duration_ms", finished.Sub(started).Milliseconds())
	} else {
		result.AgentID = agentID
		if result.Status == "" {
			result.Status = core.AgentStatusCompleted
		}
		log.Info("agent completed", "duration_ms", finished.Sub(started).Milliseconds())
	}

	result.StartedAt = started.UTC()
	result.FinishedAt = finished.UTC()
	result.DurationMS = finished.Sub(started).Milliseconds()
	return result
}

// RunGroup executes the group members concurrently against the same
// snapshot and returns their results in declaration order.
func (e *PassExecutor) RunGroup(ctx context.Context, agentIDs []string, snapshot *core.AnalysisState) []core.AgentResult {
	results := make([]core.AgentResult, len(agentIDs))
	var wg sync.WaitGroup
	for i, agentID := range agentIDs {
		wg.Add(1)
		go func(slot int, id string) {
			defer wg.Done()
			results[slot] = e.RunOne(ctx, id, snapshot)
		}(i, agentID)
	}
	wg.Wait()
	return results
}
