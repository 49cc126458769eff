// Package orchestrator drives the three-pass survey analysis pipeline:
// a sequential foundation chain, concurrent analysis groups with a
// synthesis stage, and a confidence-gated consulting pass. The
// orchestrator is the only component that merges agent results into
// pipeline state; executors work on snapshots and hand results back.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/SyncPort-ai/nps-insight-engine/internal/checkpoint"
	"github.com/SyncPort-ai/nps-insight-engine/internal/core"
	"github.com/SyncPort-ai/nps-insight-engine/internal/gate"
	"github.com/SyncPort-ai/nps-insight-engine/internal/logging"
)

// Options wires an Orchestrator. Registry and Gate are required;
// Checkpoints may be nil to disable persistence.
type Options struct {
	Registry     core.AgentRegistry
	Plan         PassPlan
	Gate         *gate.Gate
	Checkpoints  *checkpoint.Manager
	Logger       *logging.Logger
	AgentTimeout time.Duration
	Language     string
}

// Orchestrator owns the phase state machine and the merge protocol.
type Orchestrator struct {
	registry    core.AgentRegistry
	plan        PassPlan
	executor    *PassExecutor
	gate        *gate.Gate
	checkpoints *checkpoint.Manager
	logger      *logging.Logger
	language    string

	newWorkflowID func() string
}

// New creates an orchestrator. The plan is validated against the
// registry up front so a misconfigured pipeline fails at startup, not
// mid-run.
func New(opts Options) (*Orchestrator, error) {
	if opts.Registry == nil {
		return nil, core.ErrState(core.CodeInvalidState, "agent registry is required")
	}
	if opts.Gate == nil {
		return nil, core.ErrState(core.CodeInvalidState, "confidence gate is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	plan := opts.Plan
	if len(plan.FoundationChain) == 0 {
		plan = DefaultPlan()
	}
	if err := plan.Validate(opts.Registry); err != nil {
		return nil, err
	}
	language := opts.Language
	if language == "" {
		language = "zh"
	}
	return &Orchestrator{
		registry:      opts.Registry,
		plan:          plan,
		executor:      NewPassExecutor(opts.Registry, opts.AgentTimeout, logger),
		gate:          opts.Gate,
		checkpoints:   opts.Checkpoints,
		logger:        logger,
		language:      language,
		newWorkflowID: func() string { return "wf_" + uuid.NewString() },
	}, nil
}

// Execute runs the full pipeline over the given responses and returns
// the final state. On failure the returned state is terminal-failed and
// carries the recorded errors; it is returned alongside the error so
// callers can inspect partial progress.
func (o *Orchestrator) Execute(ctx context.Context, responses []core.SurveyResponse) (*core.AnalysisState, error) {
	state := core.NewAnalysisState(o.newWorkflowID(), o.language, responses)
	o.logger.WithWorkflow(state.WorkflowID).Info("workflow started", "responses", len(responses))
	return o.run(ctx, state)
}

// Resume loads a checkpoint and continues the pipeline from the phase
// it recorded. An empty checkpointID selects the workflow's most recent
// active checkpoint.
func (o *Orchestrator) Resume(ctx context.Context, workflowID, checkpointID string) (*core.AnalysisState, error) {
	if o.checkpoints == nil {
		return nil, core.ErrState(core.CodeInvalidState, "resume requires a checkpoint manager")
	}
	state, phase, err := o.checkpoints.Load(ctx, workflowID, checkpointID)
	if err != nil {
		return nil, err
	}
	o.logger.WithWorkflow(workflowID).Info("workflow resumed", "phase", phase)
	return o.run(ctx, state)
}

func (o *Orchestrator) run(ctx context.Context, state *core.AnalysisState) (*core.AnalysisState, error) {
	log := o.logger.WithWorkflow(state.WorkflowID)
	started := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return o.fail(state, core.ErrState(core.CodeInvalidState, "workflow canceled").WithCause(err))
		}

		var err error
		switch state.Phase {
		case core.PhaseInitialization:
			err = state.AdvanceTo(core.PhaseFoundation)
		case core.PhaseFoundation:
			state, err = o.runFoundation(ctx, state)
		case core.PhaseAnalysis:
			state, err = o.runAnalysis(ctx, state)
		case core.PhaseConsulting:
			state, err = o.runConsulting(ctx, state)
		case core.PhaseCompleted:
			log.Info("workflow completed",
				"agents_run", len(state.AgentSequence),
				"errors", len(state.Errors),
				"duration_ms", time.Since(started).Milliseconds(),
			)
			return state, nil
		case core.PhaseFailed:
			return state, core.ErrState(core.CodeInvalidState, "workflow is in failed state")
		default:
			err = core.ErrState(core.CodeInvalidState, "unknown phase "+string(state.Phase))
		}
		if err != nil {
			return o.fail(state, err)
		}
	}
}

// runFoundation executes the foundation chain sequentially. Each agent
// sees the merge of everything before it; the first failure aborts the
// phase.
func (o *Orchestrator) runFoundation(ctx context.Context, state *core.AnalysisState) (*core.AnalysisState, error) {
	for _, agentID := range o.plan.FoundationChain {
		result := o.executor.RunOne(ctx, agentID, state)
		if result.Status != core.AgentStatusCompleted {
			state = core.Merge(state, result)
			return state, resultError(result)
		}
		state = core.Merge(state, result)
	}

	state.TakeFoundationSnapshot()
	if err := state.AdvanceTo(core.PhaseAnalysis); err != nil {
		return state, err
	}
	if err := o.saveCheckpoint(ctx, state, firstAgent(o.plan.AnalysisGroups)); err != nil {
		return state, err
	}
	return state, nil
}

// runAnalysis fans each group out concurrently against a fixed
// snapshot and merges the results in declaration order, so the merged
// state is identical regardless of completion order. Any agent failure
// fails the phase, but only after every group member has been merged.
func (o *Orchestrator) runAnalysis(ctx context.Context, state *core.AnalysisState) (*core.AnalysisState, error) {
	for _, group := range o.plan.AnalysisGroups {
		results := o.executor.RunGroup(ctx, group, state)
		var failed *core.AgentResult
		for i := range results {
			state = core.Merge(state, results[i])
			if results[i].Status == core.AgentStatusFailed && failed == nil {
				failed = &results[i]
			}
		}
		if failed != nil {
			return state, resultError(*failed)
		}
	}

	synth := o.executor.RunOne(ctx, o.plan.AnalysisSynth, state)
	state = core.Merge(state, synth)
	if synth.Status != core.AgentStatusCompleted {
		return state, resultError(synth)
	}

	state.TakeAnalysisSnapshot()
	state.Confidence = o.gate.Assess(state)
	if err := state.AdvanceTo(core.PhaseConsulting); err != nil {
		return state, err
	}
	if err := o.saveCheckpoint(ctx, state, firstAdmissible(o.plan.ConsultingCandidates)); err != nil {
		return state, err
	}
	return state, nil
}

// runConsulting assesses confidence, plans admissions through the gate,
// and runs the admitted advisors concurrently. Advisor failures degrade
// the output instead of failing the workflow; only the final synthesis
// is load-bearing.
func (o *Orchestrator) runConsulting(ctx context.Context, state *core.AnalysisState) (*core.AnalysisState, error) {
	assessment := state.Confidence
	if assessment == nil {
		// States restored without an analysis-time assessment get one here.
		assessment = o.gate.Assess(state)
		state.Confidence = assessment
	}

	admissions := o.gate.Plan(o.plan.ConsultingCandidates, assessment, state)
	admittedIDs := make([]string, len(admissions))
	admitted := make(map[string]gate.Admission, len(admissions))
	for i, adm := range admissions {
		admittedIDs[i] = adm.AgentID
		admitted[adm.AgentID] = adm
	}

	for _, candidate := range o.plan.ConsultingCandidates {
		if _, ok := admitted[candidate]; !ok {
			state = core.Merge(state, core.SkippedResult(candidate, "not admitted by confidence gate"))
		}
	}

	results := o.executor.RunGroup(ctx, admittedIDs, state)
	completed := 0
	for i := range results {
		if results[i].Status == core.AgentStatusCompleted {
			o.gate.Annotate(admitted[results[i].AgentID], &results[i])
			completed++
		} else {
			state.RecordError(resultError(results[i]))
		}
		state = core.Merge(state, results[i])
	}

	// Guaranteed progress: if every admitted advisor failed, the fallback
	// advisor still runs so the synthesis has at least one flagged track.
	if completed == 0 {
		if adm, ok := o.gate.FallbackAdmission(); ok {
			if _, ran := admitted[adm.AgentID]; !ran {
				o.logger.Warn("all admitted advisors failed, running fallback",
					"workflow_id", state.WorkflowID,
					"fallback_agent", adm.AgentID,
				)
				result := o.executor.RunOne(ctx, adm.AgentID, state)
				if result.Status == core.AgentStatusCompleted {
					o.gate.Annotate(adm, &result)
				} else {
					state.RecordError(resultError(result))
				}
				state = core.Merge(state, result)
			}
		}
	}

	synth := o.executor.RunOne(ctx, o.plan.ConsultingSynth, state)
	state = core.Merge(state, synth)
	if synth.Status != core.AgentStatusCompleted {
		return state, resultError(synth)
	}

	if err := state.AdvanceTo(core.PhaseCompleted); err != nil {
		return state, err
	}
	if err := o.saveCheckpoint(ctx, state, ""); err != nil {
		return state, err
	}
	return state, nil
}

// saveCheckpoint persists the state at a phase boundary. Checkpoint
// write failures are fatal: silently continuing without the recovery
// point the caller asked for would make resume lie later.
func (o *Orchestrator) saveCheckpoint(ctx context.Context, state *core.AnalysisState, nextAgent string) error {
	if o.checkpoints == nil {
		return nil
	}
	id, err := o.checkpoints.Save(ctx, state.WorkflowID, state, state.Phase, nextAgent)
	if err != nil {
		return err
	}
	state.AppendCheckpoint(core.CheckpointRecord{
		CheckpointID: id,
		Phase:        state.Phase,
		Timestamp:    time.Now().UTC(),
		NextAgent:    nextAgent,
	})
	return nil
}

func (o *Orchestrator) fail(state *core.AnalysisState, err error) (*core.AnalysisState, error) {
	state.MarkFailed(err)
	o.logger.WithWorkflow(state.WorkflowID).Error("workflow failed",
		"error", err,
		"phase_reached", state.Phase,
		"retryable", core.IsRetryable(err),
	)
	if o.checkpoints != nil {
		// Best effort: a failure checkpoint aids postmortems but must
		// not mask the original error.
		if _, saveErr := o.checkpoints.Save(context.Background(), state.WorkflowID, state, state.Phase, ""); saveErr != nil {
			o.logger.Warn("failure checkpoint not written", "error", saveErr)
		}
	}
	return state, err
}

func resultError(result core.AgentResult) error {
	msg := "agent " + result.AgentID + " did not complete"
	if len(result.Errors) > 0 {
		msg = result.Errors[0]
	}
	return core.ErrAgentExecution(result.AgentID, msg)
}

func firstAgent(groups [][]string) string {
	if len(groups) > 0 && len(groups[0]) > 0 {
		return groups[0][0]
	}
	return ""
}

func firstAdmissible(candidates []string) string {
	if len(candidates) > 0 {
		return candidates[0]
	}
	return ""
}
