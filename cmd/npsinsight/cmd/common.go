package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/SyncPort-ai/nps-insight-engine/internal/agents"
	"github.com/SyncPort-ai/nps-insight-engine/internal/cache"
	"github.com/SyncPort-ai/nps-insight-engine/internal/checkpoint"
	"github.com/SyncPort-ai/nps-insight-engine/internal/config"
	"github.com/SyncPort-ai/nps-insight-engine/internal/core"
	"github.com/SyncPort-ai/nps-insight-engine/internal/gate"
	"github.com/SyncPort-ai/nps-insight-engine/internal/llm"
	"github.com/SyncPort-ai/nps-insight-engine/internal/logging"
	"github.com/SyncPort-ai/nps-insight-engine/internal/orchestrator"
)

// app bundles the wired components a command needs. Close releases the
// cache tiers.
type app struct {
	cfg          *config.Config
	logger       *logging.Logger
	cache        *cache.Manager
	checkpoints  *checkpoint.Manager
	orchestrator *orchestrator.Orchestrator
}

func (a *app) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("closing cache", "error", err)
		}
	}
}

// buildApp assembles the pipeline from configuration. Checkpointing and
// the shared cache tier are optional; the LLM gateway is only wired
// when enabled, agents otherwise produce deterministic output.
func buildApp(cfg *config.Config) (*app, error) {
	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	var shared cache.Tier
	if cfg.Cache.Shared.Enabled {
		tier, err := cache.OpenSharedTier(cfg.Cache.Shared.Dir)
		if err != nil {
			// The shared tier is an accelerator, not a dependency.
			logger.Warn("shared cache tier unavailable, continuing without it", "error", err)
		} else {
			shared = tier
		}
	}
	cacheMgr := cache.NewManager(cache.Options{
		LocalCapacity: cfg.Cache.LocalCapacity,
		DefaultTTL:    cfg.Cache.TTL,
		Shared:        shared,
		Logger:        logger,
	})

	var checkpoints *checkpoint.Manager
	if cfg.Checkpoint.Enabled {
		mgr, err := checkpoint.NewManager(checkpoint.Options{
			Dir:       cfg.Checkpoint.Dir,
			Compress:  cfg.Checkpoint.Compress,
			MaxActive: cfg.Checkpoint.MaxActive,
			Retention: cfg.Checkpoint.Retention,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		checkpoints = mgr
	}

	var gw llm.Gateway
	if cfg.LLM.Enabled {
		gw = llm.NewClient(llm.Options{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
			Cache:       cacheMgr,
			Logger:      logger,
		})
	}

	registry := agents.Builtin(gw)
	g := gate.New(gate.Policy{
		Weights:              cfg.Gate.Weights,
		Thresholds:           cfg.Gate.Thresholds,
		DefaultThreshold:     cfg.Gate.DefaultThreshold,
		BorderlineWindow:     cfg.Gate.BorderlineWindow,
		BorderlineCap:        cfg.Gate.BorderlineCap,
		FallbackAgent:        cfg.Gate.FallbackAgent,
		MinProductMentions:   cfg.Gate.MinProductMentions,
		MinMarketingMentions: cfg.Gate.MinMarketingMentions,
	}, logger)

	orch, err := orchestrator.New(orchestrator.Options{
		Registry:     registry,
		Plan:         orchestrator.DefaultPlan(),
		Gate:         g,
		Checkpoints:  checkpoints,
		Logger:       logger,
		AgentTimeout: cfg.Workflow.AgentTimeout,
		Language:     cfg.Workflow.Language,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:          cfg,
		logger:       logger,
		cache:        cacheMgr,
		checkpoints:  checkpoints,
		orchestrator: orch,
	}, nil
}

// surveyInput is the accepted input document shape. A bare JSON array
// of responses is also accepted.
type surveyInput struct {
	Responses []core.SurveyResponse `json:"responses"`
}

func loadResponses(path string) ([]core.SurveyResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}

	var doc surveyInput
	if err := json.Unmarshal(data, &doc); err == nil && len(doc.Responses) > 0 {
		return doc.Responses, nil
	}
	var list []core.SurveyResponse
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parsing input %s: %w", path, err)
	}
	return list, nil
}

// writeState writes the final state as indented JSON to the given path,
// or to stdout when path is "-" or empty.
func writeState(state *core.AnalysisState, path string) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	data = append(data, '\n')
	if path == "" || path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}
	return nil
}

func printRunSummary(state *core.AnalysisState) {
	fmt.Printf("workflow:  %s\n", state.WorkflowID)
	fmt.Printf("phase:     %s\n", state.Phase)
	fmt.Printf("agents:    %d run\n", len(state.AgentSequence))
	if state.Confidence != nil {
		fmt.Printf("confidence: %.3f (%s)\n", state.Confidence.OverallScore, state.Confidence.Tier)
	}
	if summary, ok := state.Data["executive_summary"].(string); ok {
		fmt.Printf("summary:   %s\n", summary)
	}
	if len(state.Errors) > 0 {
		fmt.Printf("errors:    %d recorded\n", len(state.Errors))
	}
}
