package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SyncPort-ai/nps-insight-engine/internal/core"
)

var (
	resumeCheckpoint string
	resumeOutput     string
)

var resumeCmd = &cobra.Command{
	Use:   "resume <workflow-id>",
	Short: "Resume a workflow from its latest (or a named) checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeCheckpoint, "checkpoint", "", "checkpoint ID (default: most recent active)")
	resumeCmd.Flags().StringVarP(&resumeOutput, "output", "o", "", "write final state JSON to this path ('-' for stdout)")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	state, runErr := app.orchestrator.Resume(cmd.Context(), args[0], resumeCheckpoint)
	if state != nil {
		if resumeOutput != "" {
			if err := writeState(state, resumeOutput); err != nil {
				return err
			}
		}
		printRunSummary(state)
	}
	if core.IsKind(runErr, core.KindCheckpointIO) {
		fmt.Fprintf(cmd.ErrOrStderr(),
			"hint: 'npsinsight checkpoints list %s' shows the recoverable checkpoints\n", args[0])
	}
	return runErr
}
