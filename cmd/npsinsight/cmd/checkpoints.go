package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/SyncPort-ai/nps-insight-engine/internal/checkpoint"
	"github.com/SyncPort-ai/nps-insight-engine/internal/logging"
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Inspect and manage workflow checkpoints",
}

var checkpointsListCmd = &cobra.Command{
	Use:   "list <workflow-id>",
	Short: "List the recorded checkpoints for a workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckpointsList,
}

var checkpointsDeleteCmd = &cobra.Command{
	Use:   "delete <workflow-id> <checkpoint-id>",
	Short: "Delete a checkpoint from both tiers",
	Args:  cobra.ExactArgs(2),
	RunE:  runCheckpointsDelete,
}

func init() {
	checkpointsCmd.AddCommand(checkpointsListCmd)
	checkpointsCmd.AddCommand(checkpointsDeleteCmd)
	rootCmd.AddCommand(checkpointsCmd)
}

// checkpointManager wires a standalone manager; checkpoint commands do
// not need the full pipeline.
func checkpointManager() (*checkpoint.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return checkpoint.NewManager(checkpoint.Options{
		Dir:       cfg.Checkpoint.Dir,
		Compress:  cfg.Checkpoint.Compress,
		MaxActive: cfg.Checkpoint.MaxActive,
		Retention: cfg.Checkpoint.Retention,
		Logger:    logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}),
	})
}

func runCheckpointsList(cmd *cobra.Command, args []string) error {
	mgr, err := checkpointManager()
	if err != nil {
		return err
	}
	records, err := mgr.List(args[0])
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no checkpoints recorded")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHECKPOINT\tPHASE\tCREATED\tSIZE\tSTATE")
	for _, rec := range records {
		tier := "active"
		if rec.Archived {
			tier = "archived"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			rec.CheckpointID, rec.Phase, rec.Timestamp.Format("2006-01-02 15:04:05"), rec.SizeBytes, tier)
	}
	return w.Flush()
}

func runCheckpointsDelete(_ *cobra.Command, args []string) error {
	mgr, err := checkpointManager()
	if err != nil {
		return err
	}
	if err := mgr.Delete(args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("deleted checkpoint %s\n", args[1])
	return nil
}
