package cmd

import (
	"github.com/spf13/cobra"
)

var (
	runInput  string
	runOutput string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the analysis pipeline over a survey input file",
	Long: `Run executes the full three-pass pipeline over the responses in the
input file and prints a summary. The input is a JSON document with a
"responses" array (or a bare array) of survey responses:

  {"responses": [{"response_id": "r1", "nps_score": 9, "comment": "..."}]}

Use --output to write the complete final state as JSON.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runInput, "input", "i", "", "survey responses JSON file (required)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "write final state JSON to this path ('-' for stdout)")
	_ = runCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	responses, err := loadResponses(runInput)
	if err != nil {
		return err
	}

	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	state, runErr := app.orchestrator.Execute(cmd.Context(), responses)
	if state != nil {
		if runOutput != "" {
			if err := writeState(state, runOutput); err != nil {
				return err
			}
		}
		printRunSummary(state)
	}
	return runErr
}
