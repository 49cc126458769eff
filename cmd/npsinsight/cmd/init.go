package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SyncPort-ai/nps-insight-engine/internal/config"
)

var initPath string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented default configuration file",
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := config.WriteDefault(initPath); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", initPath)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initPath, "path", ".npsinsight.yaml", "where to write the config file")
	rootCmd.AddCommand(initCmd)
}
