package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"docrag/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive chat interface",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI()
	},
}

func runTUI() error {
	engine, cfg, err := buildEngine()
	if err != nil {
		return err
	}
	if engine.Store().Count() == 0 {
		return fmt.Errorf("no documents indexed\nRun 'docrag ingest <path>' first")
	}
	return tui.Run(engine, cfg.History.MaxTurns)
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
