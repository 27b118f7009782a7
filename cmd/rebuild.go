package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var flagChunks []int

var rebuildCmd = &cobra.Command{
	Use:   "rebuild [file]",
	Short: "Re-embed indexed chunks without re-reading the source files",
	Long: `Re-embed indexed chunks without re-reading the source files.

With no arguments the whole index is re-embedded, which also repairs a lost
or model-mismatched vector file. With a file argument only that file's chunks
are re-embedded; --chunks narrows it to specific chunk indices.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, _, err := buildEngine()
		if err != nil {
			return err
		}

		file := ""
		if len(args) == 1 {
			file = args[0]
		}
		if file == "" && len(flagChunks) > 0 {
			return fmt.Errorf("--chunks requires a file argument")
		}

		var indices []int
		if len(flagChunks) > 0 {
			indices = flagChunks
		}
		if err := engine.Rebuild(cmd.Context(), file, indices); err != nil {
			return err
		}
		fmt.Println("Rebuild complete.")
		return nil
	},
}

func init() {
	rebuildCmd.Flags().IntSliceVar(&flagChunks, "chunks", nil, "chunk indices to re-embed (requires a file argument)")
	rootCmd.AddCommand(rebuildCmd)
}
