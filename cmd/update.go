package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var flagContent string

var updateCmd = &cobra.Command{
	Use:   "update <file> <chunk-index>",
	Short: "Replace one chunk's content and re-embed it",
	Long: `Replace one chunk's content and re-embed it.

The new content comes from --content, or from stdin when the flag is absent.
An empty content keeps the chunk as a zero-vector placeholder so the index
stays aligned.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		chunkIndex, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("chunk index must be a number: %w", err)
		}

		content := flagContent
		if !cmd.Flags().Changed("content") {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}
			content = string(data)
		}

		engine, _, err := buildEngine()
		if err != nil {
			return err
		}
		if err := engine.UpdateChunk(cmd.Context(), args[0], chunkIndex, content); err != nil {
			return err
		}
		fmt.Printf("Updated chunk %d of %s.\n", chunkIndex, args[0])
		return nil
	},
}

func init() {
	updateCmd.Flags().StringVar(&flagContent, "content", "", "new chunk content (reads stdin if omitted)")
	rootCmd.AddCommand(updateCmd)
}
