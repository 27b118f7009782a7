package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list [file]",
	Short: "List indexed documents, or the chunks of one document",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, _, err := buildEngine()
		if err != nil {
			return err
		}
		st := engine.Store()

		if len(args) == 1 {
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			chunks := st.Chunks(abs)
			if len(chunks) == 0 {
				return fmt.Errorf("%s is not in the index", args[0])
			}
			for _, c := range chunks {
				fmt.Printf("--- chunk %d/%d ---\n", c.ChunkIndex+1, c.TotalChunks)
				if c.ChunkSummary != "" {
					fmt.Printf("summary: %s\n", firstLine(c.ChunkSummary))
				}
				fmt.Println(c.ChunkContent)
				fmt.Println()
			}
			return nil
		}

		docs := st.Documents()
		if len(docs) == 0 {
			fmt.Println("No documents indexed.")
			return nil
		}
		fmt.Printf("%d document(s), %d chunks, embedding model %q\n\n", len(docs), st.Count(), st.Model())
		for _, d := range docs {
			fmt.Printf("  %s  (%d chunks, ingested %s)\n", d.FilePath, d.Chunks, d.IngestedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
