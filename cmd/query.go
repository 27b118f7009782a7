package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"docrag/internal/rag"
)

var (
	flagTopK          int
	flagRetrievalOnly bool
	flagOCRText       string
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask a single question against the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, _, err := buildEngine()
		if err != nil {
			return err
		}
		question := strings.Join(args, " ")
		ctx := cmd.Context()
		opts := rag.Options{TopK: flagTopK}

		if flagRetrievalOnly {
			cands, err := engine.Retrieve(ctx, question, opts)
			if err != nil {
				return err
			}
			if len(cands) == 0 {
				fmt.Println("No matching chunks.")
				return nil
			}
			for i, c := range cands {
				fmt.Printf("[%d] %s#%d score=%.4f sim=%.4f\n", i+1, c.FilePath, c.ChunkIndex, c.Score, c.InitialScore)
				fmt.Printf("    %s\n", firstLine(c.ChunkSummary))
			}
			return nil
		}

		if flagOCRText != "" {
			cands, err := engine.Retrieve(ctx, question, opts)
			if err != nil {
				return err
			}
			prompt := engine.BuildPrompt(question, cands, rag.PromptOptions{IsImage: true, OCRText: flagOCRText})
			fmt.Println(prompt)
			return nil
		}

		answer, cands, err := engine.Answer(ctx, question, opts)
		if err != nil {
			return err
		}
		fmt.Println(answer)
		if len(cands) > 0 {
			fmt.Println()
			fmt.Println("Sources:")
			for _, c := range cands {
				fmt.Printf("  %s#%d (%.4f)\n", c.FilePath, c.ChunkIndex, c.Score)
			}
		}
		return nil
	},
}

func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}

func init() {
	queryCmd.Flags().IntVar(&flagTopK, "top-k", 0, "number of chunks to keep after reranking (default from config)")
	queryCmd.Flags().BoolVar(&flagRetrievalOnly, "retrieval-only", false, "print retrieved chunks without calling the language model")
	queryCmd.Flags().StringVar(&flagOCRText, "ocr-text", "", "treat the question as being about this OCR transcript and print the assembled prompt")
	rootCmd.AddCommand(queryCmd)
}
