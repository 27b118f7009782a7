package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"docrag/internal/loader"
)

var flagForceRebuild bool

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>...",
	Short: "Index documents or directories of documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, cfg, err := buildEngine()
		if err != nil {
			return err
		}

		// Directories expand to every supported file under them.
		var paths []string
		for _, arg := range args {
			info, err := os.Stat(arg)
			if err != nil {
				return err
			}
			if info.IsDir() {
				files, err := loader.CollectFiles(arg)
				if err != nil {
					return fmt.Errorf("scan %s: %w", arg, err)
				}
				paths = append(paths, files...)
			} else {
				paths = append(paths, arg)
			}
		}
		if len(paths) == 0 {
			fmt.Println("No supported documents found.")
			return nil
		}

		ctx := cmd.Context()

		if engine.ModelChanged() {
			if !flagForceRebuild {
				return fmt.Errorf("index was built with embedding model %q but %q is configured\nRun again with --rebuild to re-embed the existing index first",
					engine.Store().Model(), cfg.Embedding.Model)
			}
			fmt.Println("Embedding model changed, re-embedding existing index...")
			if err := engine.Rebuild(ctx, "", nil); err != nil {
				return err
			}
		}

		fmt.Printf("Ingesting %d file(s)...\n", len(paths))
		start := time.Now()

		report, err := engine.Ingest(ctx, paths)
		if report != nil {
			fmt.Printf("\nDone in %s\n", time.Since(start).Round(time.Millisecond))
			fmt.Printf("  Ingested: %d\n  Skipped:  %d\n  Empty:    %d\n  Failed:   %d\n",
				report.Ingested, report.Skipped, report.Empty, len(report.Failed))
			for _, f := range report.Failed {
				fmt.Fprintf(os.Stderr, "  failed %s: %v\n", f.Path, f.Err)
			}
			fmt.Printf("  Chunks indexed: %d\n", engine.Store().Count())
		}
		return err
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&flagForceRebuild, "rebuild", false, "re-embed the existing index if the embedding model changed")
	rootCmd.AddCommand(ingestCmd)
}
