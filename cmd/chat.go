package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"docrag/internal/rag"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions about your documents in a plain terminal loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, cfg, err := buildEngine()
		if err != nil {
			return err
		}
		if engine.Store().Count() == 0 {
			return fmt.Errorf("no documents indexed\nRun 'docrag ingest <path>' first")
		}

		ctx := cmd.Context()
		maxTurns := cfg.History.MaxTurns
		var history []rag.Turn
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("docrag chat (type /help for commands, /exit to quit)")
		fmt.Println()

		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				break
			}
			question := strings.TrimSpace(scanner.Text())
			if question == "" {
				continue
			}

			switch question {
			case "/exit", "/quit":
				fmt.Println("Goodbye.")
				return nil
			case "/clear":
				history = nil
				fmt.Println("Conversation cleared.")
				continue
			case "/help":
				fmt.Println("Commands:")
				fmt.Println("  /clear  - clear conversation history")
				fmt.Println("  /exit   - quit chat")
				fmt.Println("  /help   - show this help")
				continue
			}

			fmt.Println("[Searching...]")

			answer, cands, err := engine.Answer(ctx, question, rag.Options{History: history})
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}

			fmt.Println()
			fmt.Println(answer)
			if len(cands) > 0 {
				var srcs []string
				for _, c := range cands {
					srcs = append(srcs, fmt.Sprintf("%s#%d", c.FilePath, c.ChunkIndex))
				}
				fmt.Printf("\n(sources: %s)\n", strings.Join(srcs, ", "))
			}
			fmt.Println()

			history = append(history, rag.Turn{User: question, Assistant: answer})
			if len(history) > maxTurns {
				history = history[len(history)-maxTurns:]
			}
		}

		return scanner.Err()
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
