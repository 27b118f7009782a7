package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var flagForce bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the entire index",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, _, err := buildEngine()
		if err != nil {
			return err
		}

		count := engine.Store().Count()
		if count == 0 {
			fmt.Println("Index is already empty.")
			return nil
		}

		if !flagForce {
			fmt.Printf("Delete %d indexed chunk(s)? [y/N] ", count)
			reader := bufio.NewReader(os.Stdin)
			line, _ := reader.ReadString('\n')
			if strings.ToLower(strings.TrimSpace(line)) != "y" {
				fmt.Println("Aborted.")
				return nil
			}
		}

		if err := engine.ResetStore(); err != nil {
			return err
		}
		fmt.Println("Index reset.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVarP(&flagForce, "force", "f", false, "skip confirmation")
	rootCmd.AddCommand(resetCmd)
}
