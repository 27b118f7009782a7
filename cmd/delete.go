package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <file>",
	Short: "Remove a document and its chunks from the index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, _, err := buildEngine()
		if err != nil {
			return err
		}
		removed, err := engine.DeleteDocument(args[0])
		if err != nil {
			return err
		}
		if removed == 0 {
			fmt.Printf("%s is not in the index.\n", args[0])
			return nil
		}
		fmt.Printf("Removed %d chunk(s) of %s.\n", removed, args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
