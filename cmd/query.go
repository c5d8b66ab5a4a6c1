package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query <description>",
	Short: "Generate a search query from a lead description",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := generateQuery(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(os.Stdout, q)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
}
