package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	searchScope    string
	searchLimit    int
	searchLanguage string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search code, memories, and documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := args[0]
		for _, a := range args[1:] {
			query += " " + a
		}
		if query == "" {
			return fmt.Errorf("query must not be empty")
		}
		if searchLanguage != "" {
			return callAndPrint(cmd.Context(), "code_search", map[string]any{
				"query":    query,
				"language": searchLanguage,
				"limit":    searchLimit,
			})
		}
		return callAndPrint(cmd.Context(), "explore_search", map[string]any{
			"query": query,
			"scope": searchScope,
			"limit": searchLimit,
		})
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchScope, "scope", "all", "search scope: all, code, memory, docs")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum results")
	searchCmd.Flags().StringVar(&searchLanguage, "language", "", "search code only, filtered by language")
	rootCmd.AddCommand(searchCmd)
}
