package cmd

import (
	"github.com/spf13/cobra"
)

var (
	indexForce  bool
	indexDryRun bool
	indexResume bool
	indexDocs   bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the project's source tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		if indexDocs {
			return callAndPrint(cmd.Context(), "docs_index", map[string]any{})
		}
		return callAndPrint(cmd.Context(), "code_index", map[string]any{
			"force":   indexForce,
			"dry_run": indexDryRun,
			"resume":  indexResume,
		})
	},
}

func init() {
	indexCmd.Flags().BoolVar(&indexForce, "force", false, "discard any checkpoint and reindex everything")
	indexCmd.Flags().BoolVar(&indexDryRun, "dry-run", false, "scan only and report counts")
	indexCmd.Flags().BoolVar(&indexResume, "resume", true, "resume from an existing checkpoint")
	indexCmd.Flags().BoolVar(&indexDocs, "docs", false, "ingest the configured docs directory instead of code")
	rootCmd.AddCommand(indexCmd)
}
