package cmd

import (
	"github.com/spf13/cobra"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Manage durable memories",
}

var (
	memoryAddSector     string
	memoryAddType       string
	memoryAddTags       []string
	memoryAddImportance float64
	memoryAddScopePath  string
)

var memoryAddCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Add a memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return callAndPrint(cmd.Context(), "memory_add", map[string]any{
			"content":    args[0],
			"sector":     memoryAddSector,
			"type":       memoryAddType,
			"tags":       memoryAddTags,
			"importance": memoryAddImportance,
			"scope_path": memoryAddScopePath,
		})
	},
}

var memoryGetRelated bool

var memoryGetCmd = &cobra.Command{
	Use:   "get <memory-id>",
	Short: "Show a memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return callAndPrint(cmd.Context(), "memory_get", map[string]any{
			"memory_id":       args[0],
			"include_related": memoryGetRelated,
		})
	},
}

var (
	memoryListSector string
	memoryListLimit  int
)

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List memories",
	RunE: func(cmd *cobra.Command, args []string) error {
		return callAndPrint(cmd.Context(), "memory_list", map[string]any{
			"sector": memoryListSector,
			"limit":  memoryListLimit,
		})
	},
}

var (
	memorySearchSector string
	memorySearchLimit  int
)

var memorySearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search memories",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return callAndPrint(cmd.Context(), "memory_search", map[string]any{
			"query":  args[0],
			"sector": memorySearchSector,
			"limit":  memorySearchLimit,
		})
	},
}

var memoryAmount float64

var memoryReinforceCmd = &cobra.Command{
	Use:   "reinforce <memory-id>",
	Short: "Raise a memory's salience",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return callAndPrint(cmd.Context(), "memory_reinforce", map[string]any{
			"memory_id": args[0],
			"amount":    memoryAmount,
		})
	},
}

var memoryDeemphasizeCmd = &cobra.Command{
	Use:   "deemphasize <memory-id>",
	Short: "Lower a memory's salience",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return callAndPrint(cmd.Context(), "memory_deemphasize", map[string]any{
			"memory_id": args[0],
			"amount":    memoryAmount,
		})
	},
}

var memoryDeleteHard bool

var memoryDeleteCmd = &cobra.Command{
	Use:   "delete <memory-id>",
	Short: "Delete a memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return callAndPrint(cmd.Context(), "memory_delete", map[string]any{
			"memory_id": args[0],
			"hard":      memoryDeleteHard,
		})
	},
}

var memorySupersedeCmd = &cobra.Command{
	Use:   "supersede <old-id> <new-id>",
	Short: "Mark a memory as replaced by another",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return callAndPrint(cmd.Context(), "memory_supersede", map[string]any{
			"old_memory_id": args[0],
			"new_memory_id": args[1],
		})
	},
}

var memoryRestoreCmd = &cobra.Command{
	Use:   "restore <memory-id>",
	Short: "Restore a soft-deleted memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return callAndPrint(cmd.Context(), "memory_restore", map[string]any{
			"memory_id": args[0],
		})
	},
}

var memoryDecayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Apply salience decay to idle memories",
	RunE: func(cmd *cobra.Command, args []string) error {
		return callAndPrint(cmd.Context(), "memory_apply_decay", map[string]any{})
	},
}

func init() {
	memoryAddCmd.Flags().StringVar(&memoryAddSector, "sector", "", "memory sector")
	memoryAddCmd.Flags().StringVar(&memoryAddType, "type", "", "memory type")
	memoryAddCmd.Flags().StringSliceVar(&memoryAddTags, "tag", nil, "tags (repeatable)")
	memoryAddCmd.Flags().Float64Var(&memoryAddImportance, "importance", 0, "importance in [0,1]")
	memoryAddCmd.Flags().StringVar(&memoryAddScopePath, "scope-path", "", "scope path")
	memoryGetCmd.Flags().BoolVar(&memoryGetRelated, "related", false, "include related memories and code")
	memoryListCmd.Flags().StringVar(&memoryListSector, "sector", "", "filter by sector")
	memoryListCmd.Flags().IntVar(&memoryListLimit, "limit", 20, "maximum results")
	memorySearchCmd.Flags().StringVar(&memorySearchSector, "sector", "", "filter by sector")
	memorySearchCmd.Flags().IntVar(&memorySearchLimit, "limit", 10, "maximum results")
	memoryReinforceCmd.Flags().Float64Var(&memoryAmount, "amount", 0.1, "adjustment amount")
	memoryDeemphasizeCmd.Flags().Float64Var(&memoryAmount, "amount", 0.1, "adjustment amount")
	memoryDeleteCmd.Flags().BoolVar(&memoryDeleteHard, "hard", false, "permanently delete")

	memoryCmd.AddCommand(memoryAddCmd, memoryGetCmd, memoryListCmd, memorySearchCmd,
		memoryReinforceCmd, memoryDeemphasizeCmd, memoryDeleteCmd, memorySupersedeCmd,
		memoryRestoreCmd, memoryDecayCmd)
	rootCmd.AddCommand(memoryCmd)
}
