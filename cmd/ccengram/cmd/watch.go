package cmd

import (
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Control the file watcher",
}

var watchStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start watching the project",
	RunE: func(cmd *cobra.Command, args []string) error {
		return callAndPrint(cmd.Context(), "watch_start", map[string]any{})
	},
}

var watchStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop watching the project",
	RunE: func(cmd *cobra.Command, args []string) error {
		return callAndPrint(cmd.Context(), "watch_stop", map[string]any{})
	},
}

var watchStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show watcher status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return callAndPrint(cmd.Context(), "watch_status", map[string]any{})
	},
}

func init() {
	watchCmd.AddCommand(watchStartCmd, watchStopCmd, watchStatusCmd)
	rootCmd.AddCommand(watchCmd)
}
