package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ccengram/ccengram/internal/config"
	"github.com/ccengram/ccengram/internal/daemon"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and project status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := daemon.NewClient(config.SocketPath(), 5*time.Second)
		if !client.IsRunning() {
			if flagJSON {
				fmt.Println(`{"daemon":"stopped"}`)
			} else {
				fmt.Println("daemon: stopped")
			}
			return nil
		}

		var health any
		if err := client.Call(context.Background(), "health_check", "", nil, &health); err != nil {
			return err
		}
		return callAndPrint(cmd.Context(), "project_stats", map[string]any{})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show project statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return callAndPrint(cmd.Context(), "project_stats", map[string]any{})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("ccengram " + Version)
	},
}

// Version is stamped at build time.
var Version = "dev"

func init() {
	rootCmd.AddCommand(statusCmd, statsCmd, versionCmd)
}
