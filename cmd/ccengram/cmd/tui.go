package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ccengram/ccengram/internal/config"
	"github.com/ccengram/ccengram/internal/daemon"
	"github.com/ccengram/ccengram/internal/ui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Run the terminal dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := daemon.NewClient(config.SocketPath(), 30*time.Second)
		if !client.IsRunning() {
			return fmt.Errorf("daemon is not running; start it with: ccengram daemon")
		}
		return ui.Run(client, projectCWD())
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
