package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ccengram/ccengram/internal/actor"
	"github.com/ccengram/ccengram/internal/config"
	"github.com/ccengram/ccengram/internal/daemon"
	"github.com/ccengram/ccengram/internal/logging"
)

var daemonDebug bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the indexing service",
	RunE: func(cmd *cobra.Command, args []string) error {
		logCfg := logging.DefaultConfig()
		if daemonDebug {
			logCfg = logging.DebugConfig()
		}
		logCfg.WriteToStderr = false

		logger, cleanup, err := logging.Setup(logCfg)
		if err != nil {
			return err
		}
		defer cleanup()
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		registry := actor.NewRegistry(ctx)
		server := daemon.NewServer(config.SocketPath(), registry, projectCWD())
		return server.ListenAndServe(ctx)
	},
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonDebug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(daemonCmd)
}
