// Package cmd implements the ccengram CLI. Subcommands wrap the daemon
// RPC surface; when no daemon is running, requests execute in-process
// against the same project actors.
package cmd

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ccengram/ccengram/internal/actor"
	"github.com/ccengram/ccengram/internal/config"
	"github.com/ccengram/ccengram/internal/daemon"
	"github.com/ccengram/ccengram/internal/output"
)

var (
	flagJSON bool
	flagCWD  string
)

var rootCmd = &cobra.Command{
	Use:   "ccengram",
	Short: "Per-project code and memory indexing service",
	Long: `ccengram keeps a local vector database synchronized with a project's
source tree and an evolving store of durable memories, and answers
semantic queries across code, memories, and documents.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printer().Error(err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "machine-readable JSON output")
	rootCmd.PersistentFlags().StringVar(&flagCWD, "cwd", "", "project directory (default: current directory)")
}

func printer() *output.Printer {
	return output.NewPrinter(os.Stdout, flagJSON)
}

func projectCWD() string {
	if flagCWD != "" {
		return flagCWD
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

// call routes a method to the daemon when it runs, otherwise to an
// in-process actor registry.
func call(ctx context.Context, method string, params any, out any) error {
	client := daemon.NewClient(config.SocketPath(), 5*time.Minute)
	if client.IsRunning() {
		return client.Call(ctx, method, projectCWD(), params, out)
	}

	registry := actor.NewRegistry(ctx)
	defer registry.Shutdown()

	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	result, err := registry.Dispatch(ctx, projectCWD(), method, raw)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(encoded, out)
}

// printResult renders any RPC result.
func printResult(result any) error {
	return printer().Result(result, func(w io.Writer) {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
	})
}

// callAndPrint is the common wrapper for thin RPC subcommands.
func callAndPrint(ctx context.Context, method string, params any) error {
	var result any
	if err := call(ctx, method, params, &result); err != nil {
		return err
	}
	return printResult(result)
}
