// Package client contains Cobra CLI commands for natlog. Commands open the
// data directory directly; there is no server to talk to.
package client

import (
	"github.com/spf13/cobra"

	cfgpkg "github.com/rzbill/natlog/internal/config"
	"github.com/rzbill/natlog/internal/runtime"
	logpkg "github.com/rzbill/natlog/pkg/log"
)

// NewRoot registers the natlog command groups on a root Cobra command.
func NewRoot(logger logpkg.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "natlog",
		Short: "natlog client commands",
	}
	root.PersistentFlags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	root.PersistentFlags().String("config", "", "Config file path (JSON)")

	root.AddCommand(NewLogCommand(logger))
	root.AddCommand(NewOffsetsCommand(logger))
	root.AddCommand(NewDLQCommand(logger))
	root.AddCommand(NewCheckpointCommand(logger))
	return root
}

// openRuntime resolves config from the command flags and environment, then
// opens the runtime.
func openRuntime(cmd *cobra.Command, logger logpkg.Logger) (*runtime.Runtime, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return nil, err
	}
	cfgpkg.FromEnv(&cfg)
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	return runtime.Open(runtime.Options{Config: cfg, Logger: logger})
}
