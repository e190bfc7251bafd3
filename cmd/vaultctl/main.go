// Package main implements vaultctl, the thin operational CLI for
// vaultgraph: local testing and batch use of the engine without a
// running agent-protocol transport (spec §0).
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"vaultgraph/internal/config"
	"vaultgraph/internal/engine"
	"vaultgraph/internal/logging"
)

var (
	vaultRoot  string
	configPath string
	verbose    bool

	eng    *engine.Engine
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "vaultctl",
	Short: "vaultgraph: an incremental knowledge-graph engine for Markdown vaults",
	Long: `vaultctl drives the vaultgraph engine directly from the command
line: indexing a vault, querying its graph, and applying structural
edits without going through an agent-protocol transport.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Use == "vaultctl" {
			return nil
		}
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var zerr error
		logger, zerr = zapCfg.Build()
		if zerr != nil {
			return fmt.Errorf("failed to initialize console logger: %w", zerr)
		}

		root := vaultRoot
		if root == "" {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getwd: %w", err)
			}
			root = wd
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("resolve vault root: %w", err)
		}
		vaultRoot = abs

		if err := logging.Initialize(vaultRoot); err != nil {
			fmt.Fprintf(os.Stderr, "warning: logging init failed: %v\n", err)
		}
		if err := logging.InitAudit(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: audit log init failed: %v\n", err)
		}

		cfgFile := configPath
		if cfgFile == "" {
			cfgFile = filepath.Join(vaultRoot, ".flywheel", "vaultgraph.yaml")
		}
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		e, err := engine.New(context.Background(), *cfg, vaultRoot)
		if err != nil {
			return fmt.Errorf("start engine: %w", err)
		}
		eng = e
		logger.Info("engine ready", zap.String("vault_root", vaultRoot))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if eng != nil {
			eng.Stop()
		}
		logging.CloseAudit()
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&vaultRoot, "vault-root", "w", "", "vault directory (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to vaultgraph.yaml (default: <vault-root>/.flywheel/vaultgraph.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level console logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
