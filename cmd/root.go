// Package cmd wires the sync engine into a small CLI: sync, deploy, status.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	cacheDir   string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "agentsync",
	Short: "Synchronize and deploy agent definitions from remote sources",
	Long: `agentsync keeps a local cache of agent definition files published by one
or more Git-hosted sources, resolves conflicts between sources by priority,
and deploys one winning copy of each agent into a target directory.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "Cache root directory (default ~/.agentic-research/agentsync/cache)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to sources.yaml (default ~/.agentic-research/agentsync/sources.yaml)")
}

// defaultDir resolves the tool's home directory.
func defaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home dir: %w", err)
	}
	return filepath.Join(home, ".agentic-research", "agentsync"), nil
}

// resolvePaths fills the global flag values with defaults when unset.
func resolvePaths() error {
	base, err := defaultDir()
	if err != nil {
		return err
	}
	if cacheDir == "" {
		cacheDir = filepath.Join(base, "cache")
	}
	if configPath == "" {
		configPath = filepath.Join(base, "sources.yaml")
	}
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
