package cmd

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/agentic-research/agentsync/internal/catalog"
	"github.com/agentic-research/agentsync/internal/fetch"
	"github.com/agentic-research/agentsync/internal/resolve"
	"github.com/agentic-research/agentsync/internal/source"
	"github.com/agentic-research/agentsync/internal/state"
	"github.com/agentic-research/agentsync/internal/syncer"
	"github.com/spf13/cobra"
)

var syncForce bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync agent definitions from all configured sources",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := resolvePaths(); err != nil {
			return err
		}
		sources, err := source.LoadConfig(configPath)
		if err != nil {
			return err
		}

		store, err := state.Open(filepath.Join(cacheDir, state.DBFileName))
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		if err := store.MigrateLegacyCache(cacheDir); err != nil {
			// Migration trouble is recoverable by design; keep syncing.
			fmt.Printf("Warning: legacy cache migration: %v\n", err)
		}

		engine := syncer.NewEngine(fetch.New(store), catalog.New(), store, cacheDir)
		coord := syncer.NewCoordinator(engine, cacheDir)

		results, artifacts := coord.SyncAll(sources, syncForce)
		printResults(results)

		resolved, conflicts := resolve.Resolve(artifacts)
		fmt.Printf("\n%d agents resolved across %d sources\n", len(resolved), len(results))
		for _, c := range conflicts {
			fmt.Printf("  conflict %q: %s wins over %v\n", c.Identity, c.Winner, c.Losers)
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVarP(&syncForce, "force", "f", false, "Bypass cache validators and re-download everything")
	rootCmd.AddCommand(syncCmd)
}

func printResults(results map[string]*syncer.SourceResult) {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		r := results[id]
		fmt.Printf("%s [%s]: %d downloaded, %d cached, %d failed (%.2fs)\n",
			id, r.Outcome(), len(r.Downloaded), len(r.Cached), len(r.Failed),
			r.Duration.Seconds())
		if r.UsedFallback {
			fmt.Printf("  (directory listing unavailable, used built-in candidate list)\n")
		}
		for _, name := range r.Failed {
			fmt.Printf("  failed: %s\n", name)
		}
		if r.Err != nil {
			fmt.Printf("  error: %v\n", r.Err)
		}
	}
}
