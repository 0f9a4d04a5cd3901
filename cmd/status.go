package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/agentic-research/agentsync/internal/source"
	"github.com/agentic-research/agentsync/internal/state"
	"github.com/spf13/cobra"
)

var statusHistory int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configured sources and recent sync history",
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

		for i := range sources {
			src := &sources[i]
			status := "enabled"
			if !src.Enabled {
				status = "disabled"
			}
			fmt.Printf("%s (priority %d, %s)\n", src.ID(), src.Priority, status)

			last, err := store.LastSync(src.ID())
			if err != nil {
				return err
			}
			if last.IsZero() {
				fmt.Printf("  never synced\n")
				continue
			}
			fmt.Printf("  last sync: %s\n", last.Format("2006-01-02 15:04:05"))

			tracked, err := store.TrackedFiles(src.ID())
			if err != nil {
				return err
			}
			fmt.Printf("  tracked files: %d\n", len(tracked))

			runs, err := store.History(src.ID(), statusHistory)
			if err != nil {
				return err
			}
			for _, r := range runs {
				fmt.Printf("  %s  %-7s  %dd/%dc/%df in %v\n",
					r.CreatedAt.Format("2006-01-02 15:04:05"), r.Outcome,
					r.Downloaded, r.Cached, r.Failed, r.Duration)
			}
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusHistory, "history", 5, "Number of recent sync runs to show per source")
	rootCmd.AddCommand(statusCmd)
}
