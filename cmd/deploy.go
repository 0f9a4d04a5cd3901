package cmd

import (
	"fmt"

	"github.com/agentic-research/agentsync/internal/deploy"
	"github.com/agentic-research/agentsync/internal/discover"
	"github.com/agentic-research/agentsync/internal/resolve"
	"github.com/agentic-research/agentsync/internal/source"
	"github.com/spf13/cobra"
)

var (
	deployTarget string
	deployDryRun bool
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy resolved agent definitions into the target directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := resolvePaths(); err != nil {
			return err
		}
		if deployTarget == "" {
			return fmt.Errorf("--target is required")
		}
		sources, err := source.LoadConfig(configPath)
		if err != nil {
			return err
		}

		// Deploy works off the current cache contents; run `sync` first
		// to pick up remote changes.
		var artifacts []discover.Artifact
		for i := range sources {
			if !sources[i].Enabled {
				continue
			}
			found, err := discover.Scan(&sources[i], cacheDir)
			if err != nil {
				return err
			}
			artifacts = append(artifacts, found...)
		}

		resolved, conflicts := resolve.Resolve(artifacts)
		for _, c := range conflicts {
			fmt.Printf("conflict %q: %s wins over %v\n", c.Identity, c.Winner, c.Losers)
		}

		mgr := deploy.NewManager(deployTarget)
		outcomes, err := mgr.Deploy(resolved, deployDryRun)
		if err != nil {
			return err
		}

		deployed, skipped, failed := 0, 0, 0
		for _, o := range outcomes {
			switch o.Status {
			case deploy.StatusDeployed:
				deployed++
			case deploy.StatusSkipped:
				skipped++
			case deploy.StatusFailed:
				failed++
				fmt.Printf("failed %s: %v\n", o.FileName, o.Err)
			}
		}
		mode := ""
		if deployDryRun {
			mode = " (dry run)"
		}
		fmt.Printf("%d deployed, %d unchanged, %d failed%s\n", deployed, skipped, failed, mode)
		return nil
	},
}

func init() {
	deployCmd.Flags().StringVarP(&deployTarget, "target", "t", "", "Target directory for deployed agents")
	deployCmd.Flags().BoolVar(&deployDryRun, "dry-run", false, "Report what would be deployed without writing")
	rootCmd.AddCommand(deployCmd)
}
