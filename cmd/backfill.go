package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/ksteptoe/sfdump/internal/output"
	"github.com/ksteptoe/sfdump/pkg/export/backfill"
	"github.com/ksteptoe/sfdump/pkg/sfapi"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Recover remote files the master index has no local copy of",
	Long: `Scan the master documents index for remote files without a resolved
local path and try to download them, resolving document containers to
their latest version first. The index is rewritten with every path that
was recovered or found already on disk.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, root, err := openRoot()
		if err != nil {
			return err
		}
		client, err := cfg.API.NewClient()
		if err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		res, err := backfill.Run(cmd.Context(), client, root, backfill.Options{
			Limit:      limit,
			DryRun:     dryRun,
			APIVersion: cfg.API.APIVersion(),
		})
		if err != nil {
			if errors.Is(err, sfapi.ErrRateLimited) {
				output.Warning("rate limited by the org; stopping this pass. Re-run later to continue.")
				output.Success("backfill (partial): %d missing, %d downloaded, %d failed, %d skipped",
					res.TotalMissing, res.Downloaded, res.Failed, res.Skipped)
				return nil
			}
			return err
		}
		output.Success("backfill: %d missing, %d downloaded, %d failed, %d skipped",
			res.TotalMissing, res.Downloaded, res.Failed, res.Skipped)
		return nil
	},
}

func init() {
	backfillCmd.Flags().Int("limit", 0, "Process at most this many missing entries (0 = all)")
	backfillCmd.Flags().Bool("dry-run", false, "Report what would be downloaded without doing it")
	rootCmd.AddCommand(backfillCmd)
}
