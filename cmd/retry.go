package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/ksteptoe/sfdump/internal/output"
	"github.com/ksteptoe/sfdump/pkg/export"
	"github.com/ksteptoe/sfdump/pkg/export/retry"
	"github.com/ksteptoe/sfdump/pkg/sfapi"
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-attempt downloads the verifier flagged, once each",
	Long: `Load each category's missing and corrupt side tables, attempt one fresh
download per row, and write an audit table of the outcomes. Recovered
paths are folded back into the category metadata so later passes see
them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, root, err := openRoot()
		if err != nil {
			return err
		}
		client, err := cfg.API.NewClient()
		if err != nil {
			return err
		}

		for _, cat := range []export.Category{export.CategoryAttachment, export.CategoryContentVersion} {
			res, err := retry.Category(cmd.Context(), client, root, cat, cfg.API.APIVersion())
			if err != nil {
				if errors.Is(err, sfapi.ErrRateLimited) {
					output.Warning("rate limited by the org; stopping this pass. Re-run later to continue.")
					return nil
				}
				return err
			}
			output.Success("%s: attempted %d, recovered %d, failed %d, invalid-path %d",
				cat, res.Attempted, res.Recovered, res.Failed, res.InvalidPath)

			merged, err := retry.MergeRecovered(cat.MetaCSV(root), cat.RetryCSV(root))
			if err != nil {
				return err
			}
			if merged > 0 {
				output.Success("%s: merged %d recovered paths into metadata", cat, merged)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(retryCmd)
}
