package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ksteptoe/sfdump/internal/output"
	"github.com/ksteptoe/sfdump/pkg/export/docindex"
)

var docsIndexCmd = &cobra.Command{
	Use:   "docs-index",
	Short: "Build the master documents index",
	Long: `Combine the per-object file-link indexes with the category metadata
into one denormalized index of every document, its resolved local path,
and its business context. The result is written atomically to
meta/master_documents_index.csv.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, root, err := openRoot()
		if err != nil {
			return err
		}

		res, err := docindex.Build(root)
		if err != nil {
			return err
		}
		output.Success("master index: %d rows (%d resolved, %d unresolved) -> %s",
			res.Total, res.Resolved, res.Unresolved, res.Path)
		if res.Unresolved > 0 {
			output.Warning("%d documents have no local file; `sfdump backfill` can try to recover them", res.Unresolved)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(docsIndexCmd)
}
