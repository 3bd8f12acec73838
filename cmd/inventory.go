package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/ksteptoe/sfdump/internal/output"
	"github.com/ksteptoe/sfdump/pkg/export/inventory"
)

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Audit the export for completeness and write the manifest",
	Long: `Run every completeness check against the export using only local files
(no API calls) and snapshot the result to meta/inventory.json. The
overall status is INCOMPLETE if anything definite is missing, WARNING
if anything is doubtful, COMPLETE otherwise.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, root, err := openRoot()
		if err != nil {
			return err
		}

		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
		s.Suffix = " auditing export"
		s.Start()
		res, err := inventory.Run(cmd.Context(), root)
		s.Stop()
		if err != nil {
			return err
		}

		manifestPath, err := inventory.WriteManifest(root, res)
		if err != nil {
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return output.JSON(res)
		}

		rows := [][]string{
			{"CATEGORY", "STATUS", "DETAIL"},
			{"csv objects", string(res.CSVObjects.Status),
				fmt.Sprintf("%d/%d expected tables", res.CSVObjects.FoundCount-len(res.CSVObjects.ExtraObjects), res.CSVObjects.ExpectedCount)},
			{"attachments", string(res.Attachments.Status),
				fmt.Sprintf("%d expected, %d missing, %d corrupt", res.Attachments.Expected, res.Attachments.Missing, res.Attachments.Corrupt)},
			{"file versions", string(res.ContentVersions.Status),
				fmt.Sprintf("%d expected, %d missing, %d corrupt", res.ContentVersions.Expected, res.ContentVersions.Missing, res.ContentVersions.Corrupt)},
			{"invoices", string(res.Invoices.Status),
				fmt.Sprintf("%d expected, %d present", res.Invoices.Expected, res.Invoices.Actual)},
			{"indexes", string(res.Indexes.Status),
				fmt.Sprintf("%d master rows, %d without path", res.Indexes.MasterIndexRows, res.Indexes.MasterRowsMissingPath)},
			{"database", string(res.Database.Status),
				fmt.Sprintf("%d tables, %s rows", res.Database.TableCount, strconv.Itoa(res.Database.TotalRows))},
		}
		output.Table(rows)
		output.Success("overall: %s (manifest: %s)", res.OverallStatus, manifestPath)
		return nil
	},
}

func init() {
	inventoryCmd.Flags().Bool("json", false, "Emit machine-readable JSON")
	rootCmd.AddCommand(inventoryCmd)
}
