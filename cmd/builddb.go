package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ksteptoe/sfdump/internal/output"
	"github.com/ksteptoe/sfdump/pkg/export/storedb"
)

var buildDBCmd = &cobra.Command{
	Use:   "build-db",
	Short: "Build the relational store from the flat CSV exports",
	Long: `Load every flat object table plus the master documents index into an
embedded SQLite database at meta/sfdata.db, all columns as TEXT, with
foreign-key indexes for the declared relationships. An existing store is
only replaced with --overwrite.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, root, err := openRoot()
		if err != nil {
			return err
		}

		overwrite, _ := cmd.Flags().GetBool("overwrite")
		res, err := storedb.Build(cmd.Context(), root, storedb.Options{Overwrite: overwrite})
		if err != nil {
			return err
		}

		rows := [][]string{{"TABLE", "SOURCE", "ROWS", "COLUMNS"}}
		for _, t := range res.Tables {
			rows = append(rows, []string{t.Table, t.Source, strconv.Itoa(t.Rows), strconv.Itoa(t.Columns)})
		}
		output.Table(rows)
		output.Success("store built at %s (%d tables)", res.Path, len(res.Tables))
		return nil
	},
}

var dbInfoCmd = &cobra.Command{
	Use:   "db-info",
	Short: "Show tables and row counts of the relational store",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, root, err := openRoot()
		if err != nil {
			return err
		}

		tables, err := storedb.Inspect(cmd.Context(), root.StorePath())
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return output.JSON(tables)
		}
		rows := [][]string{{"TABLE", "ROWS"}}
		for _, t := range tables {
			rows = append(rows, []string{t.Name, strconv.Itoa(t.Rows)})
		}
		output.Table(rows)
		return nil
	},
}

func init() {
	buildDBCmd.Flags().Bool("overwrite", false, "Replace an existing store")
	dbInfoCmd.Flags().Bool("json", false, "Emit machine-readable JSON")
	rootCmd.AddCommand(buildDBCmd)
	rootCmd.AddCommand(dbInfoCmd)
}
