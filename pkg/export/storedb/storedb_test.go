package storedb_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ksteptoe/sfdump/pkg/export"
	"github.com/ksteptoe/sfdump/pkg/export/storedb"
	"github.com/ksteptoe/sfdump/pkg/export/table"
)

func writeCSV(t *testing.T, path string, tab *table.Table) {
	t.Helper()
	require.NoError(t, table.Write(path, tab))
}

func tableByName(res storedb.Result, name string) (storedb.TableResult, bool) {
	for _, tr := range res.Tables {
		if tr.Table == name {
			return tr, true
		}
	}
	return storedb.TableResult{}, false
}

func TestBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("round trips flat tables into the store", func(t *testing.T) {
		root := export.Root{Dir: t.TempDir()}
		writeCSV(t, filepath.Join(root.CSVDir(), "Account.csv"), &table.Table{
			Header: []string{"Id", "Name"},
			Rows: []table.Row{
				{"Id": "001AAA", "Name": "Acme"},
				{"Id": "001BBB", "Name": "Globex"},
			},
		})
		writeCSV(t, filepath.Join(root.CSVDir(), "Opportunity.csv"), &table.Table{
			Header: []string{"Id", "AccountId", "Name"},
			Rows:   []table.Row{{"Id": "006AAA", "AccountId": "001AAA", "Name": "Deal"}},
		})

		res, err := storedb.Build(ctx, root, storedb.Options{})
		require.NoError(t, err)
		require.Equal(t, root.StorePath(), res.Path)

		acc, ok := tableByName(res, "account")
		require.True(t, ok)
		require.Equal(t, 2, acc.Rows)
		require.Equal(t, 2, acc.Columns)

		infos, err := storedb.Inspect(ctx, res.Path)
		require.NoError(t, err)
		byName := make(map[string]int)
		for _, ti := range infos {
			byName[ti.Name] = ti.Rows
		}
		require.Equal(t, 2, byName["account"])
		require.Equal(t, 1, byName["opportunity"])

		// no leftover temp file after the rename
		_, err = os.Stat(res.Path + ".building")
		require.True(t, os.IsNotExist(err))
	})

	t.Run("refuses to clobber without overwrite", func(t *testing.T) {
		root := export.Root{Dir: t.TempDir()}
		writeCSV(t, filepath.Join(root.CSVDir(), "Account.csv"), &table.Table{
			Header: []string{"Id"}, Rows: []table.Row{{"Id": "001AAA"}},
		})

		_, err := storedb.Build(ctx, root, storedb.Options{})
		require.NoError(t, err)

		_, err = storedb.Build(ctx, root, storedb.Options{})
		require.ErrorIs(t, err, storedb.ErrExists)

		_, err = storedb.Build(ctx, root, storedb.Options{Overwrite: true})
		require.NoError(t, err)
	})

	t.Run("probes filename variants", func(t *testing.T) {
		root := export.Root{Dir: t.TempDir()}
		// lower_snake plural, as the oldest exports named it
		writeCSV(t, filepath.Join(root.CSVDir(), "accounts.csv"), &table.Table{
			Header: []string{"Id"}, Rows: []table.Row{{"Id": "001AAA"}},
		})

		res, err := storedb.Build(ctx, root, storedb.Options{})
		require.NoError(t, err)
		acc, ok := tableByName(res, "account")
		require.True(t, ok)
		require.Equal(t, "accounts.csv", acc.Source)
	})

	t.Run("falls back to the objects directory", func(t *testing.T) {
		root := export.Root{Dir: t.TempDir()}
		writeCSV(t, filepath.Join(root.Dir, "objects", "Account.csv"), &table.Table{
			Header: []string{"Id"}, Rows: []table.Row{{"Id": "001AAA"}},
		})

		res, err := storedb.Build(ctx, root, storedb.Options{})
		require.NoError(t, err)
		_, ok := tableByName(res, "account")
		require.True(t, ok)
	})

	t.Run("no flat tables anywhere is an error", func(t *testing.T) {
		root := export.Root{Dir: t.TempDir()}
		_, err := storedb.Build(ctx, root, storedb.Options{})
		require.Error(t, err)
		_, statErr := os.Stat(root.StorePath())
		require.True(t, os.IsNotExist(statErr))
	})

	t.Run("duplicate ids collapse to the last row", func(t *testing.T) {
		root := export.Root{Dir: t.TempDir()}
		writeCSV(t, filepath.Join(root.CSVDir(), "Account.csv"), &table.Table{
			Header: []string{"Id", "Name"},
			Rows: []table.Row{
				{"Id": "001AAA", "Name": "old"},
				{"Id": "001AAA", "Name": "new"},
			},
		})

		res, err := storedb.Build(ctx, root, storedb.Options{})
		require.NoError(t, err)

		infos, err := storedb.Inspect(ctx, res.Path)
		require.NoError(t, err)
		for _, ti := range infos {
			if ti.Name == "account" {
				require.Equal(t, 1, ti.Rows)
			}
		}
	})

	t.Run("loads the master index when present", func(t *testing.T) {
		root := export.Root{Dir: t.TempDir()}
		writeCSV(t, filepath.Join(root.CSVDir(), "Account.csv"), &table.Table{
			Header: []string{"Id"}, Rows: []table.Row{{"Id": "001AAA"}},
		})
		writeCSV(t, root.MasterIndexPath(), &table.Table{
			Header: []string{"file_id", "local_path"},
			Rows:   []table.Row{{"file_id": "00PAAA", "local_path": "files_legacy/00/a.txt"}},
		})

		res, err := storedb.Build(ctx, root, storedb.Options{})
		require.NoError(t, err)
		master, ok := tableByName(res, "master_documents")
		require.True(t, ok)
		require.Equal(t, 1, master.Rows)
	})
}

func TestInspect(t *testing.T) {
	t.Run("unreadable path errors", func(t *testing.T) {
		_, err := storedb.Inspect(context.Background(), filepath.Join(t.TempDir(), "nope.db"))
		require.Error(t, err)
	})
}
