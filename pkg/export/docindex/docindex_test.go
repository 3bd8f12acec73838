package docindex_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ksteptoe/sfdump/pkg/export"
	"github.com/ksteptoe/sfdump/pkg/export/docindex"
	"github.com/ksteptoe/sfdump/pkg/export/table"
)

func newRoot(t *testing.T) export.Root {
	t.Helper()
	return export.Root{Dir: t.TempDir()}
}

func putFile(t *testing.T, root export.Root, rel string) {
	t.Helper()
	abs := root.Resolve(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte("data"), 0o644))
}

func writeTable(t *testing.T, path string, tab *table.Table) {
	t.Helper()
	require.NoError(t, table.Write(path, tab))
}

func TestBuild(t *testing.T) {
	t.Run("fails when no file-link indexes exist", func(t *testing.T) {
		root := newRoot(t)
		require.NoError(t, os.MkdirAll(root.LinksDir(), 0o755))
		_, err := docindex.Build(root)
		require.Error(t, err)
	})

	t.Run("joins each source kind on the right key", func(t *testing.T) {
		root := newRoot(t)
		putFile(t, root, "files_legacy/00/att.txt")
		putFile(t, root, "files/06/doc.pdf")
		putFile(t, root, "invoices/INV-001.pdf")

		// one index with an attachment, a remote file, and an inline-path row
		writeTable(t, filepath.Join(root.LinksDir(), "Account_files_index.csv"), &table.Table{
			Header: []string{"file_source", "file_id", "file_name", "object_type", "record_id", "path"},
			Rows: []table.Row{
				{"file_source": "Attachment", "file_id": "00PAAA", "file_name": "att", "object_type": "Account", "record_id": "001AAA"},
				{"file_source": "File", "file_id": "069AAA", "file_name": "doc", "object_type": "Account", "record_id": "001AAA"},
				{"file_source": "Generated", "file_id": "INV-001", "file_name": "INV-001", "object_type": "Account", "record_id": "001AAA", "path": "invoices/INV-001.pdf"},
			},
		})

		// attachment metadata joins on its own id
		writeTable(t, export.CategoryAttachment.MetaCSV(root), &table.Table{
			Header: []string{"Id", "path"},
			Rows:   []table.Row{{"Id": "00PAAA", "path": "files_legacy/00/att.txt"}},
		})
		// file-version metadata joins on the container id, not the version id
		writeTable(t, export.CategoryContentVersion.MetaCSV(root), &table.Table{
			Header: []string{"Id", "ContentDocumentId", "path"},
			Rows:   []table.Row{{"Id": "068AAA", "ContentDocumentId": "069AAA", "path": "files/06/doc.pdf"}},
		})

		res, err := docindex.Build(root)
		require.NoError(t, err)
		require.Equal(t, 3, res.Total)
		require.Equal(t, 3, res.Resolved)
		require.Zero(t, res.Unresolved)

		idx, err := table.Read(root.MasterIndexPath())
		require.NoError(t, err)
		require.Equal(t, "files_legacy/00/att.txt", idx.Rows[0]["local_path"])
		require.Equal(t, "files/06/doc.pdf", idx.Rows[1]["local_path"])
		require.Equal(t, "invoices/INV-001.pdf", idx.Rows[2]["local_path"])
		require.Equal(t, "Account_files_index.csv", idx.Rows[0]["index_source_file"])
	})

	t.Run("version id never joins remote-file rows", func(t *testing.T) {
		root := newRoot(t)
		writeTable(t, filepath.Join(root.LinksDir(), "Account_files_index.csv"), &table.Table{
			Header: []string{"file_source", "file_id", "object_type", "record_id"},
			Rows: []table.Row{
				// the index carries the container id; metadata keyed by
				// version id alone must not resolve it
				{"file_source": "File", "file_id": "068AAA", "object_type": "Account", "record_id": "001AAA"},
			},
		})
		writeTable(t, export.CategoryContentVersion.MetaCSV(root), &table.Table{
			Header: []string{"Id", "ContentDocumentId", "path"},
			Rows:   []table.Row{{"Id": "068AAA", "ContentDocumentId": "069AAA", "path": "files/06/doc.pdf"}},
		})

		res, err := docindex.Build(root)
		require.NoError(t, err)
		require.Equal(t, 1, res.Unresolved)
	})

	t.Run("missing metadata tables are treated as empty", func(t *testing.T) {
		root := newRoot(t)
		writeTable(t, filepath.Join(root.LinksDir(), "Contact_files_index.csv"), &table.Table{
			Header: []string{"file_source", "file_id", "object_type", "record_id"},
			Rows: []table.Row{
				{"file_source": "Attachment", "file_id": "00PAAA", "object_type": "Contact", "record_id": "003AAA"},
			},
		})

		res, err := docindex.Build(root)
		require.NoError(t, err)
		require.Equal(t, 1, res.Total)
		require.Equal(t, 1, res.Unresolved)
	})

	t.Run("prefers the on-disk files/ variant of a stored path", func(t *testing.T) {
		root := newRoot(t)
		putFile(t, root, "files/06/doc.pdf")
		writeTable(t, filepath.Join(root.LinksDir(), "Account_files_index.csv"), &table.Table{
			Header: []string{"file_source", "file_id", "object_type", "record_id"},
			Rows: []table.Row{
				{"file_source": "File", "file_id": "069AAA", "object_type": "Account", "record_id": "001AAA"},
			},
		})
		// metadata recorded the path relative to files/ in an older layout
		writeTable(t, export.CategoryContentVersion.MetaCSV(root), &table.Table{
			Header: []string{"Id", "ContentDocumentId", "path"},
			Rows:   []table.Row{{"Id": "068AAA", "ContentDocumentId": "069AAA", "path": `06\doc.pdf`}},
		})

		res, err := docindex.Build(root)
		require.NoError(t, err)
		require.Equal(t, 1, res.Resolved)

		idx, err := table.Read(root.MasterIndexPath())
		require.NoError(t, err)
		require.Equal(t, "files/06/doc.pdf", idx.Rows[0]["local_path"])
	})
}

func TestEnrichment(t *testing.T) {
	root := newRoot(t)
	writeTable(t, filepath.Join(root.LinksDir(), "Opportunity_files_index.csv"), &table.Table{
		Header: []string{"file_source", "file_id", "object_type", "record_id", "opp_name"},
		Rows: []table.Row{
			// opp_name already present: enrichment must not overwrite it
			{"file_source": "Attachment", "file_id": "00PAAA", "object_type": "Opportunity", "record_id": "006AAA", "opp_name": "Kept Name"},
			{"file_source": "Attachment", "file_id": "00PBBB", "object_type": "Opportunity", "record_id": "006BBB"},
		},
	})
	writeTable(t, filepath.Join(root.LinksDir(), "Account_files_index.csv"), &table.Table{
		Header: []string{"file_source", "file_id", "object_type", "record_id"},
		Rows: []table.Row{
			{"file_source": "Attachment", "file_id": "00PCCC", "object_type": "Account", "record_id": "001AAA"},
		},
	})

	writeTable(t, filepath.Join(root.CSVDir(), "Opportunity.csv"), &table.Table{
		Header: []string{"Id", "Name", "StageName", "Amount", "CloseDate", "AccountId"},
		Rows: []table.Row{
			{"Id": "006AAA", "Name": "Big Deal", "StageName": "Closed Won", "Amount": "1000", "CloseDate": "2024-01-31", "AccountId": "001AAA"},
			{"Id": "006BBB", "Name": "Small Deal", "StageName": "Prospecting", "Amount": "10", "CloseDate": "2024-06-30", "AccountId": "001BBB"},
		},
	})
	writeTable(t, filepath.Join(root.CSVDir(), "Account.csv"), &table.Table{
		Header: []string{"Id", "Name"},
		Rows: []table.Row{
			{"Id": "001AAA", "Name": "Acme Ltd"},
			{"Id": "001BBB", "Name": "Globex"},
		},
	})

	_, err := docindex.Build(root)
	require.NoError(t, err)

	idx, err := table.Read(root.MasterIndexPath())
	require.NoError(t, err)

	rowByFile := make(map[string]table.Row)
	for _, r := range idx.Rows {
		rowByFile[r["file_id"]] = r
	}

	t.Run("opportunity fields fill only when empty", func(t *testing.T) {
		require.Equal(t, "Kept Name", rowByFile["00PAAA"]["opp_name"])
		require.Equal(t, "Closed Won", rowByFile["00PAAA"]["opp_stage"])
		require.Equal(t, "Small Deal", rowByFile["00PBBB"]["opp_name"])
	})

	t.Run("account context flows through the opportunity", func(t *testing.T) {
		require.Equal(t, "001AAA", rowByFile["00PAAA"]["account_id"])
		require.Equal(t, "Acme Ltd", rowByFile["00PAAA"]["account_name"])
		require.Equal(t, "Globex", rowByFile["00PBBB"]["account_name"])
	})

	t.Run("account rows are enriched directly", func(t *testing.T) {
		require.Equal(t, "001AAA", rowByFile["00PCCC"]["account_id"])
		require.Equal(t, "Acme Ltd", rowByFile["00PCCC"]["account_name"])
	})

	t.Run("key columns lead the header", func(t *testing.T) {
		require.Equal(t, "file_source", idx.Header[0])
	})
}
