package verify_test

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ksteptoe/sfdump/pkg/export"
	"github.com/ksteptoe/sfdump/pkg/export/table"
	"github.com/ksteptoe/sfdump/pkg/export/verify"
)

func newRoot(t *testing.T) export.Root {
	t.Helper()
	return export.Root{Dir: t.TempDir()}
}

func putFile(t *testing.T, root export.Root, rel, content string) string {
	t.Helper()
	abs := root.Resolve(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	return abs
}

func shaOf(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func TestSHA256File(t *testing.T) {
	root := newRoot(t)
	abs := putFile(t, root, "files/x.txt", "hello")

	got, err := verify.SHA256File(abs)
	require.NoError(t, err)
	require.Equal(t, shaOf("hello"), got)
}

func TestRows(t *testing.T) {
	root := newRoot(t)
	putFile(t, root, "files/ok.txt", "good bytes")
	putFile(t, root, "files/empty.txt", "")
	putFile(t, root, "files/bad.txt", "tampered")
	putFile(t, root, "files/nosum.txt", "content")

	rows := []table.Row{
		{"Id": "1", "path": "files/ok.txt", "sha256": shaOf("good bytes")},
		{"Id": "2", "path": "", "sha256": "deadbeef"},
		{"Id": "3", "path": "files/gone.txt", "sha256": "deadbeef"},
		{"Id": "4", "path": "files/empty.txt", "sha256": "deadbeef"},
		{"Id": "5", "path": "files/bad.txt", "sha256": shaOf("original")},
		{"Id": "6", "path": "files/nosum.txt", "sha256": ""},
	}

	missing, corrupt := verify.Rows(rows, root)

	require.Len(t, missing, 3)
	require.Equal(t, verify.ErrMissingPath, missing[0]["verify_error"])
	require.Equal(t, "2", missing[0]["Id"])
	require.Equal(t, verify.ErrFileNotFound, missing[1]["verify_error"])
	require.Equal(t, verify.ErrZeroSize, missing[2]["verify_error"])

	require.Len(t, corrupt, 2)
	require.Equal(t, verify.ErrChecksumBad, corrupt[0]["verify_error"])
	require.Equal(t, shaOf("tampered"), corrupt[0]["sha256_actual"])
	require.Equal(t, verify.ErrChecksumGone, corrupt[1]["verify_error"])

	t.Run("input rows are not mutated", func(t *testing.T) {
		for _, r := range rows {
			_, tagged := r["verify_error"]
			require.False(t, tagged)
		}
	})

	t.Run("is idempotent", func(t *testing.T) {
		again, corruptAgain := verify.Rows(rows, root)
		require.Equal(t, missing, again)
		require.Equal(t, corrupt, corruptAgain)
	})
}

func TestCategory(t *testing.T) {
	t.Run("writes side tables only when non-empty", func(t *testing.T) {
		root := newRoot(t)
		putFile(t, root, "files_legacy/a.txt", "alpha")

		meta := &table.Table{
			Header: []string{"Id", "path", "sha256"},
			Rows: []table.Row{
				{"Id": "1", "path": "files_legacy/a.txt", "sha256": shaOf("alpha")},
			},
		}
		require.NoError(t, table.Write(export.CategoryAttachment.MetaCSV(root), meta))

		res, err := verify.Category(root, export.CategoryAttachment)
		require.NoError(t, err)
		require.Equal(t, verify.Result{Checked: 1}, res)

		_, err = os.Stat(export.CategoryAttachment.MissingCSV(root))
		require.True(t, os.IsNotExist(err))
		_, err = os.Stat(export.CategoryAttachment.CorruptCSV(root))
		require.True(t, os.IsNotExist(err))
	})

	t.Run("flags problems into side tables", func(t *testing.T) {
		root := newRoot(t)
		putFile(t, root, "files_legacy/b.txt", "tampered")

		meta := &table.Table{
			Header: []string{"Id", "path", "sha256"},
			Rows: []table.Row{
				{"Id": "1", "path": "files_legacy/missing.txt", "sha256": "deadbeef"},
				{"Id": "2", "path": "files_legacy/b.txt", "sha256": shaOf("original")},
			},
		}
		require.NoError(t, table.Write(export.CategoryAttachment.MetaCSV(root), meta))

		res, err := verify.Category(root, export.CategoryAttachment)
		require.NoError(t, err)
		require.Equal(t, verify.Result{Checked: 2, Missing: 1, Corrupt: 1}, res)

		missing, err := table.Read(export.CategoryAttachment.MissingCSV(root))
		require.NoError(t, err)
		require.Len(t, missing.Rows, 1)
		require.Equal(t, verify.ErrFileNotFound, missing.Rows[0]["verify_error"])

		corrupt, err := table.Read(export.CategoryAttachment.CorruptCSV(root))
		require.NoError(t, err)
		require.Len(t, corrupt.Rows, 1)
		require.Contains(t, corrupt.Header, "sha256_actual")
	})

	t.Run("missing metadata table is an error", func(t *testing.T) {
		root := newRoot(t)
		_, err := verify.Category(root, export.CategoryAttachment)
		require.Error(t, err)
	})
}

func TestCategoryOrSkip(t *testing.T) {
	t.Run("a category that was never dumped is skipped, not fatal", func(t *testing.T) {
		root := newRoot(t)
		putFile(t, root, "files/cv.pdf", "doc bytes")
		meta := &table.Table{
			Header: []string{"Id", "path", "sha256"},
			Rows: []table.Row{
				{"Id": "068AAA", "path": "files/cv.pdf", "sha256": shaOf("doc bytes")},
			},
		}
		require.NoError(t, table.Write(export.CategoryContentVersion.MetaCSV(root), meta))

		// attachments were excluded from the dump; their table does not exist
		res, skipped, err := verify.CategoryOrSkip(root, export.CategoryAttachment)
		require.NoError(t, err)
		require.True(t, skipped)
		require.Equal(t, verify.Result{}, res)

		// the remaining category still gets verified
		res, skipped, err = verify.CategoryOrSkip(root, export.CategoryContentVersion)
		require.NoError(t, err)
		require.False(t, skipped)
		require.Equal(t, verify.Result{Checked: 1}, res)
	})

	t.Run("a present table is verified exactly like Category", func(t *testing.T) {
		root := newRoot(t)
		meta := &table.Table{
			Header: []string{"Id", "path", "sha256"},
			Rows:   []table.Row{{"Id": "1", "path": "files_legacy/gone.txt", "sha256": "deadbeef"}},
		}
		require.NoError(t, table.Write(export.CategoryAttachment.MetaCSV(root), meta))

		res, skipped, err := verify.CategoryOrSkip(root, export.CategoryAttachment)
		require.NoError(t, err)
		require.False(t, skipped)
		require.Equal(t, verify.Result{Checked: 1, Missing: 1}, res)
	})
}
