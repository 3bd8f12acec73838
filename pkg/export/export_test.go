package export_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ksteptoe/sfdump/pkg/export"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func TestOpen(t *testing.T) {
	t.Run("accepts an existing directory", func(t *testing.T) {
		dir := t.TempDir()
		root, err := export.Open(dir)
		require.NoError(t, err)
		require.Equal(t, dir, root.Dir)
	})

	t.Run("rejects a missing directory", func(t *testing.T) {
		_, err := export.Open(filepath.Join(t.TempDir(), "nope"))
		require.Error(t, err)
	})

	t.Run("rejects a file", func(t *testing.T) {
		dir := t.TempDir()
		f := filepath.Join(dir, "file")
		require.NoError(t, writeFile(f, "x"))
		_, err := export.Open(f)
		require.Error(t, err)
	})
}

func TestResolve(t *testing.T) {
	root := export.Root{Dir: t.TempDir()}

	t.Run("joins relative paths", func(t *testing.T) {
		require.Equal(t, filepath.Join(root.Dir, "files", "ab", "f.pdf"), root.Resolve("files/ab/f.pdf"))
	})

	t.Run("normalizes backslash separators", func(t *testing.T) {
		require.Equal(t, filepath.Join(root.Dir, "files", "ab", "f.pdf"), root.Resolve(`files\ab\f.pdf`))
	})
}

func TestCategoryPaths(t *testing.T) {
	root := export.Root{Dir: "/export"}

	cat := export.CategoryAttachment
	require.Equal(t, filepath.Join("/export", "links", "attachments.csv"), cat.MetaCSV(root))
	require.Equal(t, filepath.Join("/export", "links", "attachments_missing.csv"), cat.MissingCSV(root))
	require.Equal(t, filepath.Join("/export", "links", "attachments_corrupt.csv"), cat.CorruptCSV(root))
	require.Equal(t, filepath.Join("/export", "links", "attachments_missing_retry.csv"), cat.RetryCSV(root))
	require.Equal(t, filepath.Join("/export", "files_legacy"), cat.FilesRoot(root))

	cv := export.CategoryContentVersion
	require.Equal(t, filepath.Join("/export", "links", "content_versions.csv"), cv.MetaCSV(root))
	require.Equal(t, filepath.Join("/export", "files"), cv.FilesRoot(root))

	require.Equal(t, filepath.Join("/export", "invoices"), export.CategoryInvoicePDF.FilesRoot(root))
}

func TestSafeFilename(t *testing.T) {
	t.Run("replaces unsafe characters", func(t *testing.T) {
		require.Equal(t, "a_b_c.pdf", export.SafeFilename("a/b:c", "pdf"))
	})

	t.Run("collapses whitespace", func(t *testing.T) {
		require.Equal(t, "a b.txt", export.SafeFilename("a   b", "txt"))
	})

	t.Run("empty stem falls back", func(t *testing.T) {
		require.Equal(t, "file.bin", export.SafeFilename("///", "bin"))
	})

	t.Run("extension is optional", func(t *testing.T) {
		require.Equal(t, "report", export.SafeFilename("report", ""))
	})

	t.Run("strips a leading dot on the extension", func(t *testing.T) {
		require.Equal(t, "report.pdf", export.SafeFilename("report", ".pdf"))
	})

	t.Run("truncates overlong stems", func(t *testing.T) {
		long := strings.Repeat("x", 500)
		got := export.SafeFilename(long, "pdf")
		require.LessOrEqual(t, len(got), 124)
		require.True(t, strings.HasSuffix(got, ".pdf"))
	})
}

func TestShardTarget(t *testing.T) {
	require.Equal(t, filepath.Join("/files", "06", "069xyz_doc.pdf"), export.ShardTarget("/files", "069xyz_doc.pdf"))
	require.Equal(t, filepath.Join("/files", "ab", "ABc.txt"), export.ShardTarget("/files", "ABc.txt"))
	require.Equal(t, filepath.Join("/files", "a", "a"), export.ShardTarget("/files", "a"))
}
