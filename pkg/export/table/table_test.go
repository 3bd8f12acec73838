package table_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ksteptoe/sfdump/pkg/export/table"
)

func TestReadWrite(t *testing.T) {
	t.Run("round trips a table", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "t.csv")
		in := &table.Table{
			Header: []string{"Id", "Name", "path"},
			Rows: []table.Row{
				{"Id": "001", "Name": "alpha", "path": "files/a.pdf"},
				{"Id": "002", "Name": "beta", "path": ""},
			},
		}
		require.NoError(t, table.Write(path, in))

		out, err := table.Read(path)
		require.NoError(t, err)
		require.Equal(t, in.Header, out.Header)
		require.Equal(t, in.Rows, out.Rows)
	})

	t.Run("pads rows shorter than the header", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "t.csv")
		require.NoError(t, os.WriteFile(path, []byte("Id,Name,path\n001,alpha\n"), 0o644))

		out, err := table.Read(path)
		require.NoError(t, err)
		require.Len(t, out.Rows, 1)
		require.Equal(t, "", out.Rows[0]["path"])
	})

	t.Run("empty file yields empty table", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "t.csv")
		require.NoError(t, os.WriteFile(path, nil, 0o644))

		out, err := table.Read(path)
		require.NoError(t, err)
		require.Empty(t, out.Header)
		require.Empty(t, out.Rows)
	})

	t.Run("missing file is an error for Read", func(t *testing.T) {
		_, err := table.Read(filepath.Join(t.TempDir(), "nope.csv"))
		require.Error(t, err)
	})

	t.Run("missing file is empty for ReadOrEmpty", func(t *testing.T) {
		out, err := table.ReadOrEmpty(filepath.Join(t.TempDir(), "nope.csv"))
		require.NoError(t, err)
		require.Empty(t, out.Rows)
	})

	t.Run("write creates missing directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a", "b", "t.csv")
		require.NoError(t, table.Write(path, table.New("Id")))
		_, err := os.Stat(path)
		require.NoError(t, err)
	})
}

func TestAppend(t *testing.T) {
	tab := table.New("Id")
	tab.Append(table.Row{"Id": "1", "b": "x", "a": "y"})
	require.Equal(t, []string{"Id", "a", "b"}, tab.Header)
	require.Len(t, tab.Rows, 1)
}

func TestCountRows(t *testing.T) {
	t.Run("excludes the header", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "t.csv")
		require.NoError(t, os.WriteFile(path, []byte("Id\n1\n2\n3\n"), 0o644))
		n, err := table.CountRows(path)
		require.NoError(t, err)
		require.Equal(t, 3, n)
	})

	t.Run("missing file counts zero", func(t *testing.T) {
		n, err := table.CountRows(filepath.Join(t.TempDir(), "nope.csv"))
		require.NoError(t, err)
		require.Equal(t, 0, n)
	})

	t.Run("header-only file counts zero", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "t.csv")
		require.NoError(t, os.WriteFile(path, []byte("Id,Name\n"), 0o644))
		n, err := table.CountRows(path)
		require.NoError(t, err)
		require.Equal(t, 0, n)
	})
}

func TestPathColumn(t *testing.T) {
	t.Run("prefers path over other candidates", func(t *testing.T) {
		col, ok := table.PathColumn([]string{"file_path", "path", "local_path"})
		require.True(t, ok)
		require.Equal(t, "path", col)
	})

	t.Run("falls back to local_path", func(t *testing.T) {
		col, ok := table.PathColumn([]string{"Id", "local_path"})
		require.True(t, ok)
		require.Equal(t, "local_path", col)
	})

	t.Run("matches case-insensitively", func(t *testing.T) {
		col, ok := table.PathColumn([]string{"Id", "Path"})
		require.True(t, ok)
		require.Equal(t, "Path", col)
	})

	t.Run("last resort is any column containing path", func(t *testing.T) {
		col, ok := table.PathColumn([]string{"Id", "download_path_hint"})
		require.True(t, ok)
		require.Equal(t, "download_path_hint", col)
	})

	t.Run("reports absence", func(t *testing.T) {
		_, ok := table.PathColumn([]string{"Id", "Name"})
		require.False(t, ok)
	})
}
