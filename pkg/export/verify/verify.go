// Package verify scans a category's recorded metadata and partitions it into
// valid, missing, and corrupt sets by checking the files actually on disk.
// It never mutates the input metadata and performs no network calls.
package verify

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	sha256 "github.com/minio/sha256-simd"

	"github.com/ksteptoe/sfdump/pkg/export"
	"github.com/ksteptoe/sfdump/pkg/export/table"
)

var log = logging.Logger("export/verify")

// Error tags written to the verify_error column. Missing tags mean the file
// is absent and just needs a re-download; corrupt tags mean the bytes on disk
// cannot be trusted.
const (
	ErrMissingPath  = "missing-path-field"
	ErrFileNotFound = "file-not-found"
	ErrZeroSize     = "zero-size-file"
	ErrChecksumBad  = "sha256-mismatch"
	ErrChecksumGone = "sha256-missing"
	errChecksumFail = "sha256-error"

	colChecksum    = "sha256"
	colPath        = "path"
	colVerifyError = "verify_error"
	colActualSHA   = "sha256_actual"
)

// Result summarizes one verification pass.
type Result struct {
	Checked int
	Missing int
	Corrupt int
}

// SHA256File computes the hex SHA-256 of the file at path with buffered
// reading.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Rows partitions metadata rows into missing and corrupt sets. Returned rows
// are copies of the input rows with a verify_error tag attached.
func Rows(rows []table.Row, root export.Root) (missing, corrupt []table.Row) {
	for _, r := range rows {
		rel := r[colPath]
		expected := strings.ToLower(strings.TrimSpace(r[colChecksum]))

		if rel == "" {
			missing = append(missing, tagged(r, ErrMissingPath))
			continue
		}

		abs := root.Resolve(rel)
		info, err := os.Stat(abs)
		if err != nil {
			missing = append(missing, tagged(r, ErrFileNotFound))
			continue
		}
		if info.Size() == 0 {
			missing = append(missing, tagged(r, ErrZeroSize))
			continue
		}

		if expected == "" {
			// No checksum recorded at all: a data-quality problem, distinct
			// from absence.
			corrupt = append(corrupt, tagged(r, ErrChecksumGone))
			continue
		}

		actual, err := SHA256File(abs)
		if err != nil {
			corrupt = append(corrupt, tagged(r, fmt.Sprintf("%s: %v", errChecksumFail, err)))
			continue
		}
		if !strings.EqualFold(actual, expected) {
			row := tagged(r, ErrChecksumBad)
			row[colActualSHA] = actual
			corrupt = append(corrupt, row)
		}
	}
	return missing, corrupt
}

func tagged(r table.Row, tag string) table.Row {
	row := r.Clone()
	row[colVerifyError] = tag
	return row
}

// Category verifies one category's metadata table against the export root and
// writes the missing/corrupt side tables when non-empty. Side tables are full
// regenerations, never appends.
func Category(root export.Root, cat export.Category) (Result, error) {
	meta, err := table.Read(cat.MetaCSV(root))
	if err != nil {
		return Result{}, fmt.Errorf("loading %s metadata: %w", cat, err)
	}

	missing, corrupt := Rows(meta.Rows, root)
	res := Result{Checked: len(meta.Rows), Missing: len(missing), Corrupt: len(corrupt)}

	if len(missing) > 0 {
		if err := writeSide(cat.MissingCSV(root), meta.Header, missing); err != nil {
			return res, err
		}
		log.Warnf("%s verification: %d missing files -> %s", cat, len(missing), cat.MissingCSV(root))
	} else {
		log.Infof("%s verification: no missing files", cat)
	}

	if len(corrupt) > 0 {
		if err := writeSide(cat.CorruptCSV(root), meta.Header, corrupt); err != nil {
			return res, err
		}
		log.Warnf("%s verification: %d corrupt files -> %s", cat, len(corrupt), cat.CorruptCSV(root))
	} else {
		log.Infof("%s verification: no corrupt files", cat)
	}

	return res, nil
}

// CategoryOrSkip is Category for callers walking every category: a metadata
// table that was never written (a dump pass that excluded the category)
// reports as skipped instead of failing the walk.
func CategoryOrSkip(root export.Root, cat export.Category) (Result, bool, error) {
	if _, err := os.Stat(cat.MetaCSV(root)); errors.Is(err, os.ErrNotExist) {
		log.Warnf("%s metadata table %s not found; skipping verification", cat, cat.MetaCSV(root))
		return Result{}, true, nil
	}
	res, err := Category(root, cat)
	return res, false, err
}

// writeSide writes a side table with the metadata header plus the verify
// columns.
func writeSide(path string, header []string, rows []table.Row) error {
	t := &table.Table{Header: append([]string(nil), header...)}
	t.EnsureColumn(colVerifyError)
	for _, r := range rows {
		if _, ok := r[colActualSHA]; ok {
			t.EnsureColumn(colActualSHA)
			break
		}
	}
	t.Rows = rows
	return table.Write(path, t)
}
