package retry

import (
	"os"
	"strings"

	"github.com/ksteptoe/sfdump/pkg/export/table"
)

// MergeRecovered folds recovered paths from a retry-result table back into
// the category's authoritative metadata table. Only rows whose current path
// is empty are filled; already-populated paths are never overwritten, so a
// second run finds no empty paths left to fill and changes nothing. Returns
// the number of rows changed.
func MergeRecovered(metaCSV, retryCSV string) (int, error) {
	if _, err := os.Stat(metaCSV); err != nil {
		return 0, nil
	}
	if _, err := os.Stat(retryCSV); err != nil {
		return 0, nil
	}

	retry, err := table.Read(retryCSV)
	if err != nil {
		return 0, err
	}

	recovered := make(map[string]string)
	for _, r := range retry.Rows {
		if r[colRetryStatus] != string(StatusRecovered) {
			continue
		}
		id := r[colID]
		path := r[colPath]
		if id != "" && path != "" {
			recovered[id] = path
		}
	}
	if len(recovered) == 0 {
		log.Infof("no recovered files to merge from %s", retryCSV)
		return 0, nil
	}

	meta, err := table.Read(metaCSV)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, row := range meta.Rows {
		path, ok := recovered[row[colID]]
		if !ok {
			continue
		}
		if strings.TrimSpace(row[colPath]) != "" {
			continue
		}
		row[colPath] = path
		updated++
	}

	if updated > 0 {
		if err := table.Write(metaCSV, meta); err != nil {
			return 0, err
		}
		log.Infof("merged %d recovered paths from %s into %s", updated, retryCSV, metaCSV)
	}
	return updated, nil
}
