package storedb

import (
	"context"
	"fmt"
	"os"
	"sort"
)

// TableInfo is one table's row count as observed in an existing store.
type TableInfo struct {
	Name string `json:"name" db:"name"`
	Rows int    `json:"rows"`
}

// Inspect opens an existing store read-only and returns its user tables with
// row counts, sorted by name.
func Inspect(ctx context.Context, path string) ([]TableInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("store %s: %w", path, err)
	}
	db, err := openStore(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var names []string
	err = db.SelectContext(ctx, &names,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, fmt.Errorf("listing tables in %s: %w", path, err)
	}
	sort.Strings(names)

	out := make([]TableInfo, 0, len(names))
	for _, name := range names {
		var n int
		if err := db.GetContext(ctx, &n, fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(name))); err != nil {
			return nil, fmt.Errorf("counting rows of %s: %w", name, err)
		}
		out = append(out, TableInfo{Name: name, Rows: n})
	}
	return out, nil
}
