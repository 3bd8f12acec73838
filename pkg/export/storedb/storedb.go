// Package storedb builds a queryable relational store from the flat CSV
// exports. Every column is loaded as TEXT; the store is a read layer for
// browsing and joins, not a typed system of record.
package storedb

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/ksteptoe/sfdump/pkg/export"
	"github.com/ksteptoe/sfdump/pkg/export/schema"
)

var log = logging.Logger("export/storedb")

// ErrExists is returned when the store file is already present and Overwrite
// was not requested.
var ErrExists = errors.New("store already exists")

const (
	defaultJournalMode = "WAL"
	defaultSynchronous = "NORMAL"
	defaultBusyTimeout = 10 * time.Second

	masterTable = "master_documents"
)

// Options configures one store build.
type Options struct {
	// Overwrite replaces an existing store file instead of failing.
	Overwrite bool
}

// TableResult reports one loaded table.
type TableResult struct {
	Table   string `json:"table"`
	Source  string `json:"source"`
	Rows    int    `json:"rows"`
	Columns int    `json:"columns"`
}

// Result reports one store build.
type Result struct {
	Path   string        `json:"path"`
	Tables []TableResult `json:"tables"`
}

func dsn(path string) string {
	pragmas := []string{
		fmt.Sprintf("_pragma=journal_mode(%s)", defaultJournalMode),
		fmt.Sprintf("_pragma=busy_timeout(%d)", defaultBusyTimeout.Milliseconds()),
		fmt.Sprintf("_pragma=synchronous(%s)", defaultSynchronous),
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(pragmas, "&"))
}

// openStore opens the sqlite store at path.
func openStore(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

// Build creates the relational store from the flat tables under root and
// writes it to root's store path. The previous store is only replaced with
// Overwrite; a build goes to a temp file first so a failed run never leaves a
// half-written store behind.
func Build(ctx context.Context, root export.Root, opts Options) (Result, error) {
	out := root.StorePath()
	if _, err := os.Stat(out); err == nil && !opts.Overwrite {
		return Result{}, fmt.Errorf("%w: %s (use overwrite to replace)", ErrExists, out)
	}

	csvRoot, err := findCSVRoot(root)
	if err != nil {
		return Result{}, err
	}
	log.Infof("building store from flat tables under %s", csvRoot)

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return Result{}, fmt.Errorf("creating store directory: %w", err)
	}
	tmp := out + ".building"
	os.Remove(tmp)

	db, err := openStore(tmp)
	if err != nil {
		return Result{}, err
	}

	res := Result{Path: out}
	err = func() error {
		defer db.Close()

		for _, apiName := range sortedObjectNames() {
			obj := schema.Objects[apiName]
			src, ok := findObjectCSV(csvRoot, obj)
			if !ok {
				log.Warnf("no flat table found for %s; skipping", apiName)
				continue
			}
			tr, err := loadCSV(ctx, db, obj.TableName, obj.IDField, src)
			if err != nil {
				return fmt.Errorf("loading %s: %w", apiName, err)
			}
			res.Tables = append(res.Tables, tr)
		}

		if idx := root.MasterIndexPath(); fileExists(idx) {
			tr, err := loadCSV(ctx, db, masterTable, "", idx)
			if err != nil {
				return fmt.Errorf("loading master index: %w", err)
			}
			res.Tables = append(res.Tables, tr)
		} else {
			log.Warnf("master documents index not found; %s table omitted", masterTable)
		}

		if err := createIndexes(ctx, db, res.Tables); err != nil {
			return err
		}
		return nil
	}()
	if err != nil {
		os.Remove(tmp)
		return Result{}, err
	}

	if err := os.Rename(tmp, out); err != nil {
		os.Remove(tmp)
		return Result{}, fmt.Errorf("installing store at %s: %w", out, err)
	}
	log.Infof("store built at %s (%d tables)", out, len(res.Tables))
	return res, nil
}

// findCSVRoot locates the directory holding the flat object tables.
// Exports from different eras kept them in different places.
func findCSVRoot(root export.Root) (string, error) {
	candidates := []string{
		root.CSVDir(),
		filepath.Join(root.FilesDir(), "objects"),
		filepath.Join(root.Dir, "objects"),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("no flat-table directory found under %s (tried csv/, files/objects/, objects/)", root.Dir)
}

// findObjectCSV probes the filename variants that past export runs used for
// an object's flat table.
func findObjectCSV(csvRoot string, obj schema.Object) (string, bool) {
	variants := []string{
		obj.TableName + ".csv",
		obj.TableName + "s.csv",
		obj.APIName + ".csv",
		strings.ToLower(obj.APIName) + ".csv",
	}
	for _, v := range variants {
		p := filepath.Join(csvRoot, v)
		if fileExists(p) {
			return p, true
		}
	}
	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func sortedObjectNames() []string {
	names := make([]string, 0, len(schema.Objects))
	for n := range schema.Objects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// loadCSV streams one CSV file into a freshly created all-TEXT table. Rows
// shorter than the header are padded with empty strings; longer rows are
// truncated. idField, when present in the header, becomes the primary key.
func loadCSV(ctx context.Context, db *sqlx.DB, tableName, idField, src string) (TableResult, error) {
	f, err := os.Open(src)
	if err != nil {
		return TableResult{}, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return TableResult{}, fmt.Errorf("%s is empty", src)
	}
	if err != nil {
		return TableResult{}, fmt.Errorf("reading header: %w", err)
	}

	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = quoteIdent(h)
	}
	defs := make([]string, len(header))
	for i, h := range header {
		if idField != "" && h == idField {
			defs[i] = cols[i] + " TEXT PRIMARY KEY"
		} else {
			defs[i] = cols[i] + " TEXT"
		}
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(tableName), strings.Join(defs, ", "))
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return TableResult{}, fmt.Errorf("creating table %s: %w", tableName, err)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return TableResult{}, err
	}
	defer tx.Rollback()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(header)), ",")
	insert := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		quoteIdent(tableName), strings.Join(cols, ", "), placeholders)
	stmt, err := tx.PreparexContext(ctx, insert)
	if err != nil {
		return TableResult{}, err
	}
	defer stmt.Close()

	rows := 0
	args := make([]any, len(header))
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return TableResult{}, fmt.Errorf("reading row %d: %w", rows+1, err)
		}
		for i := range header {
			if i < len(rec) {
				args[i] = rec[i]
			} else {
				args[i] = ""
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return TableResult{}, fmt.Errorf("inserting row %d: %w", rows+1, err)
		}
		rows++
	}

	if err := tx.Commit(); err != nil {
		return TableResult{}, err
	}
	log.Debugf("loaded %s: %d rows, %d columns (from %s)", tableName, rows, len(header), filepath.Base(src))
	return TableResult{Table: tableName, Source: filepath.Base(src), Rows: rows, Columns: len(header)}, nil
}

// createIndexes applies the schema-derived foreign-key indexes for tables
// that were actually loaded. Indexes on columns the source CSV never had are
// skipped rather than failing the build.
func createIndexes(ctx context.Context, db *sqlx.DB, loaded []TableResult) error {
	present := make(map[string]bool, len(loaded))
	for _, t := range loaded {
		present[t.Table] = true
	}
	for _, cfg := range schema.DefaultIndexConfigs() {
		if !present[cfg.Table] {
			continue
		}
		has, err := tableHasColumns(ctx, db, cfg.Table, cfg.Columns)
		if err != nil {
			return err
		}
		if !has {
			log.Debugf("skipping index %s: column(s) %v not in %s", cfg.Name, cfg.Columns, cfg.Table)
			continue
		}
		unique := ""
		if cfg.Unique {
			unique = "UNIQUE "
		}
		cols := make([]string, len(cfg.Columns))
		for i, c := range cfg.Columns {
			cols[i] = quoteIdent(c)
		}
		ddl := fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
			unique, quoteIdent(cfg.Name), quoteIdent(cfg.Table), strings.Join(cols, ", "))
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("creating index %s: %w", cfg.Name, err)
		}
	}
	return nil
}

func tableHasColumns(ctx context.Context, db *sqlx.DB, tableName string, want []string) (bool, error) {
	rows, err := db.QueryxContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(tableName)))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	have := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notnull    int
			dflt       any
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &primaryKey); err != nil {
			return false, err
		}
		have[strings.ToLower(name)] = true
	}
	if err := rows.Err(); err != nil {
		return false, err
	}
	for _, w := range want {
		if !have[strings.ToLower(w)] {
			return false, nil
		}
	}
	return true, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
