// Package inventory is the single authoritative completeness check for an
// export root. It inspects only local files (never the remote API) and
// snapshots the result to meta/inventory.json.
package inventory

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/ksteptoe/sfdump/pkg/export"
	"github.com/ksteptoe/sfdump/pkg/export/schema"
	"github.com/ksteptoe/sfdump/pkg/export/storedb"
	"github.com/ksteptoe/sfdump/pkg/export/table"
)

var log = logging.Logger("export/inventory")

// Status classifies one category (or the whole export).
type Status string

const (
	StatusComplete      Status = "COMPLETE"
	StatusIncomplete    Status = "INCOMPLETE"
	StatusWarning       Status = "WARNING"
	StatusNotApplicable Status = "N/A"
	StatusNotChecked    Status = "NOT_CHECKED"
)

// CSVCategory compares the flat object tables on disk against the essential
// object list. Extra tables are fine; missing ones are not.
type CSVCategory struct {
	Status          Status   `json:"status"`
	ExpectedObjects []string `json:"expected_objects"`
	FoundObjects    []string `json:"found_objects"`
	MissingObjects  []string `json:"missing_objects"`
	ExtraObjects    []string `json:"extra_objects"`
	ExpectedCount   int      `json:"expected_count"`
	FoundCount      int      `json:"found_count"`
}

// FileCategory tracks one binary-file category (attachments or content
// versions) against its metadata table and verifier side tables.
type FileCategory struct {
	Status    Status `json:"status"`
	Expected  int    `json:"expected"`
	Actual    int    `json:"actual"`
	Missing   int    `json:"missing"`
	Corrupt   int    `json:"corrupt"`
	Verified  bool   `json:"verified"`
	DiskBytes int64  `json:"disk_bytes"`
}

// InvoiceCategory tracks generated invoice PDFs against the invoice table's
// completed rows.
type InvoiceCategory struct {
	Status         Status `json:"status"`
	Expected       int    `json:"expected"`
	Actual         int    `json:"actual"`
	Missing        int    `json:"missing"`
	IndexCSVExists bool   `json:"index_csv_exists"`
}

// IndexCategory tracks the per-object file-link indexes and the master
// documents index.
type IndexCategory struct {
	Status                Status `json:"status"`
	FilesIndexCount       int    `json:"files_index_count"`
	MasterIndexRows       int    `json:"master_index_rows"`
	MasterRowsWithPath    int    `json:"master_rows_with_path"`
	MasterRowsMissingPath int    `json:"master_rows_missing_path"`
}

// DatabaseCategory tracks the relational store.
type DatabaseCategory struct {
	Status     Status   `json:"status"`
	DBExists   bool     `json:"db_exists"`
	TableCount int      `json:"table_count"`
	TableNames []string `json:"table_names"`
	TotalRows  int      `json:"total_rows"`
}

// Result is one full inventory run. Field names are stable: downstream
// tooling parses the manifest.
type Result struct {
	RunID           string           `json:"run_id"`
	GeneratedUTC    string           `json:"generated_utc"`
	ExportRoot      string           `json:"export_root"`
	CSVObjects      CSVCategory      `json:"csv_objects"`
	Attachments     FileCategory     `json:"attachments"`
	ContentVersions FileCategory     `json:"content_versions"`
	Invoices        InvoiceCategory  `json:"invoices"`
	Indexes         IndexCategory    `json:"indexes"`
	Database        DatabaseCategory `json:"database"`
	OverallStatus   Status           `json:"overall_status"`
	Warnings        []string         `json:"warnings"`
	DurationSeconds float64          `json:"duration_seconds"`
}

// ComputeOverall derives the overall status. Any INCOMPLETE category makes
// the whole export INCOMPLETE; otherwise WARNING or NOT_CHECKED categories
// degrade it to WARNING; N/A never counts against completeness.
func (r *Result) ComputeOverall() {
	statuses := []Status{
		r.CSVObjects.Status,
		r.Attachments.Status,
		r.ContentVersions.Status,
		r.Invoices.Status,
		r.Indexes.Status,
		r.Database.Status,
	}
	overall := StatusComplete
	for _, s := range statuses {
		if s == StatusIncomplete {
			r.OverallStatus = StatusIncomplete
			return
		}
		if s == StatusWarning || s == StatusNotChecked {
			overall = StatusWarning
		}
	}
	r.OverallStatus = overall
}

const invoiceStatusColumn = "c2g__InvoiceStatus__c"

// Run performs all checks against root.
func Run(ctx context.Context, root export.Root) (*Result, error) {
	t0 := time.Now()
	res := &Result{
		RunID:        uuid.NewString(),
		GeneratedUTC: time.Now().UTC().Format(time.RFC3339),
		ExportRoot:   root.Dir,
		Warnings:     []string{},
	}

	res.CSVObjects = checkCSVObjects(root)
	res.Attachments = checkFiles(root, export.CategoryAttachment)
	res.ContentVersions = checkFiles(root, export.CategoryContentVersion)
	res.Invoices = checkInvoices(root)
	res.Indexes = checkIndexes(root)
	res.Database = checkDatabase(ctx, root)

	res.DurationSeconds = float64(time.Since(t0).Round(10*time.Millisecond)) / float64(time.Second)
	res.ComputeOverall()
	log.Infof("inventory %s: overall %s (%.2fs)", res.RunID, res.OverallStatus, res.DurationSeconds)
	return res, nil
}

func checkCSVObjects(root export.Root) CSVCategory {
	cat := CSVCategory{Status: StatusNotChecked}

	entries, err := os.ReadDir(root.CSVDir())
	if err != nil {
		return cat
	}

	cat.ExpectedObjects = append([]string(nil), schema.EssentialObjects...)
	cat.ExpectedCount = len(cat.ExpectedObjects)

	found := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		found[strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))] = true
	}
	cat.FoundObjects = sortedKeys(found)
	cat.FoundCount = len(found)

	expected := make(map[string]bool, len(cat.ExpectedObjects))
	for _, o := range cat.ExpectedObjects {
		expected[o] = true
		if !found[o] {
			cat.MissingObjects = append(cat.MissingObjects, o)
		}
	}
	for name := range found {
		if !expected[name] {
			cat.ExtraObjects = append(cat.ExtraObjects, name)
		}
	}
	sort.Strings(cat.MissingObjects)
	sort.Strings(cat.ExtraObjects)

	if len(cat.MissingObjects) == 0 {
		cat.Status = StatusComplete
	} else {
		cat.Status = StatusIncomplete
	}
	return cat
}

// checkFiles audits one binary-file category. When the verifier has run, its
// side tables give exact missing/corrupt counts; otherwise missing is
// inferred from expected-vs-on-disk counts.
func checkFiles(root export.Root, c export.Category) FileCategory {
	cat := FileCategory{Status: StatusNotChecked}

	metaCSV := c.MetaCSV(root)
	if !fileExists(metaCSV) {
		return cat
	}

	var err error
	if cat.Expected, err = table.CountRows(metaCSV); err != nil {
		log.Warnf("counting %s: %v", metaCSV, err)
		return cat
	}
	cat.Actual, cat.DiskBytes = countFiles(c.FilesRoot(root))

	if fileExists(c.MissingCSV(root)) {
		if cat.Missing, err = table.CountRows(c.MissingCSV(root)); err == nil {
			cat.Verified = true
		}
	}
	if fileExists(c.CorruptCSV(root)) {
		if cat.Corrupt, err = table.CountRows(c.CorruptCSV(root)); err == nil {
			cat.Verified = true
		}
	}
	if !cat.Verified {
		cat.Missing = max(0, cat.Expected-cat.Actual)
	}

	switch {
	case cat.Missing == 0 && cat.Corrupt == 0:
		cat.Status = StatusComplete
	case cat.Corrupt > 0:
		cat.Status = StatusWarning
	default:
		cat.Status = StatusIncomplete
	}
	return cat
}

func checkInvoices(root export.Root) InvoiceCategory {
	cat := InvoiceCategory{Status: StatusNotApplicable}

	invoiceCSV := filepath.Join(root.CSVDir(), "c2g__codaInvoice__c.csv")
	if !fileExists(invoiceCSV) {
		return cat
	}

	t, err := table.Read(invoiceCSV)
	if err != nil {
		log.Debugf("could not read invoice table: %v", err)
		cat.Status = StatusNotChecked
		return cat
	}
	for _, r := range t.Rows {
		if strings.TrimSpace(r["Id"]) == "" || strings.TrimSpace(r["Name"]) == "" {
			continue
		}
		if strings.TrimSpace(r[invoiceStatusColumn]) == "Complete" {
			cat.Expected++
		}
	}
	if cat.Expected == 0 {
		return cat
	}

	if entries, err := os.ReadDir(root.InvoicesDir()); err == nil {
		for _, e := range entries {
			if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
				continue
			}
			if info, err := e.Info(); err == nil && info.Size() > 0 {
				cat.Actual++
			}
		}
	}
	cat.Missing = cat.Expected - cat.Actual
	cat.IndexCSVExists = fileExists(
		filepath.Join(root.LinksDir(), "c2g__codaInvoice__c_invoice_pdfs_files_index.csv"))

	if cat.Missing <= 0 {
		cat.Missing = 0
		cat.Status = StatusComplete
	} else {
		cat.Status = StatusIncomplete
	}
	return cat
}

func checkIndexes(root export.Root) IndexCategory {
	cat := IndexCategory{Status: StatusNotChecked}

	if _, err := os.Stat(root.LinksDir()); err != nil {
		return cat
	}

	indexFiles, _ := filepath.Glob(filepath.Join(root.LinksDir(), "*_files_index.csv"))
	cat.FilesIndexCount = len(indexFiles)

	if master, err := table.ReadOrEmpty(root.MasterIndexPath()); err == nil {
		cat.MasterIndexRows = len(master.Rows)
		for _, r := range master.Rows {
			if strings.TrimSpace(r["local_path"]) != "" {
				cat.MasterRowsWithPath++
			} else {
				cat.MasterRowsMissingPath++
			}
		}
	}

	switch {
	case cat.FilesIndexCount == 0 && cat.MasterIndexRows == 0:
		cat.Status = StatusNotChecked
	case cat.MasterRowsMissingPath > 0:
		cat.Status = StatusWarning
	default:
		cat.Status = StatusComplete
	}
	return cat
}

// checkDatabase treats a missing store as INCOMPLETE (the pipeline always
// ends with a store build) and an unreadable one as WARNING.
func checkDatabase(ctx context.Context, root export.Root) DatabaseCategory {
	cat := DatabaseCategory{Status: StatusIncomplete}

	if !fileExists(root.StorePath()) {
		return cat
	}
	cat.DBExists = true

	tables, err := storedb.Inspect(ctx, root.StorePath())
	if err != nil {
		log.Debugf("could not inspect store: %v", err)
		cat.Status = StatusWarning
		return cat
	}
	cat.TableCount = len(tables)
	for _, t := range tables {
		cat.TableNames = append(cat.TableNames, t.Name)
		cat.TotalRows += t.Rows
	}
	cat.Status = StatusComplete
	return cat
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// countFiles walks dir and returns (file count, total bytes). A missing
// directory counts as empty.
func countFiles(dir string) (int, int64) {
	var count int
	var bytes int64
	filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		count++
		if info, err := d.Info(); err == nil {
			bytes += info.Size()
		}
		return nil
	})
	return count, bytes
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
