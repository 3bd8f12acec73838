// Package docindex builds the master documents index: one flat, denormalized
// row per document across all categories and parent object types, with its
// resolved local path and light business context. The index is the single
// source of truth for "what documents exist and where".
package docindex

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	logging "github.com/ipfs/go-log/v2"

	"github.com/ksteptoe/sfdump/pkg/export"
	"github.com/ksteptoe/sfdump/pkg/export/table"
)

var log = logging.Logger("export/docindex")

const (
	colFileSource      = "file_source"
	colFileID          = "file_id"
	colFileName        = "file_name"
	colFileExt         = "file_extension"
	colLocalPath       = "local_path"
	colObjectType      = "object_type"
	colRecordID        = "record_id"
	colRecordName      = "record_name"
	colIndexSourceFile = "index_source_file"

	colAccountID    = "account_id"
	colAccountName  = "account_name"
	colOppName      = "opp_name"
	colOppStage     = "opp_stage"
	colOppAmount    = "opp_amount"
	colOppCloseDate = "opp_close_date"
	colOppAccountID = "opp_account_id"

	sourceAttachment = "Attachment"
	sourceFile       = "File"
)

// keyColumns lead the output header; remaining input columns follow in first
// appearance order.
var keyColumns = []string{
	colFileSource,
	colFileName,
	colFileExt,
	colLocalPath,
	colObjectType,
	colRecordName,
	colRecordID,
	colAccountID,
	colAccountName,
	colOppName,
	colOppStage,
	colOppAmount,
	colOppCloseDate,
}

// Result reports what one build produced.
type Result struct {
	Path       string
	Total      int
	Resolved   int
	Unresolved int
}

// Build assembles the master documents index under root and writes it
// atomically to meta/master_documents_index.csv. Any individual input table
// may be absent (treated as empty); having no per-object file-link indexes at
// all is a structural failure.
func Build(root export.Root) (Result, error) {
	indexFiles, err := filepath.Glob(filepath.Join(root.LinksDir(), "*_files_index.csv"))
	if err != nil {
		return Result{}, fmt.Errorf("globbing file-link indexes: %w", err)
	}
	sort.Strings(indexFiles)
	if len(indexFiles) == 0 {
		return Result{}, fmt.Errorf("no *_files_index.csv files found under %s (nothing to index)", root.LinksDir())
	}

	// 1) Concatenate every per-object file-link table, remembering where each
	// row came from.
	working := &table.Table{}
	for _, p := range indexFiles {
		t, err := table.ReadOrEmpty(p)
		if err != nil {
			return Result{}, err
		}
		for _, r := range t.Rows {
			row := r.Clone()
			row[colIndexSourceFile] = filepath.Base(p)
			working.Append(row)
		}
	}
	working.EnsureColumn(colIndexSourceFile)
	working.EnsureColumn(colLocalPath)
	log.Infof("loaded %d document-links from %d index file(s)", len(working.Rows), len(indexFiles))

	// 2) Category metadata lookups for local paths.
	attachmentPaths, err := pathLookup(export.CategoryAttachment.MetaCSV(root), "Id")
	if err != nil {
		return Result{}, err
	}
	// Remote-file rows join on the document-container id, NOT the
	// file-version id. The file-link indexes reference containers; joining
	// on the version id silently resolves nothing.
	containerPaths, err := pathLookup(export.CategoryContentVersion.MetaCSV(root), "ContentDocumentId")
	if err != nil {
		return Result{}, err
	}

	// 3) Resolve a local path per row.
	for _, row := range working.Rows {
		if strings.TrimSpace(row[colLocalPath]) != "" {
			row[colLocalPath] = normalizePath(root, row[colLocalPath])
			continue
		}
		// Rows carrying their own inline path (e.g. generated PDFs) pass
		// through without a join.
		if inline := strings.TrimSpace(row["path"]); inline != "" {
			row[colLocalPath] = normalizePath(root, inline)
			continue
		}
		switch row[colFileSource] {
		case sourceAttachment:
			if p, ok := attachmentPaths[row[colFileID]]; ok {
				row[colLocalPath] = normalizePath(root, p)
			}
		case sourceFile:
			if p, ok := containerPaths[row[colFileID]]; ok {
				row[colLocalPath] = normalizePath(root, p)
			}
		}
	}

	// 4) Business-context enrichment, most specific join first; later joins
	// only fill fields still empty.
	if err := enrichOpportunities(root, working); err != nil {
		return Result{}, err
	}
	if err := enrichAccounts(root, working); err != nil {
		return Result{}, err
	}

	// 5) Stable column order: key columns first, everything else after.
	working.Header = orderHeader(working.Header)

	out := root.MasterIndexPath()
	if err := table.Write(out, working); err != nil {
		return Result{}, err
	}

	res := Result{Path: out, Total: len(working.Rows)}
	for _, row := range working.Rows {
		if strings.TrimSpace(row[colLocalPath]) != "" {
			res.Resolved++
		} else {
			res.Unresolved++
		}
	}
	log.Infof("master documents index written to %s (%d rows, %d resolved, %d unresolved)",
		out, res.Total, res.Resolved, res.Unresolved)
	return res, nil
}

// pathLookup reads a category metadata table and returns {id -> path}, using
// the deterministic path-column detection. A missing table yields an empty
// lookup.
func pathLookup(metaCSV, idColumn string) (map[string]string, error) {
	t, err := table.ReadOrEmpty(metaCSV)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	if len(t.Rows) == 0 {
		return out, nil
	}
	if !t.HasColumn(idColumn) {
		return nil, fmt.Errorf("expected column %q in %s, found %v", idColumn, metaCSV, t.Header)
	}
	pathCol, ok := table.PathColumn(t.Header)
	if !ok {
		log.Warnf("no path-like column found in %s; rows will have empty local_path", metaCSV)
		return out, nil
	}
	for _, r := range t.Rows {
		id := strings.TrimSpace(r[idColumn])
		if id != "" && r[pathCol] != "" {
			out[id] = r[pathCol]
		}
	}
	return out, nil
}

// normalizePath makes a stored path relative to the export root. Historical
// exports used more than one layout (paths relative to the root vs. relative
// to files/); whichever variant actually exists on disk wins.
func normalizePath(root export.Root, p string) string {
	s := strings.TrimSpace(strings.ReplaceAll(p, `\`, "/"))
	s = strings.TrimLeft(s, "/")
	if s == "" {
		return ""
	}
	candidates := []string{s}
	if !strings.HasPrefix(strings.ToLower(s), "files/") {
		candidates = append(candidates, "files/"+s)
	}
	for _, c := range candidates {
		if info, err := os.Stat(root.Resolve(c)); err == nil && !info.IsDir() {
			return c
		}
	}
	return candidates[0]
}

// enrichOpportunities joins deal context onto rows parented by an
// opportunity.
func enrichOpportunities(root export.Root, working *table.Table) error {
	opps, err := table.ReadOrEmpty(filepath.Join(root.CSVDir(), "Opportunity.csv"))
	if err != nil {
		return err
	}
	if len(opps.Rows) == 0 {
		return nil
	}
	if !opps.HasColumn("Id") {
		log.Warnf("Opportunity.csv has no Id column; skipping opportunity enrichment (columns: %v)", opps.Header)
		return nil
	}

	byID := make(map[string]table.Row, len(opps.Rows))
	for _, r := range opps.Rows {
		if id := r["Id"]; id != "" {
			byID[id] = r
		}
	}

	fields := map[string]string{
		"Name":      colOppName,
		"StageName": colOppStage,
		"Amount":    colOppAmount,
		"CloseDate": colOppCloseDate,
		"AccountId": colOppAccountID,
	}
	for src, dst := range fields {
		if opps.HasColumn(src) {
			working.EnsureColumn(dst)
		}
	}

	for _, row := range working.Rows {
		if row[colObjectType] != "Opportunity" {
			continue
		}
		opp, ok := byID[row[colRecordID]]
		if !ok {
			continue
		}
		for src, dst := range fields {
			if !opps.HasColumn(src) {
				continue
			}
			if row[dst] == "" {
				row[dst] = opp[src]
			}
		}
	}
	return nil
}

// enrichAccounts fills account context: directly for rows parented by an
// account, then via the opportunity's account for rows enriched above. A
// value set by a more specific join is never overwritten.
func enrichAccounts(root export.Root, working *table.Table) error {
	accounts, err := table.ReadOrEmpty(filepath.Join(root.CSVDir(), "Account.csv"))
	if err != nil {
		return err
	}
	if len(accounts.Rows) == 0 {
		return nil
	}
	if !accounts.HasColumn("Id") || !accounts.HasColumn("Name") {
		log.Warnf("Account.csv missing Id/Name columns; skipping account enrichment (columns: %v)", accounts.Header)
		return nil
	}

	names := make(map[string]string, len(accounts.Rows))
	for _, r := range accounts.Rows {
		if id := r["Id"]; id != "" {
			names[id] = r["Name"]
		}
	}

	working.EnsureColumn(colAccountID)
	working.EnsureColumn(colAccountName)

	for _, row := range working.Rows {
		if row[colObjectType] == "Account" {
			if name, ok := names[row[colRecordID]]; ok {
				if row[colAccountID] == "" {
					row[colAccountID] = row[colRecordID]
				}
				if row[colAccountName] == "" {
					row[colAccountName] = name
				}
			}
		}
		if acctID := row[colOppAccountID]; acctID != "" {
			if name, ok := names[acctID]; ok {
				if row[colAccountID] == "" {
					row[colAccountID] = acctID
				}
				if row[colAccountName] == "" {
					row[colAccountName] = name
				}
			}
		}
	}
	return nil
}

func orderHeader(header []string) []string {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	var out []string
	leading := make(map[string]bool)
	for _, k := range keyColumns {
		if present[k] {
			out = append(out, k)
			leading[k] = true
		}
	}
	for _, h := range header {
		if !leading[h] {
			out = append(out, h)
		}
	}
	return out
}
