// Package fetch performs the bulk download passes: discover rows via query,
// download their binaries into the sharded files tree, and write the category
// metadata tables that the verifier and index builder consume.
package fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ksteptoe/sfdump/internal/ctxutil"
	"github.com/ksteptoe/sfdump/pkg/export"
	"github.com/ksteptoe/sfdump/pkg/export/table"
	"github.com/ksteptoe/sfdump/pkg/export/verify"
	"github.com/ksteptoe/sfdump/pkg/sfapi"
)

var log = logging.Logger("export/fetch")

// DefaultWorkers is the download pool size when none is configured.
const DefaultWorkers = 8

const linkQueryChunkSize = 200

// ChunkOptions optionally restricts a dump pass to one slice of the ordered
// row set, so independent runs can split a large export between them.
// The zero value means no ordering and no chunking.
type ChunkOptions struct {
	// Order is "", "asc" or "desc" (by Id).
	Order string
	// Total is the number of chunks; Index is the 1-based chunk to process.
	Total int
	Index int
}

// Validate rejects inconsistent chunk settings up front.
func (c ChunkOptions) Validate() error {
	switch c.Order {
	case "", "asc", "desc":
	default:
		return fmt.Errorf("chunk order must be asc or desc, got %q", c.Order)
	}
	if c.Total == 0 && c.Index == 0 {
		return nil
	}
	if c.Total <= 0 {
		return fmt.Errorf("chunk total must be positive, got %d", c.Total)
	}
	if c.Index < 1 || c.Index > c.Total {
		return fmt.Errorf("chunk index %d out of range 1..%d", c.Index, c.Total)
	}
	return nil
}

// apply orders and slices rows according to the options.
func (c ChunkOptions) apply(rows []table.Row) []table.Row {
	if c.Order == "asc" || c.Order == "desc" {
		sort.SliceStable(rows, func(i, j int) bool {
			if c.Order == "desc" {
				return rows[i]["Id"] > rows[j]["Id"]
			}
			return rows[i]["Id"] < rows[j]["Id"]
		})
	}
	if c.Total <= 0 {
		return rows
	}
	n := len(rows)
	size := (n + c.Total - 1) / c.Total
	start := (c.Index - 1) * size
	if start >= n {
		return nil
	}
	end := start + size
	if end > n {
		end = n
	}
	return rows[start:end]
}

// Options configures one dump pass.
type Options struct {
	// Where is an optional filter clause appended to the discovery query.
	Where string
	// Workers caps concurrent downloads; 0 means DefaultWorkers.
	Workers int
	// APIVersion is the REST API version for download paths.
	APIVersion string
	Chunk      ChunkOptions
}

func (o *Options) normalize() error {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.APIVersion == "" {
		o.APIVersion = sfapi.DefaultAPIVersion
	}
	return o.Chunk.Validate()
}

// Summary reports one dump pass.
type Summary struct {
	Kind       string `json:"kind"`
	MetaCSV    string `json:"meta_csv"`
	LinksCSV   string `json:"links_csv,omitempty"`
	Discovered int    `json:"discovered"`
	Downloaded int    `json:"downloaded"`
	Skipped    int    `json:"skipped"`
	Errors     int    `json:"errors"`
	Bytes      int64  `json:"bytes"`
}

// DumpContentVersions downloads the latest remote file versions and writes
// links/content_versions.csv plus the document-link table. Targets already on
// disk and non-empty are skipped and recorded with a fresh checksum; download
// failures are recorded per row rather than aborting the pass.
func DumpContentVersions(ctx context.Context, client sfapi.Client, root export.Root, opts Options) (Summary, error) {
	if err := opts.normalize(); err != nil {
		return Summary{}, err
	}
	sum := Summary{Kind: string(export.CategoryContentVersion)}

	soql := "SELECT Id, ContentDocumentId, Title, FileType, ContentSize, VersionNumber FROM ContentVersion"
	if opts.Where != "" {
		soql += fmt.Sprintf(" WHERE (%s)", opts.Where)
	}
	rows, err := queryRows(ctx, client, soql, opts.Chunk)
	if err != nil {
		return sum, err
	}
	sum.Discovered = len(rows)
	log.Infof("discovered %d remote file versions (where=%q)", len(rows), opts.Where)

	err = downloadAll(ctx, client, root, rows, opts.Workers, &sum, func(r table.Row) (string, string) {
		ext := strings.ToLower(r["FileType"])
		name := r["Title"]
		if name == "" {
			name = "file"
		}
		fname := export.SafeFilename(r["ContentDocumentId"]+"_"+name, ext)
		return export.ShardTarget(export.CategoryContentVersion.FilesRoot(root), fname),
			sfapi.ContentVersionData(opts.APIVersion, r["Id"])
	})
	if err != nil {
		return sum, err
	}

	sum.MetaCSV = export.CategoryContentVersion.MetaCSV(root)
	if err := writeMeta(sum.MetaCSV, rows); err != nil {
		return sum, err
	}

	linksCSV, err := dumpDocumentLinks(ctx, client, root, rows)
	if err != nil {
		return sum, err
	}
	sum.LinksCSV = linksCSV

	log.Infof("remote files: downloaded=%d skipped=%d errors=%d (%s)",
		sum.Downloaded, sum.Skipped, sum.Errors, humanize.IBytes(uint64(sum.Bytes)))
	return sum, nil
}

// DumpAttachments downloads legacy attachment binaries and writes
// links/attachments.csv.
func DumpAttachments(ctx context.Context, client sfapi.Client, root export.Root, opts Options) (Summary, error) {
	if err := opts.normalize(); err != nil {
		return Summary{}, err
	}
	sum := Summary{Kind: string(export.CategoryAttachment)}

	soql := "SELECT Id, ParentId, Name, BodyLength, ContentType FROM Attachment"
	if opts.Where != "" {
		soql += fmt.Sprintf(" WHERE %s", opts.Where)
	}
	rows, err := queryRows(ctx, client, soql, opts.Chunk)
	if err != nil {
		return sum, err
	}
	sum.Discovered = len(rows)
	log.Infof("discovered %d legacy attachments (where=%q)", len(rows), opts.Where)

	err = downloadAll(ctx, client, root, rows, opts.Workers, &sum, func(r table.Row) (string, string) {
		name := r["Name"]
		if name == "" {
			name = "attachment"
		}
		fname := export.SafeFilename(r["Id"]+"_"+name, "")
		return export.ShardTarget(export.CategoryAttachment.FilesRoot(root), fname),
			sfapi.AttachmentBody(opts.APIVersion, r["Id"])
	})
	if err != nil {
		return sum, err
	}

	sum.MetaCSV = export.CategoryAttachment.MetaCSV(root)
	if err := writeMeta(sum.MetaCSV, rows); err != nil {
		return sum, err
	}

	log.Infof("legacy attachments: downloaded=%d skipped=%d errors=%d (%s)",
		sum.Downloaded, sum.Skipped, sum.Errors, humanize.IBytes(uint64(sum.Bytes)))
	return sum, nil
}

func queryRows(ctx context.Context, client sfapi.Client, soql string, chunk ChunkOptions) ([]table.Row, error) {
	recs, err := client.Query(ctx, soql)
	if err != nil {
		return nil, err
	}
	rows := make([]table.Row, len(recs))
	for i, rec := range recs {
		rows[i] = table.Row(rec)
	}
	return chunk.apply(rows), nil
}

// downloadAll runs the per-row downloads on a bounded pool. Each row ends up
// with path/sha256 set (or download_error on failure); the pool aborts only
// on context cancellation.
func downloadAll(ctx context.Context, client sfapi.Client, root export.Root, rows []table.Row,
	workers int, sum *Summary, plan func(table.Row) (target, apiPath string)) error {

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, row := range rows {
		target, apiPath := plan(row)
		rel, err := filepath.Rel(root.Dir, target)
		if err != nil {
			return fmt.Errorf("computing relative path for %s: %w", target, err)
		}
		rel = filepath.ToSlash(rel)

		// Resume-awareness: non-empty targets from a previous run are
		// recorded, not re-downloaded.
		if info, err := os.Stat(target); err == nil && info.Size() > 0 {
			sha, err := verify.SHA256File(target)
			if err != nil {
				return err
			}
			row["path"] = rel
			row["sha256"] = sha
			mu.Lock()
			sum.Skipped++
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			size, err := client.Fetch(ctx, apiPath, target)
			if err != nil {
				if ctx.Err() != nil {
					return ctxutil.Cause(ctx)
				}
				log.Warnf("failed to download %s: %v", row["Id"], err)
				mu.Lock()
				row["path"] = ""
				row["sha256"] = ""
				row["download_error"] = err.Error()
				sum.Errors++
				mu.Unlock()
				return nil
			}
			sha, err := verify.SHA256File(target)
			if err != nil {
				return err
			}
			mu.Lock()
			row["path"] = rel
			row["sha256"] = sha
			sum.Downloaded++
			sum.Bytes += size
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// writeEmptyTable installs a zero-byte table via temp file + rename, the same
// discipline every other metadata write follows.
func writeEmptyTable(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// writeMeta writes the category metadata table with a sorted union header.
// An empty discovery still produces the (empty) file so downstream steps can
// tell "ran, found nothing" from "never ran".
func writeMeta(path string, rows []table.Row) error {
	if len(rows) == 0 {
		return writeEmptyTable(path)
	}
	cols := make(map[string]bool)
	for _, r := range rows {
		for k := range r {
			cols[k] = true
		}
	}
	header := make([]string, 0, len(cols))
	for k := range cols {
		header = append(header, k)
	}
	sort.Strings(header)
	return table.Write(path, &table.Table{Header: header, Rows: rows})
}

// dumpDocumentLinks queries which records each downloaded document is linked
// to, batching ids to stay under the query length limit.
func dumpDocumentLinks(ctx context.Context, client sfapi.Client, root export.Root, rows []table.Row) (string, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, r := range rows {
		if id := r["ContentDocumentId"]; id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	header := []string{"ContentDocumentId", "LinkedEntityId", "ShareType", "Visibility"}
	links := &table.Table{Header: header}
	for start := 0; start < len(ids); start += linkQueryChunkSize {
		end := start + linkQueryChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		quoted := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			quoted = append(quoted, "'"+id+"'")
		}
		soql := fmt.Sprintf(
			"SELECT ContentDocumentId, LinkedEntityId, ShareType, Visibility FROM ContentDocumentLink WHERE ContentDocumentId IN (%s)",
			strings.Join(quoted, ","))
		recs, err := client.Query(ctx, soql)
		if err != nil {
			return "", fmt.Errorf("querying document links: %w", err)
		}
		for _, rec := range recs {
			links.Rows = append(links.Rows, table.Row(rec))
		}
	}

	out := filepath.Join(root.LinksDir(), "content_document_links.csv")
	if len(links.Rows) == 0 {
		if err := writeEmptyTable(out); err != nil {
			return "", err
		}
		return out, nil
	}
	if err := table.Write(out, links); err != nil {
		return "", err
	}
	log.Infof("wrote %d document links for %d documents", len(links.Rows), len(ids))
	return out, nil
}
