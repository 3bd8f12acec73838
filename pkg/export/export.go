// Package export models the on-disk layout of a single export root and the
// binary-file categories tracked within it. All metadata tables live under
// the export root; concurrent pipeline runs against the same root are not
// supported and must be serialized by the caller.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Root is the directory a single export lives under.
type Root struct {
	Dir string
}

// Open validates that dir exists and returns it as an export root.
func Open(dir string) (Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Root{}, fmt.Errorf("resolving export root %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Root{}, fmt.Errorf("export root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return Root{}, fmt.Errorf("export root %s is not a directory", abs)
	}
	return Root{Dir: abs}, nil
}

func (r Root) CSVDir() string         { return filepath.Join(r.Dir, "csv") }
func (r Root) LinksDir() string       { return filepath.Join(r.Dir, "links") }
func (r Root) MetaDir() string        { return filepath.Join(r.Dir, "meta") }
func (r Root) FilesDir() string       { return filepath.Join(r.Dir, "files") }
func (r Root) LegacyFilesDir() string { return filepath.Join(r.Dir, "files_legacy") }
func (r Root) InvoicesDir() string    { return filepath.Join(r.Dir, "invoices") }

// MasterIndexPath is the master documents index, the single source of truth
// for what documents exist and where.
func (r Root) MasterIndexPath() string {
	return filepath.Join(r.MetaDir(), "master_documents_index.csv")
}

// StorePath is the embedded relational store built from the flat exports.
func (r Root) StorePath() string {
	return filepath.Join(r.MetaDir(), "sfdata.db")
}

// ManifestPath is the inventory manifest snapshot.
func (r Root) ManifestPath() string {
	return filepath.Join(r.MetaDir(), "inventory.json")
}

// Resolve joins a relative table path to the export root, normalizing any
// Windows-style separators left behind by older exports.
func (r Root) Resolve(rel string) string {
	rel = strings.ReplaceAll(rel, `\`, "/")
	return filepath.Join(r.Dir, filepath.FromSlash(rel))
}

// Category is one of the binary-file kinds tracked by the pipeline.
type Category string

const (
	CategoryAttachment     Category = "attachment"
	CategoryContentVersion Category = "content_version"
	CategoryInvoicePDF     Category = "invoice_pdf"
)

// tableStem is the base name used for the category's tables under links/.
func (c Category) tableStem() string {
	switch c {
	case CategoryAttachment:
		return "attachments"
	case CategoryContentVersion:
		return "content_versions"
	default:
		return string(c)
	}
}

// MetaCSV is the authoritative category metadata table.
func (c Category) MetaCSV(r Root) string {
	return filepath.Join(r.LinksDir(), c.tableStem()+".csv")
}

// MissingCSV and CorruptCSV are the verifier's side tables.
func (c Category) MissingCSV(r Root) string {
	return filepath.Join(r.LinksDir(), c.tableStem()+"_missing.csv")
}

func (c Category) CorruptCSV(r Root) string {
	return filepath.Join(r.LinksDir(), c.tableStem()+"_corrupt.csv")
}

// RetryCSV is the retrier's audit table.
func (c Category) RetryCSV(r Root) string {
	return filepath.Join(r.LinksDir(), c.tableStem()+"_missing_retry.csv")
}

// FilesRoot is the directory the category's binaries are downloaded under.
func (c Category) FilesRoot(r Root) string {
	switch c {
	case CategoryAttachment:
		return r.LegacyFilesDir()
	case CategoryInvoicePDF:
		return r.InvoicesDir()
	default:
		return r.FilesDir()
	}
}

var (
	unsafeChars = regexp.MustCompile(`[^\w\-. ()]+`)
	multiSpace  = regexp.MustCompile(`\s+`)
)

// SafeFilename builds a filesystem-safe name from a stem and extension.
// Overlong stems are truncated so sharded paths stay within OS limits.
func SafeFilename(stem, ext string) string {
	stem = strings.TrimSpace(stem)
	stem = unsafeChars.ReplaceAllString(stem, "_")
	stem = strings.TrimSpace(multiSpace.ReplaceAllString(stem, " "))
	if stem == "" {
		stem = "file"
	}
	if len(stem) > 120 {
		stem = strings.TrimRight(stem[:120], " ")
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return stem
	}
	return stem + "." + ext
}

// ShardTarget places a file into a two-character shard subdirectory under
// filesRoot to avoid huge single directories.
func ShardTarget(filesRoot, name string) string {
	sub := strings.ToLower(name)
	if len(sub) > 2 {
		sub = sub[:2]
	}
	return filepath.Join(filesRoot, sub, name)
}
