// Package backfill is the second-pass recovery driven by the master
// documents index rather than per-category metadata. It targets remote files
// that chunked or partial runs never recorded in content version metadata at
// all, so the index is the only place they are known.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	logging "github.com/ipfs/go-log/v2"

	"github.com/ksteptoe/sfdump/pkg/export"
	"github.com/ksteptoe/sfdump/pkg/export/table"
	"github.com/ksteptoe/sfdump/pkg/sfapi"
)

var log = logging.Logger("export/backfill")

// Remote id namespaces for the same logical file. A container
// (ContentDocument) has one latest version (ContentVersion) at a time.
const (
	containerIDPrefix = "069"
	versionIDPrefix   = "068"
)

const (
	colFileID    = "file_id"
	colFileName  = "file_name"
	colFileExt   = "file_extension"
	colLocalPath = "local_path"
	colSource    = "file_source"

	sourceFile = "File"
)

// Options configures one backfill pass.
type Options struct {
	// Limit caps how many missing rows are processed. 0 means no limit.
	Limit int
	// DryRun reports what would happen without downloading or rewriting.
	DryRun bool
	// APIVersion is the REST API version used to build download paths.
	APIVersion string
}

// Result reports aggregate counts for one pass.
type Result struct {
	TotalMissing int `json:"total_missing"`
	Downloaded   int `json:"downloaded"`
	Failed       int `json:"failed"`
	Skipped      int `json:"skipped"`
}

// isBackfillable reports whether an index row is a candidate: a remote file
// with no resolved path whose id is in a recognized namespace.
func isBackfillable(r table.Row) bool {
	if r[colSource] != sourceFile {
		return false
	}
	if strings.TrimSpace(r[colLocalPath]) != "" {
		return false
	}
	id := r[colFileID]
	return strings.HasPrefix(id, containerIDPrefix) || strings.HasPrefix(id, versionIDPrefix)
}

// Run processes missing index entries sequentially, resolving container ids
// to version ids where needed, downloading what the remote still possesses,
// and rewriting the index atomically. Targets already present on disk are
// counted as skipped but still get their index path updated.
func Run(ctx context.Context, client sfapi.Client, root export.Root, opts Options) (Result, error) {
	if opts.APIVersion == "" {
		opts.APIVersion = sfapi.DefaultAPIVersion
	}

	indexPath := root.MasterIndexPath()
	index, err := table.Read(indexPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warnf("master index not found: %s", indexPath)
			return Result{}, nil
		}
		return Result{}, err
	}
	if !index.HasColumn(colLocalPath) {
		return Result{}, fmt.Errorf("master index %s has no %s column", indexPath, colLocalPath)
	}

	var missing []table.Row
	for _, r := range index.Rows {
		if isBackfillable(r) {
			missing = append(missing, r)
		}
	}

	res := Result{TotalMissing: len(missing)}
	if len(missing) == 0 {
		return res, nil
	}

	todo := missing
	if opts.Limit > 0 && opts.Limit < len(todo) {
		todo = todo[:opts.Limit]
	}
	log.Infof("backfill: %d missing files, processing %d (limit=%d, dry_run=%v)",
		res.TotalMissing, len(todo), opts.Limit, opts.DryRun)

	for _, row := range todo {
		if err := ctx.Err(); err != nil {
			// Stop issuing new downloads; what finished stays recorded.
			break
		}

		fileID := strings.TrimSpace(row[colFileID])
		rel := targetRelPath(fileID, row[colFileName], row[colFileExt])
		abs := root.Resolve(rel)

		if info, err := os.Stat(abs); err == nil && info.Size() > 0 {
			// Present from a previous partial run but unindexed; record it
			// instead of re-downloading.
			row[colLocalPath] = rel
			res.Skipped++
			continue
		}

		if opts.DryRun {
			log.Debugf("dry-run: would download %s -> %s", fileID, rel)
			continue
		}

		versionID := fileID
		if strings.HasPrefix(fileID, containerIDPrefix) {
			versionID, err = client.ResolveLatestVersion(ctx, fileID)
			if err != nil {
				if errors.Is(err, sfapi.ErrRateLimited) {
					return res, err
				}
				log.Debugf("could not resolve container %s: %v", fileID, err)
				res.Failed++
				continue
			}
		}

		_, err := client.Fetch(ctx, sfapi.ContentVersionData(opts.APIVersion, versionID), abs)
		if err != nil {
			if errors.Is(err, sfapi.ErrRateLimited) {
				return res, err
			}
			log.Debugf("failed to download %s: %v", fileID, err)
			res.Failed++
			continue
		}

		row[colLocalPath] = rel
		res.Downloaded++
	}

	if !opts.DryRun && (res.Downloaded > 0 || res.Skipped > 0) {
		if err := table.Write(indexPath, index); err != nil {
			return res, err
		}
		log.Infof("updated master index with %d new paths", res.Downloaded+res.Skipped)
	}
	return res, nil
}

// targetRelPath builds the sharded on-disk location for a backfilled file,
// relative to the export root.
func targetRelPath(fileID, name, ext string) string {
	fname := export.SafeFilename(fileID+"_"+strings.TrimSpace(name), strings.TrimSpace(ext))
	shard := strings.ToLower(fileID)
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.ToSlash(filepath.Join("files", shard, fname))
}
