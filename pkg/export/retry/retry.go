// Package retry re-attempts downloads for rows the verifier flagged as
// missing or corrupt, and folds recovered paths back into the category
// metadata. Each row gets exactly one download attempt per pass; further
// attempts happen across separate invocations, never inside one.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	logging "github.com/ipfs/go-log/v2"

	"github.com/ksteptoe/sfdump/pkg/export"
	"github.com/ksteptoe/sfdump/pkg/export/table"
	"github.com/ksteptoe/sfdump/pkg/sfapi"
)

var log = logging.Logger("export/retry")

// Status classifies the outcome of one retry attempt.
type Status string

const (
	StatusRecovered       Status = "recovered"
	StatusForbidden       Status = "forbidden"
	StatusNotFound        Status = "not-found"
	StatusConnectionError Status = "connection-error"
	StatusUnknown         Status = "unknown"
	StatusInvalidPath     Status = "invalid-path"
)

const (
	colID           = "Id"
	colPath         = "path"
	colRetrySuccess = "retry_success"
	colRetryStatus  = "retry_status"
	colRetryError   = "retry_error"
)

// connectionPhrases are the error-text fragments treated as transient
// connection failures.
var connectionPhrases = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"remotedisconnected",
	"unexpected eof",
}

// Classify maps a download error to a retry status by inspecting its text.
func Classify(err error) Status {
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "403"):
		return StatusForbidden
	case strings.Contains(msg, "404"):
		return StatusNotFound
	default:
		for _, phrase := range connectionPhrases {
			if strings.Contains(lower, phrase) {
				return StatusConnectionError
			}
		}
		return StatusUnknown
	}
}

// Result summarizes one retry pass.
type Result struct {
	Attempted   int
	Recovered   int
	Failed      int
	InvalidPath int
}

// remotePath reconstructs the category-specific read path for a record id.
func remotePath(cat export.Category, apiVersion, id string) (string, error) {
	switch cat {
	case export.CategoryAttachment:
		return sfapi.AttachmentBody(apiVersion, id), nil
	case export.CategoryContentVersion:
		return sfapi.ContentVersionData(apiVersion, id), nil
	default:
		return "", fmt.Errorf("category %s has no remote read path", cat)
	}
}

// Rows attempts one download per input row, sequentially, preserving input
// order in the returned audit rows. Every input row appears in the output,
// success or failure.
func Rows(ctx context.Context, client sfapi.Client, root export.Root, cat export.Category, apiVersion string, rows []table.Row) ([]table.Row, Result, error) {
	var res Result
	out := make([]table.Row, 0, len(rows))

	for _, in := range rows {
		if err := ctx.Err(); err != nil {
			return out, res, err
		}

		r := in.Clone()
		res.Attempted++
		id := r[colID]
		rel := r[colPath]

		if strings.TrimSpace(rel) == "" {
			r[colRetrySuccess] = "false"
			r[colRetryStatus] = string(StatusInvalidPath)
			r[colRetryError] = "missing path in metadata"
			res.InvalidPath++
			out = append(out, r)
			continue
		}

		remote, err := remotePath(cat, apiVersion, id)
		if err != nil {
			return out, res, err
		}

		_, err = client.Fetch(ctx, remote, root.Resolve(rel))
		if err != nil {
			if errors.Is(err, sfapi.ErrRateLimited) {
				// Stop the whole pass; hammering a rate-limited org only
				// makes the situation worse.
				return out, res, err
			}
			r[colRetrySuccess] = "false"
			r[colRetryStatus] = string(Classify(err))
			r[colRetryError] = err.Error()
			res.Failed++
			out = append(out, r)
			continue
		}

		r[colRetrySuccess] = "true"
		r[colRetryStatus] = string(StatusRecovered)
		r[colRetryError] = ""
		res.Recovered++
		out = append(out, r)
	}

	return out, res, nil
}

// Category loads the category's missing and corrupt side tables, retries
// every row once, and writes the full audit table. Corrupt rows (checksum
// mismatch or checksum never recorded) are re-downloaded like missing rows;
// recomputing a hash alone cannot restore integrity provenance.
func Category(ctx context.Context, client sfapi.Client, root export.Root, cat export.Category, apiVersion string) (Result, error) {
	missing, err := table.ReadOrEmpty(cat.MissingCSV(root))
	if err != nil {
		return Result{}, err
	}
	corrupt, err := table.ReadOrEmpty(cat.CorruptCSV(root))
	if err != nil {
		return Result{}, err
	}

	rows, header := combine(missing, corrupt)
	if len(rows) == 0 {
		log.Infof("%s retry: nothing to retry", cat)
		return Result{}, nil
	}

	audit, res, err := Rows(ctx, client, root, cat, apiVersion, rows)
	if err != nil {
		return res, err
	}

	t := &table.Table{Header: header}
	t.EnsureColumn(colRetrySuccess)
	t.EnsureColumn(colRetryStatus)
	t.EnsureColumn(colRetryError)
	t.Rows = audit
	if err := table.Write(cat.RetryCSV(root), t); err != nil {
		return res, err
	}
	log.Infof("%s retry: wrote results for %d rows -> %s", cat, len(audit), cat.RetryCSV(root))
	return res, nil
}

// combine concatenates the missing and corrupt sets, deduplicating by record
// id with missing rows taking precedence, preserving audit order.
func combine(missing, corrupt *table.Table) ([]table.Row, []string) {
	header := append([]string(nil), missing.Header...)
	seen := make(map[string]struct{}, len(missing.Rows))
	rows := make([]table.Row, 0, len(missing.Rows)+len(corrupt.Rows))

	for _, r := range missing.Rows {
		if id := r[colID]; id != "" {
			seen[id] = struct{}{}
		}
		rows = append(rows, r)
	}
	for _, h := range corrupt.Header {
		found := false
		for _, existing := range header {
			if existing == h {
				found = true
				break
			}
		}
		if !found {
			header = append(header, h)
		}
	}
	for _, r := range corrupt.Rows {
		if id := r[colID]; id != "" {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
		}
		rows = append(rows, r)
	}
	return rows, header
}
