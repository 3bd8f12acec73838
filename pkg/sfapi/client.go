// Package sfapi is the boundary to the remote CRM platform. The pipeline only
// ever needs three capabilities: fetch a binary by relative path, resolve a
// document container to its latest file version, and run a query.
package sfapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("sfapi")

// DefaultAPIVersion is the REST API version used when none is configured.
const DefaultAPIVersion = "v59.0"

const defaultRequestTimeout = 5 * time.Minute

// Client is the fixed capability surface the pipeline depends on.
type Client interface {
	// Fetch downloads the binary at relPath to target and returns the bytes
	// written. target is written via a temp file and rename.
	Fetch(ctx context.Context, relPath, target string) (int64, error)
	// ResolveLatestVersion resolves a document-container id to its latest
	// file-version id.
	ResolveLatestVersion(ctx context.Context, containerID string) (string, error)
	// Query runs a SOQL query and returns all rows, following pagination.
	Query(ctx context.Context, soql string) ([]map[string]string, error)
}

// Config carries connection settings for the HTTP client.
type Config struct {
	InstanceURL string
	AccessToken string
	APIVersion  string
	Timeout     time.Duration
}

// HTTPClient is the production Client over the platform's REST API.
type HTTPClient struct {
	cfg  Config
	http *http.Client
}

var _ Client = (*HTTPClient)(nil)

// New creates an HTTPClient from cfg, applying defaults for the API version
// and per-request timeout.
func New(cfg Config) *HTTPClient {
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultRequestTimeout
	}
	return &HTTPClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// APIVersion returns the REST API version in use.
func (c *HTTPClient) APIVersion() string { return c.cfg.APIVersion }

// AttachmentBody is the read path for a legacy attachment's binary.
func AttachmentBody(apiVersion, id string) string {
	return fmt.Sprintf("/services/data/%s/sobjects/Attachment/%s/Body", apiVersion, id)
}

// ContentVersionData is the read path for a file version's binary.
func ContentVersionData(apiVersion, id string) string {
	return fmt.Sprintf("/services/data/%s/sobjects/ContentVersion/%s/VersionData", apiVersion, id)
}

func contentDocumentPath(apiVersion, id string) string {
	return fmt.Sprintf("/services/data/%s/sobjects/ContentDocument/%s", apiVersion, id)
}

// get issues a GET, retrying a bounded number of times on HTTP 429 before
// surfacing ErrRateLimited. All other failures surface immediately.
func (c *HTTPClient) get(ctx context.Context, relPath string) (*http.Response, error) {
	full := c.cfg.InstanceURL + relPath
	resp, err := backoff.Retry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			return nil, &StatusError{Code: resp.StatusCode, URL: full}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, backoff.Permanent(&StatusError{Code: resp.StatusCode, URL: full})
		}
		return resp, nil
	}, backoff.WithMaxTries(3))

	if err != nil {
		if IsStatus(err, http.StatusTooManyRequests) {
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, full)
		}
		return nil, err
	}
	return resp, nil
}

// Fetch implements Client.
func (c *HTTPClient) Fetch(ctx context.Context, relPath, target string) (int64, error) {
	resp, err := c.get(ctx, relPath)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(target)+".part-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file for %s: %w", target, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("downloading %s: %w", relPath, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("closing temp file for %s: %w", target, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return 0, fmt.Errorf("renaming into %s: %w", target, err)
	}
	log.Debugf("fetched %s (%d bytes) -> %s", relPath, n, target)
	return n, nil
}

// ResolveLatestVersion implements Client.
func (c *HTTPClient) ResolveLatestVersion(ctx context.Context, containerID string) (string, error) {
	resp, err := c.get(ctx, contentDocumentPath(c.cfg.APIVersion, containerID))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body struct {
		LatestPublishedVersionID string `json:"LatestPublishedVersionId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding container %s: %w", containerID, err)
	}
	if body.LatestPublishedVersionID == "" {
		return "", fmt.Errorf("container %s has no latest version", containerID)
	}
	return body.LatestPublishedVersionID, nil
}

// queryResponse is one page of query results. Record fields are decoded as
// loose JSON then flattened to strings; the platform's "attributes" noise is
// dropped.
type queryResponse struct {
	Done           bool                     `json:"done"`
	NextRecordsURL string                   `json:"nextRecordsUrl"`
	Records        []map[string]interface{} `json:"records"`
}

// Query implements Client.
func (c *HTTPClient) Query(ctx context.Context, soql string) ([]map[string]string, error) {
	rel := fmt.Sprintf("/services/data/%s/query?q=%s", c.cfg.APIVersion, url.QueryEscape(soql))

	var out []map[string]string
	for {
		resp, err := c.get(ctx, rel)
		if err != nil {
			return nil, err
		}
		var page queryResponse
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decoding query page: %w", err)
		}

		for _, rec := range page.Records {
			row := make(map[string]string, len(rec))
			for k, v := range rec {
				if k == "attributes" {
					continue
				}
				switch val := v.(type) {
				case nil:
					row[k] = ""
				case string:
					row[k] = val
				case float64:
					row[k] = formatNumber(val)
				case bool:
					if val {
						row[k] = "true"
					} else {
						row[k] = "false"
					}
				default:
					b, _ := json.Marshal(val)
					row[k] = string(b)
				}
			}
			out = append(out, row)
		}

		if page.Done || page.NextRecordsURL == "" {
			break
		}
		rel = page.NextRecordsURL
	}
	return out, nil
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
