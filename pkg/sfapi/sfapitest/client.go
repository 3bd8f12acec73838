// Package sfapitest provides a scriptable in-memory Client for tests.
package sfapitest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ksteptoe/sfdump/pkg/sfapi"
)

// Client is a fake sfapi.Client. Script it by populating the maps; every
// field is optional. Calls are recorded for assertions.
type Client struct {
	mu sync.Mutex

	// Bodies maps a relative API path to the bytes Fetch writes.
	Bodies map[string][]byte
	// FetchErrs maps a relative API path to the error Fetch returns.
	FetchErrs map[string]error
	// Versions maps container id to latest version id for ResolveLatestVersion.
	Versions map[string]string
	// ResolveErrs maps container id to the error ResolveLatestVersion returns.
	ResolveErrs map[string]error
	// QueryResults maps a SOQL string to its result rows. QueryFunc, when
	// set, takes precedence.
	QueryResults map[string][]map[string]string
	QueryFunc    func(soql string) ([]map[string]string, error)

	// FetchCalls records the relative paths passed to Fetch, in order.
	FetchCalls []string
	// Queries records every SOQL string passed to Query, in order.
	Queries []string
}

var _ sfapi.Client = (*Client)(nil)

func (c *Client) Fetch(ctx context.Context, relPath, target string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.FetchCalls = append(c.FetchCalls, relPath)
	body, okBody := c.Bodies[relPath]
	err := c.FetchErrs[relPath]
	c.mu.Unlock()

	if err != nil {
		return 0, err
	}
	if !okBody {
		body = []byte("fake-bytes")
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}
	if err := os.WriteFile(target, body, 0o644); err != nil {
		return 0, err
	}
	return int64(len(body)), nil
}

func (c *Client) ResolveLatestVersion(ctx context.Context, containerID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ResolveErrs[containerID]; err != nil {
		return "", err
	}
	if v, ok := c.Versions[containerID]; ok {
		return v, nil
	}
	return "", fmt.Errorf("container %s has no latest version", containerID)
}

func (c *Client) Query(ctx context.Context, soql string) ([]map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.Queries = append(c.Queries, soql)
	c.mu.Unlock()

	if c.QueryFunc != nil {
		return c.QueryFunc(soql)
	}
	return c.QueryResults[soql], nil
}
