package inventory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ksteptoe/sfdump/pkg/export"
)

// WriteManifest snapshots the result to meta/inventory.json atomically and
// returns the path written.
func WriteManifest(root export.Root, res *Result) (string, error) {
	out := root.ManifestPath()
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", fmt.Errorf("creating meta directory: %w", err)
	}

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding inventory manifest: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(out), filepath.Base(out)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("creating temp manifest: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing temp manifest: %w", err)
	}
	if err := os.Rename(tmpName, out); err != nil {
		return "", fmt.Errorf("installing manifest at %s: %w", out, err)
	}
	return out, nil
}
