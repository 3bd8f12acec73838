package config

import "fmt"

// ExportConfig locates the export root and tunes local pipeline behavior.
type ExportConfig struct {
	// Root is the export directory all commands operate on.
	Root string `mapstructure:"root" toml:"root"`
	// Workers caps concurrent downloads during bulk dump passes.
	Workers int `mapstructure:"workers" toml:"workers"`
}

func (e ExportConfig) Validate() error {
	if e.Root == "" {
		return fmt.Errorf("export root required (--export-root, SFDUMP_EXPORT_ROOT, or config file)")
	}
	if e.Workers < 0 {
		return fmt.Errorf("export workers must not be negative, got %d", e.Workers)
	}
	return nil
}
