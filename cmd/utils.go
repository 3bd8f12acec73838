package cmd

import (
	"fmt"

	"github.com/ksteptoe/sfdump/pkg/config"
	"github.com/ksteptoe/sfdump/pkg/export"
)

// loadConfig decodes and validates the full configuration.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load[config.Config]()
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// openRoot loads config and opens the export root it points at.
func openRoot() (config.Config, export.Root, error) {
	cfg, err := loadConfig()
	if err != nil {
		return config.Config{}, export.Root{}, err
	}
	root, err := export.Open(cfg.Export.Root)
	if err != nil {
		return config.Config{}, export.Root{}, err
	}
	return cfg, root, nil
}
