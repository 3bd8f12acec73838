// Package config decodes the viper-backed configuration shared by all
// commands. Values come from flags, the SFDUMP_* environment, or a config
// file; precedence is handled by viper before anything lands here.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Validatable is any config struct that can check itself after decoding.
type Validatable interface {
	Validate() error
}

// Config is the full configuration tree.
type Config struct {
	Export ExportConfig `mapstructure:"export" toml:"export"`
	API    APIConfig    `mapstructure:"api" toml:"api"`
}

func (c Config) Validate() error {
	if err := c.Export.Validate(); err != nil {
		return err
	}
	return c.API.Validate()
}

// Load decodes the current viper state into T and validates it.
func Load[T Validatable]() (T, error) {
	var out T
	if err := viper.Unmarshal(&out); err != nil {
		return out, fmt.Errorf("unable to decode config, %w", err)
	}
	if err := out.Validate(); err != nil {
		return out, fmt.Errorf("invalid config, %w", err)
	}
	return out, nil
}
