package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ksteptoe/sfdump/pkg/sfapi"
)

// APIConfig holds credentials for the remote REST API. All fields are
// optional for local-only commands; commands that talk to the remote call
// RequireRemote first.
type APIConfig struct {
	// InstanceURL is the org's base URL.
	InstanceURL string `mapstructure:"instance_url" toml:"instance_url"`
	// Token is a session or OAuth access token.
	Token string `mapstructure:"token" toml:"token"`
	// Version is the REST API version (e.g. "v59.0").
	Version string `mapstructure:"version" toml:"version"`
	// TimeoutSeconds bounds each HTTP request.
	TimeoutSeconds int `mapstructure:"timeout_seconds" toml:"timeout_seconds"`
}

func (a APIConfig) Validate() error {
	if a.InstanceURL != "" {
		u, err := url.Parse(a.InstanceURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid api.instance_url: %q", a.InstanceURL)
		}
	}
	if a.TimeoutSeconds < 0 {
		return fmt.Errorf("api.timeout_seconds must not be negative, got %d", a.TimeoutSeconds)
	}
	return nil
}

// RequireRemote checks that enough is configured to reach the remote API.
func (a APIConfig) RequireRemote() error {
	if a.InstanceURL == "" {
		return fmt.Errorf("api.instance_url required (--instance-url or SFDUMP_API_INSTANCE_URL)")
	}
	if a.Token == "" {
		return fmt.Errorf("api.token required (--token or SFDUMP_API_TOKEN)")
	}
	return nil
}

// APIVersion returns the configured REST API version, falling back to the
// client default.
func (a APIConfig) APIVersion() string {
	if a.Version == "" {
		return sfapi.DefaultAPIVersion
	}
	return a.Version
}

// NewClient builds the HTTP client for the configured org.
func (a APIConfig) NewClient() (*sfapi.HTTPClient, error) {
	if err := a.RequireRemote(); err != nil {
		return nil, err
	}
	return sfapi.New(sfapi.Config{
		InstanceURL: strings.TrimRight(a.InstanceURL, "/"),
		AccessToken: a.Token,
		APIVersion:  a.Version,
		Timeout:     time.Duration(a.TimeoutSeconds) * time.Second,
	}), nil
}
