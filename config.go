package gojafetchlocation

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Environment variables read by [Config.ApplyEnv].
const (
	EnvNodeEnv   = "NODE_ENV"
	EnvDevServer = "FETCHLOCATION_DEV_SERVER"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the host-level configuration, typically populated from flags
// and the environment, and turned into [Option] values by [Config.Options].
type Config struct {
	// ManifestPath is an optional path to an app config (JSON or YAML).
	ManifestPath string `validate:"omitempty,file"`

	// DevServerURL is the development server address used outside
	// production.
	DevServerURL string `validate:"omitempty,url"`

	// Origin overrides extra.router.origin from the manifest, if non-empty.
	Origin string `validate:"omitempty,url"`

	Production bool
}

// ApplyEnv overlays environment variables onto the config. NODE_ENV equal
// to "production" enables production mode. The dev server env var is only
// used if DevServerURL is empty.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvNodeEnv)); v != "" {
		c.Production = v == "production"
	}
	if c.DevServerURL == "" {
		c.DevServerURL = strings.TrimSpace(os.Getenv(EnvDevServer))
	}
}

// Validate checks field formats.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("gojafetchlocation: invalid config: %w", err)
	}
	return nil
}

// Manifest loads the configured manifest, applying the Origin override. A
// config without a manifest path yields an empty manifest.
func (c *Config) Manifest() (*Manifest, error) {
	m := &Manifest{}
	if c.ManifestPath != "" {
		var err error
		if m, err = LoadManifest(c.ManifestPath); err != nil {
			return nil, err
		}
	}
	if c.Origin != "" {
		m.Origin = URLOrigin(c.Origin)
	}
	return m, nil
}

// Options validates the config and converts it into module options.
func (c *Config) Options() ([]Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	m, err := c.Manifest()
	if err != nil {
		return nil, err
	}
	opts := []Option{
		WithManifest(m),
		WithProduction(c.Production),
	}
	if c.DevServerURL != "" {
		opts = append(opts, WithDevServer(StaticDevServer(c.DevServerURL)))
	}
	return opts, nil
}
