package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// ClientConfig drives the castctl job client.
type ClientConfig struct {
	AppURL        string        `envconfig:"CASTCTL_APP_URL" default:"http://localhost:8080"`
	MasteringURL  string        `envconfig:"CASTCTL_MASTERING_API_URL" default:"http://localhost:8000"`
	SessionToken  string        `envconfig:"CASTCTL_SESSION_TOKEN"`
	Email         string        `envconfig:"CASTCTL_EMAIL"`
	UploadTimeout time.Duration `envconfig:"CASTCTL_UPLOAD_TIMEOUT" default:"10h"`
	LogLevel      string        `envconfig:"CASTCTL_LOG_LEVEL" default:"warn"`

	Defaults MasteringDefaults `ignored:"true"`
}

// MasteringDefaults pre-fill castctl master flags.
type MasteringDefaults struct {
	Template string `toml:"template"`
	Quality  string `toml:"quality"`
	Limiter  string `toml:"limiter"`
}

// clientFile is the on-disk shape of castctl's config.toml.
type clientFile struct {
	AppURL        string            `toml:"app_url"`
	MasteringURL  string            `toml:"mastering_url"`
	SessionToken  string            `toml:"session_token"`
	Email         string            `toml:"email"`
	UploadTimeout string            `toml:"upload_timeout"`
	LogLevel      string            `toml:"log_level"`
	Defaults      MasteringDefaults `toml:"defaults"`
}

// Authenticated reports whether a session token is configured.
func (c ClientConfig) Authenticated() bool {
	return strings.TrimSpace(c.SessionToken) != ""
}

// DefaultClientConfigPath is ~/.config/castctl/config.toml.
func DefaultClientConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "castctl", "config.toml")
}

// LoadClient reads the environment and then overlays the TOML file at path.
// Values set explicitly in the environment win over the file. A missing file
// is only an error when path was given explicitly.
func LoadClient(path string) (*ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.Process(EnvClientPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing client config: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultClientConfigPath()
	}
	if path == "" {
		return &cfg, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return &cfg, nil
		}
		return nil, fmt.Errorf("open client config: %w", err)
	}
	defer file.Close()

	var fc clientFile
	if err := toml.NewDecoder(file).Decode(&fc); err != nil {
		return nil, fmt.Errorf("parse client config: %w", err)
	}
	if err := cfg.overlay(fc); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ClientConfig) overlay(fc clientFile) error {
	set := func(env string, dst *string, v string) {
		if _, ok := os.LookupEnv(env); ok || strings.TrimSpace(v) == "" {
			return
		}
		*dst = strings.TrimSpace(v)
	}
	set("CASTCTL_APP_URL", &c.AppURL, fc.AppURL)
	set("CASTCTL_MASTERING_API_URL", &c.MasteringURL, fc.MasteringURL)
	set("CASTCTL_SESSION_TOKEN", &c.SessionToken, fc.SessionToken)
	set("CASTCTL_EMAIL", &c.Email, fc.Email)
	set("CASTCTL_LOG_LEVEL", &c.LogLevel, fc.LogLevel)

	if _, ok := os.LookupEnv("CASTCTL_UPLOAD_TIMEOUT"); !ok && fc.UploadTimeout != "" {
		d, err := time.ParseDuration(fc.UploadTimeout)
		if err != nil {
			return fmt.Errorf("client config upload_timeout: %w", err)
		}
		c.UploadTimeout = d
	}
	c.Defaults = fc.Defaults
	return nil
}
