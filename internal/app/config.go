package app

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/raysh454/replaydesk/internal/replay"
	"github.com/raysh454/replaydesk/internal/webclient"
)

// Config is the runtime configuration. Zero values are filled in by
// DefaultConfig; a YAML file loaded with LoadConfig overrides them.
type Config struct {
	// ListenAddr is where the HTTP server binds.
	ListenAddr string `yaml:"listen_addr"`

	// StorageRoot holds the session database.
	StorageRoot string `yaml:"storage_root"`

	// BackendBaseURL is the archive backend serving snapshots, edition lists
	// and edition resolution.
	BackendBaseURL string `yaml:"backend_base_url"`

	// ReportIntakeURL receives "report an issue" redirects. Empty disables
	// the report link target.
	ReportIntakeURL string `yaml:"report_intake_url"`

	DefaultLocale string `yaml:"default_locale"`

	// ResolveTimeout bounds one edition resolution call.
	ResolveTimeout time.Duration `yaml:"resolve_timeout"`

	// SessionRetention is how long closed sessions stay available to the
	// report flow.
	SessionRetention time.Duration `yaml:"session_retention"`

	// SessionAttachTimeout closes live sessions whose page never opened the
	// message relay websocket within this long. Zero disables it.
	SessionAttachTimeout time.Duration `yaml:"session_attach_timeout"`

	// AllowedOrigins lists page origins allowed to open the message relay
	// websocket. Empty means same host only.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// WebClientCfg is the transport for backend API calls.
	WebClientCfg webclient.Config `yaml:"webclient"`

	// ContentClientCfg is the transport for raw snapshot content (title
	// fallback). Set client: chromedp to read script-rendered titles.
	ContentClientCfg webclient.Config `yaml:"content_client"`

	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns a Config populated with development defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:       "localhost:8080",
		StorageRoot:      "~/.config/replaydesk",
		BackendBaseURL:   "http://localhost:9999",
		DefaultLocale:    "en",
		ResolveTimeout:   replay.DefaultResolveTimeout,
		SessionRetention: 24 * time.Hour,

		SessionAttachTimeout: 2 * time.Minute,
		WebClientCfg: webclient.Config{
			Client:  webclient.ClientNetHTTP,
			Timeout: 15 * time.Second,
		},
		ContentClientCfg: webclient.Config{
			Client:  webclient.ClientNetHTTP,
			Timeout: 10 * time.Second,
		},
		LogLevel: "info",
	}
}

// LoadConfig reads a YAML file over DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks fields that would otherwise fail late.
func (c *Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	if c.StorageRoot == "" {
		errs = append(errs, errors.New("storage_root is required"))
	}
	if u, err := url.Parse(c.BackendBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend_base_url %q is not an absolute URL", c.BackendBaseURL))
	}
	if c.ReportIntakeURL != "" {
		if u, err := url.Parse(c.ReportIntakeURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("report_intake_url %q is not an absolute URL", c.ReportIntakeURL))
		}
	}
	if c.ResolveTimeout < 0 {
		errs = append(errs, errors.New("resolve_timeout must not be negative"))
	}
	if c.SessionAttachTimeout < 0 {
		errs = append(errs, errors.New("session_attach_timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// ExpandedStorageRoot resolves a leading "~/" against the home directory.
func (c *Config) ExpandedStorageRoot() (string, error) {
	if !strings.HasPrefix(c.StorageRoot, "~/") {
		return c.StorageRoot, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand storage root: %w", err)
	}
	return home + c.StorageRoot[1:], nil
}
