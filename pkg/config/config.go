package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/entrhq/siphon/pkg/browser"
	"github.com/entrhq/siphon/pkg/cookies"
	"github.com/entrhq/siphon/pkg/download"
	"github.com/entrhq/siphon/pkg/logging"
)

// Limits accepted for the browser pool settings.
const (
	MinConcurrency = 1
	MaxConcurrency = 20
	MinRetries     = 0
	MaxRetries     = 5
)

// Config represents the settings read at startup. The core never writes it.
type Config struct {
	// Browser pool settings
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// External downloader settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// CookieDomains restricts which cookies are passed to downloads.
	// Glob patterns such as "*.example.com"; empty keeps everything.
	CookieDomains []string `yaml:"cookie_domains" json:"cookie_domains"`

	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// BrowserConfig configures the cookie fetching pool
type BrowserConfig struct {
	MaxConcurrency        int     `yaml:"max_concurrency" json:"max_concurrency"`
	MaxRetries            int     `yaml:"max_retries" json:"max_retries"`
	TimeoutMS             int     `yaml:"timeout_ms" json:"timeout_ms"`
	MinFreeMemoryFraction float64 `yaml:"min_free_memory_fraction" json:"min_free_memory_fraction"`

	SettleDelay       time.Duration `yaml:"settle_delay" json:"settle_delay"`
	BaseDelay         time.Duration `yaml:"base_delay" json:"base_delay"`
	GracePeriod       time.Duration `yaml:"grace_period" json:"grace_period"`
	PerInstanceCostMB int           `yaml:"per_instance_cost_mb" json:"per_instance_cost_mb"`
	Headless          bool          `yaml:"headless" json:"headless"`
}

// DownloadConfig configures the external downloader
type DownloadConfig struct {
	Executable  string        `yaml:"executable" json:"executable"`
	Directory   string        `yaml:"directory" json:"directory"`
	Format      string        `yaml:"format" json:"format"`
	MergeFormat string        `yaml:"merge_format" json:"merge_format"`
	KillGrace   time.Duration `yaml:"kill_grace" json:"kill_grace"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level" json:"level"`

	// Directory overrides ~/.siphon/logs
	Directory string `yaml:"directory" json:"directory"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	// Listen is a host:port to serve /metrics on; empty disables it.
	Listen string `yaml:"listen" json:"listen"`
}

// Timeout returns the per-attempt navigation timeout.
func (b BrowserConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutMS) * time.Millisecond
}

// Validate validates the configuration
func (c *Config) Validate() error {
	b := c.Browser
	if b.MaxConcurrency < MinConcurrency || b.MaxConcurrency > MaxConcurrency {
		return fmt.Errorf("browser.max_concurrency must be between %d and %d, got %d", MinConcurrency, MaxConcurrency, b.MaxConcurrency)
	}
	if b.MaxRetries < MinRetries || b.MaxRetries > MaxRetries {
		return fmt.Errorf("browser.max_retries must be between %d and %d, got %d", MinRetries, MaxRetries, b.MaxRetries)
	}
	if b.TimeoutMS <= 0 {
		return fmt.Errorf("browser.timeout_ms must be positive")
	}
	if b.MinFreeMemoryFraction < 0 || b.MinFreeMemoryFraction >= 1 {
		return fmt.Errorf("browser.min_free_memory_fraction must be in [0, 1), got %g", b.MinFreeMemoryFraction)
	}
	if b.SettleDelay < 0 || b.BaseDelay < 0 || b.GracePeriod < 0 {
		return fmt.Errorf("browser delays cannot be negative")
	}
	if b.PerInstanceCostMB <= 0 {
		return fmt.Errorf("browser.per_instance_cost_mb must be positive")
	}

	if strings.TrimSpace(c.Download.Executable) == "" {
		return fmt.Errorf("download.executable is required")
	}
	if strings.TrimSpace(c.Download.Directory) == "" {
		return fmt.Errorf("download.directory is required")
	}
	if c.Download.KillGrace < 0 {
		return fmt.Errorf("download.kill_grace cannot be negative")
	}

	if _, err := cookies.NewFilter(c.CookieDomains); err != nil {
		return fmt.Errorf("invalid cookie_domains: %w", err)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %w", err)
	}

	return nil
}

// DefaultConfig returns a default configuration suitable for most use cases
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			MaxConcurrency:        browser.DefaultMaxConcurrency,
			MaxRetries:            browser.DefaultMaxRetries,
			TimeoutMS:             int(browser.DefaultTimeout / time.Millisecond),
			MinFreeMemoryFraction: browser.DefaultMinFreeMemoryFraction,
			SettleDelay:           browser.DefaultSettleDelay,
			BaseDelay:             browser.DefaultBaseDelay,
			GracePeriod:           browser.DefaultGracePeriod,
			PerInstanceCostMB:     browser.DefaultPerInstanceCostMB,
			Headless:              true,
		},
		Download: DownloadConfig{
			Executable:  download.DefaultExecutable,
			Directory:   defaultDownloadDirectory(),
			Format:      download.DefaultFormat,
			MergeFormat: download.DefaultMergeFormat,
			KillGrace:   download.DefaultKillGrace,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultDownloadDirectory() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "Siphon Downloads"
	}
	return filepath.Join(home, "Downloads", "Siphon Downloads")
}

// expandHome replaces a leading "~" with the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
