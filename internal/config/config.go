// Package config loads, validates and persists the run configuration. The
// engine itself never reads configuration from disk; it receives a validated
// immutable RunConfiguration value per run.
package config

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/votryx/votryx/internal/driver"
)

// BrowserConfig holds browser launch preferences
type BrowserConfig struct {
	Headless        bool   `toml:"headless"`
	BlockImages     bool   `toml:"block_images"`
	RandomUserAgent bool   `toml:"random_user_agent"`
	Incognito       bool   `toml:"incognito"`
	BinPath         string `toml:"bin_path"`
}

// LogsConfig holds log sink settings
type LogsConfig struct {
	Dir      string `toml:"dir"`
	Database string `toml:"database"`
}

// WebConfig holds web UI settings
type WebConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// RunConfiguration is the immutable configuration snapshot for one run
type RunConfiguration struct {
	TargetURL         string        `toml:"target_url"`
	TargetVotes       int           `toml:"target_votes"`
	Unbounded         bool          `toml:"unbounded"`
	BatchSize         int           `toml:"batch_size"`
	ParallelWorkers   int           `toml:"parallel_workers"`
	Timeout           time.Duration `toml:"timeout"`
	PauseBetweenVotes time.Duration `toml:"pause_between_votes"`
	MaxErrors         int           `toml:"max_errors"`
	BackoffBase       time.Duration `toml:"backoff_base"`
	BackoffCap        time.Duration `toml:"backoff_cap"`
	StopGrace         time.Duration `toml:"stop_grace"`
	ScreenshotDir     string        `toml:"screenshot_dir"`

	Browser      BrowserConfig    `toml:"browser"`
	UserAgents   []string         `toml:"user_agents"`
	VoteLocators []driver.Locator `toml:"vote_locators"`

	Logs LogsConfig `toml:"logs"`
	Web  WebConfig  `toml:"web"`
}

// defaultUserAgents is used when the pool is empty and randomization is on
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36",
}

// Default returns a RunConfiguration with sensible defaults
func Default() *RunConfiguration {
	return &RunConfiguration{
		TargetVotes:       10,
		BatchSize:         1,
		ParallelWorkers:   2,
		Timeout:           15 * time.Second,
		PauseBetweenVotes: 3 * time.Second,
		MaxErrors:         3,
		BackoffBase:       5 * time.Second,
		BackoffCap:        60 * time.Second,
		StopGrace:         10 * time.Second,
		Browser: BrowserConfig{
			Headless:        true,
			BlockImages:     true,
			RandomUserAgent: true,
			Incognito:       true,
		},
		Web: WebConfig{Host: "127.0.0.1", Port: 8080},
	}
}

// Load reads configuration from a TOML file, falling back to defaults when
// the file does not exist
func Load(path string) (*RunConfiguration, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.ScreenshotDir = ExpandPath(cfg.ScreenshotDir)
	cfg.Logs.Dir = ExpandPath(cfg.Logs.Dir)
	cfg.Logs.Database = ExpandPath(cfg.Logs.Database)
	cfg.Browser.BinPath = ExpandPath(cfg.Browser.BinPath)

	return cfg, nil
}

// Save persists the configuration with an atomic rename
func (c *RunConfiguration) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "config-*.toml")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// PickUserAgent selects a random user agent from the configured pool, or ""
// when randomization is disabled
func (c *RunConfiguration) PickUserAgent() string {
	if !c.Browser.RandomUserAgent {
		return ""
	}
	pool := c.UserAgents
	if len(pool) == 0 {
		pool = defaultUserAgents
	}
	return pool[rand.Intn(len(pool))]
}

// LaunchOptions builds the per-session browser launch options. The user
// agent is re-picked for every session.
func (c *RunConfiguration) LaunchOptions() driver.LaunchOptions {
	return driver.LaunchOptions{
		Headless:    c.Browser.Headless,
		BlockImages: c.Browser.BlockImages,
		Incognito:   c.Browser.Incognito,
		UserAgent:   c.PickUserAgent(),
		BinPath:     c.Browser.BinPath,
	}
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "votryx", "config.toml")
}

// Addr returns host:port for the web server
func (w WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}
